package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/world"
)

func stopRaw(t *testing.T, agent string, id uint32, x float64) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(protocol.MoveStopMsg{
		Type:            protocol.TypeMoveStop,
		ProtocolVersion: protocol.Version,
		AgentID:         agent,
		SplineID:        id,
		Pos:             [3]float64{x, 0, 0},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func dial(t *testing.T, srv *httptest.Server, agents ...string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version, AgentIDs: agents}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return conn
}

func waitSessions(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.SessionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("sessions=%d want %d", s.SessionCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readStop(t *testing.T, conn *websocket.Conn) protocol.MoveStopMsg {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m protocol.MoveStopMsg
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestServer_FiltersByAgent(t *testing.T) {
	s := NewServer("w1", 10, nil)
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	conn := dial(t, srv, "a")
	defer conn.Close()
	waitSessions(t, s, 1)

	_ = s.WriteTick(world.TickLogEntry{Tick: 1, Sync: []json.RawMessage{stopRaw(t, "b", 1, 9), stopRaw(t, "a", 1, 4)}})
	m := readStop(t, conn)
	if m.AgentID != "a" || m.Pos[0] != 4 {
		t.Fatalf("got %+v want agent a", m)
	}
}

func TestServer_ForwardsDepartures(t *testing.T) {
	s := NewServer("w1", 10, nil)
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	conn := dial(t, srv, "a")
	defer conn.Close()
	waitSessions(t, s, 1)

	_ = s.WriteTick(world.TickLogEntry{Tick: 1, Sync: []json.RawMessage{stopRaw(t, "a", 1, 4)}})
	readStop(t, conn)
	_ = s.WriteTick(world.TickLogEntry{Tick: 2, Leaves: []string{"b", "a"}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.DecodeSync(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	leave, ok := msg.(protocol.AgentLeaveMsg)
	if !ok || leave.AgentID != "a" || leave.Tick != 2 {
		t.Fatalf("got %s want AGENT_LEAVE for a at tick 2", b)
	}
	if boot := s.Bootstrap(nil); len(boot.Stops) != 0 {
		t.Fatalf("departed agent still bootstrapped: %+v", boot.Stops)
	}
}

func TestServer_LateJoinerGetsLatestCurves(t *testing.T) {
	s := NewServer("w1", 10, nil)
	_ = s.WriteTick(world.TickLogEntry{Tick: 1, Sync: []json.RawMessage{stopRaw(t, "a", 1, 1)}})
	_ = s.WriteTick(world.TickLogEntry{Tick: 2, Sync: []json.RawMessage{stopRaw(t, "a", 2, 2)}})

	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()
	conn := dial(t, srv)
	defer conn.Close()

	m := readStop(t, conn)
	if m.SplineID != 2 || m.Pos[0] != 2 {
		t.Fatalf("bootstrap message %+v want spline 2", m)
	}
}

func TestServer_BootstrapHandler(t *testing.T) {
	s := NewServer("w1", 20, nil)
	_ = s.WriteTick(world.TickLogEntry{Tick: 7, Sync: []json.RawMessage{stopRaw(t, "a", 3, 1), stopRaw(t, "b", 1, 2)}})
	_ = s.WriteTick(world.TickLogEntry{Tick: 8, Leaves: []string{"b"}})

	srv := httptest.NewServer(s.BootstrapHandler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var boot protocol.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.Type != protocol.TypeBootstrap || boot.Tick != 8 || boot.TickRateHz != 20 || boot.WorldID != "w1" {
		t.Fatalf("bootstrap header %+v", boot)
	}
	if len(boot.Stops) != 1 || boot.Stops[0].AgentID != "a" || len(boot.Splines) != 0 {
		t.Fatalf("bootstrap stops=%+v splines=%+v", boot.Stops, boot.Splines)
	}
}

func TestServer_RejectsBadHandshake(t *testing.T) {
	s := NewServer("w1", 10, nil)
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(map[string]string{"type": "HELLO"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after bad handshake")
	}
	if s.SessionCount() != 0 {
		t.Fatalf("sessions=%d want 0", s.SessionCount())
	}
}
