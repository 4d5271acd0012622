package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/world"
)

// Server fans sync messages out to observers. It is a world tick logger:
// WriteTick runs on the world goroutine and never blocks it. Delivery is
// fire-and-forget; a slow observer loses messages and catches up from the
// next launch or a fresh bootstrap.
type Server struct {
	worldID    string
	tickRateHz int
	log        *log.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	tick     uint64
	latest   map[string]latestSync
	sessions map[string]*session

	dropped atomic.Uint64
}

type latestSync struct {
	spline *protocol.MoveSplineMsg
	stop   *protocol.MoveStopMsg
	raw    json.RawMessage
}

type session struct {
	id     string
	filter map[string]bool
	out    chan []byte
}

func (s *session) wants(agentID string) bool {
	return len(s.filter) == 0 || s.filter[agentID]
}

func NewServer(worldID string, tickRateHz int, logger *log.Logger) *Server {
	return &Server{
		worldID:    worldID,
		tickRateHz: tickRateHz,
		log:        logger,
		latest:     map[string]latestSync{},
		sessions:   map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Dropped counts messages discarded because an observer queue was full.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) WriteTick(entry world.TickLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = entry.Tick
	for _, id := range entry.Leaves {
		delete(s.latest, id)
		s.broadcastLocked(id, s.leaveMsg(entry.Tick, id))
	}
	for _, raw := range entry.Sync {
		msg, err := protocol.DecodeSync(raw)
		if err != nil {
			continue
		}
		var agentID string
		switch m := msg.(type) {
		case protocol.MoveSplineMsg:
			agentID = m.AgentID
			s.latest[agentID] = latestSync{spline: &m, raw: raw}
		case protocol.MoveStopMsg:
			agentID = m.AgentID
			s.latest[agentID] = latestSync{stop: &m, raw: raw}
		}
		s.broadcastLocked(agentID, raw)
	}
	return nil
}

func (s *Server) leaveMsg(tick uint64, agentID string) []byte {
	b, _ := json.Marshal(protocol.AgentLeaveMsg{
		Type:            protocol.TypeAgentLeave,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		AgentID:         agentID,
	})
	return b
}

func (s *Server) broadcastLocked(agentID string, b []byte) {
	for _, sess := range s.sessions {
		if sess.wants(agentID) {
			s.sendLocked(sess, b)
		}
	}
}

func (s *Server) sendLocked(sess *session, b []byte) {
	select {
	case sess.out <- b:
	default:
		s.dropped.Add(1)
	}
}

func (s *Server) agentIDsLocked(filter map[string]bool) []string {
	ids := make([]string, 0, len(s.latest))
	for id := range s.latest {
		if len(filter) == 0 || filter[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Bootstrap is the latest sync message per agent, optionally filtered.
func (s *Server) Bootstrap(agentIDs []string) protocol.BootstrapResponse {
	filter := filterOf(agentIDs)
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := protocol.BootstrapResponse{
		Type:            protocol.TypeBootstrap,
		ProtocolVersion: protocol.Version,
		WorldID:         s.worldID,
		Tick:            s.tick,
		TickRateHz:      s.tickRateHz,
		Splines:         []protocol.MoveSplineMsg{},
		Stops:           []protocol.MoveStopMsg{},
	}
	for _, id := range s.agentIDsLocked(filter) {
		l := s.latest[id]
		if l.spline != nil {
			resp.Splines = append(resp.Splines, *l.spline)
		}
		if l.stop != nil {
			resp.Stops = append(resp.Stops, *l.stop)
		}
	}
	return resp
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var ids []string
		if q := r.URL.Query().Get("agents"); q != "" {
			ids = strings.Split(q, ",")
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.Bootstrap(ids))
	}
}

// join registers the session and queues the cached curves it needs before any
// live message can reach it.
func (s *Server) join(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.agentIDsLocked(sess.filter) {
		s.sendLocked(sess, s.latest[id].raw)
	}
	s.sessions[sess.id] = sess
}

func (s *Server) resubscribe(id string, filter map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[id]
	if sess == nil {
		return
	}
	sess.filter = filter
	// Agents newly in view need their current curve.
	for _, aid := range s.agentIDsLocked(filter) {
		s.sendLocked(sess, s.latest[aid].raw)
	}
}

func (s *Server) leave(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sess := &session{
			id:     uuid.NewString(),
			filter: filterOf(sub.AgentIDs),
			out:    make(chan []byte, 4096),
		}
		s.join(sess)
		defer s.leave(sess.id)
		if s.log != nil {
			s.log.Printf("observer %s joined (agents=%d)", sess.id, len(sess.filter))
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := parseSubscribe(msg)
			if !ok {
				continue
			}
			s.resubscribe(sess.id, filterOf(sub.AgentIDs))
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(b []byte) (protocol.SubscribeMsg, bool) {
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(b, &sub); err != nil {
		return sub, false
	}
	if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
		return sub, false
	}
	return sub, true
}

func filterOf(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			m[id] = true
		}
	}
	return m
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
