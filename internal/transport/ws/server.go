package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/world"
)

// Submitter queues commands for the world loop.
type Submitter interface {
	Submit(ctx context.Context, cmd world.Command) error
}

// Server accepts COMMAND messages from controllers (AI, combat, scripts) and
// acknowledges each one once it is queued for the next tick.
type Server struct {
	world Submitter
	log   *log.Logger

	upgrader websocket.Upgrader
	// submitTimeout bounds how long a full inbox may hold a controller.
	submitTimeout time.Duration

	// Per-connection command budget.
	rateMax int
	ratePer time.Duration
	now     func() time.Time
}

func NewServer(w Submitter, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		submitTimeout: time.Second,
		rateMax:       50,
		ratePer:       time.Second,
		now:           time.Now,
	}
	return s
}

// SetRateLimit caps each connection at max commands per interval. max <= 0
// disables the cap.
func (s *Server) SetRateLimit(max int, per time.Duration) {
	s.rateMax = max
	s.ratePer = per
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		win := &window{span: s.ratePer, max: s.rateMax}

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			ack := s.handle(ctx, msg, win)
			if ack == nil {
				continue
			}
			if err := writeJSON(conn, ack); err != nil {
				break
			}
		}
	}
}

func (s *Server) handle(ctx context.Context, msg []byte, win *window) *protocol.AckMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeCommand {
		return nil
	}
	var in protocol.CommandMsg
	if err := json.Unmarshal(msg, &in); err != nil {
		return nil
	}
	ack := &protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, Seq: in.Seq}
	if in.ProtocolVersion != protocol.Version {
		ack.Code, ack.Message = protocol.ErrBadRequest, "bad protocol_version"
		return ack
	}
	if ok, retry := win.allow(s.now()); !ok {
		ack.Code, ack.Message = protocol.ErrRateLimited, fmt.Sprintf("retry in %dms", retry.Milliseconds())
		return ack
	}
	var cmd world.Command
	if err := json.Unmarshal(in.Command, &cmd); err != nil || cmd.Kind == "" {
		ack.Code, ack.Message = protocol.ErrBadRequest, "bad command"
		return ack
	}
	sctx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()
	if err := s.world.Submit(sctx, cmd); err != nil {
		if s.log != nil {
			s.log.Printf("command %s for %s not queued: %v", cmd.Kind, cmd.AgentID, err)
		}
		ack.Code, ack.Message = protocol.ErrConflict, "world busy"
		return ack
	}
	ack.Accepted = true
	return ack
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return err
	}
	return nil
}
