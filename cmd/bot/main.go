package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/world"
)

func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/commands", "command ws url")
		agentID = flag.String("agent", "bot", "agent id to drive")
		spawn   = flag.Bool("spawn", true, "spawn the agent before driving it")
		cx      = flag.Float64("x", 30, "wander center x")
		cy      = flag.Float64("y", 30, "wander center y")
		radius  = flag.Float64("radius", 12, "wander radius")
		every   = flag.Duration("every", 4*time.Second, "interval between move orders")
		seed    = flag.Int64("seed", 0, "rng seed (0 = time based)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	b := &bot{conn: conn, logger: logger, agentID: *agentID, center: [2]float64{*cx, *cy}, radius: *radius, rng: rand.New(rand.NewSource(*seed))}

	go b.readAcks()

	if *spawn {
		b.send(world.Command{Kind: world.CmdSpawn, Spawn: &world.AgentSpec{ID: *agentID, Pos: [3]float64{*cx, *cy, 0}}})
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	t := time.NewTicker(*every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			b.send(world.Command{Kind: world.CmdStop, AgentID: *agentID})
			return
		case <-t.C:
			b.send(b.wander())
		}
	}
}

type bot struct {
	conn    *websocket.Conn
	logger  *log.Logger
	agentID string
	center  [2]float64
	radius  float64
	rng     *rand.Rand
	seq     uint64
}

// wander picks a point inside the radius and orders a pathed walk there.
func (b *bot) wander() world.Command {
	a := b.rng.Float64() * 2 * math.Pi
	d := math.Sqrt(b.rng.Float64()) * b.radius
	return world.Command{
		Kind:    world.CmdMovePoint,
		AgentID: b.agentID,
		Ref:     "wander",
		Point:   [3]float64{b.center[0] + d*math.Cos(a), b.center[1] + d*math.Sin(a), 0},
		UsePath: true,
		Walk:    b.rng.Intn(3) != 0,
	}
}

func (b *bot) send(cmd world.Command) {
	raw, err := json.Marshal(cmd)
	if err != nil {
		b.logger.Printf("encode %s: %v", cmd.Kind, err)
		return
	}
	b.seq++
	msg := protocol.CommandMsg{Type: protocol.TypeCommand, ProtocolVersion: protocol.Version, Seq: b.seq, Command: raw}
	if err := b.conn.WriteJSON(msg); err != nil {
		b.logger.Fatalf("send COMMAND: %v", err)
	}
}

func (b *bot) readAcks() {
	for {
		var ack protocol.AckMsg
		if err := b.conn.ReadJSON(&ack); err != nil {
			b.logger.Printf("connection closed: %v", err)
			os.Exit(0)
		}
		if !ack.Accepted {
			b.logger.Printf("seq=%d rejected code=%s %s", ack.Seq, ack.Code, ack.Message)
		}
	}
}
