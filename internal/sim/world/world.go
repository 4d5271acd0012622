package world

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/launch"
	"motionsync.ai/internal/sim/motion/stack"
	"motionsync.ai/internal/sim/tuning"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
	"motionsync.ai/internal/sim/world/logic/mathx"
)

type WorldConfig struct {
	ID     string
	Tuning tuning.Tuning
	// Nav is required; it answers path, collision and ground queries.
	Nav Nav
}

// Nav is the world's terrain collaborator.
type Nav interface {
	launch.Pathfinder
	FirstCollision(origin mgl64.Vec3, dist, angle float64) mgl64.Vec3
	GroundHeight(x, y float64) float64
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// TickLogEntry is everything observable that happened in one tick. Sync holds
// the wire-encoded MOVE_SPLINE / MOVE_STOP messages in emission order.
type TickLogEntry struct {
	Tick     uint64            `json:"tick"`
	DT       float64           `json:"dt"`
	Commands []Command         `json:"commands,omitempty"`
	Sync     []json.RawMessage `json:"sync,omitempty"`
	Events   []protocol.Event  `json:"events,omitempty"`
	Leaves   []string          `json:"leaves,omitempty"`
	Digest   string            `json:"digest"`
}

type agentState struct {
	agent *modelpkg.Agent
	stack *stack.Stack
}

// World is a single-threaded authoritative motion simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg    WorldConfig
	tune   tuning.Tuning
	logger *log.Logger

	tick atomic.Uint64

	agents     map[string]*agentState
	order      []string
	transports map[string]*Transport

	// views is the start-of-tick snapshot generators see of other agents.
	views map[string]modelpkg.TargetView

	rng     *rand.Rand
	builder *launch.Builder
	env     motionWorldEnv

	// Sync messages produced during the current tick.
	sync []json.RawMessage

	inbox    chan Command
	stop     chan struct{}
	stopOnce sync.Once
	script   map[uint64][]Command

	metricAgents     atomic.Int64
	metricTransports atomic.Int64
	metricStepNanos  atomic.Int64
	metricLaunches   atomic.Uint64
	metricStops      atomic.Uint64

	tickLoggers []TickLogger
}

func New(cfg WorldConfig, logger *log.Logger) (*World, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("world id is required")
	}
	if cfg.Nav == nil {
		return nil, fmt.Errorf("world %s: nav is required", cfg.ID)
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	w := &World{
		cfg:        cfg,
		tune:       cfg.Tuning,
		logger:     logger,
		agents:     map[string]*agentState{},
		transports: map[string]*Transport{},
		views:      map[string]modelpkg.TargetView{},
		rng:        mathx.NewRand(cfg.Tuning.Seed, cfg.ID),
		inbox:      make(chan Command, 1024),
		stop:       make(chan struct{}),
	}
	w.env = motionWorldEnv{w: w}
	w.builder = launch.NewBuilder(w.env, w.env, cfg.Tuning)
	return w, nil
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.tune.TickRateHz
}

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) AddTickLogger(l TickLogger) {
	if l != nil {
		w.tickLoggers = append(w.tickLoggers, l)
	}
}

// Agent returns the live agent. Only safe while the loop is not running.
func (w *World) Agent(id string) *modelpkg.Agent {
	if st := w.agents[id]; st != nil {
		return st.agent
	}
	return nil
}

// Stack returns the agent's motion stack. Only safe while the loop is not
// running.
func (w *World) Stack(id string) *stack.Stack {
	if st := w.agents[id]; st != nil {
		return st.stack
	}
	return nil
}

// AgentIDs lists agents in update order.
func (w *World) AgentIDs() []string {
	return append([]string(nil), w.order...)
}

func (w *World) resort() {
	w.order = w.order[:0]
	for id := range w.agents {
		w.order = append(w.order, id)
	}
	sort.Strings(w.order)
	w.metricAgents.Store(int64(len(w.order)))
}
