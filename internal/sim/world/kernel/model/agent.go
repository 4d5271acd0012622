package model

import (
	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/curve"
)

type Kind uint8

const (
	KindCreature Kind = iota
	KindPlayer
)

func (k Kind) String() string {
	if k == KindPlayer {
		return "player"
	}
	return "creature"
}

type Capabilities struct {
	CanFly  bool
	CanSwim bool
}

type Agent struct {
	ID   string
	Kind Kind

	Loc            Location
	Flags          MoveFlags
	Caps           Capabilities
	Speeds         SpeedTable
	BoundingRadius float64

	// TransportID names the platform the agent rides, if any.
	TransportID string
	// CombatTarget is the agent this one faces while fighting.
	CombatTarget string

	// Spline is the running trajectory. It is nil until the first launch.
	Spline *curve.Curve
	// SplineTransport is set when Spline is expressed in that platform's frame.
	SplineTransport string
	// SplineEvents holds what the last Advance reported.
	SplineEvents []curve.Event

	Events []protocol.Event
	// Monotonic count of events produced by this agent.
	EventCursor uint64

	splineSeq uint32
}

// NextSplineID hands out the next trajectory id. Ids are monotonic per agent
// and never reused, launches and halts alike.
func (a *Agent) NextSplineID() uint32 {
	a.splineSeq++
	return a.splineSeq
}

func (a *Agent) LastSplineID() uint32 { return a.splineSeq }

// Moving reports whether the agent has an unfinished curve.
func (a *Agent) Moving() bool {
	return a.Spline != nil && !a.Spline.Finalized()
}

// Immobilized agents keep their generators but never replan.
func (a *Agent) Immobilized() bool {
	return a.Flags.Has(FlagRooted) || a.Flags.Has(FlagStunned)
}

// Arrived reports whether the curve with the given id reached its end.
func (a *Agent) Arrived(splineID uint32) bool {
	if a.Spline == nil || a.Spline.ID() != splineID {
		return false
	}
	return a.Spline.Finalized() && !a.Spline.Cyclic()
}

func (a *Agent) Pos() mgl64.Vec3 { return a.Loc.Pos() }

func (a *Agent) View() TargetView {
	return TargetView{
		ID:             a.ID,
		Pos:            a.Loc.Pos(),
		Orientation:    a.Loc.O,
		Walking:        a.Flags.Has(FlagWalking),
		BoundingRadius: a.BoundingRadius,
		Alive:          true,
	}
}

func (a *Agent) AddEvent(e protocol.Event) {
	a.Events = append(a.Events, e)
	a.EventCursor++
}

func (a *Agent) TakeEvents() []protocol.Event {
	ev := a.Events
	a.Events = nil
	return ev
}

// TargetView is the read-only face of an agent exposed to other agents'
// generators. It is captured at the start of a tick.
type TargetView struct {
	ID             string
	Pos            mgl64.Vec3
	Orientation    float64
	Walking        bool
	BoundingRadius float64
	Alive          bool
}
