// Package gen holds the movement generators: policies that decide when and
// where an agent's trajectory is (re)launched. Generators are a closed set of
// variants dispatched on Kind; they never log and never block.
package gen

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/sim/motion/launch"
	"motionsync.ai/internal/sim/tuning"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

type Kind uint8

const (
	KindIdle Kind = iota
	KindPoint
	KindChase
	KindFollow
	KindFlee
	KindTimedFlee
	KindEffect
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "IDLE"
	case KindPoint:
		return "POINT"
	case KindChase:
		return "CHASE"
	case KindFollow:
		return "FOLLOW"
	case KindFlee:
		return "FLEE"
	case KindTimedFlee:
		return "TIMED_FLEE"
	case KindEffect:
		return "EFFECT"
	}
	return "UNKNOWN"
}

type Status uint8

const (
	Continue Status = iota
	Finished
	Failed
)

func (s Status) String() string {
	switch s {
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	}
	return "continue"
}

// Env is what generators see of the world. Target returns the start-of-tick
// view of another agent; it never hands out the agent itself.
type Env interface {
	Target(id string) (modelpkg.TargetView, bool)
	FirstCollision(origin mgl64.Vec3, dist, angle float64) mgl64.Vec3
	Launch(a *modelpkg.Agent, req *launch.Request) launch.Result
	Halt(a *modelpkg.Agent)
	Rand() *rand.Rand
	Tuning() tuning.Tuning
	CurrentTick() uint64
}

// Generator is one movement intent. Exactly one of the variant states is set,
// matching Kind.
type Generator struct {
	Kind Kind
	// Ref is echoed in MOTION_DONE / MOTION_FAIL events.
	Ref string

	point  *pointState
	chase  *chaseState
	follow *followState
	flee   *fleeState
	effect *effectState

	// handoff replaces this generator in its slot when it finishes.
	handoff *Generator
}

func NewIdle() *Generator { return &Generator{Kind: KindIdle} }

// Activate runs when the generator enters a slot. active reports whether the
// slot is the highest occupied one; only then may it launch.
func Activate(env Env, g *Generator, a *modelpkg.Agent, active bool) {
	switch g.Kind {
	case KindIdle:
		if active {
			env.Halt(a)
		}
	case KindPoint:
		if active {
			g.point.launch(env, g, a)
		}
	case KindChase:
		if active {
			engage(g, a)
			g.chase.replan(env, g, a)
		}
	case KindFollow:
		if active {
			engage(g, a)
			g.follow.replan(env, g, a)
		}
	case KindFlee, KindTimedFlee:
		if active {
			engage(g, a)
			g.flee.replan(env, g, a)
		}
	case KindEffect:
		if active {
			g.effect.launch(env, g, a)
		}
	}
}

// engage sets the agent state owned by a generator that is driving it. A
// generator parked under a higher slot leaves that state alone until Resume.
func engage(g *Generator, a *modelpkg.Agent) {
	switch g.Kind {
	case KindChase:
		a.Flags.Set(modelpkg.FlagChasing)
	case KindFollow:
		a.Flags.Set(modelpkg.FlagFollowing)
	case KindFlee, KindTimedFlee:
		g.flee.activate(a)
	}
}

// Update advances the generator by dt seconds.
func Update(env Env, g *Generator, a *modelpkg.Agent, dt float64) Status {
	switch g.Kind {
	case KindPoint:
		return g.point.update(env, g, a, dt)
	case KindChase:
		return g.chase.update(env, g, a, dt)
	case KindFollow:
		return g.follow.update(env, g, a, dt)
	case KindFlee, KindTimedFlee:
		return g.flee.update(env, g, a, dt)
	case KindEffect:
		return g.effect.update(env, g, a)
	}
	return Continue
}

// Deactivate runs when the generator leaves its slot.
func Deactivate(env Env, g *Generator, a *modelpkg.Agent) {
	switch g.Kind {
	case KindChase:
		a.Flags.Clear(modelpkg.FlagChasing)
	case KindFollow:
		a.Flags.Clear(modelpkg.FlagFollowing)
	case KindFlee, KindTimedFlee:
		g.flee.deactivate(a)
	}
}

// Resume runs when a higher slot was popped and this generator is active
// again. Time has passed, so every variant with a destination re-launches from
// wherever the agent is now.
func Resume(env Env, g *Generator, a *modelpkg.Agent) {
	switch g.Kind {
	case KindIdle:
		env.Halt(a)
	case KindPoint:
		g.point.launch(env, g, a)
	case KindChase:
		engage(g, a)
		g.chase.replan(env, g, a)
	case KindFollow:
		engage(g, a)
		g.follow.replan(env, g, a)
	case KindFlee, KindTimedFlee:
		engage(g, a)
		g.flee.replan(env, g, a)
	case KindEffect:
		g.effect.resume(env, g, a)
	}
}

// Handoff returns the generator that should take this one's slot after it
// finished, or nil to pop the slot.
func Handoff(g *Generator) *Generator {
	return g.handoff
}

func retryDelay(env Env) float64 {
	return tuning.MsToSeconds(env.Tuning().Path.RetryDelayMs)
}
