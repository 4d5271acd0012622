package gen

import (
	"motionsync.ai/internal/protocol"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

func motionDone(env Env, g *Generator, a *modelpkg.Agent) {
	a.AddEvent(protocol.Event{
		"t":        env.CurrentTick(),
		"type":     protocol.EventMotionDone,
		"agent_id": a.ID,
		"kind":     g.Kind.String(),
		"ref":      g.Ref,
	})
}

func motionFail(env Env, g *Generator, a *modelpkg.Agent, code, message string) {
	a.AddEvent(protocol.Event{
		"t":        env.CurrentTick(),
		"type":     protocol.EventMotionFail,
		"agent_id": a.ID,
		"kind":     g.Kind.String(),
		"ref":      g.Ref,
		"code":     code,
		"message":  message,
	})
}

// targetLost stops the agent where it is and reports the failure. The caller
// returns Failed in the same tick.
func targetLost(env Env, g *Generator, a *modelpkg.Agent, id string) Status {
	env.Halt(a)
	motionFail(env, g, a, protocol.ErrTargetLost, "target "+id+" not found")
	return Failed
}

// holdImmobilized halts a rooted or stunned agent once and reports whether
// replanning must be skipped this tick.
func holdImmobilized(env Env, a *modelpkg.Agent) bool {
	if !a.Immobilized() {
		return false
	}
	if a.Moving() {
		env.Halt(a)
	}
	return true
}
