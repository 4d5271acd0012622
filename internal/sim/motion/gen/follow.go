package gen

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/sim/motion/launch"
	"motionsync.ai/internal/sim/tuning"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
	"motionsync.ai/internal/sim/world/logic/mathx"
)

type followState struct {
	targetID string
	distance float64
	// angle is relative to the target's orientation; 0 is in front, π behind.
	angle float64

	lastTarget mgl64.Vec3
	planned    bool
	recheck    float64
	retry      float64
}

// NewFollow keeps a fixed offset from a target. distance <= 0 uses
// Follow.Distance.
func NewFollow(ref, targetID string, distance, angle float64) *Generator {
	return &Generator{Kind: KindFollow, Ref: ref, follow: &followState{targetID: targetID, distance: distance, angle: angle}}
}

func (f *followState) slot(env Env, target modelpkg.TargetView) mgl64.Vec3 {
	d := f.distance
	if d <= 0 {
		d = env.Tuning().Follow.Distance
	}
	return mathx.Offset(target.Pos, d, target.Orientation+f.angle)
}

func (f *followState) update(env Env, g *Generator, a *modelpkg.Agent, dt float64) Status {
	target, ok := env.Target(f.targetID)
	if !ok || !target.Alive {
		return targetLost(env, g, a, f.targetID)
	}
	if holdImmobilized(env, a) {
		f.planned = false
		return Continue
	}
	if f.retry > 0 {
		f.retry -= dt
		if f.retry > 0 {
			return Continue
		}
		f.replanTo(env, a, target)
		return Continue
	}
	if !f.planned {
		f.replanTo(env, a, target)
		return Continue
	}
	// Rechecks are timer gated so a stationary target does not cause jitter.
	f.recheck -= dt
	if f.recheck > 0 {
		return Continue
	}
	f.recheck = recheckInterval(env)
	tn := env.Tuning().Follow
	moved := mathx.Dist2D(target.Pos, f.lastTarget) > tn.RecheckDistance
	strayed := !a.Moving() && mathx.Dist2D(a.Pos(), f.slot(env, target)) > tn.RecheckDistance
	if moved || strayed {
		f.replanTo(env, a, target)
	}
	return Continue
}

func (f *followState) replan(env Env, g *Generator, a *modelpkg.Agent) {
	f.planned = false
	target, ok := env.Target(f.targetID)
	if !ok || !target.Alive || a.Immobilized() {
		return
	}
	f.replanTo(env, a, target)
}

func (f *followState) replanTo(env Env, a *modelpkg.Agent, target modelpkg.TargetView) {
	f.retry = 0
	f.recheck = recheckInterval(env)
	f.lastTarget = target.Pos
	f.planned = true

	dest := f.slot(env, target)
	if mathx.Dist2D(a.Pos(), dest) <= rangeSlack {
		return
	}
	req := launch.MoveTo(dest, true)
	// Match the leader's gait.
	req.Walk = target.Walking
	res := env.Launch(a, req)
	if errors.Is(res.Err, launch.ErrPathDegraded) {
		f.retry = retryDelay(env)
	}
}

func recheckInterval(env Env) float64 {
	return tuning.MsToSeconds(env.Tuning().Follow.RecheckIntervalMs)
}
