package gen

import (
	"errors"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/sim/motion/launch"
	"motionsync.ai/internal/sim/tuning"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
	"motionsync.ai/internal/sim/world/logic/mathx"
)

type fleeState struct {
	// frightID is the agent being fled from. Empty means wander in panic with
	// no source.
	frightID string

	timer float64

	// Timed variant only.
	remaining     float64
	restoreTarget string
}

// NewFlee runs from frightID until popped.
func NewFlee(ref, frightID string) *Generator {
	return &Generator{Kind: KindFlee, Ref: ref, flee: &fleeState{frightID: frightID}}
}

// NewTimedFlee runs from frightID for seconds, then turns back on the agent's
// combat target.
func NewTimedFlee(ref, frightID string, seconds float64) *Generator {
	return &Generator{Kind: KindTimedFlee, Ref: ref, flee: &fleeState{frightID: frightID, remaining: seconds}}
}

func (f *fleeState) activate(a *modelpkg.Agent) {
	a.Flags.Set(modelpkg.FlagFleeing)
	if f.restoreTarget == "" {
		f.restoreTarget = a.CombatTarget
	}
	a.CombatTarget = ""
}

func (f *fleeState) deactivate(a *modelpkg.Agent) {
	a.Flags.Clear(modelpkg.FlagFleeing)
	if a.CombatTarget == "" {
		a.CombatTarget = f.restoreTarget
	}
}

func (f *fleeState) update(env Env, g *Generator, a *modelpkg.Agent, dt float64) Status {
	var src modelpkg.TargetView
	if f.frightID != "" {
		t, ok := env.Target(f.frightID)
		if !ok || !t.Alive {
			return targetLost(env, g, a, f.frightID)
		}
		src = t
	}
	if g.Kind == KindTimedFlee {
		f.remaining -= dt
		if f.remaining <= 0 {
			f.expire(env, g, a)
			return Finished
		}
	}
	if holdImmobilized(env, a) {
		return Continue
	}
	f.timer -= dt
	if f.timer > 0 && a.Moving() {
		return Continue
	}
	f.plan(env, a, src)
	return Continue
}

// expire restores the combat target and queues a chase against it.
func (f *fleeState) expire(env Env, g *Generator, a *modelpkg.Agent) {
	a.Flags.Clear(modelpkg.FlagFleeing)
	a.CombatTarget = f.restoreTarget
	if f.restoreTarget == "" {
		return
	}
	if t, ok := env.Target(f.restoreTarget); ok && t.Alive {
		g.handoff = NewChase(g.Ref, f.restoreTarget, 0)
	}
}

func (f *fleeState) replan(env Env, g *Generator, a *modelpkg.Agent) {
	var src modelpkg.TargetView
	if f.frightID != "" {
		t, ok := env.Target(f.frightID)
		if !ok || !t.Alive {
			return
		}
		src = t
	}
	if a.Immobilized() {
		return
	}
	f.plan(env, a, src)
}

func (f *fleeState) plan(env Env, a *modelpkg.Agent, src modelpkg.TargetView) {
	tn := env.Tuning()
	r := env.Rand()
	pos := a.Pos()
	dist, angle := fleeStep(tn.Flee, r, pos, src, f.frightID != "")
	dest := env.FirstCollision(pos, dist, angle)

	res := env.Launch(a, launch.MoveTo(dest, true))
	switch {
	case res.Launched():
		f.timer = mathx.RandRange(r, tuning.MsToSeconds(tn.Flee.ReplanMinMs), tuning.MsToSeconds(tn.Flee.ReplanMaxMs))
	case errors.Is(res.Err, launch.ErrPathDegraded):
		f.timer = retryDelay(env)
	default:
		// Boxed in or pinned against a wall; try another direction soon.
		f.timer = tuning.MsToSeconds(tn.Flee.ReplanMinMs)
	}
}

// fleeStep picks the distance and planar heading of the next flee leg.
func fleeStep(tn tuning.Flee, r *rand.Rand, pos mgl64.Vec3, src modelpkg.TargetView, hasSource bool) (float64, float64) {
	span := tn.MaxQuiet - tn.MinQuiet
	if !hasSource {
		return mathx.RandRange(r, tn.InsideScale[0], tn.InsideScale[1]) * span, mathx.RandRange(r, 0, mathx.TwoPi)
	}
	d := mathx.Dist2D(pos, src.Pos)
	away := src.Orientation
	if d > 1e-9 {
		away = mathx.AngleTo(src.Pos, pos)
	}
	switch {
	case d < tn.MinQuiet:
		j := deg(tn.NearJitterDeg)
		return mathx.RandRange(r, tn.NearScale[0], tn.NearScale[1]) * (tn.MinQuiet - d),
			away + mathx.RandRange(r, -j, j)
	case d > tn.MaxQuiet:
		j := deg(tn.FarJitterDeg)
		return mathx.RandRange(r, tn.FarScale[0], tn.FarScale[1]) * span,
			away + math.Pi + mathx.RandRange(r, -j, j)
	}
	return mathx.RandRange(r, tn.InsideScale[0], tn.InsideScale[1]) * span, mathx.RandRange(r, 0, mathx.TwoPi)
}

func deg(d float64) float64 { return d * math.Pi / 180 }
