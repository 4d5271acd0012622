package gen

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/sim/motion/launch"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
	"motionsync.ai/internal/sim/world/logic/mathx"
)

// rangeSlack absorbs float error when checking whether a chaser already stands
// at contact range.
const rangeSlack = 0.01

type chaseState struct {
	targetID string
	// contact overrides Chase.ContactRange when > 0.
	contact float64

	lastTarget mgl64.Vec3
	planned    bool
	retry      float64
}

// NewChase closes to contact range of a live target and keeps tracking it.
func NewChase(ref, targetID string, contact float64) *Generator {
	return &Generator{Kind: KindChase, Ref: ref, chase: &chaseState{targetID: targetID, contact: contact}}
}

func (c *chaseState) TargetID() string { return c.targetID }

func (c *chaseState) contactRange(env Env) float64 {
	if c.contact > 0 {
		return c.contact
	}
	return env.Tuning().Chase.ContactRange
}

func (c *chaseState) update(env Env, g *Generator, a *modelpkg.Agent, dt float64) Status {
	target, ok := env.Target(c.targetID)
	if !ok || !target.Alive {
		return targetLost(env, g, a, c.targetID)
	}
	if holdImmobilized(env, a) {
		c.planned = false
		return Continue
	}
	if c.retry > 0 {
		c.retry -= dt
		if c.retry > 0 {
			return Continue
		}
		c.replanTo(env, a, target)
		return Continue
	}
	if c.needsReplan(env, a, target) {
		c.replanTo(env, a, target)
	}
	return Continue
}

func (c *chaseState) needsReplan(env Env, a *modelpkg.Agent, target modelpkg.TargetView) bool {
	if !c.planned {
		return true
	}
	if mathx.Dist2D(target.Pos, c.lastTarget) > env.Tuning().Chase.RecheckDistance {
		return true
	}
	if !a.Moving() && mathx.Dist2D(a.Pos(), target.Pos) > c.contactRange(env)+rangeSlack {
		return true
	}
	return false
}

func (c *chaseState) replan(env Env, g *Generator, a *modelpkg.Agent) {
	c.planned = false
	target, ok := env.Target(c.targetID)
	if !ok || !target.Alive || a.Immobilized() {
		// update reports the loss or waits out the root.
		return
	}
	c.replanTo(env, a, target)
}

func (c *chaseState) replanTo(env Env, a *modelpkg.Agent, target modelpkg.TargetView) {
	c.retry = 0
	c.lastTarget = target.Pos
	c.planned = true

	contact := c.contactRange(env)
	pos := a.Pos()
	if mathx.Dist2D(pos, target.Pos) <= contact+rangeSlack {
		return
	}
	res := env.Launch(a, launch.MoveTo(contactPoint(pos, target, contact), true))
	if errors.Is(res.Err, launch.ErrPathDegraded) {
		c.retry = retryDelay(env)
	}
}

// contactPoint is the spot at distance contact from the target on the chaser's
// side.
func contactPoint(from mgl64.Vec3, target modelpkg.TargetView, contact float64) mgl64.Vec3 {
	angle := target.Orientation
	if mathx.Dist2D(from, target.Pos) > 1e-9 {
		angle = mathx.AngleTo(target.Pos, from)
	}
	return mgl64.Vec3{
		target.Pos.X() + contact*math.Cos(angle),
		target.Pos.Y() + contact*math.Sin(angle),
		target.Pos.Z(),
	}
}
