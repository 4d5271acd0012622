package gen

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/curve"
	"motionsync.ai/internal/sim/motion/launch"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

type PointOptions struct {
	UsePath  bool
	Velocity float64
	Walk     bool
	Facing   float64
	HasFace  bool
	// Local keeps the curve in the frame of the agent's transport so the
	// agent rides along after arrival. dest stays in world space.
	Local bool
}

type pointState struct {
	dest mgl64.Vec3
	opt  PointOptions

	splineID uint32
	retry    float64
	// pending is set while a launch is owed: after an immobilized halt or a
	// degraded path.
	pending bool
	failed  bool
}

// NewPoint moves to dest once and reports MOTION_DONE on arrival.
func NewPoint(ref string, dest mgl64.Vec3, opt PointOptions) *Generator {
	return &Generator{Kind: KindPoint, Ref: ref, point: &pointState{dest: dest, opt: opt}}
}

func (p *pointState) request() *launch.Request {
	req := launch.MoveTo(p.dest, p.opt.UsePath)
	req.Velocity = p.opt.Velocity
	req.Walk = p.opt.Walk
	req.TransportRelative = p.opt.Local
	if p.opt.HasFace {
		req.Facing = curve.Facing{Kind: curve.FacingAngle, Angle: p.opt.Facing}
	}
	return req
}

func (p *pointState) launch(env Env, g *Generator, a *modelpkg.Agent) {
	p.pending = true
	if a.Immobilized() {
		return
	}
	res := env.Launch(a, p.request())
	switch {
	case res.Launched():
		p.splineID = res.SplineID
		p.pending = false
	case errors.Is(res.Err, launch.ErrPathDegraded):
		p.retry = retryDelay(env)
	case errors.Is(res.Err, launch.ErrDegenerate):
		// Already standing on the destination.
		p.splineID = 0
		p.pending = false
	default:
		p.failed = true
		motionFail(env, g, a, protocol.ErrBuildFailed, errString(res.Err))
	}
}

func (p *pointState) update(env Env, g *Generator, a *modelpkg.Agent, dt float64) Status {
	if p.failed {
		return Failed
	}
	if holdImmobilized(env, a) {
		p.pending = true
		return Continue
	}
	if p.pending {
		if p.retry > 0 {
			p.retry -= dt
			if p.retry > 0 {
				return Continue
			}
		}
		p.launch(env, g, a)
		if p.failed {
			return Failed
		}
		if p.pending {
			return Continue
		}
	}
	if p.splineID != 0 && !a.Arrived(p.splineID) {
		if a.Moving() {
			return Continue
		}
		// Something else halted our curve; go again.
		p.launch(env, g, a)
		if p.failed {
			return Failed
		}
		return Continue
	}
	// Players learn about arrival from their own client; only creatures
	// report it.
	if a.Kind == modelpkg.KindCreature {
		motionDone(env, g, a)
	}
	return Finished
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
