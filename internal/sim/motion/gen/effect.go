package gen

import (
	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/launch"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

type effectState struct {
	// req is launched on activation. Without one the effect adopts whatever
	// curve is running when it activates.
	req *launch.Request

	splineID uint32
	started  bool
	failed   bool
}

// NewEffect plays a one-off forced trajectory (knockback, jump, scripted
// path) and finishes when it ends. A cyclic req keeps the effect running and
// is re-launched on resume.
func NewEffect(ref string, req *launch.Request) *Generator {
	return &Generator{Kind: KindEffect, Ref: ref, effect: &effectState{req: req}}
}

func (e *effectState) launch(env Env, g *Generator, a *modelpkg.Agent) {
	e.started = true
	if e.req == nil {
		if a.Moving() {
			e.splineID = a.Spline.ID()
		}
		return
	}
	req := *e.req
	res := env.Launch(a, &req)
	if !res.Launched() {
		e.failed = true
		motionFail(env, g, a, protocol.ErrBuildFailed, errString(res.Err))
		return
	}
	e.splineID = res.SplineID
}

func (e *effectState) resume(env Env, g *Generator, a *modelpkg.Agent) {
	if e.req != nil && e.req.Cyclic {
		e.launch(env, g, a)
		return
	}
	if !e.started {
		e.launch(env, g, a)
	}
}

func (e *effectState) update(env Env, g *Generator, a *modelpkg.Agent) Status {
	if e.failed {
		return Failed
	}
	if !e.started {
		e.launch(env, g, a)
		if e.failed {
			return Failed
		}
	}
	if e.splineID == 0 || a.Spline == nil || a.Spline.ID() != e.splineID || a.Spline.Finalized() {
		return Finished
	}
	return Continue
}
