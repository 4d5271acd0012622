package world

import (
	"encoding/json"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/launch"
	"motionsync.ai/internal/sim/tuning"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

// motionWorldEnv is the world as seen by the builder and the generators.
type motionWorldEnv struct {
	w *World
}

// Target serves the start-of-tick snapshot, never the live agent.
func (e motionWorldEnv) Target(id string) (modelpkg.TargetView, bool) {
	v, ok := e.w.views[id]
	return v, ok
}

func (e motionWorldEnv) FirstCollision(origin mgl64.Vec3, dist, angle float64) mgl64.Vec3 {
	return e.w.cfg.Nav.FirstCollision(origin, dist, angle)
}

func (e motionWorldEnv) Launch(a *modelpkg.Agent, req *launch.Request) launch.Result {
	return e.w.builder.Launch(a, req)
}

func (e motionWorldEnv) Halt(a *modelpkg.Agent) { e.w.builder.Stop(a) }

func (e motionWorldEnv) Rand() *rand.Rand { return e.w.rng }

func (e motionWorldEnv) Tuning() tuning.Tuning { return e.w.tune }

func (e motionWorldEnv) CurrentTick() uint64 { return e.w.tick.Load() }

func (e motionWorldEnv) ComputePath(a *modelpkg.Agent, from, to mgl64.Vec3, maxLength float64) ([]mgl64.Vec3, modelpkg.PathQuality) {
	return e.w.cfg.Nav.ComputePath(a, from, to, maxLength)
}

// Locate resolves facing targets against live positions.
func (e motionWorldEnv) Locate(id string) (mgl64.Vec3, bool) {
	st := e.w.agents[id]
	if st == nil {
		return mgl64.Vec3{}, false
	}
	return st.agent.Loc.Pos(), true
}

func (e motionWorldEnv) Transport(id string) (modelpkg.Transform, bool) {
	tr := e.w.transports[id]
	if tr == nil {
		return modelpkg.Transform{}, false
	}
	return tr.Frame(), true
}

func (e motionWorldEnv) SplineLaunched(msg protocol.MoveSplineMsg) {
	e.w.metricLaunches.Add(1)
	e.w.emitSync(msg)
}

func (e motionWorldEnv) SplineStopped(msg protocol.MoveStopMsg) {
	e.w.metricStops.Add(1)
	e.w.emitSync(msg)
}

func (w *World) emitSync(msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		w.logger.Printf("tick %d: encode sync message: %v", w.tick.Load(), err)
		return
	}
	w.sync = append(w.sync, b)
}
