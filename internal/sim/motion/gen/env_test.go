package gen

import (
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/launch"
	"motionsync.ai/internal/sim/tuning"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
	"motionsync.ai/internal/sim/world/logic/mathx"
)

// stubWorld backs both the builder and the generators: straight-line paths,
// no obstacles, targets from a map.
type stubWorld struct {
	tick    uint64
	tune    tuning.Tuning
	rng     *rand.Rand
	quality modelpkg.PathQuality
	targets map[string]modelpkg.TargetView
	builder *launch.Builder

	launches int
	splines  []protocol.MoveSplineMsg
	stops    []protocol.MoveStopMsg
}

func newStubWorld() *stubWorld {
	w := &stubWorld{
		tune:    tuning.Defaults(),
		rng:     mathx.NewRand(1337, "gen-test"),
		targets: map[string]modelpkg.TargetView{},
	}
	w.builder = launch.NewBuilder(w, w, w.tune)
	return w
}

func (w *stubWorld) ComputePath(_ *modelpkg.Agent, _, to mgl64.Vec3, _ float64) ([]mgl64.Vec3, modelpkg.PathQuality) {
	return []mgl64.Vec3{to}, w.quality
}

func (w *stubWorld) Locate(id string) (mgl64.Vec3, bool) {
	t, ok := w.targets[id]
	return t.Pos, ok
}

func (w *stubWorld) Transport(string) (modelpkg.Transform, bool) { return modelpkg.Transform{}, false }
func (w *stubWorld) CurrentTick() uint64                         { return w.tick }

func (w *stubWorld) SplineLaunched(m protocol.MoveSplineMsg) { w.splines = append(w.splines, m) }
func (w *stubWorld) SplineStopped(m protocol.MoveStopMsg)    { w.stops = append(w.stops, m) }

func (w *stubWorld) Target(id string) (modelpkg.TargetView, bool) {
	t, ok := w.targets[id]
	return t, ok
}

func (w *stubWorld) FirstCollision(origin mgl64.Vec3, dist, angle float64) mgl64.Vec3 {
	return mathx.Offset(origin, dist, angle)
}

func (w *stubWorld) Launch(a *modelpkg.Agent, req *launch.Request) launch.Result {
	w.launches++
	return w.builder.Launch(a, req)
}

func (w *stubWorld) Halt(a *modelpkg.Agent) { w.builder.Stop(a) }
func (w *stubWorld) Rand() *rand.Rand       { return w.rng }
func (w *stubWorld) Tuning() tuning.Tuning  { return w.tune }
func (w *stubWorld) put(id string, p mgl64.Vec3) {
	w.targets[id] = modelpkg.TargetView{ID: id, Pos: p, Alive: true}
}

// advance moves a along its curve the way the tick loop does.
func (w *stubWorld) advance(a *modelpkg.Agent, dt float64) {
	if a.Spline == nil {
		return
	}
	a.Spline.Advance(dt, nil)
	a.Loc = modelpkg.LocationAt(w.builder.WorldPosition(a), w.builder.WorldOrientation(a))
	if a.Spline.Finalized() {
		a.Flags.Clear(modelpkg.FlagsMotion)
	}
}

func newAgent(id string, pos mgl64.Vec3) *modelpkg.Agent {
	return &modelpkg.Agent{
		ID:     id,
		Loc:    modelpkg.LocationAt(pos, 0),
		Speeds: modelpkg.SpeedTableFrom(tuning.Defaults().Speeds),
	}
}

func lastEvent(a *modelpkg.Agent) protocol.Event {
	if len(a.Events) == 0 {
		return nil
	}
	return a.Events[len(a.Events)-1]
}
