package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/sim/motion/curve"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

// Transport is a moving platform. It loops along its own cyclic curve and
// carries riders whose curves are expressed in its frame.
type Transport struct {
	ID    string
	path  *curve.Curve
	frame modelpkg.Transform
}

type TransportSpec struct {
	ID       string       `json:"id"`
	Route    [][3]float64 `json:"route"`
	Velocity float64      `json:"velocity"`
}

func (w *World) AddTransport(spec TransportSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("transport: missing id")
	}
	if _, ok := w.transports[spec.ID]; ok {
		return fmt.Errorf("transport %s exists", spec.ID)
	}
	pts := make([]mgl64.Vec3, len(spec.Route))
	for i, p := range spec.Route {
		pts[i] = mgl64.Vec3(p)
	}
	var tr *Transport
	switch len(pts) {
	case 0:
		return fmt.Errorf("transport %s: empty route", spec.ID)
	case 1:
		tr = &Transport{ID: spec.ID, path: curve.Stopped(pts[0], 0)}
	default:
		c, err := curve.New(curve.Params{Points: pts, Cyclic: true, Velocity: spec.Velocity})
		if err != nil {
			return fmt.Errorf("transport %s: %w", spec.ID, err)
		}
		tr = &Transport{ID: spec.ID, path: c}
	}
	tr.refresh()
	w.transports[spec.ID] = tr
	w.metricTransports.Store(int64(len(w.transports)))
	return nil
}

func (t *Transport) Frame() modelpkg.Transform { return t.frame }

func (t *Transport) advance(dt float64) {
	t.path.Advance(dt, nil)
	t.refresh()
}

func (t *Transport) refresh() {
	at := t.path.Elapsed()
	t.frame = modelpkg.Transform{Origin: t.path.EvaluatePosition(at), Yaw: t.path.FacingAt(at, nil)}
}
