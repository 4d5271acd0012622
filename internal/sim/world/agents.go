package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/sim/motion/curve"
	"motionsync.ai/internal/sim/motion/stack"
	"motionsync.ai/internal/sim/tuning"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

// AgentSpec describes an agent to spawn.
type AgentSpec struct {
	ID             string         `json:"id"`
	Player         bool           `json:"player,omitempty"`
	Pos            [3]float64     `json:"pos"`
	Orientation    float64        `json:"orientation,omitempty"`
	CanFly         bool           `json:"can_fly,omitempty"`
	CanSwim        bool           `json:"can_swim,omitempty"`
	Speeds         *tuning.Speeds `json:"speeds,omitempty"`
	BoundingRadius float64        `json:"bounding_radius,omitempty"`
	TransportID    string         `json:"transport_id,omitempty"`
	CombatTarget   string         `json:"combat_target,omitempty"`
}

func (w *World) spawn(spec AgentSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("spawn: missing id")
	}
	if _, ok := w.agents[spec.ID]; ok {
		return fmt.Errorf("spawn: agent %s exists", spec.ID)
	}
	if spec.TransportID != "" && w.transports[spec.TransportID] == nil {
		return fmt.Errorf("spawn: transport %s not found", spec.TransportID)
	}
	speeds := w.tune.Speeds
	if spec.Speeds != nil {
		speeds = *spec.Speeds
	}
	a := &modelpkg.Agent{
		ID:             spec.ID,
		Loc:            modelpkg.LocationAt(mgl64.Vec3(spec.Pos), spec.Orientation),
		Caps:           modelpkg.Capabilities{CanFly: spec.CanFly, CanSwim: spec.CanSwim},
		Speeds:         modelpkg.SpeedTableFrom(speeds),
		BoundingRadius: spec.BoundingRadius,
		TransportID:    spec.TransportID,
		CombatTarget:   spec.CombatTarget,
	}
	if spec.Player {
		a.Kind = modelpkg.KindPlayer
	}
	w.agents[a.ID] = &agentState{agent: a, stack: stack.New(a.ID)}
	w.views[a.ID] = a.View()
	w.resort()
	return nil
}

func (w *World) despawn(id string) bool {
	st := w.agents[id]
	if st == nil {
		return false
	}
	delete(w.agents, id)
	delete(w.views, id)
	w.resort()
	return true
}

// snapshotViews captures every agent as it stands at the start of the tick.
func (w *World) snapshotViews() {
	for id, st := range w.agents {
		w.views[id] = st.agent.View()
	}
}

// advanceCurve moves the agent along its curve and refreshes its location.
func (w *World) advanceCurve(a *modelpkg.Agent, dt float64) {
	a.SplineEvents = a.SplineEvents[:0]
	if a.Spline == nil {
		return
	}
	a.Spline.Advance(dt, func(e curve.Event) {
		a.SplineEvents = append(a.SplineEvents, e)
	})
	a.Loc = modelpkg.LocationAt(w.builder.WorldPosition(a), w.builder.WorldOrientation(a))
	if a.Spline.Finalized() {
		a.Flags.Clear(modelpkg.FlagsMotion)
	}
}
