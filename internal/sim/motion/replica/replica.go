// Package replica rebuilds trajectories from the MOVE_SPLINE / MOVE_STOP
// stream alone, the way an observer client does.
package replica

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/curve"
	"motionsync.ai/internal/sim/motion/launch"
	"motionsync.ai/internal/sim/world/io/digestcodec"
)

type track struct {
	spline    *curve.Curve
	transport string
	walk      bool
	lastID    uint32
	// msg is the wire message the current curve was built from.
	msg json.RawMessage
}

// Replica holds one reconstructed curve per agent.
type Replica struct {
	tracks map[string]*track
}

func New() *Replica {
	return &Replica{tracks: map[string]*track{}}
}

// Apply installs a decoded sync message. Messages whose spline id is not newer
// than the last one seen for that agent are ignored and reported as not
// applied.
func (r *Replica) Apply(msg any) (bool, error) {
	switch m := msg.(type) {
	case protocol.MoveSplineMsg:
		return r.applySpline(m)
	case *protocol.MoveSplineMsg:
		return r.applySpline(*m)
	case protocol.MoveStopMsg:
		return r.applyStop(m), nil
	case *protocol.MoveStopMsg:
		return r.applyStop(*m), nil
	case protocol.AgentLeaveMsg:
		return r.remove(m.AgentID), nil
	case *protocol.AgentLeaveMsg:
		return r.remove(m.AgentID), nil
	}
	return false, fmt.Errorf("replica: unsupported message %T", msg)
}

// ApplyRaw decodes and installs a wire message.
func (r *Replica) ApplyRaw(b []byte) (bool, error) {
	msg, err := protocol.DecodeSync(b)
	if err != nil {
		return false, err
	}
	return r.Apply(msg)
}

func (r *Replica) stale(agentID string, id uint32) (*track, bool) {
	t := r.tracks[agentID]
	if t == nil {
		t = &track{}
		r.tracks[agentID] = t
		return t, false
	}
	return t, id <= t.lastID
}

func (r *Replica) applySpline(m protocol.MoveSplineMsg) (bool, error) {
	if m.AgentID == "" {
		return false, fmt.Errorf("replica: MOVE_SPLINE without agent_id")
	}
	t, old := r.stale(m.AgentID, m.SplineID)
	if old {
		return false, nil
	}
	c, err := curve.New(launch.ParamsFromMsg(m))
	if err != nil {
		return false, fmt.Errorf("replica: agent %s spline %d: %w", m.AgentID, m.SplineID, err)
	}
	c.SetID(m.SplineID)
	m.Type = protocol.TypeMoveSpline
	t.msg, _ = json.Marshal(m)
	t.spline = c
	t.transport = ""
	if m.TransportRelative {
		t.transport = m.TransportID
	}
	t.walk = m.Walk
	t.lastID = m.SplineID
	return true, nil
}

func (r *Replica) applyStop(m protocol.MoveStopMsg) bool {
	t, old := r.stale(m.AgentID, m.SplineID)
	if old {
		return false
	}
	c := curve.Stopped(mgl64.Vec3(m.Pos), m.Orientation)
	c.SetID(m.SplineID)
	m.Type = protocol.TypeMoveStop
	t.msg, _ = json.Marshal(m)
	t.spline = c
	t.transport = m.TransportID
	t.walk = false
	t.lastID = m.SplineID
	return true
}

// Advance moves every curve forward by dt, in agent id order.
func (r *Replica) Advance(dt float64) {
	for _, id := range r.Agents() {
		if c := r.tracks[id].spline; c != nil {
			c.Advance(dt, nil)
		}
	}
}

// Remove forgets an agent that left.
func (r *Replica) Remove(agentID string) { r.remove(agentID) }

func (r *Replica) remove(agentID string) bool {
	_, ok := r.tracks[agentID]
	delete(r.tracks, agentID)
	return ok
}

func (r *Replica) Agents() []string {
	ids := make([]string, 0, len(r.tracks))
	for id := range r.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Position is the agent's current position in its curve's frame, with the
// transport that frame belongs to ("" for world).
func (r *Replica) Position(agentID string) (pos mgl64.Vec3, transport string, ok bool) {
	t := r.tracks[agentID]
	if t == nil || t.spline == nil {
		return mgl64.Vec3{}, "", false
	}
	return t.spline.EvaluatePosition(t.spline.Elapsed()), t.transport, true
}

// Orientation evaluates the agent's facing, in its curve's frame. Target
// facings resolve against other replicated agents in the same frame; a
// target in another frame falls back to the path tangent.
func (r *Replica) Orientation(agentID string) (float64, bool) {
	t := r.tracks[agentID]
	if t == nil || t.spline == nil {
		return 0, false
	}
	return t.spline.FacingAt(t.spline.Elapsed(), frameLocator{r: r, transport: t.transport}), true
}

// Locate implements curve.Locator over replicated positions, each in its own
// curve's frame.
func (r *Replica) Locate(id string) (mgl64.Vec3, bool) {
	p, _, ok := r.Position(id)
	return p, ok
}

// frameLocator only resolves agents whose curves share its frame. The stream
// carries no transport poses, so other frames cannot be related.
type frameLocator struct {
	r         *Replica
	transport string
}

func (f frameLocator) Locate(id string) (mgl64.Vec3, bool) {
	p, transport, ok := f.r.Position(id)
	if !ok || transport != f.transport {
		return mgl64.Vec3{}, false
	}
	return p, true
}

func (r *Replica) SplineID(agentID string) uint32 {
	if t := r.tracks[agentID]; t != nil {
		return t.lastID
	}
	return 0
}

// Digest hashes the replicated state with the same codec the simulation uses.
func (r *Replica) Digest(tick uint64) string {
	samples := make([]digestcodec.Sample, 0, len(r.tracks))
	for id, t := range r.tracks {
		if t.spline == nil {
			continue
		}
		samples = append(samples, digestcodec.CurveSample(id, t.spline))
	}
	return digestcodec.Trajectories(tick, samples)
}

// ReplayTick applies one journaled tick: departures, the elapsed step, then
// the messages emitted during that tick. It returns the resulting digest.
func (r *Replica) ReplayTick(tick uint64, dt float64, sync []json.RawMessage, leaves []string) (string, error) {
	for _, id := range leaves {
		r.Remove(id)
	}
	r.Advance(dt)
	for i, raw := range sync {
		if _, err := r.ApplyRaw(raw); err != nil {
			return "", fmt.Errorf("tick %d sync[%d]: %w", tick, i, err)
		}
	}
	return r.Digest(tick), nil
}

// TrackState is one agent's replicated curve: the message that launched it
// and how far it has run.
type TrackState struct {
	AgentID   string          `json:"agent_id"`
	Msg       json.RawMessage `json:"msg"`
	Elapsed   float64         `json:"elapsed"`
	Cycles    int             `json:"cycles"`
	Finalized bool            `json:"finalized"`
}

// Checkpoint captures every track in agent id order.
func (r *Replica) Checkpoint() []TrackState {
	out := make([]TrackState, 0, len(r.tracks))
	for _, id := range r.Agents() {
		t := r.tracks[id]
		if t.spline == nil || len(t.msg) == 0 {
			continue
		}
		out = append(out, TrackState{
			AgentID:   id,
			Msg:       append(json.RawMessage(nil), t.msg...),
			Elapsed:   t.spline.Elapsed(),
			Cycles:    t.spline.Cycles(),
			Finalized: t.spline.Finalized(),
		})
	}
	return out
}

// Restore replaces the replica's state with a checkpoint.
func (r *Replica) Restore(states []TrackState) error {
	r.tracks = map[string]*track{}
	for _, st := range states {
		if _, err := r.ApplyRaw(st.Msg); err != nil {
			return fmt.Errorf("replica: restore %s: %w", st.AgentID, err)
		}
		t := r.tracks[st.AgentID]
		if t == nil || t.spline == nil {
			return fmt.Errorf("replica: restore %s: message is for another agent", st.AgentID)
		}
		if err := t.spline.Restore(st.Elapsed, st.Cycles, st.Finalized); err != nil {
			return fmt.Errorf("replica: restore %s: %w", st.AgentID, err)
		}
	}
	return nil
}
