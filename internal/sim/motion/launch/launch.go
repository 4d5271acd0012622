// Package launch turns movement requests into running curves and the sync
// messages that let observers rebuild them.
package launch

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/curve"
	"motionsync.ai/internal/sim/tuning"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
	"motionsync.ai/internal/sim/world/logic/mathx"
)

var (
	ErrDegenerate   = errors.New("launch: fewer than 2 usable waypoints")
	ErrBadVelocity  = errors.New("launch: velocity must be finite and > 0")
	ErrPathDegraded = errors.New("launch: pathfinder returned a degraded path")
	ErrImmobilized  = errors.New("launch: agent is immobilized")
	ErrNoTransport  = errors.New("launch: transport not found")
	ErrConsumed     = errors.New("launch: request already launched")
)

// pointEpsilon collapses consecutive waypoints closer than this.
const pointEpsilon = 1e-6

type Pathfinder interface {
	ComputePath(a *modelpkg.Agent, from, to mgl64.Vec3, maxLength float64) ([]mgl64.Vec3, modelpkg.PathQuality)
}

type Env interface {
	Pathfinder
	curve.Locator
	Transport(id string) (modelpkg.Transform, bool)
	CurrentTick() uint64
}

type Sink interface {
	SplineLaunched(msg protocol.MoveSplineMsg)
	SplineStopped(msg protocol.MoveStopMsg)
}

type Builder struct {
	env  Env
	sink Sink
	tune tuning.Tuning
}

func NewBuilder(env Env, sink Sink, tune tuning.Tuning) *Builder {
	return &Builder{env: env, sink: sink, tune: tune}
}

func (b *Builder) Tuning() tuning.Tuning { return b.tune }

// Result reports a launch. Duration 0 means nothing was launched and the agent
// was left untouched; it never means instant arrival.
type Result struct {
	Duration float64
	SplineID uint32
	Quality  modelpkg.PathQuality
	Err      error
}

func (r Result) Launched() bool { return r.Duration > 0 }

func failed(err error) Result { return Result{Err: err} }

// Launch consumes req and replaces the agent's running curve. The new curve
// starts at the old curve's current interpolated position.
func (b *Builder) Launch(a *modelpkg.Agent, req *Request) Result {
	if a == nil || req == nil {
		return failed(ErrDegenerate)
	}
	if req.consumed {
		return failed(ErrConsumed)
	}
	req.consumed = true

	if a.Immobilized() && !req.Forced {
		return failed(ErrImmobilized)
	}

	var tr modelpkg.Transform
	if req.TransportRelative {
		var ok bool
		if a.TransportID != "" {
			tr, ok = b.env.Transport(a.TransportID)
		}
		if !ok || !tr.Valid() {
			return failed(ErrNoTransport)
		}
	}

	start := b.WorldPosition(a)
	pts := []mgl64.Vec3{start}
	switch {
	case len(req.Points) > 0:
		pts = append(pts, req.Points...)
	case req.UsePath:
		maxLen := req.MaxPathLength
		if maxLen <= 0 {
			maxLen = b.tune.Path.MaxLength
		}
		path, q := b.env.ComputePath(a, start, req.Dest, maxLen)
		if q != modelpkg.PathNormal {
			return Result{Quality: q, Err: ErrPathDegraded}
		}
		pts = append(pts, path...)
	default:
		pts = append(pts, req.Dest)
	}
	pts = collapse(pts)
	if len(pts) < 2 {
		return failed(ErrDegenerate)
	}

	flags := a.Flags
	flags.Clear(modelpkg.FlagsMotion | modelpkg.FlagWalking)
	if req.Walk {
		flags.Set(modelpkg.FlagWalking)
	}
	if !a.Flags.Has(modelpkg.FlagRooted) {
		if req.Backward {
			flags.Set(modelpkg.FlagBackward)
		} else {
			flags.Set(modelpkg.FlagForward)
		}
	}

	velocity := req.Velocity
	if velocity <= 0 {
		velocity = a.Speeds.For(flags, a.Caps)
	}
	if !(velocity > 0) || math.IsInf(velocity, 0) {
		return failed(ErrBadVelocity)
	}

	var vertical curve.Vertical
	switch {
	case req.Fall:
		drop := pts[0].Z() - pts[len(pts)-1].Z()
		if drop > 0 {
			g := b.tune.Gravity
			vertical = curve.Vertical{Kind: curve.VerticalFall, Accel: g}
			velocity = chordLength(pts) / math.Sqrt(2*drop/g)
			flags.Set(modelpkg.FlagFalling)
		}
	}

	facing := req.Facing
	orient := a.Loc.O
	transportID := ""
	if req.TransportRelative {
		transportID = a.TransportID
		for i := range pts {
			pts[i] = tr.ToLocal(pts[i])
		}
		switch facing.Kind {
		case curve.FacingAngle:
			facing.Angle = tr.AngleToLocal(facing.Angle)
		case curve.FacingPoint:
			facing.Point = tr.ToLocal(facing.Point)
		}
		orient = tr.AngleToLocal(orient)
	}

	params := curve.Params{
		Points:      pts,
		Mode:        req.Mode,
		Cyclic:      req.Cyclic,
		Facing:      facing,
		Velocity:    velocity,
		Vertical:    vertical,
		Orientation: orient,
	}
	c, err := curve.New(params)
	if err == nil && req.JumpHeight > 0 && !req.Fall {
		// The arc peaks at D/2, so the height fixes the acceleration once
		// the duration is known.
		d := c.Duration()
		params.Vertical = curve.Vertical{Kind: curve.VerticalParabolic, Accel: 8 * req.JumpHeight / (d * d)}
		c, err = curve.New(params)
	}
	if err != nil {
		return failed(fmt.Errorf("launch: %w", err))
	}

	id := a.NextSplineID()
	c.SetID(id)
	a.Spline = c
	a.SplineTransport = transportID
	a.SplineEvents = nil
	a.Flags = flags | modelpkg.FlagSplineActive

	if b.sink != nil {
		b.sink.SplineLaunched(b.launchMsg(a, c, req.Walk))
	}
	return Result{Duration: c.Duration(), SplineID: id}
}

// Stop halts the running curve at its exact interpolated position. It reports
// false, and emits nothing, when the agent was not moving.
func (b *Builder) Stop(a *modelpkg.Agent) bool {
	if a == nil {
		return false
	}
	if !a.Moving() {
		a.Flags.Clear(modelpkg.FlagsMotion)
		return false
	}
	// A rider halts in its platform's frame and keeps moving with it.
	pos, o := a.Spline.Halt(b.locator(a))
	id := a.NextSplineID()
	a.Spline = curve.Stopped(pos, o)
	a.Spline.SetID(id)
	a.SplineEvents = nil
	a.Loc = modelpkg.LocationAt(b.toWorld(a, pos), b.angleToWorld(a, o))
	a.Flags.Clear(modelpkg.FlagsMotion)

	if b.sink != nil {
		b.sink.SplineStopped(protocol.MoveStopMsg{
			Type:            protocol.TypeMoveStop,
			ProtocolVersion: protocol.Version,
			Tick:            b.env.CurrentTick(),
			AgentID:         a.ID,
			SplineID:        id,
			Pos:             vec3Array(pos),
			Orientation:     o,
			TransportID:     a.SplineTransport,
		})
	}
	return true
}

// WorldPosition is the agent's current interpolated position in world space.
func (b *Builder) WorldPosition(a *modelpkg.Agent) mgl64.Vec3 {
	if a.Spline == nil {
		return a.Loc.Pos()
	}
	return b.toWorld(a, a.Spline.EvaluatePosition(a.Spline.Elapsed()))
}

// WorldOrientation is the agent's current orientation in world space.
func (b *Builder) WorldOrientation(a *modelpkg.Agent) float64 {
	if a.Spline == nil {
		return a.Loc.O
	}
	return b.angleToWorld(a, a.Spline.FacingAt(a.Spline.Elapsed(), b.locator(a)))
}

// frameLocator reports located positions in a transport's frame.
type frameLocator struct {
	loc curve.Locator
	tr  modelpkg.Transform
}

func (f frameLocator) Locate(id string) (mgl64.Vec3, bool) {
	p, ok := f.loc.Locate(id)
	if !ok {
		return mgl64.Vec3{}, false
	}
	return f.tr.ToLocal(p), true
}

// locator resolves facing targets in the frame a's curve is expressed in.
func (b *Builder) locator(a *modelpkg.Agent) curve.Locator {
	if a.SplineTransport == "" {
		return b.env
	}
	tr, ok := b.env.Transport(a.SplineTransport)
	if !ok {
		return b.env
	}
	return frameLocator{loc: b.env, tr: tr}
}

func (b *Builder) toWorld(a *modelpkg.Agent, p mgl64.Vec3) mgl64.Vec3 {
	if a.SplineTransport == "" {
		return p
	}
	tr, ok := b.env.Transport(a.SplineTransport)
	if !ok {
		return p
	}
	return tr.ToWorld(p)
}

func (b *Builder) angleToWorld(a *modelpkg.Agent, o float64) float64 {
	if a.SplineTransport == "" {
		return o
	}
	tr, ok := b.env.Transport(a.SplineTransport)
	if !ok {
		return o
	}
	return tr.AngleToWorld(o)
}

func collapse(pts []mgl64.Vec3) []mgl64.Vec3 {
	out := pts[:1]
	for _, p := range pts[1:] {
		if !mathx.Finite(p) {
			// Keep it so curve.New reports the non-finite coordinate.
			out = append(out, p)
			continue
		}
		if p.Sub(out[len(out)-1]).Len() < pointEpsilon {
			continue
		}
		out = append(out, p)
	}
	return out
}

func chordLength(pts []mgl64.Vec3) float64 {
	var l float64
	for i := 0; i+1 < len(pts); i++ {
		l += pts[i+1].Sub(pts[i]).Len()
	}
	return l
}
