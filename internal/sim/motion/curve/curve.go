// Package curve evaluates time-parameterized trajectories built from waypoint
// lists. A Curve is a pure function of its construction parameters and the
// time it is queried at, so an observer that rebuilds a curve from the same
// parameters computes bit-identical positions.
package curve

import (
	"errors"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/sim/world/logic/mathx"
)

type Mode uint8

const (
	ModeLinear Mode = iota
	ModeSmooth
)

func (m Mode) String() string {
	if m == ModeSmooth {
		return "SMOOTH"
	}
	return "LINEAR"
}

type FacingKind uint8

const (
	FacingNone FacingKind = iota
	FacingAngle
	FacingTarget
	FacingPoint
)

// Facing overrides the tangent-derived orientation.
type Facing struct {
	Kind     FacingKind
	Angle    float64
	TargetID string
	Point    mgl64.Vec3
}

type VerticalKind uint8

const (
	VerticalNone VerticalKind = iota
	// VerticalFall drops from the first point's height under Accel until the
	// last point's height is reached.
	VerticalFall
	// VerticalParabolic adds an arc that is zero at both ends of the curve.
	VerticalParabolic
)

type Vertical struct {
	Kind  VerticalKind
	Accel float64
}

// Event reports what happened during one internal step of Advance.
type Event uint8

const (
	EventNone Event = iota
	EventNextSegment
	EventNextCycle
	EventArrived
)

func (e Event) String() string {
	switch e {
	case EventNextSegment:
		return "next_segment"
	case EventNextCycle:
		return "next_cycle"
	case EventArrived:
		return "arrived"
	}
	return "none"
}

// Locator resolves the current position of another agent. Lookups happen on
// every FacingAt call.
type Locator interface {
	Locate(id string) (mgl64.Vec3, bool)
}

type Params struct {
	Points   []mgl64.Vec3
	Mode     Mode
	Cyclic   bool
	Facing   Facing
	Velocity float64
	Vertical Vertical
	// Orientation is reported while the path tangent is undefined.
	Orientation float64
}

var (
	ErrTooFewPoints = errors.New("curve: fewer than 2 waypoints")
	ErrBadVelocity  = errors.New("curve: velocity must be finite and > 0")
	ErrNonFinite    = errors.New("curve: non-finite coordinate")
	ErrDegenerate   = errors.New("curve: zero path length")
	ErrBadFlags     = errors.New("curve: invalid vertical/cyclic combination")
	ErrBadProgress  = errors.New("curve: elapsed outside [0, Duration]")
)

// smoothSteps is the chord subdivision used to estimate Catmull-Rom segment
// arc length.
const smoothSteps = 8

type Curve struct {
	id uint32

	input    []mgl64.Vec3
	points   []mgl64.Vec3
	mode     Mode
	cyclic   bool
	facing   Facing
	vertical Vertical
	velocity float64
	orient   float64

	// times[i] is the time at which points[i] is reached.
	times  []float64
	length float64

	elapsed   float64
	cycles    int
	seg       int
	finalized bool
}

func New(p Params) (*Curve, error) {
	if len(p.Points) < 2 {
		return nil, ErrTooFewPoints
	}
	if !(p.Velocity > 0) || math.IsInf(p.Velocity, 0) {
		return nil, ErrBadVelocity
	}
	for _, pt := range p.Points {
		if !mathx.Finite(pt) {
			return nil, ErrNonFinite
		}
	}
	switch p.Vertical.Kind {
	case VerticalNone:
	case VerticalFall:
		if p.Cyclic || !(p.Vertical.Accel > 0) || math.IsInf(p.Vertical.Accel, 0) {
			return nil, ErrBadFlags
		}
	case VerticalParabolic:
		if p.Cyclic || math.IsNaN(p.Vertical.Accel) || math.IsInf(p.Vertical.Accel, 0) {
			return nil, ErrBadFlags
		}
	default:
		return nil, ErrBadFlags
	}

	c := &Curve{
		input:    append([]mgl64.Vec3(nil), p.Points...),
		mode:     p.Mode,
		cyclic:   p.Cyclic,
		facing:   p.Facing,
		vertical: p.Vertical,
		velocity: p.Velocity,
		orient:   p.Orientation,
	}
	c.points = append([]mgl64.Vec3(nil), p.Points...)
	if c.cyclic && c.points[0] != c.points[len(c.points)-1] {
		c.points = append(c.points, c.points[0])
	}

	c.times = make([]float64, len(c.points))
	var total float64
	for i := 0; i+1 < len(c.points); i++ {
		total += c.segmentLength(i)
		c.times[i+1] = total / c.velocity
	}
	if !(total > 0) {
		return nil, ErrDegenerate
	}
	c.length = total
	return c, nil
}

// Stopped is a finalized single-point curve.
func Stopped(pos mgl64.Vec3, orientation float64) *Curve {
	c := &Curve{}
	c.halt(pos, orientation)
	return c
}

func (c *Curve) ID() uint32         { return c.id }
func (c *Curve) SetID(id uint32)    { c.id = id }
func (c *Curve) Mode() Mode         { return c.mode }
func (c *Curve) Cyclic() bool       { return c.cyclic }
func (c *Curve) Facing() Facing     { return c.facing }
func (c *Curve) Vertical() Vertical { return c.vertical }
func (c *Curve) Velocity() float64  { return c.velocity }
func (c *Curve) Length() float64    { return c.length }
func (c *Curve) Finalized() bool    { return c.finalized }
func (c *Curve) Orientation() float64 {
	return c.orient
}

// Elapsed is the time into the current cycle.
func (c *Curve) Elapsed() float64 { return c.elapsed }
func (c *Curve) Cycles() int      { return c.cycles }

// Halted reports whether this is a single-point curve produced by Halt or Stopped.
func (c *Curve) Halted() bool { return len(c.points) == 1 }

// Points returns the waypoints the curve was built from.
func (c *Curve) Points() []mgl64.Vec3 {
	return append([]mgl64.Vec3(nil), c.input...)
}

// Duration is the time to traverse all segments once.
func (c *Curve) Duration() float64 {
	return c.times[len(c.times)-1]
}

func (c *Curve) segments() int { return len(c.points) - 1 }

// Restore puts a freshly built curve back at a recorded point of its run, as
// read from Elapsed, Cycles and Finalized.
func (c *Curve) Restore(elapsed float64, cycles int, finalized bool) error {
	if c.Halted() {
		return nil
	}
	if math.IsNaN(elapsed) || elapsed < 0 || elapsed > c.Duration() || cycles < 0 {
		return ErrBadProgress
	}
	c.elapsed = elapsed
	c.cycles = cycles
	c.finalized = finalized
	if finalized {
		c.seg = c.segments() - 1
	} else {
		c.seg, _ = c.locate(elapsed)
	}
	return nil
}

// Advance consumes dt, crossing as many segment and cycle boundaries as it
// covers. handle receives one event per boundary crossed, or EventNone when
// none was.
func (c *Curve) Advance(dt float64, handle func(Event)) {
	if c.finalized || !(dt > 0) {
		return
	}
	emitted := false
	emit := func(e Event) {
		emitted = true
		if handle != nil {
			handle(e)
		}
	}
	for dt > 0 && !c.finalized {
		end := c.times[c.seg+1]
		remain := end - c.elapsed
		if dt < remain {
			c.elapsed += dt
			break
		}
		c.elapsed = end
		dt -= remain
		c.seg++
		if c.seg < c.segments() {
			emit(EventNextSegment)
			continue
		}
		if c.cyclic {
			c.seg = 0
			c.elapsed = 0
			c.cycles++
			emit(EventNextCycle)
			continue
		}
		c.seg = c.segments() - 1
		c.finalized = true
		emit(EventArrived)
	}
	if !emitted {
		emit(EventNone)
	}
}

// EvaluatePosition is pure. Cyclic curves wrap t modulo Duration; other curves
// clamp t to [0, Duration].
func (c *Curve) EvaluatePosition(t float64) mgl64.Vec3 {
	if len(c.points) == 1 {
		return c.points[0]
	}
	t = c.clampTime(t)
	i, u := c.locate(t)
	pos := c.interpolate(i, u)
	switch c.vertical.Kind {
	case VerticalFall:
		start := c.points[0].Z()
		floor := c.points[len(c.points)-1].Z()
		pos[2] = math.Max(start-0.5*c.vertical.Accel*t*t, floor)
	case VerticalParabolic:
		pos[2] += 0.5 * c.vertical.Accel * t * (c.Duration() - t)
	}
	return pos
}

// FacingAt returns the orientation at t. Target tracking re-resolves the
// target through loc on every call.
func (c *Curve) FacingAt(t float64, loc Locator) float64 {
	switch c.facing.Kind {
	case FacingAngle:
		return c.facing.Angle
	case FacingPoint:
		pos := c.EvaluatePosition(t)
		if mathx.Dist2D(pos, c.facing.Point) > 1e-9 {
			return mathx.AngleTo(pos, c.facing.Point)
		}
	case FacingTarget:
		if loc != nil {
			if tp, ok := loc.Locate(c.facing.TargetID); ok {
				pos := c.EvaluatePosition(t)
				if mathx.Dist2D(pos, tp) > 1e-9 {
					return mathx.AngleTo(pos, tp)
				}
			}
		}
	}
	if len(c.points) == 1 {
		return c.orient
	}
	i, u := c.locate(c.clampTime(t))
	d := c.derivative(i, u)
	if math.Hypot(d.X(), d.Y()) < 1e-9 {
		return c.orient
	}
	return mathx.NormalizeAngle(math.Atan2(d.Y(), d.X()))
}

// Halt freezes the curve at its current interpolated position and returns
// that position and orientation. After Halt the curve is a finalized
// single-point curve.
func (c *Curve) Halt(loc Locator) (mgl64.Vec3, float64) {
	pos := c.EvaluatePosition(c.elapsed)
	o := c.FacingAt(c.elapsed, loc)
	c.halt(pos, o)
	return pos, o
}

func (c *Curve) halt(pos mgl64.Vec3, o float64) {
	c.input = []mgl64.Vec3{pos}
	c.points = []mgl64.Vec3{pos}
	c.times = []float64{0}
	c.length = 0
	c.cyclic = false
	c.facing = Facing{}
	c.vertical = Vertical{}
	c.orient = o
	c.elapsed = 0
	c.seg = 0
	c.finalized = true
}

func (c *Curve) clampTime(t float64) float64 {
	d := c.Duration()
	if !(t > 0) {
		return 0
	}
	if c.cyclic {
		return math.Mod(t, d)
	}
	if t > d {
		return d
	}
	return t
}

// locate maps t in [0, Duration] to a segment index and a local parameter.
func (c *Curve) locate(t float64) (int, float64) {
	n := c.segments()
	i := sort.Search(n, func(i int) bool { return c.times[i+1] > t })
	if i >= n {
		return n - 1, 1
	}
	span := c.times[i+1] - c.times[i]
	if span <= 0 {
		return i, 1
	}
	u := (t - c.times[i]) / span
	if u > 1 {
		u = 1
	}
	return i, u
}

func (c *Curve) controls(i int) (p0, p1, p2, p3 mgl64.Vec3) {
	if c.cyclic {
		m := len(c.points) - 1
		p0 = c.points[(i-1+m)%m]
		p1 = c.points[i%m]
		p2 = c.points[(i+1)%m]
		p3 = c.points[(i+2)%m]
		return
	}
	last := len(c.points) - 1
	p0 = c.points[max(i-1, 0)]
	p1 = c.points[i]
	p2 = c.points[i+1]
	p3 = c.points[min(i+2, last)]
	return
}

func (c *Curve) interpolate(i int, u float64) mgl64.Vec3 {
	if u <= 0 {
		return c.points[i]
	}
	if u >= 1 {
		return c.points[i+1]
	}
	if c.mode == ModeLinear {
		a, b := c.points[i], c.points[i+1]
		return a.Add(b.Sub(a).Mul(u))
	}
	p0, p1, p2, p3 := c.controls(i)
	return catmullRom(p0, p1, p2, p3, u)
}

func (c *Curve) derivative(i int, u float64) mgl64.Vec3 {
	if c.mode == ModeLinear {
		return c.points[i+1].Sub(c.points[i])
	}
	p0, p1, p2, p3 := c.controls(i)
	return catmullRomDerivative(p0, p1, p2, p3, u)
}

func (c *Curve) segmentLength(i int) float64 {
	if c.mode == ModeLinear {
		return c.points[i+1].Sub(c.points[i]).Len()
	}
	p0, p1, p2, p3 := c.controls(i)
	var l float64
	prev := p1
	for s := 1; s <= smoothSteps; s++ {
		var next mgl64.Vec3
		if s == smoothSteps {
			next = p2
		} else {
			next = catmullRom(p0, p1, p2, p3, float64(s)/smoothSteps)
		}
		l += next.Sub(prev).Len()
		prev = next
	}
	return l
}

func catmullRom(p0, p1, p2, p3 mgl64.Vec3, u float64) mgl64.Vec3 {
	u2 := u * u
	u3 := u2 * u
	a := p1.Mul(2)
	b := p2.Sub(p0).Mul(u)
	cc := p0.Mul(2).Sub(p1.Mul(5)).Add(p2.Mul(4)).Sub(p3).Mul(u2)
	d := p1.Mul(3).Sub(p0).Sub(p2.Mul(3)).Add(p3).Mul(u3)
	return a.Add(b).Add(cc).Add(d).Mul(0.5)
}

func catmullRomDerivative(p0, p1, p2, p3 mgl64.Vec3, u float64) mgl64.Vec3 {
	b := p2.Sub(p0)
	cc := p0.Mul(2).Sub(p1.Mul(5)).Add(p2.Mul(4)).Sub(p3).Mul(2 * u)
	d := p1.Mul(3).Sub(p0).Sub(p2.Mul(3)).Add(p3).Mul(3 * u * u)
	return b.Add(cc).Add(d).Mul(0.5)
}
