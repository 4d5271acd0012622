package curve

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func mustCurve(t *testing.T, p Params) *Curve {
	t.Helper()
	c, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func near(a, b mgl64.Vec3, eps float64) bool {
	return a.Sub(b).Len() <= eps
}

func TestTwoPointDurationAndMidpoint(t *testing.T) {
	c := mustCurve(t, Params{
		Points:   []mgl64.Vec3{{0, 0, 0}, {10, 0, 0}},
		Velocity: 5,
	})
	if got := c.Duration(); got != 2.0 {
		t.Fatalf("Duration=%v", got)
	}
	if got := c.EvaluatePosition(1.0); got != (mgl64.Vec3{5, 0, 0}) {
		t.Fatalf("EvaluatePosition(1)=%v", got)
	}
}

func randomPoints(r *rand.Rand, n int) []mgl64.Vec3 {
	pts := make([]mgl64.Vec3, n)
	for i := range pts {
		pts[i] = mgl64.Vec3{r.Float64()*200 - 100, r.Float64()*200 - 100, r.Float64() * 20}
	}
	return pts
}

func TestDurationIsLengthOverVelocity(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for n := 2; n < 12; n++ {
		pts := randomPoints(r, n)
		v := 0.5 + r.Float64()*10

		var chord float64
		for i := 0; i+1 < len(pts); i++ {
			chord += pts[i+1].Sub(pts[i]).Len()
		}
		lin := mustCurve(t, Params{Points: pts, Velocity: v})
		if math.Abs(lin.Duration()-chord/v) > 1e-9*math.Max(1, chord/v) {
			t.Fatalf("n=%d linear Duration=%v want %v", n, lin.Duration(), chord/v)
		}

		sm := mustCurve(t, Params{Points: pts, Velocity: v, Mode: ModeSmooth})
		if math.Abs(sm.Duration()-sm.Length()/v) > 1e-9*math.Max(1, sm.Duration()) {
			t.Fatalf("n=%d smooth Duration=%v want %v", n, sm.Duration(), sm.Length()/v)
		}
		if sm.Length() < chord-1e-9 {
			t.Fatalf("smooth arc length %v shorter than chord length %v", sm.Length(), chord)
		}
	}
}

func TestEndpointsAreExact(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for _, mode := range []Mode{ModeLinear, ModeSmooth} {
		for n := 2; n < 8; n++ {
			pts := randomPoints(r, n)
			c := mustCurve(t, Params{Points: pts, Velocity: 3, Mode: mode})
			if got := c.EvaluatePosition(0); got != pts[0] {
				t.Fatalf("%v n=%d start=%v want %v", mode, n, got, pts[0])
			}
			if got := c.EvaluatePosition(c.Duration()); got != pts[n-1] {
				t.Fatalf("%v n=%d end=%v want %v", mode, n, got, pts[n-1])
			}
			if got := c.EvaluatePosition(c.Duration() + 10); got != pts[n-1] {
				t.Fatalf("%v n=%d past end=%v want %v", mode, n, got, pts[n-1])
			}
		}
	}
}

func TestCyclicWrapsModuloDuration(t *testing.T) {
	pts := []mgl64.Vec3{{0, 0, 0}, {10, 0, 0}, {10, 10, 0}, {0, 10, 0}}
	for _, mode := range []Mode{ModeLinear, ModeSmooth} {
		c := mustCurve(t, Params{Points: pts, Velocity: 4, Mode: mode, Cyclic: true})
		d := c.Duration()
		if mode == ModeLinear && math.Abs(d-10) > 1e-12 {
			t.Fatalf("closed square duration=%v want 10", d)
		}
		for i := 0; i < 500; i++ {
			tt := float64(i) * 0.137
			if got, want := c.EvaluatePosition(tt), c.EvaluatePosition(math.Mod(tt, d)); got != want {
				t.Fatalf("%v t=%v got %v want %v", mode, tt, got, want)
			}
		}
		if !near(c.EvaluatePosition(d), pts[0], 1e-9) {
			t.Fatalf("%v cycle end %v should be back at start", mode, c.EvaluatePosition(d))
		}
	}
}

func TestSmoothIsContinuousAtInteriorWaypoints(t *testing.T) {
	pts := []mgl64.Vec3{{0, 0, 0}, {10, 0, 0}, {10, 10, 0}, {20, 15, 0}}
	c := mustCurve(t, Params{Points: pts, Velocity: 5, Mode: ModeSmooth})
	for i := 1; i < len(pts)-1; i++ {
		tb := c.times[i]
		if got := c.EvaluatePosition(tb); got != pts[i] {
			t.Fatalf("waypoint %d: %v want %v", i, got, pts[i])
		}
		const eps = 1e-7
		before := c.EvaluatePosition(tb - eps)
		after := c.EvaluatePosition(tb + eps)
		if !near(before, after, 1e-4) {
			t.Fatalf("position jump at waypoint %d: %v vs %v", i, before, after)
		}
		// Tangent direction must agree on both sides.
		dBefore := c.derivative(i-1, 1)
		dAfter := c.derivative(i, 0)
		if !near(dBefore, dAfter, 1e-9) {
			t.Fatalf("tangent jump at waypoint %d: %v vs %v", i, dBefore, dAfter)
		}
	}
}

func TestAdvanceCrossesSegments(t *testing.T) {
	c := mustCurve(t, Params{
		Points:   []mgl64.Vec3{{0, 0, 0}, {10, 0, 0}, {10, 10, 0}},
		Velocity: 10,
	})
	var got []Event
	rec := func(e Event) { got = append(got, e) }

	c.Advance(0.5, rec)
	if len(got) != 1 || got[0] != EventNone {
		t.Fatalf("first advance events=%v", got)
	}
	got = nil
	c.Advance(1.0, rec)
	if len(got) != 1 || got[0] != EventNextSegment {
		t.Fatalf("second advance events=%v", got)
	}
	if c.Elapsed() != 1.5 {
		t.Fatalf("elapsed=%v", c.Elapsed())
	}
	if p := c.EvaluatePosition(c.Elapsed()); !near(p, mgl64.Vec3{10, 5, 0}, 1e-12) {
		t.Fatalf("position=%v", p)
	}
	got = nil
	c.Advance(5, rec)
	if len(got) != 1 || got[0] != EventArrived {
		t.Fatalf("final advance events=%v", got)
	}
	if !c.Finalized() {
		t.Fatalf("expected finalized")
	}
	if p := c.EvaluatePosition(c.Elapsed()); p != (mgl64.Vec3{10, 10, 0}) {
		t.Fatalf("finalized curve should rest on last point, got %v", p)
	}
	got = nil
	c.Advance(1, rec)
	if len(got) != 0 {
		t.Fatalf("finalized curve should not emit, got %v", got)
	}
}

func TestAdvanceCyclicWrapsSeveralTimes(t *testing.T) {
	c := mustCurve(t, Params{
		Points:   []mgl64.Vec3{{0, 0, 0}, {10, 0, 0}, {10, 10, 0}, {0, 10, 0}},
		Velocity: 10,
		Cyclic:   true,
	})
	var cycles, segments int
	c.Advance(9.5, func(e Event) {
		switch e {
		case EventNextCycle:
			cycles++
		case EventNextSegment:
			segments++
		case EventArrived:
			t.Fatalf("cyclic curve must not arrive")
		}
	})
	if cycles != 2 || segments != 7 {
		t.Fatalf("cycles=%d segments=%d", cycles, segments)
	}
	if c.Cycles() != 2 || c.Elapsed() != 1.5 || c.Finalized() {
		t.Fatalf("state cycles=%d elapsed=%v finalized=%v", c.Cycles(), c.Elapsed(), c.Finalized())
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		p    Params
		want error
	}{
		{"one point", Params{Points: []mgl64.Vec3{{1, 1, 1}}, Velocity: 1}, ErrTooFewPoints},
		{"zero velocity", Params{Points: []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}}}, ErrBadVelocity},
		{"nan velocity", Params{Points: []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}}, Velocity: math.NaN()}, ErrBadVelocity},
		{"inf coord", Params{Points: []mgl64.Vec3{{0, 0, 0}, {math.Inf(1), 0, 0}}, Velocity: 1}, ErrNonFinite},
		{"same points", Params{Points: []mgl64.Vec3{{2, 2, 2}, {2, 2, 2}}, Velocity: 1}, ErrDegenerate},
		{"cyclic fall", Params{Points: []mgl64.Vec3{{0, 0, 5}, {1, 0, 0}}, Velocity: 1, Cyclic: true, Vertical: Vertical{Kind: VerticalFall, Accel: 9}}, ErrBadFlags},
	}
	for _, tc := range cases {
		if _, err := New(tc.p); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want %v", tc.name, err, tc.want)
		}
	}
}

func TestHaltFreezesInterpolatedPosition(t *testing.T) {
	c := mustCurve(t, Params{
		Points:   []mgl64.Vec3{{0, 0, 0}, {10, 0, 0}},
		Velocity: 5,
	})
	c.Advance(1, nil)
	pos, o := c.Halt(nil)
	if pos != (mgl64.Vec3{5, 0, 0}) {
		t.Fatalf("halt pos=%v", pos)
	}
	if o != 0 {
		t.Fatalf("halt orientation=%v", o)
	}
	if !c.Finalized() || !c.Halted() || c.Duration() != 0 {
		t.Fatalf("halted curve state wrong: finalized=%v halted=%v duration=%v", c.Finalized(), c.Halted(), c.Duration())
	}
	if c.EvaluatePosition(3) != pos {
		t.Fatalf("halted curve moved: %v", c.EvaluatePosition(3))
	}
}

func TestFallDropsToFloor(t *testing.T) {
	start := mgl64.Vec3{0, 0, 10}
	end := mgl64.Vec3{3, 0, 0}
	fallTime := math.Sqrt(2)
	c := mustCurve(t, Params{
		Points:   []mgl64.Vec3{start, end},
		Velocity: end.Sub(start).Len() / fallTime,
		Vertical: Vertical{Kind: VerticalFall, Accel: 10},
	})
	if got := c.EvaluatePosition(0); got != start {
		t.Fatalf("start=%v", got)
	}
	if z := c.EvaluatePosition(1).Z(); math.Abs(z-5) > 1e-12 {
		t.Fatalf("z(1)=%v want 5", z)
	}
	if got := c.EvaluatePosition(c.Duration()); !near(got, end, 1e-9) {
		t.Fatalf("end=%v", got)
	}
}

func TestParabolicArcPeaksMidway(t *testing.T) {
	c := mustCurve(t, Params{
		Points:   []mgl64.Vec3{{0, 0, 0}, {10, 0, 0}},
		Velocity: 5,
		Vertical: Vertical{Kind: VerticalParabolic, Accel: 4},
	})
	if got := c.EvaluatePosition(1); got != (mgl64.Vec3{5, 0, 2}) {
		t.Fatalf("apex=%v", got)
	}
	if got := c.EvaluatePosition(2); got != (mgl64.Vec3{10, 0, 0}) {
		t.Fatalf("landing=%v", got)
	}
}

type stubLocator map[string]mgl64.Vec3

func (s stubLocator) Locate(id string) (mgl64.Vec3, bool) {
	p, ok := s[id]
	return p, ok
}

func TestFacingOverrides(t *testing.T) {
	pts := []mgl64.Vec3{{0, 0, 0}, {0, 10, 0}}
	tangent := mustCurve(t, Params{Points: pts, Velocity: 1})
	if got := tangent.FacingAt(3, nil); math.Abs(got-math.Pi/2) > 1e-12 {
		t.Fatalf("tangent facing=%v", got)
	}

	fixed := mustCurve(t, Params{Points: pts, Velocity: 1, Facing: Facing{Kind: FacingAngle, Angle: 1.25}})
	if got := fixed.FacingAt(3, nil); got != 1.25 {
		t.Fatalf("fixed facing=%v", got)
	}

	loc := stubLocator{"T1": {10, 0, 0}}
	tracking := mustCurve(t, Params{Points: pts, Velocity: 1, Facing: Facing{Kind: FacingTarget, TargetID: "T1"}})
	if got := tracking.FacingAt(0, loc); math.Abs(got) > 1e-12 {
		t.Fatalf("tracking facing=%v", got)
	}
	loc["T1"] = mgl64.Vec3{-10, 0, 0}
	if got := tracking.FacingAt(0, loc); math.Abs(got-math.Pi) > 1e-12 {
		t.Fatalf("tracking facing after target moved=%v", got)
	}
	delete(loc, "T1")
	if got := tracking.FacingAt(0, loc); math.Abs(got-math.Pi/2) > 1e-12 {
		t.Fatalf("lost target should fall back to tangent, got %v", got)
	}
}

func TestRebuiltCurveIsBitIdentical(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	pts := randomPoints(r, 6)
	p := Params{Points: pts, Velocity: 6.5, Mode: ModeSmooth}
	a := mustCurve(t, p)
	b := mustCurve(t, Params{Points: a.Points(), Velocity: a.Velocity(), Mode: a.Mode()})
	for i := 0; i <= 200; i++ {
		tt := a.Duration() * float64(i) / 200
		if a.EvaluatePosition(tt) != b.EvaluatePosition(tt) {
			t.Fatalf("t=%v diverged", tt)
		}
	}
}

func TestRestoreResumesMidRun(t *testing.T) {
	p := Params{
		Points:   []mgl64.Vec3{{0, 0, 0}, {4, 0, 0}, {4, 4, 0}, {0, 4, 0}},
		Velocity: 2,
		Cyclic:   true,
	}
	a := mustCurve(t, p)
	for i := 0; i < 37; i++ {
		a.Advance(0.25, nil)
	}

	b := mustCurve(t, p)
	if err := b.Restore(a.Elapsed(), a.Cycles(), a.Finalized()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	for i := 0; i < 11; i++ {
		a.Advance(0.25, nil)
		b.Advance(0.25, nil)
	}
	if a.Elapsed() != b.Elapsed() || a.Cycles() != b.Cycles() {
		t.Fatalf("diverged: a=(%v,%d) b=(%v,%d)", a.Elapsed(), a.Cycles(), b.Elapsed(), b.Cycles())
	}
	if a.EvaluatePosition(a.Elapsed()) != b.EvaluatePosition(b.Elapsed()) {
		t.Fatalf("positions differ")
	}

	if err := b.Restore(b.Duration()+1, 0, false); !errors.Is(err, ErrBadProgress) {
		t.Fatalf("expected ErrBadProgress, got %v", err)
	}
}
