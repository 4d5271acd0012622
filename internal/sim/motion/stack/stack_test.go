package stack

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/curve"
	"motionsync.ai/internal/sim/motion/gen"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

func near(a, b mgl64.Vec3) bool { return a.Sub(b).Len() < 1e-9 }

func TestNewStackIsIdle(t *testing.T) {
	s := New("A")
	slot, g := s.Active()
	if slot != SlotIdle || g == nil || g.Kind != gen.KindIdle {
		t.Fatalf("active=%v %+v", slot, g)
	}
	w := newStubWorld()
	a := newAgent("A", mgl64.Vec3{})
	if st := s.Update(w, a, 0.1); st != gen.Continue {
		t.Fatalf("idle status=%v", st)
	}
	if s.Pop(w, a, SlotIdle) {
		t.Fatalf("idle slot popped")
	}
}

func TestKnockbackThenPointResumesFromLandingSpot(t *testing.T) {
	w := newStubWorld()
	a := newAgent("A", mgl64.Vec3{})
	s := New("A")
	dest := mgl64.Vec3{20, 0, 0}

	s.MovePoint(w, a, "P1", dest, gen.PointOptions{})
	if slot, g := s.Active(); slot != SlotActive || g.Kind != gen.KindPoint {
		t.Fatalf("active=%v", slot)
	}
	w.advance(a, 1)
	s.Update(w, a, 1)
	if !near(a.Pos(), mgl64.Vec3{7, 0, 0}) {
		t.Fatalf("pos=%v", a.Pos())
	}

	s.MoveKnockback(w, a, mgl64.Vec3{7, -5, 0}, 5, 5)
	if slot, g := s.Active(); slot != SlotEffect || g.Kind != gen.KindEffect {
		t.Fatalf("active after knockback=%v", slot)
	}
	if got := a.Spline.EvaluatePosition(0); !near(got, mgl64.Vec3{7, 0, 0}) {
		t.Fatalf("knockback starts at %v", got)
	}
	knockID := a.LastSplineID()

	w.advance(a, 2)
	landing := a.Pos()
	if landing.Y() <= 0 || math.Abs(landing.X()-7) > 1e-9 || math.Abs(landing.Z()) > 1e-9 {
		t.Fatalf("landing=%v", landing)
	}
	s.Update(w, a, 0.1)

	slot, g := s.Active()
	if slot != SlotActive || g.Kind != gen.KindPoint {
		t.Fatalf("point did not resume, active=%v", slot)
	}
	if a.LastSplineID() != knockID+1 || !a.Moving() {
		t.Fatalf("point did not relaunch")
	}
	if got := a.Spline.EvaluatePosition(0); !near(got, landing) {
		t.Fatalf("resumed curve starts at %v, landing %v", got, landing)
	}
	pts := a.Spline.Points()
	if pts[len(pts)-1] != dest {
		t.Fatalf("resumed curve ends at %v", pts[len(pts)-1])
	}
}

func TestPushIntoLowerSlotDoesNotLaunch(t *testing.T) {
	w := newStubWorld()
	a := newAgent("A", mgl64.Vec3{})
	s := New("A")
	s.MoveFlee(w, a, "")
	id := a.LastSplineID()
	if id == 0 {
		t.Fatalf("flee did not launch")
	}
	s.MovePoint(w, a, "", mgl64.Vec3{5, 5, 0}, gen.PointOptions{})
	if a.LastSplineID() != id {
		t.Fatalf("inactive point launched")
	}
	if slot, _ := s.Active(); slot != SlotControlled {
		t.Fatalf("active=%v", slot)
	}

	s.Pop(w, a, SlotControlled)
	if a.Flags.Has(modelpkg.FlagFleeing) {
		t.Fatalf("Fleeing flag kept after pop")
	}
	pts := a.Spline.Points()
	if a.LastSplineID() != id+1 || pts[len(pts)-1] != (mgl64.Vec3{5, 5, 0}) {
		t.Fatalf("point did not launch on resume")
	}
}

func TestPushReplacesSameSlot(t *testing.T) {
	w := newStubWorld()
	w.put("T", mgl64.Vec3{10, 0, 0})
	a := newAgent("A", mgl64.Vec3{})
	s := New("A")
	s.MoveFollow(w, a, "T", 2, 0)
	if !a.Flags.Has(modelpkg.FlagFollowing) {
		t.Fatalf("Following flag not set")
	}
	s.MovePoint(w, a, "", mgl64.Vec3{0, 8, 0}, gen.PointOptions{})
	if a.Flags.Has(modelpkg.FlagFollowing) {
		t.Fatalf("replaced follow was not deactivated")
	}
	if _, g := s.Active(); g.Kind != gen.KindPoint {
		t.Fatalf("active kind=%v", g.Kind)
	}
}

func TestFailedGeneratorIsPopped(t *testing.T) {
	w := newStubWorld()
	w.put("T", mgl64.Vec3{30, 0, 0})
	a := newAgent("A", mgl64.Vec3{})
	s := New("A")
	s.MoveChase(w, a, "T", 0)
	w.advance(a, 0.5)

	delete(w.targets, "T")
	if st := s.Update(w, a, 0.1); st != gen.Failed {
		t.Fatalf("status=%v", st)
	}
	if slot, _ := s.Active(); slot != SlotIdle {
		t.Fatalf("failed chase left in slot %v", slot)
	}
	if a.Moving() {
		t.Fatalf("agent still moving")
	}
	if ev := lastEvent(a); ev["code"] != protocol.ErrTargetLost {
		t.Fatalf("event=%v", ev)
	}
}

func TestTimedFleeHandsOffInPlace(t *testing.T) {
	w := newStubWorld()
	w.put("S", mgl64.Vec3{})
	w.put("T", mgl64.Vec3{0, 15, 0})
	a := newAgent("A", mgl64.Vec3{10, 0, 0})
	a.CombatTarget = "T"
	s := New("A")
	s.MoveTimedFlee(w, a, "S", 0.5)

	s.Update(w, a, 0.3)
	s.Update(w, a, 0.3)
	slot, g := s.Active()
	if slot != SlotControlled || g.Kind != gen.KindChase {
		t.Fatalf("after expiry active=%v kind=%v", slot, g.Kind)
	}
	if a.CombatTarget != "T" {
		t.Fatalf("combat target=%q", a.CombatTarget)
	}
}

func TestDeferredOpsApplyOnNextUpdate(t *testing.T) {
	w := newStubWorld()
	a := newAgent("A", mgl64.Vec3{})
	s := New("A")
	s.Defer(Op{Kind: OpPush, Slot: SlotActive, Gen: gen.NewPoint("", mgl64.Vec3{3, 0, 0}, gen.PointOptions{})})
	if a.Moving() || s.Pending() != 1 {
		t.Fatalf("deferred push applied early")
	}
	s.Update(w, a, 0.1)
	if !a.Moving() || s.Pending() != 0 {
		t.Fatalf("deferred push not applied")
	}
	s.Defer(Op{Kind: OpClear})
	s.Update(w, a, 0.1)
	if a.Moving() {
		t.Fatalf("clear did not halt")
	}
	if slot, _ := s.Active(); slot != SlotIdle {
		t.Fatalf("active=%v after clear", slot)
	}
}

func TestCyclicPatrolResumesAfterInterrupt(t *testing.T) {
	w := newStubWorld()
	a := newAgent("A", mgl64.Vec3{})
	s := New("A")
	s.MoveCyclicPath(w, a, "patrol", []mgl64.Vec3{{10, 0, 0}, {10, 10, 0}}, true, curve.ModeLinear)
	if !a.Moving() || !a.Spline.Cyclic() {
		t.Fatalf("patrol not running")
	}
	w.advance(a, 100)
	if s.Update(w, a, 0.1) != gen.Continue || !a.Moving() {
		t.Fatalf("patrol stopped")
	}

	s.MoveFlee(w, a, "")
	s.Pop(w, a, SlotControlled)
	if !a.Moving() || !a.Spline.Cyclic() {
		t.Fatalf("patrol not relaunched after flee")
	}
	if _, g := s.Active(); g.Ref != "patrol" {
		t.Fatalf("active ref=%q", g.Ref)
	}
}

func TestMoveFallLandsOnGround(t *testing.T) {
	w := newStubWorld()
	a := newAgent("A", mgl64.Vec3{0, 0, 12})
	s := New("A")
	s.MoveFall(w, a, 2)
	if slot, _ := s.Active(); slot != SlotEffect || !a.Flags.Has(modelpkg.FlagFalling) {
		t.Fatalf("fall not started")
	}
	w.advance(a, 5)
	s.Update(w, a, 0.1)
	if math.Abs(a.Pos().Z()-2) > 1e-9 {
		t.Fatalf("z=%v want 2", a.Pos().Z())
	}
	if slot, _ := s.Active(); slot != SlotIdle {
		t.Fatalf("fall effect not popped")
	}
}

func TestParkedGeneratorsLeaveAgentStateAlone(t *testing.T) {
	w := newStubWorld()
	w.put("S", mgl64.Vec3{-10, 0, 0})
	w.put("T", mgl64.Vec3{0, 15, 0})
	a := newAgent("A", mgl64.Vec3{})
	a.CombatTarget = "T"
	s := New("A")

	s.MoveKnockback(w, a, mgl64.Vec3{0, -5, 0}, 5, 5)
	s.MoveFlee(w, a, "S")
	s.MoveChase(w, a, "T", 1)
	if a.Flags.Has(modelpkg.FlagFleeing) || a.Flags.Has(modelpkg.FlagChasing) {
		t.Fatalf("parked generators set flags: %v", a.Flags)
	}
	if a.CombatTarget != "T" {
		t.Fatalf("parked flee cleared combat target: %q", a.CombatTarget)
	}

	s.Pop(w, a, SlotEffect)
	if !a.Flags.Has(modelpkg.FlagFleeing) || a.CombatTarget != "" {
		t.Fatalf("resumed flee: flags=%v combat target=%q", a.Flags, a.CombatTarget)
	}
	if a.Flags.Has(modelpkg.FlagChasing) {
		t.Fatalf("chase under flee set Chasing")
	}

	s.Pop(w, a, SlotControlled)
	if a.Flags.Has(modelpkg.FlagFleeing) || a.CombatTarget != "T" {
		t.Fatalf("after flee pop: flags=%v combat target=%q", a.Flags, a.CombatTarget)
	}
	if !a.Flags.Has(modelpkg.FlagChasing) {
		t.Fatalf("resumed chase did not set Chasing")
	}
}
