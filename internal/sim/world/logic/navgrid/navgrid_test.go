package navgrid

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

func wallGrid() *Grid {
	return New(Config{
		Width: 10, Height: 10, CellSize: 1, Clearance: 0.25,
		Obstacles: []Box{{MinX: 4, MinY: 0, MaxX: 6, MaxY: 8}},
	})
}

func pathLength(from mgl64.Vec3, pts []mgl64.Vec3) float64 {
	var l float64
	for _, p := range pts {
		l += p.Sub(from).Len()
		from = p
	}
	return l
}

func TestComputePathStraight(t *testing.T) {
	g := New(Config{Width: 10, Height: 10, CellSize: 1})
	to := mgl64.Vec3{8, 8, 0}
	pts, q := g.ComputePath(nil, mgl64.Vec3{1, 1, 0}, to, 100)
	if q != modelpkg.PathNormal || len(pts) != 1 || pts[0] != to {
		t.Fatalf("pts=%v q=%v", pts, q)
	}
}

func TestComputePathAroundWall(t *testing.T) {
	g := wallGrid()
	from, to := mgl64.Vec3{2, 2, 0}, mgl64.Vec3{8, 2, 0}
	pts, q := g.ComputePath(nil, from, to, 100)
	if q != modelpkg.PathNormal {
		t.Fatalf("quality=%v", q)
	}
	if len(pts) < 2 {
		t.Fatalf("expected a detour, got %v", pts)
	}
	if pts[len(pts)-1] != to {
		t.Fatalf("path ends at %v", pts[len(pts)-1])
	}
	prev := from
	for _, p := range pts {
		if !g.LineOfSight(prev, p) {
			t.Fatalf("segment %v -> %v crosses the wall", prev, p)
		}
		prev = p
	}
	if l := pathLength(from, pts); l < 6 || l > 30 {
		t.Fatalf("unexpected length %v", l)
	}

	again, _ := g.ComputePath(nil, from, to, 100)
	if len(again) != len(pts) {
		t.Fatalf("path not deterministic")
	}
	for i := range pts {
		if pts[i] != again[i] {
			t.Fatalf("path not deterministic at %d", i)
		}
	}
}

func TestComputePathNoPath(t *testing.T) {
	g := wallGrid()
	if _, q := g.ComputePath(nil, mgl64.Vec3{2, 2, 0}, mgl64.Vec3{5, 4, 0}, 100); q != modelpkg.PathNoPath {
		t.Fatalf("dest inside obstacle: q=%v", q)
	}

	boxed := New(Config{
		Width: 10, Height: 10, CellSize: 1,
		Obstacles: []Box{
			{MinX: 6, MinY: 6, MaxX: 10, MaxY: 6.5},
			{MinX: 6, MinY: 6, MaxX: 6.5, MaxY: 10},
		},
	})
	if _, q := boxed.ComputePath(nil, mgl64.Vec3{1, 1, 0}, mgl64.Vec3{8.5, 8.5, 0}, 100); q != modelpkg.PathNoPath {
		t.Fatalf("enclosed dest: q=%v", q)
	}
}

func TestComputePathLengthCap(t *testing.T) {
	g := New(Config{Width: 100, Height: 10, CellSize: 1})
	from := mgl64.Vec3{1, 5, 0}
	pts, q := g.ComputePath(nil, from, mgl64.Vec3{90, 5, 0}, 20)
	if q != modelpkg.PathIncomplete {
		t.Fatalf("quality=%v", q)
	}
	if l := pathLength(from, pts); math.Abs(l-20) > 1e-9 {
		t.Fatalf("capped length=%v", l)
	}
}

func TestComputePathFlyingGoesStraight(t *testing.T) {
	g := wallGrid()
	a := &modelpkg.Agent{Caps: modelpkg.Capabilities{CanFly: true}, Flags: modelpkg.FlagFlying}
	to := mgl64.Vec3{8, 2, 5}
	pts, q := g.ComputePath(a, mgl64.Vec3{2, 2, 5}, to, 100)
	if q != modelpkg.PathNormal || len(pts) != 1 || pts[0] != to {
		t.Fatalf("pts=%v q=%v", pts, q)
	}
}

func TestFirstCollisionStopsAtWall(t *testing.T) {
	g := wallGrid()
	p := g.FirstCollision(mgl64.Vec3{2, 5, 0}, 10, 0)
	if p.X() >= 4-0.25 || p.X() < 4-0.25-g.CellSize()/4 {
		t.Fatalf("collision point %v", p)
	}
	if p.Y() != 5 {
		t.Fatalf("collision left the ray: %v", p)
	}

	free := g.FirstCollision(mgl64.Vec3{2, 9, 0}, 3, 0)
	if math.Abs(free.X()-5) > 1e-9 {
		t.Fatalf("unobstructed ray ended at %v", free)
	}

	edge := g.FirstCollision(mgl64.Vec3{2, 9, 0}, 50, math.Pi/2)
	if edge.Y() > 10 || edge.Y() < 9.5 {
		t.Fatalf("ray past world edge ended at %v", edge)
	}
}
