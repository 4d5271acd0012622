package model

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/sim/world/logic/mathx"
)

// Location is a position plus a facing angle. O is never interpolated.
type Location struct {
	X, Y, Z float64
	O       float64
}

func LocationAt(p mgl64.Vec3, o float64) Location {
	return Location{X: p.X(), Y: p.Y(), Z: p.Z(), O: o}
}

func (l Location) Pos() mgl64.Vec3 { return mgl64.Vec3{l.X, l.Y, l.Z} }

// Transform places a moving platform in the world: a translation plus a yaw
// around the vertical axis.
type Transform struct {
	Origin mgl64.Vec3
	Yaw    float64
}

func (t Transform) ToWorld(local mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Rotate3DZ(t.Yaw).Mul3x1(local).Add(t.Origin)
}

func (t Transform) ToLocal(world mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Rotate3DZ(-t.Yaw).Mul3x1(world.Sub(t.Origin))
}

func (t Transform) AngleToWorld(o float64) float64 {
	return mathx.NormalizeAngle(o + t.Yaw)
}

func (t Transform) AngleToLocal(o float64) float64 {
	return mathx.NormalizeAngle(o - t.Yaw)
}

func (t Transform) Valid() bool {
	return mathx.Finite(t.Origin) && !math.IsNaN(t.Yaw) && !math.IsInf(t.Yaw, 0)
}
