package stack

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/sim/motion/curve"
	"motionsync.ai/internal/sim/motion/gen"
	"motionsync.ai/internal/sim/motion/launch"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
	"motionsync.ai/internal/sim/world/logic/mathx"
)

func (s *Stack) MovePoint(env gen.Env, a *modelpkg.Agent, ref string, dest mgl64.Vec3, opt gen.PointOptions) {
	s.Push(env, a, SlotActive, gen.NewPoint(ref, dest, opt))
}

func (s *Stack) MoveChase(env gen.Env, a *modelpkg.Agent, targetID string, contact float64) {
	s.Push(env, a, SlotActive, gen.NewChase("", targetID, contact))
}

func (s *Stack) MoveFollow(env gen.Env, a *modelpkg.Agent, targetID string, distance, angle float64) {
	s.Push(env, a, SlotActive, gen.NewFollow("", targetID, distance, angle))
}

func (s *Stack) MoveFlee(env gen.Env, a *modelpkg.Agent, frightID string) {
	s.Push(env, a, SlotControlled, gen.NewFlee("", frightID))
}

func (s *Stack) MoveTimedFlee(env gen.Env, a *modelpkg.Agent, frightID string, seconds float64) {
	s.Push(env, a, SlotControlled, gen.NewTimedFlee("", frightID, seconds))
}

// MoveEffect plays req in the effect slot.
func (s *Stack) MoveEffect(env gen.Env, a *modelpkg.Agent, ref string, req *launch.Request) {
	s.Push(env, a, SlotEffect, gen.NewEffect(ref, req))
}

// MoveKnockback throws the agent away from origin on a ballistic arc. The
// horizontal distance and apex follow from the launch speeds and gravity.
func (s *Stack) MoveKnockback(env gen.Env, a *modelpkg.Agent, origin mgl64.Vec3, speedXY, speedZ float64) {
	if !(speedXY > 0) || !(speedZ > 0) {
		return
	}
	g := env.Tuning().Gravity
	half := speedZ / g
	pos := a.Pos()
	angle := a.Loc.O + math.Pi
	if mathx.Dist2D(origin, pos) > 1e-9 {
		angle = mathx.AngleTo(origin, pos)
	}
	dest := env.FirstCollision(pos, 2*half*speedXY, angle)
	s.MoveEffect(env, a, "knockback", &launch.Request{
		Dest:       dest,
		Velocity:   speedXY,
		JumpHeight: speedZ * speedZ / (2 * g),
		Facing:     curve.Facing{Kind: curve.FacingAngle, Angle: a.Loc.O},
		Forced:     true,
	})
}

func (s *Stack) MoveJump(env gen.Env, a *modelpkg.Agent, ref string, dest mgl64.Vec3, speedXY, height float64) {
	s.MoveEffect(env, a, ref, &launch.Request{Dest: dest, Velocity: speedXY, JumpHeight: height})
}

// MoveFall drops the agent straight down to groundZ.
func (s *Stack) MoveFall(env gen.Env, a *modelpkg.Agent, groundZ float64) {
	pos := a.Pos()
	if pos.Z()-groundZ <= 1e-6 {
		return
	}
	s.MoveEffect(env, a, "fall", &launch.Request{
		Dest:   mgl64.Vec3{pos.X(), pos.Y(), groundZ},
		Fall:   true,
		Forced: true,
	})
}

// MoveCyclicPath patrols points forever from the agent's position. It sits in
// the active slot so chases and effects interrupt it and it resumes after.
func (s *Stack) MoveCyclicPath(env gen.Env, a *modelpkg.Agent, ref string, points []mgl64.Vec3, walk bool, mode curve.Mode) {
	s.Push(env, a, SlotActive, gen.NewEffect(ref, &launch.Request{
		Points: append([]mgl64.Vec3(nil), points...),
		Walk:   walk,
		Cyclic: true,
		Mode:   mode,
	}))
}
