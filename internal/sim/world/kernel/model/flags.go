package model

import "motionsync.ai/internal/sim/tuning"

type MoveFlags uint32

const (
	FlagForward MoveFlags = 1 << iota
	FlagBackward
	FlagWalking
	FlagSwimming
	FlagFlying
	FlagFalling
	FlagRooted
	FlagStunned
	FlagChasing
	FlagFollowing
	FlagFleeing
	FlagSplineActive
)

// FlagsMotion are the flags describing an in-flight trajectory; a halt
// clears all of them.
const FlagsMotion = FlagForward | FlagBackward | FlagFalling | FlagSplineActive

func (f MoveFlags) Has(x MoveFlags) bool { return f&x != 0 }

func (f *MoveFlags) Set(x MoveFlags)   { *f |= x }
func (f *MoveFlags) Clear(x MoveFlags) { *f &^= x }

type SpeedMode uint8

const (
	SpeedWalk SpeedMode = iota
	SpeedRun
	SpeedRunBack
	SpeedSwim
	SpeedSwimBack
	SpeedFlight
	SpeedFlightBack
	NumSpeedModes
)

type SpeedTable [NumSpeedModes]float64

func SpeedTableFrom(s tuning.Speeds) SpeedTable {
	return SpeedTable{
		SpeedWalk:       s.Walk,
		SpeedRun:        s.Run,
		SpeedRunBack:    s.RunBack,
		SpeedSwim:       s.Swim,
		SpeedSwimBack:   s.SwimBack,
		SpeedFlight:     s.Flight,
		SpeedFlightBack: s.FlightBack,
	}
}

// SelectMode picks the speed mode for a set of movement flags. Flying needs
// the capability; backward movement has its own, slower, modes.
func SelectMode(flags MoveFlags, caps Capabilities) SpeedMode {
	back := flags.Has(FlagBackward)
	switch {
	case flags.Has(FlagFlying) && caps.CanFly:
		if back {
			return SpeedFlightBack
		}
		return SpeedFlight
	case flags.Has(FlagSwimming):
		if back {
			return SpeedSwimBack
		}
		return SpeedSwim
	case back:
		return SpeedRunBack
	case flags.Has(FlagWalking):
		return SpeedWalk
	}
	return SpeedRun
}

func (t SpeedTable) For(flags MoveFlags, caps Capabilities) float64 {
	return t[SelectMode(flags, caps)]
}
