package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/curve"
	"motionsync.ai/internal/sim/motion/gen"
	"motionsync.ai/internal/sim/motion/stack"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

type CommandKind string

const (
	CmdSpawn     CommandKind = "SPAWN"
	CmdDespawn   CommandKind = "DESPAWN"
	CmdMovePoint CommandKind = "MOVE_POINT"
	CmdChase     CommandKind = "CHASE"
	CmdFollow    CommandKind = "FOLLOW"
	CmdFlee      CommandKind = "FLEE"
	CmdTimedFlee CommandKind = "TIMED_FLEE"
	CmdKnockback CommandKind = "KNOCKBACK"
	CmdJump      CommandKind = "JUMP"
	CmdFall      CommandKind = "FALL"
	CmdPatrol    CommandKind = "PATROL"
	CmdPop       CommandKind = "POP"
	CmdStop      CommandKind = "STOP"
	CmdRoot      CommandKind = "ROOT"
	CmdUnroot    CommandKind = "UNROOT"
	CmdStun      CommandKind = "STUN"
	CmdUnstun    CommandKind = "UNSTUN"
	CmdBoard     CommandKind = "BOARD"
)

// Command is a request from outside the simulation (AI, combat, scripts).
// Commands are applied at the next tick boundary in arrival order; motion
// commands are queued on the agent's stack and take effect during that
// agent's own update.
type Command struct {
	Kind     CommandKind  `json:"kind"`
	AgentID  string       `json:"agent_id,omitempty"`
	Ref      string       `json:"ref,omitempty"`
	TargetID string       `json:"target_id,omitempty"`
	Point    [3]float64   `json:"point"`
	Points   [][3]float64 `json:"points,omitempty"`
	UsePath  bool         `json:"use_path,omitempty"`
	Walk     bool         `json:"walk,omitempty"`
	Smooth   bool         `json:"smooth,omitempty"`
	Velocity float64      `json:"velocity,omitempty"`
	Distance float64      `json:"distance,omitempty"`
	Angle    float64      `json:"angle,omitempty"`
	Seconds  float64      `json:"seconds,omitempty"`
	SpeedXY  float64      `json:"speed_xy,omitempty"`
	SpeedZ   float64      `json:"speed_z,omitempty"`
	Height   float64      `json:"height,omitempty"`
	Slot     string       `json:"slot,omitempty"`
	Spawn    *AgentSpec   `json:"spawn,omitempty"`
}

type commandError struct {
	code    string
	message string
}

func (e *commandError) Error() string { return e.code + ": " + e.message }

func badRequest(format string, args ...any) error {
	return &commandError{code: protocol.ErrBadRequest, message: fmt.Sprintf(format, args...)}
}

func invalidTarget(format string, args ...any) error {
	return &commandError{code: protocol.ErrInvalidTarget, message: fmt.Sprintf(format, args...)}
}

func parseSlot(s string) (stack.Slot, bool) {
	switch s {
	case "active", "":
		return stack.SlotActive, true
	case "controlled":
		return stack.SlotControlled, true
	case "effect":
		return stack.SlotEffect, true
	}
	return 0, false
}

func (w *World) applyCommand(cmd Command, nowTick uint64, leaves *[]string) error {
	switch cmd.Kind {
	case CmdSpawn:
		if cmd.Spawn == nil {
			return badRequest("spawn without agent spec")
		}
		if err := w.spawn(*cmd.Spawn); err != nil {
			return badRequest("%v", err)
		}
		return nil
	case CmdDespawn:
		if !w.despawn(cmd.AgentID) {
			return invalidTarget("agent %s not found", cmd.AgentID)
		}
		*leaves = append(*leaves, cmd.AgentID)
		return nil
	}

	st := w.agents[cmd.AgentID]
	if st == nil {
		return invalidTarget("agent %s not found", cmd.AgentID)
	}
	a := st.agent
	point := mgl64.Vec3(cmd.Point)

	switch cmd.Kind {
	case CmdRoot:
		a.Flags.Set(modelpkg.FlagRooted)
		return nil
	case CmdUnroot:
		a.Flags.Clear(modelpkg.FlagRooted)
		return nil
	case CmdStun:
		a.Flags.Set(modelpkg.FlagStunned)
		return nil
	case CmdUnstun:
		a.Flags.Clear(modelpkg.FlagStunned)
		return nil
	case CmdBoard:
		if cmd.TargetID != "" && w.transports[cmd.TargetID] == nil {
			return invalidTarget("transport %s not found", cmd.TargetID)
		}
		a.TransportID = cmd.TargetID
		return nil
	}

	var op stack.Op
	switch cmd.Kind {
	case CmdMovePoint:
		op = pushOp(stack.SlotActive, gen.NewPoint(cmd.Ref, point, gen.PointOptions{
			UsePath:  cmd.UsePath,
			Velocity: cmd.Velocity,
			Walk:     cmd.Walk,
			Local:    a.TransportID != "",
		}))
	case CmdChase, CmdFollow, CmdTimedFlee:
		if cmd.TargetID == "" || cmd.TargetID == a.ID {
			return badRequest("%s needs another agent as target", cmd.Kind)
		}
		if w.agents[cmd.TargetID] == nil {
			return invalidTarget("target %s not found", cmd.TargetID)
		}
		switch cmd.Kind {
		case CmdChase:
			op = pushOp(stack.SlotActive, gen.NewChase(cmd.Ref, cmd.TargetID, cmd.Distance))
		case CmdFollow:
			op = pushOp(stack.SlotActive, gen.NewFollow(cmd.Ref, cmd.TargetID, cmd.Distance, cmd.Angle))
		default:
			if !(cmd.Seconds > 0) {
				return badRequest("timed flee needs seconds > 0")
			}
			op = pushOp(stack.SlotControlled, gen.NewTimedFlee(cmd.Ref, cmd.TargetID, cmd.Seconds))
		}
	case CmdFlee:
		if cmd.TargetID != "" && w.agents[cmd.TargetID] == nil {
			return invalidTarget("fright source %s not found", cmd.TargetID)
		}
		op = pushOp(stack.SlotControlled, gen.NewFlee(cmd.Ref, cmd.TargetID))
	case CmdKnockback:
		if !(cmd.SpeedXY > 0) || !(cmd.SpeedZ > 0) {
			return badRequest("knockback needs positive speeds")
		}
		op = callOp(func(s *stack.Stack, env gen.Env, a *modelpkg.Agent) {
			s.MoveKnockback(env, a, point, cmd.SpeedXY, cmd.SpeedZ)
		})
	case CmdJump:
		if !(cmd.Velocity > 0) || !(cmd.Height > 0) {
			return badRequest("jump needs velocity and height > 0")
		}
		op = callOp(func(s *stack.Stack, env gen.Env, a *modelpkg.Agent) {
			s.MoveJump(env, a, cmd.Ref, point, cmd.Velocity, cmd.Height)
		})
	case CmdFall:
		nav := w.cfg.Nav
		op = callOp(func(s *stack.Stack, env gen.Env, a *modelpkg.Agent) {
			p := a.Pos()
			s.MoveFall(env, a, nav.GroundHeight(p.X(), p.Y()))
		})
	case CmdPatrol:
		if len(cmd.Points) == 0 {
			return badRequest("patrol without points")
		}
		pts := make([]mgl64.Vec3, len(cmd.Points))
		for i, p := range cmd.Points {
			pts[i] = mgl64.Vec3(p)
		}
		mode := curve.ModeLinear
		if cmd.Smooth {
			mode = curve.ModeSmooth
		}
		op = callOp(func(s *stack.Stack, env gen.Env, a *modelpkg.Agent) {
			s.MoveCyclicPath(env, a, cmd.Ref, pts, cmd.Walk, mode)
		})
	case CmdPop:
		slot, ok := parseSlot(cmd.Slot)
		if !ok {
			return badRequest("unknown slot %q", cmd.Slot)
		}
		op = stack.Op{Kind: stack.OpPop, Slot: slot}
	case CmdStop:
		op = stack.Op{Kind: stack.OpClear}
	default:
		return badRequest("unknown command %q", cmd.Kind)
	}
	st.stack.Defer(op)
	return nil
}

func pushOp(slot stack.Slot, g *gen.Generator) stack.Op {
	return stack.Op{Kind: stack.OpPush, Slot: slot, Gen: g}
}

func callOp(fn func(s *stack.Stack, env gen.Env, a *modelpkg.Agent)) stack.Op {
	return stack.Op{Kind: stack.OpCall, Call: fn}
}

// commandRejected reports a refused command on the agent it named, or in the
// server log when there is no such agent.
func (w *World) commandRejected(cmd Command, nowTick uint64, err error) {
	code, msg := protocol.ErrInternal, err.Error()
	if ce, ok := err.(*commandError); ok {
		code, msg = ce.code, ce.message
	}
	if st := w.agents[cmd.AgentID]; st != nil {
		st.agent.AddEvent(protocol.Event{
			"t":        nowTick,
			"type":     protocol.EventMotionFail,
			"agent_id": cmd.AgentID,
			"ref":      cmd.Ref,
			"kind":     string(cmd.Kind),
			"code":     code,
			"message":  msg,
		})
		return
	}
	w.logger.Printf("tick %d: command %s rejected: %s %s", nowTick, cmd.Kind, code, msg)
}
