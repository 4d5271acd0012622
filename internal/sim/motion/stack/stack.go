// Package stack holds an agent's movement generators in priority slots.
// Exactly one generator, the one in the highest occupied slot, drives the
// agent at a time; the idle slot is always occupied.
package stack

import (
	"motionsync.ai/internal/sim/motion/gen"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

type Slot uint8

const (
	SlotIdle Slot = iota
	// SlotActive holds voluntary movement: point, chase, follow, patrol.
	SlotActive
	// SlotControlled holds movement the agent does not choose: fear, flee.
	SlotControlled
	// SlotEffect holds forced one-off curves: knockback, jump, fall.
	SlotEffect
	NumSlots
)

func (s Slot) String() string {
	switch s {
	case SlotIdle:
		return "idle"
	case SlotActive:
		return "active"
	case SlotControlled:
		return "controlled"
	case SlotEffect:
		return "effect"
	}
	return "invalid"
}

func (s Slot) Valid() bool { return s < NumSlots }

type OpKind uint8

const (
	OpPush OpKind = iota
	OpPop
	OpClear
	// OpCall runs Call against the stack, for intents that must read the
	// agent's state when they are applied rather than when they were queued.
	OpCall
)

// Op is a stack change requested by someone other than the owner. It is
// applied at the start of the owner's next update.
type Op struct {
	Kind OpKind
	Slot Slot
	Gen  *gen.Generator
	Call func(s *Stack, env gen.Env, a *modelpkg.Agent)
}

type Stack struct {
	owner    string
	slots    [NumSlots]*gen.Generator
	deferred []Op
}

func New(owner string) *Stack {
	s := &Stack{owner: owner}
	s.slots[SlotIdle] = gen.NewIdle()
	return s
}

func (s *Stack) Owner() string { return s.owner }

func (s *Stack) top() Slot {
	for i := NumSlots - 1; i > SlotIdle; i-- {
		if s.slots[i] != nil {
			return i
		}
	}
	return SlotIdle
}

// Active returns the driving generator and its slot.
func (s *Stack) Active() (Slot, *gen.Generator) {
	top := s.top()
	return top, s.slots[top]
}

func (s *Stack) At(slot Slot) *gen.Generator {
	if !slot.Valid() {
		return nil
	}
	return s.slots[slot]
}

// Push places g in slot, deactivating whatever was there. If slot becomes the
// active one, g launches its first trajectory before Push returns.
func (s *Stack) Push(env gen.Env, a *modelpkg.Agent, slot Slot, g *gen.Generator) bool {
	if g == nil || !slot.Valid() {
		return false
	}
	if old := s.slots[slot]; old != nil {
		gen.Deactivate(env, old, a)
	}
	s.slots[slot] = g
	gen.Activate(env, g, a, s.top() == slot)
	return true
}

// Pop removes the generator in slot. If it was the active one, the generator
// now exposed is resumed.
func (s *Stack) Pop(env gen.Env, a *modelpkg.Agent, slot Slot) bool {
	if slot == SlotIdle || !slot.Valid() || s.slots[slot] == nil {
		return false
	}
	wasTop := s.top() == slot
	old := s.slots[slot]
	s.slots[slot] = nil
	gen.Deactivate(env, old, a)
	if wasTop {
		_, next := s.Active()
		gen.Resume(env, next, a)
	}
	return true
}

// Clear empties every slot above idle and halts the agent.
func (s *Stack) Clear(env gen.Env, a *modelpkg.Agent) {
	for i := NumSlots - 1; i > SlotIdle; i-- {
		if g := s.slots[i]; g != nil {
			s.slots[i] = nil
			gen.Deactivate(env, g, a)
		}
	}
	gen.Resume(env, s.slots[SlotIdle], a)
}

func (s *Stack) Defer(op Op) {
	s.deferred = append(s.deferred, op)
}

func (s *Stack) Pending() int { return len(s.deferred) }

// ApplyDeferred runs queued ops in arrival order.
func (s *Stack) ApplyDeferred(env gen.Env, a *modelpkg.Agent) {
	ops := s.deferred
	s.deferred = nil
	for _, op := range ops {
		switch op.Kind {
		case OpPush:
			s.Push(env, a, op.Slot, op.Gen)
		case OpPop:
			s.Pop(env, a, op.Slot)
		case OpClear:
			s.Clear(env, a)
		case OpCall:
			if op.Call != nil {
				op.Call(s, env, a)
			}
		}
	}
}

// Update drives the active generator. A generator that finishes or fails is
// popped, or replaced by its handoff, before Update returns.
func (s *Stack) Update(env gen.Env, a *modelpkg.Agent, dt float64) gen.Status {
	s.ApplyDeferred(env, a)
	slot, g := s.Active()
	st := gen.Update(env, g, a, dt)
	if st == gen.Continue || slot == SlotIdle {
		return st
	}
	if s.slots[slot] != g {
		return st
	}
	if next := gen.Handoff(g); next != nil && st == gen.Finished {
		s.Push(env, a, slot, next)
		return st
	}
	s.Pop(env, a, slot)
	return st
}
