package launch

import (
	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/sim/motion/curve"
)

// Request is a pending trajectory. It is consumed by exactly one Launch.
// Points and Dest are in world space; Launch converts them when
// TransportRelative is set.
type Request struct {
	// Points is an explicit waypoint list following the current position.
	Points []mgl64.Vec3
	// Dest is used when Points is empty.
	Dest          mgl64.Vec3
	UsePath       bool
	MaxPathLength float64

	Facing   curve.Facing
	Velocity float64
	Walk     bool
	Backward bool

	TransportRelative bool

	Mode   curve.Mode
	Cyclic bool

	// Fall drops the agent under gravity to the last point's height; the
	// velocity is derived from the fall time.
	Fall bool
	// JumpHeight > 0 adds a parabolic arc peaking at that height.
	JumpHeight float64

	// Forced requests (knockback, scripted effects) ignore Rooted/Stunned.
	Forced bool

	consumed bool
}

func MoveTo(dest mgl64.Vec3, usePath bool) *Request {
	return &Request{Dest: dest, UsePath: usePath}
}

func MoveByPath(points []mgl64.Vec3) *Request {
	return &Request{Points: append([]mgl64.Vec3(nil), points...)}
}

func (r *Request) Consumed() bool { return r.consumed }
