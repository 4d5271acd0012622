package launch

import (
	"github.com/go-gl/mathgl/mgl64"

	"motionsync.ai/internal/protocol"
	"motionsync.ai/internal/sim/motion/curve"
	modelpkg "motionsync.ai/internal/sim/world/kernel/model"
)

func (b *Builder) launchMsg(a *modelpkg.Agent, c *curve.Curve, walk bool) protocol.MoveSplineMsg {
	pts := c.Points()
	out := make([][3]float64, len(pts))
	for i, p := range pts {
		out[i] = vec3Array(p)
	}
	msg := protocol.MoveSplineMsg{
		Type:              protocol.TypeMoveSpline,
		ProtocolVersion:   protocol.Version,
		Tick:              b.env.CurrentTick(),
		AgentID:           a.ID,
		SplineID:          c.ID(),
		Points:            out,
		Mode:              c.Mode().String(),
		Cyclic:            c.Cyclic(),
		Facing:            FacingDesc(c.Facing()),
		Orientation:       c.Orientation(),
		Velocity:          c.Velocity(),
		TransportRelative: a.SplineTransport != "",
		TransportID:       a.SplineTransport,
		Walk:              walk,
	}
	switch v := c.Vertical(); v.Kind {
	case curve.VerticalFall:
		msg.Vertical = &protocol.VerticalDesc{Kind: protocol.VerticalFall, Accel: v.Accel}
	case curve.VerticalParabolic:
		msg.Vertical = &protocol.VerticalDesc{Kind: protocol.VerticalParabolic, Accel: v.Accel}
	}
	return msg
}

func FacingDesc(f curve.Facing) protocol.FacingDesc {
	switch f.Kind {
	case curve.FacingAngle:
		return protocol.FacingDesc{Kind: protocol.FacingAngle, Angle: f.Angle}
	case curve.FacingTarget:
		return protocol.FacingDesc{Kind: protocol.FacingTarget, TargetID: f.TargetID}
	case curve.FacingPoint:
		p := vec3Array(f.Point)
		return protocol.FacingDesc{Kind: protocol.FacingPoint, Point: &p}
	}
	return protocol.FacingDesc{Kind: protocol.FacingNone}
}

// ParamsFromMsg rebuilds the curve parameters a MOVE_SPLINE describes.
func ParamsFromMsg(m protocol.MoveSplineMsg) curve.Params {
	pts := make([]mgl64.Vec3, len(m.Points))
	for i, p := range m.Points {
		pts[i] = mgl64.Vec3(p)
	}
	p := curve.Params{
		Points:      pts,
		Velocity:    m.Velocity,
		Cyclic:      m.Cyclic,
		Orientation: m.Orientation,
	}
	if m.Mode == protocol.ModeSmooth {
		p.Mode = curve.ModeSmooth
	}
	switch m.Facing.Kind {
	case protocol.FacingAngle:
		p.Facing = curve.Facing{Kind: curve.FacingAngle, Angle: m.Facing.Angle}
	case protocol.FacingTarget:
		p.Facing = curve.Facing{Kind: curve.FacingTarget, TargetID: m.Facing.TargetID}
	case protocol.FacingPoint:
		if m.Facing.Point != nil {
			p.Facing = curve.Facing{Kind: curve.FacingPoint, Point: mgl64.Vec3(*m.Facing.Point)}
		}
	}
	if m.Vertical != nil {
		switch m.Vertical.Kind {
		case protocol.VerticalFall:
			p.Vertical = curve.Vertical{Kind: curve.VerticalFall, Accel: m.Vertical.Accel}
		case protocol.VerticalParabolic:
			p.Vertical = curve.Vertical{Kind: curve.VerticalParabolic, Accel: m.Vertical.Accel}
		}
	}
	return p
}

func vec3Array(p mgl64.Vec3) [3]float64 { return [3]float64(p) }
