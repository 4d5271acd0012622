package protocol

import "encoding/json"

// Interpolation modes.
const (
	ModeLinear = "LINEAR"
	ModeSmooth = "SMOOTH"
)

// Facing override kinds.
const (
	FacingNone   = "NONE"
	FacingAngle  = "ANGLE"
	FacingTarget = "TARGET"
	FacingPoint  = "POINT"
)

// Vertical motion kinds.
const (
	VerticalFall      = "FALL"
	VerticalParabolic = "PARABOLIC"
)

// MOVE_SPLINE (server -> observer)
//
// Carries everything an observer needs to rebuild the curve locally. Points are
// in the transport's local frame when TransportRelative is set.
type MoveSplineMsg struct {
	Type              string        `json:"type"`
	ProtocolVersion   string        `json:"protocol_version"`
	Tick              uint64        `json:"tick"`
	AgentID           string        `json:"agent_id"`
	SplineID          uint32        `json:"spline_id"`
	Points            [][3]float64  `json:"points"`
	Mode              string        `json:"mode"`
	Cyclic            bool          `json:"cyclic,omitempty"`
	Facing            FacingDesc    `json:"facing"`
	Orientation       float64       `json:"orientation"`
	Velocity          float64       `json:"velocity"`
	TransportRelative bool          `json:"transport_relative,omitempty"`
	TransportID       string        `json:"transport_id,omitempty"`
	Vertical          *VerticalDesc `json:"vertical,omitempty"`
	Walk              bool          `json:"walk,omitempty"`
}

type FacingDesc struct {
	Kind     string      `json:"kind"`
	Angle    float64     `json:"angle,omitempty"`
	TargetID string      `json:"target_id,omitempty"`
	Point    *[3]float64 `json:"point,omitempty"`
}

type VerticalDesc struct {
	Kind  string  `json:"kind"`
	Accel float64 `json:"accel"`
}

// MOVE_STOP (server -> observer). When TransportID is set, Pos and
// Orientation are in that transport's frame.
type MoveStopMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	AgentID         string     `json:"agent_id"`
	SplineID        uint32     `json:"spline_id"`
	Pos             [3]float64 `json:"pos"`
	Orientation     float64    `json:"orientation"`
	TransportID     string     `json:"transport_id,omitempty"`
}

// AGENT_LEAVE (server -> observer). The agent left the world; observers drop
// its curve.
type AgentLeaveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AgentID         string `json:"agent_id"`
}

// SUBSCRIBE (observer -> server). An empty AgentIDs list subscribes to every agent.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	AgentIDs        []string `json:"agent_ids,omitempty"`
}

// BOOTSTRAP (server -> observer, HTTP). Latest sync message per agent so a late
// observer can reconstruct every curve without waiting for the next launch.
type BootstrapResponse struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	WorldID         string          `json:"world_id"`
	Tick            uint64          `json:"tick"`
	TickRateHz      int             `json:"tick_rate_hz"`
	Splines         []MoveSplineMsg `json:"splines"`
	Stops           []MoveStopMsg   `json:"stops"`
}

// Event is a free-form motion event (MOTION_DONE / MOTION_FAIL).
type Event map[string]interface{}

// COMMAND (controller -> server). Command is a world command in its JSON
// form; the server decodes it.
type CommandMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Seq             uint64          `json:"seq"`
	Command         json.RawMessage `json:"command"`
}

// ACK (server -> controller). Accepted only means the command was queued;
// rejections found while applying it surface as MOTION_FAIL events.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}
