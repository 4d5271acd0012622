package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeMoveSpline = "MOVE_SPLINE"
	TypeMoveStop   = "MOVE_STOP"
	TypeAgentLeave = "AGENT_LEAVE"
	TypeSubscribe  = "SUBSCRIBE"
	TypeBootstrap  = "BOOTSTRAP"
	TypeCommand    = "COMMAND"
	TypeAck        = "ACK"
)

// Event types carried in tick journal entries.
const (
	EventMotionDone = "MOTION_DONE"
	EventMotionFail = "MOTION_FAIL"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// DecodeSync decodes a MOVE_SPLINE, MOVE_STOP or AGENT_LEAVE message. The
// returned value is MoveSplineMsg, MoveStopMsg or AgentLeaveMsg.
func DecodeSync(b []byte) (any, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, err
	}
	switch base.Type {
	case TypeMoveSpline:
		var m MoveSplineMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeMoveStop:
		var m MoveStopMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeAgentLeave:
		var m AgentLeaveMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, &UnknownTypeError{Type: base.Type}
}

type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return "protocol: unknown message type " + e.Type
}
