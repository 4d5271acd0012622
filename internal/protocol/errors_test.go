package protocol

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrBadRequest,
		ErrInvalidTarget,
		ErrConflict,
		ErrRateLimited,
		ErrBuildFailed,
		ErrTargetLost,
		ErrPathDegraded,
		ErrImmobilized,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestDecodeSyncRoutesByType(t *testing.T) {
	v, err := DecodeSync([]byte(`{"type":"MOVE_STOP","protocol_version":"1.0","tick":3,"agent_id":"A1","spline_id":7,"pos":[1,2,3],"orientation":0.5}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	stop, ok := v.(MoveStopMsg)
	if !ok {
		t.Fatalf("expected MoveStopMsg, got %T", v)
	}
	if stop.SplineID != 7 || stop.Pos != [3]float64{1, 2, 3} {
		t.Fatalf("unexpected stop: %+v", stop)
	}
	if _, err := DecodeSync([]byte(`{"type":"HELLO"}`)); err == nil {
		t.Fatalf("expected unknown type error")
	}
}
