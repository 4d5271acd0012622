package protocol

const (
	// Request validation.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrConflict      = "E_CONFLICT"
	ErrRateLimited   = "E_RATE_LIMITED"

	// Motion outcomes.
	ErrBuildFailed  = "E_BUILD_FAILED"
	ErrTargetLost   = "E_TARGET_LOST"
	ErrPathDegraded = "E_PATH_DEGRADED"
	ErrImmobilized  = "E_IMMOBILIZED"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:    {},
	ErrInvalidTarget: {},
	ErrConflict:      {},
	ErrRateLimited:   {},
	ErrBuildFailed:   {},
	ErrTargetLost:    {},
	ErrPathDegraded:  {},
	ErrImmobilized:   {},
	ErrInternal:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
