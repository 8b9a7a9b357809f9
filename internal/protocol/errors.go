package protocol

import "sort"

// Result and error codes carried by ACT_RESULT and ERROR frames.
const (
	// Frame could not be decoded, validated or rate-admitted.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrRateLimit       = "E_RATE_LIMIT"

	// Rejected by the rules. The state is left as it was.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrNoBuilder     = "E_NO_BUILDER"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrConflict      = "E_CONFLICT"
	ErrLimit         = "E_LIMIT"

	// The world stopped before the action ran, or something broke server side.
	ErrStale    = "E_STALE"
	ErrInternal = "E_INTERNAL"
)

// Codes returns every defined code, sorted.
func Codes() []string {
	out := []string{
		ErrProtoBadRequest, ErrRateLimit,
		ErrBadRequest, ErrNoResource, ErrNoBuilder, ErrInvalidTarget, ErrConflict, ErrLimit,
		ErrStale, ErrInternal,
	}
	sort.Strings(out)
	return out
}

// IsKnownCode reports whether code is defined. The empty code (success) counts as known.
func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	codes := Codes()
	i := sort.SearchStrings(codes, code)
	return i < len(codes) && codes[i] == code
}
