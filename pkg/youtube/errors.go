package youtube

import (
	"errors"
	"fmt"
)

// Sentinel errors for the two upstream conditions callers must branch on.
// Everything else is a partial-fetch failure handled by degrading to empty
// results.
var (
	// ErrQuotaExceeded means the upstream itself reported quotaExceeded.
	// Sticky: the ledger must be marked and further spend halted until the
	// next daily reset.
	ErrQuotaExceeded = errors.New("youtube: quota exceeded")

	// ErrRateLimited is a transient throttle signal. The client already
	// waited; the caller should drop this one call and continue.
	ErrRateLimited = errors.New("youtube: rate limited")

	// ErrChannelNotFound means a channel identifier could not be resolved.
	ErrChannelNotFound = errors.New("youtube: channel not found")
)

// APIError is a structured upstream error parsed from the JSON error shape.
type APIError struct {
	Code    int
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube api error %d (%s): %s", e.Code, e.Reason, e.Message)
}

// Is maps upstream reason codes onto the package sentinels so callers can
// use errors.Is without inspecting reasons themselves.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrQuotaExceeded:
		return e.Reason == "quotaExceeded"
	case ErrRateLimited:
		return e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded"
	}
	return false
}
