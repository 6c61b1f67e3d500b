package booking

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderCancelled = errors.New("order already cancelled")
	ErrRateLimited    = errors.New("rate limited")
)

// InvalidRequestError is a caller error: malformed input, out-of-bounds
// seat, duplicate tuple or a journey that already departed. Never retried.
type InvalidRequestError struct {
	Reason string
}

func (e InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// SeatConflictError reports legitimate contention: the listed tuples were
// already taken. The caller picks different seats; the allocator does not
// retry with alternates.
type SeatConflictError struct {
	Conflicts []SeatRequest
}

func (e SeatConflictError) Error() string {
	return fmt.Sprintf("seats already taken: %v", e.Conflicts)
}

type JourneyNotFoundError struct {
	JourneyID int64
}

func (e JourneyNotFoundError) Error() string {
	return fmt.Sprintf("journey not found: %d", e.JourneyID)
}
