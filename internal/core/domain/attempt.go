package domain

import "time"

// IPBlock denies session creation from an address until BlockedUntil.
type IPBlock struct {
	IP           string
	BlockedUntil time.Time
}

// ActiveAt reports whether the block is still in force at the supplied moment.
func (b IPBlock) ActiveAt(at time.Time) bool {
	return at.Before(b.BlockedUntil)
}

// AttemptResult is the outcome of recording a login attempt.
type AttemptResult struct {
	Blocked           bool
	RemainingAttempts int
	Failures          int
	BlockedUntil      *time.Time
}
