package domain

import "time"

// SessionState enumerates the lifecycle states of a login session.
type SessionState string

const (
	SessionActive     SessionState = "active"
	SessionExpired    SessionState = "expired"
	SessionTerminated SessionState = "terminated"
)

// Session represents a server-side login session identified by an opaque token.
type Session struct {
	Token          string
	OwnerID        string
	IP             string
	CreatedAt      time.Time
	LastActivityAt time.Time
	State          SessionState
	MFAVerifiedAt  *time.Time
}

// IsActive reports whether the session is in the active state.
func (s Session) IsActive() bool {
	return s.State == SessionActive
}

// IdleExceeded reports whether the inactivity timeout elapsed at the supplied moment.
func (s Session) IdleExceeded(at time.Time, timeout time.Duration) bool {
	return at.Sub(s.LastActivityAt) > timeout
}

// SessionValidation is the verdict of a successful session validation.
type SessionValidation struct {
	Valid       bool
	OwnerID     string
	IP          string
	MFAVerified bool
	ExpiresAt   time.Time
}

// SessionView is a display-safe projection of a session: the token is truncated.
type SessionView struct {
	TokenPrefix    string
	OwnerID        string
	IP             string
	CreatedAt      time.Time
	LastActivityAt time.Time
	State          SessionState
	MFAVerified    bool
}

// SessionStats summarises session and block state for administrators.
type SessionStats struct {
	ActiveSessions     int
	ExpiredSessions    int
	TerminatedSessions int
	DistinctOwners     int
	BlockedIPs         int
}
