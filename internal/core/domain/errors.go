package domain

import "errors"

// ErrorCode is the stable, caller-facing identifier of an expected security outcome.
type ErrorCode string

const (
	CodeNotFound           ErrorCode = "not_found"
	CodeExpired            ErrorCode = "expired"
	CodeBlocked            ErrorCode = "blocked"
	CodeTooManySessions    ErrorCode = "too_many_sessions"
	CodeInvalidCode        ErrorCode = "invalid_code"
	CodeNotEnabled         ErrorCode = "not_enabled"
	CodeIntegrityViolation ErrorCode = "integrity_violation"
	CodeInvalidArgument    ErrorCode = "invalid_argument"
	CodeInternal           ErrorCode = "internal"
)

// Error is a typed, recoverable security outcome. Messages never carry tokens or codes.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is lets specific errors (ErrSessionNotFound) match their class sentinel (ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	class, ok := classes[t.Code]
	return ok && class == t && e.Code == t.Code
}

// Class sentinels.
var (
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrExpired            = &Error{Code: CodeExpired, Message: "expired"}
	ErrBlocked            = &Error{Code: CodeBlocked, Message: "blocked"}
	ErrTooManySessions    = &Error{Code: CodeTooManySessions, Message: "too many concurrent sessions"}
	ErrInvalidCode        = &Error{Code: CodeInvalidCode, Message: "invalid verification code"}
	ErrNotEnabled         = &Error{Code: CodeNotEnabled, Message: "two-factor authentication not enabled"}
	ErrIntegrityViolation = &Error{Code: CodeIntegrityViolation, Message: "audit integrity violation"}
	ErrInvalidArgument    = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
)

var classes = map[ErrorCode]*Error{
	CodeNotFound:           ErrNotFound,
	CodeExpired:            ErrExpired,
	CodeBlocked:            ErrBlocked,
	CodeTooManySessions:    ErrTooManySessions,
	CodeInvalidCode:        ErrInvalidCode,
	CodeNotEnabled:         ErrNotEnabled,
	CodeIntegrityViolation: ErrIntegrityViolation,
	CodeInvalidArgument:    ErrInvalidArgument,
}

var (
	// ErrSessionNotFound is returned for unknown or terminated session tokens.
	ErrSessionNotFound = &Error{Code: CodeNotFound, Message: "session not found"}
	// ErrSessionExpired is returned once a session passed its inactivity timeout.
	ErrSessionExpired = &Error{Code: CodeExpired, Message: "session expired"}
	// ErrIPBlocked is returned when session creation originates from a blocked address.
	ErrIPBlocked = &Error{Code: CodeBlocked, Message: "ip address blocked"}
	// ErrChallengeNotFound is returned when no live two-factor challenge exists.
	ErrChallengeNotFound = &Error{Code: CodeNotFound, Message: "no active verification code"}
	// ErrChallengeExpired is returned when the challenge outlived its TTL.
	ErrChallengeExpired = &Error{Code: CodeExpired, Message: "verification code expired"}
	// ErrChallengeLocked is returned once the challenge exhausted its attempts.
	ErrChallengeLocked = &Error{Code: CodeBlocked, Message: "verification locked: too many attempts"}
	// ErrMethodNotEnabled is returned when the requested delivery method is not enrolled or configured.
	ErrMethodNotEnabled = &Error{Code: CodeNotEnabled, Message: "two-factor method not enabled"}
	// ErrBlockNotFound is returned when unblocking an address that is not blocked.
	ErrBlockNotFound = &Error{Code: CodeNotFound, Message: "ip address not blocked"}
	// ErrEnrollmentNotFound is returned when the owner never enrolled.
	ErrEnrollmentNotFound = &Error{Code: CodeNotFound, Message: "two-factor enrollment not found"}
)

// CodeOf resolves the stable error code for err, or CodeInternal for unexpected failures.
func CodeOf(err error) ErrorCode {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return CodeInternal
}
