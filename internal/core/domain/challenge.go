package domain

import (
	"strings"
	"time"
)

// TwoFactorMethod identifies how a one-time code reaches its owner.
type TwoFactorMethod string

const (
	MethodSMS              TwoFactorMethod = "SMS"
	MethodAuthenticatorApp TwoFactorMethod = "AUTHENTICATOR_APP"
	MethodEmail            TwoFactorMethod = "EMAIL"
)

// ParseTwoFactorMethod normalises user input into a known method.
func ParseTwoFactorMethod(raw string) (TwoFactorMethod, bool) {
	switch TwoFactorMethod(strings.ToUpper(strings.TrimSpace(raw))) {
	case MethodSMS:
		return MethodSMS, true
	case MethodAuthenticatorApp:
		return MethodAuthenticatorApp, true
	case MethodEmail:
		return MethodEmail, true
	default:
		return "", false
	}
}

// ChallengeState enumerates two-factor challenge states. Issued records carry a code;
// a Locked record is a code-less tombstone kept until the original expiry so that
// further attempts keep failing as locked. Verified and Expired records are deleted.
type ChallengeState string

const (
	ChallengeIssued   ChallengeState = "issued"
	ChallengeVerified ChallengeState = "verified"
	ChallengeExpired  ChallengeState = "expired"
	ChallengeLocked   ChallengeState = "locked"
)

// Challenge is the single live one-time code bound to an owner.
type Challenge struct {
	OwnerID     string
	Code        string
	Method      TwoFactorMethod
	Destination string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Attempts    int
	State       ChallengeState
}

// ExpiredAt reports whether the code outlived its TTL.
func (c Challenge) ExpiredAt(at time.Time) bool {
	return at.After(c.ExpiresAt)
}

// Enrollment records whether and how an owner uses two-factor authentication.
type Enrollment struct {
	OwnerID    string
	Enabled    bool
	Method     TwoFactorMethod
	Phone      string
	Email      string
	TOTPSecret string
	EnabledAt  *time.Time
}

// Supports reports whether the enrollment carries the material the method needs.
func (e Enrollment) Supports(method TwoFactorMethod) bool {
	switch method {
	case MethodSMS:
		return strings.TrimSpace(e.Phone) != ""
	case MethodEmail:
		return strings.TrimSpace(e.Email) != ""
	case MethodAuthenticatorApp:
		return strings.TrimSpace(e.TOTPSecret) != ""
	default:
		return false
	}
}

// Destination returns the raw delivery address for the method.
func (e Enrollment) Destination(method TwoFactorMethod) string {
	switch method {
	case MethodSMS:
		return e.Phone
	case MethodEmail:
		return e.Email
	case MethodAuthenticatorApp:
		return "authenticator app"
	default:
		return ""
	}
}

// TwoFactorStatus is a display-safe projection of an enrollment.
type TwoFactorStatus struct {
	OwnerID     string
	Enabled     bool
	Method      TwoFactorMethod
	MaskedPhone string
	MaskedEmail string
	HasTOTP     bool
	EnabledAt   *time.Time
}
