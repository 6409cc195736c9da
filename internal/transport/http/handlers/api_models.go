package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/transport/http/middleware"
)

// ErrorResponse is the uniform error payload. Code is the stable domain error code.
type ErrorResponse struct {
	Error             string     `json:"error"`
	Code              string     `json:"code,omitempty"`
	TraceID           string     `json:"trace_id,omitempty"`
	RemainingAttempts *int       `json:"remaining_attempts,omitempty"`
	BlockedUntil      *time.Time `json:"blocked_until,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// LoginRequest reports the outcome of a credential check done upstream.
// CredentialsValid defaults to true when omitted.
type LoginRequest struct {
	UserID           string `json:"user_id" binding:"required"`
	IPAddress        string `json:"ip_address"`
	CredentialsValid *bool  `json:"credentials_valid"`
}

// LoginResponse is returned for a successful login.
type LoginResponse struct {
	SessionToken string    `json:"session_token"`
	UserID       string    `json:"user_id"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	RequiresMFA  bool      `json:"requires_2fa"`
}

// SessionTokenRequest carries a session token in the body.
type SessionTokenRequest struct {
	SessionToken string `json:"session_token" binding:"required"`
}

// SessionValidateResponse describes a valid session.
type SessionValidateResponse struct {
	Valid       bool      `json:"valid"`
	UserID      string    `json:"user_id"`
	IPAddress   string    `json:"ip_address"`
	MFAVerified bool      `json:"mfa_verified"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionPayload is the display-safe view of a session.
type SessionPayload struct {
	TokenPrefix    string    `json:"token_prefix"`
	UserID         string    `json:"user_id"`
	IPAddress      string    `json:"ip_address"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity"`
	State          string    `json:"state"`
	MFAVerified    bool      `json:"mfa_verified"`
}

// SessionListResponse lists active sessions.
type SessionListResponse struct {
	UserID   string           `json:"user_id"`
	Sessions []SessionPayload `json:"sessions"`
	Total    int              `json:"total"`
}

// SessionStatsResponse summarises sessions and blocks.
type SessionStatsResponse struct {
	ActiveSessions     int `json:"active_sessions"`
	ExpiredSessions    int `json:"expired_sessions"`
	TerminatedSessions int `json:"terminated_sessions"`
	UniqueUsers        int `json:"unique_users"`
	BlockedIPs         int `json:"blocked_ips"`
}

// EnableTwoFactorRequest enrolls a user.
type EnableTwoFactorRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Method      string `json:"method" binding:"required"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

// UserRequest names a user.
type UserRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// TwoFactorStatusResponse is the masked enrollment.
type TwoFactorStatusResponse struct {
	UserID          string     `json:"user_id"`
	Enabled         bool       `json:"enabled"`
	Method          string     `json:"method,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Email           string     `json:"email,omitempty"`
	HasTOTP         bool       `json:"has_authenticator"`
	EnabledAt       *time.Time `json:"enabled_at,omitempty"`
	ProvisioningURI string     `json:"provisioning_uri,omitempty"`
}

// SendCodeRequest asks for a code for the session owner.
type SendCodeRequest struct {
	Method string `json:"method" binding:"required"`
}

// SendCodeResponse describes an issued challenge.
type SendCodeResponse struct {
	Method      string    `json:"method"`
	Destination string    `json:"destination"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// VerifyCodeRequest submits a code for the session owner.
type VerifyCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// VerifyCodeResponse reports a passed challenge.
type VerifyCodeResponse struct {
	Authenticated bool `json:"authenticated"`
}

// UnblockRequest names who lifts the block.
type UnblockRequest struct {
	Actor string `json:"actor"`
}

// AuditEntryPayload is one audit record as stored.
type AuditEntryPayload struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Actor       string            `json:"user_id"`
	EventType   string            `json:"event_type"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	ContentHash string            `json:"hash"`
}

// AuditTrailResponse lists audit records.
type AuditTrailResponse struct {
	Entries []AuditEntryPayload `json:"entries"`
	Total   int                 `json:"total"`
}

// HealthResponse describes liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newSessionPayload(view domain.SessionView) SessionPayload {
	return SessionPayload{
		TokenPrefix:    view.TokenPrefix,
		UserID:         view.OwnerID,
		IPAddress:      view.IP,
		CreatedAt:      view.CreatedAt,
		LastActivityAt: view.LastActivityAt,
		State:          string(view.State),
		MFAVerified:    view.MFAVerified,
	}
}

func newTwoFactorStatus(status domain.TwoFactorStatus) TwoFactorStatusResponse {
	return TwoFactorStatusResponse{
		UserID:    status.OwnerID,
		Enabled:   status.Enabled,
		Method:    string(status.Method),
		Phone:     status.MaskedPhone,
		Email:     status.MaskedEmail,
		HasTOTP:   status.HasTOTP,
		EnabledAt: status.EnabledAt,
	}
}

func newAuditEntryPayload(entry domain.AuditEntry) AuditEntryPayload {
	return AuditEntryPayload{
		ID:          entry.ID,
		Timestamp:   entry.Timestamp,
		Actor:       entry.Actor,
		EventType:   string(entry.EventType),
		Description: entry.Description,
		Metadata:    entry.Metadata,
		ContentHash: entry.ContentHash,
	}
}
