package usecase

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

const tracerName = "github.com/Firasse123/FineVerse-AIXCYBER/internal/usecase"

// LoginRequest carries the outcome of a credential check made by the caller.
type LoginRequest struct {
	Identity string
	IP       string
	Success  bool
}

// LoginResult is the combined verdict of a login.
type LoginResult struct {
	Authenticated bool
	Session       *domain.Session
	RequiresMFA   bool
	Attempt       *domain.AttemptResult
}

// RemainingAttempts is the number of failures left before the IP is blocked.
func (r *LoginResult) RemainingAttempts() int {
	if r == nil || r.Attempt == nil {
		return 0
	}
	return r.Attempt.RemainingAttempts
}

// SecurityFacade composes the security components into the operations API handlers call.
type SecurityFacade struct {
	Audit     *AuditTrail
	Guard     *LoginGuard
	TwoFactor *TwoFactorService
	Sessions  *SessionStore

	logger *zap.Logger
	tracer trace.Tracer
}

// NewSecurityFacade wires the components together.
func NewSecurityFacade(audit *AuditTrail, guard *LoginGuard, twoFactor *TwoFactorService, sessions *SessionStore, logger *zap.Logger) *SecurityFacade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityFacade{
		Audit:     audit,
		Guard:     guard,
		TwoFactor: twoFactor,
		Sessions:  sessions,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// Login records the attempt and, on success, opens a session and reports whether 2FA must follow.
func (f *SecurityFacade) Login(ctx context.Context, req LoginRequest) (result *LoginResult, err error) {
	ctx, span := f.tracer.Start(ctx, "security.login", trace.WithAttributes(
		attribute.String("security.identity", req.Identity),
		attribute.Bool("security.credentials_valid", req.Success),
	))
	defer func() { endSpan(span, err) }()

	attempt, err := f.Guard.RecordAttempt(ctx, req.Identity, req.IP, req.Success)
	if err != nil {
		return nil, err
	}
	if !req.Success {
		span.SetAttributes(attribute.Bool("security.ip_blocked", attempt.Blocked))
		return &LoginResult{Attempt: attempt}, nil
	}

	session, err := f.Sessions.Create(ctx, req.Identity, req.IP)
	if err != nil {
		return nil, err
	}

	requiresMFA, err := f.TwoFactor.Enabled(ctx, req.Identity)
	if err != nil {
		f.logger.Warn("two-factor status unavailable, requiring verification", zap.String("identity", req.Identity), zap.Error(err))
		requiresMFA = true
	}

	return &LoginResult{
		Authenticated: true,
		Session:       session,
		RequiresMFA:   requiresMFA,
		Attempt:       attempt,
	}, nil
}

// ValidateSession validates and refreshes a session token.
func (f *SecurityFacade) ValidateSession(ctx context.Context, token string) (v *domain.SessionValidation, err error) {
	ctx, span := f.tracer.Start(ctx, "security.session.validate")
	defer func() { endSpan(span, err) }()

	return f.Sessions.Validate(ctx, token)
}

// Logout terminates a session.
func (f *SecurityFacade) Logout(ctx context.Context, token string) (err error) {
	ctx, span := f.tracer.Start(ctx, "security.session.logout")
	defer func() { endSpan(span, err) }()

	return f.Sessions.Logout(ctx, token)
}

// ActiveSessions lists display-safe active sessions of an owner.
func (f *SecurityFacade) ActiveSessions(ctx context.Context, ownerID string) ([]domain.SessionView, error) {
	return f.Sessions.ListActive(ctx, ownerID)
}

// SessionStats summarises sessions and active IP blocks.
func (f *SecurityFacade) SessionStats(ctx context.Context) (*domain.SessionStats, error) {
	stats, err := f.Sessions.Stats(ctx)
	if err != nil {
		return nil, err
	}
	blocked, err := f.Guard.ActiveBlocks(ctx)
	if err != nil {
		return nil, err
	}
	stats.BlockedIPs = blocked
	return stats, nil
}

// Unblock lifts an IP block on behalf of actor.
func (f *SecurityFacade) Unblock(ctx context.Context, ip, actor string) error {
	return f.Guard.Unblock(ctx, ip, actor)
}

// EnableTwoFactor enrolls an owner.
func (f *SecurityFacade) EnableTwoFactor(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	return f.TwoFactor.Enable(ctx, req)
}

// DisableTwoFactor removes an owner's enrollment.
func (f *SecurityFacade) DisableTwoFactor(ctx context.Context, ownerID string) error {
	return f.TwoFactor.Disable(ctx, ownerID)
}

// TwoFactorStatus returns the masked enrollment of an owner.
func (f *SecurityFacade) TwoFactorStatus(ctx context.Context, ownerID string) (*domain.TwoFactorStatus, error) {
	return f.TwoFactor.Status(ctx, ownerID)
}

// RequestChallenge issues a code to the owner of an active session.
func (f *SecurityFacade) RequestChallenge(ctx context.Context, token string, method domain.TwoFactorMethod) (result *IssueResult, err error) {
	ctx, span := f.tracer.Start(ctx, "security.mfa.issue", trace.WithAttributes(
		attribute.String("security.mfa_method", string(method)),
	))
	defer func() { endSpan(span, err) }()

	validation, err := f.Sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	return f.TwoFactor.Issue(ctx, validation.OwnerID, method)
}

// VerifyChallenge checks a code for the owner of an active session and marks the session verified.
func (f *SecurityFacade) VerifyChallenge(ctx context.Context, token, code string) (result *VerifyResult, err error) {
	ctx, span := f.tracer.Start(ctx, "security.mfa.verify")
	defer func() { endSpan(span, err) }()

	validation, err := f.Sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}

	result, err = f.TwoFactor.Verify(ctx, validation.OwnerID, code)
	if err != nil {
		return nil, err
	}

	if err := f.Sessions.MarkMFAVerified(ctx, token); err != nil {
		return nil, fmt.Errorf("mark session verified: %w", err)
	}
	return result, nil
}

// AuditTrail returns the chronological trail, optionally filtered by actor.
func (f *SecurityFacade) AuditTrail(ctx context.Context, actor string) ([]domain.AuditEntry, error) {
	return f.Audit.Trail(ctx, actor)
}

// VerifyAuditIntegrity re-verifies every stored audit entry.
func (f *SecurityFacade) VerifyAuditIntegrity(ctx context.Context) (report *domain.IntegrityReport, err error) {
	ctx, span := f.tracer.Start(ctx, "security.audit.verify")
	defer func() { endSpan(span, err) }()

	report, err = f.Audit.VerifyIntegrity(ctx)
	if err == nil {
		span.SetAttributes(
			attribute.Int("security.audit.total_logs", report.TotalLogs),
			attribute.Int("security.audit.issues_found", report.IssuesFound),
		)
	}
	return report, err
}

// AuditStatistics summarises the audit trail.
func (f *SecurityFacade) AuditStatistics(ctx context.Context) (*domain.AuditStatistics, error) {
	return f.Audit.Statistics(ctx)
}

// ExportAudit writes the trail as JSON lines.
func (f *SecurityFacade) ExportAudit(ctx context.Context, w io.Writer) (int, error) {
	return f.Audit.Export(ctx, w)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.CodeOf(err)))
	}
	span.End()
}
