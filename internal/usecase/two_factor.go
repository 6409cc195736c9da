package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/logger"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/security"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository"
)

const deliveryTimeout = 10 * time.Second

// TwoFactorConfig holds one-time code parameters.
type TwoFactorConfig struct {
	CodeLength  int
	CodeTTL     time.Duration
	MaxAttempts int
	Methods     []domain.TwoFactorMethod
	TOTPIssuer  string
}

// DefaultTwoFactorConfig returns 6-digit codes valid for 5 minutes with 3 attempts.
func DefaultTwoFactorConfig() TwoFactorConfig {
	return TwoFactorConfig{
		CodeLength:  6,
		CodeTTL:     5 * time.Minute,
		MaxAttempts: 3,
		Methods:     []domain.TwoFactorMethod{domain.MethodSMS, domain.MethodAuthenticatorApp, domain.MethodEmail},
		TOTPIssuer:  "FineVerse",
	}
}

// EnrollRequest enables two-factor authentication for an owner.
type EnrollRequest struct {
	OwnerID string
	Method  domain.TwoFactorMethod
	Phone   string
	Email   string
}

// EnrollResult carries the masked status and, for authenticator apps, the one-time provisioning URI.
type EnrollResult struct {
	Status          domain.TwoFactorStatus
	ProvisioningURI string
}

// IssueResult is what the caller may display after a code was issued.
type IssueResult struct {
	Method            domain.TwoFactorMethod
	MaskedDestination string
	ExpiresAt         time.Time
}

// VerifyResult is the outcome of a successful verification.
type VerifyResult struct {
	Authenticated bool
}

// TwoFactorService issues and verifies one-time codes for enrolled owners.
type TwoFactorService struct {
	challenges   port.ChallengeStore
	enrollments  port.EnrollmentRepository
	notifier     port.NotificationChannel
	trail        *AuditTrail
	observer     port.SecurityObserver
	logger       *zap.Logger
	cfg          TwoFactorConfig
	now          func() time.Time
	generateCode func(length int) (string, error)
	locks        *keyedMutex
	deliveries   sync.WaitGroup
}

// NewTwoFactorService constructs a TwoFactorService. Zero config values fall back to the defaults.
func NewTwoFactorService(challenges port.ChallengeStore, enrollments port.EnrollmentRepository, notifier port.NotificationChannel, trail *AuditTrail, cfg TwoFactorConfig, logger *zap.Logger) *TwoFactorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultTwoFactorConfig()
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = defaults.CodeLength
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaults.CodeTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if len(cfg.Methods) == 0 {
		cfg.Methods = defaults.Methods
	}
	if cfg.TOTPIssuer == "" {
		cfg.TOTPIssuer = defaults.TOTPIssuer
	}
	return &TwoFactorService{
		challenges:   challenges,
		enrollments:  enrollments,
		notifier:     notifier,
		trail:        trail,
		observer:     nopObserver{},
		logger:       logger,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
		generateCode: security.GenerateNumericCode,
		locks:        newKeyedMutex(),
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *TwoFactorService) WithClock(clock func() time.Time) *TwoFactorService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithCodeGenerator overrides numeric code generation.
func (s *TwoFactorService) WithCodeGenerator(gen func(length int) (string, error)) *TwoFactorService {
	if gen != nil {
		s.generateCode = gen
	}
	return s
}

// WithObserver attaches a telemetry sink.
func (s *TwoFactorService) WithObserver(obs port.SecurityObserver) *TwoFactorService {
	s.observer = observerOrNop(obs)
	return s
}

// Wait blocks until every in-flight code delivery has returned.
func (s *TwoFactorService) Wait() {
	s.deliveries.Wait()
}

// Enable turns on two-factor authentication for the owner with the given method.
func (s *TwoFactorService) Enable(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return nil, invalidArgument("owner id is required")
	}
	if !s.methodConfigured(req.Method) {
		return nil, domain.ErrMethodNotEnabled
	}

	unlock := s.locks.Lock(ownerID)
	defer unlock()

	enrollment, err := s.enrollments.Get(ctx, ownerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load enrollment: %w", err)
		}
		enrollment = &domain.Enrollment{OwnerID: ownerID}
	}

	if phone := strings.TrimSpace(req.Phone); phone != "" {
		enrollment.Phone = phone
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		enrollment.Email = email
	}

	var provisioningURI string
	switch req.Method {
	case domain.MethodSMS:
		if enrollment.Phone == "" {
			return nil, invalidArgument("phone number is required for SMS")
		}
	case domain.MethodEmail:
		if enrollment.Email == "" {
			return nil, invalidArgument("email address is required for EMAIL")
		}
	case domain.MethodAuthenticatorApp:
		totp, err := security.NewTOTPEnrollment(s.cfg.TOTPIssuer, ownerID, s.cfg.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("create authenticator secret: %w", err)
		}
		enrollment.TOTPSecret = totp.Secret
		provisioningURI = totp.ProvisioningURI
	}

	now := s.now()
	enrollment.Enabled = true
	enrollment.Method = req.Method
	enrollment.EnabledAt = &now

	if err := s.enrollments.Save(ctx, *enrollment); err != nil {
		return nil, fmt.Errorf("save enrollment: %w", err)
	}

	s.trail.Record(ctx, domain.EventMFAEnabled, ownerID, "Two-factor authentication enabled",
		map[string]string{"method": string(req.Method)})

	return &EnrollResult{Status: statusOf(*enrollment), ProvisioningURI: provisioningURI}, nil
}

// Disable turns two-factor authentication off and drops any live challenge.
func (s *TwoFactorService) Disable(ctx context.Context, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return invalidArgument("owner id is required")
	}

	unlock := s.locks.Lock(ownerID)
	defer unlock()

	enrollment, err := s.enrollments.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrEnrollmentNotFound
		}
		return fmt.Errorf("load enrollment: %w", err)
	}
	if !enrollment.Enabled {
		return domain.ErrNotEnabled
	}

	enrollment.Enabled = false
	enrollment.TOTPSecret = ""
	enrollment.EnabledAt = nil
	if err := s.enrollments.Save(ctx, *enrollment); err != nil {
		return fmt.Errorf("save enrollment: %w", err)
	}
	if err := s.challenges.Delete(ctx, ownerID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("failed to drop live challenge on disable", zap.String("owner_id", ownerID), zap.Error(err))
	}

	s.trail.Record(ctx, domain.EventMFADisabled, ownerID, "Two-factor authentication disabled", nil)
	return nil
}

// Status returns the masked enrollment of the owner.
func (s *TwoFactorService) Status(ctx context.Context, ownerID string) (*domain.TwoFactorStatus, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, invalidArgument("owner id is required")
	}

	enrollment, err := s.enrollments.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.TwoFactorStatus{OwnerID: ownerID}, nil
		}
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	status := statusOf(*enrollment)
	return &status, nil
}

// Enabled reports whether the owner has two-factor authentication turned on.
func (s *TwoFactorService) Enabled(ctx context.Context, ownerID string) (bool, error) {
	status, err := s.Status(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return status.Enabled, nil
}

// Issue creates a fresh challenge for the owner, replacing any prior one, and hands
// the code to the notification channel in the background.
func (s *TwoFactorService) Issue(ctx context.Context, ownerID string, method domain.TwoFactorMethod) (*IssueResult, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, invalidArgument("owner id is required")
	}
	if !s.methodConfigured(method) {
		return nil, domain.ErrMethodNotEnabled
	}

	enrollment, err := s.enrollments.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotEnabled
		}
		return nil, fmt.Errorf("load enrollment: %w", err)
	}
	if !enrollment.Enabled {
		return nil, domain.ErrNotEnabled
	}
	if !enrollment.Supports(method) {
		return nil, domain.ErrMethodNotEnabled
	}

	unlock := s.locks.Lock(ownerID)
	defer unlock()

	var code string
	if method != domain.MethodAuthenticatorApp {
		code, err = s.generateCode(s.cfg.CodeLength)
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
	}

	now := s.now()
	destination := enrollment.Destination(method)
	challenge := domain.Challenge{
		OwnerID:     ownerID,
		Code:        code,
		Method:      method,
		Destination: destination,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.CodeTTL),
		State:       domain.ChallengeIssued,
	}
	if err := s.challenges.Put(ctx, challenge); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	masked := logger.MaskDestination(destination)
	s.trail.Record(ctx, domain.EventMFACodeSent, ownerID, "Verification code issued",
		map[string]string{
			"method":      string(method),
			"destination": masked,
			"expires_at":  challenge.ExpiresAt.Format(time.RFC3339),
		})
	s.observer.Observe(ctx, domain.SecurityEvent{
		Kind:   domain.SignalMFAIssued,
		Actor:  ownerID,
		At:     now,
		Fields: map[string]string{"method": string(method), "destination": masked},
	})

	if code != "" {
		s.deliver(ctx, ownerID, destination, method, code)
	}

	return &IssueResult{Method: method, MaskedDestination: masked, ExpiresAt: challenge.ExpiresAt}, nil
}

// Verify checks code against the owner's live challenge.
func (s *TwoFactorService) Verify(ctx context.Context, ownerID, code string) (*VerifyResult, error) {
	ownerID = strings.TrimSpace(ownerID)
	code = strings.TrimSpace(code)
	if ownerID == "" {
		return nil, invalidArgument("owner id is required")
	}

	unlock := s.locks.Lock(ownerID)
	defer unlock()

	challenge, err := s.challenges.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("load challenge: %w", err)
	}

	now := s.now()

	if challenge.ExpiredAt(now) {
		s.drop(ctx, ownerID)
		if challenge.State == domain.ChallengeLocked {
			return nil, domain.ErrChallengeNotFound
		}
		s.trail.Record(ctx, domain.EventMFAExpired, ownerID, "Verification code expired",
			map[string]string{"method": string(challenge.Method)})
		s.rejected(ctx, ownerID, now, "expired")
		return nil, domain.ErrChallengeExpired
	}

	if challenge.State == domain.ChallengeLocked {
		s.rejected(ctx, ownerID, now, "locked")
		return nil, domain.ErrChallengeLocked
	}

	if challenge.Attempts >= s.cfg.MaxAttempts {
		s.lock(ctx, *challenge, now)
		return nil, domain.ErrChallengeLocked
	}

	matched, err := s.matches(ctx, *challenge, code, now)
	if err != nil {
		return nil, err
	}

	if !matched {
		attempts, err := s.challenges.IncrementAttempts(ctx, ownerID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, domain.ErrChallengeNotFound
			}
			return nil, fmt.Errorf("increment attempts: %w", err)
		}

		remaining := s.cfg.MaxAttempts - attempts
		if remaining <= 0 {
			challenge.Attempts = attempts
			s.lock(ctx, *challenge, now)
			return nil, domain.ErrChallengeLocked
		}

		s.trail.Record(ctx, domain.EventMFAFailed, ownerID, "Invalid verification code",
			map[string]string{
				"method":             string(challenge.Method),
				"attempts":           strconv.Itoa(attempts),
				"remaining_attempts": strconv.Itoa(remaining),
			})
		s.rejected(ctx, ownerID, now, "invalid code")
		return nil, &InvalidCodeError{Remaining: remaining}
	}

	if err := s.challenges.Delete(ctx, ownerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("consume challenge: %w", err)
	}

	s.trail.Record(ctx, domain.EventMFAVerified, ownerID, "Two-factor verification succeeded",
		map[string]string{"method": string(challenge.Method)})
	s.observer.Observe(ctx, domain.SecurityEvent{
		Kind:   domain.SignalMFAVerified,
		Actor:  ownerID,
		At:     now,
		Fields: map[string]string{"method": string(challenge.Method)},
	})

	return &VerifyResult{Authenticated: true}, nil
}

func (s *TwoFactorService) matches(ctx context.Context, challenge domain.Challenge, code string, now time.Time) (bool, error) {
	if code == "" {
		return false, nil
	}
	if challenge.Method != domain.MethodAuthenticatorApp {
		return security.EqualCodes(challenge.Code, code), nil
	}

	enrollment, err := s.enrollments.Get(ctx, challenge.OwnerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, domain.ErrNotEnabled
		}
		return false, fmt.Errorf("load enrollment: %w", err)
	}
	ok, err := security.ValidateTOTP(enrollment.TOTPSecret, code, now, s.cfg.CodeLength)
	if err != nil {
		if errors.Is(err, security.ErrMissingSecret) {
			return false, domain.ErrMethodNotEnabled
		}
		// malformed passcodes count as wrong codes
		return false, nil
	}
	return ok, nil
}

// lock replaces the challenge with a code-less tombstone that keeps reporting Locked
// until the original expiry.
func (s *TwoFactorService) lock(ctx context.Context, challenge domain.Challenge, now time.Time) {
	tombstone := challenge
	tombstone.Code = ""
	tombstone.State = domain.ChallengeLocked
	if err := s.challenges.Put(ctx, tombstone); err != nil {
		s.logger.Warn("failed to persist locked challenge", zap.String("owner_id", challenge.OwnerID), zap.Error(err))
		s.drop(ctx, challenge.OwnerID)
	}

	s.trail.Record(ctx, domain.EventMFALocked, challenge.OwnerID, "Verification locked after too many attempts",
		map[string]string{
			"method":   string(challenge.Method),
			"attempts": strconv.Itoa(challenge.Attempts),
		})
	s.rejected(ctx, challenge.OwnerID, now, "locked")
}

func (s *TwoFactorService) drop(ctx context.Context, ownerID string) {
	if err := s.challenges.Delete(ctx, ownerID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("failed to delete challenge", zap.String("owner_id", ownerID), zap.Error(err))
	}
}

func (s *TwoFactorService) rejected(ctx context.Context, ownerID string, at time.Time, reason string) {
	s.observer.Observe(ctx, domain.SecurityEvent{
		Kind:   domain.SignalMFARejected,
		Actor:  ownerID,
		At:     at,
		Reason: reason,
	})
}

func (s *TwoFactorService) deliver(ctx context.Context, ownerID, destination string, method domain.TwoFactorMethod, code string) {
	if s.notifier == nil {
		s.logger.Warn("no notification channel configured; code not delivered", zap.String("owner_id", ownerID))
		return
	}

	sendCtx := context.WithoutCancel(ctx)
	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()

		sendCtx, cancel := context.WithTimeout(sendCtx, deliveryTimeout)
		defer cancel()

		if err := s.notifier.Send(sendCtx, destination, method, code); err != nil {
			s.logger.Warn("verification code delivery failed",
				zap.String("owner_id", ownerID),
				zap.String("method", string(method)),
				zap.String("destination", logger.MaskDestination(destination)),
				zap.Error(err),
			)
			s.observer.Observe(sendCtx, domain.SecurityEvent{
				Kind:   domain.SignalMFADelivery,
				Actor:  ownerID,
				At:     s.now(),
				Reason: err.Error(),
				Fields: map[string]string{"method": string(method)},
			})
		}
	}()
}

func (s *TwoFactorService) methodConfigured(method domain.TwoFactorMethod) bool {
	for _, m := range s.cfg.Methods {
		if m == method {
			return true
		}
	}
	return false
}

func statusOf(e domain.Enrollment) domain.TwoFactorStatus {
	return domain.TwoFactorStatus{
		OwnerID:     e.OwnerID,
		Enabled:     e.Enabled,
		Method:      e.Method,
		MaskedPhone: logger.MaskPhone(e.Phone),
		MaskedEmail: logger.MaskEmail(e.Email),
		HasTOTP:     e.TOTPSecret != "",
		EnabledAt:   e.EnabledAt,
	}
}
