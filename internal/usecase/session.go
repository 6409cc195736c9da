package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/logger"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/security"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository"
)

const tokenGenerationAttempts = 3

// SessionConfig holds session lifetime limits.
type SessionConfig struct {
	InactivityTimeout     time.Duration
	MaxConcurrentSessions int
}

// DefaultSessionConfig returns a 30 minute inactivity timeout and three concurrent sessions.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		InactivityTimeout:     30 * time.Minute,
		MaxConcurrentSessions: 3,
	}
}

// blockChecker is the slice of LoginGuard the session store depends on.
type blockChecker interface {
	BlockedUntil(ctx context.Context, ip string) (*time.Time, error)
}

// SessionStore creates, validates and terminates login sessions.
type SessionStore struct {
	sessions      port.SessionRepository
	blocks        blockChecker
	trail         *AuditTrail
	observer      port.SecurityObserver
	logger        *zap.Logger
	cfg           SessionConfig
	now           func() time.Time
	generateToken func() (string, error)
	locks         *keyedMutex
}

// NewSessionStore constructs a SessionStore. Zero config values fall back to the defaults.
func NewSessionStore(sessions port.SessionRepository, blocks blockChecker, trail *AuditTrail, cfg SessionConfig, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultSessionConfig()
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = defaults.InactivityTimeout
	}
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = defaults.MaxConcurrentSessions
	}
	return &SessionStore{
		sessions:      sessions,
		blocks:        blocks,
		trail:         trail,
		observer:      nopObserver{},
		logger:        logger,
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
		generateToken: security.GenerateSessionToken,
		locks:         newKeyedMutex(),
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionStore) WithClock(clock func() time.Time) *SessionStore {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithTokenGenerator overrides session token generation.
func (s *SessionStore) WithTokenGenerator(gen func() (string, error)) *SessionStore {
	if gen != nil {
		s.generateToken = gen
	}
	return s
}

// WithObserver attaches a telemetry sink.
func (s *SessionStore) WithObserver(obs port.SecurityObserver) *SessionStore {
	s.observer = observerOrNop(obs)
	return s
}

// Create opens a session for ownerID from ip.
func (s *SessionStore) Create(ctx context.Context, ownerID, ip string) (*domain.Session, error) {
	ownerID = strings.TrimSpace(ownerID)
	ip = strings.TrimSpace(ip)
	if ownerID == "" {
		return nil, invalidArgument("owner id is required")
	}
	if ip == "" {
		return nil, invalidArgument("ip is required")
	}

	if s.blocks != nil {
		until, err := s.blocks.BlockedUntil(ctx, ip)
		if err != nil {
			return nil, fmt.Errorf("check ip block: %w", err)
		}
		if until != nil {
			s.rejected(ctx, ownerID, ip, "ip blocked")
			return nil, &BlockedError{Until: *until}
		}
	}

	unlock := s.locks.Lock(ownerID)
	defer unlock()

	now := s.now()

	active, err := s.activeSessions(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}
	if active >= s.cfg.MaxConcurrentSessions {
		s.rejected(ctx, ownerID, ip, "concurrency cap reached")
		return nil, domain.ErrTooManySessions
	}

	session := domain.Session{
		OwnerID:        ownerID,
		IP:             ip,
		CreatedAt:      now,
		LastActivityAt: now,
		State:          domain.SessionActive,
	}

	for attempt := 1; ; attempt++ {
		token, err := s.generateToken()
		if err != nil {
			return nil, fmt.Errorf("generate session token: %w", err)
		}
		session.Token = token

		err = s.sessions.Create(ctx, session)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrConflict) || attempt >= tokenGenerationAttempts {
			return nil, fmt.Errorf("create session: %w", err)
		}
		s.logger.Warn("session token collision, regenerating", zap.Int("attempt", attempt))
	}

	s.trail.Record(ctx, domain.EventSessionCreated, ownerID, "Session created",
		map[string]string{
			"ip":           ip,
			"token_prefix": logger.MaskToken(session.Token),
		})
	s.observer.Observe(ctx, domain.SecurityEvent{
		Kind:   domain.SignalSessionCreated,
		Actor:  ownerID,
		At:     now,
		Fields: map[string]string{"ip": logger.MaskIP(ip)},
	})

	return &session, nil
}

// Validate checks token and refreshes its activity. A session idle past the timeout is
// expired on the spot.
func (s *SessionStore) Validate(ctx context.Context, token string) (*domain.SessionValidation, error) {
	session, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}

	switch session.State {
	case domain.SessionTerminated:
		return nil, domain.ErrSessionNotFound
	case domain.SessionExpired:
		return nil, domain.ErrSessionExpired
	}

	now := s.now()
	if session.IdleExceeded(now, s.cfg.InactivityTimeout) {
		s.expire(ctx, *session, now)
		return nil, domain.ErrSessionExpired
	}

	touched, err := s.sessions.Touch(ctx, session.Token, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if !touched {
		// lost a race with logout or expiry
		return s.stateError(ctx, session.Token)
	}

	return &domain.SessionValidation{
		Valid:       true,
		OwnerID:     session.OwnerID,
		IP:          session.IP,
		MFAVerified: session.MFAVerifiedAt != nil,
		ExpiresAt:   now.Add(s.cfg.InactivityTimeout),
	}, nil
}

// Logout terminates the session.
func (s *SessionStore) Logout(ctx context.Context, token string) error {
	session, err := s.load(ctx, token)
	if err != nil {
		return err
	}
	if session.State == domain.SessionTerminated {
		return domain.ErrSessionNotFound
	}

	now := s.now()
	won, err := s.sessions.TransitionState(ctx, session.Token, session.State, domain.SessionTerminated, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("terminate session: %w", err)
	}
	if !won {
		return domain.ErrSessionNotFound
	}

	s.trail.Record(ctx, domain.EventSessionLogout, session.OwnerID, "Session terminated by logout",
		map[string]string{
			"ip":           session.IP,
			"token_prefix": logger.MaskToken(session.Token),
		})
	s.observer.Observe(ctx, domain.SecurityEvent{
		Kind:  domain.SignalSessionLogout,
		Actor: session.OwnerID,
		At:    now,
	})
	return nil
}

// ListActive returns display-safe views of the owner's active sessions.
func (s *SessionStore) ListActive(ctx context.Context, ownerID string) ([]domain.SessionView, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, invalidArgument("owner id is required")
	}

	sessions, err := s.sessions.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	now := s.now()
	views := make([]domain.SessionView, 0, len(sessions))
	for _, session := range sessions {
		if !session.IsActive() || session.IdleExceeded(now, s.cfg.InactivityTimeout) {
			continue
		}
		views = append(views, domain.SessionView{
			TokenPrefix:    logger.MaskToken(session.Token),
			OwnerID:        session.OwnerID,
			IP:             session.IP,
			CreatedAt:      session.CreatedAt,
			LastActivityAt: session.LastActivityAt,
			State:          session.State,
			MFAVerified:    session.MFAVerifiedAt != nil,
		})
	}
	return views, nil
}

// MarkMFAVerified records that the session owner passed two-factor verification.
func (s *SessionStore) MarkMFAVerified(ctx context.Context, token string) error {
	session, err := s.load(ctx, token)
	if err != nil {
		return err
	}
	if !session.IsActive() {
		return domain.ErrSessionNotFound
	}
	if err := s.sessions.MarkMFAVerified(ctx, session.Token, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("mark session verified: %w", err)
	}
	return nil
}

// Stats summarises session states. Blocked IPs are filled in by the facade.
func (s *SessionStore) Stats(ctx context.Context) (*domain.SessionStats, error) {
	counts, owners, err := s.sessions.CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	return &domain.SessionStats{
		ActiveSessions:     counts[domain.SessionActive],
		ExpiredSessions:    counts[domain.SessionExpired],
		TerminatedSessions: counts[domain.SessionTerminated],
		DistinctOwners:     owners,
	}, nil
}

// activeSessions counts live sessions of the owner, expiring stale ones so they free their slot.
func (s *SessionStore) activeSessions(ctx context.Context, ownerID string, now time.Time) (int, error) {
	sessions, err := s.sessions.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}

	active := 0
	for _, session := range sessions {
		if !session.IsActive() {
			continue
		}
		if session.IdleExceeded(now, s.cfg.InactivityTimeout) {
			s.expire(ctx, session, now)
			continue
		}
		active++
	}
	return active, nil
}

func (s *SessionStore) expire(ctx context.Context, session domain.Session, now time.Time) {
	won, err := s.sessions.TransitionState(ctx, session.Token, domain.SessionActive, domain.SessionExpired, now)
	if err != nil {
		s.logger.Warn("failed to expire session", zap.String("token", logger.MaskToken(session.Token)), zap.Error(err))
		return
	}
	if !won {
		return
	}

	s.trail.Record(ctx, domain.EventSessionExpired, session.OwnerID, "Session expired after inactivity",
		map[string]string{
			"ip":               session.IP,
			"token_prefix":     logger.MaskToken(session.Token),
			"last_activity_at": session.LastActivityAt.Format(time.RFC3339),
		})
	s.observer.Observe(ctx, domain.SecurityEvent{
		Kind:  domain.SignalSessionExpired,
		Actor: session.OwnerID,
		At:    now,
	})
}

func (s *SessionStore) load(ctx context.Context, token string) (*domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrSessionNotFound
	}
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

func (s *SessionStore) stateError(ctx context.Context, token string) (*domain.SessionValidation, error) {
	session, err := s.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.State == domain.SessionExpired {
		return nil, domain.ErrSessionExpired
	}
	return nil, domain.ErrSessionNotFound
}

func (s *SessionStore) rejected(ctx context.Context, ownerID, ip, reason string) {
	s.observer.Observe(ctx, domain.SecurityEvent{
		Kind:   domain.SignalSessionRejected,
		Actor:  ownerID,
		At:     s.now(),
		Reason: reason,
		Fields: map[string]string{"ip": logger.MaskIP(ip)},
	})
}
