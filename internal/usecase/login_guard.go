package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/logger"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository"
)

// LoginGuardConfig holds brute-force thresholds.
type LoginGuardConfig struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultLoginGuardConfig returns 5 failures within 15 minutes blocking the IP for an hour.
func DefaultLoginGuardConfig() LoginGuardConfig {
	return LoginGuardConfig{
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		BlockDuration: time.Hour,
	}
}

// LoginGuard counts failed logins per identity and blocks the offending IP at the threshold.
type LoginGuard struct {
	store    port.AttemptStore
	trail    *AuditTrail
	observer port.SecurityObserver
	logger   *zap.Logger
	cfg      LoginGuardConfig
	now      func() time.Time
	locks    *keyedMutex
}

// NewLoginGuard constructs a LoginGuard. Zero config values fall back to the defaults.
func NewLoginGuard(store port.AttemptStore, trail *AuditTrail, cfg LoginGuardConfig, logger *zap.Logger) *LoginGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultLoginGuardConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = defaults.BlockDuration
	}
	return &LoginGuard{
		store:    store,
		trail:    trail,
		observer: nopObserver{},
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    newKeyedMutex(),
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (g *LoginGuard) WithClock(clock func() time.Time) *LoginGuard {
	if clock != nil {
		g.now = clock
	}
	return g
}

// WithObserver attaches a telemetry sink.
func (g *LoginGuard) WithObserver(obs port.SecurityObserver) *LoginGuard {
	g.observer = observerOrNop(obs)
	return g
}

// RecordAttempt registers the outcome of a credential check performed by the caller.
func (g *LoginGuard) RecordAttempt(ctx context.Context, identity, ip string, success bool) (*domain.AttemptResult, error) {
	identity = strings.TrimSpace(identity)
	ip = strings.TrimSpace(ip)
	if identity == "" {
		return nil, invalidArgument("identity is required")
	}
	if ip == "" {
		return nil, invalidArgument("ip is required")
	}

	unlock := g.locks.Lock(identity)
	defer unlock()

	now := g.now()

	if success {
		if err := g.store.ClearFailures(ctx, identity); err != nil {
			return nil, fmt.Errorf("clear failures: %w", err)
		}
		g.observer.Observe(ctx, domain.SecurityEvent{
			Kind:   domain.SignalLoginSucceeded,
			Actor:  identity,
			At:     now,
			Fields: map[string]string{"ip": logger.MaskIP(ip)},
		})
		return &domain.AttemptResult{RemainingAttempts: g.cfg.MaxAttempts}, nil
	}

	failures, err := g.store.AppendFailure(ctx, identity, now, g.cfg.Window)
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}

	if failures >= g.cfg.MaxAttempts {
		until := now.Add(g.cfg.BlockDuration)
		if err := g.store.PutBlock(ctx, domain.IPBlock{IP: ip, BlockedUntil: until}); err != nil {
			return nil, fmt.Errorf("block ip: %w", err)
		}

		g.logger.Warn("ip blocked after repeated login failures",
			zap.String("identity", identity),
			zap.String("ip", logger.MaskIP(ip)),
			zap.Int("failures", failures),
			zap.Time("blocked_until", until),
		)
		g.trail.Record(ctx, domain.EventIPBlocked, identity,
			fmt.Sprintf("IP blocked after %d failed login attempts", failures),
			map[string]string{
				"ip":            ip,
				"failures":      strconv.Itoa(failures),
				"blocked_until": until.Format(time.RFC3339),
			})
		g.observer.Observe(ctx, domain.SecurityEvent{
			Kind:   domain.SignalIPBlocked,
			Actor:  identity,
			At:     now,
			Reason: "failure threshold reached",
			Fields: map[string]string{"ip": logger.MaskIP(ip), "failures": strconv.Itoa(failures)},
		})

		return &domain.AttemptResult{
			Blocked:      true,
			Failures:     failures,
			BlockedUntil: &until,
		}, nil
	}

	remaining := g.cfg.MaxAttempts - failures
	g.trail.Record(ctx, domain.EventLoginFailed, identity, "Failed login attempt",
		map[string]string{
			"ip":                 ip,
			"failures":           strconv.Itoa(failures),
			"remaining_attempts": strconv.Itoa(remaining),
		})
	g.observer.Observe(ctx, domain.SecurityEvent{
		Kind:   domain.SignalLoginFailed,
		Actor:  identity,
		At:     now,
		Fields: map[string]string{"ip": logger.MaskIP(ip), "remaining": strconv.Itoa(remaining)},
	})

	return &domain.AttemptResult{
		RemainingAttempts: remaining,
		Failures:          failures,
	}, nil
}

// IsBlocked reports whether ip is under an unexpired block. Expired blocks are purged.
func (g *LoginGuard) IsBlocked(ctx context.Context, ip string) (bool, error) {
	until, err := g.BlockedUntil(ctx, ip)
	if err != nil {
		return false, err
	}
	return until != nil, nil
}

// BlockedUntil returns the expiry of the active block on ip, or nil when none applies.
func (g *LoginGuard) BlockedUntil(ctx context.Context, ip string) (*time.Time, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, invalidArgument("ip is required")
	}

	block, err := g.store.GetBlock(ctx, ip)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load ip block: %w", err)
	}

	if block.ActiveAt(g.now()) {
		until := block.BlockedUntil
		return &until, nil
	}

	if err := g.store.DeleteBlock(ctx, ip); err != nil && !errors.Is(err, repository.ErrNotFound) {
		g.logger.Warn("failed to purge expired ip block", zap.String("ip", logger.MaskIP(ip)), zap.Error(err))
	}
	return nil, nil
}

// Unblock lifts the block on ip ahead of its expiry.
func (g *LoginGuard) Unblock(ctx context.Context, ip, actor string) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return invalidArgument("ip is required")
	}
	if strings.TrimSpace(actor) == "" {
		actor = "admin"
	}

	if err := g.store.DeleteBlock(ctx, ip); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrBlockNotFound
		}
		return fmt.Errorf("unblock ip: %w", err)
	}

	g.trail.Record(ctx, domain.EventIPUnblocked, actor, "IP block lifted", map[string]string{"ip": ip})
	g.observer.Observe(ctx, domain.SecurityEvent{
		Kind:   domain.SignalIPUnblocked,
		Actor:  actor,
		At:     g.now(),
		Fields: map[string]string{"ip": logger.MaskIP(ip)},
	})
	return nil
}

// ActiveBlocks counts unexpired IP blocks.
func (g *LoginGuard) ActiveBlocks(ctx context.Context) (int, error) {
	n, err := g.store.CountBlocks(ctx, g.now())
	if err != nil {
		return 0, fmt.Errorf("count ip blocks: %w", err)
	}
	return n, nil
}
