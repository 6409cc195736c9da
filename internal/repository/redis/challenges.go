package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository"
)

const (
	fieldCode        = "code"
	fieldMethod      = "method"
	fieldDestination = "destination"
	fieldCreatedAt   = "created_at"
	fieldExpiresAt   = "expires_at"
	fieldAttempts    = "attempts"
	fieldState       = "state"
)

// DefaultChallengeRetention is how long an expired challenge stays readable so Verify can
// report Expired rather than NotFound.
const DefaultChallengeRetention = time.Hour

var incrementAttemptsScript = red.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], ARGV[1], 1)
`)

// ChallengeRepository persists the live two-factor challenge of each owner in a Redis hash.
type ChallengeRepository struct {
	client    *red.Client
	prefix    string
	retention time.Duration
}

// NewChallengeRepository constructs a repository with the provided Redis client and key prefix.
func NewChallengeRepository(client *red.Client, keyPrefix string) *ChallengeRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = "security"
	}
	return &ChallengeRepository{client: client, prefix: prefix, retention: DefaultChallengeRetention}
}

// WithExpiredRetention sets how long a challenge key outlives its expiry. Once the key is
// evicted a late Verify sees NotFound.
func (r *ChallengeRepository) WithExpiredRetention(d time.Duration) *ChallengeRepository {
	if d >= 0 {
		r.retention = d
	}
	return r
}

// Put replaces any prior challenge of the owner.
func (r *ChallengeRepository) Put(ctx context.Context, challenge domain.Challenge) error {
	if strings.TrimSpace(challenge.OwnerID) == "" {
		return errors.New("owner id is required")
	}
	lifetime := challenge.ExpiresAt.Sub(challenge.CreatedAt)
	if lifetime <= 0 {
		return errors.New("challenge must expire after creation")
	}

	state := challenge.State
	if state == "" {
		state = domain.ChallengeIssued
	}

	key := r.key(challenge.OwnerID)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCode:        challenge.Code,
		fieldMethod:      string(challenge.Method),
		fieldDestination: challenge.Destination,
		fieldCreatedAt:   strconv.FormatInt(challenge.CreatedAt.UnixMicro(), 10),
		fieldExpiresAt:   strconv.FormatInt(challenge.ExpiresAt.UnixMicro(), 10),
		fieldAttempts:    strconv.Itoa(challenge.Attempts),
		fieldState:       string(state),
	})
	pipe.Expire(ctx, key, lifetime+r.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store challenge: %w", err)
	}
	return nil
}

// Get returns the live challenge of the owner.
func (r *ChallengeRepository) Get(ctx context.Context, ownerID string) (*domain.Challenge, error) {
	values, err := r.client.HGetAll(ctx, r.key(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall challenge: %w", err)
	}
	if len(values) == 0 {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseMicros(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expiresAt, err := parseMicros(values[fieldExpiresAt])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	attempts, err := strconv.Atoi(values[fieldAttempts])
	if err != nil {
		return nil, fmt.Errorf("parse attempts: %w", err)
	}
	state := domain.ChallengeState(values[fieldState])
	if state == "" {
		state = domain.ChallengeIssued
	}

	return &domain.Challenge{
		OwnerID:     ownerID,
		Code:        values[fieldCode],
		Method:      domain.TwoFactorMethod(values[fieldMethod]),
		Destination: values[fieldDestination],
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
		Attempts:    attempts,
		State:       state,
	}, nil
}

// IncrementAttempts bumps the attempt counter without resurrecting a deleted challenge.
func (r *ChallengeRepository) IncrementAttempts(ctx context.Context, ownerID string) (int, error) {
	n, err := incrementAttemptsScript.Run(ctx, r.client, []string{r.key(ownerID)}, fieldAttempts).Int()
	if err != nil {
		return 0, fmt.Errorf("redis increment challenge attempts: %w", err)
	}
	if n < 0 {
		return 0, repository.ErrNotFound
	}
	return n, nil
}

// Delete removes the challenge, enforcing single-use semantics.
func (r *ChallengeRepository) Delete(ctx context.Context, ownerID string) error {
	deleted, err := r.client.Del(ctx, r.key(ownerID)).Result()
	if err != nil {
		return fmt.Errorf("redis delete challenge: %w", err)
	}
	if deleted == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ChallengeRepository) key(ownerID string) string {
	return fmt.Sprintf("%s:mfa_challenge:%s", r.prefix, strings.TrimSpace(ownerID))
}

func parseMicros(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(v).UTC(), nil
}

var _ port.ChallengeStore = (*ChallengeRepository)(nil)
