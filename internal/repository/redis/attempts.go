package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	red "github.com/redis/go-redis/v9"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository"
)

// appendFailureScript adds the failure, drops everything at or before the cutoff and
// returns the remaining cardinality in one round trip so concurrent callers never
// observe a stale count.
var appendFailureScript = red.NewScript(`
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[3])
local n = redis.call('ZCARD', KEYS[1])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return n
`)

// AttemptRepository persists failure windows in sorted sets keyed by identity and IP
// blocks in a single sorted set scored by expiry.
type AttemptRepository struct {
	client *red.Client
	prefix string
}

// NewAttemptRepository constructs a repository using the provided Redis client and key prefix.
func NewAttemptRepository(client *red.Client, keyPrefix string) *AttemptRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = "security"
	}
	return &AttemptRepository{client: client, prefix: prefix}
}

// AppendFailure records a failed login and returns the failures left inside the window.
func (r *AttemptRepository) AppendFailure(ctx context.Context, identity string, at time.Time, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}

	score := at.UnixMicro()
	member := fmt.Sprintf("%d-%s", score, uuid.NewString())
	cutoff := at.Add(-window).UnixMicro()

	n, err := appendFailureScript.Run(ctx, r.client,
		[]string{r.failuresKey(identity)},
		score, member, cutoff, window.Milliseconds(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("redis append failure: %w", err)
	}
	return n, nil
}

// ClearFailures forgets the failure window of an identity.
func (r *AttemptRepository) ClearFailures(ctx context.Context, identity string) error {
	if err := r.client.Del(ctx, r.failuresKey(identity)).Err(); err != nil {
		return fmt.Errorf("redis clear failures: %w", err)
	}
	return nil
}

// PutBlock stores or extends the block for an IP.
func (r *AttemptRepository) PutBlock(ctx context.Context, block domain.IPBlock) error {
	member := red.Z{Score: float64(block.BlockedUntil.UnixMicro()), Member: block.IP}
	if err := r.client.ZAdd(ctx, r.blocksKey(), member).Err(); err != nil {
		return fmt.Errorf("redis zadd block: %w", err)
	}
	return nil
}

// GetBlock returns the stored block for an IP, expired or not.
func (r *AttemptRepository) GetBlock(ctx context.Context, ip string) (*domain.IPBlock, error) {
	score, err := r.client.ZScore(ctx, r.blocksKey(), ip).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis zscore block: %w", err)
	}
	return &domain.IPBlock{IP: ip, BlockedUntil: time.UnixMicro(int64(score)).UTC()}, nil
}

// DeleteBlock removes the block for an IP.
func (r *AttemptRepository) DeleteBlock(ctx context.Context, ip string) error {
	removed, err := r.client.ZRem(ctx, r.blocksKey(), ip).Result()
	if err != nil {
		return fmt.Errorf("redis zrem block: %w", err)
	}
	if removed == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountBlocks purges blocks that expired at or before at and counts the rest.
func (r *AttemptRepository) CountBlocks(ctx context.Context, at time.Time) (int, error) {
	key := r.blocksKey()
	cutoff := strconv.FormatInt(at.UnixMicro(), 10)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis count blocks: %w", err)
	}
	return int(card.Val()), nil
}

func (r *AttemptRepository) failuresKey(identity string) string {
	return fmt.Sprintf("%s:login_failures:%s", r.prefix, identity)
}

func (r *AttemptRepository) blocksKey() string {
	return r.prefix + ":ip_blocks"
}

var _ port.AttemptStore = (*AttemptRepository)(nil)
