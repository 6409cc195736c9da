package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/config"
)

const (
	defaultKeyPrefix = "security"
	connectTimeout   = 5 * time.Second
)

// Client owns the connection pool behind the ephemeral security stores
// (failure windows, IP blocks, two-factor challenges).
type Client struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

// NewClient dials Redis and fails fast when the server is unreachable, since login
// checks cannot run without it.
func NewClient(ctx context.Context, cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	opts := &redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   2,

		// login requests wait on these calls
		DialTimeout:  connectTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolTimeout:  2 * time.Second,

		ConnMaxIdleTime: 5 * time.Minute,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.Host,
		}
	}

	c := Wrap(redis.NewClient(opts), cfg.KeyPrefix, logger)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := c.HealthCheck(pingCtx); err != nil {
		_ = c.client.Close()
		return nil, err
	}

	c.logger.Info("redis connection established",
		zap.String("addr", opts.Addr),
		zap.Int("db", cfg.DB),
		zap.Bool("tls_enabled", cfg.TLSEnabled),
		zap.String("key_prefix", c.prefix),
	)
	return c, nil
}

// Wrap adopts an existing client, e.g. one pointed at miniredis in tests.
func Wrap(client *redis.Client, keyPrefix string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Client{client: client, logger: logger, prefix: keyPrefix}
}

// Client returns the underlying redis.Client for the repositories.
func (c *Client) Client() *redis.Client {
	return c.client
}

// KeyPrefix returns the namespace applied to every key written by the security repositories.
func (c *Client) KeyPrefix() string {
	return c.prefix
}

// HealthCheck pings Redis. Failures include pool counters to tell exhaustion from outages.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		stats := c.client.PoolStats()
		return fmt.Errorf("redis health check failed (total_conns=%d idle_conns=%d timeouts=%d): %w",
			stats.TotalConns, stats.IdleConns, stats.Timeouts, err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	c.logger.Info("closing redis connection pool")
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
