package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appLogger "github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/logger"
)

const (
	rateLimitProblemType  = "https://security.fineverse.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"

	// buckets untouched for this long are dropped on the next sweep
	defaultIdleTTL = 10 * time.Minute
)

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a token bucket per identifier.
type RateLimitRule struct {
	Name              string
	RequestsPerMinute int
	Burst             int
	Identifier        IdentifierFunc
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles API traffic in process. It is independent of the login
// guard: it caps request volume, it does not count failed credentials.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	idleTTL   time.Duration
	lastSweep time.Time
	logger    *zap.Logger
	now       func() time.Time
}

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		buckets: make(map[string]*bucket),
		idleTTL: defaultIdleTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		if ip == "" {
			return "", false
		}
		return ip, true
	}
}

// Tracked returns the number of live buckets.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// RateLimit returns a Gin middleware enforcing the provided rules.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	filtered := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.RequestsPerMinute <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		if rule.Burst <= 0 {
			rule.Burst = 1
		}
		filtered = append(filtered, rule)
	}

	return func(c *gin.Context) {
		if len(filtered) == 0 {
			c.Next()
			return
		}

		now := rl.now()
		for _, rule := range filtered {
			identifier, ok := rule.Identifier(c)
			if !ok || identifier == "" {
				continue
			}

			limiter := rl.limiterFor(rule, identifier, now)
			reservation := limiter.ReserveN(now, 1)
			remaining := int(math.Floor(limiter.TokensAt(now)))

			headers := c.Writer.Header()
			headers.Set("X-RateLimit-Limit", strconv.Itoa(rule.RequestsPerMinute))
			headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))

			if delay := reservation.DelayFrom(now); delay > 0 || !reservation.OK() {
				reservation.CancelAt(now)
				rl.logger.Warn("rate limit exceeded",
					zap.String("rule", rule.Name),
					zap.String("client", appLogger.MaskIP(identifier)),
					zap.Duration("retry_after", delay),
				)
				rl.respondRateLimited(c, delay)
				return
			}
		}

		c.Next()
	}
}

func (rl *RateLimiter) limiterFor(rule RateLimitRule, identifier string, now time.Time) *rate.Limiter {
	key := rule.Name + ":" + identifier

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweepLocked(now)

	b, ok := rl.buckets[key]
	if !ok {
		every := rate.Every(time.Minute / time.Duration(rule.RequestsPerMinute))
		b = &bucket{limiter: rate.NewLimiter(every, rule.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.idleTTL {
		return
	}
	rl.lastSweep = now
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.idleTTL {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) respondRateLimited(c *gin.Context, retryAfter time.Duration) {
	retrySeconds := int(math.Ceil(retryAfter.Seconds()))
	if retrySeconds < 1 {
		retrySeconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(retrySeconds))

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	SetErrorCode(c, "rate_limited")
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", retrySeconds),
		Instance:   instance,
		RetryAfter: retrySeconds,
		TraceID:    GetTraceID(c),
	})
}
