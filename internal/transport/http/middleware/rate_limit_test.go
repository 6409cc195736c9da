package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newLimitedRouter(t *testing.T, limiter *RateLimiter, rule RateLimitRule) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(limiter.RateLimit(rule))
	router.GET("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func fixedIdentifier(id string) IdentifierFunc {
	return func(*gin.Context) (string, bool) { return id, true }
}

func doGet(router *gin.Engine) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	return rr
}

func TestRateLimiterAllowsBurstThenRejects(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(zaptest.NewLogger(t)).WithClock(clock.Now)
	router := newLimitedRouter(t, limiter, RateLimitRule{
		Name:              "api",
		RequestsPerMinute: 60,
		Burst:             3,
		Identifier:        fixedIdentifier("192.0.2.1"),
	})

	for i := 0; i < 3; i++ {
		if rr := doGet(router); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
	}

	rr := doGet(router)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After 1, got %q", got)
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("failed to decode problem details: %v", err)
	}
	if problem.Status != http.StatusTooManyRequests || problem.RetryAfter != 1 {
		t.Fatalf("unexpected problem details: %+v", problem)
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(zaptest.NewLogger(t)).WithClock(clock.Now)
	router := newLimitedRouter(t, limiter, RateLimitRule{
		RequestsPerMinute: 60,
		Burst:             1,
		Identifier:        fixedIdentifier("192.0.2.1"),
	})

	if rr := doGet(router); rr.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}
	if rr := doGet(router); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be throttled, got %d", rr.Code)
	}

	clock.now = clock.now.Add(time.Second)
	if rr := doGet(router); rr.Code != http.StatusOK {
		t.Fatalf("expected request after refill to pass, got %d", rr.Code)
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := &testClock{now: time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(zaptest.NewLogger(t)).WithClock(clock.Now)

	router := gin.New()
	router.Use(limiter.RateLimit(RateLimitRule{
		RequestsPerMinute: 60,
		Burst:             1,
		Identifier: func(c *gin.Context) (string, bool) {
			return c.GetHeader("X-Client"), true
		},
	}))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Client", client)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send("a"); code != http.StatusOK {
		t.Fatalf("client a: expected 200, got %d", code)
	}
	if code := send("a"); code != http.StatusTooManyRequests {
		t.Fatalf("client a: expected 429, got %d", code)
	}
	if code := send("b"); code != http.StatusOK {
		t.Fatalf("client b should have its own bucket, got %d", code)
	}
}

func TestRateLimiterDropsIdleBuckets(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(zaptest.NewLogger(t)).WithClock(clock.Now)
	limiter.lastSweep = clock.now

	rule := RateLimitRule{Name: "api", RequestsPerMinute: 60, Burst: 1}
	limiter.limiterFor(rule, "192.0.2.1", clock.now)
	limiter.limiterFor(rule, "192.0.2.2", clock.now)
	if got := limiter.Tracked(); got != 2 {
		t.Fatalf("expected 2 buckets, got %d", got)
	}

	clock.now = clock.now.Add(defaultIdleTTL)
	limiter.limiterFor(rule, "192.0.2.3", clock.now)
	if got := limiter.Tracked(); got != 1 {
		t.Fatalf("expected idle buckets to be swept, got %d", got)
	}
}

func TestRateLimiterSkipsInvalidRules(t *testing.T) {
	limiter := NewRateLimiter(nil)
	router := newLimitedRouter(t, limiter, RateLimitRule{Name: "broken", Identifier: fixedIdentifier("x")})

	for i := 0; i < 5; i++ {
		if rr := doGet(router); rr.Code != http.StatusOK {
			t.Fatalf("expected passthrough, got %d", rr.Code)
		}
	}
	if got := limiter.Tracked(); got != 0 {
		t.Fatalf("expected no buckets, got %d", got)
	}
}
