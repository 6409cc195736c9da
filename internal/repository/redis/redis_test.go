package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestAttemptRepository_WindowPurgesBoundary(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewAttemptRepository(client, "test")

	ctx := context.Background()
	window := 15 * time.Minute
	start := time.Now().UTC()

	for i, want := range []int{1, 2, 3} {
		got, err := repo.AppendFailure(ctx, "alice", start.Add(time.Duration(i)*time.Minute), window)
		if err != nil {
			t.Fatalf("AppendFailure returned error: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d failures, got %d", want, got)
		}
	}

	got, err := repo.AppendFailure(ctx, "alice", start.Add(window), window)
	if err != nil {
		t.Fatalf("AppendFailure returned error: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected the boundary failure to be purged, got %d", got)
	}

	if ttl := server.TTL("test:login_failures:alice"); ttl <= 0 || ttl > window {
		t.Fatalf("expected ttl within (0, %v], got %v", window, ttl)
	}

	if err := repo.ClearFailures(ctx, "alice"); err != nil {
		t.Fatalf("ClearFailures returned error: %v", err)
	}
	if server.Exists("test:login_failures:alice") {
		t.Fatalf("expected failure window to be removed")
	}
}

func TestAttemptRepository_ConcurrentFailuresAreCounted(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewAttemptRepository(client, "test")

	ctx := context.Background()
	at := time.Now().UTC()

	var wg sync.WaitGroup
	results := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.AppendFailure(ctx, "bob", at, time.Minute)
			if err != nil {
				t.Errorf("AppendFailure returned error: %v", err)
				return
			}
			results <- n
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for n := range results {
		if seen[n] {
			t.Fatalf("two callers observed the same count %d", n)
		}
		seen[n] = true
	}
	if !seen[10] {
		t.Fatalf("expected one caller to observe the full count")
	}
}

func TestAttemptRepository_Blocks(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewAttemptRepository(client, "test")

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	if err := repo.PutBlock(ctx, domain.IPBlock{IP: "203.0.113.5", BlockedUntil: now.Add(time.Hour)}); err != nil {
		t.Fatalf("PutBlock returned error: %v", err)
	}
	if err := repo.PutBlock(ctx, domain.IPBlock{IP: "198.51.100.7", BlockedUntil: now.Add(-time.Second)}); err != nil {
		t.Fatalf("PutBlock returned error: %v", err)
	}

	block, err := repo.GetBlock(ctx, "203.0.113.5")
	if err != nil {
		t.Fatalf("GetBlock returned error: %v", err)
	}
	if !block.BlockedUntil.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected blocked until %v, got %v", now.Add(time.Hour), block.BlockedUntil)
	}

	count, err := repo.CountBlocks(ctx, now)
	if err != nil {
		t.Fatalf("CountBlocks returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one active block, got %d", count)
	}
	if _, err := repo.GetBlock(ctx, "198.51.100.7"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected expired block to be purged, got %v", err)
	}

	if err := repo.DeleteBlock(ctx, "203.0.113.5"); err != nil {
		t.Fatalf("DeleteBlock returned error: %v", err)
	}
	if err := repo.DeleteBlock(ctx, "203.0.113.5"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestChallengeRepository_Lifecycle(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewChallengeRepository(client, "test")

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	ttl := 5 * time.Minute

	first := domain.Challenge{OwnerID: "alice", Code: "111111", Method: domain.MethodSMS, Destination: "+15551234567", CreatedAt: now, ExpiresAt: now.Add(ttl), Attempts: 2}
	if err := repo.Put(ctx, first); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	second := first
	second.Code = "222222"
	second.Attempts = 0
	if err := repo.Put(ctx, second); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	got, err := repo.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Code != "222222" || got.Attempts != 0 || got.Method != domain.MethodSMS || got.State != domain.ChallengeIssued {
		t.Fatalf("expected replacement challenge, got %+v", got)
	}
	if !got.ExpiresAt.Equal(now.Add(ttl)) {
		t.Fatalf("expected expires_at %v, got %v", now.Add(ttl), got.ExpiresAt)
	}

	remaining := server.TTL("test:mfa_challenge:alice")
	if remaining <= ttl || remaining > ttl+DefaultChallengeRetention {
		t.Fatalf("expected ttl within (%v, %v], got %v", ttl, ttl+DefaultChallengeRetention, remaining)
	}

	if n, err := repo.IncrementAttempts(ctx, "alice"); err != nil || n != 1 {
		t.Fatalf("expected attempts 1, got %d (%v)", n, err)
	}

	locked := *got
	locked.Code = ""
	locked.State = domain.ChallengeLocked
	if err := repo.Put(ctx, locked); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	got, err = repo.Get(ctx, "alice")
	if err != nil || got.State != domain.ChallengeLocked || got.Code != "" {
		t.Fatalf("expected locked tombstone, got %+v (%v)", got, err)
	}

	if err := repo.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := repo.IncrementAttempts(ctx, "alice"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if server.Exists("test:mfa_challenge:alice") {
		t.Fatalf("increment must not resurrect a deleted challenge")
	}
	if _, err := repo.Get(ctx, "alice"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChallengeRepository_ExpiredRetention(t *testing.T) {
	client, server := newTestRedis(t)
	repo := NewChallengeRepository(client, "test").WithExpiredRetention(10 * time.Minute)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	challenge := domain.Challenge{OwnerID: "alice", Code: "123456", Method: domain.MethodEmail, Destination: "alice@example.com", CreatedAt: now, ExpiresAt: now.Add(5 * time.Minute)}
	if err := repo.Put(ctx, challenge); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if remaining := server.TTL("test:mfa_challenge:alice"); remaining != 15*time.Minute {
		t.Fatalf("expected ttl 15m, got %v", remaining)
	}

	// past expiry but within retention the record is still there to be reported as expired
	server.FastForward(14 * time.Minute)
	got, err := repo.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !got.ExpiredAt(now.Add(14 * time.Minute)) {
		t.Fatalf("expected challenge to read as expired, got %+v", got)
	}

	server.FastForward(2 * time.Minute)
	if _, err := repo.Get(ctx, "alice"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after retention, got %v", err)
	}
}
