package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository"
)

func TestSessionRepositoryTransitions(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	session := domain.Session{Token: "tok-1", OwnerID: "alice", IP: "203.0.113.5", CreatedAt: now, LastActivityAt: now, State: domain.SessionActive}
	if err := repo.Create(ctx, session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, session); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected conflict on duplicate token, got %v", err)
	}

	if ok, err := repo.Touch(ctx, "tok-1", now.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("Touch() = %v, %v", ok, err)
	}

	won, err := repo.TransitionState(ctx, "tok-1", domain.SessionActive, domain.SessionTerminated, now)
	if err != nil || !won {
		t.Fatalf("expected first transition to win, got %v %v", won, err)
	}
	won, err = repo.TransitionState(ctx, "tok-1", domain.SessionActive, domain.SessionExpired, now)
	if err != nil || won {
		t.Fatalf("expected second transition to lose, got %v %v", won, err)
	}
	if ok, _ := repo.Touch(ctx, "tok-1", now); ok {
		t.Fatalf("expected touch on terminated session to be refused")
	}

	stored, err := repo.Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.State != domain.SessionTerminated || !stored.LastActivityAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected stored session %+v", stored)
	}

	counts, owners, err := repo.CountByState(ctx)
	if err != nil || counts[domain.SessionTerminated] != 1 || owners != 1 {
		t.Fatalf("unexpected counts %v owners %d err %v", counts, owners, err)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttemptStoreWindowBoundary(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	if n, _ := store.AppendFailure(ctx, "alice", start, window); n != 1 {
		t.Fatalf("expected 1 failure, got %d", n)
	}
	if n, _ := store.AppendFailure(ctx, "alice", start.Add(time.Minute), window); n != 2 {
		t.Fatalf("expected 2 failures, got %d", n)
	}
	// the first failure sits exactly on the boundary and is dropped
	if n, _ := store.AppendFailure(ctx, "alice", start.Add(window), window); n != 2 {
		t.Fatalf("expected boundary entry to be purged, got %d", n)
	}

	if err := store.ClearFailures(ctx, "alice"); err != nil {
		t.Fatalf("ClearFailures() error = %v", err)
	}
	if n, _ := store.AppendFailure(ctx, "alice", start.Add(window), window); n != 1 {
		t.Fatalf("expected fresh window after clear, got %d", n)
	}
}

func TestAttemptStoreBlocks(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	if err := store.PutBlock(ctx, domain.IPBlock{IP: "203.0.113.5", BlockedUntil: now.Add(time.Hour)}); err != nil {
		t.Fatalf("PutBlock() error = %v", err)
	}
	if err := store.PutBlock(ctx, domain.IPBlock{IP: "198.51.100.1", BlockedUntil: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("PutBlock() error = %v", err)
	}

	if n, _ := store.CountBlocks(ctx, now); n != 1 {
		t.Fatalf("expected one active block, got %d", n)
	}
	if err := store.DeleteBlock(ctx, "203.0.113.5"); err != nil {
		t.Fatalf("DeleteBlock() error = %v", err)
	}
	if _, err := store.GetBlock(ctx, "203.0.113.5"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestChallengeStoreReplaceAndIncrement(t *testing.T) {
	ctx := context.Background()
	store := NewChallengeStore()

	_ = store.Put(ctx, domain.Challenge{OwnerID: "alice", Code: "111111", Attempts: 2})
	_ = store.Put(ctx, domain.Challenge{OwnerID: "alice", Code: "222222"})

	challenge, err := store.Get(ctx, "alice")
	if err != nil || challenge.Code != "222222" || challenge.Attempts != 0 {
		t.Fatalf("expected replacement challenge, got %+v %v", challenge, err)
	}
	if n, _ := store.IncrementAttempts(ctx, "alice"); n != 1 {
		t.Fatalf("expected 1 attempt, got %d", n)
	}
	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.IncrementAttempts(ctx, "alice"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditStoreListFiltersAndCopies(t *testing.T) {
	ctx := context.Background()
	store := NewAuditStore()

	_ = store.Append(ctx, domain.AuditEntry{ID: "1", Actor: "alice", Metadata: map[string]string{"ip": "203.0.113.5"}})
	_ = store.Append(ctx, domain.AuditEntry{ID: "2", Actor: "bob"})
	_ = store.Append(ctx, domain.AuditEntry{ID: "3", Actor: "alice"})

	alice, _ := store.List(ctx, "alice")
	if len(alice) != 2 || alice[0].ID != "1" || alice[1].ID != "3" {
		t.Fatalf("unexpected alice trail %+v", alice)
	}

	alice[0].Metadata["ip"] = "changed"
	again, _ := store.List(ctx, "alice")
	if again[0].Metadata["ip"] != "203.0.113.5" {
		t.Fatalf("expected stored metadata to be isolated from callers")
	}

	all, _ := store.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
}
