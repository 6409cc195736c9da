package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

const (
	aliceIP = "203.0.113.5"
)

func TestLoginGuardCountsDownBeforeBlocking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	max := DefaultLoginGuardConfig().MaxAttempts

	for k := 1; k < max; k++ {
		res, err := f.guard.RecordAttempt(ctx, "alice", aliceIP, false)
		require.NoError(t, err)
		assert.False(t, res.Blocked, "attempt %d", k)
		assert.Equal(t, max-k, res.RemainingAttempts, "attempt %d", k)
		f.clock.Advance(time.Second)
	}

	res, err := f.guard.RecordAttempt(ctx, "alice", aliceIP, false)
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	require.NotNil(t, res.BlockedUntil)
	assert.Equal(t, f.clock.Now().Add(time.Hour), *res.BlockedUntil)

	types := f.eventTypes(t, "alice")
	require.Len(t, types, max)
	assert.Equal(t, domain.EventIPBlocked, types[max-1])
	assert.Equal(t, 1, f.observer.count(domain.SignalIPBlocked))
}

func TestLoginGuardBlockStopsSessionsUntilExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < DefaultLoginGuardConfig().MaxAttempts; i++ {
		_, err := f.guard.RecordAttempt(ctx, "mallory", aliceIP, false)
		require.NoError(t, err)
	}

	_, err := f.sessions.Create(ctx, "alice", aliceIP)
	require.ErrorIs(t, err, domain.ErrIPBlocked)
	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, domain.CodeBlocked, domain.CodeOf(err))

	// other addresses are unaffected
	_, err = f.sessions.Create(ctx, "alice", "198.51.100.1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour + time.Second)

	ok, err := f.guard.IsBlocked(ctx, aliceIP)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.sessions.Create(ctx, "alice", aliceIP)
	require.NoError(t, err)

	n, err := f.guard.ActiveBlocks(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoginGuardWindowSlides(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 4; i++ {
		_, err := f.guard.RecordAttempt(ctx, "alice", aliceIP, false)
		require.NoError(t, err)
	}

	// the earlier failures fall out of the 15 minute window
	f.clock.Advance(15 * time.Minute)

	res, err := f.guard.RecordAttempt(ctx, "alice", aliceIP, false)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, 4, res.RemainingAttempts)
}

func TestLoginGuardSuccessClearsFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 4; i++ {
		_, err := f.guard.RecordAttempt(ctx, "alice", aliceIP, false)
		require.NoError(t, err)
	}

	res, err := f.guard.RecordAttempt(ctx, "alice", aliceIP, true)
	require.NoError(t, err)
	assert.False(t, res.Blocked)

	res, err = f.guard.RecordAttempt(ctx, "alice", aliceIP, false)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, 4, res.RemainingAttempts)
}

func TestLoginGuardUnblock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.guard.Unblock(ctx, aliceIP, "ops")
	require.ErrorIs(t, err, domain.ErrBlockNotFound)

	for i := 0; i < DefaultLoginGuardConfig().MaxAttempts; i++ {
		_, err := f.guard.RecordAttempt(ctx, "alice", aliceIP, false)
		require.NoError(t, err)
	}
	n, err := f.guard.ActiveBlocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, f.guard.Unblock(ctx, aliceIP, "ops"))
	assert.Equal(t, []domain.AuditEventType{domain.EventIPUnblocked}, f.eventTypes(t, "ops"))

	blocked, err := f.guard.IsBlocked(ctx, aliceIP)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestLoginGuardRejectsMissingArguments(t *testing.T) {
	f := newFixture(t)

	_, err := f.guard.RecordAttempt(context.Background(), "", aliceIP, false)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = f.guard.RecordAttempt(context.Background(), "alice", " ", false)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestLoginGuardConcurrentFailuresBlockOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	max := DefaultLoginGuardConfig().MaxAttempts

	var wg sync.WaitGroup
	for i := 0; i < max; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.guard.RecordAttempt(ctx, "alice", aliceIP, false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	types := f.eventTypes(t, "alice")
	blocks := 0
	for _, et := range types {
		if et == domain.EventIPBlocked {
			blocks++
		}
	}
	assert.Len(t, types, max)
	assert.Equal(t, 1, blocks)
}
