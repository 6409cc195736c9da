package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

type flakySink struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	delivered []string
	block     chan struct{}
}

func (s *flakySink) Publish(_ context.Context, entry domain.AuditEntry) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return errors.New("broker unavailable")
	}
	s.delivered = append(s.delivered, entry.ID)
	return nil
}

func (s *flakySink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.delivered...)
}

type signals struct {
	mu     sync.Mutex
	counts map[domain.SecurityEventKind]int
}

func (s *signals) Observe(_ context.Context, event domain.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[domain.SecurityEventKind]int)
	}
	s.counts[event.Kind]++
}

func (s *signals) count(kind domain.SecurityEventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[kind]
}

func newTestDispatcher(t *testing.T, sink *flakySink, obs *signals, opts Options) *Dispatcher {
	t.Helper()
	d := NewDispatcher(sink, opts, obs, zaptest.NewLogger(t))
	d.backOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return d
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := &flakySink{}
	obs := &signals{}
	d := newTestDispatcher(t, sink, obs, Options{})

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Publish(context.Background(), domain.AuditEntry{ID: id, Actor: "alice"}))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []string{"a", "b", "c"}, sink.ids())
	assert.Equal(t, 3, obs.count(domain.SignalLedgerPublished))
	assert.Zero(t, obs.count(domain.SignalLedgerDropped))
}

func TestDispatcherRetriesTransientFailures(t *testing.T) {
	sink := &flakySink{failFirst: 2}
	obs := &signals{}
	d := newTestDispatcher(t, sink, obs, Options{MaxRetryElapsed: time.Second})

	require.NoError(t, d.Publish(context.Background(), domain.AuditEntry{ID: "a", Actor: "alice"}))
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []string{"a"}, sink.ids())
	assert.Equal(t, 3, sink.calls)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	sink := &flakySink{block: make(chan struct{})}
	obs := &signals{}
	d := newTestDispatcher(t, sink, obs, Options{QueueSize: 1})

	require.NoError(t, d.Publish(context.Background(), domain.AuditEntry{ID: "in-flight"}))
	require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)

	require.NoError(t, d.Publish(context.Background(), domain.AuditEntry{ID: "queued"}))
	err := d.Publish(context.Background(), domain.AuditEntry{ID: "overflow"})
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, obs.count(domain.SignalLedgerDropped))

	close(sink.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"in-flight", "queued"}, sink.ids())

	assert.ErrorIs(t, d.Publish(context.Background(), domain.AuditEntry{ID: "late"}), ErrClosed)
}

func TestDispatcherCloseDeadlineDropsBacklog(t *testing.T) {
	sink := &flakySink{failFirst: 1 << 30}
	obs := &signals{}
	d := newTestDispatcher(t, sink, obs, Options{MaxRetryElapsed: time.Hour})

	require.NoError(t, d.Publish(context.Background(), domain.AuditEntry{ID: "a"}))
	require.NoError(t, d.Publish(context.Background(), domain.AuditEntry{ID: "b"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := d.Close(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, sink.ids())
	assert.Equal(t, 2, obs.count(domain.SignalLedgerDropped))
}
