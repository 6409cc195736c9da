package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
)

// ErrQueueFull is returned by Publish when the dispatcher cannot accept more entries.
var ErrQueueFull = errors.New("ledger queue full")

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("ledger dispatcher closed")

// Options tune the dispatcher. Zero values fall back to the defaults.
type Options struct {
	QueueSize       int
	RatePerSecond   float64
	MaxRetryElapsed time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 200
	}
	if o.MaxRetryElapsed <= 0 {
		o.MaxRetryElapsed = 30 * time.Second
	}
	return o
}

// Dispatcher decouples audit appends from the external ledger. Publish never blocks:
// entries are queued, delivered by a single worker in append order and retried with
// exponential backoff. Entries that cannot be queued or delivered are dropped and
// reported; the audit store remains the source of truth.
type Dispatcher struct {
	sink     port.LedgerPublisher
	observer port.SecurityObserver
	logger   *zap.Logger
	opts     Options
	limiter  *rate.Limiter
	backOff  func() backoff.BackOff

	queue  chan domain.AuditEntry
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a dispatcher that forwards to sink.
func NewDispatcher(sink port.LedgerPublisher, opts Options, observer port.SecurityObserver, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	burst := int(opts.RatePerSecond)
	if burst < 1 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sink:     sink,
		observer: observer,
		logger:   logger.Named("ledger"),
		opts:     opts,
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst),
		backOff:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		queue:    make(chan domain.AuditEntry, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	d.wg.Add(1)
	go d.run()
	return d
}

// Publish queues the entry for delivery.
func (d *Dispatcher) Publish(ctx context.Context, entry domain.AuditEntry) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- entry:
		return nil
	default:
		d.dropped(ctx, entry, "queue full")
		return ErrQueueFull
	}
}

// Pending returns the number of queued entries.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting entries and drains the queue until ctx is done. Entries still
// queued when ctx expires are dropped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for entry := range d.queue {
		if d.ctx.Err() != nil {
			d.dropped(context.Background(), entry, "dispatcher stopped")
			continue
		}
		d.deliver(entry)
	}
}

func (d *Dispatcher) deliver(entry domain.AuditEntry) {
	if err := d.limiter.Wait(d.ctx); err != nil {
		d.dropped(context.Background(), entry, "dispatcher stopped")
		return
	}

	attempts := 0
	_, err := backoff.Retry(d.ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, d.sink.Publish(d.ctx, entry)
	},
		backoff.WithBackOff(d.backOff()),
		backoff.WithMaxElapsedTime(d.opts.MaxRetryElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			d.logger.Warn("ledger publish failed, retrying",
				zap.String("audit_id", entry.ID),
				zap.Duration("next_attempt_in", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		d.logger.Error("ledger publish abandoned",
			zap.String("audit_id", entry.ID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		d.dropped(context.Background(), entry, err.Error())
		return
	}

	d.observe(context.Background(), domain.SecurityEvent{
		Kind:   domain.SignalLedgerPublished,
		Actor:  entry.Actor,
		At:     time.Now().UTC(),
		Fields: map[string]string{"audit_id": entry.ID, "event_type": string(entry.EventType)},
	})
}

func (d *Dispatcher) dropped(ctx context.Context, entry domain.AuditEntry, reason string) {
	d.observe(ctx, domain.SecurityEvent{
		Kind:   domain.SignalLedgerDropped,
		Actor:  entry.Actor,
		At:     time.Now().UTC(),
		Reason: reason,
		Fields: map[string]string{"audit_id": entry.ID, "event_type": string(entry.EventType)},
	})
}

func (d *Dispatcher) observe(ctx context.Context, event domain.SecurityEvent) {
	if d.observer != nil {
		d.observer.Observe(ctx, event)
	}
}

var _ port.LedgerPublisher = (*Dispatcher)(nil)
