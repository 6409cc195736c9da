package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
)

// AuditTrail hashes and stores security events and re-verifies them on demand.
type AuditTrail struct {
	store    port.AuditStore
	ledger   port.LedgerPublisher
	observer port.SecurityObserver
	logger   *zap.Logger
	now      func() time.Time
	newID    func() (string, error)

	mu sync.Mutex
}

// NewAuditTrail constructs an AuditTrail over the supplied store.
func NewAuditTrail(store port.AuditStore, logger *zap.Logger) *AuditTrail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditTrail{
		store:    store,
		observer: nopObserver{},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (a *AuditTrail) WithClock(clock func() time.Time) *AuditTrail {
	if clock != nil {
		a.now = clock
	}
	return a
}

// WithLedger attaches a publisher. It must not block; the ledger dispatcher queues and retries.
func (a *AuditTrail) WithLedger(ledger port.LedgerPublisher) *AuditTrail {
	a.ledger = ledger
	return a
}

// WithObserver attaches a telemetry sink.
func (a *AuditTrail) WithObserver(obs port.SecurityObserver) *AuditTrail {
	a.observer = observerOrNop(obs)
	return a
}

// Append records an event. It returns an error only when the store did not accept the entry.
func (a *AuditTrail) Append(ctx context.Context, eventType domain.AuditEventType, actor, description string, metadata map[string]string) (*domain.AuditEntry, error) {
	if strings.TrimSpace(string(eventType)) == "" {
		return nil, invalidArgument("event type is required")
	}
	if strings.TrimSpace(actor) == "" {
		return nil, invalidArgument("actor is required")
	}
	if a.store == nil {
		return nil, fmt.Errorf("audit store not configured")
	}

	entry := domain.AuditEntry{
		EventType:   eventType,
		Actor:       actor,
		Description: description,
		Metadata:    copyMetadata(metadata),
	}

	a.mu.Lock()
	err := a.seal(&entry)
	if err == nil {
		err = a.store.Append(ctx, entry)
	}
	a.mu.Unlock()

	if err != nil {
		a.logger.Error("audit entry not recorded",
			zap.String("event_type", string(eventType)),
			zap.String("actor", actor),
			zap.Error(err),
		)
		a.observer.Observe(ctx, domain.SecurityEvent{
			Kind:   domain.SignalAuditWriteFailed,
			Actor:  actor,
			At:     a.now(),
			Reason: err.Error(),
			Fields: map[string]string{"event_type": string(eventType)},
		})
		return nil, fmt.Errorf("append audit entry: %w", err)
	}

	a.observer.Observe(ctx, domain.SecurityEvent{
		Kind:   domain.SignalAuditAppended,
		Actor:  actor,
		At:     entry.Timestamp,
		Fields: map[string]string{"event_type": string(eventType), "audit_id": entry.ID},
	})

	if a.ledger != nil {
		if err := a.ledger.Publish(ctx, entry.Clone()); err != nil {
			a.logger.Warn("ledger publish not accepted", zap.String("audit_id", entry.ID), zap.Error(err))
		}
	}

	out := entry.Clone()
	return &out, nil
}

// Record appends an entry on behalf of a component whose decision is already made.
// Failures are logged and counted by Append and never surface to the caller.
func (a *AuditTrail) Record(ctx context.Context, eventType domain.AuditEventType, actor, description string, metadata map[string]string) {
	if a == nil {
		return
	}
	_, _ = a.Append(ctx, eventType, actor, description, metadata)
}

// Trail returns entries in chronological order; an empty actor returns the whole trail.
func (a *AuditTrail) Trail(ctx context.Context, actor string) ([]domain.AuditEntry, error) {
	entries, err := a.store.List(ctx, strings.TrimSpace(actor))
	if err != nil {
		return nil, fmt.Errorf("list audit trail: %w", err)
	}
	return entries, nil
}

// VerifyIntegrity recomputes every stored hash and flags mismatches.
func (a *AuditTrail) VerifyIntegrity(ctx context.Context) (*domain.IntegrityReport, error) {
	entries, undecodable, err := a.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load audit trail: %w", err)
	}

	report := domain.VerifyEntries(entries)
	report.Flag(undecodable...)
	if !report.IntegrityOK {
		ids := make([]string, 0, len(report.Issues))
		for _, issue := range report.Issues {
			ids = append(ids, issue.ID)
		}
		a.logger.Warn("audit integrity violation detected",
			zap.Int("total_logs", report.TotalLogs),
			zap.Int("issues_found", report.IssuesFound),
			zap.Strings("entry_ids", ids),
		)
	}

	a.observer.Observe(ctx, domain.SecurityEvent{
		Kind:  domain.SignalIntegrityChecked,
		Actor: "system",
		At:    a.now(),
		Fields: map[string]string{
			"total_logs":   strconv.Itoa(report.TotalLogs),
			"issues_found": strconv.Itoa(report.IssuesFound),
		},
	})

	return &report, nil
}

// load prefers a scan so damaged records show up as issues instead of aborting the check.
func (a *AuditTrail) load(ctx context.Context) ([]domain.AuditEntry, []domain.IntegrityIssue, error) {
	if scanner, ok := a.store.(port.AuditScanner); ok {
		return scanner.Scan(ctx)
	}
	entries, err := a.store.List(ctx, "")
	return entries, nil, err
}

// Statistics summarises the trail by event type and actor.
func (a *AuditTrail) Statistics(ctx context.Context) (*domain.AuditStatistics, error) {
	entries, err := a.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load audit trail: %w", err)
	}

	stats := &domain.AuditStatistics{
		TotalEvents: len(entries),
		EventTypes:  make(map[domain.AuditEventType]int),
		GeneratedAt: a.now(),
	}
	actors := make(map[string]struct{})
	for _, entry := range entries {
		stats.EventTypes[entry.EventType]++
		actors[entry.Actor] = struct{}{}
	}
	stats.UniqueActors = len(actors)
	return stats, nil
}

// Export writes the trail as JSON lines, one entry per line, and returns the entry count.
func (a *AuditTrail) Export(ctx context.Context, w io.Writer) (int, error) {
	entries, err := a.store.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("load audit trail: %w", err)
	}

	enc := json.NewEncoder(w)
	for i, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return i, fmt.Errorf("encode audit entry %s: %w", entry.ID, err)
		}
	}
	return len(entries), nil
}

func (a *AuditTrail) seal(entry *domain.AuditEntry) error {
	id, err := a.newID()
	if err != nil {
		return fmt.Errorf("generate audit id: %w", err)
	}
	entry.ID = id
	entry.Timestamp = a.now().UTC().Truncate(domain.AuditTimestampPrecision)

	hash, err := entry.ComputeHash()
	if err != nil {
		return fmt.Errorf("hash audit entry: %w", err)
	}
	entry.ContentHash = hash
	return nil
}

func copyMetadata(metadata map[string]string) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
