package usecase

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

type recordingLedger struct {
	entries []domain.AuditEntry
}

func (l *recordingLedger) Publish(_ context.Context, entry domain.AuditEntry) error {
	l.entries = append(l.entries, entry)
	return nil
}

func TestAuditTrailIntegrityDetectsTampering(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	ids := make([]string, 0, 3)
	for _, actor := range []string{"alice", "bob", "alice"} {
		entry, err := f.trail.Append(ctx, domain.EventLoginFailed, actor, "Failed login attempt", map[string]string{"ip": "203.0.113.5"})
		require.NoError(t, err)
		ids = append(ids, entry.ID)
	}

	report, err := f.trail.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalLogs)
	assert.Equal(t, 0, report.IssuesFound)
	assert.True(t, report.IntegrityOK)
	assert.NoError(t, report.Err())

	f.auditStore.tamper(ids[1], func(e *domain.AuditEntry) {
		e.Metadata["ip"] = "198.51.100.7"
	})

	report, err = f.trail.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.IssuesFound)
	assert.False(t, report.IntegrityOK)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, ids[1], report.Issues[0].ID)
	assert.ErrorIs(t, report.Err(), domain.ErrIntegrityViolation)
	assert.Equal(t, 2, f.observer.count(domain.SignalIntegrityChecked))
}

func TestAuditTrailIntegrityFlagsUndecodableRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, actor := range []string{"alice", "bob"} {
		_, err := f.trail.Append(ctx, domain.EventLoginFailed, actor, "Failed login attempt", map[string]string{"ip": "203.0.113.5"})
		require.NoError(t, err)
	}
	f.auditStore.corrupt(domain.IntegrityIssue{ID: "line:3", Reason: "undecodable entry"})

	report, err := f.trail.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalLogs)
	assert.Equal(t, 1, report.IssuesFound)
	assert.False(t, report.IntegrityOK)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "line:3", report.Issues[0].ID)
	assert.ErrorIs(t, report.Err(), domain.ErrIntegrityViolation)

	// the readable entries are still served
	entries, err := f.trail.Trail(ctx, "")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestAuditTrailAppendSealsEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ledger := &recordingLedger{}
	f.trail.WithLedger(ledger)

	metadata := map[string]string{"method": "SMS"}
	entry, err := f.trail.Append(ctx, domain.EventMFAEnabled, "alice", "Two-factor authentication enabled", metadata)
	require.NoError(t, err)

	metadata["method"] = "EMAIL"
	assert.Equal(t, "SMS", entry.Metadata["method"], "caller map must be copied")
	assert.Equal(t, f.clock.Now(), entry.Timestamp)
	assert.NotEmpty(t, entry.ID)

	hash, err := entry.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, hash, entry.ContentHash)

	require.Len(t, ledger.entries, 1)
	assert.Equal(t, entry.ID, ledger.entries[0].ID)
	assert.Equal(t, 1, f.observer.count(domain.SignalAuditAppended))
}

func TestAuditTrailAppendValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.trail.Append(context.Background(), "", "alice", "x", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.trail.Append(context.Background(), domain.EventLoginFailed, "  ", "x", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAuditTrailAppendReportsStoreFailure(t *testing.T) {
	obs := &recordingObserver{}
	trail := NewAuditTrail(failingAuditStore{}, zaptest.NewLogger(t)).WithObserver(obs)

	_, err := trail.Append(context.Background(), domain.EventSessionCreated, "alice", "Session created", nil)
	require.Error(t, err)
	assert.Equal(t, 1, obs.count(domain.SignalAuditWriteFailed))

	// Record never surfaces the failure to the component that made the decision.
	trail.Record(context.Background(), domain.EventSessionCreated, "alice", "Session created", nil)
	assert.Equal(t, 2, obs.count(domain.SignalAuditWriteFailed))
}

func TestAuditTrailStatisticsAndExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.trail.Record(ctx, domain.EventLoginFailed, "alice", "Failed login attempt", nil)
	f.trail.Record(ctx, domain.EventLoginFailed, "bob", "Failed login attempt", nil)
	f.trail.Record(ctx, domain.EventIPBlocked, "bob", "IP blocked", nil)

	stats, err := f.trail.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEvents)
	assert.Equal(t, 2, stats.UniqueActors)
	assert.Equal(t, 2, stats.EventTypes[domain.EventLoginFailed])
	assert.Equal(t, 1, stats.EventTypes[domain.EventIPBlocked])

	var buf bytes.Buffer
	n, err := f.trail.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	scanner := bufio.NewScanner(&buf)
	var exported []domain.AuditEntry
	for scanner.Scan() {
		var entry domain.AuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		exported = append(exported, entry)
	}
	require.Len(t, exported, 3)
	assert.True(t, domain.VerifyEntries(exported).IntegrityOK)
}
