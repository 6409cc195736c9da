package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
)

// StubPublisher logs ledger entries instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly ledger publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

// Publish logs the entry reference. Metadata is left out since it may carry raw addresses.
func (p *StubPublisher) Publish(_ context.Context, entry domain.AuditEntry) error {
	p.logger.Info("Stub ledger entry published",
		zap.String("audit_id", entry.ID),
		zap.String("event_type", string(entry.EventType)),
		zap.String("actor", entry.Actor),
		zap.Time("timestamp", entry.Timestamp.UTC()),
		zap.String("content_hash", entry.ContentHash),
	)
	return nil
}

var _ port.LedgerPublisher = (*StubPublisher)(nil)
