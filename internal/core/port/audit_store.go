package port

import (
	"context"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

// AuditStore is an append-only sink for audit entries. Append must return nil only
// once the entry is durable by the backend's own definition.
type AuditStore interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	// List returns entries in append order; an empty actor returns every entry.
	List(ctx context.Context, actor string) ([]domain.AuditEntry, error)
}

// AuditScanner is implemented by stores whose raw records can be damaged out of band.
// Scan returns every decodable entry plus one issue per record that failed to decode.
type AuditScanner interface {
	Scan(ctx context.Context) ([]domain.AuditEntry, []domain.IntegrityIssue, error)
}

// LedgerPublisher forwards entries to an external immutable ledger, best effort.
type LedgerPublisher interface {
	Publish(ctx context.Context, entry domain.AuditEntry) error
}
