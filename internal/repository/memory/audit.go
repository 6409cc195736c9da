package memory

import (
	"context"
	"sync"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
)

// AuditStore holds the trail in process memory. An entry is durable for the lifetime of the process.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Append(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry.Clone())
	return nil
}

func (s *AuditStore) List(_ context.Context, actor string) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if actor != "" && entry.Actor != actor {
			continue
		}
		out = append(out, entry.Clone())
	}
	return out, nil
}

var _ port.AuditStore = (*AuditStore)(nil)
