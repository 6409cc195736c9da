package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository"
)

// AttemptStore keeps failure windows and IP blocks in process memory.
type AttemptStore struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	blocks   map[string]domain.IPBlock
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		failures: make(map[string][]time.Time),
		blocks:   make(map[string]domain.IPBlock),
	}
}

func (s *AttemptStore) AppendFailure(_ context.Context, identity string, at time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := at.Add(-window)
	kept := s.failures[identity][:0]
	for _, ts := range s.failures[identity] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, at)
	s.failures[identity] = kept
	return len(kept), nil
}

func (s *AttemptStore) ClearFailures(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failures, identity)
	return nil
}

func (s *AttemptStore) PutBlock(_ context.Context, block domain.IPBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[block.IP] = block
	return nil
}

func (s *AttemptStore) GetBlock(_ context.Context, ip string) (*domain.IPBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block, ok := s.blocks[ip]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &block, nil
}

func (s *AttemptStore) DeleteBlock(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[ip]; !ok {
		return repository.ErrNotFound
	}
	delete(s.blocks, ip)
	return nil
}

func (s *AttemptStore) CountBlocks(_ context.Context, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, block := range s.blocks {
		if block.ActiveAt(at) {
			count++
		}
	}
	return count, nil
}

var _ port.AttemptStore = (*AttemptStore)(nil)
