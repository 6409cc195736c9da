package memory

import (
	"context"
	"sync"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository"
)

// ChallengeStore keeps the live challenge of every owner in process memory.
type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]domain.Challenge
}

func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{challenges: make(map[string]domain.Challenge)}
}

func (s *ChallengeStore) Put(_ context.Context, challenge domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.challenges[challenge.OwnerID] = challenge
	return nil
}

func (s *ChallengeStore) Get(_ context.Context, ownerID string) (*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[ownerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &challenge, nil
}

func (s *ChallengeStore) IncrementAttempts(_ context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[ownerID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	challenge.Attempts++
	s.challenges[ownerID] = challenge
	return challenge.Attempts, nil
}

func (s *ChallengeStore) Delete(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.challenges[ownerID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.challenges, ownerID)
	return nil
}

// EnrollmentRepository stores two-factor enrollments in process memory.
type EnrollmentRepository struct {
	mu          sync.RWMutex
	enrollments map[string]domain.Enrollment
}

func NewEnrollmentRepository() *EnrollmentRepository {
	return &EnrollmentRepository{enrollments: make(map[string]domain.Enrollment)}
}

func (r *EnrollmentRepository) Save(_ context.Context, enrollment domain.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.enrollments[enrollment.OwnerID] = enrollment
	return nil
}

func (r *EnrollmentRepository) Get(_ context.Context, ownerID string) (*domain.Enrollment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enrollment, ok := r.enrollments[ownerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &enrollment, nil
}

var (
	_ port.ChallengeStore       = (*ChallengeStore)(nil)
	_ port.EnrollmentRepository = (*EnrollmentRepository)(nil)
)
