package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/repository"
)

// SessionRepository keeps sessions in process memory. Records are never removed.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	byOwner  map[string][]string
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]domain.Session),
		byOwner:  make(map[string][]string),
	}
}

func (r *SessionRepository) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.Token]; exists {
		return repository.ErrConflict
	}
	r.sessions[session.Token] = cloneSession(session)
	r.byOwner[session.OwnerID] = append(r.byOwner[session.OwnerID], session.Token)
	return nil
}

func (r *SessionRepository) Get(_ context.Context, token string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneSession(session)
	return &out, nil
}

func (r *SessionRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokens := r.byOwner[ownerID]
	out := make([]domain.Session, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, cloneSession(r.sessions[token]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *SessionRepository) Touch(_ context.Context, token string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[token]
	if !ok {
		return false, repository.ErrNotFound
	}
	if session.State != domain.SessionActive {
		return false, nil
	}
	session.LastActivityAt = at
	r.sessions[token] = session
	return true, nil
}

func (r *SessionRepository) TransitionState(_ context.Context, token string, from, to domain.SessionState, _ time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[token]
	if !ok {
		return false, repository.ErrNotFound
	}
	if session.State != from {
		return false, nil
	}
	session.State = to
	r.sessions[token] = session
	return true, nil
}

func (r *SessionRepository) MarkMFAVerified(_ context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[token]
	if !ok {
		return repository.ErrNotFound
	}
	verifiedAt := at
	session.MFAVerifiedAt = &verifiedAt
	r.sessions[token] = session
	return nil
}

func (r *SessionRepository) CountByState(_ context.Context) (map[domain.SessionState]int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.SessionState]int, 3)
	for _, session := range r.sessions {
		counts[session.State]++
	}
	return counts, len(r.byOwner), nil
}

func cloneSession(s domain.Session) domain.Session {
	if s.MFAVerifiedAt != nil {
		at := *s.MFAVerifiedAt
		s.MFAVerifiedAt = &at
	}
	return s
}

var _ port.SessionRepository = (*SessionRepository)(nil)
