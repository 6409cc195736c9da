package port

import (
	"context"
	"time"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

// SessionRepository deals with session storage. Tokens are never deleted so they are never reused.
type SessionRepository interface {
	// Create inserts a new session; repository.ErrConflict signals a token collision.
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Session, error)
	// Touch updates last activity of an active session and reports whether it was active.
	Touch(ctx context.Context, token string, at time.Time) (bool, error)
	// TransitionState performs a compare-and-set from one state to another.
	TransitionState(ctx context.Context, token string, from, to domain.SessionState, at time.Time) (bool, error)
	MarkMFAVerified(ctx context.Context, token string, at time.Time) error
	CountByState(ctx context.Context) (map[domain.SessionState]int, int, error)
}
