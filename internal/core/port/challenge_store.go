package port

import (
	"context"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

// ChallengeStore keeps at most one live two-factor challenge per owner.
//
// A challenge must stay readable after its expiry for Verify to answer Expired. The
// in-memory store keeps it until the next Verify or Issue; the Redis store evicts it
// after a configurable retention, after which Verify answers NotFound.
type ChallengeStore interface {
	// Put stores the challenge, replacing any prior one for the same owner.
	Put(ctx context.Context, challenge domain.Challenge) error
	Get(ctx context.Context, ownerID string) (*domain.Challenge, error)
	IncrementAttempts(ctx context.Context, ownerID string) (int, error)
	Delete(ctx context.Context, ownerID string) error
}

// EnrollmentRepository stores two-factor enrollment records.
type EnrollmentRepository interface {
	Save(ctx context.Context, enrollment domain.Enrollment) error
	Get(ctx context.Context, ownerID string) (*domain.Enrollment, error)
}
