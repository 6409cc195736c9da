package port

import (
	"context"
	"time"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

// AttemptStore persists per-identity failure windows and per-IP blocks.
type AttemptStore interface {
	// AppendFailure records a failure at the supplied time, drops entries with
	// timestamp <= at-window, and returns the number of failures left in the window.
	AppendFailure(ctx context.Context, identity string, at time.Time, window time.Duration) (int, error)
	ClearFailures(ctx context.Context, identity string) error
	PutBlock(ctx context.Context, block domain.IPBlock) error
	GetBlock(ctx context.Context, ip string) (*domain.IPBlock, error)
	DeleteBlock(ctx context.Context, ip string) error
	CountBlocks(ctx context.Context, at time.Time) (int, error)
}
