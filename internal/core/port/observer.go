package port

import (
	"context"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

// SecurityObserver receives non-authoritative telemetry. It is never a durability mechanism.
type SecurityObserver interface {
	Observe(ctx context.Context, event domain.SecurityEvent)
}
