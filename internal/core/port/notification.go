package port

import (
	"context"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

// NotificationChannel delivers one-time codes. A failed send leaves the challenge in place.
type NotificationChannel interface {
	Send(ctx context.Context, destination string, method domain.TwoFactorMethod, code string) error
}
