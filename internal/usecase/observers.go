package usecase

import (
	"context"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
)

// Observers fans a security event out to every sink.
type Observers []port.SecurityObserver

func (o Observers) Observe(ctx context.Context, event domain.SecurityEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, event)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, domain.SecurityEvent) {}

func observerOrNop(obs port.SecurityObserver) port.SecurityObserver {
	if obs == nil {
		return nopObserver{}
	}
	return obs
}

var _ port.SecurityObserver = Observers(nil)
