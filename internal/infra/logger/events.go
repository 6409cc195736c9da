package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

// EventLogger writes security events as structured log lines. It is not the audit trail.
type EventLogger struct {
	log *zap.Logger
}

// NewEventLogger wraps the given logger; a nil logger yields a no-op sink.
func NewEventLogger(log *zap.Logger) *EventLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventLogger{log: log.Named("security")}
}

// Observe logs the event at a level derived from its kind.
func (l *EventLogger) Observe(ctx context.Context, event domain.SecurityEvent) {
	fields := make([]zap.Field, 0, len(event.Fields)+4)
	fields = append(fields,
		zap.String("event", string(event.Kind)),
		zap.String("actor", event.Actor),
		zap.Time("at", event.At),
	)
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	fields = append(fields, ContextFields(ctx)...)
	for k, v := range event.Fields {
		fields = append(fields, zap.String(k, v))
	}

	if ce := l.log.Check(levelFor(event.Kind), "security event"); ce != nil {
		ce.Write(fields...)
	}
}

func levelFor(kind domain.SecurityEventKind) zapcore.Level {
	switch kind {
	case domain.SignalAuditWriteFailed, domain.SignalLedgerDropped:
		return zapcore.ErrorLevel
	case domain.SignalIPBlocked, domain.SignalLoginFailed, domain.SignalMFARejected,
		domain.SignalMFADelivery, domain.SignalSessionRejected:
		return zapcore.WarnLevel
	case domain.SignalAuditAppended, domain.SignalLedgerPublished:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
