package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/logger"
)

// LoggingChannel records code dispatch for observability without delivering anything.
// With exposeCodes set the code itself is logged, which is only acceptable in development.
type LoggingChannel struct {
	logger      *zap.Logger
	exposeCodes bool
}

// NewLoggingChannel constructs a notification channel backed by structured logging.
func NewLoggingChannel(log *zap.Logger, exposeCodes bool) *LoggingChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingChannel{logger: log.Named("notification"), exposeCodes: exposeCodes}
}

func (c *LoggingChannel) Send(ctx context.Context, destination string, method domain.TwoFactorMethod, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("delivery", string(method)),
		zap.String("contact", logger.MaskDestination(destination)),
	}
	if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if c.exposeCodes {
		fields = append(fields, zap.String("dev_code", code))
	}

	c.logger.Info("dispatch verification code", fields...)
	return nil
}

var _ port.NotificationChannel = (*LoggingChannel)(nil)
