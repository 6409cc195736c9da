package notification

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/logger"
)

func TestLoggingChannelMasksDestination(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	channel := NewLoggingChannel(zap.New(core), false)

	ctx := context.WithValue(context.Background(), logger.RequestIDKey{}, "req-1")
	if err := channel.Send(ctx, "+15551234567", domain.MethodSMS, "123456"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["contact"] == "+15551234567" {
		t.Fatalf("destination logged unmasked")
	}
	if _, ok := fields["dev_code"]; ok {
		t.Fatalf("code logged without exposeCodes")
	}
	if fields["request_id"] != "req-1" {
		t.Fatalf("unexpected request_id: %v", fields["request_id"])
	}
}

func TestLoggingChannelExposesCodesInDevelopment(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	channel := NewLoggingChannel(zap.New(core), true)

	if err := channel.Send(context.Background(), "alice@example.com", domain.MethodEmail, "654321"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := logs.All()[0].ContextMap()["dev_code"]; got != "654321" {
		t.Fatalf("unexpected dev_code: %v", got)
	}
}

func TestLoggingChannelHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewLoggingChannel(nil, false).Send(ctx, "alice@example.com", domain.MethodEmail, "1"); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
