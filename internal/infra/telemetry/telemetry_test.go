package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/config"
)

func TestSecurityMetricsObserve(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewSecurityMetrics(registry)
	if err != nil {
		t.Fatalf("NewSecurityMetrics() error = %v", err)
	}

	ctx := context.Background()
	metrics.Observe(ctx, domain.SecurityEvent{Kind: domain.SignalLoginFailed})
	metrics.Observe(ctx, domain.SecurityEvent{Kind: domain.SignalLoginFailed})
	metrics.Observe(ctx, domain.SecurityEvent{Kind: domain.SignalAuditWriteFailed})
	metrics.Observe(ctx, domain.SecurityEvent{
		Kind:   domain.SignalIntegrityChecked,
		Fields: map[string]string{"issues_found": "2"},
	})

	if got := testutil.ToFloat64(metrics.Events.WithLabelValues(string(domain.SignalLoginFailed))); got != 2 {
		t.Fatalf("expected 2 login failures, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.AuditWriteFailure); got != 1 {
		t.Fatalf("expected 1 audit write failure, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.IntegrityIssues); got != 2 {
		t.Fatalf("expected integrity gauge 2, got %f", got)
	}
}

func TestSecurityMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewSecurityMetrics(registry)
	if err != nil {
		t.Fatalf("first registration: %v", err)
	}
	second, err := NewSecurityMetrics(registry)
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}
	if first.Events != second.Events {
		t.Fatalf("expected the existing counter vector to be reused")
	}
}

func TestTracerProviderDisabledIsNoop(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), config.TelemetrySettings{TracingEnabled: false}, "test", nil)
	if err != nil {
		t.Fatalf("NewTracerProvider() error = %v", err)
	}
	if tp.Enabled() {
		t.Fatalf("expected disabled provider")
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}
