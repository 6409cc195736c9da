package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
)

const namespace = "security"

// SecurityMetrics counts security events by kind and exposes audit health.
type SecurityMetrics struct {
	Events            *prometheus.CounterVec
	AuditWriteFailure prometheus.Counter
	LedgerDropped     prometheus.Counter
	IntegrityIssues   prometheus.Gauge
}

// NewSecurityMetrics registers the collectors with reg, reusing any already registered.
func NewSecurityMetrics(reg prometheus.Registerer) (*SecurityMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	events, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Security events observed, partitioned by kind.",
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}

	writeFailures, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "write_failures_total",
		Help:      "Audit entries that could not be recorded by the backend.",
	}))
	if err != nil {
		return nil, err
	}

	dropped, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "dropped_total",
		Help:      "Audit entries that were never published to the ledger.",
	}))
	if err != nil {
		return nil, err
	}

	issues, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "integrity_issues",
		Help:      "Entries flagged by the most recent integrity verification.",
	}))
	if err != nil {
		return nil, err
	}

	return &SecurityMetrics{
		Events:            events,
		AuditWriteFailure: writeFailures,
		LedgerDropped:     dropped,
		IntegrityIssues:   issues,
	}, nil
}

// Observe implements port.SecurityObserver.
func (m *SecurityMetrics) Observe(_ context.Context, event domain.SecurityEvent) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(string(event.Kind)).Inc()

	switch event.Kind {
	case domain.SignalAuditWriteFailed:
		m.AuditWriteFailure.Inc()
	case domain.SignalLedgerDropped:
		m.LedgerDropped.Inc()
	case domain.SignalIntegrityChecked:
		var found float64
		if _, err := fmt.Sscanf(event.Fields["issues_found"], "%g", &found); err == nil {
			m.IntegrityIssues.Set(found)
		}
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}
