package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/domain"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/core/port"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/config"
)

const (
	schemaVersion = "1.0"
	// DefaultLedgerTopic is used when the ledger topic is not configured.
	DefaultLedgerTopic = "security.audit.ledger"
)

// LedgerPublisher forwards audit entries to a Kafka topic keyed by actor.
type LedgerPublisher struct {
	producer *Producer
	topic    string
	appCfg   config.AppSettings
	logger   *zap.Logger
}

// NewLedgerPublisher constructs a Kafka-backed audit ledger publisher.
func NewLedgerPublisher(producer *Producer, topic string, appCfg config.AppSettings, logger *zap.Logger) *LedgerPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(topic) == "" {
		topic = DefaultLedgerTopic
	}
	return &LedgerPublisher{producer: producer, topic: topic, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Actor     string           `json:"actor"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   auditPayload     `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type auditPayload struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Actor       string            `json:"actor"`
	EventType   string            `json:"event_type"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	ContentHash string            `json:"content_hash"`
}

// Publish hands the entry to the async producer. The audit id doubles as the event id so
// downstream consumers can deduplicate redeliveries.
func (p *LedgerPublisher) Publish(ctx context.Context, entry domain.AuditEntry) error {
	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   entry.ID,
		EventType: "security.audit." + strings.ToLower(string(entry.EventType)),
		Actor:     entry.Actor,
		Timestamp: entry.Timestamp.UTC(),
		Version:   schemaVersion,
		Payload: auditPayload{
			ID:          entry.ID,
			Timestamp:   entry.Timestamp.UTC(),
			Actor:       entry.Actor,
			EventType:   string(entry.EventType),
			Description: entry.Description,
			Metadata:    entry.Metadata,
			ContentHash: entry.ContentHash,
		},
		Metadata: metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal ledger envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(p.topic),
		Key:   sarama.StringEncoder(entry.Actor),
		Value: sarama.ByteEncoder(bytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content_hash"), Value: []byte(entry.ContentHash)},
		},
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.LedgerPublisher = (*LedgerPublisher)(nil)
