// Package events publishes harvest lifecycle events to Kafka.
//
// Events are fire-and-forget notifications for downstream consumers; a
// publish failure is logged and surfaced but never fails the harvest that
// produced it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/affiliation-harvester/internal/domain"
)

// DefaultBatchTimeout bounds how long the writer holds a batch open.
const DefaultBatchTimeout = 100 * time.Millisecond

// Publisher emits harvest lifecycle events.
type Publisher interface {
	// Publish delivers one event. Implementations must be safe for
	// concurrent use.
	Publish(ctx context.Context, event domain.HarvestEvent) error
	// Close releases publisher resources.
	Close() error
}

// Config holds Kafka publisher configuration.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic for harvest events.
	Topic string
	// BatchSize is the maximum number of messages per batch.
	BatchSize int
	// BatchTimeout is the maximum time to hold a batch open.
	BatchTimeout time.Duration
}

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes harvest events to a Kafka topic, keyed by run id so
// events for one run land on one partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(cfg Config, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, domain.NewValidationError("brokers", "at least one broker address is required")
	}
	if cfg.Topic == "" {
		return nil, domain.NewValidationError("topic", "must not be empty")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger.With().Str("component", "events_publisher").Logger(),
	}, nil
}

// Publish marshals the event and writes it keyed by run id. A zero
// OccurredAt is stamped with the current time.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.HarvestEvent) error {
	msg, err := buildMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s event: %w", event.EventType, err)
	}

	p.logger.Debug().
		Str("run_id", event.RunID).
		Str("event_type", event.EventType).
		Msg("published harvest event")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// buildMessage validates the event and renders it as a Kafka message keyed
// by run id. A zero OccurredAt is stamped with the current time.
func buildMessage(event domain.HarvestEvent) (kafka.Message, error) {
	if event.RunID == "" {
		return kafka.Message{}, domain.NewValidationError("run_id", "must not be empty")
	}
	if event.EventType == "" {
		return kafka.Message{}, domain.NewValidationError("event_type", "must not be empty")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshaling %s event: %w", event.EventType, err)
	}

	return kafka.Message{
		Key:   []byte(event.RunID),
		Value: payload,
	}, nil
}

var _ Publisher = NoopPublisher{}

// NoopPublisher discards every event. Used when Kafka is not configured.
type NoopPublisher struct{}

// Publish discards the event.
func (NoopPublisher) Publish(context.Context, domain.HarvestEvent) error { return nil }

// Close is a no-op.
func (NoopPublisher) Close() error { return nil }
