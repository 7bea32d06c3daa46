package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/affiliation-harvester/internal/domain"
)

func TestNewKafkaPublisher(t *testing.T) {
	t.Run("creates publisher", func(t *testing.T) {
		pub, err := NewKafkaPublisher(Config{
			Brokers:      []string{"localhost:9092"},
			Topic:        "harvest-events",
			BatchSize:    10,
			BatchTimeout: 50 * time.Millisecond,
		}, zerolog.Nop())
		require.NoError(t, err)
		defer pub.Close()

		assert.Equal(t, "harvest-events", pub.writer.Topic)
		assert.Equal(t, 10, pub.writer.BatchSize)
		assert.Equal(t, 50*time.Millisecond, pub.writer.BatchTimeout)
	})

	t.Run("applies default batch timeout", func(t *testing.T) {
		pub, err := NewKafkaPublisher(Config{
			Brokers: []string{"localhost:9092"},
			Topic:   "harvest-events",
		}, zerolog.Nop())
		require.NoError(t, err)
		defer pub.Close()

		assert.Equal(t, DefaultBatchTimeout, pub.writer.BatchTimeout)
	})

	t.Run("requires brokers", func(t *testing.T) {
		_, err := NewKafkaPublisher(Config{Topic: "harvest-events"}, zerolog.Nop())
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("requires topic", func(t *testing.T) {
		_, err := NewKafkaPublisher(Config{Brokers: []string{"localhost:9092"}}, zerolog.Nop())
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestBuildMessage(t *testing.T) {
	t.Run("keys by run id and round-trips the payload", func(t *testing.T) {
		occurred := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		event := domain.HarvestEvent{
			RunID:          "run-123",
			EventType:      domain.EventTypeHarvestCompleted,
			AffiliationIDs: []string{"60025272", "60000001"},
			YearFloor:      2015,
			TotalResults:   27,
			Works:          27,
			Authors:        4,
			OccurredAt:     occurred,
		}

		msg, err := buildMessage(event)
		require.NoError(t, err)
		assert.Equal(t, "run-123", string(msg.Key))

		var decoded domain.HarvestEvent
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.True(t, decoded.OccurredAt.Equal(occurred))
		decoded.OccurredAt = event.OccurredAt
		assert.Equal(t, event, decoded)
	})

	t.Run("stamps missing occurred_at", func(t *testing.T) {
		before := time.Now().UTC()
		msg, err := buildMessage(domain.HarvestEvent{
			RunID:     "run-123",
			EventType: domain.EventTypeHarvestStarted,
		})
		require.NoError(t, err)

		var decoded domain.HarvestEvent
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.False(t, decoded.OccurredAt.Before(before))
	})

	t.Run("requires run id", func(t *testing.T) {
		_, err := buildMessage(domain.HarvestEvent{EventType: domain.EventTypeHarvestStarted})
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("requires event type", func(t *testing.T) {
		_, err := buildMessage(domain.HarvestEvent{RunID: "run-123"})
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestKafkaPublisher_PublishValidation(t *testing.T) {
	pub, err := NewKafkaPublisher(Config{
		Brokers: []string{"localhost:9092"},
		Topic:   "harvest-events",
	}, zerolog.Nop())
	require.NoError(t, err)
	defer pub.Close()

	err = pub.Publish(context.Background(), domain.HarvestEvent{})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNoopPublisher(t *testing.T) {
	var pub Publisher = NoopPublisher{}

	require.NoError(t, pub.Publish(context.Background(), domain.HarvestEvent{
		RunID:     "run-123",
		EventType: domain.EventTypeHarvestStarted,
	}))
	require.NoError(t, pub.Close())
}
