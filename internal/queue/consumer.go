package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pulsefeed/pulsefeed/internal/event"
	"github.com/pulsefeed/pulsefeed/pkg/kafka"
)

// Consumer reads metric events from the queue topic.
// Offsets are committed explicitly, after the batch writer has durably
// persisted a batch, giving at-least-once delivery.
type Consumer struct {
	reader *kafkago.Reader
	topic  string
}

// NewConsumer creates a queue consumer for the given brokers, topic, and group.
func NewConsumer(brokers string, topic string, groupID string) (*Consumer, error) {
	if err := kafka.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafka.ParseBrokers(brokers)

	slog.Info("Initializing queue consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	reader := kafkago.NewReader(kafka.NewReaderConfig(brokerList, topic, groupID))

	return &Consumer{
		reader: reader,
		topic:  topic,
	}, nil
}

// Fetch reads the next message and decodes it as a metric event.
// On a decode failure the raw message is still returned so the caller can
// commit past a poison message instead of re-reading it forever.
func (c *Consumer) Fetch(ctx context.Context) (*event.MetricEvent, *kafkago.Message, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch message from queue: %w", err)
	}

	var ev event.MetricEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return nil, &msg, fmt.Errorf("failed to unmarshal metric event: %w", err)
	}

	return &ev, &msg, nil
}

// Commit commits the offsets for the given messages.
// Called only after a successful durable write of the containing batch.
func (c *Consumer) Commit(ctx context.Context, msgs ...kafkago.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return c.reader.CommitMessages(ctx, msgs...)
}

// Close gracefully closes the queue consumer.
func (c *Consumer) Close() error {
	slog.Info("Closing queue consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing queue consumer", "error", err)
		return err
	}
	return nil
}
