// Package queue provides the durable event queue between the ingestion
// boundary and the batch writer, backed by Kafka.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pulsefeed/pulsefeed/internal/event"
	"github.com/pulsefeed/pulsefeed/pkg/kafka"
)

// ErrQueueFull is the backpressure signal returned when the queue cannot
// accept an event within the write timeout. Callers decide whether to shed
// or retry; the queue never blocks the producer indefinitely.
var ErrQueueFull = errors.New("event queue full")

// Producer publishes metric events to the queue topic.
type Producer struct {
	writer *kafkago.Writer
	topic  string
}

// NewProducer creates a queue producer for the given brokers and topic.
// Writes are synchronous and keyed by subject so per-subject arrival order
// is preserved within a partition.
func NewProducer(brokers string, topic string) (*Producer, error) {
	if err := kafka.ValidateProducerParams(brokers, topic); err != nil {
		return nil, err
	}

	brokerList := kafka.ParseBrokers(brokers)

	slog.Info("Initializing queue producer",
		"brokers", brokerList,
		"topic", topic,
	)

	return &Producer{
		writer: kafka.NewWriter(brokerList, topic),
		topic:  topic,
	}, nil
}

// buildMessage creates a queue message from a metric event.
// The message is keyed by subject_id for partition locality.
func buildMessage(ev *event.MetricEvent) (kafkago.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("failed to marshal metric event: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(ev.SubjectID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "metric_type", Value: []byte(ev.MetricType)},
		},
		Time: time.Now(),
	}, nil
}

// Enqueue publishes a single metric event to the queue.
// A write that cannot complete within the write timeout is reported as
// ErrQueueFull so the caller can return a backpressure response.
func (p *Producer) Enqueue(ctx context.Context, ev *event.MetricEvent) error {
	msg, err := buildMessage(ev)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if isTimeout(err) {
			slog.Warn("Queue write timed out, signaling backpressure",
				"subject_id", ev.SubjectID,
				"metric_type", ev.MetricType,
				"topic", p.topic,
			)
			return fmt.Errorf("%w: %s", ErrQueueFull, err)
		}
		slog.Error("Failed to write event to queue",
			"subject_id", ev.SubjectID,
			"topic", p.topic,
			"error", err,
		)
		return fmt.Errorf("failed to write event to queue: %w", err)
	}

	return nil
}

// isTimeout reports whether the write failed because the broker could not
// accept it in time.
func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, kafkago.RequestTimedOut)
}

// Close gracefully closes the queue producer.
func (p *Producer) Close() error {
	slog.Info("Closing queue producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		slog.Error("Error closing queue producer", "error", err)
		return err
	}
	return nil
}
