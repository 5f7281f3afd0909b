// Package writer provides the batch writer: it drains the event queue into
// bounded batches, persists them to the storage engine, and publishes each
// persisted event to the fan-out bus.
package writer

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pulsefeed/pulsefeed/internal/event"
)

// EventFetcher reads metric events from the event queue.
type EventFetcher interface {
	// Fetch reads the next event. On a decode failure the raw message is
	// still returned so the caller can commit past it.
	Fetch(ctx context.Context) (*event.MetricEvent, *kafkago.Message, error)

	// Commit commits the offsets for the given messages.
	Commit(ctx context.Context, msgs ...kafkago.Message) error
}

// Requeuer puts events back on the queue after a failed flush.
type Requeuer interface {
	Enqueue(ctx context.Context, ev *event.MetricEvent) error
}

// BatchStore persists a batch of events atomically and idempotently.
type BatchStore interface {
	WriteBatch(ctx context.Context, events []event.MetricEvent) (int, error)
}

// Publisher receives each event after its batch has been durably written.
type Publisher interface {
	Publish(ev event.MetricEvent)
}
