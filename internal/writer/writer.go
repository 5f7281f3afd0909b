package writer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pulsefeed/pulsefeed/internal/event"
	"github.com/pulsefeed/pulsefeed/internal/retry"
)

// Config holds batch writer tuning parameters.
type Config struct {
	BatchSize    int           // Flush when this many events have accumulated
	BatchWindow  time.Duration // Flush when this much time has passed since the batch opened
	DrainTimeout time.Duration // Bound on flushing the in-flight batch at shutdown
	Retry        retry.Config  // Backoff policy for storage writes
}

// DefaultConfig returns the default batch writer configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:    100,
		BatchWindow:  2 * time.Second,
		DrainTimeout: 10 * time.Second,
		Retry:        retry.DefaultConfig(),
	}
}

// Writer drains the event queue into batches and persists them.
// A batch is owned exclusively by this writer between open and flush.
type Writer struct {
	fetcher   EventFetcher
	requeuer  Requeuer
	store     BatchStore
	publisher Publisher
	metrics   MetricsRecorder
	cfg       Config
}

// New creates a batch writer with no-op metrics.
func New(fetcher EventFetcher, requeuer Requeuer, store BatchStore, publisher Publisher, cfg Config) *Writer {
	return NewWithMetrics(fetcher, requeuer, store, publisher, cfg, nil)
}

// NewWithMetrics creates a batch writer with the provided metrics recorder.
// If m is nil, a no-op implementation is used.
func NewWithMetrics(fetcher EventFetcher, requeuer Requeuer, store BatchStore, publisher Publisher, cfg Config, m MetricsRecorder) *Writer {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &Writer{
		fetcher:   fetcher,
		requeuer:  requeuer,
		store:     store,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
	}
}

// Run consumes the queue until ctx is cancelled, then drains the in-flight
// batch within the configured drain timeout.
func (w *Writer) Run(ctx context.Context) error {
	slog.Info("Starting batch writer",
		"batch_size", w.cfg.BatchSize,
		"batch_window", w.cfg.BatchWindow,
		"drain_timeout", w.cfg.DrainTimeout,
	)

	for {
		batch, msgs := w.collect(ctx)

		if len(batch) > 0 {
			if ctx.Err() != nil {
				// Shutdown arrived with events in flight: drain on a fresh
				// bounded context so they are persisted or re-queued, not lost.
				w.drain(batch, msgs)
				slog.Info("Batch writer stopped")
				return nil
			}
			w.flushAndPublish(ctx, batch, msgs)
			continue
		}

		if ctx.Err() != nil {
			slog.Info("Batch writer stopped")
			return nil
		}
	}
}

// collect accumulates events until the batch reaches BatchSize or BatchWindow
// has elapsed since the first event arrived, whichever comes first.
func (w *Writer) collect(ctx context.Context) ([]event.MetricEvent, []kafkago.Message) {
	var batch []event.MetricEvent
	var msgs []kafkago.Message
	var windowCancel context.CancelFunc

	fetchCtx := ctx
	for len(batch) < w.cfg.BatchSize {
		ev, msg, err := w.fetcher.Fetch(fetchCtx)
		if err != nil {
			if msg != nil {
				// Poison message: commit past it so it is not re-read forever.
				slog.Error("Discarding undecodable queue message", "error", err)
				w.metrics.RecordError()
				w.metrics.IncrementCustom("poison_messages")
				if commitErr := w.fetcher.Commit(ctx, *msg); commitErr != nil {
					slog.Error("Failed to commit poison message", "error", commitErr)
				}
				continue
			}
			if ctx.Err() != nil || fetchCtx.Err() != nil {
				// Parent cancelled or batch window elapsed.
				break
			}
			slog.Error("Failed to fetch event from queue", "error", err)
			w.metrics.RecordError()
			continue
		}

		batch = append(batch, *ev)
		msgs = append(msgs, *msg)

		if len(batch) == 1 {
			// The batch opens on its first event; later fetches race the window.
			fetchCtx, windowCancel = context.WithTimeout(ctx, w.cfg.BatchWindow)
		}
	}
	if windowCancel != nil {
		windowCancel()
	}

	return batch, msgs
}

// flushAndPublish persists the batch, commits offsets, and publishes each
// event to the fan-out bus. Publishing happens strictly after the durable
// write: subscribers never observe an event that was not persisted.
func (w *Writer) flushAndPublish(ctx context.Context, batch []event.MetricEvent, msgs []kafkago.Message) {
	start := time.Now()

	err := retry.WithBackoff(ctx, w.cfg.Retry, "write_batch", func() error {
		_, writeErr := w.store.WriteBatch(ctx, batch)
		return writeErr
	})
	if err != nil {
		w.handleFlushFailure(ctx, batch, msgs, err)
		return
	}

	w.metrics.RecordPersisted(len(batch), time.Since(start))

	if err := w.fetcher.Commit(ctx, msgs...); err != nil {
		// The batch is durable; redelivered events will be deduplicated on the
		// natural key, so at-least-once holds despite the failed commit.
		slog.Error("Failed to commit offsets after flush",
			"batch_size", len(batch),
			"error", err,
		)
	}

	for i := range batch {
		w.publisher.Publish(batch[i])
		w.metrics.RecordPublished()
	}

	slog.Debug("Flushed batch",
		"batch_size", len(batch),
		"elapsed", time.Since(start),
	)
}

// handleFlushFailure splits an unflushable batch back into individual events
// and re-enqueues them. Events are never silently dropped: anything that
// cannot be re-enqueued stays uncommitted and will be redelivered.
func (w *Writer) handleFlushFailure(ctx context.Context, batch []event.MetricEvent, msgs []kafkago.Message, flushErr error) {
	slog.Error("Batch flush failed after retries, re-queueing events",
		"batch_size", len(batch),
		"error", flushErr,
	)
	w.metrics.RecordError()
	w.metrics.IncrementCustom("batches_requeued")

	requeued := 0
	for i := range batch {
		if err := w.requeuer.Enqueue(ctx, &batch[i]); err != nil {
			slog.Error("Failed to re-enqueue event",
				"subject_id", batch[i].SubjectID,
				"metric_type", batch[i].MetricType,
				"error", err,
			)
			continue
		}
		requeued++
	}

	if requeued == len(batch) {
		// Every event is safely back on the queue; commit so the originals
		// are not redelivered on top of the re-enqueued copies.
		if err := w.fetcher.Commit(ctx, msgs...); err != nil {
			slog.Error("Failed to commit offsets after re-enqueue", "error", err)
		}
		return
	}

	slog.Warn("Some events could not be re-enqueued, leaving offsets uncommitted for redelivery",
		"requeued", requeued,
		"batch_size", len(batch),
	)
}

// drain flushes the in-flight batch at shutdown on a bounded fresh context.
// Events that cannot be flushed in time are re-queued, not lost.
func (w *Writer) drain(batch []event.MetricEvent, msgs []kafkago.Message) {
	slog.Info("Draining in-flight batch", "batch_size", len(batch))

	drainCtx, cancel := context.WithTimeout(context.Background(), w.cfg.DrainTimeout)
	defer cancel()

	start := time.Now()
	_, err := w.store.WriteBatch(drainCtx, batch)
	if err == nil {
		w.metrics.RecordPersisted(len(batch), time.Since(start))
		if commitErr := w.fetcher.Commit(drainCtx, msgs...); commitErr != nil {
			slog.Error("Failed to commit offsets during drain", "error", commitErr)
		}
		for i := range batch {
			w.publisher.Publish(batch[i])
			w.metrics.RecordPublished()
		}
		slog.Info("Drained in-flight batch", "batch_size", len(batch))
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("Drain timeout elapsed before flush completed, re-queueing batch",
			"batch_size", len(batch),
		)
	}
	w.handleFlushFailure(drainCtx, batch, msgs, err)
}
