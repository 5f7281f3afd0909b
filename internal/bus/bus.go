// Package bus provides the in-process metric fan-out point. Every durably
// written event is published here exactly once, and every attached sink
// receives it. Sinks form a fixed, enumerable set attached at wiring time --
// there is no open-ended listener registration at runtime.
package bus

import (
	"log/slog"
	"sync"

	"github.com/pulsefeed/pulsefeed/internal/event"
)

// Sink receives persisted metric events. Implementations must not block for
// long: the bus delivers synchronously from the batch writer's loop.
type Sink interface {
	OnMetricUpdate(ev event.MetricEvent)
}

// Bus fans out persisted metric events to its sinks.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Attach adds a sink. Called during process wiring, before the pipeline
// starts publishing.
func (b *Bus) Attach(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
	slog.Debug("Attached fan-out sink", "sinks", len(b.sinks))
}

// Publish delivers one persisted event to every sink.
func (b *Bus) Publish(ev event.MetricEvent) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		s.OnMetricUpdate(ev)
	}
}
