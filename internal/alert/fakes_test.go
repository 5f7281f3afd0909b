package alert

import (
	"context"
	"sync"
	"time"

	"github.com/pulsefeed/pulsefeed/internal/event"
)

// FakeDispatcher records every alert event it receives.
type FakeDispatcher struct {
	mu     sync.Mutex
	Events []event.AlertEvent
}

func (d *FakeDispatcher) Dispatch(_ context.Context, ev event.AlertEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Events = append(d.Events, ev)
}

func (d *FakeDispatcher) All() []event.AlertEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]event.AlertEvent, len(d.Events))
	copy(out, d.Events)
	return out
}

// FakeAggregator serves canned aggregate values keyed by subject and metric.
type FakeAggregator struct {
	mu     sync.Mutex
	Values map[string]float64 // "<subject>/<metric>" -> value
	Errs   map[string]error
	Calls  int
}

func (a *FakeAggregator) QueryAggregate(_ context.Context, subjectID, metricType string, _ time.Duration) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Calls++
	key := subjectID + "/" + metricType
	if err, ok := a.Errs[key]; ok {
		return 0, err
	}
	return a.Values[key], nil
}
