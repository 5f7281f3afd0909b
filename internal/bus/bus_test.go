package bus

import (
	"testing"
	"time"

	"github.com/pulsefeed/pulsefeed/internal/event"
)

type recordingSink struct {
	received []event.MetricEvent
}

func (s *recordingSink) OnMetricUpdate(ev event.MetricEvent) {
	s.received = append(s.received, ev)
}

func TestBus_PublishReachesAllSinks(t *testing.T) {
	b := New()
	first := &recordingSink{}
	second := &recordingSink{}
	b.Attach(first)
	b.Attach(second)

	ev := event.MetricEvent{
		SubjectID:  "user-1",
		MetricType: "steps",
		Value:      100,
		Timestamp:  time.Now(),
	}
	b.Publish(ev)

	for i, sink := range []*recordingSink{first, second} {
		if len(sink.received) != 1 {
			t.Fatalf("sink %d received %d events, want 1", i, len(sink.received))
		}
		if sink.received[0].SubjectID != "user-1" {
			t.Errorf("sink %d received wrong event: %+v", i, sink.received[0])
		}
	}
}

func TestBus_PublishWithNoSinks(t *testing.T) {
	b := New()
	// Must not panic
	b.Publish(event.MetricEvent{SubjectID: "user-1", MetricType: "steps"})
}
