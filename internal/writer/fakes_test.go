package writer

import (
	"context"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pulsefeed/pulsefeed/internal/event"
)

// fetchItem is one scripted response from the fake fetcher.
type fetchItem struct {
	ev  *event.MetricEvent
	msg *kafkago.Message
	err error
}

// FakeFetcher feeds scripted events to the writer through a channel and
// blocks like a real queue consumer when the script runs out.
type FakeFetcher struct {
	items chan fetchItem

	mu        sync.Mutex
	committed []kafkago.Message
	commitErr error
}

func NewFakeFetcher(buffer int) *FakeFetcher {
	return &FakeFetcher{items: make(chan fetchItem, buffer)}
}

func (f *FakeFetcher) Push(ev event.MetricEvent) {
	f.items <- fetchItem{ev: &ev, msg: &kafkago.Message{Key: []byte(ev.SubjectID)}}
}

func (f *FakeFetcher) PushPoison() {
	f.items <- fetchItem{msg: &kafkago.Message{}, err: errUndecodable}
}

func (f *FakeFetcher) Fetch(ctx context.Context) (*event.MetricEvent, *kafkago.Message, error) {
	select {
	case item := <-f.items:
		return item.ev, item.msg, item.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (f *FakeFetcher) Commit(ctx context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *FakeFetcher) CommittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

// FakeStore records written batches and can fail the first N writes.
type FakeStore struct {
	mu       sync.Mutex
	batches  [][]event.MetricEvent
	failures int
	writeErr error
	flushed  chan int // batch sizes, signalled per successful write
}

func NewFakeStore() *FakeStore {
	return &FakeStore{flushed: make(chan int, 16)}
}

func (s *FakeStore) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
	s.writeErr = err
}

func (s *FakeStore) WriteBatch(ctx context.Context, events []event.MetricEvent) (int, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		err := s.writeErr
		s.mu.Unlock()
		return 0, err
	}
	s.batches = append(s.batches, append([]event.MetricEvent(nil), events...))
	s.mu.Unlock()
	s.flushed <- len(events)
	return len(events), nil
}

func (s *FakeStore) Batches() [][]event.MetricEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]event.MetricEvent, len(s.batches))
	copy(out, s.batches)
	return out
}

// WaitForFlush blocks until a batch is written or the timeout elapses.
// Returns the flushed batch size, or -1 on timeout.
func (s *FakeStore) WaitForFlush(timeout time.Duration) int {
	select {
	case n := <-s.flushed:
		return n
	case <-time.After(timeout):
		return -1
	}
}

// FakePublisher records published events.
type FakePublisher struct {
	mu        sync.Mutex
	published []event.MetricEvent
}

func (p *FakePublisher) Publish(ev event.MetricEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, ev)
}

func (p *FakePublisher) Published() []event.MetricEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.MetricEvent, len(p.published))
	copy(out, p.published)
	return out
}

// FakeRequeuer records re-enqueued events.
type FakeRequeuer struct {
	mu         sync.Mutex
	requeued   []event.MetricEvent
	enqueueErr error
	signalled  chan struct{}
}

func NewFakeRequeuer() *FakeRequeuer {
	return &FakeRequeuer{signalled: make(chan struct{}, 64)}
}

func (r *FakeRequeuer) Enqueue(ctx context.Context, ev *event.MetricEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enqueueErr != nil {
		return r.enqueueErr
	}
	r.requeued = append(r.requeued, *ev)
	r.signalled <- struct{}{}
	return nil
}

func (r *FakeRequeuer) Requeued() []event.MetricEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.MetricEvent, len(r.requeued))
	copy(out, r.requeued)
	return out
}

// WaitForRequeue blocks until n events have been re-enqueued or the timeout
// elapses. Returns true when n was reached.
func (r *FakeRequeuer) WaitForRequeue(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-r.signalled:
		case <-deadline:
			return false
		}
	}
	return true
}
