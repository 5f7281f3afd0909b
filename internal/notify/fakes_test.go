package notify

import (
	"context"
	"sync"

	"github.com/pulsefeed/pulsefeed/internal/event"
	"github.com/pulsefeed/pulsefeed/internal/gateway"
)

// FakeChannelSender records sent events and can fail on demand.
type FakeChannelSender struct {
	mu       sync.Mutex
	SendType string
	Err      error
	Events   []event.AlertEvent
}

func (s *FakeChannelSender) Type() string {
	return s.SendType
}

func (s *FakeChannelSender) Send(_ context.Context, ev event.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Events = append(s.Events, ev)
	return nil
}

func (s *FakeChannelSender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Events)
}

// FakeGateway records in-band publishes.
type FakeGateway struct {
	mu       sync.Mutex
	Channels []string
	Messages []gateway.ServerMessage
}

func (g *FakeGateway) Publish(channel string, msg gateway.ServerMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Channels = append(g.Channels, channel)
	g.Messages = append(g.Messages, msg)
}
