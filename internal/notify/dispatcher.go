// Package notify fans out alert events to the streaming gateway and to
// external channels. It uses the strategy pattern to route each channel type
// to its sender.
package notify

import (
	"context"
	"log/slog"

	"github.com/pulsefeed/pulsefeed/internal/event"
	"github.com/pulsefeed/pulsefeed/internal/gateway"
)

// ChannelSender is the interface all external channel strategies implement.
type ChannelSender interface {
	// Send delivers one alert event. A failure here is terminal for this
	// event and channel; delivery retries belong to the pipeline, not to
	// notification channels.
	Send(ctx context.Context, ev event.AlertEvent) error

	// Type returns the channel type this sender handles (e.g. "email").
	Type() string
}

// Registry manages channel sender strategies.
type Registry struct {
	senders map[string]ChannelSender
}

// NewRegistry creates an empty sender registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]ChannelSender)}
}

// Register registers a sender strategy.
func (r *Registry) Register(sender ChannelSender) {
	r.senders[sender.Type()] = sender
}

// Get retrieves a sender strategy by type.
func (r *Registry) Get(senderType string) (ChannelSender, bool) {
	s, ok := r.senders[senderType]
	return s, ok
}

// List returns all registered sender types.
func (r *Registry) List() []string {
	types := make([]string, 0, len(r.senders))
	for t := range r.senders {
		types = append(types, t)
	}
	return types
}

// GatewayPublisher pushes alert messages to subscribed streaming sessions.
type GatewayPublisher interface {
	Publish(channel string, msg gateway.ServerMessage)
}

// Dispatcher fans one alert event out to the in-band alerts channel and to
// every external channel named by the rule. Channels are failure-isolated:
// one failing channel never blocks the others.
type Dispatcher struct {
	registry *Registry
	gw       GatewayPublisher
}

// NewDispatcher creates a dispatcher over a sender registry and the gateway.
func NewDispatcher(registry *Registry, gw GatewayPublisher) *Dispatcher {
	return &Dispatcher{registry: registry, gw: gw}
}

// Dispatch delivers one alert event everywhere it should go. Each external
// channel gets a single attempt; failures are logged and counted, never
// propagated.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.AlertEvent) {
	msgType := gateway.MessageAlertTriggered
	if ev.Kind == event.AlertResolved {
		msgType = gateway.MessageAlertResolved
	}

	channel := event.AlertChannel(ev.SubjectID)
	d.gw.Publish(channel, gateway.ServerMessage{
		Type:    msgType,
		Channel: channel,
		Data:    ev,
	})

	for _, chType := range ev.Channels {
		sender, ok := d.registry.Get(chType)
		if !ok {
			slog.Warn("Unknown notification channel, skipping",
				"channel", chType,
				"rule", ev.RuleName,
				"subject_id", ev.SubjectID,
			)
			continue
		}

		if err := sender.Send(ctx, ev); err != nil {
			slog.Error("Failed to send alert notification",
				"channel", chType,
				"rule", ev.RuleName,
				"subject_id", ev.SubjectID,
				"kind", ev.Kind,
				"error", err,
			)
			continue
		}

		slog.Info("Sent alert notification",
			"channel", chType,
			"rule", ev.RuleName,
			"subject_id", ev.SubjectID,
			"kind", ev.Kind,
		)
	}
}
