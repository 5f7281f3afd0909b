package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/pulsefeed/pulsefeed/internal/event"
	"github.com/pulsefeed/pulsefeed/internal/notify"
)

// Config holds email channel configuration.
type Config struct {
	From         string
	To           []string // Alert recipients
	ResendAPIKey string
	AWSRegion    string
}

// Sender delivers alert emails through the provider registry. Resend is the
// primary backend with SES as fallback.
type Sender struct {
	registry *ProviderRegistry
	from     string
	to       []string
}

// NewSender creates an email sender with the default provider chain.
func NewSender(cfg Config) *Sender {
	registry := NewProviderRegistry()
	registry.Register(NewResendProvider(cfg.ResendAPIKey))
	registry.Register(NewSESProvider(cfg.AWSRegion))
	// Both names are registered above, errors cannot occur.
	_ = registry.SetPrimary("resend")
	_ = registry.SetFallback("ses")

	return NewSenderWithRegistry(registry, cfg)
}

// NewSenderWithRegistry creates an email sender over a custom provider
// registry. Useful for tests.
func NewSenderWithRegistry(registry *ProviderRegistry, cfg Config) *Sender {
	return &Sender{
		registry: registry,
		from:     cfg.From,
		to:       cfg.To,
	}
}

// Type returns the channel type this sender handles.
func (s *Sender) Type() string {
	return "email"
}

// Send emails one alert event to the configured recipients.
func (s *Sender) Send(ctx context.Context, ev event.AlertEvent) error {
	if len(s.to) == 0 {
		return fmt.Errorf("email recipients are required")
	}
	for _, recipient := range s.to {
		if !strings.Contains(recipient, "@") {
			return fmt.Errorf("invalid email address format: %q", recipient)
		}
	}

	payload := notify.BuildEmailPayload(ev)
	return s.registry.Send(ctx, &Request{
		From:    s.from,
		To:      s.to,
		Subject: payload.Subject,
		Body:    payload.Body,
	})
}
