// Package email sends alert notifications over email. It supports multiple
// backend providers with fallback, so a failing primary does not drop alerts.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Request represents an email to be sent.
type Request struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Provider is the interface all email backends implement.
type Provider interface {
	// Name returns the provider name (e.g. "resend", "ses").
	Name() string

	// Send sends an email using this provider.
	Send(ctx context.Context, req *Request) error

	// IsConfigured returns true if the provider is usable.
	IsConfigured() bool
}

// ProviderRegistry manages email providers with fallback support.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	primary   string
	fallback  []string
}

// NewProviderRegistry creates an empty provider registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry.
func (r *ProviderRegistry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	slog.Info("Registered email provider", "name", p.Name(), "configured", p.IsConfigured())
}

// SetPrimary sets the primary provider by name.
func (r *ProviderRegistry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("provider %q not registered", name)
	}
	r.primary = name
	return nil
}

// SetFallback sets the fallback providers in order.
func (r *ProviderRegistry) SetFallback(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("provider %q not registered", name)
		}
	}
	r.fallback = names
	return nil
}

// pick returns the primary configured provider, falling back in order.
func (r *ProviderRegistry) pick() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.primary != "" {
		if p, ok := r.providers[r.primary]; ok && p.IsConfigured() {
			return p, nil
		}
	}
	for _, name := range r.fallback {
		if p, ok := r.providers[name]; ok && p.IsConfigured() {
			slog.Warn("Primary email provider not configured, using fallback",
				"primary", r.primary,
				"fallback", name,
			)
			return p, nil
		}
	}
	return nil, fmt.Errorf("no configured email provider available")
}

// Send sends an email using the best available provider. If the primary send
// fails, each configured fallback gets one attempt before the original error
// is returned.
func (r *ProviderRegistry) Send(ctx context.Context, req *Request) error {
	primary, err := r.pick()
	if err != nil {
		return err
	}

	sendErr := primary.Send(ctx, req)
	if sendErr == nil {
		return nil
	}

	r.mu.RLock()
	fallbacks := r.fallback
	r.mu.RUnlock()

	for _, name := range fallbacks {
		r.mu.RLock()
		p, ok := r.providers[name]
		r.mu.RUnlock()
		if !ok || !p.IsConfigured() || p.Name() == primary.Name() {
			continue
		}

		slog.Warn("Primary email provider failed, trying fallback",
			"primary", primary.Name(),
			"fallback", name,
			"error", sendErr,
		)
		if err := p.Send(ctx, req); err == nil {
			return nil
		}
	}
	return sendErr
}
