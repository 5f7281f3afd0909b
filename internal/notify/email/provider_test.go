package email

import (
	"context"
	"errors"
	"testing"
)

// fakeProvider is an in-memory Provider for registry tests.
type fakeProvider struct {
	name       string
	configured bool
	err        error
	sent       int
}

func (p *fakeProvider) Name() string         { return p.name }
func (p *fakeProvider) IsConfigured() bool   { return p.configured }
func (p *fakeProvider) Send(_ context.Context, _ *Request) error {
	if p.err != nil {
		return p.err
	}
	p.sent++
	return nil
}

func TestRegistryPrefersPrimary(t *testing.T) {
	primary := &fakeProvider{name: "resend", configured: true}
	fallback := &fakeProvider{name: "ses", configured: true}

	r := NewProviderRegistry()
	r.Register(primary)
	r.Register(fallback)
	if err := r.SetPrimary("resend"); err != nil {
		t.Fatalf("SetPrimary() error: %v", err)
	}
	if err := r.SetFallback("ses"); err != nil {
		t.Fatalf("SetFallback() error: %v", err)
	}

	if err := r.Send(context.Background(), &Request{To: []string{"a@b.c"}}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if primary.sent != 1 || fallback.sent != 0 {
		t.Fatalf("sends = (%d, %d), want (1, 0)", primary.sent, fallback.sent)
	}
}

func TestRegistryFallsBackWhenPrimaryUnconfigured(t *testing.T) {
	primary := &fakeProvider{name: "resend"}
	fallback := &fakeProvider{name: "ses", configured: true}

	r := NewProviderRegistry()
	r.Register(primary)
	r.Register(fallback)
	_ = r.SetPrimary("resend")
	_ = r.SetFallback("ses")

	if err := r.Send(context.Background(), &Request{To: []string{"a@b.c"}}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if fallback.sent != 1 {
		t.Fatalf("fallback sends = %d, want 1", fallback.sent)
	}
}

func TestRegistryFallsBackOnSendFailure(t *testing.T) {
	primary := &fakeProvider{name: "resend", configured: true, err: errors.New("rate limited")}
	fallback := &fakeProvider{name: "ses", configured: true}

	r := NewProviderRegistry()
	r.Register(primary)
	r.Register(fallback)
	_ = r.SetPrimary("resend")
	_ = r.SetFallback("ses")

	if err := r.Send(context.Background(), &Request{To: []string{"a@b.c"}}); err != nil {
		t.Fatalf("Send() should succeed via fallback, got %v", err)
	}
	if fallback.sent != 1 {
		t.Fatalf("fallback sends = %d, want 1", fallback.sent)
	}
}

func TestRegistryReturnsOriginalErrorWhenAllFail(t *testing.T) {
	primaryErr := errors.New("rate limited")
	primary := &fakeProvider{name: "resend", configured: true, err: primaryErr}
	fallback := &fakeProvider{name: "ses", configured: true, err: errors.New("throttled")}

	r := NewProviderRegistry()
	r.Register(primary)
	r.Register(fallback)
	_ = r.SetPrimary("resend")
	_ = r.SetFallback("ses")

	if err := r.Send(context.Background(), &Request{To: []string{"a@b.c"}}); !errors.Is(err, primaryErr) {
		t.Fatalf("Send() error = %v, want primary error", err)
	}
}

func TestRegistryNoConfiguredProvider(t *testing.T) {
	r := NewProviderRegistry()
	r.Register(&fakeProvider{name: "resend"})
	_ = r.SetPrimary("resend")

	if err := r.Send(context.Background(), &Request{}); err == nil {
		t.Fatal("expected error with no configured provider")
	}
}

func TestRegistryRejectsUnknownNames(t *testing.T) {
	r := NewProviderRegistry()
	if err := r.SetPrimary("resend"); err == nil {
		t.Fatal("expected error for unregistered primary")
	}
	if err := r.SetFallback("ses"); err == nil {
		t.Fatal("expected error for unregistered fallback")
	}
}
