package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pulsefeed/pulsefeed/internal/event"
)

// WebhookSender posts alert payloads to a configured HTTP endpoint.
type WebhookSender struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSender creates a webhook sender for the given endpoint URL.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Type returns the channel type this sender handles.
func (s *WebhookSender) Type() string {
	return "webhook"
}

// Send posts the alert to the webhook endpoint and requires a 2xx response.
func (s *WebhookSender) Send(ctx context.Context, ev event.AlertEvent) error {
	if s.url == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(s.url, "http://") && !strings.HasPrefix(s.url, "https://") {
		return fmt.Errorf("invalid webhook URL: %q", s.url)
	}

	body, err := json.Marshal(BuildWebhookPayload(ev))
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
