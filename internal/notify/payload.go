package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/pulsefeed/pulsefeed/internal/event"
)

// EmailPayload represents email message content.
type EmailPayload struct {
	Subject string
	Body    string
}

// BuildEmailPayload builds email subject and body from an alert event.
func BuildEmailPayload(ev event.AlertEvent) EmailPayload {
	verb := "Triggered"
	if ev.Kind == event.AlertResolved {
		verb = "Resolved"
	}

	subject := fmt.Sprintf("Alert %s: %s - %s", verb, ev.Severity, ev.RuleName)

	var sb strings.Builder
	sb.WriteString("Alert Notification\n")
	sb.WriteString("==================\n\n")
	sb.WriteString(fmt.Sprintf("Rule: %s\n", ev.RuleName))
	sb.WriteString(fmt.Sprintf("State: %s\n", ev.Kind))
	sb.WriteString(fmt.Sprintf("Severity: %s\n", ev.Severity))
	sb.WriteString(fmt.Sprintf("Subject: %s\n", ev.SubjectID))
	sb.WriteString(fmt.Sprintf("Metric: %s\n", ev.MetricType))
	sb.WriteString(fmt.Sprintf("Value: %g (threshold %g)\n", ev.Value, ev.Threshold))
	sb.WriteString(fmt.Sprintf("At: %s\n", ev.Timestamp.UTC().Format(time.RFC3339)))

	return EmailPayload{Subject: subject, Body: sb.String()}
}

// WebhookPayload is the JSON body posted to webhook endpoints.
type WebhookPayload struct {
	Kind       string    `json:"kind"`
	Rule       string    `json:"rule"`
	Severity   string    `json:"severity"`
	SubjectID  string    `json:"subject_id"`
	MetricType string    `json:"metric_type"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	Timestamp  time.Time `json:"timestamp"`
}

// BuildWebhookPayload builds the webhook body from an alert event.
func BuildWebhookPayload(ev event.AlertEvent) WebhookPayload {
	return WebhookPayload{
		Kind:       string(ev.Kind),
		Rule:       ev.RuleName,
		Severity:   ev.Severity,
		SubjectID:  ev.SubjectID,
		MetricType: ev.MetricType,
		Value:      ev.Value,
		Threshold:  ev.Threshold,
		Timestamp:  ev.Timestamp,
	}
}
