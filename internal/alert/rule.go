// Package alert evaluates configured rules against live and aggregated metric
// values, maintaining one hysteresis state per rule and subject.
package alert

import (
	"fmt"
	"sync"
	"time"
)

// Severity is the closed set of alert severities.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Channel types a rule may dispatch to, beyond the in-band alerts channel.
const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// Condition decides whether a value breaches a threshold.
type Condition func(value, threshold float64) bool

// Named conditions. Rules are registered with one of these rather than
// arbitrary closures so a rule's behavior is readable from its config.
func Above(value, threshold float64) bool     { return value > threshold }
func Below(value, threshold float64) bool     { return value < threshold }
func AtOrAbove(value, threshold float64) bool { return value >= threshold }

// Rule is static alerting configuration. Read-only after registration.
type Rule struct {
	Name             string
	Metric           string
	Condition        Condition
	Threshold        float64
	EvaluationWindow time.Duration // 0 means evaluate on each live value
	Cooldown         time.Duration
	Severity         Severity
	Channels         []string // external channels, e.g. email, webhook
}

// Registry holds the registered rules, validated up front so evaluation never
// has to re-check configuration.
type Registry struct {
	mu       sync.RWMutex
	rules    []Rule
	byMetric map[string][]Rule
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{byMetric: make(map[string][]Rule)}
}

// AddRule validates and registers a rule.
func (r *Registry) AddRule(rule Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name cannot be empty")
	}
	if rule.Metric == "" {
		return fmt.Errorf("rule %s: metric cannot be empty", rule.Name)
	}
	if rule.Condition == nil {
		return fmt.Errorf("rule %s: condition cannot be nil", rule.Name)
	}
	switch rule.Severity {
	case SeverityInfo, SeverityWarning, SeverityCritical:
	default:
		return fmt.Errorf("rule %s: unknown severity %q", rule.Name, rule.Severity)
	}
	for _, ch := range rule.Channels {
		if ch != ChannelEmail && ch != ChannelWebhook {
			return fmt.Errorf("rule %s: unknown channel %q", rule.Name, ch)
		}
	}
	if rule.Cooldown < 0 || rule.EvaluationWindow < 0 {
		return fmt.Errorf("rule %s: cooldown and evaluation window cannot be negative", rule.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rules {
		if existing.Name == rule.Name {
			return fmt.Errorf("rule %s: already registered", rule.Name)
		}
	}
	r.rules = append(r.rules, rule)
	r.byMetric[rule.Metric] = append(r.byMetric[rule.Metric], rule)
	return nil
}

// RulesForMetric returns the rules watching a metric.
func (r *Registry) RulesForMetric(metric string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byMetric[metric]
}

// WindowRules returns the rules evaluated by the aggregate sweep.
func (r *Registry) WindowRules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Rule
	for _, rule := range r.rules {
		if rule.EvaluationWindow > 0 {
			out = append(out, rule)
		}
	}
	return out
}
