package alert

import (
	"context"
	"testing"
	"time"

	"github.com/pulsefeed/pulsefeed/internal/event"
	"github.com/pulsefeed/pulsefeed/internal/storage"
)

func errorRateRule(t *testing.T, reg *Registry) Rule {
	t.Helper()
	rule := Rule{
		Name:      "high-error-rate",
		Metric:    "error_rate",
		Condition: Above,
		Threshold: 0.05,
		Cooldown:  900 * time.Second,
		Severity:  SeverityCritical,
		Channels:  []string{ChannelEmail},
	}
	if err := reg.AddRule(rule); err != nil {
		t.Fatalf("AddRule() error: %v", err)
	}
	return rule
}

func TestEvaluateHysteresis(t *testing.T) {
	reg := NewRegistry()
	rule := errorRateRule(t, reg)
	dispatcher := &FakeDispatcher{}
	ev := NewEvaluator(reg, &FakeAggregator{}, dispatcher)

	base := time.Now()

	// Breach triggers exactly once.
	ev.Evaluate(rule, "user-1", 0.08, base)
	// Same breach one second later is suppressed while the alert is active.
	ev.Evaluate(rule, "user-1", 0.08, base.Add(time.Second))

	got := dispatcher.All()
	if len(got) != 1 {
		t.Fatalf("events after repeated breach = %d, want 1", len(got))
	}
	if got[0].Kind != event.AlertTriggered {
		t.Fatalf("first event kind = %s, want triggered", got[0].Kind)
	}
	if got[0].RuleName != "high-error-rate" || got[0].Severity != "critical" {
		t.Fatalf("event = %+v, want rule name and severity carried over", got[0])
	}

	// Recovery resolves exactly once.
	ev.Evaluate(rule, "user-1", 0.02, base.Add(2*time.Second))
	ev.Evaluate(rule, "user-1", 0.02, base.Add(3*time.Second))

	got = dispatcher.All()
	if len(got) != 2 {
		t.Fatalf("events after recovery = %d, want 2", len(got))
	}
	if got[1].Kind != event.AlertResolved {
		t.Fatalf("second event kind = %s, want resolved", got[1].Kind)
	}

	// A new breach inside the cooldown stays suppressed.
	ev.Evaluate(rule, "user-1", 0.08, base.Add(10*time.Second))
	if got := dispatcher.All(); len(got) != 2 {
		t.Fatalf("events during cooldown = %d, want 2", len(got))
	}

	// After cooldown expiry the breach triggers again.
	ev.Evaluate(rule, "user-1", 0.08, base.Add(901*time.Second))
	got = dispatcher.All()
	if len(got) != 3 {
		t.Fatalf("events after cooldown expiry = %d, want 3", len(got))
	}
	if got[2].Kind != event.AlertTriggered {
		t.Fatalf("third event kind = %s, want triggered", got[2].Kind)
	}
}

func TestEvaluateStatesAreIndependentPerSubject(t *testing.T) {
	reg := NewRegistry()
	rule := errorRateRule(t, reg)
	dispatcher := &FakeDispatcher{}
	ev := NewEvaluator(reg, &FakeAggregator{}, dispatcher)

	now := time.Now()
	ev.Evaluate(rule, "user-1", 0.08, now)
	ev.Evaluate(rule, "user-2", 0.08, now)

	got := dispatcher.All()
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2 (one per subject)", len(got))
	}
	if got[0].SubjectID == got[1].SubjectID {
		t.Fatal("expected distinct subjects in the two events")
	}
}

func TestOnMetricUpdateEvaluatesLiveRulesOnly(t *testing.T) {
	reg := NewRegistry()
	errorRateRule(t, reg)
	if err := reg.AddRule(Rule{
		Name:             "sustained-error-rate",
		Metric:           "error_rate",
		Condition:        AtOrAbove,
		Threshold:        0.05,
		EvaluationWindow: 5 * time.Minute,
		Severity:         SeverityWarning,
	}); err != nil {
		t.Fatalf("AddRule() error: %v", err)
	}

	dispatcher := &FakeDispatcher{}
	ev := NewEvaluator(reg, &FakeAggregator{}, dispatcher)

	ev.OnMetricUpdate(event.MetricEvent{
		SubjectID:  "user-1",
		MetricType: "error_rate",
		Value:      0.2,
		Timestamp:  time.Now(),
	})

	// Only the live rule fires; the windowed rule waits for the sweep.
	got := dispatcher.All()
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if got[0].RuleName != "high-error-rate" {
		t.Fatalf("rule = %s, want high-error-rate", got[0].RuleName)
	}
}

func TestSweepEvaluatesWindowedAggregates(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddRule(Rule{
		Name:             "sustained-error-rate",
		Metric:           "error_rate",
		Condition:        AtOrAbove,
		Threshold:        0.05,
		EvaluationWindow: 5 * time.Minute,
		Cooldown:         time.Minute,
		Severity:         SeverityWarning,
	}); err != nil {
		t.Fatalf("AddRule() error: %v", err)
	}

	store := &FakeAggregator{Values: map[string]float64{"user-1/error_rate": 0.07}}
	dispatcher := &FakeDispatcher{}
	ev := NewEvaluator(reg, store, dispatcher)

	// The sweep only visits subjects seen on the live path.
	ev.OnMetricUpdate(event.MetricEvent{SubjectID: "user-1", MetricType: "error_rate", Value: 0.01})

	ev.Sweep(context.Background())

	got := dispatcher.All()
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	if got[0].Kind != event.AlertTriggered || got[0].Value != 0.07 {
		t.Fatalf("event = %+v, want triggered with aggregate value", got[0])
	}

	// Repeated sweep with the condition still holding does not re-trigger.
	ev.Sweep(context.Background())
	if got := dispatcher.All(); len(got) != 1 {
		t.Fatalf("events after second sweep = %d, want 1", len(got))
	}
}

func TestSweepSkipsSubjectsWithoutData(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddRule(Rule{
		Name:             "sustained-error-rate",
		Metric:           "error_rate",
		Condition:        Above,
		Threshold:        0.05,
		EvaluationWindow: 5 * time.Minute,
		Severity:         SeverityWarning,
	}); err != nil {
		t.Fatalf("AddRule() error: %v", err)
	}

	store := &FakeAggregator{Errs: map[string]error{"user-1/error_rate": storage.ErrNoData}}
	dispatcher := &FakeDispatcher{}
	ev := NewEvaluator(reg, store, dispatcher)
	ev.OnMetricUpdate(event.MetricEvent{SubjectID: "user-1", MetricType: "error_rate", Value: 0.01})

	ev.Sweep(context.Background())

	if got := dispatcher.All(); len(got) != 0 {
		t.Fatalf("events = %d, want 0 when the window has no data", len(got))
	}
}

func TestAddRuleValidation(t *testing.T) {
	valid := Rule{
		Name:      "r1",
		Metric:    "latency",
		Condition: Above,
		Threshold: 100,
		Severity:  SeverityInfo,
	}

	tests := []struct {
		name   string
		mutate func(Rule) Rule
	}{
		{"empty name", func(r Rule) Rule { r.Name = ""; return r }},
		{"empty metric", func(r Rule) Rule { r.Metric = ""; return r }},
		{"nil condition", func(r Rule) Rule { r.Condition = nil; return r }},
		{"unknown severity", func(r Rule) Rule { r.Severity = "panic"; return r }},
		{"unknown channel", func(r Rule) Rule { r.Channels = []string{"pager"}; return r }},
		{"negative cooldown", func(r Rule) Rule { r.Cooldown = -time.Second; return r }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			if err := reg.AddRule(tt.mutate(valid)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	t.Run("valid rule", func(t *testing.T) {
		reg := NewRegistry()
		if err := reg.AddRule(valid); err != nil {
			t.Fatalf("AddRule() error: %v", err)
		}
		if err := reg.AddRule(valid); err == nil {
			t.Fatal("expected duplicate name rejection")
		}
	})
}

func TestConditions(t *testing.T) {
	tests := []struct {
		name      string
		cond      Condition
		value     float64
		threshold float64
		want      bool
	}{
		{"above true", Above, 0.06, 0.05, true},
		{"above at threshold", Above, 0.05, 0.05, false},
		{"below true", Below, 10, 20, true},
		{"at-or-above at threshold", AtOrAbove, 0.05, 0.05, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond(tt.value, tt.threshold); got != tt.want {
				t.Errorf("condition(%v, %v) = %v, want %v", tt.value, tt.threshold, got, tt.want)
			}
		})
	}
}
