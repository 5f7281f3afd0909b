package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pulsefeed/pulsefeed/internal/event"
	"github.com/pulsefeed/pulsefeed/internal/storage"
)

// Dispatcher receives triggered/resolved alert events.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev event.AlertEvent)
}

// Aggregator computes windowed aggregates for sweep-based rules.
type Aggregator interface {
	QueryAggregate(ctx context.Context, subjectID, metricType string, window time.Duration) (float64, error)
}

// state is the hysteresis state for one (rule, subject) pair. Mutated only by
// Evaluate; the zero lastTriggeredAt means the rule never fired.
type state struct {
	isActive        bool
	lastTriggeredAt time.Time
}

type stateKey struct {
	rule    string
	subject string
}

// Evaluator owns all alert states and decides trigger/resolve transitions.
// Live values arrive through the fan-out bus; windowed rules are recomputed
// by a fixed-interval sweep. Both paths go through the same transition
// function.
type Evaluator struct {
	rules      *Registry
	store      Aggregator
	dispatcher Dispatcher
	now        func() time.Time

	mu       sync.Mutex
	states   map[stateKey]*state
	subjects map[string]map[string]struct{} // metric -> subjects observed
}

// NewEvaluator creates an alert evaluator.
func NewEvaluator(rules *Registry, store Aggregator, dispatcher Dispatcher) *Evaluator {
	return &Evaluator{
		rules:      rules,
		store:      store,
		dispatcher: dispatcher,
		now:        time.Now,
		states:     make(map[stateKey]*state),
		subjects:   make(map[string]map[string]struct{}),
	}
}

// OnMetricUpdate implements bus.Sink: each persisted event re-checks the live
// rules for its metric. Windowed rules are deferred to the sweep, which has
// the aggregate the rule is defined over.
func (e *Evaluator) OnMetricUpdate(ev event.MetricEvent) {
	e.rememberSubject(ev.MetricType, ev.SubjectID)

	for _, rule := range e.rules.RulesForMetric(ev.MetricType) {
		if rule.EvaluationWindow > 0 {
			continue
		}
		e.Evaluate(rule, ev.SubjectID, ev.Value, e.now())
	}
}

// Evaluate applies the hysteresis transition for one rule and subject.
// Exactly four outcomes exist: trigger, resolve, or no change while the
// condition persists or the cooldown holds.
func (e *Evaluator) Evaluate(rule Rule, subjectID string, value float64, now time.Time) {
	shouldTrigger := rule.Condition(value, rule.Threshold)

	e.mu.Lock()
	key := stateKey{rule: rule.Name, subject: subjectID}
	st, ok := e.states[key]
	if !ok {
		st = &state{}
		e.states[key] = st
	}

	cooledDown := st.lastTriggeredAt.IsZero() || now.Sub(st.lastTriggeredAt) > rule.Cooldown

	var kind event.AlertKind
	switch {
	case shouldTrigger && !st.isActive && cooledDown:
		st.isActive = true
		st.lastTriggeredAt = now
		kind = event.AlertTriggered
	case !shouldTrigger && st.isActive:
		st.isActive = false
		kind = event.AlertResolved
	default:
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	slog.Info("Alert state transition",
		"rule", rule.Name,
		"subject_id", subjectID,
		"kind", kind,
		"value", value,
		"threshold", rule.Threshold,
	)

	e.dispatcher.Dispatch(context.Background(), event.AlertEvent{
		Kind:       kind,
		RuleName:   rule.Name,
		Severity:   string(rule.Severity),
		SubjectID:  subjectID,
		MetricType: rule.Metric,
		Value:      value,
		Threshold:  rule.Threshold,
		Timestamp:  now,
		Channels:   rule.Channels,
	})
}

// RunSweep recomputes windowed aggregates at a fixed interval and feeds them
// through the same transition function as live values.
func (e *Evaluator) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep runs one evaluation round over every windowed rule and every subject
// observed for its metric.
func (e *Evaluator) Sweep(ctx context.Context) {
	for _, rule := range e.rules.WindowRules() {
		for _, subjectID := range e.subjectsFor(rule.Metric) {
			value, err := e.store.QueryAggregate(ctx, subjectID, rule.Metric, rule.EvaluationWindow)
			if errors.Is(err, storage.ErrNoData) {
				continue
			}
			if err != nil {
				slog.Error("Failed to compute aggregate for rule",
					"rule", rule.Name,
					"subject_id", subjectID,
					"error", err,
				)
				continue
			}
			e.Evaluate(rule, subjectID, value, e.now())
		}
	}
}

func (e *Evaluator) rememberSubject(metric, subjectID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.subjects[metric] == nil {
		e.subjects[metric] = make(map[string]struct{})
	}
	e.subjects[metric][subjectID] = struct{}{}
}

func (e *Evaluator) subjectsFor(metric string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.subjects[metric]))
	for s := range e.subjects[metric] {
		out = append(out, s)
	}
	return out
}
