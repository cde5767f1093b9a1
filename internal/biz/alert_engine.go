package biz

import (
	"fmt"
	"sync"
	"time"

	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// AlertRule evaluates a predicate against the rolling metrics snapshot.
// Cooldown strictly prevents the same rule from firing twice within
// Cooldown of its last trigger, even if the predicate stays true on every
// intervening metric update.
type AlertRule struct {
	ID        string
	Name      string
	Predicate func(model.MetricsSnapshot) bool
	Severity  model.Severity
	Message   func(model.MetricsSnapshot) string
	Cooldown  time.Duration
	Enabled   bool

	lastTriggered time.Time
}

// AlertEngineConfig configures the rolling window and history bound.
type AlertEngineConfig struct {
	MetricsWindow time.Duration
	MaxHistory    int
}

// DefaultAlertEngineConfig returns the engine defaults.
func DefaultAlertEngineConfig() AlertEngineConfig {
	return AlertEngineConfig{
		MetricsWindow: time.Minute,
		MaxHistory:    100,
	}
}

// AlertEngine maintains a rolling metrics snapshot and evaluates alert
// rules against it after every counter mutation. Evaluation is synchronous:
// a single record call observes and mutates a fully consistent snapshot.
type AlertEngine struct {
	// OnAlert fires for every created alert.
	OnAlert *Signal[model.Alert]
	// OnCriticalAlert additionally fires for critical-severity alerts,
	// for priority routing.
	OnCriticalAlert *Signal[model.Alert]
	// OnMetricsReset carries the final counter values of an expiring
	// window for external archival.
	OnMetricsReset *Signal[model.MetricsSnapshot]
	// OnAlertsCleared carries the number of purged alerts.
	OnAlertsCleared *Signal[int]

	mu        sync.Mutex
	cfg       AlertEngineConfig
	snapshot  model.MetricsSnapshot
	rules     []*AlertRule
	history   []model.Alert
	started   bool
	destroyed bool
	window    *cron.Cron

	now    func() time.Time
	logger *log.Helper
}

// NewAlertEngine creates an engine with the default rules installed.
func NewAlertEngine(cfg AlertEngineConfig, logger log.Logger) *AlertEngine {
	if cfg.MetricsWindow <= 0 {
		cfg.MetricsWindow = DefaultAlertEngineConfig().MetricsWindow
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultAlertEngineConfig().MaxHistory
	}

	e := &AlertEngine{
		OnAlert:         NewSignal[model.Alert](),
		OnCriticalAlert: NewSignal[model.Alert](),
		OnMetricsReset:  NewSignal[model.MetricsSnapshot](),
		OnAlertsCleared: NewSignal[int](),
		cfg:             cfg,
		now:             time.Now,
		logger:          log.NewHelper(logger),
	}
	e.snapshot.WindowStart = e.now()
	for _, r := range defaultAlertRules() {
		e.rules = append(e.rules, r)
	}
	return e
}

// defaultAlertRules returns the built-in rules. They can be overridden by
// re-adding a rule with the same ID.
func defaultAlertRules() []*AlertRule {
	return []*AlertRule{
		{
			ID:       "high-failure-rate",
			Name:     "High failure rate",
			Severity: model.SeverityHigh,
			Cooldown: 5 * time.Minute,
			Enabled:  true,
			Predicate: func(s model.MetricsSnapshot) bool {
				return s.Requests > 0 && s.FailureRate() > 0.20
			},
			Message: func(s model.MetricsSnapshot) string {
				return fmt.Sprintf("failure rate %.1f%% exceeds 20%% (%d of %d requests failed)",
					s.FailureRate()*100, s.Failures, s.Requests)
			},
		},
		{
			ID:       "security-violations",
			Name:     "Security violations",
			Severity: model.SeverityCritical,
			Cooldown: time.Minute,
			Enabled:  true,
			Predicate: func(s model.MetricsSnapshot) bool {
				return s.SecurityViolations > 5
			},
			Message: func(s model.MetricsSnapshot) string {
				return fmt.Sprintf("%d security violations in the current window (threshold 5)",
					s.SecurityViolations)
			},
		},
		{
			ID:       "rate-limit-hits",
			Name:     "Rate limit pressure",
			Severity: model.SeverityMedium,
			Cooldown: 2 * time.Minute,
			Enabled:  true,
			Predicate: func(s model.MetricsSnapshot) bool {
				return s.RateLimitHits > 10
			},
			Message: func(s model.MetricsSnapshot) string {
				return fmt.Sprintf("%d rate limit hits in the current window (threshold 10)",
					s.RateLimitHits)
			},
		},
	}
}

// AddRule installs a rule. Adding a rule with an existing ID replaces it
// (last write wins), which is how default rules are overridden.
func (e *AlertEngine) AddRule(rule *AlertRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.ID == rule.ID {
			e.rules[i] = rule
			return
		}
	}
	e.rules = append(e.rules, rule)
}

// RemoveRule deletes the rule with the given ID, reporting whether it
// existed.
func (e *AlertEngine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// RecordRequest counts one request with its response time and outcome.
func (e *AlertEngine) RecordRequest(responseTime time.Duration, success bool) {
	e.record(func(s *model.MetricsSnapshot) {
		s.Requests++
		if success {
			s.Successes++
		} else {
			s.Failures++
		}
		s.AverageResponseTime += (responseTime - s.AverageResponseTime) / time.Duration(s.Requests)
	})
}

// RecordValidationError counts one validation failure.
func (e *AlertEngine) RecordValidationError() {
	e.record(func(s *model.MetricsSnapshot) { s.ValidationErrors++ })
}

// RecordRateLimitHit counts one rejected request.
func (e *AlertEngine) RecordRateLimitHit() {
	e.record(func(s *model.MetricsSnapshot) { s.RateLimitHits++ })
}

// RecordSecurityViolation counts one security violation.
func (e *AlertEngine) RecordSecurityViolation() {
	e.record(func(s *model.MetricsSnapshot) { s.SecurityViolations++ })
}

// record applies the mutation and then evaluates every enabled rule
// against the updated snapshot. Fired alerts are published after the lock
// is released, still synchronously within the record call.
func (e *AlertEngine) record(mutate func(*model.MetricsSnapshot)) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	mutate(&e.snapshot)
	fired := e.evaluateRulesLocked()
	e.mu.Unlock()

	e.publishAlerts(fired)
}

// evaluateRulesLocked runs every enabled rule's predicate, isolating rule
// panics so one bad predicate cannot block evaluation of the others.
func (e *AlertEngine) evaluateRulesLocked() []model.Alert {
	now := e.now()
	var fired []model.Alert

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		triggered := func() (result bool) {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Errorw("alert rule predicate panicked",
						"rule_id", rule.ID,
						"panic", r)
					result = false
				}
			}()
			return rule.Predicate(e.snapshot)
		}()
		if !triggered {
			continue
		}
		if !rule.lastTriggered.IsZero() && now.Sub(rule.lastTriggered) < rule.Cooldown {
			continue
		}

		rule.lastTriggered = now
		alert := model.Alert{
			ID:        uuid.NewString(),
			RuleID:    rule.ID,
			Severity:  rule.Severity,
			Message:   rule.Message(e.snapshot),
			Timestamp: now,
		}
		e.history = append(e.history, alert)
		if len(e.history) > e.cfg.MaxHistory {
			e.history = e.history[len(e.history)-e.cfg.MaxHistory:]
		}
		fired = append(fired, alert)

		e.logger.Warnw("alert fired",
			"rule_id", rule.ID,
			"severity", string(rule.Severity),
			"message", alert.Message)
	}
	return fired
}

func (e *AlertEngine) publishAlerts(alerts []model.Alert) {
	for _, a := range alerts {
		e.OnAlert.Publish(a)
		if a.Severity == model.SeverityCritical {
			e.OnCriticalAlert.Publish(a)
		}
	}
}

// Snapshot returns a copy of the current rolling metrics.
func (e *AlertEngine) Snapshot() model.MetricsSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// ResetWindow zeroes the snapshot and emits the final values for
// archival. It is invoked by the internal window timer and may be called
// directly.
func (e *AlertEngine) ResetWindow() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	final := e.snapshot
	e.snapshot = model.MetricsSnapshot{WindowStart: e.now()}
	e.mu.Unlock()

	e.OnMetricsReset.Publish(final)
}

// AcknowledgeAlert sets the acknowledgement fields on the alert with the
// given id. It returns false, mutating nothing, if the id is unknown;
// acknowledging an already acknowledged alert is idempotent.
func (e *AlertEngine) AcknowledgeAlert(id, by string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.history {
		if e.history[i].ID == id {
			now := e.now()
			e.history[i].Acknowledged = true
			e.history[i].AcknowledgedBy = by
			e.history[i].AcknowledgedAt = &now
			return true
		}
	}
	return false
}

// GetAlerts returns the alert history, optionally filtering out
// acknowledged alerts.
func (e *AlertEngine) GetAlerts(includeAcknowledged bool) []model.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	alerts := make([]model.Alert, 0, len(e.history))
	for _, a := range e.history {
		if !includeAcknowledged && a.Acknowledged {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts
}

// ClearAlerts purges the history and emits the purge count.
func (e *AlertEngine) ClearAlerts() {
	e.mu.Lock()
	cleared := len(e.history)
	e.history = nil
	e.mu.Unlock()

	e.OnAlertsCleared.Publish(cleared)
}

// Start begins the periodic window reset. It is idempotent: calling Start
// twice, or on a destroyed engine, is a no-op.
func (e *AlertEngine) Start() {
	e.mu.Lock()
	if e.started || e.destroyed {
		e.mu.Unlock()
		return
	}
	e.window = cron.New()
	_, err := e.window.AddFunc(fmt.Sprintf("@every %s", e.cfg.MetricsWindow), e.ResetWindow)
	if err != nil {
		e.logger.Errorw("failed to schedule metrics window reset", "error", err)
		e.window = nil
		e.mu.Unlock()
		return
	}
	e.started = true
	window := e.window
	e.mu.Unlock()

	window.Start()
	e.logger.Infow("alert engine started", "metrics_window", e.cfg.MetricsWindow)
}

// Stop halts the window timer. Stop without a prior Start is a no-op.
func (e *AlertEngine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	window := e.window
	e.window = nil
	e.started = false
	e.mu.Unlock()

	if window != nil {
		window.Stop()
	}
	e.logger.Info("alert engine stopped")
}

// Destroy halts timers and detaches all listeners. The engine stays inert
// afterwards even if Start or Stop is called again.
func (e *AlertEngine) Destroy() {
	e.Stop()

	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()

	e.OnAlert.DetachAll()
	e.OnCriticalAlert.DetachAll()
	e.OnMetricsReset.DetachAll()
	e.OnAlertsCleared.DetachAll()
}
