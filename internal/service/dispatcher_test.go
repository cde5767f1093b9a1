package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ShiftGuard/internal/biz"
	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNotifier is a controllable AlertNotifier.
type fakeNotifier struct {
	mu      sync.Mutex
	enabled bool
	fail    bool
	sent    []model.Alert
}

func (f *fakeNotifier) Enabled() bool { return f.enabled }

func (f *fakeNotifier) SendAlert(ctx context.Context, alert model.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("webhook unreachable")
	}
	f.sent = append(f.sent, alert)
	return nil
}

func (f *fakeNotifier) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type dispatcherFixture struct {
	registry *biz.CircuitBreakerRegistry
	engine   *biz.AlertEngine
	notifier *fakeNotifier
	audit    *fakeAudit
	cleanup  func()
	teardown func()
}

func setupDispatcher(t *testing.T, webhookCfg biz.CircuitBreakerConfig) *dispatcherFixture {
	logger := log.DefaultLogger

	registry := biz.NewCircuitBreakerRegistry(biz.DefaultCircuitBreakerConfig(), logger)
	registry.Configure(webhookBreakerName, webhookCfg)
	engine := biz.NewAlertEngine(biz.AlertEngineConfig{}, logger)
	notifier := &fakeNotifier{enabled: true}
	audit := &fakeAudit{}

	// A zero-cooldown rule so every recorded validation error fires one
	// alert, letting tests drive repeated deliveries.
	engine.AddRule(&biz.AlertRule{
		ID:       "validation-errors",
		Name:     "Validation errors",
		Severity: model.SeverityMedium,
		Enabled:  true,
		Predicate: func(s model.MetricsSnapshot) bool {
			return s.ValidationErrors > 0
		},
		Message: func(s model.MetricsSnapshot) string { return "validation errors present" },
	})

	_, cleanup := NewAlertDispatcher(registry, engine, notifier, audit, logger)

	return &dispatcherFixture{
		registry: registry,
		engine:   engine,
		notifier: notifier,
		audit:    audit,
		cleanup:  cleanup,
		teardown: func() {
			cleanup()
			registry.DestroyAll()
			engine.Destroy()
		},
	}
}

func fireAlert(engine *biz.AlertEngine) {
	engine.RecordValidationError()
}

func TestAlertDispatcher_DeliversFiredAlerts(t *testing.T) {
	f := setupDispatcher(t, biz.DefaultCircuitBreakerConfig())
	defer f.teardown()

	fireAlert(f.engine)

	require.Equal(t, 1, f.notifier.sentCount())
	assert.Equal(t, "validation-errors", f.notifier.sent[0].RuleID)
	assert.Len(t, f.audit.alertsFired, 1)
}

func TestAlertDispatcher_DisabledNotifierStillAudits(t *testing.T) {
	f := setupDispatcher(t, biz.DefaultCircuitBreakerConfig())
	defer f.teardown()
	f.notifier.enabled = false

	fireAlert(f.engine)

	assert.Equal(t, 0, f.notifier.sentCount())
	assert.Len(t, f.audit.alertsFired, 1)
}

func TestAlertDispatcher_BreakerShortCircuitsDeadWebhook(t *testing.T) {
	f := setupDispatcher(t, biz.CircuitBreakerConfig{
		FailureThreshold: 2,
		Timeout:          time.Hour,
	})
	defer f.teardown()
	f.notifier.fail = true

	// Each alert is one failing delivery; the second trips the breaker.
	fireAlert(f.engine)
	fireAlert(f.engine)

	webhook := f.registry.Get(webhookBreakerName)
	require.NotNil(t, webhook)
	assert.Equal(t, model.StateOpen, webhook.State())

	// Further alerts degrade to the log fallback without calling out.
	fireAlert(f.engine)
	assert.Equal(t, int64(2), webhook.Status().Metrics.TotalRequests)
}

func TestAlertDispatcher_AuditsBreakerTransitions(t *testing.T) {
	f := setupDispatcher(t, biz.DefaultCircuitBreakerConfig())
	defer f.teardown()

	// Breakers created after the dispatcher also get audit wiring.
	b := f.registry.GetOrCreate("email-service")
	b.ForceOpen()

	require.Len(t, f.audit.stateChanges, 1)
	assert.Equal(t, "email-service", f.audit.stateChanges[0].Breaker)
	assert.Equal(t, model.StateClosed, f.audit.stateChanges[0].From)
	assert.Equal(t, model.StateOpen, f.audit.stateChanges[0].To)
}

func TestAlertDispatcher_CleanupDetaches(t *testing.T) {
	f := setupDispatcher(t, biz.DefaultCircuitBreakerConfig())
	defer f.teardown()

	f.cleanup()
	fireAlert(f.engine)

	assert.Equal(t, 0, f.notifier.sentCount())
	assert.Empty(t, f.audit.alertsFired)
}
