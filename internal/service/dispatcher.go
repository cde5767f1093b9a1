package service

import (
	"context"

	"ShiftGuard/internal/biz"
	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// webhookBreakerName is the breaker guarding outbound alert delivery.
const webhookBreakerName = "alert-webhook"

// AlertDispatcher routes fired alerts to the external notifier, with the
// delivery call wrapped by a circuit breaker: a dead webhook endpoint must
// not stall alert evaluation or pile up timeouts. It also attaches audit
// logging to every breaker the registry creates.
type AlertDispatcher struct {
	breaker  *biz.CircuitBreaker
	notifier AlertNotifier
	audit    AuditSink
	logger   *log.Helper
}

// NewAlertDispatcher wires the dispatcher into the engine and registry
// signals. The returned cleanup detaches everything it subscribed.
func NewAlertDispatcher(
	registry *biz.CircuitBreakerRegistry,
	engine *biz.AlertEngine,
	notifier AlertNotifier,
	audit AuditSink,
	logger log.Logger,
) (*AlertDispatcher, func()) {
	d := &AlertDispatcher{
		notifier: notifier,
		audit:    audit,
		logger:   log.NewHelper(logger),
	}

	// Audit every transition of every breaker, including ones created
	// after startup.
	unsubCreated := registry.OnBreakerCreated.Subscribe(func(b *biz.CircuitBreaker) {
		b.OnStateChange.Subscribe(audit.LogStateChange)
	})

	d.breaker = registry.GetOrCreate(webhookBreakerName)

	unsubAlert := engine.OnAlert.Subscribe(d.dispatch)
	unsubCritical := engine.OnCriticalAlert.Subscribe(func(a model.Alert) {
		d.logger.Errorw("critical alert",
			"alert_id", a.ID,
			"rule_id", a.RuleID,
			"message", a.Message)
	})

	cleanup := func() {
		unsubAlert()
		unsubCritical()
		unsubCreated()
	}
	return d, cleanup
}

// dispatch audits the alert and delivers it through the breaker. Failed
// delivery degrades to a log line; the alert itself is never lost, it
// stays in the engine history and the archive.
func (d *AlertDispatcher) dispatch(alert model.Alert) {
	d.audit.LogAlertFired(alert)

	if !d.notifier.Enabled() {
		return
	}

	ctx := context.Background()
	err := d.breaker.Execute(ctx,
		func(ctx context.Context) error {
			return d.notifier.SendAlert(ctx, alert)
		},
		func(ctx context.Context) error {
			d.logger.Warnw("alert delivery degraded to log",
				"alert_id", alert.ID,
				"severity", string(alert.Severity),
				"message", alert.Message)
			return nil
		},
	)
	if err != nil {
		d.logger.Errorw("alert delivery failed",
			"alert_id", alert.ID,
			"error", err)
	}
}
