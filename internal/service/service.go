// Package service exposes the operational surface of the resilience
// core: admin operations for the HTTP layer and the alert dispatch
// pipeline.
package service

import (
	"context"
	"time"

	"ShiftGuard/internal/model"

	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(
	NewOpsService,
	NewAlertDispatcher,
)

// AlertNotifier delivers alerts to an external channel. Implemented by
// the webhook notifier in the data layer.
type AlertNotifier interface {
	Enabled() bool
	SendAlert(ctx context.Context, alert model.Alert) error
}

// AuditSink records operational events for later review. Implemented by
// the audit logger in the data layer.
type AuditSink interface {
	LogStateChange(ev model.StateChangeEvent)
	LogCircuitForced(breaker, action, actor string)
	LogAlertFired(alert model.Alert)
	LogAlertAcknowledged(alertID, by string)
	LogPoolReset(actor string)
	LogCleanupCycle(tasksRun int, duration time.Duration)
}
