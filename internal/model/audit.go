package model

// Audit event type constants
const (
	AuditEventCircuitStateChanged = "CIRCUIT_STATE_CHANGED"
	AuditEventCircuitForced       = "CIRCUIT_FORCED"
	AuditEventAlertFired          = "ALERT_FIRED"
	AuditEventAlertAcknowledged   = "ALERT_ACKNOWLEDGED"
	AuditEventPoolReset           = "POOL_RESET"
	AuditEventCleanupCycle        = "CLEANUP_CYCLE"
)
