package data

import (
	"context"
	"encoding/json"
	"time"

	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// AuditLog is the GORM model for the resilience_audit_logs table.
type AuditLog struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	EventType string    `gorm:"column:event_type;type:varchar(50);not null;index"`
	Subject   string    `gorm:"column:subject;type:varchar(100);not null"`
	Details   string    `gorm:"column:details;type:json"`
	Actor     string    `gorm:"column:actor;type:varchar(100);default:'system';not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "resilience_audit_logs"
}

// AuditLogger records operational events asynchronously. Writes go
// through a buffered channel so audit logging never blocks the calling
// signal handler; a full buffer drops the event with a warning. With a
// nil database events are only logged.
type AuditLogger struct {
	db      *gorm.DB
	logChan chan *AuditLog
	logger  *log.Helper
}

// NewAuditLogger creates the audit logger and starts its writer. The
// returned cleanup stops the writer.
func NewAuditLogger(db *gorm.DB, logger log.Logger) (*AuditLogger, func()) {
	al := &AuditLogger{
		db:      db,
		logChan: make(chan *AuditLog, 1000), // Buffer size 1000 to prevent blocking
		logger:  log.NewHelper(logger),
	}

	done := make(chan struct{})
	go al.start(done)

	cleanup := func() {
		close(al.logChan)
		<-done
	}
	return al, cleanup
}

// start processes audit log events from the channel until it closes.
func (a *AuditLogger) start(done chan struct{}) {
	defer close(done)
	for event := range a.logChan {
		if a.db == nil {
			continue
		}
		if err := a.db.WithContext(context.Background()).Create(event).Error; err != nil {
			a.logger.Errorw("failed to write audit log",
				"event_type", event.EventType,
				"subject", event.Subject,
				"error", err)
		} else {
			a.logger.Debugw("audit log written",
				"event_type", event.EventType,
				"subject", event.Subject)
		}
	}
}

// enqueue queues one event without blocking.
func (a *AuditLogger) enqueue(eventType, subject, actor string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	event := &AuditLog{
		EventType: eventType,
		Subject:   subject,
		Details:   string(detailsJSON),
		Actor:     actor,
	}

	select {
	case a.logChan <- event:
		// Successfully queued
	default:
		a.logger.Warnw("audit log channel full, dropping event",
			"event_type", eventType,
			"subject", subject)
	}
}

// LogStateChange records a circuit breaker transition.
func (a *AuditLogger) LogStateChange(ev model.StateChangeEvent) {
	a.enqueue(model.AuditEventCircuitStateChanged, ev.Breaker, "system", map[string]interface{}{
		"from": ev.From.String(),
		"to":   ev.To.String(),
		"at":   ev.At.Format(time.RFC3339),
	})
}

// LogCircuitForced records a manual force-open, force-close, or reset.
func (a *AuditLogger) LogCircuitForced(breaker, action, actor string) {
	a.enqueue(model.AuditEventCircuitForced, breaker, actor, map[string]interface{}{
		"action": action,
	})
}

// LogAlertFired records a fired alert.
func (a *AuditLogger) LogAlertFired(alert model.Alert) {
	a.enqueue(model.AuditEventAlertFired, alert.RuleID, "system", map[string]interface{}{
		"alert_id": alert.ID,
		"severity": string(alert.Severity),
		"message":  alert.Message,
	})
}

// LogAlertAcknowledged records an acknowledgement.
func (a *AuditLogger) LogAlertAcknowledged(alertID, by string) {
	a.enqueue(model.AuditEventAlertAcknowledged, alertID, by, nil)
}

// LogPoolReset records a pool monitor reset.
func (a *AuditLogger) LogPoolReset(actor string) {
	a.enqueue(model.AuditEventPoolReset, "pool-monitor", actor, nil)
}

// LogCleanupCycle records one completed cleanup cycle.
func (a *AuditLogger) LogCleanupCycle(tasksRun int, duration time.Duration) {
	a.enqueue(model.AuditEventCleanupCycle, "cleanup-scheduler", "system", map[string]interface{}{
		"tasks_run":   tasksRun,
		"duration_ms": duration.Milliseconds(),
	})
}
