package data

import (
	"context"
	"time"

	"ShiftGuard/internal/biz"
	"ShiftGuard/internal/model"
	pkgerrors "ShiftGuard/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// SnapshotRecord is the GORM model for archived metrics windows.
type SnapshotRecord struct {
	ID                 int64     `gorm:"primaryKey;column:id"`
	Requests           int64     `gorm:"column:requests;not null"`
	Successes          int64     `gorm:"column:successes;not null"`
	Failures           int64     `gorm:"column:failures;not null"`
	ValidationErrors   int64     `gorm:"column:validation_errors;not null"`
	RateLimitHits      int64     `gorm:"column:rate_limit_hits;not null"`
	SecurityViolations int64     `gorm:"column:security_violations;not null"`
	AvgResponseTimeMs  int64     `gorm:"column:avg_response_time_ms;not null"`
	WindowStart        time.Time `gorm:"column:window_start;index"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (SnapshotRecord) TableName() string {
	return "metrics_snapshots"
}

// AlertRecord is the GORM model for archived alerts.
type AlertRecord struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	AlertID   string    `gorm:"column:alert_id;type:varchar(64);uniqueIndex"`
	RuleID    string    `gorm:"column:rule_id;type:varchar(64);index"`
	Severity  string    `gorm:"column:severity;type:varchar(16)"`
	Message   string    `gorm:"column:message;type:text"`
	FiredAt   time.Time `gorm:"column:fired_at;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (AlertRecord) TableName() string {
	return "alert_records"
}

// ArchiveRepo persists expired metrics windows and fired alerts. It is a
// listener on the alert engine's signals, so archival happens without the
// engine knowing about storage. Every database round trip is instrumented
// through the pool monitor. With a nil database all writes are no-ops.
type ArchiveRepo struct {
	db      *gorm.DB
	monitor *biz.PoolMonitor
	logger  *log.Helper

	now func() time.Time
}

// NewArchiveRepo creates the repo, migrates its tables, and subscribes it
// to the engine's metrics-reset and alert signals. The returned cleanup
// detaches the subscriptions.
func NewArchiveRepo(db *gorm.DB, monitor *biz.PoolMonitor, engine *biz.AlertEngine, logger log.Logger) (*ArchiveRepo, func(), error) {
	r := &ArchiveRepo{
		db:      db,
		monitor: monitor,
		logger:  log.NewHelper(logger),
		now:     time.Now,
	}

	if db != nil {
		if err := db.AutoMigrate(&SnapshotRecord{}, &AlertRecord{}); err != nil {
			return nil, nil, err
		}
	}

	unsubSnapshot := engine.OnMetricsReset.Subscribe(func(s model.MetricsSnapshot) {
		if err := r.SaveSnapshot(context.Background(), s); err != nil {
			r.logger.Errorw("failed to archive metrics snapshot", "error", err)
		}
	})
	unsubAlert := engine.OnAlert.Subscribe(func(a model.Alert) {
		if err := r.SaveAlert(context.Background(), a); err != nil {
			r.logger.Errorw("failed to archive alert", "alert_id", a.ID, "error", err)
		}
	})

	cleanup := func() {
		unsubSnapshot()
		unsubAlert()
	}
	return r, cleanup, nil
}

// instrumented runs fn on a dedicated pooled connection, reporting the
// checkout wait, the operation duration, and any failure to the monitor.
func (r *ArchiveRepo) instrumented(ctx context.Context, connID string, fn func(tx *gorm.DB) error) error {
	if r.db == nil {
		return nil
	}

	acqStart := r.now()
	err := r.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		r.monitor.RecordAcquisition(connID, r.now().Sub(acqStart))
		opStart := r.now()
		opErr := fn(tx)
		r.monitor.RecordRelease(connID, r.now().Sub(opStart))
		return opErr
	})
	if err != nil {
		r.monitor.RecordFailure(connID, err)
		dbErr := pkgerrors.ClassifyDBError(err)
		r.logger.Warnw("archive database operation failed",
			"operation", connID,
			"error_class", dbErr.Type.String(),
			"retryable", pkgerrors.IsRetryable(err),
			"error", err)
	}
	return err
}

// SaveSnapshot archives the final counters of an expired metrics window.
func (r *ArchiveRepo) SaveSnapshot(ctx context.Context, s model.MetricsSnapshot) error {
	return r.instrumented(ctx, "archive-snapshot", func(tx *gorm.DB) error {
		rec := &SnapshotRecord{
			Requests:           s.Requests,
			Successes:          s.Successes,
			Failures:           s.Failures,
			ValidationErrors:   s.ValidationErrors,
			RateLimitHits:      s.RateLimitHits,
			SecurityViolations: s.SecurityViolations,
			AvgResponseTimeMs:  s.AverageResponseTime.Milliseconds(),
			WindowStart:        s.WindowStart,
		}
		return tx.Create(rec).Error
	})
}

// SaveAlert archives a fired alert. Re-archiving the same alert ID is a
// no-op, so signal redelivery never fails the pipeline.
func (r *ArchiveRepo) SaveAlert(ctx context.Context, a model.Alert) error {
	return r.instrumented(ctx, "archive-alert", func(tx *gorm.DB) error {
		rec := &AlertRecord{
			AlertID:  a.ID,
			RuleID:   a.RuleID,
			Severity: string(a.Severity),
			Message:  a.Message,
			FiredAt:  a.Timestamp,
		}
		err := tx.Create(rec).Error
		if pkgerrors.IsDuplicateKeyError(err) {
			return nil
		}
		return err
	})
}

// ListSnapshots returns the most recent archived windows, newest first.
func (r *ArchiveRepo) ListSnapshots(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	var out []SnapshotRecord
	err := r.instrumented(ctx, "list-snapshots", func(tx *gorm.DB) error {
		return tx.Order("window_start DESC").Limit(limit).Find(&out).Error
	})
	return out, err
}

// ListAlerts returns the most recent archived alerts, newest first.
func (r *ArchiveRepo) ListAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	var out []AlertRecord
	err := r.instrumented(ctx, "list-alerts", func(tx *gorm.DB) error {
		return tx.Order("fired_at DESC").Limit(limit).Find(&out).Error
	})
	return out, err
}

// PurgeOlderThan deletes archived rows past the retention cutoff and
// returns the number removed. Wired into the cleanup scheduler.
func (r *ArchiveRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	err := r.instrumented(ctx, "archive-purge", func(tx *gorm.DB) error {
		res := tx.Where("window_start < ?", cutoff).Delete(&SnapshotRecord{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected

		res = tx.Where("fired_at < ?", cutoff).Delete(&AlertRecord{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	return total, err
}

// CloseIdleConnections forces the sql pool to drop its idle connections
// and returns how many were open. Bouncing the idle limit through zero
// is the supported way to shed idle connections on demand. Wired into
// the cleanup scheduler.
func (r *ArchiveRepo) CloseIdleConnections(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, nil
	}

	sqlDB, err := r.db.DB()
	if err != nil {
		return 0, err
	}

	idle := sqlDB.Stats().Idle
	sqlDB.SetMaxIdleConns(0)
	sqlDB.SetMaxIdleConns(10)
	return int64(idle), nil
}
