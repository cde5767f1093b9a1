package service

import (
	"context"

	"ShiftGuard/internal/biz"
	"ShiftGuard/internal/data"
	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// OpsService is the admin surface over the resilience components. Every
// mutating operation is audited with the acting operator.
type OpsService struct {
	breakers  *biz.CircuitBreakerRegistry
	limiters  *biz.RateLimiterRegistry
	engine    *biz.AlertEngine
	monitor   *biz.PoolMonitor
	scheduler *biz.CleanupScheduler
	archive   *data.ArchiveRepo
	cache     data.CacheClient
	audit     AuditSink
	logger    *log.Helper
}

// NewOpsService creates the admin service.
func NewOpsService(
	breakers *biz.CircuitBreakerRegistry,
	limiters *biz.RateLimiterRegistry,
	engine *biz.AlertEngine,
	monitor *biz.PoolMonitor,
	scheduler *biz.CleanupScheduler,
	archive *data.ArchiveRepo,
	cache data.CacheClient,
	audit AuditSink,
	logger log.Logger,
) *OpsService {
	return &OpsService{
		breakers:  breakers,
		limiters:  limiters,
		engine:    engine,
		monitor:   monitor,
		scheduler: scheduler,
		archive:   archive,
		cache:     cache,
		audit:     audit,
		logger:    log.NewHelper(logger),
	}
}

// CircuitStatus lists every registered breaker. Responses are briefly
// cached; dashboards poll this endpoint aggressively.
func (s *OpsService) CircuitStatus(ctx context.Context) []model.CircuitStatus {
	key := data.BuildCacheKey(data.CacheKeyStatus, "breakers")

	var cached []model.CircuitStatus
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached
	}

	statuses := s.breakers.Status()
	if err := s.cache.Set(ctx, key, statuses, data.TTLStatus); err != nil {
		s.logger.Debugw("failed to cache breaker status", "error", err)
	}
	return statuses
}

// ResetCircuit resets one breaker to CLOSED with zeroed counters.
func (s *OpsService) ResetCircuit(ctx context.Context, name, actor string) error {
	b := s.breakers.Get(name)
	if b == nil {
		return errors.NotFound("BREAKER_NOT_FOUND", "no circuit breaker named "+name)
	}
	b.Reset()
	s.audit.LogCircuitForced(name, "reset", actor)
	s.invalidateStatusCache(ctx)
	s.logger.Infow("circuit breaker reset", "breaker", name, "actor", actor)
	return nil
}

// ForceCircuit manually trips or closes one breaker. Action is "open" or
// "close".
func (s *OpsService) ForceCircuit(ctx context.Context, name, action, actor string) error {
	b := s.breakers.Get(name)
	if b == nil {
		return errors.NotFound("BREAKER_NOT_FOUND", "no circuit breaker named "+name)
	}

	switch action {
	case "open":
		b.ForceOpen()
	case "close":
		b.ForceClose()
	default:
		return errors.BadRequest("INVALID_ACTION", "action must be open or close")
	}

	s.audit.LogCircuitForced(name, "force_"+action, actor)
	s.invalidateStatusCache(ctx)
	s.logger.Warnw("circuit breaker forced", "breaker", name, "action", action, "actor", actor)
	return nil
}

// ResetAllCircuits resets every breaker.
func (s *OpsService) ResetAllCircuits(ctx context.Context, actor string) {
	s.breakers.ResetAll()
	s.audit.LogCircuitForced("*", "reset_all", actor)
	s.invalidateStatusCache(ctx)
}

func (s *OpsService) invalidateStatusCache(ctx context.Context) {
	key := data.BuildCacheKey(data.CacheKeyStatus, "breakers")
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Debugw("failed to invalidate breaker status cache", "error", err)
	}
}

// Alerts lists the in-memory alert history.
func (s *OpsService) Alerts(ctx context.Context, includeAcknowledged bool) []model.Alert {
	return s.engine.GetAlerts(includeAcknowledged)
}

// AcknowledgeAlert marks one alert as acknowledged by the given operator.
func (s *OpsService) AcknowledgeAlert(ctx context.Context, id, by string) error {
	if !s.engine.AcknowledgeAlert(id, by) {
		return errors.NotFound("ALERT_NOT_FOUND", "no alert with id "+id)
	}
	s.audit.LogAlertAcknowledged(id, by)
	return nil
}

// ClearAlerts purges the in-memory alert history. Archived alerts are
// unaffected.
func (s *OpsService) ClearAlerts(ctx context.Context) {
	s.engine.ClearAlerts()
}

// MetricsSnapshot returns the current rolling window counters.
func (s *OpsService) MetricsSnapshot(ctx context.Context) model.MetricsSnapshot {
	return s.engine.Snapshot()
}

// PoolStatus returns the pool monitor aggregates with any warnings.
func (s *OpsService) PoolStatus(ctx context.Context) model.PoolStatus {
	return s.monitor.Status()
}

// ResetPool zeroes the pool monitor.
func (s *OpsService) ResetPool(ctx context.Context, actor string) {
	s.monitor.Reset()
	s.audit.LogPoolReset(actor)
}

// RunCleanup triggers one cleanup cycle immediately, returning the number
// of tasks that ran.
func (s *OpsService) RunCleanup(ctx context.Context) int {
	ran := s.scheduler.RunCycle(ctx)
	s.audit.LogCleanupCycle(ran, s.scheduler.Metrics().CleanupDuration)
	return ran
}

// CleanupMetrics returns the cleanup aggregates.
func (s *OpsService) CleanupMetrics(ctx context.Context) biz.CleanupMetrics {
	return s.scheduler.Metrics()
}

// ArchivedSnapshots lists recently archived metrics windows.
func (s *OpsService) ArchivedSnapshots(ctx context.Context, limit int) ([]data.SnapshotRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.archive.ListSnapshots(ctx, limit)
}

// ArchivedAlerts lists recently archived alerts.
func (s *OpsService) ArchivedAlerts(ctx context.Context, limit int) ([]data.AlertRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.archive.ListAlerts(ctx, limit)
}
