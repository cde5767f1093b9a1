package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"ShiftGuard/internal/biz"
	"ShiftGuard/internal/conf"
	"ShiftGuard/internal/data"
	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

// fakeAudit records audited events for assertions.
type fakeAudit struct {
	mu            sync.Mutex
	stateChanges  []model.StateChangeEvent
	forced        []string
	alertsFired   []string
	acked         []string
	poolResets    int
	cleanupCycles int
}

func (f *fakeAudit) LogStateChange(ev model.StateChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateChanges = append(f.stateChanges, ev)
}

func (f *fakeAudit) LogCircuitForced(breaker, action, actor string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forced = append(f.forced, breaker+":"+action+":"+actor)
}

func (f *fakeAudit) LogAlertFired(alert model.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alertsFired = append(f.alertsFired, alert.ID)
}

func (f *fakeAudit) LogAlertAcknowledged(alertID, by string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, alertID+":"+by)
}

func (f *fakeAudit) LogPoolReset(actor string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poolResets++
}

func (f *fakeAudit) LogCleanupCycle(tasksRun int, duration time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCycles++
}

type opsFixture struct {
	svc      *OpsService
	breakers *biz.CircuitBreakerRegistry
	engine   *biz.AlertEngine
	monitor  *biz.PoolMonitor
	audit    *fakeAudit
	teardown func()
}

func setupOps(t *testing.T) *opsFixture {
	logger := log.DefaultLogger

	breakers := biz.NewCircuitBreakerRegistry(biz.DefaultCircuitBreakerConfig(), logger)
	limiters := biz.NewRateLimiterRegistry(biz.DefaultRateLimitConfig(), logger)
	engine := biz.NewAlertEngine(biz.AlertEngineConfig{}, logger)
	monitor := biz.NewPoolMonitor(biz.PoolMonitorConfig{}, logger)
	scheduler := biz.NewCleanupScheduler(logger)

	archive, archiveCleanup, err := data.NewArchiveRepo(nil, monitor, engine, logger)
	require.NoError(t, err)

	cache := data.NewCacheClient(&conf.Data{
		Cache: &conf.Data_Cache{Size: 64, Ttl: durationpb.New(time.Minute)},
	}, nil)

	audit := &fakeAudit{}
	svc := NewOpsService(breakers, limiters, engine, monitor, scheduler, archive, cache, audit, logger)

	return &opsFixture{
		svc:      svc,
		breakers: breakers,
		engine:   engine,
		monitor:  monitor,
		audit:    audit,
		teardown: func() {
			archiveCleanup()
			breakers.DestroyAll()
			engine.Destroy()
			monitor.Destroy()
			scheduler.Destroy()
		},
	}
}

func TestOpsService_CircuitStatus(t *testing.T) {
	f := setupOps(t)
	defer f.teardown()

	f.breakers.GetOrCreate("email-service")
	f.breakers.GetOrCreate("archive-db")

	statuses := f.svc.CircuitStatus(context.Background())
	require.Len(t, statuses, 2)
	assert.Equal(t, "archive-db", statuses[0].Name)
	assert.Equal(t, "email-service", statuses[1].Name)
}

func TestOpsService_ForceCircuitInvalidatesStatusCache(t *testing.T) {
	f := setupOps(t)
	defer f.teardown()

	ctx := context.Background()
	f.breakers.GetOrCreate("email-service")

	// Prime the cache with the CLOSED status.
	statuses := f.svc.CircuitStatus(ctx)
	require.Equal(t, model.StateClosed, statuses[0].State)

	require.NoError(t, f.svc.ForceCircuit(ctx, "email-service", "open", "ops"))

	statuses = f.svc.CircuitStatus(ctx)
	assert.Equal(t, model.StateOpen, statuses[0].State)
	assert.Contains(t, f.audit.forced, "email-service:force_open:ops")
}

func TestOpsService_ForceCircuitUnknownBreaker(t *testing.T) {
	f := setupOps(t)
	defer f.teardown()

	err := f.svc.ForceCircuit(context.Background(), "ghost", "open", "ops")
	assert.True(t, errors.IsNotFound(err))
}

func TestOpsService_ForceCircuitInvalidAction(t *testing.T) {
	f := setupOps(t)
	defer f.teardown()

	f.breakers.GetOrCreate("email-service")
	err := f.svc.ForceCircuit(context.Background(), "email-service", "explode", "ops")
	assert.True(t, errors.IsBadRequest(err))
}

func TestOpsService_ResetCircuit(t *testing.T) {
	f := setupOps(t)
	defer f.teardown()

	ctx := context.Background()
	b := f.breakers.GetOrCreate("email-service")
	b.ForceOpen()

	require.NoError(t, f.svc.ResetCircuit(ctx, "email-service", "ops"))
	assert.Equal(t, model.StateClosed, b.State())
	assert.Contains(t, f.audit.forced, "email-service:reset:ops")

	err := f.svc.ResetCircuit(ctx, "ghost", "ops")
	assert.True(t, errors.IsNotFound(err))
}

func TestOpsService_AcknowledgeAlert(t *testing.T) {
	f := setupOps(t)
	defer f.teardown()

	ctx := context.Background()

	// A failed request trips the default failure-rate rule.
	f.engine.RecordRequest(time.Millisecond, false)
	alerts := f.svc.Alerts(ctx, true)
	require.Len(t, alerts, 1)

	err := f.svc.AcknowledgeAlert(ctx, "no-such-id", "ops")
	assert.True(t, errors.IsNotFound(err))
	assert.Empty(t, f.audit.acked)

	require.NoError(t, f.svc.AcknowledgeAlert(ctx, alerts[0].ID, "ops"))
	assert.Contains(t, f.audit.acked, alerts[0].ID+":ops")
	assert.Empty(t, f.svc.Alerts(ctx, false))
}

func TestOpsService_PoolOperations(t *testing.T) {
	f := setupOps(t)
	defer f.teardown()

	ctx := context.Background()
	f.monitor.RecordAcquisition("conn-1", time.Millisecond)

	status := f.svc.PoolStatus(ctx)
	assert.Equal(t, int64(1), status.Acquired)

	f.svc.ResetPool(ctx, "ops")
	assert.Equal(t, int64(0), f.svc.PoolStatus(ctx).Acquired)
	assert.Equal(t, 1, f.audit.poolResets)
}

func TestOpsService_CleanupOperations(t *testing.T) {
	f := setupOps(t)
	defer f.teardown()

	ctx := context.Background()
	ran := f.svc.RunCleanup(ctx)
	assert.Equal(t, 0, ran)

	m := f.svc.CleanupMetrics(ctx)
	assert.Equal(t, int64(0), m.TasksExecuted)
	assert.False(t, m.LastCleanup.IsZero())
}

func TestOpsService_ArchivedListingsWithoutDatabase(t *testing.T) {
	f := setupOps(t)
	defer f.teardown()

	ctx := context.Background()

	snapshots, err := f.svc.ArchivedSnapshots(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, snapshots)

	alerts, err := f.svc.ArchivedAlerts(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}
