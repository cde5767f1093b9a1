package main

import (
	"context"
	"time"

	"ShiftGuard/internal/biz"
	"ShiftGuard/internal/conf"
	"ShiftGuard/internal/data"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// archiveRetention bounds how long archived snapshots and alerts are
// kept before the retention task purges them.
const archiveRetention = 30 * 24 * time.Hour

// Maintenance owns the periodic housekeeping of the resilience core: it
// registers the built-in cleanup tasks, starts the component schedulers,
// and drives the cleanup cycle on the configured tick.
type Maintenance struct {
	cron *cron.Cron
}

// newMaintenance wires the cleanup tasks and starts all periodic work.
// The returned cleanup stops the tick and the component schedulers.
func newMaintenance(
	c *conf.Resilience,
	scheduler *biz.CleanupScheduler,
	limiters *biz.RateLimiterRegistry,
	engine *biz.AlertEngine,
	monitor *biz.PoolMonitor,
	archive *data.ArchiveRepo,
	d *data.Data,
	logger log.Logger,
) (*Maintenance, func(), error) {
	helper := log.NewHelper(logger)

	tick := time.Minute
	taskInterval := 5 * time.Minute
	if c != nil && c.Cleanup != nil {
		if v := c.Cleanup.Tick.AsDuration(); v > 0 {
			tick = v
		}
		if v := c.Cleanup.TaskInterval.AsDuration(); v > 0 {
			taskInterval = v
		}
	}

	scheduler.AddTask(biz.NewMemoryCleanupTask(taskInterval))
	scheduler.AddTask(biz.NewProcessCleanupTask(taskInterval, func(ctx context.Context) (int64, error) {
		return int64(limiters.SweepAll()), nil
	}))
	scheduler.AddTask(biz.NewConnectionCleanupTask(taskInterval, archive.CloseIdleConnections))
	scheduler.AddTask(biz.NewCacheCleanupTask(taskInterval, func(ctx context.Context) (int64, error) {
		return int64(d.GetCache().PurgeLocal()), nil
	}))
	scheduler.AddTask(&biz.CleanupTask{
		ID:       "archive-retention",
		Type:     biz.CleanupTypeCache,
		Priority: 2,
		Interval: 24 * time.Hour,
		Enabled:  true,
		Execute: func(ctx context.Context) (int64, error) {
			return archive.PurgeOlderThan(ctx, time.Now().Add(-archiveRetention))
		},
	})

	// The alert engine and pool monitor run their own window-reset crons.
	engine.Start()
	monitor.Start()

	c2 := cron.New()
	_, err := c2.AddFunc("@every "+tick.String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), tick)
		defer cancel()

		ran := scheduler.RunCycle(ctx)
		helper.Debugw("cleanup cycle finished", "tasks_run", ran)
	})
	if err != nil {
		engine.Stop()
		monitor.Stop()
		return nil, nil, err
	}
	c2.Start()

	helper.Infow("msg", "maintenance started",
		"cleanup_tick", tick.String(),
		"task_interval", taskInterval.String(),
		"tasks", len(scheduler.Tasks()))

	m := &Maintenance{cron: c2}
	cleanup := func() {
		c2.Stop()
		engine.Stop()
		monitor.Stop()
	}
	return m, cleanup, nil
}
