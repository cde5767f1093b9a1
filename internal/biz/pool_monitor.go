package biz

import (
	"sync"
	"time"

	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// PoolMonitorConfig sets the health thresholds and history bound.
type PoolMonitorConfig struct {
	MaxEvents            int
	FailureRateThreshold float64
	SlowAcquisition      time.Duration
	SlowOperation        time.Duration
	// ResetSchedule is a cron spec for the periodic self-reset that
	// bounds counter drift. Empty disables the timer.
	ResetSchedule string
}

// DefaultPoolMonitorConfig returns the monitor defaults.
func DefaultPoolMonitorConfig() PoolMonitorConfig {
	return PoolMonitorConfig{
		MaxEvents:            1000,
		FailureRateThreshold: 0.10,
		SlowAcquisition:      time.Second,
		SlowOperation:        2 * time.Second,
		ResetSchedule:        "@daily",
	}
}

// PoolMonitor observes acquire/release/fail hooks of an externally owned
// resource pool. The pool itself lives elsewhere; the monitor only records
// what it is told. Metrics are running aggregates and are never recomputed
// from the event history, which is a bounded FIFO kept for diagnostics.
type PoolMonitor struct {
	// OnEvent fires for every recorded pool event, including the
	// synthetic reset event.
	OnEvent *Signal[model.PoolEvent]

	mu       sync.Mutex
	cfg      PoolMonitorConfig
	acquired int64
	released int64
	failed   int64
	active   int64
	idle     int64
	avgAcq   time.Duration
	avgOp    time.Duration
	events   []model.PoolEvent
	started  bool
	timer    *cron.Cron

	now    func() time.Time
	logger *log.Helper
}

// NewPoolMonitor creates a monitor with zeroed aggregates.
func NewPoolMonitor(cfg PoolMonitorConfig, logger log.Logger) *PoolMonitor {
	d := DefaultPoolMonitorConfig()
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = d.MaxEvents
	}
	if cfg.FailureRateThreshold <= 0 {
		cfg.FailureRateThreshold = d.FailureRateThreshold
	}
	if cfg.SlowAcquisition <= 0 {
		cfg.SlowAcquisition = d.SlowAcquisition
	}
	if cfg.SlowOperation <= 0 {
		cfg.SlowOperation = d.SlowOperation
	}
	return &PoolMonitor{
		OnEvent: NewSignal[model.PoolEvent](),
		cfg:     cfg,
		now:     time.Now,
		logger:  log.NewHelper(logger),
	}
}

// RecordAcquisition records one successful connection checkout and its
// wait time.
func (m *PoolMonitor) RecordAcquisition(connectionID string, duration time.Duration) {
	m.mu.Lock()
	m.acquired++
	m.active++
	if m.idle > 0 {
		m.idle--
	}
	m.avgAcq += (duration - m.avgAcq) / time.Duration(m.acquired)
	ev := model.PoolEvent{
		Type:         model.PoolEventAcquire,
		ConnectionID: connectionID,
		Duration:     duration,
		Timestamp:    m.now(),
	}
	m.appendEventLocked(ev)
	m.mu.Unlock()

	m.OnEvent.Publish(ev)
}

// RecordRelease records one connection return and the duration of the
// work performed while it was held.
func (m *PoolMonitor) RecordRelease(connectionID string, duration time.Duration) {
	m.mu.Lock()
	m.released++
	if m.active > 0 {
		m.active--
	}
	m.idle++
	m.avgOp += (duration - m.avgOp) / time.Duration(m.released)
	ev := model.PoolEvent{
		Type:         model.PoolEventRelease,
		ConnectionID: connectionID,
		Duration:     duration,
		Timestamp:    m.now(),
	}
	m.appendEventLocked(ev)
	m.mu.Unlock()

	m.OnEvent.Publish(ev)
}

// RecordFailure records one failed acquisition or operation.
func (m *PoolMonitor) RecordFailure(connectionID string, err error) {
	m.mu.Lock()
	m.failed++
	ev := model.PoolEvent{
		Type:         model.PoolEventFail,
		ConnectionID: connectionID,
		Timestamp:    m.now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	m.appendEventLocked(ev)
	m.mu.Unlock()

	m.logger.Warnw("pool operation failed",
		"connection_id", connectionID,
		"error", ev.Error)
	m.OnEvent.Publish(ev)
}

// appendEventLocked keeps the history a bounded FIFO.
func (m *PoolMonitor) appendEventLocked(ev model.PoolEvent) {
	m.events = append(m.events, ev)
	if len(m.events) > m.cfg.MaxEvents {
		m.events = m.events[len(m.events)-m.cfg.MaxEvents:]
	}
}

// Status reports the running aggregates with named threshold breaches.
func (m *PoolMonitor) Status() model.PoolStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	var failureRate float64
	total := m.acquired + m.failed
	if total > 0 {
		failureRate = float64(m.failed) / float64(total)
	}

	var warnings []string
	if failureRate >= m.cfg.FailureRateThreshold {
		warnings = append(warnings, "High failure rate detected")
	}
	if m.avgAcq >= m.cfg.SlowAcquisition {
		warnings = append(warnings, "Slow connection acquisition detected")
	}
	if m.avgOp >= m.cfg.SlowOperation {
		warnings = append(warnings, "Slow query execution detected")
	}

	return model.PoolStatus{
		IsHealthy:          len(warnings) == 0,
		Warnings:           warnings,
		Acquired:           m.acquired,
		Released:           m.released,
		Failed:             m.failed,
		ActiveConnections:  m.active,
		IdleConnections:    m.idle,
		AvgAcquisitionTime: m.avgAcq,
		AvgOperationTime:   m.avgOp,
		FailureRate:        failureRate,
	}
}

// Events returns a copy of the bounded event history, oldest first.
func (m *PoolMonitor) Events() []model.PoolEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PoolEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Reset zeroes all counters and clears the history, emitting a reset
// event. The periodic self-reset calls this to bound long-run drift.
func (m *PoolMonitor) Reset() {
	m.mu.Lock()
	m.acquired = 0
	m.released = 0
	m.failed = 0
	m.active = 0
	m.idle = 0
	m.avgAcq = 0
	m.avgOp = 0
	m.events = nil
	ev := model.PoolEvent{
		Type:      model.PoolEventReset,
		Timestamp: m.now(),
	}
	m.mu.Unlock()

	m.logger.Info("pool monitor reset")
	m.OnEvent.Publish(ev)
}

// Start schedules the periodic self-reset. Idempotent.
func (m *PoolMonitor) Start() {
	m.mu.Lock()
	if m.started || m.cfg.ResetSchedule == "" {
		m.mu.Unlock()
		return
	}
	m.timer = cron.New()
	_, err := m.timer.AddFunc(m.cfg.ResetSchedule, m.Reset)
	if err != nil {
		m.logger.Errorw("failed to schedule pool monitor reset",
			"schedule", m.cfg.ResetSchedule,
			"error", err)
		m.timer = nil
		m.mu.Unlock()
		return
	}
	m.started = true
	timer := m.timer
	m.mu.Unlock()

	timer.Start()
	m.logger.Infow("pool monitor started", "reset_schedule", m.cfg.ResetSchedule)
}

// Stop halts the self-reset timer without touching counters. Idempotent.
func (m *PoolMonitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	timer := m.timer
	m.timer = nil
	m.started = false
	m.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
}

// Destroy halts the timer and detaches all listeners.
func (m *PoolMonitor) Destroy() {
	m.Stop()
	m.OnEvent.DetachAll()
}
