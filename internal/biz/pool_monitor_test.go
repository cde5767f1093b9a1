package biz

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(cfg PoolMonitorConfig) *PoolMonitor {
	m := NewPoolMonitor(cfg, log.DefaultLogger)
	m.now = newTestClock().Now
	return m
}

func TestPoolMonitor_RecordsAcquireReleaseCycle(t *testing.T) {
	m := newTestMonitor(PoolMonitorConfig{})
	defer m.Destroy()

	m.RecordAcquisition("conn-1", 10*time.Millisecond)
	m.RecordRelease("conn-1", 100*time.Millisecond)

	s := m.Status()
	assert.Equal(t, int64(1), s.Acquired)
	assert.Equal(t, int64(1), s.Released)
	assert.Equal(t, int64(0), s.ActiveConnections)
	assert.Equal(t, int64(1), s.IdleConnections)
	assert.Equal(t, 10*time.Millisecond, s.AvgAcquisitionTime)
	assert.Equal(t, 100*time.Millisecond, s.AvgOperationTime)
	assert.True(t, s.IsHealthy)
}

func TestPoolMonitor_AcquisitionRaisesActiveGauge(t *testing.T) {
	m := newTestMonitor(PoolMonitorConfig{})
	defer m.Destroy()

	m.RecordAcquisition("conn-1", time.Millisecond)
	assert.Equal(t, int64(1), m.Status().ActiveConnections)
	assert.Equal(t, int64(0), m.Status().IdleConnections)
}

func TestPoolMonitor_GaugesNeverGoNegative(t *testing.T) {
	m := newTestMonitor(PoolMonitorConfig{})
	defer m.Destroy()

	// Unbalanced releases must floor at zero.
	m.RecordRelease("conn-1", time.Millisecond)
	m.RecordRelease("conn-2", time.Millisecond)

	s := m.Status()
	assert.Equal(t, int64(0), s.ActiveConnections)
	assert.Equal(t, int64(2), s.IdleConnections)

	// Acquisitions drain idle back down, also floored.
	for i := 0; i < 5; i++ {
		m.RecordAcquisition(fmt.Sprintf("conn-%d", i), time.Millisecond)
	}
	s = m.Status()
	assert.Equal(t, int64(5), s.ActiveConnections)
	assert.Equal(t, int64(0), s.IdleConnections)
}

func TestPoolMonitor_RunningAverages(t *testing.T) {
	m := newTestMonitor(PoolMonitorConfig{})
	defer m.Destroy()

	m.RecordAcquisition("a", 10*time.Millisecond)
	m.RecordAcquisition("b", 30*time.Millisecond)

	assert.Equal(t, 20*time.Millisecond, m.Status().AvgAcquisitionTime)
}

func TestPoolMonitor_FailureRateWarning(t *testing.T) {
	m := newTestMonitor(PoolMonitorConfig{FailureRateThreshold: 0.5})
	defer m.Destroy()

	m.RecordAcquisition("a", time.Millisecond)
	m.RecordFailure("b", errors.New("connect refused"))

	s := m.Status()
	assert.False(t, s.IsHealthy)
	assert.Contains(t, s.Warnings, "High failure rate detected")
	assert.Equal(t, 0.5, s.FailureRate)
}

func TestPoolMonitor_SlownessWarnings(t *testing.T) {
	m := newTestMonitor(PoolMonitorConfig{
		SlowAcquisition: 100 * time.Millisecond,
		SlowOperation:   time.Second,
	})
	defer m.Destroy()

	m.RecordAcquisition("a", 200*time.Millisecond)
	m.RecordRelease("a", 2*time.Second)

	s := m.Status()
	assert.False(t, s.IsHealthy)
	assert.Contains(t, s.Warnings, "Slow connection acquisition detected")
	assert.Contains(t, s.Warnings, "Slow query execution detected")
}

func TestPoolMonitor_EventsAreEmittedAndBounded(t *testing.T) {
	m := newTestMonitor(PoolMonitorConfig{MaxEvents: 3})
	defer m.Destroy()

	var published []model.PoolEvent
	m.OnEvent.Subscribe(func(ev model.PoolEvent) { published = append(published, ev) })

	for i := 0; i < 5; i++ {
		m.RecordAcquisition(fmt.Sprintf("conn-%d", i), time.Millisecond)
	}

	// Every event is published, the stored history is a bounded FIFO.
	assert.Len(t, published, 5)
	events := m.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "conn-2", events[0].ConnectionID)
	assert.Equal(t, "conn-4", events[2].ConnectionID)
}

func TestPoolMonitor_FailureEventCarriesError(t *testing.T) {
	m := newTestMonitor(PoolMonitorConfig{})
	defer m.Destroy()

	var events []model.PoolEvent
	m.OnEvent.Subscribe(func(ev model.PoolEvent) { events = append(events, ev) })

	m.RecordFailure("conn-9", errors.New("broken pipe"))

	require.Len(t, events, 1)
	assert.Equal(t, model.PoolEventFail, events[0].Type)
	assert.Equal(t, "conn-9", events[0].ConnectionID)
	assert.Equal(t, "broken pipe", events[0].Error)
}

func TestPoolMonitor_ResetZeroesEverything(t *testing.T) {
	m := newTestMonitor(PoolMonitorConfig{})
	defer m.Destroy()

	var events []model.PoolEvent
	m.OnEvent.Subscribe(func(ev model.PoolEvent) { events = append(events, ev) })

	m.RecordAcquisition("a", time.Second)
	m.RecordFailure("b", errors.New("x"))
	m.Reset()

	s := m.Status()
	assert.Equal(t, int64(0), s.Acquired)
	assert.Equal(t, int64(0), s.Failed)
	assert.Equal(t, int64(0), s.ActiveConnections)
	assert.Equal(t, time.Duration(0), s.AvgAcquisitionTime)
	assert.True(t, s.IsHealthy)
	assert.Empty(t, m.Events())

	// acquire, fail, then the synthetic reset event.
	require.Len(t, events, 3)
	assert.Equal(t, model.PoolEventReset, events[2].Type)
}

func TestPoolMonitor_StartStopIdempotent(t *testing.T) {
	m := newTestMonitor(PoolMonitorConfig{ResetSchedule: "@daily"})

	m.Stop()
	m.Start()
	m.Start()
	m.Stop()
	m.Stop()
	m.Destroy()
}
