package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler() (*CleanupScheduler, *testClock) {
	clock := newTestClock()
	s := NewCleanupScheduler(log.DefaultLogger)
	s.now = clock.Now
	return s, clock
}

func countingTask(id string, typ string, priority int, ran *[]string) *CleanupTask {
	return &CleanupTask{
		ID:       id,
		Type:     typ,
		Priority: priority,
		Interval: time.Minute,
		Enabled:  true,
		Execute: func(ctx context.Context) (int64, error) {
			*ran = append(*ran, id)
			return 1, nil
		},
	}
}

func TestCleanupScheduler_RunsInPriorityOrder(t *testing.T) {
	s, _ := newTestScheduler()
	defer s.Destroy()

	var ran []string
	s.AddTask(countingTask("low", CleanupTypeCache, 1, &ran))
	s.AddTask(countingTask("high", CleanupTypeMemory, 10, &ran))
	s.AddTask(countingTask("mid", CleanupTypeProcess, 5, &ran))

	n := s.RunCycle(context.Background())

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"high", "mid", "low"}, ran)
}

func TestCleanupScheduler_IntervalGatesExecution(t *testing.T) {
	s, clock := newTestScheduler()
	defer s.Destroy()

	var ran []string
	s.AddTask(countingTask("periodic", CleanupTypeCache, 1, &ran))

	s.RunCycle(context.Background())
	require.Len(t, ran, 1)

	// A second cycle before the task's own interval elapses skips it.
	clock.Advance(30 * time.Second)
	s.RunCycle(context.Background())
	assert.Len(t, ran, 1)

	clock.Advance(30 * time.Second)
	s.RunCycle(context.Background())
	assert.Len(t, ran, 2)
}

func TestCleanupScheduler_DisabledTasksAreSkipped(t *testing.T) {
	s, _ := newTestScheduler()
	defer s.Destroy()

	var ran []string
	s.AddTask(countingTask("toggle", CleanupTypeCache, 1, &ran))

	require.True(t, s.SetTaskEnabled("toggle", false))
	s.RunCycle(context.Background())
	assert.Empty(t, ran)

	require.True(t, s.SetTaskEnabled("toggle", true))
	s.RunCycle(context.Background())
	assert.Len(t, ran, 1)

	assert.False(t, s.SetTaskEnabled("unknown", true))
}

func TestCleanupScheduler_FaultIsolation(t *testing.T) {
	s, _ := newTestScheduler()
	defer s.Destroy()

	var ran []string
	s.AddTask(&CleanupTask{
		ID:       "panics",
		Type:     CleanupTypeProcess,
		Priority: 10,
		Enabled:  true,
		Execute: func(ctx context.Context) (int64, error) {
			panic("task exploded")
		},
	})
	s.AddTask(&CleanupTask{
		ID:       "fails",
		Type:     CleanupTypeConnection,
		Priority: 5,
		Enabled:  true,
		Execute: func(ctx context.Context) (int64, error) {
			return 0, errors.New("unreachable")
		},
	})
	s.AddTask(countingTask("survivor", CleanupTypeCache, 1, &ran))

	assert.NotPanics(t, func() { s.RunCycle(context.Background()) })
	assert.Equal(t, []string{"survivor"}, ran)

	// A panic and a returned error are the same failure class.
	m := s.Metrics()
	assert.Equal(t, int64(2), m.TasksFailed)
	assert.Equal(t, int64(1), m.TasksExecuted)
}

func TestCleanupScheduler_MetricsAccumulateByType(t *testing.T) {
	s, _ := newTestScheduler()
	defer s.Destroy()

	fixed := func(n int64) func(ctx context.Context) (int64, error) {
		return func(ctx context.Context) (int64, error) { return n, nil }
	}
	s.AddTask(&CleanupTask{ID: "m", Type: CleanupTypeMemory, Priority: 4, Enabled: true, Execute: fixed(4096)})
	s.AddTask(&CleanupTask{ID: "p", Type: CleanupTypeProcess, Priority: 3, Enabled: true, Execute: fixed(2)})
	s.AddTask(&CleanupTask{ID: "c", Type: CleanupTypeConnection, Priority: 2, Enabled: true, Execute: fixed(3)})
	s.AddTask(&CleanupTask{ID: "e", Type: CleanupTypeCache, Priority: 1, Enabled: true, Execute: fixed(17)})

	s.RunCycle(context.Background())

	m := s.Metrics()
	assert.Equal(t, int64(4), m.TasksExecuted)
	assert.Equal(t, int64(4096), m.MemoryFreed)
	assert.Equal(t, int64(2), m.ProcessesCleaned)
	assert.Equal(t, int64(3), m.ConnectionsClosed)
	assert.Equal(t, int64(17), m.CacheEntriesCleared)
	assert.False(t, m.LastCleanup.IsZero())
}

func TestCleanupScheduler_CycleSignal(t *testing.T) {
	s, _ := newTestScheduler()
	defer s.Destroy()

	var cycles []CleanupMetrics
	s.OnCycle.Subscribe(func(m CleanupMetrics) { cycles = append(cycles, m) })

	var ran []string
	s.AddTask(countingTask("cache", CleanupTypeCache, 1, &ran))
	s.RunCycle(context.Background())

	require.Len(t, cycles, 1)
	assert.Equal(t, int64(1), cycles[0].TasksExecuted)
	assert.Equal(t, int64(1), cycles[0].CacheEntriesCleared)
}

func TestCleanupScheduler_ReaddingTaskOverwrites(t *testing.T) {
	s, _ := newTestScheduler()
	defer s.Destroy()

	var first, second []string
	s.AddTask(countingTask("dup", CleanupTypeCache, 1, &first))
	s.AddTask(countingTask("dup", CleanupTypeCache, 1, &second))

	s.RunCycle(context.Background())

	assert.Empty(t, first)
	assert.Equal(t, []string{"dup"}, second)
	assert.Len(t, s.Tasks(), 1)
}

func TestCleanupScheduler_RemoveTask(t *testing.T) {
	s, _ := newTestScheduler()
	defer s.Destroy()

	var ran []string
	s.AddTask(countingTask("gone", CleanupTypeCache, 1, &ran))

	assert.True(t, s.RemoveTask("gone"))
	assert.False(t, s.RemoveTask("gone"))

	s.RunCycle(context.Background())
	assert.Empty(t, ran)
}

func TestCleanupScheduler_ResetMetricsKeepsTasks(t *testing.T) {
	s, _ := newTestScheduler()
	defer s.Destroy()

	var ran []string
	s.AddTask(countingTask("cache", CleanupTypeCache, 1, &ran))
	s.RunCycle(context.Background())
	require.Equal(t, int64(1), s.Metrics().TasksExecuted)

	s.ResetMetrics()

	assert.Equal(t, CleanupMetrics{}, s.Metrics())
	assert.Len(t, s.Tasks(), 1)
}

func TestCleanupScheduler_BuiltinTaskConstructors(t *testing.T) {
	hook := func(ctx context.Context) (int64, error) { return 7, nil }

	mem := NewMemoryCleanupTask(time.Minute)
	assert.Equal(t, CleanupTypeMemory, mem.Type)
	freed, err := mem.Execute(context.Background())
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, freed, int64(0))

	proc := NewProcessCleanupTask(time.Minute, hook)
	assert.Equal(t, CleanupTypeProcess, proc.Type)

	conn := NewConnectionCleanupTask(time.Minute, hook)
	assert.Equal(t, CleanupTypeConnection, conn.Type)

	cache := NewCacheCleanupTask(time.Minute, hook)
	assert.Equal(t, CleanupTypeCache, cache.Type)
	n, err := cache.Execute(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(7), n)

	// Priorities run memory first, cache last.
	assert.Greater(t, mem.Priority, proc.Priority)
	assert.Greater(t, proc.Priority, conn.Priority)
	assert.Greater(t, conn.Priority, cache.Priority)
}
