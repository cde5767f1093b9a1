package biz

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// Cleanup task kinds. The kind decides which aggregate metric a task's
// cleaned count feeds.
const (
	CleanupTypeMemory     = "memory"
	CleanupTypeProcess    = "process"
	CleanupTypeConnection = "connection"
	CleanupTypeCache      = "cache"
)

// CleanupTask is one independently scheduled unit of housekeeping.
// Execute returns the number of items (or bytes, for memory tasks) it
// cleaned.
type CleanupTask struct {
	ID       string
	Type     string
	Priority int
	Interval time.Duration
	LastRun  time.Time
	Enabled  bool
	Execute  func(ctx context.Context) (int64, error)
}

// CleanupMetrics aggregates the work done across cycles.
type CleanupMetrics struct {
	TasksExecuted       int64
	TasksFailed         int64
	MemoryFreed         int64
	ProcessesCleaned    int64
	ConnectionsClosed   int64
	CacheEntriesCleared int64
	LastCleanup         time.Time
	CleanupDuration     time.Duration
}

// CleanupScheduler runs a registry of cleanup tasks in priority order.
// One cycle visits every enabled task whose interval has elapsed since its
// last run; a panicking or failing task is logged and skipped without
// aborting the rest of the cycle. The cycle tick itself is driven
// externally (maintenance cron), so tests call RunCycle directly.
type CleanupScheduler struct {
	// OnCycle fires after every completed cycle with the updated
	// aggregate metrics.
	OnCycle *Signal[CleanupMetrics]

	mu      sync.Mutex
	tasks   map[string]*CleanupTask
	metrics CleanupMetrics

	now    func() time.Time
	logger *log.Helper
}

// NewCleanupScheduler creates a scheduler with an empty task registry.
func NewCleanupScheduler(logger log.Logger) *CleanupScheduler {
	return &CleanupScheduler{
		OnCycle: NewSignal[CleanupMetrics](),
		tasks:   make(map[string]*CleanupTask),
		now:     time.Now,
		logger:  log.NewHelper(logger),
	}
}

// AddTask registers a task. Re-adding an existing ID overwrites the prior
// task (last write wins).
func (s *CleanupScheduler) AddTask(task *CleanupTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

// RemoveTask deletes the task with the given ID, reporting whether it
// existed.
func (s *CleanupScheduler) RemoveTask(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false
	}
	delete(s.tasks, id)
	return true
}

// SetTaskEnabled toggles a task without removing it, reporting whether
// the ID was known.
func (s *CleanupScheduler) SetTaskEnabled(id string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	t.Enabled = enabled
	return true
}

// Tasks returns a snapshot of the registry sorted by priority then ID.
func (s *CleanupScheduler) Tasks() []CleanupTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CleanupTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RunCycle executes every due task in priority order (high to low) and
// returns the number of tasks that ran.
func (s *CleanupScheduler) RunCycle(ctx context.Context) int {
	start := s.now()

	s.mu.Lock()
	due := make([]*CleanupTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.Enabled || t.Execute == nil {
			continue
		}
		if !t.LastRun.IsZero() && start.Sub(t.LastRun) < t.Interval {
			continue
		}
		due = append(due, t)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].ID < due[j].ID
	})
	s.mu.Unlock()

	ran := 0
	for _, t := range due {
		cleaned, err := s.runTask(ctx, t)

		s.mu.Lock()
		t.LastRun = s.now()
		if err != nil {
			s.metrics.TasksFailed++
		} else {
			s.metrics.TasksExecuted++
			switch t.Type {
			case CleanupTypeMemory:
				s.metrics.MemoryFreed += cleaned
			case CleanupTypeProcess:
				s.metrics.ProcessesCleaned += cleaned
			case CleanupTypeConnection:
				s.metrics.ConnectionsClosed += cleaned
			case CleanupTypeCache:
				s.metrics.CacheEntriesCleared += cleaned
			}
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Errorw("cleanup task failed",
				"task_id", t.ID,
				"task_type", t.Type,
				"error", err)
		}
		ran++
	}

	s.mu.Lock()
	s.metrics.LastCleanup = s.now()
	s.metrics.CleanupDuration = s.now().Sub(start)
	metrics := s.metrics
	s.mu.Unlock()

	s.OnCycle.Publish(metrics)
	return ran
}

// runTask isolates one task: a panic is converted into a failure so the
// cycle accounting treats it the same as a returned error.
func (s *CleanupScheduler) runTask(ctx context.Context, t *CleanupTask) (cleaned int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("cleanup task panicked",
				"task_id", t.ID,
				"task_type", t.Type,
				"panic", r)
			cleaned = 0
			err = fmt.Errorf("cleanup task %s panicked: %v", t.ID, r)
		}
	}()
	return t.Execute(ctx)
}

// Metrics returns a copy of the aggregate counters.
func (s *CleanupScheduler) Metrics() CleanupMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// ResetMetrics zeroes the aggregates without touching tasks or timers.
func (s *CleanupScheduler) ResetMetrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = CleanupMetrics{}
}

// Destroy detaches all listeners. The registry survives; the scheduler has
// no timers of its own.
func (s *CleanupScheduler) Destroy() {
	s.OnCycle.DetachAll()
}

// NewMemoryCleanupTask triggers a garbage collection and reports the heap
// bytes released.
func NewMemoryCleanupTask(interval time.Duration) *CleanupTask {
	return &CleanupTask{
		ID:       "memory-gc",
		Type:     CleanupTypeMemory,
		Priority: 10,
		Interval: interval,
		Enabled:  true,
		Execute: func(ctx context.Context) (int64, error) {
			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			runtime.GC()
			runtime.ReadMemStats(&after)
			freed := int64(before.HeapAlloc) - int64(after.HeapAlloc)
			if freed < 0 {
				freed = 0
			}
			return freed, nil
		},
	}
}

// NewProcessCleanupTask runs a caller-supplied hook that clears stale
// in-flight work records.
func NewProcessCleanupTask(interval time.Duration, hook func(ctx context.Context) (int64, error)) *CleanupTask {
	return &CleanupTask{
		ID:       "stale-processes",
		Type:     CleanupTypeProcess,
		Priority: 8,
		Interval: interval,
		Enabled:  true,
		Execute:  hook,
	}
}

// NewConnectionCleanupTask runs a caller-supplied hook that closes idle
// or leaked connections.
func NewConnectionCleanupTask(interval time.Duration, hook func(ctx context.Context) (int64, error)) *CleanupTask {
	return &CleanupTask{
		ID:       "idle-connections",
		Type:     CleanupTypeConnection,
		Priority: 6,
		Interval: interval,
		Enabled:  true,
		Execute:  hook,
	}
}

// NewCacheCleanupTask runs a caller-supplied hook that evicts expired
// cache entries.
func NewCacheCleanupTask(interval time.Duration, hook func(ctx context.Context) (int64, error)) *CleanupTask {
	return &CleanupTask{
		ID:       "expired-cache",
		Type:     CleanupTypeCache,
		Priority: 4,
		Interval: interval,
		Enabled:  true,
		Execute:  hook,
	}
}
