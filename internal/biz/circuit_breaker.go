package biz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// CircuitBreakerConfig configures a single breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures in CLOSED
	// state that trips the breaker to OPEN.
	FailureThreshold int
	// SuccessThreshold is the number of successful probes in HALF_OPEN
	// state required to close the breaker again.
	SuccessThreshold int
	// Timeout is how long the breaker stays OPEN before the next call
	// attempt is allowed through as a probe.
	Timeout time.Duration
	// MonitorInterval is the period of the out-of-band health probe.
	MonitorInterval time.Duration
	// EnableHealthChecks starts the periodic health probe once a probe
	// function is attached.
	EnableHealthChecks bool
	// MaxHealthResults bounds the health check history.
	MaxHealthResults int
}

// DefaultCircuitBreakerConfig returns the config used when a breaker is
// lazily created without an explicit per-name config.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MonitorInterval:  30 * time.Second,
		MaxHealthResults: 50,
	}
}

// Operation is a fallible call against the guarded dependency.
type Operation func(ctx context.Context) error

// HealthProbe is an out-of-band reachability check, independent of
// production traffic.
type HealthProbe func(ctx context.Context) error

// CircuitOpenError is the synthetic rejection raised when a call is
// short-circuited. It is always distinguishable from the dependency's
// own failures.
type CircuitOpenError struct {
	Breaker string
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Breaker)
}

// IsCircuitOpen reports whether err is a circuit-open rejection.
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}

// FallbackError is the combined failure surfaced when both the primary
// operation and its fallback failed.
type FallbackError struct {
	Breaker  string
	Primary  error
	Fallback error
}

// Error implements the error interface, naming both causes.
func (e *FallbackError) Error() string {
	return fmt.Sprintf("circuit breaker %q: operation failed: %v; fallback failed: %v",
		e.Breaker, e.Primary, e.Fallback)
}

// Unwrap returns the primary failure for errors.Is / errors.As chains.
func (e *FallbackError) Unwrap() error {
	return e.Primary
}

// CircuitBreaker wraps fallible operations against one named dependency
// with a CLOSED / OPEN / HALF_OPEN state machine. All state is in-memory
// and rebuilt on restart.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig

	// OnStateChange fires on every transition, with the true prior state.
	OnStateChange *Signal[model.StateChangeEvent]
	// OnSuccess fires after the wrapped operation succeeds.
	OnSuccess *Signal[model.CallOutcome]
	// OnFailure fires after the wrapped operation fails.
	OnFailure *Signal[model.CallOutcome]
	// OnRejected fires when a call is short-circuited without a fallback.
	OnRejected *Signal[model.Rejection]

	mu              sync.Mutex
	state           model.CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	lastStateChange time.Time
	metrics         model.CircuitMetrics
	healthHistory   []model.HealthCheckResult
	probe           HealthProbe
	monitor         *cron.Cron
	destroyed       bool

	now    func() time.Time
	logger *log.Helper
}

// NewCircuitBreaker creates a breaker in CLOSED state.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger log.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultCircuitBreakerConfig().SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCircuitBreakerConfig().Timeout
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = DefaultCircuitBreakerConfig().MonitorInterval
	}
	if cfg.MaxHealthResults <= 0 {
		cfg.MaxHealthResults = DefaultCircuitBreakerConfig().MaxHealthResults
	}

	b := &CircuitBreaker{
		name:          name,
		cfg:           cfg,
		OnStateChange: NewSignal[model.StateChangeEvent](),
		OnSuccess:     NewSignal[model.CallOutcome](),
		OnFailure:     NewSignal[model.CallOutcome](),
		OnRejected:    NewSignal[model.Rejection](),
		state:         model.StateClosed,
		now:           time.Now,
		logger:        log.NewHelper(logger),
	}
	b.lastStateChange = b.now()
	return b
}

// Name returns the breaker's dependency name.
func (b *CircuitBreaker) Name() string {
	return b.name
}

// State returns the stored state. An elapsed OPEN timeout is only acted on
// by the next call attempt, so State can report OPEN past the timeout.
func (b *CircuitBreaker) State() model.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute invokes op under the breaker's policy.
//
// CLOSED / HALF_OPEN: op runs and its success or failure is recorded. On
// failure with no fallback the original error is returned; if a fallback
// exists and also fails, a FallbackError naming both causes is returned.
//
// OPEN: op is never invoked. The fallback runs if present (its error, if
// any, propagates as-is); otherwise a CircuitOpenError is returned. Once
// the timeout has elapsed the call first transitions to HALF_OPEN and then
// executes op as a probe.
func (b *CircuitBreaker) Execute(ctx context.Context, op Operation, fallback Operation) error {
	b.mu.Lock()
	now := b.now()

	var pending []model.StateChangeEvent
	if b.state == model.StateOpen {
		if now.Sub(b.lastStateChange) >= b.cfg.Timeout {
			pending = append(pending, b.transitionLocked(model.StateHalfOpen, now))
		} else {
			b.mu.Unlock()
			if fallback != nil {
				return fallback(ctx)
			}
			b.OnRejected.Publish(model.Rejection{
				Breaker: b.name,
				Reason:  "circuit is OPEN",
				At:      now,
			})
			return &CircuitOpenError{Breaker: b.name}
		}
	}
	b.mu.Unlock()
	b.publishTransitions(pending)

	start := b.now()
	err := op(ctx)
	elapsed := b.now().Sub(start)

	if err == nil {
		b.recordSuccess(elapsed)
		return nil
	}
	b.recordFailure(err, elapsed)

	if fallback == nil {
		return err
	}
	if ferr := fallback(ctx); ferr != nil {
		return &FallbackError{Breaker: b.name, Primary: err, Fallback: ferr}
	}
	return nil
}

// recordSuccess updates counters and drives HALF_OPEN -> CLOSED.
func (b *CircuitBreaker) recordSuccess(elapsed time.Duration) {
	b.mu.Lock()
	now := b.now()
	b.metrics.TotalRequests++
	b.metrics.SuccessfulRequests++
	b.updateAvgLocked(elapsed)

	var pending []model.StateChangeEvent
	switch b.state {
	case model.StateClosed:
		// Threshold counts consecutive failures.
		b.failureCount = 0
	case model.StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			pending = append(pending, b.transitionLocked(model.StateClosed, now))
		}
	}
	b.mu.Unlock()

	b.OnSuccess.Publish(model.CallOutcome{Breaker: b.name, ResponseTime: elapsed})
	b.publishTransitions(pending)
}

// recordFailure updates counters and drives CLOSED -> OPEN and
// HALF_OPEN -> OPEN. A single HALF_OPEN failure reverts immediately,
// regardless of the accumulated success count.
func (b *CircuitBreaker) recordFailure(err error, elapsed time.Duration) {
	b.mu.Lock()
	now := b.now()
	b.metrics.TotalRequests++
	b.metrics.FailedRequests++
	b.updateAvgLocked(elapsed)
	b.lastFailureTime = now

	var pending []model.StateChangeEvent
	switch b.state {
	case model.StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			pending = append(pending, b.transitionLocked(model.StateOpen, now))
		}
	case model.StateHalfOpen:
		pending = append(pending, b.transitionLocked(model.StateOpen, now))
	}
	b.mu.Unlock()

	b.OnFailure.Publish(model.CallOutcome{Breaker: b.name, ResponseTime: elapsed, Err: err})
	b.publishTransitions(pending)
}

// transitionLocked moves to a new state, zeroing both counters on entry.
// The caller must hold b.mu and publish the returned event after unlocking.
func (b *CircuitBreaker) transitionLocked(to model.CircuitState, now time.Time) model.StateChangeEvent {
	from := b.state
	b.state = to
	b.failureCount = 0
	b.successCount = 0
	b.lastStateChange = now

	b.logger.Infow("circuit breaker state changed",
		"breaker", b.name,
		"from", from.String(),
		"to", to.String())

	return model.StateChangeEvent{Breaker: b.name, From: from, To: to, At: now}
}

func (b *CircuitBreaker) publishTransitions(events []model.StateChangeEvent) {
	for _, ev := range events {
		b.OnStateChange.Publish(ev)
	}
}

// updateAvgLocked maintains the running average response time.
func (b *CircuitBreaker) updateAvgLocked(elapsed time.Duration) {
	n := b.metrics.TotalRequests
	b.metrics.AverageResponseTime += (elapsed - b.metrics.AverageResponseTime) / time.Duration(n)
}

// ForceOpen trips the breaker manually.
func (b *CircuitBreaker) ForceOpen() {
	b.force(model.StateOpen)
}

// ForceClose closes the breaker manually.
func (b *CircuitBreaker) ForceClose() {
	b.force(model.StateClosed)
}

func (b *CircuitBreaker) force(to model.CircuitState) {
	b.mu.Lock()
	var pending []model.StateChangeEvent
	if b.state != to {
		pending = append(pending, b.transitionLocked(to, b.now()))
	}
	b.mu.Unlock()
	b.publishTransitions(pending)
}

// Reset zeroes all counters and metrics and returns the breaker to CLOSED.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	var pending []model.StateChangeEvent
	if b.state != model.StateClosed {
		pending = append(pending, b.transitionLocked(model.StateClosed, b.now()))
	}
	b.failureCount = 0
	b.successCount = 0
	b.metrics = model.CircuitMetrics{}
	b.lastFailureTime = time.Time{}
	b.mu.Unlock()
	b.publishTransitions(pending)
}

// SetHealthProbe attaches the probe and, when health checks are enabled,
// starts the periodic monitor.
func (b *CircuitBreaker) SetHealthProbe(probe HealthProbe) {
	b.mu.Lock()
	b.probe = probe
	start := b.cfg.EnableHealthChecks && b.monitor == nil && !b.destroyed && probe != nil
	if start {
		b.monitor = cron.New()
		_, err := b.monitor.AddFunc(fmt.Sprintf("@every %s", b.cfg.MonitorInterval), func() {
			b.RunHealthCheck(context.Background())
		})
		if err != nil {
			b.logger.Errorw("failed to schedule health probe", "breaker", b.name, "error", err)
			b.monitor = nil
			start = false
		}
	}
	b.mu.Unlock()

	if start {
		b.monitor.Start()
		b.logger.Infow("health probe started",
			"breaker", b.name,
			"interval", b.cfg.MonitorInterval)
	}
}

// RunHealthCheck invokes the probe once and appends the result to the
// bounded history. Probe failures are recorded as unhealthy results and
// never returned; results are informational only and do not drive state
// transitions.
func (b *CircuitBreaker) RunHealthCheck(ctx context.Context) {
	b.mu.Lock()
	probe := b.probe
	b.mu.Unlock()
	if probe == nil {
		return
	}

	start := b.now()
	err := probe(ctx)
	result := model.HealthCheckResult{
		Healthy:      err == nil,
		ResponseTime: b.now().Sub(start),
		Timestamp:    start,
	}
	if err != nil {
		result.Error = err.Error()
		b.logger.Warnw("health probe unhealthy", "breaker", b.name, "error", err)
	}

	b.mu.Lock()
	b.healthHistory = append(b.healthHistory, result)
	if len(b.healthHistory) > b.cfg.MaxHealthResults {
		b.healthHistory = b.healthHistory[len(b.healthHistory)-b.cfg.MaxHealthResults:]
	}
	b.mu.Unlock()
}

// Status returns a consistent snapshot of the breaker.
func (b *CircuitBreaker) Status() model.CircuitStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	history := make([]model.HealthCheckResult, len(b.healthHistory))
	copy(history, b.healthHistory)

	return model.CircuitStatus{
		Name:            b.name,
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
		LastStateChange: b.lastStateChange,
		Metrics:         b.metrics,
		HealthHistory:   history,
	}
}

// Destroy halts the health monitor and detaches all listeners.
func (b *CircuitBreaker) Destroy() {
	b.mu.Lock()
	monitor := b.monitor
	b.monitor = nil
	b.destroyed = true
	b.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	b.OnStateChange.DetachAll()
	b.OnSuccess.DetachAll()
	b.OnFailure.DetachAll()
	b.OnRejected.DetachAll()
}
