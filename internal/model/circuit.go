package model

import "time"

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed allows calls to pass through while counting failures.
	StateClosed CircuitState = iota
	// StateOpen rejects calls without invoking the wrapped operation.
	StateOpen
	// StateHalfOpen lets probe calls through while counting successes.
	StateHalfOpen
)

// String returns the canonical upper-case state name.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent is published whenever a breaker transitions between states.
// From carries the true prior state, captured before the mutation.
type StateChangeEvent struct {
	Breaker string
	From    CircuitState
	To      CircuitState
	At      time.Time
}

// CallOutcome is published after the wrapped operation completes.
type CallOutcome struct {
	Breaker      string
	ResponseTime time.Duration
	Err          error
}

// Rejection is published when a call is short-circuited without invoking
// the wrapped operation.
type Rejection struct {
	Breaker string
	Reason  string
	At      time.Time
}

// HealthCheckResult records one out-of-band health probe invocation.
type HealthCheckResult struct {
	Healthy      bool
	ResponseTime time.Duration
	Timestamp    time.Time
	Error        string
}

// CircuitMetrics are the running aggregates of a single breaker.
type CircuitMetrics struct {
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	AverageResponseTime time.Duration
}

// CircuitStatus is the externally visible snapshot of one breaker,
// returned by the registry's aggregate listing.
type CircuitStatus struct {
	Name            string
	State           CircuitState
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
	LastStateChange time.Time
	Metrics         CircuitMetrics
	HealthHistory   []HealthCheckResult
}
