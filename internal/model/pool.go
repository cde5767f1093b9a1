package model

import "time"

// PoolEventType identifies the kind of pool event recorded.
type PoolEventType string

const (
	PoolEventAcquire PoolEventType = "acquire"
	PoolEventRelease PoolEventType = "release"
	PoolEventFail    PoolEventType = "fail"
	PoolEventReset   PoolEventType = "reset"
)

// PoolEvent is a discrete acquire/release/fail occurrence kept for
// diagnostics. Metrics are running aggregates and are never recomputed
// from this history.
type PoolEvent struct {
	Type         PoolEventType `json:"type"`
	ConnectionID string        `json:"connection_id"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// PoolStatus is the externally visible health summary of the monitored pool.
type PoolStatus struct {
	IsHealthy          bool          `json:"is_healthy"`
	Warnings           []string      `json:"warnings"`
	Acquired           int64         `json:"acquired"`
	Released           int64         `json:"released"`
	Failed             int64         `json:"failed"`
	ActiveConnections  int64         `json:"active_connections"`
	IdleConnections    int64         `json:"idle_connections"`
	AvgAcquisitionTime time.Duration `json:"avg_acquisition_time"`
	AvgOperationTime   time.Duration `json:"avg_operation_time"`
	FailureRate        float64       `json:"failure_rate"`
}
