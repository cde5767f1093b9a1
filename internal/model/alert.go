package model

import "time"

// Severity classifies alert rules and the alerts they produce.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is created when a rule fires outside its cooldown. It is mutated
// only by acknowledgement and retained in bounded in-memory history until
// explicitly cleared.
type Alert struct {
	ID             string     `json:"id"`
	RuleID         string     `json:"rule_id"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Timestamp      time.Time  `json:"timestamp"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// MetricsSnapshot is the rolling counter window the alert engine evaluates
// rules against. Business-specific counters are fed by external callers.
type MetricsSnapshot struct {
	Requests            int64         `json:"requests"`
	Successes           int64         `json:"successes"`
	Failures            int64         `json:"failures"`
	ValidationErrors    int64         `json:"validation_errors"`
	RateLimitHits       int64         `json:"rate_limit_hits"`
	SecurityViolations  int64         `json:"security_violations"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	WindowStart         time.Time     `json:"window_start"`
}

// FailureRate returns failures as a fraction of total requests, or 0 when
// no requests were recorded.
func (s MetricsSnapshot) FailureRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Requests)
}
