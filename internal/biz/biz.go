package biz

import (
	"ShiftGuard/internal/conf"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewCircuitBreakerDefaults,
	NewCircuitBreakerRegistry,
	NewRateLimitDefaults,
	NewRateLimiterRegistry,
	NewAlertEngineConfigFromConf,
	NewAlertEngine,
	NewPoolMonitorConfigFromConf,
	NewPoolMonitor,
	NewCleanupScheduler,
)

// NewCircuitBreakerDefaults maps bootstrap configuration onto the breaker
// defaults used for names without an explicit per-breaker config.
func NewCircuitBreakerDefaults(c *conf.Resilience) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if c == nil || c.Breaker == nil {
		return cfg
	}
	if c.Breaker.FailureThreshold > 0 {
		cfg.FailureThreshold = int(c.Breaker.FailureThreshold)
	}
	if c.Breaker.SuccessThreshold > 0 {
		cfg.SuccessThreshold = int(c.Breaker.SuccessThreshold)
	}
	if d := c.Breaker.Timeout.AsDuration(); d > 0 {
		cfg.Timeout = d
	}
	if d := c.Breaker.MonitorInterval.AsDuration(); d > 0 {
		cfg.MonitorInterval = d
	}
	cfg.EnableHealthChecks = c.Breaker.EnableHealthChecks
	return cfg
}

// NewRateLimitDefaults maps bootstrap configuration onto the limiter
// defaults used for actions without an explicit per-action config.
func NewRateLimitDefaults(c *conf.Resilience) RateLimitConfig {
	cfg := DefaultRateLimitConfig()
	if c == nil || c.RateLimit == nil {
		return cfg
	}
	if d := c.RateLimit.Window.AsDuration(); d > 0 {
		cfg.Window = d
	}
	if c.RateLimit.MaxRequests > 0 {
		cfg.MaxRequests = int(c.RateLimit.MaxRequests)
	}
	return cfg
}

// NewAlertEngineConfigFromConf maps bootstrap configuration onto the
// alert engine config.
func NewAlertEngineConfigFromConf(c *conf.Resilience) AlertEngineConfig {
	cfg := DefaultAlertEngineConfig()
	if c == nil || c.Alerts == nil {
		return cfg
	}
	if d := c.Alerts.MetricsWindow.AsDuration(); d > 0 {
		cfg.MetricsWindow = d
	}
	if c.Alerts.MaxHistory > 0 {
		cfg.MaxHistory = int(c.Alerts.MaxHistory)
	}
	return cfg
}

// NewPoolMonitorConfigFromConf maps bootstrap configuration onto the pool
// monitor config.
func NewPoolMonitorConfigFromConf(c *conf.Resilience) PoolMonitorConfig {
	cfg := DefaultPoolMonitorConfig()
	if c == nil || c.Pool == nil {
		return cfg
	}
	if c.Pool.MaxEvents > 0 {
		cfg.MaxEvents = int(c.Pool.MaxEvents)
	}
	if c.Pool.FailureRateThreshold > 0 {
		cfg.FailureRateThreshold = c.Pool.FailureRateThreshold
	}
	if d := c.Pool.SlowAcquisition.AsDuration(); d > 0 {
		cfg.SlowAcquisition = d
	}
	if d := c.Pool.SlowOperation.AsDuration(); d > 0 {
		cfg.SlowOperation = d
	}
	if c.Pool.ResetSchedule != "" {
		cfg.ResetSchedule = c.Pool.ResetSchedule
	}
	return cfg
}
