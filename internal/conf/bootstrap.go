// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with SHIFTGUARD_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Database and Redis are optional collaborators: when their source/addr is
// empty the service runs with archival and caching disabled.
//
// Parameters:
//   - configPath: Path to the configuration file or directory
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with SHIFTGUARD_ prefix
	v.SetEnvPrefix("SHIFTGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names for common fields
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "SHIFTGUARD_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "SHIFTGUARD_DATA_REDIS_ADDR")
	_ = v.BindEnv("notify.webhook_url", "ALERT_WEBHOOK_URL", "SHIFTGUARD_NOTIFY_WEBHOOK_URL")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
			Grpc: &Server_GRPC{
				Network: v.GetString("server.grpc.network"),
				Addr:    v.GetString("server.grpc.addr"),
				Timeout: durationpb.New(v.GetDuration("server.grpc.timeout")),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
			Cache: &Data_Cache{
				Size: v.GetInt32("data.cache.size"),
				Ttl:  durationpb.New(v.GetDuration("data.cache.ttl")),
			},
		},
		Resilience: &Resilience{
			Breaker: &Resilience_Breaker{
				FailureThreshold:   v.GetInt32("resilience.breaker.failure_threshold"),
				SuccessThreshold:   v.GetInt32("resilience.breaker.success_threshold"),
				Timeout:            durationpb.New(v.GetDuration("resilience.breaker.timeout")),
				MonitorInterval:    durationpb.New(v.GetDuration("resilience.breaker.monitor_interval")),
				EnableHealthChecks: v.GetBool("resilience.breaker.enable_health_checks"),
			},
			RateLimit: &Resilience_RateLimit{
				Window:      durationpb.New(v.GetDuration("resilience.rate_limit.window")),
				MaxRequests: v.GetInt32("resilience.rate_limit.max_requests"),
			},
			Alerts: &Resilience_Alerts{
				MetricsWindow: durationpb.New(v.GetDuration("resilience.alerts.metrics_window")),
				MaxHistory:    v.GetInt32("resilience.alerts.max_history"),
			},
			Pool: &Resilience_Pool{
				MaxEvents:            v.GetInt32("resilience.pool.max_events"),
				FailureRateThreshold: v.GetFloat64("resilience.pool.failure_rate_threshold"),
				SlowAcquisition:      durationpb.New(v.GetDuration("resilience.pool.slow_acquisition")),
				SlowOperation:        durationpb.New(v.GetDuration("resilience.pool.slow_operation")),
				ResetSchedule:        v.GetString("resilience.pool.reset_schedule"),
			},
			Cleanup: &Resilience_Cleanup{
				Tick:         durationpb.New(v.GetDuration("resilience.cleanup.tick")),
				TaskInterval: durationpb.New(v.GetDuration("resilience.cleanup.task_interval")),
			},
		},
		Notify: &Notify{
			WebhookUrl: v.GetString("notify.webhook_url"),
			Timeout:    durationpb.New(v.GetDuration("notify.timeout")),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate field values
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", time.Minute)

	v.SetDefault("server.grpc.network", "tcp")
	v.SetDefault("server.grpc.addr", ":9000")
	v.SetDefault("server.grpc.timeout", time.Minute)

	// Data defaults. Database source and redis addr default to empty,
	// which disables the corresponding collaborator.
	v.SetDefault("data.database.driver", "mysql")
	v.SetDefault("data.database.source", "")

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	v.SetDefault("data.cache.size", 1024)
	v.SetDefault("data.cache.ttl", 5*time.Minute)

	// Resilience defaults
	v.SetDefault("resilience.breaker.failure_threshold", 5)
	v.SetDefault("resilience.breaker.success_threshold", 2)
	v.SetDefault("resilience.breaker.timeout", 30*time.Second)
	v.SetDefault("resilience.breaker.monitor_interval", 30*time.Second)
	v.SetDefault("resilience.breaker.enable_health_checks", true)

	v.SetDefault("resilience.rate_limit.window", time.Minute)
	v.SetDefault("resilience.rate_limit.max_requests", 60)

	v.SetDefault("resilience.alerts.metrics_window", time.Minute)
	v.SetDefault("resilience.alerts.max_history", 100)

	v.SetDefault("resilience.pool.max_events", 1000)
	v.SetDefault("resilience.pool.failure_rate_threshold", 0.10)
	v.SetDefault("resilience.pool.slow_acquisition", time.Second)
	v.SetDefault("resilience.pool.slow_operation", 2*time.Second)
	v.SetDefault("resilience.pool.reset_schedule", "@daily")

	v.SetDefault("resilience.cleanup.tick", time.Minute)
	v.SetDefault("resilience.cleanup.task_interval", 5*time.Minute)

	// Notify defaults. Empty URL disables webhook delivery.
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", 10*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.env", "")
	v.SetDefault("log.output_file", "")
}

// Validate checks configuration values for internal consistency. Unlike
// storage-backed services there are no required external collaborators,
// so validation only rejects values that would misconfigure the core.
func Validate(bc *Bootstrap) error {
	var invalid []string

	if bc.Resilience != nil && bc.Resilience.Breaker != nil {
		if bc.Resilience.Breaker.FailureThreshold <= 0 {
			invalid = append(invalid, "resilience.breaker.failure_threshold must be positive")
		}
		if bc.Resilience.Breaker.SuccessThreshold <= 0 {
			invalid = append(invalid, "resilience.breaker.success_threshold must be positive")
		}
	}
	if bc.Resilience != nil && bc.Resilience.RateLimit != nil {
		if bc.Resilience.RateLimit.MaxRequests <= 0 {
			invalid = append(invalid, "resilience.rate_limit.max_requests must be positive")
		}
		if bc.Resilience.RateLimit.Window.AsDuration() <= 0 {
			invalid = append(invalid, "resilience.rate_limit.window must be positive")
		}
	}
	if bc.Resilience != nil && bc.Resilience.Alerts != nil {
		if bc.Resilience.Alerts.MetricsWindow.AsDuration() <= 0 {
			invalid = append(invalid, "resilience.alerts.metrics_window must be positive")
		}
	}
	if bc.Data != nil && bc.Data.Cache != nil && bc.Data.Cache.Size < 0 {
		invalid = append(invalid, "data.cache.size must not be negative")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, "; "))
	}

	return nil
}
