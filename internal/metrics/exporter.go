// Package metrics exports the resilience components' signal streams as
// Prometheus series.
package metrics

import (
	nethttp "net/http"

	"ShiftGuard/internal/biz"
	"ShiftGuard/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProviderSet is metrics providers.
var ProviderSet = wire.NewSet(NewExporter)

// Exporter owns a private Prometheus registry and keeps its series
// updated from the component signals. Everything is event-driven; the
// exporter never polls component state.
type Exporter struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	calls         *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	poolEvents    *prometheus.CounterVec
	cleanupCycles prometheus.Counter
	cleanupFreed  prometheus.Gauge
	cleanupCache  prometheus.Gauge

	logger *log.Helper
}

// NewExporter builds the exporter and subscribes it to every component
// signal. The returned cleanup detaches the subscriptions; per-breaker
// listeners are released by the breakers' own Destroy.
func NewExporter(
	breakers *biz.CircuitBreakerRegistry,
	engine *biz.AlertEngine,
	monitor *biz.PoolMonitor,
	scheduler *biz.CleanupScheduler,
	logger log.Logger,
) (*Exporter, func()) {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiftguard",
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"breaker", "from", "to"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiftguard",
			Name:      "circuit_rejections_total",
			Help:      "Calls short-circuited without invoking the operation.",
		}, []string{"breaker"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiftguard",
			Name:      "circuit_calls_total",
			Help:      "Completed calls through circuit breakers by outcome.",
		}, []string{"breaker", "outcome"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiftguard",
			Name:      "alerts_fired_total",
			Help:      "Alerts fired by rule and severity.",
		}, []string{"rule", "severity"}),
		poolEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiftguard",
			Name:      "pool_events_total",
			Help:      "Connection pool events by type.",
		}, []string{"type"}),
		cleanupCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shiftguard",
			Name:      "cleanup_cycles_total",
			Help:      "Completed cleanup cycles.",
		}),
		cleanupFreed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shiftguard",
			Name:      "cleanup_memory_freed_bytes",
			Help:      "Cumulative heap bytes released by memory cleanup tasks.",
		}),
		cleanupCache: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "shiftguard",
			Name:      "cleanup_cache_entries_cleared",
			Help:      "Cumulative cache entries cleared by cleanup tasks.",
		}),
		logger: log.NewHelper(logger),
	}

	e.registry.MustRegister(
		e.transitions,
		e.rejections,
		e.calls,
		e.alerts,
		e.poolEvents,
		e.cleanupCycles,
		e.cleanupFreed,
		e.cleanupCache,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	unsubCreated := breakers.OnBreakerCreated.Subscribe(e.observeBreaker)
	unsubAlert := engine.OnAlert.Subscribe(func(a model.Alert) {
		e.alerts.WithLabelValues(a.RuleID, string(a.Severity)).Inc()
	})
	unsubPool := monitor.OnEvent.Subscribe(func(ev model.PoolEvent) {
		e.poolEvents.WithLabelValues(string(ev.Type)).Inc()
	})
	unsubCycle := scheduler.OnCycle.Subscribe(func(m biz.CleanupMetrics) {
		e.cleanupCycles.Inc()
		e.cleanupFreed.Set(float64(m.MemoryFreed))
		e.cleanupCache.Set(float64(m.CacheEntriesCleared))
	})

	cleanup := func() {
		unsubCreated()
		unsubAlert()
		unsubPool()
		unsubCycle()
	}
	return e, cleanup
}

// observeBreaker attaches the per-breaker counters to a newly created
// breaker.
func (e *Exporter) observeBreaker(b *biz.CircuitBreaker) {
	name := b.Name()

	b.OnStateChange.Subscribe(func(ev model.StateChangeEvent) {
		e.transitions.WithLabelValues(ev.Breaker, ev.From.String(), ev.To.String()).Inc()
	})
	b.OnRejected.Subscribe(func(r model.Rejection) {
		e.rejections.WithLabelValues(r.Breaker).Inc()
	})
	b.OnSuccess.Subscribe(func(o model.CallOutcome) {
		e.calls.WithLabelValues(o.Breaker, "success").Inc()
	})
	b.OnFailure.Subscribe(func(o model.CallOutcome) {
		e.calls.WithLabelValues(o.Breaker, "failure").Inc()
	})

	e.logger.Debugw("metrics attached to circuit breaker", "breaker", name)
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() nethttp.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
