package server

import (
	"context"
	"strconv"

	"ShiftGuard/internal/biz"
	"ShiftGuard/internal/conf"
	"ShiftGuard/internal/metrics"
	"ShiftGuard/internal/server/middleware"
	"ShiftGuard/internal/service"
	pkglog "ShiftGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server exposing the ops API and the
// Prometheus scrape endpoint.
func NewHTTPServer(
	c *conf.Server,
	ops *service.OpsService,
	limiters *biz.RateLimiterRegistry,
	engine *biz.AlertEngine,
	exporter *metrics.Exporter,
	logger log.Logger,
) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.RateLimit(limiters, engine, logHelper),
			middleware.Logging(engine, logHelper),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	registerOpsRoutes(srv, ops)
	srv.Handle("/metrics", exporter.Handler())

	return srv
}

// forceRequest is the body of POST /ops/circuits/{name}/force.
type forceRequest struct {
	Action string `json:"action"`
}

// ackRequest is the body of POST /ops/alerts/{id}/ack.
type ackRequest struct {
	By string `json:"by"`
}

type opsHandler struct {
	ops *service.OpsService
}

func registerOpsRoutes(srv *http.Server, ops *service.OpsService) {
	h := &opsHandler{ops: ops}

	r := srv.Route("/")
	r.GET("/ops/circuits", h.listCircuits)
	r.POST("/ops/circuits/reset", h.resetAllCircuits)
	r.POST("/ops/circuits/{name}/reset", h.resetCircuit)
	r.POST("/ops/circuits/{name}/force", h.forceCircuit)
	r.GET("/ops/alerts", h.listAlerts)
	r.POST("/ops/alerts/clear", h.clearAlerts)
	r.POST("/ops/alerts/{id}/ack", h.ackAlert)
	r.GET("/ops/metrics", h.metricsSnapshot)
	r.GET("/ops/pool", h.poolStatus)
	r.POST("/ops/pool/reset", h.resetPool)
	r.POST("/ops/cleanup/run", h.runCleanup)
	r.GET("/ops/cleanup/metrics", h.cleanupMetrics)
	r.GET("/ops/archive/snapshots", h.archivedSnapshots)
	r.GET("/ops/archive/alerts", h.archivedAlerts)
}

// handle funnels a raw route through the server middleware chain so
// recovery, rate limiting, and request logging apply to ops routes too.
func (h *opsHandler) handle(ctx http.Context, operation string, fn func(ctx context.Context) (interface{}, error)) error {
	http.SetOperation(ctx, operation)
	next := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return fn(c)
	})
	out, err := next(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}

// operator resolves the acting operator for the audit trail.
func operator(ctx http.Context) string {
	if op := ctx.Header().Get("X-Operator"); op != "" {
		return op
	}
	return "unknown"
}

// limitParam parses the ?limit query parameter, 0 meaning "default".
func limitParam(ctx http.Context) int {
	limit, _ := strconv.Atoi(ctx.Query().Get("limit"))
	return limit
}

func (h *opsHandler) listCircuits(ctx http.Context) error {
	return h.handle(ctx, "ops.circuits.list", func(c context.Context) (interface{}, error) {
		return h.ops.CircuitStatus(c), nil
	})
}

func (h *opsHandler) resetAllCircuits(ctx http.Context) error {
	actor := operator(ctx)
	return h.handle(ctx, "ops.circuits.reset_all", func(c context.Context) (interface{}, error) {
		h.ops.ResetAllCircuits(c, actor)
		return map[string]string{"status": "ok"}, nil
	})
}

func (h *opsHandler) resetCircuit(ctx http.Context) error {
	name := ctx.Vars().Get("name")
	actor := operator(ctx)
	return h.handle(ctx, "ops.circuits.reset", func(c context.Context) (interface{}, error) {
		if err := h.ops.ResetCircuit(c, name, actor); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	})
}

func (h *opsHandler) forceCircuit(ctx http.Context) error {
	var body forceRequest
	if err := ctx.Bind(&body); err != nil {
		return err
	}
	name := ctx.Vars().Get("name")
	actor := operator(ctx)
	return h.handle(ctx, "ops.circuits.force", func(c context.Context) (interface{}, error) {
		if err := h.ops.ForceCircuit(c, name, body.Action, actor); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	})
}

func (h *opsHandler) listAlerts(ctx http.Context) error {
	includeAcked := ctx.Query().Get("include_acknowledged") == "true"
	return h.handle(ctx, "ops.alerts.list", func(c context.Context) (interface{}, error) {
		return h.ops.Alerts(c, includeAcked), nil
	})
}

func (h *opsHandler) clearAlerts(ctx http.Context) error {
	return h.handle(ctx, "ops.alerts.clear", func(c context.Context) (interface{}, error) {
		h.ops.ClearAlerts(c)
		return map[string]string{"status": "ok"}, nil
	})
}

func (h *opsHandler) ackAlert(ctx http.Context) error {
	// The body is optional; the X-Operator header is the fallback.
	var body ackRequest
	_ = ctx.Bind(&body)
	id := ctx.Vars().Get("id")
	by := body.By
	if by == "" {
		by = operator(ctx)
	}
	return h.handle(ctx, "ops.alerts.ack", func(c context.Context) (interface{}, error) {
		if err := h.ops.AcknowledgeAlert(c, id, by); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	})
}

func (h *opsHandler) metricsSnapshot(ctx http.Context) error {
	return h.handle(ctx, "ops.metrics.snapshot", func(c context.Context) (interface{}, error) {
		return h.ops.MetricsSnapshot(c), nil
	})
}

func (h *opsHandler) poolStatus(ctx http.Context) error {
	return h.handle(ctx, "ops.pool.status", func(c context.Context) (interface{}, error) {
		return h.ops.PoolStatus(c), nil
	})
}

func (h *opsHandler) resetPool(ctx http.Context) error {
	actor := operator(ctx)
	return h.handle(ctx, "ops.pool.reset", func(c context.Context) (interface{}, error) {
		h.ops.ResetPool(c, actor)
		return map[string]string{"status": "ok"}, nil
	})
}

func (h *opsHandler) runCleanup(ctx http.Context) error {
	return h.handle(ctx, "ops.cleanup.run", func(c context.Context) (interface{}, error) {
		ran := h.ops.RunCleanup(c)
		return map[string]int{"tasks_run": ran}, nil
	})
}

func (h *opsHandler) cleanupMetrics(ctx http.Context) error {
	return h.handle(ctx, "ops.cleanup.metrics", func(c context.Context) (interface{}, error) {
		return h.ops.CleanupMetrics(c), nil
	})
}

func (h *opsHandler) archivedSnapshots(ctx http.Context) error {
	limit := limitParam(ctx)
	return h.handle(ctx, "ops.archive.snapshots", func(c context.Context) (interface{}, error) {
		return h.ops.ArchivedSnapshots(c, limit)
	})
}

func (h *opsHandler) archivedAlerts(ctx http.Context) error {
	limit := limitParam(ctx)
	return h.handle(ctx, "ops.archive.alerts", func(c context.Context) (interface{}, error) {
		return h.ops.ArchivedAlerts(c, limit)
	})
}
