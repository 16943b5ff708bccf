package ops

import (
	"github.com/gin-gonic/gin"
	"github.com/livestatement/backend/internal/infrastructure/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// Handlers groups the handlers mounted by NewRouter. Nil handlers are skipped.
type Handlers struct {
	System *SystemHandler
	Outbox *OutboxHandler
	Ledger *LedgerHandler
}

// RouterOption is a functional option for NewRouter
type RouterOption func(*routerOptions)

type routerOptions struct {
	tracingService string
}

// WithTracing adds otelgin server spans named after service
func WithTracing(service string) RouterOption {
	return func(o *routerOptions) {
		o.tracingService = service
	}
}

// NewRouter builds the ops engine
func NewRouter(h Handlers, log *zap.Logger, opts ...RouterOption) *gin.Engine {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	engine := gin.New()
	engine.Use(logger.Recovery(log), RequestID())
	if o.tracingService != "" {
		engine.Use(otelgin.Middleware(o.tracingService))
	}
	engine.Use(logger.GinMiddleware(log))

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.System != nil {
		engine.GET("/healthz", h.System.Healthz)
		engine.GET("/readyz", h.System.Readyz)
		engine.GET("/ops/system/info", h.System.GetSystemInfo)
		engine.GET("/ops/system/gate", h.System.GetGateStats)
	}

	if h.Outbox != nil {
		outbox := engine.Group("/ops/outbox")
		outbox.GET("/dead", h.Outbox.GetDeadLetterEntries)
		outbox.POST("/dead/retry-all", h.Outbox.RetryAllDeadEntries)
		outbox.GET("/stats", h.Outbox.GetStats)
		outbox.GET("/entries/:id", h.Outbox.GetEntry)
		outbox.POST("/entries/:id/retry", h.Outbox.RetryDeadEntry)
	}

	tenants := engine.Group("/ops/tenants/:tenant")
	if h.Outbox != nil {
		tenants.GET("/jobs/failed", h.Outbox.GetFailedJobs)
	}
	if h.Ledger != nil {
		tenants.GET("/snapshots/:periodType/:periodKey", h.Ledger.GetSnapshot)
		tenants.GET("/reconciliations/:provider/:year", h.Ledger.GetRun)
		tenants.GET("/reviews", h.Ledger.ListOpenReviews)
		tenants.GET("/reviews/:receipt", h.Ledger.GetReview)
		tenants.GET("/receipts", h.Ledger.ListReceipts)
	}

	return engine
}
