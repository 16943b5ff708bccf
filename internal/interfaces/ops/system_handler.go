package ops

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livestatement/backend/internal/infrastructure/event"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping() error
}

// PingerFunc adapts a function to Pinger
type PingerFunc func() error

// Ping calls f
func (f PingerFunc) Ping() error { return f() }

// SystemHandler serves liveness, readiness and build information
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	startTime time.Time
	checks    map[string]Pinger
	gateStats func() map[string]event.IdempotencyStats
}

// SystemHandlerOption is a functional option for SystemHandler
type SystemHandlerOption func(*SystemHandler)

// WithGateStats reports the per job type gate counters from fn
func WithGateStats(fn func() map[string]event.IdempotencyStats) SystemHandlerOption {
	return func(h *SystemHandler) {
		h.gateStats = fn
	}
}

// NewSystemHandler creates a new SystemHandler. Every check must pass for the
// process to report ready.
func NewSystemHandler(name, version string, checks map[string]Pinger, opts ...SystemHandlerOption) *SystemHandler {
	h := &SystemHandler{
		name:      name,
		version:   version,
		startTime: time.Now(),
		checks:    checks,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SystemInfoResponse describes the running process
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// ReadinessResponse lists each dependency check
type ReadinessResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// Healthz answers as long as the process serves HTTP.
// GET /healthz
func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz runs the dependency checks.
// GET /readyz
func (h *SystemHandler) Readyz(c *gin.Context) {
	resp := ReadinessResponse{Ready: true, Checks: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check.Ping(); err != nil {
			resp.Ready = false
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	if !resp.Ready {
		c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Data:    resp,
			Error:   &ErrorInfo{Code: ErrCodeUnavailable, Message: "Dependency check failed", RequestID: getRequestID(c)},
		})
		return
	}
	h.Success(c, resp)
}

// GetSystemInfo returns name, version and uptime.
// GET /ops/system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// GetGateStats returns processed, duplicate, retried and failed counts per job type
// since the process started.
// GET /ops/system/gate
func (h *SystemHandler) GetGateStats(c *gin.Context) {
	stats := map[string]event.IdempotencyStats{}
	if h.gateStats != nil {
		stats = h.gateStats()
	}
	h.Success(c, stats)
}

// ContextPinger wraps a context-aware check with a timeout
func ContextPinger(timeout time.Duration, fn func(ctx context.Context) error) Pinger {
	return PingerFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return fn(ctx)
	})
}
