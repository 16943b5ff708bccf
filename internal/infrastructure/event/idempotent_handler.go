package event

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/metrics"
	"github.com/livestatement/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// IdempotencyMetrics tracks idempotency-related statistics
type IdempotencyMetrics struct {
	// EventsProcessed is the number of handler runs that succeeded
	EventsProcessed atomic.Int64

	// EventsDuplicate is the number of deliveries skipped because the work already succeeded
	EventsDuplicate atomic.Int64

	// EventsRetried is the number of admitted deliveries that re-ran started or failed work
	EventsRetried atomic.Int64

	// EventsFailed is the number of handler runs that returned an error
	EventsFailed atomic.Int64
}

// Stats returns a snapshot of the current metrics
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		EventsProcessed: m.EventsProcessed.Load(),
		EventsDuplicate: m.EventsDuplicate.Load(),
		EventsRetried:   m.EventsRetried.Load(),
		EventsFailed:    m.EventsFailed.Load(),
	}
}

// IdempotencyStats is a snapshot of idempotency metrics
type IdempotencyStats struct {
	EventsProcessed int64 `json:"events_processed"`
	EventsDuplicate int64 `json:"events_duplicate"`
	EventsRetried   int64 `json:"events_retried"`
	EventsFailed    int64 `json:"events_failed"`
}

// IdempotentHandler runs a handler behind the processing job gate.
// Work keyed by (tenant, job type, dedupe key) that already succeeded is skipped;
// started or failed work runs again.
type IdempotentHandler struct {
	jobType string
	handler shared.EventHandler
	gate    shared.IdempotencyGate
	cache   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *IdempotencyMetrics
}

// IdempotentHandlerOption is a functional option for IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig sets the succeeded-job cache configuration
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithSucceededCache puts a cache of succeeded keys in front of the gate
func WithSucceededCache(store shared.IdempotencyStore) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.cache = store
	}
}

// WithIdempotencyMetrics sets the metrics collector; handlers may share one
func WithIdempotencyMetrics(m *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.metrics = m
	}
}

// NewIdempotentHandler wraps handler so that each unit of work runs to success at most once
func NewIdempotentHandler(
	jobType string,
	handler shared.EventHandler,
	gate shared.IdempotencyGate,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		jobType: jobType,
		handler: handler,
		gate:    gate,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
		metrics: &IdempotencyMetrics{},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// EventTypes returns the event types this handler is interested in
func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// JobType returns the job type the gate records work under
func (h *IdempotentHandler) JobType() string {
	return h.jobType
}

// Handle admits the event through the gate and runs the wrapped handler when required
func (h *IdempotentHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	tenantID := event.TenantID()
	dedupeKey := event.DedupeKey()
	fields := []zap.Field{
		zap.String("job_type", h.jobType),
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("dedupe_key", dedupeKey),
		zap.String("correlation_id", event.CorrelationID()),
	}

	cacheKey := h.cacheKey(event)
	if h.cacheEnabled() {
		done, err := h.cache.IsProcessed(ctx, cacheKey)
		if err != nil {
			h.logger.Warn("succeeded-job cache unavailable, falling back to gate", append(fields, zap.Error(err))...)
		} else if done {
			h.metrics.EventsDuplicate.Add(1)
			metrics.GateCacheHitsTotal.WithLabelValues(h.jobType).Inc()
			h.logger.Debug("duplicate delivery skipped by cache", fields...)
			return nil
		}
	}

	result, err := h.gate.Admit(ctx, tenantID, h.jobType, dedupeKey)
	if err != nil {
		return fmt.Errorf("failed to admit %s: %w", dedupeKey, err)
	}
	metrics.GateDecisionsTotal.WithLabelValues(h.jobType, result.String()).Inc()

	if !result.ShouldRun() {
		h.metrics.EventsDuplicate.Add(1)
		h.logger.Info("work already succeeded, skipping delivery", fields...)
		h.remember(ctx, cacheKey, fields)
		return nil
	}
	if result == shared.Retrying {
		h.metrics.EventsRetried.Add(1)
		h.logger.Info("retrying previously attempted work", fields...)
	}

	ctx, span := telemetry.StartHandlerSpan(ctx, h.jobType, event, result.String())
	defer span.End()

	start := time.Now()
	handleErr := h.handler.Handle(ctx, event)
	metrics.HandlerDuration.WithLabelValues(h.jobType).Observe(time.Since(start).Seconds())

	if handleErr != nil {
		telemetry.RecordError(span, handleErr)
		h.metrics.EventsFailed.Add(1)
		metrics.HandlerFailuresTotal.WithLabelValues(h.jobType).Inc()
		h.logger.Error("event handler failed", append(fields, zap.Error(handleErr))...)

		// Record the failure even if the delivery context was cancelled.
		if err := h.gate.MarkFailed(context.WithoutCancel(ctx), tenantID, h.jobType, dedupeKey, handleErr); err != nil {
			h.logger.Error("failed to record job failure", append(fields, zap.Error(err))...)
			return errors.Join(handleErr, err)
		}
		return handleErr
	}

	if err := h.gate.MarkSucceeded(ctx, tenantID, h.jobType, dedupeKey); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to mark %s succeeded: %w", dedupeKey, err)
	}

	h.metrics.EventsProcessed.Add(1)
	h.remember(ctx, cacheKey, fields)
	h.logger.Debug("event processed successfully", fields...)
	return nil
}

func (h *IdempotentHandler) cacheEnabled() bool {
	return h.cache != nil && h.config.Enabled
}

func (h *IdempotentHandler) cacheKey(event shared.DomainEvent) string {
	return event.TenantID().String() + ":" + h.jobType + ":" + event.DedupeKey()
}

func (h *IdempotentHandler) remember(ctx context.Context, key string, fields []zap.Field) {
	if !h.cacheEnabled() {
		return
	}
	if _, err := h.cache.MarkProcessed(ctx, key, h.config.TTL); err != nil {
		h.logger.Warn("failed to cache succeeded job", append(fields, zap.Error(err))...)
	}
}

// GetMetrics returns the metrics for this handler
func (h *IdempotentHandler) GetMetrics() *IdempotencyMetrics {
	return h.metrics
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
