package logger

import (
	"context"

	"github.com/livestatement/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey        contextKey = "logger"
	correlationIDKey contextKey = "correlation_id"
	tenantIDKey      contextKey = "tenant_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithEvent enriches logger with the delivery metadata of event and stores
// the correlation and tenant ids on ctx for downstream loggers.
func WithEvent(ctx context.Context, logger *zap.Logger, event shared.DomainEvent) (context.Context, *zap.Logger) {
	enriched := logger.With(EventFields(event)...)
	ctx = context.WithValue(ctx, correlationIDKey, event.CorrelationID())
	ctx = context.WithValue(ctx, tenantIDKey, event.TenantID().String())
	return WithContext(ctx, enriched), enriched
}

// EventFields returns the structured fields every handler log line carries
func EventFields(event shared.DomainEvent) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("tenant_id", event.TenantID().String()),
		zap.String("correlation_id", event.CorrelationID()),
	}
}

// GetCorrelationID retrieves the correlation id stored by WithEvent
func GetCorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// GetTenantID retrieves the tenant id stored by WithEvent
func GetTenantID(ctx context.Context) string {
	id, _ := ctx.Value(tenantIDKey).(string)
	return id
}

// WithTraceContext adds trace_id and span_id from the active span.
// Without a valid span the logger is returned unchanged.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}

// L returns the context logger with trace_id and span_id of the active span.
// Usage: logger.L(ctx).Info("message", zap.String("key", "value"))
func L(ctx context.Context) *zap.Logger {
	return WithTraceContext(ctx, FromContext(ctx))
}
