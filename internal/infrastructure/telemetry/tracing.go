package telemetry

import (
	"context"
	"fmt"

	"github.com/livestatement/backend/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer behind every posting-core span
const TracerName = "livestatement-core"

// Span attribute keys
const (
	SpanAttrTenantID      = "tenant_id"
	SpanAttrEventType     = "event_type"
	SpanAttrCorrelationID = "correlation_id"
	SpanAttrDedupeKey     = "dedupe_key"
	SpanAttrJobType       = "job_type"
	SpanAttrGateResult    = "gate_result"
	SpanAttrEntryID       = "ledger_entry_id"
	SpanAttrSourceType    = "source_type"
	SpanAttrSourceID      = "source_id"
	SpanAttrPeriodKey     = "period_key"
	SpanAttrProvider      = "provider"
)

// SpanOption configures a span started with StartSpan
type SpanOption func(*spanOptions)

type spanOptions struct {
	attributes []attribute.KeyValue
	kind       trace.SpanKind
}

// WithAttribute adds an attribute to the span
func WithAttribute(key string, value any) SpanOption {
	return func(o *spanOptions) {
		o.attributes = append(o.attributes, toAttribute(key, value))
	}
}

// WithSpanKind sets the span kind; spans are internal by default
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(o *spanOptions) {
		o.kind = kind
	}
}

// StartSpan starts a span on the global provider. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, trace.Span) {
	o := &spanOptions{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(o)
	}
	start := []trace.SpanStartOption{trace.WithSpanKind(o.kind)}
	if len(o.attributes) > 0 {
		start = append(start, trace.WithAttributes(o.attributes...))
	}
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, name, start...)
}

// StartHandlerSpan starts the consumer span for one admitted handler run,
// named handler.<jobType> and tagged with the envelope's routing fields
func StartHandlerSpan(ctx context.Context, jobType string, evt shared.DomainEvent, gateResult string) (context.Context, trace.Span) {
	return StartSpan(ctx, "handler."+jobType,
		WithSpanKind(trace.SpanKindConsumer),
		WithAttribute(SpanAttrJobType, jobType),
		WithAttribute(SpanAttrEventType, evt.EventType()),
		WithAttribute(SpanAttrTenantID, evt.TenantID().String()),
		WithAttribute(SpanAttrDedupeKey, evt.DedupeKey()),
		WithAttribute(SpanAttrCorrelationID, evt.CorrelationID()),
		WithAttribute(SpanAttrGateResult, gateResult),
	)
}

// SetAttribute sets one attribute on span; a nil span is ignored
func SetAttribute(span trace.Span, key string, value any) {
	if span == nil {
		return
	}
	span.SetAttributes(toAttribute(key, value))
}

// RecordError records err on span and marks it failed
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
