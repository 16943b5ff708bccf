package event

import (
	"context"
	"errors"
	"fmt"

	"github.com/livestatement/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// InMemoryEventBus dispatches envelopes to the handlers of this process.
// Every matching handler runs even when an earlier one fails; Publish returns
// the joined failures so the relay or JetStream consumer redelivers the envelope,
// and the gate in front of each handler skips the ones that already succeeded.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
}

// Subscribe registers handler for eventTypes, defaulting to the types it declares
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// EventTypes returns the envelope types that have a consumer
func (b *InMemoryEventBus) EventTypes() []string {
	return b.registry.EventTypes()
}

// Publish runs the handlers of each envelope synchronously
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, evt := range events {
		for _, handler := range b.registry.Handlers(evt.EventType()) {
			if err := b.dispatch(ctx, handler, evt); err != nil {
				b.logger.Error("handler failed",
					zap.String("event_type", evt.EventType()),
					zap.String("event_id", evt.EventID().String()),
					zap.String("tenant_id", evt.TenantID().String()),
					zap.String("correlation_id", evt.CorrelationID()),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("%s: %w", evt.EventType(), err))
			}
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, evt shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", evt.EventType()),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, evt)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
