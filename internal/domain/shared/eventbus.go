package shared

import "context"

// EventHandler consumes envelopes of the types it lists
type EventHandler interface {
	// Handle processes one envelope. A returned error asks the transport to redeliver.
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the envelope types the handler consumes; empty means all of them
	EventTypes() []string
}

// EventPublisher hands envelopes to a transport or dispatcher
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus dispatches published envelopes to subscribed handlers
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
}
