package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents a message that crossed (or will cross) a handler boundary.
// Every event travels inside a MessageEnvelope; delivery metadata is kept apart
// from the payload so consumers can route and deduplicate before decoding data.
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	// OccurredAt is producer wall-clock time. It is informational and never used for ordering.
	OccurredAt() time.Time
	TenantID() uuid.UUID
	CorrelationID() string
	// DedupeKey identifies the unit of work the event triggers, independent of
	// how many times the message is delivered.
	DedupeKey() string
}

// SourceDocument is implemented by payloads that refer to a single source document.
// The returned key scopes deduplication to that document instead of the message.
type SourceDocument interface {
	SourceKey() string
}

// EnvelopeHeader carries the delivery metadata shared by every envelope
type EnvelopeHeader struct {
	MessageID   uuid.UUID `json:"messageId"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"occurredAt"`
	Tenant      uuid.UUID `json:"tenantId"`
	Correlation string    `json:"correlationId"`
}

// EventID returns the message identity
func (h *EnvelopeHeader) EventID() uuid.UUID {
	return h.MessageID
}

// EventType returns the versioned message type, e.g. receipt.received.v1
func (h *EnvelopeHeader) EventType() string {
	return h.Type
}

// OccurredAt returns the producer timestamp
func (h *EnvelopeHeader) OccurredAt() time.Time {
	return h.Timestamp
}

// TenantID returns the tenant the message belongs to
func (h *EnvelopeHeader) TenantID() uuid.UUID {
	return h.Tenant
}

// CorrelationID returns the id threading a flow across handlers
func (h *EnvelopeHeader) CorrelationID() string {
	return h.Correlation
}

// MessageEnvelope wraps a typed payload with delivery metadata
type MessageEnvelope[T any] struct {
	EnvelopeHeader
	Data T `json:"data"`
}

// DedupeKey returns "<type>:<source key>" when the payload names a source document,
// falling back to the message id.
func (e *MessageEnvelope[T]) DedupeKey() string {
	if doc, ok := any(e.Data).(SourceDocument); ok {
		if key := doc.SourceKey(); key != "" {
			return e.Type + ":" + key
		}
	}
	return e.Type + ":" + e.MessageID.String()
}

// NewEnvelope creates an envelope with a fresh message id.
// An empty correlation id starts a new flow keyed by the message id.
func NewEnvelope[T any](eventType string, tenantID uuid.UUID, correlationID string, data T) *MessageEnvelope[T] {
	id := uuid.New()
	if correlationID == "" {
		correlationID = id.String()
	}
	return &MessageEnvelope[T]{
		EnvelopeHeader: EnvelopeHeader{
			MessageID:   id,
			Type:        eventType,
			Timestamp:   time.Now().UTC(),
			Tenant:      tenantID,
			Correlation: correlationID,
		},
		Data: data,
	}
}
