package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the audit trail
const (
	ActionReceiptSubmitted        = "receipt.submitted"
	ActionReceiptExtracted        = "receipt.extracted"
	ActionReceiptHeld             = "receipt.held"
	ActionReceiptReady            = "receipt.ready"
	ActionReceiptReviewed         = "receipt.reviewed"
	ActionLedgerPosted            = "ledger.posted"
	ActionLedgerReversed          = "ledger.reversed"
	ActionStatementRecorded       = "statement.recorded"
	ActionReconciliationCompleted = "reconciliation.completed"
)

// Event is an append-only record of something the system did
type Event struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Action        string
	EntityType    string
	EntityID      uuid.UUID
	CorrelationID string
	Details       json.RawMessage
	OccurredAt    time.Time
}

// NewEvent builds an audit event. Details that fail to encode are recorded as an empty object.
func NewEvent(tenantID uuid.UUID, action, entityType string, entityID uuid.UUID, correlationID string, details any) *Event {
	raw := json.RawMessage("{}")
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			raw = b
		}
	}
	return &Event{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		CorrelationID: correlationID,
		Details:       raw,
		OccurredAt:    time.Now().UTC(),
	}
}

// Repository appends audit events
type Repository interface {
	Append(ctx context.Context, events ...*Event) error
	FindByEntity(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*Event, error)
}
