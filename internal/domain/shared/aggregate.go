package shared

import (
	"time"

	"github.com/google/uuid"
)

// TenantAggregateRoot is embedded by the mutable, tenant-owned aggregates (receipts).
// Version guards concurrent saves; pending events are flushed to the outbox by the
// transaction that persists the aggregate. Ledger entries do not embed it: they are
// written once and never versioned.
type TenantAggregateRoot struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time

	pending []DomainEvent
}

// NewTenantAggregateRoot creates a version 1 root owned by tenantID
func NewTenantAggregateRoot(tenantID uuid.UUID) TenantAggregateRoot {
	now := time.Now().UTC()
	return TenantAggregateRoot{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Raise queues an event to be recorded with the next save
func (a *TenantAggregateRoot) Raise(event DomainEvent) {
	a.pending = append(a.pending, event)
}

// PendingEvents returns the events raised since the last save
func (a *TenantAggregateRoot) PendingEvents() []DomainEvent {
	return a.pending
}

// ClearPendingEvents drops raised events once they have been recorded
func (a *TenantAggregateRoot) ClearPendingEvents() {
	a.pending = nil
}
