package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
)

// EventTypeLedgerPosted is emitted once per newly created ledger entry
const EventTypeLedgerPosted = "ledger.posted.v1"

// LedgerPosted announces a new ledger entry
type LedgerPosted struct {
	LedgerEntryID uuid.UUID  `json:"ledgerEntryId"`
	SourceType    SourceType `json:"sourceType"`
	SourceID      uuid.UUID  `json:"sourceId"`
	EntryDate     time.Time  `json:"entryDate"`
}

// SourceKey is the entry id
func (p LedgerPosted) SourceKey() string {
	return p.LedgerEntryID.String()
}

// LedgerPostedEvent is the ledger.posted.v1 envelope
type LedgerPostedEvent = shared.MessageEnvelope[LedgerPosted]

// NewLedgerPostedEvent creates a ledger.posted.v1 envelope for an entry
func NewLedgerPostedEvent(e *LedgerEntry) *LedgerPostedEvent {
	return shared.NewEnvelope(EventTypeLedgerPosted, e.TenantID, e.CorrelationID, LedgerPosted{
		LedgerEntryID: e.ID,
		SourceType:    e.SourceType,
		SourceID:      e.SourceID,
		EntryDate:     e.EntryDate,
	})
}
