package event

import (
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/reconciliation"
)

// RegisterAllEvents registers every envelope type the core produces or consumes.
// Anything not registered here is rejected by consumers as an unknown type.
func RegisterAllEvents(serializer *EventSerializer) {
	// Receipt pipeline
	serializer.Register(receipt.EventTypeReceiptReceived, &receipt.ReceiptReceivedEvent{})
	serializer.Register(receipt.EventTypeReceiptExtracted, &receipt.ReceiptExtractedEvent{})
	serializer.Register(receipt.EventTypeReceiptReady, &receipt.ReceiptReadyEvent{})
	serializer.Register(receipt.EventTypeReceiptHold, &receipt.ReceiptHoldEvent{})

	// Ledger
	serializer.Register(ledger.EventTypeLedgerPosted, &ledger.LedgerPostedEvent{})

	// Reconciliation
	serializer.Register(reconciliation.EventTypeReconciliationCompleted, &reconciliation.ReconciliationCompletedEvent{})
}
