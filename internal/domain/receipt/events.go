package receipt

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
)

// Event types emitted by the receipt pipeline
const (
	EventTypeReceiptReceived  = "receipt.received.v1"
	EventTypeReceiptExtracted = "receipt.extracted.v1"
	EventTypeReceiptReady     = "receipt.ready.v1"
	EventTypeReceiptHold      = "receipt.hold.v1"
)

// ReceiptReceived is emitted when a receipt is submitted for extraction
type ReceiptReceived struct {
	ReceiptID    uuid.UUID `json:"receiptId"`
	FileObjectID uuid.UUID `json:"fileObjectId"`
	Submission   int       `json:"submission"`
}

// SourceKey scopes extraction to one submission of the receipt
func (p ReceiptReceived) SourceKey() string {
	return submissionKey(p.ReceiptID, p.Submission)
}

// ReceiptExtracted is emitted after every successful extraction, for analytics only
type ReceiptExtracted struct {
	ReceiptID    uuid.UUID `json:"receiptId"`
	FileObjectID uuid.UUID `json:"fileObjectId"`
	Submission   int       `json:"submission"`
	Confidence   float64   `json:"confidence"`
	IsHold       bool      `json:"isHold"`
	HoldReason   string    `json:"holdReason,omitempty"`
}

// SourceKey scopes the event to one submission of the receipt
func (p ReceiptExtracted) SourceKey() string {
	return submissionKey(p.ReceiptID, p.Submission)
}

// ReceiptReady is emitted when a receipt may be posted to the ledger
type ReceiptReady struct {
	ReceiptID    uuid.UUID `json:"receiptId"`
	FileObjectID uuid.UUID `json:"fileObjectId"`
	Confidence   float64   `json:"confidence"`
}

// SourceKey is the receipt id; a receipt is posted at most once
func (p ReceiptReady) SourceKey() string {
	return p.ReceiptID.String()
}

// ReceiptHold is emitted when a receipt needs human review before posting
type ReceiptHold struct {
	ReceiptID     uuid.UUID `json:"receiptId"`
	FileObjectID  uuid.UUID `json:"fileObjectId"`
	Submission    int       `json:"submission"`
	Confidence    float64   `json:"confidence"`
	HoldReason    string    `json:"holdReason"`
	QuestionsJSON string    `json:"questionsJson"`
}

// SourceKey scopes the event to one submission of the receipt
func (p ReceiptHold) SourceKey() string {
	return submissionKey(p.ReceiptID, p.Submission)
}

// Envelope aliases
type (
	ReceiptReceivedEvent  = shared.MessageEnvelope[ReceiptReceived]
	ReceiptExtractedEvent = shared.MessageEnvelope[ReceiptExtracted]
	ReceiptReadyEvent     = shared.MessageEnvelope[ReceiptReady]
	ReceiptHoldEvent      = shared.MessageEnvelope[ReceiptHold]
)

func submissionKey(receiptID uuid.UUID, submission int) string {
	if submission <= 1 {
		return receiptID.String()
	}
	return fmt.Sprintf("%s#%d", receiptID, submission)
}

// NewReceiptReceivedEvent creates a receipt.received.v1 envelope
func NewReceiptReceivedEvent(r *Receipt, correlationID string) *ReceiptReceivedEvent {
	return shared.NewEnvelope(EventTypeReceiptReceived, r.TenantID, correlationID, ReceiptReceived{
		ReceiptID:    r.ID,
		FileObjectID: r.FileObjectID,
		Submission:   r.Submission,
	})
}

// NewReceiptExtractedEvent creates a receipt.extracted.v1 envelope
func NewReceiptExtractedEvent(r *Receipt, confidence float64, decision Decision, correlationID string) *ReceiptExtractedEvent {
	return shared.NewEnvelope(EventTypeReceiptExtracted, r.TenantID, correlationID, ReceiptExtracted{
		ReceiptID:    r.ID,
		FileObjectID: r.FileObjectID,
		Submission:   r.Submission,
		Confidence:   confidence,
		IsHold:       decision.IsHold(),
		HoldReason:   decision.Reason,
	})
}

// NewReceiptReadyEvent creates a receipt.ready.v1 envelope
func NewReceiptReadyEvent(r *Receipt, confidence float64, correlationID string) *ReceiptReadyEvent {
	return shared.NewEnvelope(EventTypeReceiptReady, r.TenantID, correlationID, ReceiptReady{
		ReceiptID:    r.ID,
		FileObjectID: r.FileObjectID,
		Confidence:   confidence,
	})
}

// NewReceiptHoldEvent creates a receipt.hold.v1 envelope
func NewReceiptHoldEvent(r *Receipt, confidence float64, decision Decision, correlationID string) *ReceiptHoldEvent {
	return shared.NewEnvelope(EventTypeReceiptHold, r.TenantID, correlationID, ReceiptHold{
		ReceiptID:     r.ID,
		FileObjectID:  r.FileObjectID,
		Submission:    r.Submission,
		Confidence:    confidence,
		HoldReason:    decision.Reason,
		QuestionsJSON: decision.QuestionsJSON(),
	})
}
