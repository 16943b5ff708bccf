package receipt

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ReceiptStatus represents where a receipt is in the extraction and posting pipeline
type ReceiptStatus string

const (
	ReceiptStatusDraft             ReceiptStatus = "DRAFT"
	ReceiptStatusSubmitted         ReceiptStatus = "SUBMITTED"
	ReceiptStatusProcessing        ReceiptStatus = "PROCESSING"
	ReceiptStatusExtractionPending ReceiptStatus = "EXTRACTION_PENDING"
	ReceiptStatusHold              ReceiptStatus = "HOLD"
	ReceiptStatusReadyForPosting   ReceiptStatus = "READY_FOR_POSTING"
	ReceiptStatusPosted            ReceiptStatus = "POSTED"
	ReceiptStatusFailed            ReceiptStatus = "FAILED"
)

var receiptTransitions = map[ReceiptStatus][]ReceiptStatus{
	ReceiptStatusDraft:             {ReceiptStatusSubmitted},
	ReceiptStatusSubmitted:         {ReceiptStatusProcessing},
	ReceiptStatusProcessing:        {ReceiptStatusExtractionPending},
	ReceiptStatusExtractionPending: {ReceiptStatusHold, ReceiptStatusReadyForPosting},
	ReceiptStatusHold:              {ReceiptStatusReadyForPosting, ReceiptStatusSubmitted, ReceiptStatusFailed},
	ReceiptStatusReadyForPosting:   {ReceiptStatusPosted},
	ReceiptStatusFailed:            {ReceiptStatusSubmitted},
}

// IsValid checks if the status is a valid ReceiptStatus
func (s ReceiptStatus) IsValid() bool {
	switch s {
	case ReceiptStatusDraft, ReceiptStatusSubmitted, ReceiptStatusProcessing,
		ReceiptStatusExtractionPending, ReceiptStatusHold, ReceiptStatusReadyForPosting,
		ReceiptStatusPosted, ReceiptStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of ReceiptStatus
func (s ReceiptStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether next is a legal successor of s
func (s ReceiptStatus) CanTransitionTo(next ReceiptStatus) bool {
	for _, allowed := range receiptTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Receipt is a purchase receipt moving from upload to a posted ledger entry
type Receipt struct {
	shared.TenantAggregateRoot
	FileObjectID  uuid.UUID
	Status        ReceiptStatus
	Submission    int
	Vendor        string
	ReceiptDate   *time.Time
	Total         decimal.Decimal
	Tax           decimal.Decimal
	Currency      string
	Category      string
	DeductiblePct decimal.Decimal
	Confidence    float64
	WasHeld       bool
	HoldReason    string
	LedgerEntryID *uuid.UUID
	SubmittedAt   *time.Time
	PostedAt      *time.Time
}

// NewReceipt creates a draft receipt for an uploaded file
func NewReceipt(tenantID, fileObjectID uuid.UUID) (*Receipt, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if fileObjectID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_FILE", "File object ID cannot be empty")
	}
	return &Receipt{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		FileObjectID:        fileObjectID,
		Status:              ReceiptStatusDraft,
		DeductiblePct:       decimal.NewFromInt(1),
		Currency:            "CAD",
	}, nil
}

func (r *Receipt) transition(next ReceiptStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot move receipt from %s to %s", r.Status, next))
	}
	r.Status = next
	r.UpdatedAt = time.Now()
	return nil
}

// Submit queues the receipt for extraction. Each submission gets its own
// number so a resubmitted receipt is extracted again.
func (r *Receipt) Submit(correlationID string) error {
	if err := r.transition(ReceiptStatusSubmitted); err != nil {
		return err
	}
	now := time.Now()
	r.Submission++
	r.SubmittedAt = &now
	r.HoldReason = ""
	r.Raise(NewReceiptReceivedEvent(r, correlationID))
	return nil
}

// StartProcessing claims a submitted receipt for extraction
func (r *Receipt) StartProcessing() error {
	return r.transition(ReceiptStatusProcessing)
}

// CompleteExtraction records that extraction evidence exists for this submission
func (r *Receipt) CompleteExtraction(confidence float64) error {
	if err := r.transition(ReceiptStatusExtractionPending); err != nil {
		return err
	}
	r.Confidence = confidence
	return nil
}

// ApplyDecision routes an extracted receipt to Hold or ReadyForPosting.
// Always emits receipt.extracted, plus exactly one of receipt.hold or receipt.ready.
func (r *Receipt) ApplyDecision(doc NormalizedDocument, decision Decision, correlationID string) error {
	if r.Status != ReceiptStatusExtractionPending {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot apply extraction decision to receipt in %s status", r.Status))
	}

	if decision.IsHold() {
		if err := r.transition(ReceiptStatusHold); err != nil {
			return err
		}
		r.WasHeld = true
		r.HoldReason = decision.Reason
		r.Raise(NewReceiptExtractedEvent(r, r.Confidence, decision, correlationID))
		r.Raise(NewReceiptHoldEvent(r, r.Confidence, decision, correlationID))
		return nil
	}

	fields, ok := doc.ReceiptFields()
	if !ok {
		return shared.NewDomainError("INVALID_DOCUMENT", "Passing decision requires receipt fields")
	}
	if err := r.confirm(fields); err != nil {
		return err
	}
	if err := r.transition(ReceiptStatusReadyForPosting); err != nil {
		return err
	}
	r.Raise(NewReceiptExtractedEvent(r, r.Confidence, decision, correlationID))
	r.Raise(NewReceiptReadyEvent(r, r.Confidence, correlationID))
	return nil
}

// Approve releases a held receipt with reviewer-confirmed fields
func (r *Receipt) Approve(fields ReceiptFields, correlationID string) error {
	if r.Status != ReceiptStatusHold {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot approve receipt in %s status", r.Status))
	}
	if err := ValidateConfirmedFields(fields); err != nil {
		return err
	}
	if err := r.confirm(fields); err != nil {
		return err
	}
	if err := r.transition(ReceiptStatusReadyForPosting); err != nil {
		return err
	}
	r.HoldReason = ""
	r.Raise(NewReceiptReadyEvent(r, r.Confidence, correlationID))
	return nil
}

// Reject ends a held receipt without posting
func (r *Receipt) Reject(reason string) error {
	if r.Status != ReceiptStatusHold {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot reject receipt in %s status", r.Status))
	}
	if err := r.transition(ReceiptStatusFailed); err != nil {
		return err
	}
	r.HoldReason = reason
	return nil
}

// MarkPosted links the receipt to the ledger entry created for it
func (r *Receipt) MarkPosted(entryID uuid.UUID) error {
	if entryID == uuid.Nil {
		return shared.NewDomainError("INVALID_ENTRY", "Ledger entry ID cannot be empty")
	}
	if err := r.transition(ReceiptStatusPosted); err != nil {
		return err
	}
	now := time.Now()
	r.LedgerEntryID = &entryID
	r.PostedAt = &now
	return nil
}

// SetDeductiblePct sets the business-use share of the expense
func (r *Receipt) SetDeductiblePct(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(1)) {
		return shared.NewDomainError("INVALID_DEDUCTIBLE_PCT", "Deductible percentage must be between 0 and 1")
	}
	r.DeductiblePct = pct
	r.UpdatedAt = time.Now()
	return nil
}

// NetAmount is the total less tax
func (r *Receipt) NetAmount() decimal.Decimal {
	return r.Total.Sub(r.Tax)
}

// IsReadyForPosting returns true if the receipt can be posted
func (r *Receipt) IsReadyForPosting() bool {
	return r.Status == ReceiptStatusReadyForPosting
}

// IsPosted returns true if a ledger entry exists for the receipt
func (r *Receipt) IsPosted() bool {
	return r.Status == ReceiptStatusPosted
}

func (r *Receipt) confirm(fields ReceiptFields) error {
	if fields.Total == nil || fields.Date == nil {
		return shared.NewDomainError("INVALID_DOCUMENT", "Confirmed receipt requires date and total")
	}
	r.Vendor = strings.TrimSpace(fields.Vendor)
	d := *fields.Date
	r.ReceiptDate = &d
	r.Total = *fields.Total
	r.Tax = decimal.Zero
	if fields.Tax != nil {
		r.Tax = *fields.Tax
	}
	if fields.Currency != "" {
		r.Currency = strings.ToUpper(fields.Currency)
	}
	if fields.Category != "" {
		r.Category = fields.Category
	}
	return nil
}

// ValidateConfirmedFields applies the same structural checks as Evaluate,
// without the confidence rule, to reviewer-supplied fields.
func ValidateConfirmedFields(fields ReceiptFields) error {
	decision := Evaluate(NewReceiptDocument(fields), 1)
	if decision.IsHold() {
		return shared.NewDomainError("INVALID_DOCUMENT", decision.Reason)
	}
	return nil
}
