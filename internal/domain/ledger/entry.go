package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// LedgerEntry is an immutable posting of one business fact.
// There is at most one entry per (tenant, source type, source id).
type LedgerEntry struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	EntryDate      time.Time
	SourceType     SourceType
	SourceID       uuid.UUID
	PostedByType   PostedByType
	PostedByID     *uuid.UUID
	CorrelationID  string
	Evidence       EvidenceStatus
	Description    string
	IdempotencyKey string
	ReverseEntryID *uuid.UUID
	Lines          []LedgerLine
	SourceLinks    []SourceLink
	CreatedAt      time.Time
}

// LedgerLine is one amount within an entry. Amounts are positive in their
// natural direction; reversal lines carry the negated amounts.
type LedgerLine struct {
	ID            uuid.UUID
	EntryID       uuid.UUID
	TenantID      uuid.UUID
	LineNo        int
	Category      string
	LineType      LineType
	Amount        decimal.Decimal
	GstHst        decimal.Decimal
	DeductiblePct decimal.Decimal
	Description   string
}

// SourceLink records where an entry's numbers came from
type SourceLink struct {
	ID          uuid.UUID
	EntryID     uuid.UUID
	TenantID    uuid.UUID
	Kind        SourceLinkKind
	ReferenceID uuid.UUID
}

// LineSpec describes a line to be posted
type LineSpec struct {
	Category      string
	LineType      LineType
	Amount        decimal.Decimal
	GstHst        decimal.Decimal
	DeductiblePct *decimal.Decimal
	Description   string
}

// LinkSpec describes a provenance link to be posted
type LinkSpec struct {
	Kind        SourceLinkKind
	ReferenceID uuid.UUID
}

// EntrySpec holds everything needed to post an entry
type EntrySpec struct {
	TenantID       uuid.UUID
	EntryDate      time.Time
	SourceType     SourceType
	SourceID       uuid.UUID
	PostedByType   PostedByType
	PostedByID     *uuid.UUID
	CorrelationID  string
	Evidence       EvidenceStatus
	Description    string
	IdempotencyKey string
	ReverseEntryID *uuid.UUID
	Lines          []LineSpec
	Links          []LinkSpec
}

var one = decimal.NewFromInt(1)

// NewLedgerEntry validates a spec and builds the entry with its lines and links
func NewLedgerEntry(spec EntrySpec) (*LedgerEntry, error) {
	if spec.TenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !spec.SourceType.IsValid() {
		return nil, shared.NewDomainError("INVALID_SOURCE_TYPE", "Source type is not valid")
	}
	if spec.SourceID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SOURCE", "Source ID cannot be empty")
	}
	if spec.EntryDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_ENTRY_DATE", "Entry date is required")
	}
	if !spec.PostedByType.IsValid() {
		return nil, shared.NewDomainError("INVALID_POSTED_BY", "Posted-by type is not valid")
	}
	if spec.Evidence == "" {
		spec.Evidence = EvidenceEvidenced
	}
	if !spec.Evidence.IsValid() {
		return nil, shared.NewDomainError("INVALID_EVIDENCE", "Evidence status is not valid")
	}
	if len(spec.Lines) == 0 {
		return nil, shared.NewDomainError("INVALID_LINES", "Ledger entry requires at least one line")
	}
	if spec.ReverseEntryID != nil && spec.SourceType != SourceTypeAdjustment {
		return nil, shared.NewDomainError("INVALID_REVERSAL", "Only adjustments can reverse an entry")
	}

	entry := &LedgerEntry{
		ID:             uuid.New(),
		TenantID:       spec.TenantID,
		EntryDate:      truncateToDay(spec.EntryDate),
		SourceType:     spec.SourceType,
		SourceID:       spec.SourceID,
		PostedByType:   spec.PostedByType,
		PostedByID:     spec.PostedByID,
		CorrelationID:  spec.CorrelationID,
		Evidence:       spec.Evidence,
		Description:    strings.TrimSpace(spec.Description),
		IdempotencyKey: spec.IdempotencyKey,
		ReverseEntryID: spec.ReverseEntryID,
		CreatedAt:      time.Now().UTC(),
	}

	for i, ls := range spec.Lines {
		if !ls.LineType.IsValid() {
			return nil, shared.NewDomainError("INVALID_LINE_TYPE",
				fmt.Sprintf("Line %d has an invalid line type", i+1))
		}
		pct := one
		if ls.DeductiblePct != nil {
			pct = *ls.DeductiblePct
		}
		if pct.IsNegative() || pct.GreaterThan(one) {
			return nil, shared.NewDomainError("INVALID_DEDUCTIBLE_PCT",
				fmt.Sprintf("Line %d deductible percentage must be between 0 and 1", i+1))
		}
		entry.Lines = append(entry.Lines, LedgerLine{
			ID:            uuid.New(),
			EntryID:       entry.ID,
			TenantID:      entry.TenantID,
			LineNo:        i + 1,
			Category:      ls.Category,
			LineType:      ls.LineType,
			Amount:        ls.Amount,
			GstHst:        ls.GstHst,
			DeductiblePct: pct,
			Description:   ls.Description,
		})
	}

	for _, lk := range spec.Links {
		if !lk.Kind.IsValid() || lk.ReferenceID == uuid.Nil {
			return nil, shared.NewDomainError("INVALID_SOURCE_LINK", "Source link is not valid")
		}
		entry.SourceLinks = append(entry.SourceLinks, SourceLink{
			ID:          uuid.New(),
			EntryID:     entry.ID,
			TenantID:    entry.TenantID,
			Kind:        lk.Kind,
			ReferenceID: lk.ReferenceID,
		})
	}

	return entry, nil
}

// ReversalLines returns line specs that cancel this entry's lines
func (e *LedgerEntry) ReversalLines() []LineSpec {
	specs := make([]LineSpec, 0, len(e.Lines))
	for _, l := range e.Lines {
		pct := l.DeductiblePct
		specs = append(specs, LineSpec{
			Category:      l.Category,
			LineType:      l.LineType,
			Amount:        l.Amount.Neg(),
			GstHst:        l.GstHst.Neg(),
			DeductiblePct: &pct,
			Description:   "Reversal: " + l.Description,
		})
	}
	return specs
}

// Total sums the line amounts of the given type
func (e *LedgerEntry) Total(lineType LineType) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range e.Lines {
		if l.LineType == lineType {
			sum = sum.Add(l.Amount)
		}
	}
	return sum
}

// IsReversal returns true if the entry cancels another entry
func (e *LedgerEntry) IsReversal() bool {
	return e.ReverseEntryID != nil
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// manualNamespace scopes caller-supplied idempotency keys
var manualNamespace = uuid.MustParse("5b0f3c8e-8f0a-4d55-9a53-8d7c6f1e2a41")

// SourceIDForKey derives a stable source id from a caller idempotency key,
// so retries of the same manual or adjustment request land on the same source.
func SourceIDForKey(tenantID uuid.UUID, sourceType SourceType, key string) uuid.UUID {
	return uuid.NewSHA1(manualNamespace, []byte(tenantID.String()+":"+string(sourceType)+":"+key))
}

// ReceiptLines splits a confirmed receipt into an expense line and an ITC line.
// Expense is (total - tax) scaled by the deductible share; ITC is the full tax, possibly zero.
func ReceiptLines(total, tax, deductiblePct decimal.Decimal, category, vendor string) []LineSpec {
	net := total.Sub(tax)
	pct := deductiblePct
	expense := net.Mul(pct).Round(2)
	desc := strings.TrimSpace(vendor)
	if desc == "" {
		desc = "Receipt"
	}
	full := one
	return []LineSpec{
		{
			Category:      category,
			LineType:      LineTypeExpense,
			Amount:        expense,
			GstHst:        tax,
			DeductiblePct: &pct,
			Description:   desc,
		},
		{
			Category:      category,
			LineType:      LineTypeItc,
			Amount:        tax,
			DeductiblePct: &full,
			Description:   "GST/HST input tax credit: " + desc,
		},
	}
}
