package receipt

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentKind tags which variant a NormalizedDocument carries
type DocumentKind string

const (
	DocumentKindReceipt           DocumentKind = "receipt"
	DocumentKindPlatformStatement DocumentKind = "platform_statement"
)

// IsValid checks if the kind is a known DocumentKind
func (k DocumentKind) IsValid() bool {
	return k == DocumentKindReceipt || k == DocumentKindPlatformStatement
}

// NormalizedDocument is the extractor output after normalization.
// Exactly one variant pointer matching Kind is set.
type NormalizedDocument struct {
	Kind              DocumentKind             `json:"kind"`
	Receipt           *ReceiptFields           `json:"receipt,omitempty"`
	PlatformStatement *PlatformStatementFields `json:"platformStatement,omitempty"`
}

// ReceiptFields are the fields read off a purchase receipt. Nil means the extractor could not read it.
type ReceiptFields struct {
	Date     *time.Time       `json:"date,omitempty"`
	Vendor   string           `json:"vendor,omitempty"`
	Total    *decimal.Decimal `json:"total,omitempty"`
	Tax      *decimal.Decimal `json:"tax,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Category string           `json:"category,omitempty"`
}

// PlatformStatementFields are the fields read off a gig platform income statement
type PlatformStatementFields struct {
	Provider  string                  `json:"provider"`
	PeriodKey string                  `json:"periodKey"`
	Lines     []PlatformStatementLine `json:"lines"`
}

// PlatformStatementLine is one described amount on a platform statement
type PlatformStatementLine struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// NewReceiptDocument wraps receipt fields in a NormalizedDocument
func NewReceiptDocument(fields ReceiptFields) NormalizedDocument {
	return NormalizedDocument{Kind: DocumentKindReceipt, Receipt: &fields}
}

// NewPlatformStatementDocument wraps statement fields in a NormalizedDocument
func NewPlatformStatementDocument(fields PlatformStatementFields) NormalizedDocument {
	return NormalizedDocument{Kind: DocumentKindPlatformStatement, PlatformStatement: &fields}
}

// ReceiptFields returns the receipt variant, or false if the document is another kind
func (d NormalizedDocument) ReceiptFields() (ReceiptFields, bool) {
	if d.Kind != DocumentKindReceipt || d.Receipt == nil {
		return ReceiptFields{}, false
	}
	return *d.Receipt, true
}
