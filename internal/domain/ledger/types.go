package ledger

// SourceType identifies what kind of business fact an entry was posted from
type SourceType string

const (
	SourceTypeReceipt        SourceType = "RECEIPT"
	SourceTypeManual         SourceType = "MANUAL"
	SourceTypeAdjustment     SourceType = "ADJUSTMENT"
	SourceTypeReconciliation SourceType = "RECONCILIATION"
)

// IsValid checks if the source type is a valid SourceType
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeReceipt, SourceTypeManual, SourceTypeAdjustment, SourceTypeReconciliation:
		return true
	}
	return false
}

// String returns the string representation of SourceType
func (s SourceType) String() string {
	return string(s)
}

// PostedByType identifies who caused an entry to be posted
type PostedByType string

const (
	PostedByDriver PostedByType = "DRIVER"
	PostedByAdmin  PostedByType = "ADMIN"
	PostedBySystem PostedByType = "SYSTEM"
)

// IsValid checks if the value is a valid PostedByType
func (p PostedByType) IsValid() bool {
	switch p {
	case PostedByDriver, PostedByAdmin, PostedBySystem:
		return true
	}
	return false
}

// EvidenceStatus says whether an entry is backed by a document or estimated
type EvidenceStatus string

const (
	EvidenceEvidenced EvidenceStatus = "EVIDENCED"
	EvidenceEstimated EvidenceStatus = "ESTIMATED"
)

// IsValid checks if the status is a valid EvidenceStatus
func (e EvidenceStatus) IsValid() bool {
	return e == EvidenceEvidenced || e == EvidenceEstimated
}

// LineType classifies a ledger line for reporting
type LineType string

const (
	LineTypeIncome       LineType = "INCOME"
	LineTypeFee          LineType = "FEE"
	LineTypeExpense      LineType = "EXPENSE"
	LineTypeTaxCollected LineType = "TAX_COLLECTED"
	LineTypeItc          LineType = "ITC"
	LineTypeOther        LineType = "OTHER"
)

// IsValid checks if the line type is a valid LineType
func (l LineType) IsValid() bool {
	switch l {
	case LineTypeIncome, LineTypeFee, LineTypeExpense, LineTypeTaxCollected, LineTypeItc, LineTypeOther:
		return true
	}
	return false
}

// String returns the string representation of LineType
func (l LineType) String() string {
	return string(l)
}

// SourceLinkKind identifies what a provenance link points at
type SourceLinkKind string

const (
	SourceLinkReceipt                SourceLinkKind = "RECEIPT"
	SourceLinkReceiptFile            SourceLinkKind = "RECEIPT_FILE"
	SourceLinkStatementLine          SourceLinkKind = "STATEMENT_LINE"
	SourceLinkReconciliationVariance SourceLinkKind = "RECONCILIATION_VARIANCE"
	SourceLinkReversedEntry          SourceLinkKind = "REVERSED_ENTRY"
)

// IsValid checks if the kind is a valid SourceLinkKind
func (k SourceLinkKind) IsValid() bool {
	switch k {
	case SourceLinkReceipt, SourceLinkReceiptFile, SourceLinkStatementLine,
		SourceLinkReconciliationVariance, SourceLinkReversedEntry:
		return true
	}
	return false
}
