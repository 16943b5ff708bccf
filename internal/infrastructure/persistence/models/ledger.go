package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// LedgerEntryModel is an immutable ledger entry row.
// The unique index on (tenant_id, source_type, source_id) enforces one entry per source.
type LedgerEntryModel struct {
	ID             uuid.UUID             `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:uq_ledger_entry_source,priority:1;index:idx_ledger_entry_date,priority:1"`
	EntryDate      time.Time             `gorm:"type:date;not null;index:idx_ledger_entry_date,priority:2"`
	SourceType     ledger.SourceType     `gorm:"type:varchar(20);not null;uniqueIndex:uq_ledger_entry_source,priority:2"`
	SourceID       uuid.UUID             `gorm:"type:uuid;not null;uniqueIndex:uq_ledger_entry_source,priority:3"`
	PostedByType   ledger.PostedByType   `gorm:"type:varchar(20);not null"`
	PostedByID     *uuid.UUID            `gorm:"type:uuid"`
	CorrelationID  string                `gorm:"type:varchar(255);not null;default:''"`
	Evidence       ledger.EvidenceStatus `gorm:"type:varchar(20);not null"`
	Description    string                `gorm:"type:text"`
	IdempotencyKey string                `gorm:"type:varchar(255)"`
	ReverseEntryID *uuid.UUID            `gorm:"type:uuid;index"`
	CreatedAt      time.Time             `gorm:"not null"`

	Lines       []LedgerLineModel       `gorm:"foreignKey:EntryID;references:ID"`
	SourceLinks []LedgerSourceLinkModel `gorm:"foreignKey:EntryID;references:ID"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}

// ToDomain converts the persistence model to a domain LedgerEntry
func (m *LedgerEntryModel) ToDomain() *ledger.LedgerEntry {
	e := &ledger.LedgerEntry{
		ID:             m.ID,
		TenantID:       m.TenantID,
		EntryDate:      m.EntryDate.UTC(),
		SourceType:     m.SourceType,
		SourceID:       m.SourceID,
		PostedByType:   m.PostedByType,
		PostedByID:     m.PostedByID,
		CorrelationID:  m.CorrelationID,
		Evidence:       m.Evidence,
		Description:    m.Description,
		IdempotencyKey: m.IdempotencyKey,
		ReverseEntryID: m.ReverseEntryID,
		CreatedAt:      m.CreatedAt,
	}
	for i := range m.Lines {
		e.Lines = append(e.Lines, m.Lines[i].ToDomain())
	}
	for i := range m.SourceLinks {
		e.SourceLinks = append(e.SourceLinks, m.SourceLinks[i].ToDomain())
	}
	return e
}

// LedgerEntryModelFromDomain creates a new persistence model, lines and links included
func LedgerEntryModelFromDomain(e *ledger.LedgerEntry) *LedgerEntryModel {
	m := &LedgerEntryModel{
		ID:             e.ID,
		TenantID:       e.TenantID,
		EntryDate:      e.EntryDate,
		SourceType:     e.SourceType,
		SourceID:       e.SourceID,
		PostedByType:   e.PostedByType,
		PostedByID:     e.PostedByID,
		CorrelationID:  e.CorrelationID,
		Evidence:       e.Evidence,
		Description:    e.Description,
		IdempotencyKey: e.IdempotencyKey,
		ReverseEntryID: e.ReverseEntryID,
		CreatedAt:      e.CreatedAt,
	}
	for _, l := range e.Lines {
		m.Lines = append(m.Lines, LedgerLineModel{
			ID:            l.ID,
			EntryID:       l.EntryID,
			TenantID:      l.TenantID,
			LineNo:        l.LineNo,
			Category:      l.Category,
			LineType:      l.LineType,
			Amount:        l.Amount,
			GstHst:        l.GstHst,
			DeductiblePct: l.DeductiblePct,
			Description:   l.Description,
		})
	}
	for _, lk := range e.SourceLinks {
		m.SourceLinks = append(m.SourceLinks, LedgerSourceLinkModel{
			ID:          lk.ID,
			EntryID:     lk.EntryID,
			TenantID:    lk.TenantID,
			Kind:        lk.Kind,
			ReferenceID: lk.ReferenceID,
		})
	}
	return m
}

// LedgerLineModel is an immutable ledger line row
type LedgerLineModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	EntryID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	TenantID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNo        int             `gorm:"not null"`
	Category      string          `gorm:"type:varchar(100)"`
	LineType      ledger.LineType `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	GstHst        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	DeductiblePct decimal.Decimal `gorm:"type:decimal(5,4);not null;default:1"`
	Description   string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (LedgerLineModel) TableName() string {
	return "ledger_lines"
}

// ToDomain converts the persistence model to a domain LedgerLine
func (m *LedgerLineModel) ToDomain() ledger.LedgerLine {
	return ledger.LedgerLine{
		ID:            m.ID,
		EntryID:       m.EntryID,
		TenantID:      m.TenantID,
		LineNo:        m.LineNo,
		Category:      m.Category,
		LineType:      m.LineType,
		Amount:        m.Amount,
		GstHst:        m.GstHst,
		DeductiblePct: m.DeductiblePct,
		Description:   m.Description,
	}
}

// LedgerSourceLinkModel records the provenance of an entry
type LedgerSourceLinkModel struct {
	ID          uuid.UUID             `gorm:"type:uuid;primaryKey"`
	EntryID     uuid.UUID             `gorm:"type:uuid;not null;index"`
	TenantID    uuid.UUID             `gorm:"type:uuid;not null;index:idx_source_link_ref,priority:1"`
	Kind        ledger.SourceLinkKind `gorm:"type:varchar(30);not null"`
	ReferenceID uuid.UUID             `gorm:"type:uuid;not null;index:idx_source_link_ref,priority:2"`
}

// TableName returns the table name for GORM
func (LedgerSourceLinkModel) TableName() string {
	return "ledger_source_links"
}

// ToDomain converts the persistence model to a domain SourceLink
func (m *LedgerSourceLinkModel) ToDomain() ledger.SourceLink {
	return ledger.SourceLink{
		ID:          m.ID,
		EntryID:     m.EntryID,
		TenantID:    m.TenantID,
		Kind:        m.Kind,
		ReferenceID: m.ReferenceID,
	}
}

// LineFactRow is the projection scanned by the snapshot query
type LineFactRow struct {
	LineType ledger.LineType
	Amount   decimal.Decimal
	Evidence ledger.EvidenceStatus
}

// LedgerSnapshotModel is the recomputed summary of one tenant period
type LedgerSnapshotModel struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uq_ledger_snapshot_period,priority:1"`
	PeriodType     ledger.PeriodType `gorm:"type:varchar(10);not null;uniqueIndex:uq_ledger_snapshot_period,priority:2"`
	PeriodKey      string            `gorm:"type:varchar(10);not null;uniqueIndex:uq_ledger_snapshot_period,priority:3"`
	CalculatedAt   time.Time         `gorm:"not null"`
	AuthorityScore int               `gorm:"not null;default:0"`
	EvidencePct    decimal.Decimal   `gorm:"type:decimal(5,4);not null;default:0"`
	EstimatedPct   decimal.Decimal   `gorm:"type:decimal(5,4);not null;default:0"`
	TotalsJSON     string            `gorm:"column:totals;type:jsonb;not null;default:'{}'"`
	LineCount      int               `gorm:"not null;default:0"`
	EvidencedCount int               `gorm:"not null;default:0"`

	Details []SnapshotDetailModel `gorm:"foreignKey:SnapshotID;references:ID"`
}

// TableName returns the table name for GORM
func (LedgerSnapshotModel) TableName() string {
	return "ledger_snapshots"
}

// ToDomain converts the persistence model to a domain Snapshot
func (m *LedgerSnapshotModel) ToDomain() (*ledger.Snapshot, error) {
	totals := make(map[string]decimal.Decimal)
	if m.TotalsJSON != "" {
		if err := json.Unmarshal([]byte(m.TotalsJSON), &totals); err != nil {
			return nil, err
		}
	}
	s := &ledger.Snapshot{
		ID:             m.ID,
		TenantID:       m.TenantID,
		PeriodType:     m.PeriodType,
		PeriodKey:      m.PeriodKey,
		CalculatedAt:   m.CalculatedAt,
		AuthorityScore: m.AuthorityScore,
		EvidencePct:    m.EvidencePct,
		EstimatedPct:   m.EstimatedPct,
		LineCount:      m.LineCount,
		EvidencedCount: m.EvidencedCount,
		Totals:         totals,
	}
	for _, d := range m.Details {
		s.Details = append(s.Details, ledger.SnapshotDetail{
			MetricKey:    d.MetricKey,
			Value:        d.Value,
			EvidencePct:  d.EvidencePct,
			EstimatedPct: d.EstimatedPct,
		})
	}
	return s, nil
}

// LedgerSnapshotModelFromDomain creates the snapshot row. Details are written separately.
func LedgerSnapshotModelFromDomain(s *ledger.Snapshot) (*LedgerSnapshotModel, error) {
	totals, err := json.Marshal(s.Totals)
	if err != nil {
		return nil, err
	}
	return &LedgerSnapshotModel{
		ID:             s.ID,
		TenantID:       s.TenantID,
		PeriodType:     s.PeriodType,
		PeriodKey:      s.PeriodKey,
		CalculatedAt:   s.CalculatedAt,
		AuthorityScore: s.AuthorityScore,
		EvidencePct:    s.EvidencePct,
		EstimatedPct:   s.EstimatedPct,
		TotalsJSON:     string(totals),
		LineCount:      s.LineCount,
		EvidencedCount: s.EvidencedCount,
	}, nil
}

// SnapshotDetailModel is one metric of a snapshot
type SnapshotDetailModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	SnapshotID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_snapshot_detail_metric,priority:1"`
	TenantID     uuid.UUID       `gorm:"type:uuid;not null"`
	MetricKey    string          `gorm:"type:varchar(50);not null;uniqueIndex:uq_snapshot_detail_metric,priority:2"`
	Value        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	EvidencePct  decimal.Decimal `gorm:"type:decimal(5,4);not null"`
	EstimatedPct decimal.Decimal `gorm:"type:decimal(5,4);not null"`
}

// TableName returns the table name for GORM
func (SnapshotDetailModel) TableName() string {
	return "ledger_snapshot_details"
}
