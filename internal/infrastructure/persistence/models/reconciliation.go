package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/reconciliation"
	"github.com/shopspring/decimal"
)

// StatementModel is a platform income statement
type StatementModel struct {
	BaseModel
	TenantID   uuid.UUID                          `gorm:"type:uuid;not null;index:idx_statement_provider_period,priority:1"`
	Provider   string                             `gorm:"type:varchar(50);not null;index:idx_statement_provider_period,priority:2"`
	PeriodType reconciliation.StatementPeriodType `gorm:"type:varchar(10);not null"`
	PeriodKey  string                             `gorm:"type:varchar(7);not null;index:idx_statement_provider_period,priority:3"`
	Status     reconciliation.StatementStatus     `gorm:"type:varchar(10);not null"`

	Lines []StatementLineModel `gorm:"foreignKey:StatementID;references:ID"`
}

// TableName returns the table name for GORM
func (StatementModel) TableName() string {
	return "statements"
}

// ToDomain converts the persistence model to a domain Statement
func (m *StatementModel) ToDomain() *reconciliation.Statement {
	s := &reconciliation.Statement{
		ID:         m.ID,
		TenantID:   m.TenantID,
		Provider:   m.Provider,
		PeriodType: m.PeriodType,
		PeriodKey:  m.PeriodKey,
		Status:     m.Status,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	for _, l := range m.Lines {
		s.Lines = append(s.Lines, reconciliation.StatementLine{
			ID:          l.ID,
			StatementID: l.StatementID,
			LineNo:      l.LineNo,
			Description: l.Description,
			Amount:      l.Amount,
		})
	}
	return s
}

// StatementModelFromDomain creates a new persistence model from a domain Statement
func StatementModelFromDomain(s *reconciliation.Statement) *StatementModel {
	m := &StatementModel{
		TenantID:   s.TenantID,
		Provider:   s.Provider,
		PeriodType: s.PeriodType,
		PeriodKey:  s.PeriodKey,
		Status:     s.Status,
	}
	m.ID = s.ID
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
	for _, l := range s.Lines {
		m.Lines = append(m.Lines, StatementLineModel{
			ID:          l.ID,
			StatementID: s.ID,
			TenantID:    s.TenantID,
			LineNo:      l.LineNo,
			Description: l.Description,
			Amount:      l.Amount,
		})
	}
	return m
}

// StatementLineModel is one line of a statement
type StatementLineModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	StatementID uuid.UUID       `gorm:"type:uuid;not null;index"`
	TenantID    uuid.UUID       `gorm:"type:uuid;not null"`
	LineNo      int             `gorm:"not null"`
	Description string          `gorm:"type:varchar(255);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (StatementLineModel) TableName() string {
	return "statement_lines"
}

// ReconciliationRunModel is one provider year's reconciliation.
// The unique index keeps a single run per (tenant, provider, year).
type ReconciliationRunModel struct {
	BaseModel
	TenantID              uuid.UUID                `gorm:"type:uuid;not null;uniqueIndex:uq_reconciliation_run,priority:1"`
	Provider              string                   `gorm:"type:varchar(50);not null;uniqueIndex:uq_reconciliation_run,priority:2"`
	PeriodType            string                   `gorm:"type:varchar(10);not null;default:'YEARLY';uniqueIndex:uq_reconciliation_run,priority:3"`
	PeriodKey             string                   `gorm:"type:varchar(4);not null;uniqueIndex:uq_reconciliation_run,priority:4"`
	Status                reconciliation.RunStatus `gorm:"type:varchar(20);not null"`
	MonthlyIncomeTotal    decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	YearlyIncomeTotal     decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	VarianceAmount        decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	MonthlyStatementCount int                      `gorm:"not null;default:0"`
	YearlyStatementID     uuid.UUID                `gorm:"type:uuid;not null"`
	Revision              int                      `gorm:"not null;default:0"`
	RanAt                 time.Time                `gorm:"not null"`

	Variances []ReconciliationVarianceModel `gorm:"foreignKey:RunID;references:ID"`
}

// TableName returns the table name for GORM
func (ReconciliationRunModel) TableName() string {
	return "reconciliation_runs"
}

// ToDomain converts the persistence model to a domain Run
func (m *ReconciliationRunModel) ToDomain() *reconciliation.Run {
	r := &reconciliation.Run{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		Provider:              m.Provider,
		PeriodKey:             m.PeriodKey,
		Status:                m.Status,
		MonthlyIncomeTotal:    m.MonthlyIncomeTotal,
		YearlyIncomeTotal:     m.YearlyIncomeTotal,
		VarianceAmount:        m.VarianceAmount,
		MonthlyStatementCount: m.MonthlyStatementCount,
		YearlyStatementID:     m.YearlyStatementID,
		Revision:              m.Revision,
		RanAt:                 m.RanAt,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
	for i := range m.Variances {
		r.Variances = append(r.Variances, m.Variances[i].ToDomain())
	}
	return r
}

// ReconciliationRunModelFromDomain creates the run row. Variances are written separately.
func ReconciliationRunModelFromDomain(r *reconciliation.Run) *ReconciliationRunModel {
	m := &ReconciliationRunModel{
		TenantID:              r.TenantID,
		Provider:              r.Provider,
		PeriodType:            string(reconciliation.StatementPeriodYearly),
		PeriodKey:             r.PeriodKey,
		Status:                r.Status,
		MonthlyIncomeTotal:    r.MonthlyIncomeTotal,
		YearlyIncomeTotal:     r.YearlyIncomeTotal,
		VarianceAmount:        r.VarianceAmount,
		MonthlyStatementCount: r.MonthlyStatementCount,
		YearlyStatementID:     r.YearlyStatementID,
		Revision:              r.Revision,
		RanAt:                 r.RanAt,
	}
	m.ID = r.ID
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
	return m
}

// ReconciliationVarianceModel is one metric's variance within a run
type ReconciliationVarianceModel struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey"`
	RunID          uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:uq_variance_metric,priority:1"`
	TenantID       uuid.UUID        `gorm:"type:uuid;not null;index"`
	MetricKey      string           `gorm:"type:varchar(50);not null;uniqueIndex:uq_variance_metric,priority:2"`
	LineType       ledger.LineType  `gorm:"type:varchar(20);not null"`
	MonthlyTotal   decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	YearlyTotal    decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	VarianceAmount decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	LedgerEntryID  *uuid.UUID       `gorm:"type:uuid"`
	PostedAmount   *decimal.Decimal `gorm:"type:decimal(18,4)"`
}

// TableName returns the table name for GORM
func (ReconciliationVarianceModel) TableName() string {
	return "reconciliation_variances"
}

// ToDomain converts the persistence model to a domain Variance
func (m *ReconciliationVarianceModel) ToDomain() reconciliation.Variance {
	return reconciliation.Variance{
		ID:             m.ID,
		RunID:          m.RunID,
		TenantID:       m.TenantID,
		MetricKey:      m.MetricKey,
		LineType:       m.LineType,
		MonthlyTotal:   m.MonthlyTotal,
		YearlyTotal:    m.YearlyTotal,
		VarianceAmount: m.VarianceAmount,
		LedgerEntryID:  m.LedgerEntryID,
		PostedAmount:   m.PostedAmount,
	}
}

// ReconciliationVarianceModelFromDomain creates a new persistence model from a domain Variance
func ReconciliationVarianceModelFromDomain(v reconciliation.Variance) ReconciliationVarianceModel {
	return ReconciliationVarianceModel{
		ID:             v.ID,
		RunID:          v.RunID,
		TenantID:       v.TenantID,
		MetricKey:      v.MetricKey,
		LineType:       v.LineType,
		MonthlyTotal:   v.MonthlyTotal,
		YearlyTotal:    v.YearlyTotal,
		VarianceAmount: v.VarianceAmount,
		LedgerEntryID:  v.LedgerEntryID,
		PostedAmount:   v.PostedAmount,
	}
}
