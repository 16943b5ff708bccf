package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatementRepository stores platform statements
type StatementRepository interface {
	Save(ctx context.Context, s *Statement) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Statement, error)
	// FindForYear returns all statements of the provider whose period falls in the year
	FindForYear(ctx context.Context, tenantID uuid.UUID, provider string, year int) ([]*Statement, error)
}

// RunRepository stores reconciliation runs with their variances
type RunRepository interface {
	Find(ctx context.Context, tenantID uuid.UUID, provider, periodKey string) (*Run, error)
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Run, error)
	// Save upserts the run and replaces its variance rows
	Save(ctx context.Context, r *Run) error
	// RecordVariancePosting stores the ledger correction posted for a variance
	RecordVariancePosting(ctx context.Context, tenantID, varianceID uuid.UUID, entryID *uuid.UUID, amount decimal.Decimal) error
}
