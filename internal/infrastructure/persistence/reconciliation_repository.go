package persistence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/reconciliation"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/persistence/models"
	"github.com/livestatement/backend/internal/infrastructure/persistence/tenant"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormStatementRepository implements StatementRepository using GORM
type GormStatementRepository struct {
	db      *gorm.DB
	changes changeLog
}

// NewGormStatementRepository creates a new GormStatementRepository
func NewGormStatementRepository(db *gorm.DB) *GormStatementRepository {
	return &GormStatementRepository{db: db}
}

// WithTx returns a new repository bound to the transaction
func (r *GormStatementRepository) WithTx(tx *gorm.DB, recorder shared.ChangeRecorder) *GormStatementRepository {
	return &GormStatementRepository{db: tx, changes: changeLog{recorder: recorder}}
}

// Save creates the statement with its lines, or updates the status of an existing one.
// Lines are written once, when the statement is created.
func (r *GormStatementRepository) Save(ctx context.Context, s *reconciliation.Statement) error {
	db := r.db.WithContext(ctx)
	result := db.Model(&models.StatementModel{}).
		Where("tenant_id = ? AND id = ?", s.TenantID, s.ID).
		Updates(map[string]any{
			"status":     s.Status,
			"updated_at": s.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update statement: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		r.changes.record(shared.ChangeUpdate, targetStatement, s.ID)
		return nil
	}
	if err := db.Create(models.StatementModelFromDomain(s)).Error; err != nil {
		return fmt.Errorf("failed to create statement: %w", err)
	}
	r.changes.record(shared.ChangeInsert, targetStatement, s.ID)
	return nil
}

func linesByNumber(db *gorm.DB) *gorm.DB {
	return db.Order("line_no ASC")
}

// FindByID finds a statement with its lines
func (r *GormStatementRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.Statement, error) {
	var model models.StatementModel
	if err := r.db.WithContext(ctx).Preload("Lines", linesByNumber).
		Scopes(tenant.Scope(tenantID)).
		Where("id = ?", id).
		Take(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindForYear returns the provider's yearly statement and monthly statements of the year
func (r *GormStatementRepository) FindForYear(ctx context.Context, tenantID uuid.UUID, provider string, year int) ([]*reconciliation.Statement, error) {
	key := strconv.Itoa(year)
	var rows []models.StatementModel
	if err := r.db.WithContext(ctx).Preload("Lines", linesByNumber).
		Scopes(tenant.Scope(tenantID)).
		Where("provider = ?", reconciliation.NormalizeProvider(provider)).
		Where("period_key = ? OR period_key LIKE ?", key, key+"-%").
		Order("period_key ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	statements := make([]*reconciliation.Statement, len(rows))
	for i := range rows {
		statements[i] = rows[i].ToDomain()
	}
	return statements, nil
}

var _ reconciliation.StatementRepository = (*GormStatementRepository)(nil)

// GormRunRepository implements RunRepository using GORM
type GormRunRepository struct {
	db      *gorm.DB
	changes changeLog
}

// NewGormRunRepository creates a new GormRunRepository
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// WithTx returns a new repository bound to the transaction
func (r *GormRunRepository) WithTx(tx *gorm.DB, recorder shared.ChangeRecorder) *GormRunRepository {
	return &GormRunRepository{db: tx, changes: changeLog{recorder: recorder}}
}

func variancesByMetric(db *gorm.DB) *gorm.DB {
	return db.Order("metric_key ASC")
}

// Find loads the run of a provider year
func (r *GormRunRepository) Find(ctx context.Context, tenantID uuid.UUID, provider, periodKey string) (*reconciliation.Run, error) {
	var model models.ReconciliationRunModel
	if err := r.db.WithContext(ctx).Preload("Variances", variancesByMetric).
		Scopes(tenant.Scope(tenantID)).
		Where("provider = ? AND period_key = ?", reconciliation.NormalizeProvider(provider), periodKey).
		Take(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByID loads a run with its variances
func (r *GormRunRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*reconciliation.Run, error) {
	var model models.ReconciliationRunModel
	if err := r.db.WithContext(ctx).Preload("Variances", variancesByMetric).
		Scopes(tenant.Scope(tenantID)).
		Where("id = ?", id).
		Take(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// Save upserts the run and replaces its variance rows.
// A second run created for the same provider year returns ErrConcurrencyConflict.
func (r *GormRunRepository) Save(ctx context.Context, run *reconciliation.Run) error {
	db := r.db.WithContext(ctx)
	model := models.ReconciliationRunModelFromDomain(run)

	result := db.Model(&models.ReconciliationRunModel{}).
		Where("tenant_id = ? AND id = ?", run.TenantID, run.ID).
		Updates(map[string]any{
			"status":                  model.Status,
			"monthly_income_total":    model.MonthlyIncomeTotal,
			"yearly_income_total":     model.YearlyIncomeTotal,
			"variance_amount":         model.VarianceAmount,
			"monthly_statement_count": model.MonthlyStatementCount,
			"yearly_statement_id":     model.YearlyStatementID,
			"revision":                model.Revision,
			"ran_at":                  model.RanAt,
			"updated_at":              model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update reconciliation run: %w", result.Error)
	}
	kind := shared.ChangeUpdate
	if result.RowsAffected == 0 {
		if err := db.Omit("Variances").Create(model).Error; err != nil {
			if isUniqueViolation(err) {
				return shared.ErrConcurrencyConflict
			}
			return fmt.Errorf("failed to create reconciliation run: %w", err)
		}
		kind = shared.ChangeInsert
	}
	r.changes.record(kind, targetReconciliationRun, run.ID)

	if err := db.Where("tenant_id = ? AND run_id = ?", run.TenantID, run.ID).
		Delete(&models.ReconciliationVarianceModel{}).Error; err != nil {
		return fmt.Errorf("failed to clear variances: %w", err)
	}
	if len(run.Variances) == 0 {
		return nil
	}
	rows := make([]models.ReconciliationVarianceModel, len(run.Variances))
	for i, v := range run.Variances {
		rows[i] = models.ReconciliationVarianceModelFromDomain(v)
		r.changes.record(shared.ChangeInsert, targetVariance, v.ID)
	}
	if err := db.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to write variances: %w", err)
	}
	return nil
}

// RecordVariancePosting stores the correction entry posted for a variance
func (r *GormRunRepository) RecordVariancePosting(ctx context.Context, tenantID, varianceID uuid.UUID, entryID *uuid.UUID, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).Model(&models.ReconciliationVarianceModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, varianceID).
		Updates(map[string]any{
			"ledger_entry_id": entryID,
			"posted_amount":   amount,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record variance posting: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	r.changes.record(shared.ChangeUpdate, targetVariance, varianceID)
	return nil
}

var _ reconciliation.RunRepository = (*GormRunRepository)(nil)
