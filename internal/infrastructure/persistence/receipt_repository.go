package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/persistence/models"
	"github.com/livestatement/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
)

// GormReceiptRepository implements ReceiptRepository using GORM
type GormReceiptRepository struct {
	db      *gorm.DB
	changes changeLog
}

// NewGormReceiptRepository creates a new GormReceiptRepository
func NewGormReceiptRepository(db *gorm.DB) *GormReceiptRepository {
	return &GormReceiptRepository{db: db}
}

// WithTx returns a new repository bound to the transaction, recording writes to recorder
func (r *GormReceiptRepository) WithTx(tx *gorm.DB, recorder shared.ChangeRecorder) *GormReceiptRepository {
	return &GormReceiptRepository{db: tx, changes: changeLog{recorder: recorder}}
}

// FindByID finds a receipt by ID within a tenant
func (r *GormReceiptRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*receipt.Receipt, error) {
	var model models.ReceiptModel
	if err := r.db.WithContext(ctx).Scopes(tenant.Scope(tenantID)).
		Where("id = ?", id).Take(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindByStatus lists the oldest receipts in a status
func (r *GormReceiptRepository) FindByStatus(ctx context.Context, tenantID uuid.UUID, status receipt.ReceiptStatus, limit int) ([]*receipt.Receipt, error) {
	var rows []models.ReceiptModel
	query := r.db.WithContext(ctx).Scopes(tenant.Scope(tenantID)).
		Where("status = ?", status).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	receipts := make([]*receipt.Receipt, len(rows))
	for i := range rows {
		receipts[i] = rows[i].ToDomain()
	}
	return receipts, nil
}

// Save inserts a new receipt or updates an existing one.
// Updates are guarded by the version the caller loaded; a stale version returns ErrConcurrencyConflict.
func (r *GormReceiptRepository) Save(ctx context.Context, rc *receipt.Receipt) error {
	db := r.db.WithContext(ctx)
	nextVersion := rc.Version + 1
	now := time.Now()

	result := db.Model(&models.ReceiptModel{}).
		Where("tenant_id = ? AND id = ? AND version = ?", rc.TenantID, rc.ID, rc.Version).
		Updates(map[string]any{
			"status":          rc.Status,
			"submission":      rc.Submission,
			"vendor":          rc.Vendor,
			"receipt_date":    rc.ReceiptDate,
			"total":           rc.Total,
			"tax":             rc.Tax,
			"currency":        rc.Currency,
			"category":        rc.Category,
			"deductible_pct":  rc.DeductiblePct,
			"confidence":      rc.Confidence,
			"was_held":        rc.WasHeld,
			"hold_reason":     rc.HoldReason,
			"ledger_entry_id": rc.LedgerEntryID,
			"submitted_at":    rc.SubmittedAt,
			"posted_at":       rc.PostedAt,
			"version":         nextVersion,
			"updated_at":      now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update receipt: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		rc.Version = nextVersion
		rc.UpdatedAt = now
		r.changes.record(shared.ChangeUpdate, targetReceipt, rc.ID)
		return nil
	}

	var count int64
	if err := db.Model(&models.ReceiptModel{}).Scopes(tenant.Scope(rc.TenantID)).
		Where("id = ?", rc.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return shared.ErrConcurrencyConflict
	}

	if err := db.Create(models.ReceiptModelFromDomain(rc)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrConcurrencyConflict
		}
		return fmt.Errorf("failed to create receipt: %w", err)
	}
	r.changes.record(shared.ChangeInsert, targetReceipt, rc.ID)
	return nil
}

var _ receipt.ReceiptRepository = (*GormReceiptRepository)(nil)

// GormExtractionRepository implements ExtractionRepository using GORM
type GormExtractionRepository struct {
	db      *gorm.DB
	changes changeLog
}

// NewGormExtractionRepository creates a new GormExtractionRepository
func NewGormExtractionRepository(db *gorm.DB) *GormExtractionRepository {
	return &GormExtractionRepository{db: db}
}

// WithTx returns a new repository bound to the transaction
func (r *GormExtractionRepository) WithTx(tx *gorm.DB, recorder shared.ChangeRecorder) *GormExtractionRepository {
	return &GormExtractionRepository{db: tx, changes: changeLog{recorder: recorder}}
}

// Append stores extraction evidence
func (r *GormExtractionRepository) Append(ctx context.Context, e *receipt.ReceiptExtraction) error {
	model, err := models.ReceiptExtractionModelFromDomain(e)
	if err != nil {
		return fmt.Errorf("failed to encode extraction: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to append extraction: %w", err)
	}
	r.changes.record(shared.ChangeInsert, targetReceiptExtraction, e.ID)
	return nil
}

// FindLatest returns the newest extraction of a receipt
func (r *GormExtractionRepository) FindLatest(ctx context.Context, tenantID, receiptID uuid.UUID) (*receipt.ReceiptExtraction, error) {
	var model models.ReceiptExtractionModel
	if err := r.db.WithContext(ctx).Scopes(tenant.Scope(tenantID)).
		Where("receipt_id = ?", receiptID).
		Order("submission DESC, created_at DESC").
		Take(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain()
}

var _ receipt.ExtractionRepository = (*GormExtractionRepository)(nil)

// GormReviewRepository implements ReviewRepository using GORM
type GormReviewRepository struct {
	db      *gorm.DB
	changes changeLog
}

// NewGormReviewRepository creates a new GormReviewRepository
func NewGormReviewRepository(db *gorm.DB) *GormReviewRepository {
	return &GormReviewRepository{db: db}
}

// WithTx returns a new repository bound to the transaction
func (r *GormReviewRepository) WithTx(tx *gorm.DB, recorder shared.ChangeRecorder) *GormReviewRepository {
	return &GormReviewRepository{db: tx, changes: changeLog{recorder: recorder}}
}

// Save inserts or updates a review
func (r *GormReviewRepository) Save(ctx context.Context, v *receipt.ReceiptReview) error {
	model, err := models.ReceiptReviewModelFromDomain(v)
	if err != nil {
		return fmt.Errorf("failed to encode review: %w", err)
	}
	db := r.db.WithContext(ctx)
	result := db.Model(&models.ReceiptReviewModel{}).
		Where("tenant_id = ? AND id = ?", v.TenantID, v.ID).
		Updates(map[string]any{
			"hold_reason": model.HoldReason,
			"questions":   model.QuestionsJSON,
			"resolution":  model.Resolution,
			"resolved_by": model.ResolvedBy,
			"resolved_at": model.ResolvedAt,
			"note":        model.Note,
			"updated_at":  v.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update review: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		r.changes.record(shared.ChangeUpdate, targetReceiptReview, v.ID)
		return nil
	}
	if err := db.Create(model).Error; err != nil {
		return fmt.Errorf("failed to create review: %w", err)
	}
	r.changes.record(shared.ChangeInsert, targetReceiptReview, v.ID)
	return nil
}

// FindOpenByReceipt returns the unresolved review of a receipt
func (r *GormReviewRepository) FindOpenByReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) (*receipt.ReceiptReview, error) {
	var model models.ReceiptReviewModel
	if err := r.db.WithContext(ctx).Scopes(tenant.Scope(tenantID)).
		Where("receipt_id = ? AND resolution IS NULL", receiptID).
		Order("created_at DESC").
		Take(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain()
}

// FindOpen lists unresolved reviews, oldest first
func (r *GormReviewRepository) FindOpen(ctx context.Context, tenantID uuid.UUID, limit int) ([]*receipt.ReceiptReview, error) {
	var rows []models.ReceiptReviewModel
	query := r.db.WithContext(ctx).Scopes(tenant.Scope(tenantID)).
		Where("resolution IS NULL").
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	reviews := make([]*receipt.ReceiptReview, 0, len(rows))
	for i := range rows {
		v, err := rows[i].ToDomain()
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to decode review %s", rows[i].ID), err)
		}
		reviews = append(reviews, v)
	}
	return reviews, nil
}

var _ receipt.ReviewRepository = (*GormReviewRepository)(nil)
