package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/persistence/models"
	"github.com/livestatement/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
)

// GormProcessingJobRepository is the idempotency gate backed by the processing_jobs table.
// Every call runs in its own autocommit statement, outside the handler's transaction,
// so a failed handler still leaves its job row behind.
type GormProcessingJobRepository struct {
	db *gorm.DB
}

// NewGormProcessingJobRepository creates a new GormProcessingJobRepository
func NewGormProcessingJobRepository(db *gorm.DB) *GormProcessingJobRepository {
	return &GormProcessingJobRepository{db: db}
}

// Admit inserts a Started job. When the key already exists the row is restarted
// unless it has succeeded; the unique index arbitrates between concurrent deliveries.
func (r *GormProcessingJobRepository) Admit(ctx context.Context, tenantID uuid.UUID, jobType, dedupeKey string) (shared.AdmitResult, error) {
	if tenantID == uuid.Nil {
		return shared.Admitted, tenant.ErrTenantIDRequired
	}
	db := r.db.WithContext(ctx)

	job := shared.NewProcessingJob(tenantID, jobType, dedupeKey)
	err := db.Create(models.ProcessingJobModelFromDomain(job)).Error
	if err == nil {
		return shared.Admitted, nil
	}
	if !isUniqueViolation(err) {
		return shared.Admitted, fmt.Errorf("failed to insert processing job: %w", err)
	}

	now := time.Now().UTC()
	result := db.Model(&models.ProcessingJobModel{}).
		Where("tenant_id = ? AND job_type = ? AND dedupe_key = ? AND status <> ?",
			tenantID, jobType, dedupeKey, shared.JobStatusSucceeded).
		Updates(map[string]any{
			"status":      shared.JobStatusStarted,
			"attempts":    gorm.Expr("attempts + 1"),
			"started_at":  now,
			"finished_at": nil,
			"updated_at":  now,
		})
	if result.Error != nil {
		return shared.Admitted, fmt.Errorf("failed to restart processing job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.AlreadySucceeded, nil
	}
	return shared.Retrying, nil
}

// MarkSucceeded completes the job; a succeeded job is never run again
func (r *GormProcessingJobRepository) MarkSucceeded(ctx context.Context, tenantID uuid.UUID, jobType, dedupeKey string) error {
	now := time.Now().UTC()
	return r.finish(ctx, tenantID, jobType, dedupeKey, map[string]any{
		"status":      shared.JobStatusSucceeded,
		"last_error":  "",
		"finished_at": now,
		"updated_at":  now,
	})
}

// MarkFailed records the failure so the next delivery retries
func (r *GormProcessingJobRepository) MarkFailed(ctx context.Context, tenantID uuid.UUID, jobType, dedupeKey string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	now := time.Now().UTC()
	return r.finish(ctx, tenantID, jobType, dedupeKey, map[string]any{
		"status":      shared.JobStatusFailed,
		"last_error":  shared.TruncateError(msg),
		"finished_at": now,
		"updated_at":  now,
	})
}

func (r *GormProcessingJobRepository) finish(ctx context.Context, tenantID uuid.UUID, jobType, dedupeKey string, values map[string]any) error {
	result := r.db.WithContext(ctx).Model(&models.ProcessingJobModel{}).
		Where("tenant_id = ? AND job_type = ? AND dedupe_key = ?", tenantID, jobType, dedupeKey).
		Updates(values)
	if result.Error != nil {
		return fmt.Errorf("failed to update processing job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByKey loads a job by its dedupe key
func (r *GormProcessingJobRepository) FindByKey(ctx context.Context, tenantID uuid.UUID, jobType, dedupeKey string) (*shared.ProcessingJob, error) {
	var model models.ProcessingJobModel
	if err := r.db.WithContext(ctx).Scopes(tenant.Scope(tenantID)).
		Where("job_type = ? AND dedupe_key = ?", jobType, dedupeKey).
		Take(&model).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindFailed lists the most recently failed jobs
func (r *GormProcessingJobRepository) FindFailed(ctx context.Context, tenantID uuid.UUID, limit int) ([]*shared.ProcessingJob, error) {
	var rows []models.ProcessingJobModel
	query := r.db.WithContext(ctx).Scopes(tenant.Scope(tenantID)).
		Where("status = ?", shared.JobStatusFailed).
		Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	jobs := make([]*shared.ProcessingJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].ToDomain()
	}
	return jobs, nil
}

var (
	_ shared.IdempotencyGate         = (*GormProcessingJobRepository)(nil)
	_ shared.ProcessingJobRepository = (*GormProcessingJobRepository)(nil)
)
