package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/audit"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/persistence/models"
	"github.com/livestatement/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
)

// GormAuditRepository appends audit events using GORM
type GormAuditRepository struct {
	db      *gorm.DB
	changes changeLog
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// WithTx returns a new repository bound to the transaction
func (r *GormAuditRepository) WithTx(tx *gorm.DB, recorder shared.ChangeRecorder) *GormAuditRepository {
	return &GormAuditRepository{db: tx, changes: changeLog{recorder: recorder}}
}

// Append inserts the events in one statement
func (r *GormAuditRepository) Append(ctx context.Context, events ...*audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*models.AuditEventModel, len(events))
	for i, e := range events {
		rows[i] = models.AuditEventModelFromDomain(e)
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to append audit events: %w", err)
	}
	for _, e := range events {
		r.changes.record(shared.ChangeInsert, targetAuditEvent, e.ID)
	}
	return nil
}

// FindByEntity returns the entity's trail, oldest first
func (r *GormAuditRepository) FindByEntity(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*audit.Event, error) {
	var rows []models.AuditEventModel
	if err := r.db.WithContext(ctx).Scopes(tenant.Scope(tenantID)).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("occurred_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]*audit.Event, len(rows))
	for i := range rows {
		events[i] = rows[i].ToDomain()
	}
	return events, nil
}

var _ audit.Repository = (*GormAuditRepository)(nil)
