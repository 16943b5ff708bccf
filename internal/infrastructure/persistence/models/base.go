package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
)

// BaseModel carries the key and timestamps shared by every mutable table
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TenantAggregateModel adds the owning tenant and the optimistic lock column
type TenantAggregateModel struct {
	BaseModel
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	Version  int       `gorm:"not null;default:1"`
}

func tenantAggregateModel(root shared.TenantAggregateRoot) TenantAggregateModel {
	return TenantAggregateModel{
		BaseModel: BaseModel{ID: root.ID, CreatedAt: root.CreatedAt, UpdatedAt: root.UpdatedAt},
		TenantID:  root.TenantID,
		Version:   root.Version,
	}
}

func (m *TenantAggregateModel) root() shared.TenantAggregateRoot {
	return shared.TenantAggregateRoot{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
