package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/audit"
	"github.com/livestatement/backend/internal/domain/shared"
)

// ProcessingJobModel is the gate row for one unit of work.
// The unique index on (tenant_id, job_type, dedupe_key) is the only synchronization between deliveries.
type ProcessingJobModel struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:uq_processing_job_key,priority:1;index:idx_processing_job_status,priority:1"`
	JobType    string           `gorm:"type:varchar(100);not null;uniqueIndex:uq_processing_job_key,priority:2"`
	DedupeKey  string           `gorm:"type:varchar(255);not null;uniqueIndex:uq_processing_job_key,priority:3"`
	Status     shared.JobStatus `gorm:"type:varchar(20);not null;index:idx_processing_job_status,priority:2"`
	Attempts   int              `gorm:"not null;default:1"`
	LastError  string           `gorm:"type:text"`
	StartedAt  time.Time        `gorm:"not null"`
	FinishedAt *time.Time
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProcessingJobModel) TableName() string {
	return "processing_jobs"
}

// ToDomain converts the persistence model to a domain ProcessingJob
func (m *ProcessingJobModel) ToDomain() *shared.ProcessingJob {
	return &shared.ProcessingJob{
		ID:         m.ID,
		TenantID:   m.TenantID,
		JobType:    m.JobType,
		DedupeKey:  m.DedupeKey,
		Status:     m.Status,
		Attempts:   m.Attempts,
		LastError:  m.LastError,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// ProcessingJobModelFromDomain creates a new persistence model from a domain ProcessingJob
func ProcessingJobModelFromDomain(j *shared.ProcessingJob) *ProcessingJobModel {
	return &ProcessingJobModel{
		ID:         j.ID,
		TenantID:   j.TenantID,
		JobType:    j.JobType,
		DedupeKey:  j.DedupeKey,
		Status:     j.Status,
		Attempts:   j.Attempts,
		LastError:  j.LastError,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}

// AuditEventModel is an append-only audit trail row
type AuditEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_entity,priority:1"`
	Action        string    `gorm:"type:varchar(50);not null"`
	EntityType    string    `gorm:"type:varchar(50);not null;index:idx_audit_entity,priority:2"`
	EntityID      uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_entity,priority:3"`
	CorrelationID string    `gorm:"type:varchar(255);not null;default:''"`
	DetailsJSON   string    `gorm:"column:details;type:jsonb;not null;default:'{}'"`
	OccurredAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AuditEventModel) TableName() string {
	return "audit_events"
}

// ToDomain converts the persistence model to a domain audit Event
func (m *AuditEventModel) ToDomain() *audit.Event {
	return &audit.Event{
		ID:            m.ID,
		TenantID:      m.TenantID,
		Action:        m.Action,
		EntityType:    m.EntityType,
		EntityID:      m.EntityID,
		CorrelationID: m.CorrelationID,
		Details:       json.RawMessage(m.DetailsJSON),
		OccurredAt:    m.OccurredAt,
	}
}

// AuditEventModelFromDomain creates a new persistence model from a domain audit Event
func AuditEventModelFromDomain(e *audit.Event) *AuditEventModel {
	details := string(e.Details)
	if details == "" {
		details = "{}"
	}
	return &AuditEventModel{
		ID:            e.ID,
		TenantID:      e.TenantID,
		Action:        e.Action,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		CorrelationID: e.CorrelationID,
		DetailsJSON:   details,
		OccurredAt:    e.OccurredAt,
	}
}
