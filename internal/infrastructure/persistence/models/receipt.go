package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/shopspring/decimal"
)

// ReceiptModel is the persistence model for the Receipt aggregate root
type ReceiptModel struct {
	TenantAggregateModel
	FileObjectID  uuid.UUID             `gorm:"type:uuid;not null"`
	Status        receipt.ReceiptStatus `gorm:"type:varchar(30);not null;index:idx_receipt_tenant_status,priority:2"`
	Submission    int                   `gorm:"not null;default:0"`
	Vendor        string                `gorm:"type:varchar(200)"`
	ReceiptDate   *time.Time            `gorm:"type:date"`
	Total         decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	Tax           decimal.Decimal       `gorm:"type:decimal(18,4);not null;default:0"`
	Currency      string                `gorm:"type:varchar(3);not null;default:'CAD'"`
	Category      string                `gorm:"type:varchar(100)"`
	DeductiblePct decimal.Decimal       `gorm:"type:decimal(5,4);not null;default:1"`
	Confidence    float64               `gorm:"not null;default:0"`
	WasHeld       bool                  `gorm:"not null;default:false"`
	HoldReason    string                `gorm:"type:varchar(200)"`
	LedgerEntryID *uuid.UUID            `gorm:"type:uuid"`
	SubmittedAt   *time.Time
	PostedAt      *time.Time
}

// TableName returns the table name for GORM
func (ReceiptModel) TableName() string {
	return "receipts"
}

// ToDomain converts the persistence model to a domain Receipt
func (m *ReceiptModel) ToDomain() *receipt.Receipt {
	r := &receipt.Receipt{
		FileObjectID:  m.FileObjectID,
		Status:        m.Status,
		Submission:    m.Submission,
		Vendor:        m.Vendor,
		ReceiptDate:   m.ReceiptDate,
		Total:         m.Total,
		Tax:           m.Tax,
		Currency:      m.Currency,
		Category:      m.Category,
		DeductiblePct: m.DeductiblePct,
		Confidence:    m.Confidence,
		WasHeld:       m.WasHeld,
		HoldReason:    m.HoldReason,
		LedgerEntryID: m.LedgerEntryID,
		SubmittedAt:   m.SubmittedAt,
		PostedAt:      m.PostedAt,
	}
	r.TenantAggregateRoot = m.root()
	return r
}

// FromDomain populates the persistence model from a domain Receipt
func (m *ReceiptModel) FromDomain(r *receipt.Receipt) {
	m.TenantAggregateModel = tenantAggregateModel(r.TenantAggregateRoot)
	m.FileObjectID = r.FileObjectID
	m.Status = r.Status
	m.Submission = r.Submission
	m.Vendor = r.Vendor
	m.ReceiptDate = r.ReceiptDate
	m.Total = r.Total
	m.Tax = r.Tax
	m.Currency = r.Currency
	m.Category = r.Category
	m.DeductiblePct = r.DeductiblePct
	m.Confidence = r.Confidence
	m.WasHeld = r.WasHeld
	m.HoldReason = r.HoldReason
	m.LedgerEntryID = r.LedgerEntryID
	m.SubmittedAt = r.SubmittedAt
	m.PostedAt = r.PostedAt
}

// ReceiptModelFromDomain creates a new persistence model from a domain Receipt
func ReceiptModelFromDomain(r *receipt.Receipt) *ReceiptModel {
	m := &ReceiptModel{}
	m.FromDomain(r)
	return m
}

// ReceiptExtractionModel is one append-only extraction result
type ReceiptExtractionModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;index:idx_extraction_receipt,priority:1"`
	ReceiptID      uuid.UUID `gorm:"type:uuid;not null;index:idx_extraction_receipt,priority:2"`
	Submission     int       `gorm:"not null"`
	Confidence     float64   `gorm:"not null"`
	ModelVersion   string    `gorm:"type:varchar(100)"`
	RawPayload     string    `gorm:"type:jsonb;not null;default:'{}'"`
	NormalizedJSON string    `gorm:"column:normalized;type:jsonb;not null"`
	CreatedAt      time.Time `gorm:"not null;index:idx_extraction_receipt,priority:3"`
}

// TableName returns the table name for GORM
func (ReceiptExtractionModel) TableName() string {
	return "receipt_extractions"
}

// ToDomain converts the persistence model to a domain ReceiptExtraction
func (m *ReceiptExtractionModel) ToDomain() (*receipt.ReceiptExtraction, error) {
	var doc receipt.NormalizedDocument
	if err := json.Unmarshal([]byte(m.NormalizedJSON), &doc); err != nil {
		return nil, err
	}
	return &receipt.ReceiptExtraction{
		ID:           m.ID,
		TenantID:     m.TenantID,
		ReceiptID:    m.ReceiptID,
		Submission:   m.Submission,
		Confidence:   m.Confidence,
		ModelVersion: m.ModelVersion,
		RawPayload:   json.RawMessage(m.RawPayload),
		Normalized:   doc,
		CreatedAt:    m.CreatedAt,
	}, nil
}

// ReceiptExtractionModelFromDomain creates a new persistence model from a domain ReceiptExtraction
func ReceiptExtractionModelFromDomain(e *receipt.ReceiptExtraction) (*ReceiptExtractionModel, error) {
	normalized, err := json.Marshal(e.Normalized)
	if err != nil {
		return nil, err
	}
	raw := string(e.RawPayload)
	if raw == "" {
		raw = "{}"
	}
	return &ReceiptExtractionModel{
		ID:             e.ID,
		TenantID:       e.TenantID,
		ReceiptID:      e.ReceiptID,
		Submission:     e.Submission,
		Confidence:     e.Confidence,
		ModelVersion:   e.ModelVersion,
		RawPayload:     raw,
		NormalizedJSON: string(normalized),
		CreatedAt:      e.CreatedAt,
	}, nil
}

// ReceiptReviewModel is the work item opened when a receipt is held
type ReceiptReviewModel struct {
	BaseModel
	TenantID      uuid.UUID                 `gorm:"type:uuid;not null;index:idx_review_open,priority:1"`
	ReceiptID     uuid.UUID                 `gorm:"type:uuid;not null;index"`
	Submission    int                       `gorm:"not null"`
	HoldReason    string                    `gorm:"type:varchar(200);not null"`
	QuestionsJSON string                    `gorm:"column:questions;type:jsonb;not null;default:'[]'"`
	Resolution    *receipt.ReviewResolution `gorm:"type:varchar(20);index:idx_review_open,priority:2"`
	ResolvedBy    *uuid.UUID                `gorm:"type:uuid"`
	ResolvedAt    *time.Time
	Note          string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ReceiptReviewModel) TableName() string {
	return "receipt_reviews"
}

// ToDomain converts the persistence model to a domain ReceiptReview
func (m *ReceiptReviewModel) ToDomain() (*receipt.ReceiptReview, error) {
	var questions []receipt.Question
	if m.QuestionsJSON != "" {
		if err := json.Unmarshal([]byte(m.QuestionsJSON), &questions); err != nil {
			return nil, err
		}
	}
	return &receipt.ReceiptReview{
		ID:         m.ID,
		TenantID:   m.TenantID,
		ReceiptID:  m.ReceiptID,
		Submission: m.Submission,
		HoldReason: m.HoldReason,
		Questions:  questions,
		Resolution: m.Resolution,
		ResolvedBy: m.ResolvedBy,
		ResolvedAt: m.ResolvedAt,
		Note:       m.Note,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}

// ReceiptReviewModelFromDomain creates a new persistence model from a domain ReceiptReview
func ReceiptReviewModelFromDomain(v *receipt.ReceiptReview) (*ReceiptReviewModel, error) {
	questions := v.Questions
	if questions == nil {
		questions = []receipt.Question{}
	}
	b, err := json.Marshal(questions)
	if err != nil {
		return nil, err
	}
	m := &ReceiptReviewModel{
		TenantID:      v.TenantID,
		ReceiptID:     v.ReceiptID,
		Submission:    v.Submission,
		HoldReason:    v.HoldReason,
		QuestionsJSON: string(b),
		Resolution:    v.Resolution,
		ResolvedBy:    v.ResolvedBy,
		ResolvedAt:    v.ResolvedAt,
		Note:          v.Note,
		BaseModel:     BaseModel{ID: v.ID, CreatedAt: v.CreatedAt, UpdatedAt: v.UpdatedAt},
	}
	return m, nil
}
