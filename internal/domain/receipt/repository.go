package receipt

import (
	"context"

	"github.com/google/uuid"
)

// ReceiptRepository persists receipts. Every lookup is scoped by tenant.
type ReceiptRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Receipt, error)
	FindByStatus(ctx context.Context, tenantID uuid.UUID, status ReceiptStatus, limit int) ([]*Receipt, error)
	// Save inserts a new receipt or updates an existing one with an optimistic version check
	Save(ctx context.Context, r *Receipt) error
}

// ExtractionRepository appends extraction evidence
type ExtractionRepository interface {
	Append(ctx context.Context, e *ReceiptExtraction) error
	FindLatest(ctx context.Context, tenantID, receiptID uuid.UUID) (*ReceiptExtraction, error)
}

// ReviewRepository persists hold reviews
type ReviewRepository interface {
	Save(ctx context.Context, v *ReceiptReview) error
	FindOpenByReceipt(ctx context.Context, tenantID, receiptID uuid.UUID) (*ReceiptReview, error)
	FindOpen(ctx context.Context, tenantID uuid.UUID, limit int) ([]*ReceiptReview, error)
}
