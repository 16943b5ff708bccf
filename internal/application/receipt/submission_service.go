package receipt

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/application/transaction"
	"github.com/livestatement/backend/internal/application/validation"
	"github.com/livestatement/backend/internal/domain/audit"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntityTypeReceipt is the audit entity type of receipts
const EntityTypeReceipt = "receipt"

// SubmitReceiptRequest queues an uploaded document for extraction
type SubmitReceiptRequest struct {
	TenantID      uuid.UUID        `json:"tenantId" validate:"required"`
	FileObjectID  uuid.UUID        `json:"fileObjectId" validate:"required"`
	Category      string           `json:"category" validate:"max=100"`
	DeductiblePct *decimal.Decimal `json:"deductiblePct,omitempty" validate:"omitempty,gte=0,lte=1"`
	CorrelationID string           `json:"correlationId" validate:"max=128"`
}

// SubmissionService creates receipts and emits receipt.received
type SubmissionService struct {
	scope  transaction.TransactionScope
	logger *zap.Logger
}

// NewSubmissionService creates a new SubmissionService
func NewSubmissionService(scope transaction.TransactionScope, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{scope: scope, logger: logger}
}

// Submit creates a receipt for an uploaded file and queues it for extraction.
// The receipt row, its receipt.received envelope and the audit record commit together.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitReceiptRequest) (*receipt.Receipt, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	r, err := receipt.NewReceipt(req.TenantID, req.FileObjectID)
	if err != nil {
		return nil, err
	}
	if req.DeductiblePct != nil {
		if err := r.SetDeductiblePct(*req.DeductiblePct); err != nil {
			return nil, err
		}
	}
	r.Category = strings.TrimSpace(req.Category)
	if err := r.Submit(req.CorrelationID); err != nil {
		return nil, err
	}

	events := r.PendingEvents()
	correlationID := correlationOf(events, req.CorrelationID)
	err = s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		if err := repos.Receipts().Save(ctx, r); err != nil {
			return fmt.Errorf("failed to save receipt: %w", err)
		}
		if err := repos.Events().Record(ctx, events...); err != nil {
			return fmt.Errorf("failed to record receipt events: %w", err)
		}
		return repos.Audit().Append(ctx, audit.NewEvent(r.TenantID, audit.ActionReceiptSubmitted,
			EntityTypeReceipt, r.ID, correlationID, map[string]any{
				"fileObjectId": r.FileObjectID,
				"submission":   r.Submission,
			}))
	})
	if err != nil {
		return nil, err
	}
	r.ClearPendingEvents()

	s.logger.Info("receipt submitted",
		zap.String("tenant_id", r.TenantID.String()),
		zap.String("receipt_id", r.ID.String()),
		zap.String("file_object_id", r.FileObjectID.String()),
		zap.String("correlation_id", correlationID),
	)
	return r, nil
}

// Get loads a receipt
func (s *SubmissionService) Get(ctx context.Context, tenantID, receiptID uuid.UUID) (*receipt.Receipt, error) {
	var found *receipt.Receipt
	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		r, err := repos.Receipts().FindByID(ctx, tenantID, receiptID)
		if err != nil {
			return err
		}
		found = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListByStatus returns the oldest receipts in status, for spotting work that stopped moving
func (s *SubmissionService) ListByStatus(ctx context.Context, tenantID uuid.UUID, status receipt.ReceiptStatus, limit int) ([]*receipt.Receipt, error) {
	if !status.IsValid() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Unknown receipt status "+string(status))
	}
	var found []*receipt.Receipt
	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		receipts, err := repos.Receipts().FindByStatus(ctx, tenantID, status, limit)
		found = receipts
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return found, nil
}

// correlationOf returns the correlation id the aggregate stamped on its events
func correlationOf(events []shared.DomainEvent, fallback string) string {
	if len(events) > 0 {
		return events[0].CorrelationID()
	}
	return fallback
}
