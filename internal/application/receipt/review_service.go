package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/application/transaction"
	"github.com/livestatement/backend/internal/application/validation"
	"github.com/livestatement/backend/internal/domain/audit"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoOpenReview is returned when a held receipt has no unresolved review
var ErrNoOpenReview = shared.NewDomainError("NO_OPEN_REVIEW", "Receipt has no open review")

// ReviewTarget names the held receipt and the reviewer acting on it
type ReviewTarget struct {
	TenantID      uuid.UUID `json:"tenantId" validate:"required"`
	ReceiptID     uuid.UUID `json:"receiptId" validate:"required"`
	ReviewerID    uuid.UUID `json:"reviewerId" validate:"required"`
	Note          string    `json:"note" validate:"max=1000"`
	CorrelationID string    `json:"correlationId" validate:"max=128"`
}

// ApproveReceiptRequest releases a held receipt with reviewer-confirmed fields
type ApproveReceiptRequest struct {
	ReviewTarget
	Vendor   string          `json:"vendor" validate:"required,max=200"`
	Date     time.Time       `json:"date" validate:"required"`
	Total    decimal.Decimal `json:"total" validate:"gt=0"`
	Tax      decimal.Decimal `json:"tax" validate:"gte=0"`
	Currency string          `json:"currency" validate:"omitempty,len=3"`
	Category string          `json:"category" validate:"max=100"`
}

// RejectReceiptRequest ends a held receipt without posting
type RejectReceiptRequest struct {
	ReviewTarget
	Reason string `json:"reason" validate:"required,max=500"`
}

// ReviewService resolves receipts held for review
type ReviewService struct {
	scope  transaction.TransactionScope
	logger *zap.Logger
}

// NewReviewService creates a new ReviewService
func NewReviewService(scope transaction.TransactionScope, logger *zap.Logger) *ReviewService {
	return &ReviewService{scope: scope, logger: logger}
}

// Approve confirms the fields of a held receipt and makes it ready for posting.
// The confirmed fields must pass the same structural checks as an extraction.
func (s *ReviewService) Approve(ctx context.Context, req ApproveReceiptRequest) (*receipt.Receipt, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	date := req.Date
	total := req.Total
	tax := req.Tax
	fields := receipt.ReceiptFields{
		Date:     &date,
		Vendor:   req.Vendor,
		Total:    &total,
		Tax:      &tax,
		Currency: req.Currency,
		Category: req.Category,
	}
	return s.resolve(ctx, req.ReviewTarget, receipt.ReviewResolutionApproved, func(r *receipt.Receipt, corr string) error {
		return r.Approve(fields, corr)
	})
}

// Reextract sends a held receipt back for another extraction attempt
func (s *ReviewService) Reextract(ctx context.Context, req ReviewTarget) (*receipt.Receipt, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.resolve(ctx, req, receipt.ReviewResolutionReextract, func(r *receipt.Receipt, corr string) error {
		return r.Submit(corr)
	})
}

// Reject closes a held receipt; it will never be posted
func (s *ReviewService) Reject(ctx context.Context, req RejectReceiptRequest) (*receipt.Receipt, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	return s.resolve(ctx, req.ReviewTarget, receipt.ReviewResolutionRejected, func(r *receipt.Receipt, _ string) error {
		return r.Reject(req.Reason)
	})
}

// ListOpen returns unresolved reviews, oldest first
func (s *ReviewService) ListOpen(ctx context.Context, tenantID uuid.UUID, limit int) ([]*receipt.ReceiptReview, error) {
	var reviews []*receipt.ReceiptReview
	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		found, err := repos.Reviews().FindOpen(ctx, tenantID, limit)
		reviews = found
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list open reviews: %w", err)
	}
	return reviews, nil
}

// ReviewDetail is an open review with the extraction that caused the hold.
// Extraction is nil when the receipt was never extracted.
type ReviewDetail struct {
	Review     *receipt.ReceiptReview
	Extraction *receipt.ReceiptExtraction
}

// GetOpen returns the open review of a held receipt and its latest extraction
func (s *ReviewService) GetOpen(ctx context.Context, tenantID, receiptID uuid.UUID) (*ReviewDetail, error) {
	var detail ReviewDetail
	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		review, err := repos.Reviews().FindOpenByReceipt(ctx, tenantID, receiptID)
		if errors.Is(err, shared.ErrNotFound) {
			return ErrNoOpenReview
		}
		if err != nil {
			return fmt.Errorf("failed to load review: %w", err)
		}
		detail.Review = review

		extraction, err := repos.Extractions().FindLatest(ctx, tenantID, receiptID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("failed to load extraction: %w", err)
		}
		detail.Extraction = extraction
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func (s *ReviewService) resolve(
	ctx context.Context,
	target ReviewTarget,
	resolution receipt.ReviewResolution,
	apply func(r *receipt.Receipt, correlationID string) error,
) (*receipt.Receipt, error) {
	var resolved *receipt.Receipt
	correlationID := target.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		r, err := repos.Receipts().FindByID(ctx, target.TenantID, target.ReceiptID)
		if err != nil {
			return fmt.Errorf("failed to load receipt: %w", err)
		}
		review, err := repos.Reviews().FindOpenByReceipt(ctx, target.TenantID, target.ReceiptID)
		if errors.Is(err, shared.ErrNotFound) {
			return ErrNoOpenReview
		}
		if err != nil {
			return fmt.Errorf("failed to load review: %w", err)
		}

		if err := apply(r, correlationID); err != nil {
			return err
		}
		if err := review.Resolve(resolution, target.ReviewerID, target.Note); err != nil {
			return err
		}

		if err := repos.Receipts().Save(ctx, r); err != nil {
			return fmt.Errorf("failed to save receipt: %w", err)
		}
		if err := repos.Reviews().Save(ctx, review); err != nil {
			return fmt.Errorf("failed to save review: %w", err)
		}
		if err := repos.Events().Record(ctx, r.PendingEvents()...); err != nil {
			return fmt.Errorf("failed to record receipt events: %w", err)
		}
		r.ClearPendingEvents()
		resolved = r
		return repos.Audit().Append(ctx, audit.NewEvent(r.TenantID, audit.ActionReceiptReviewed,
			EntityTypeReceipt, r.ID, correlationID, map[string]any{
				"reviewId":   review.ID,
				"resolution": resolution,
				"reviewerId": target.ReviewerID,
				"status":     r.Status,
			}))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("receipt review resolved",
		zap.String("tenant_id", target.TenantID.String()),
		zap.String("receipt_id", target.ReceiptID.String()),
		zap.String("resolution", string(resolution)),
		zap.String("correlation_id", correlationID),
	)
	return resolved, nil
}
