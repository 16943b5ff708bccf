package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/livestatement/backend/internal/application/transaction"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// JobTypeReceiptPosting is the processing job type of receipt posting
const JobTypeReceiptPosting = "ledger.receipt_posting"

// ReceiptReadyHandler handles ReceiptReadyEvent.
// It posts the receipt's expense and ITC lines and marks the receipt Posted in the same transaction.
type ReceiptReadyHandler struct {
	scope   transaction.TransactionScope
	posting *PostingService
	logger  *zap.Logger
}

// NewReceiptReadyHandler creates a new handler for receipt ready events
func NewReceiptReadyHandler(scope transaction.TransactionScope, posting *PostingService, logger *zap.Logger) *ReceiptReadyHandler {
	return &ReceiptReadyHandler{
		scope:   scope,
		posting: posting,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *ReceiptReadyHandler) EventTypes() []string {
	return []string{receipt.EventTypeReceiptReady}
}

// Handle posts the receipt. A receipt that is already posted, or not ready, is skipped.
func (h *ReceiptReadyHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	ready, ok := event.(*receipt.ReceiptReadyEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", receipt.EventTypeReceiptReady),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			receipt.EventTypeReceiptReady, event.EventType())
	}

	ctx, log := logger.WithEvent(ctx, h.logger, event)
	log = log.With(zap.String("receipt_id", ready.Data.ReceiptID.String()))
	tenantID := ready.TenantID()

	var (
		entry   *ledger.LedgerEntry
		created bool
		skipped string
	)
	err := h.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		r, err := repos.Receipts().FindByID(ctx, tenantID, ready.Data.ReceiptID)
		if errors.Is(err, shared.ErrNotFound) {
			skipped = "receipt not found"
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load receipt: %w", err)
		}
		if r.IsPosted() {
			skipped = "receipt already posted"
			return nil
		}
		if !r.IsReadyForPosting() || r.ReceiptDate == nil {
			skipped = "receipt is not ready for posting"
			return nil
		}

		evidence := ledger.EvidenceEvidenced
		if r.WasHeld {
			evidence = ledger.EvidenceEstimated
		}
		entry, created, err = h.posting.PostInTx(ctx, repos, ledger.EntrySpec{
			TenantID:      r.TenantID,
			EntryDate:     *r.ReceiptDate,
			SourceType:    ledger.SourceTypeReceipt,
			SourceID:      r.ID,
			PostedByType:  ledger.PostedBySystem,
			CorrelationID: ready.CorrelationID(),
			Evidence:      evidence,
			Description:   r.Vendor,
			Lines:         ledger.ReceiptLines(r.Total, r.Tax, r.DeductiblePct, r.Category, r.Vendor),
			Links: []ledger.LinkSpec{
				{Kind: ledger.SourceLinkReceipt, ReferenceID: r.ID},
				{Kind: ledger.SourceLinkReceiptFile, ReferenceID: r.FileObjectID},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to post receipt: %w", err)
		}
		if err := r.MarkPosted(entry.ID); err != nil {
			return err
		}
		if err := repos.Receipts().Save(ctx, r); err != nil {
			return fmt.Errorf("failed to save receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("failed to post receipt", zap.Error(err))
		return err
	}
	if skipped != "" {
		log.Info("skipping receipt posting", zap.String("reason", skipped))
		return nil
	}
	h.posting.Observe(entry, created)
	return nil
}

var _ shared.EventHandler = (*ReceiptReadyHandler)(nil)
