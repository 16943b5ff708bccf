package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/application/transaction"
	"github.com/livestatement/backend/internal/domain/audit"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/logger"
	"github.com/livestatement/backend/internal/infrastructure/metrics"
	"github.com/livestatement/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// JobTypeExtraction is the processing job type of receipt extraction
const JobTypeExtraction = "receipt.extraction"

// errSuperseded stops the transaction when the receipt moved on while the extractor ran
var errSuperseded = errors.New("receipt submission superseded")

// ExtractionHandler handles ReceiptReceivedEvent.
// It reads the document, runs one extraction and routes the receipt to Hold or ReadyForPosting.
type ExtractionHandler struct {
	scope     transaction.TransactionScope
	files     receipt.FileStore
	extractor receipt.Extractor
	logger    *zap.Logger
}

// NewExtractionHandler creates a new handler for receipt received events
func NewExtractionHandler(
	scope transaction.TransactionScope,
	files receipt.FileStore,
	extractor receipt.Extractor,
	logger *zap.Logger,
) *ExtractionHandler {
	return &ExtractionHandler{
		scope:     scope,
		files:     files,
		extractor: extractor,
		logger:    logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *ExtractionHandler) EventTypes() []string {
	return []string{receipt.EventTypeReceiptReceived}
}

// Handle extracts the submitted receipt.
// Extractor or file store failures persist nothing and are returned so the delivery is retried.
func (h *ExtractionHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	received, ok := event.(*receipt.ReceiptReceivedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", receipt.EventTypeReceiptReceived),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			receipt.EventTypeReceiptReceived, event.EventType())
	}

	ctx, log := logger.WithEvent(ctx, h.logger, event)
	log = log.With(
		zap.String("receipt_id", received.Data.ReceiptID.String()),
		zap.Int("submission", received.Data.Submission),
	)
	tenantID := received.TenantID()

	current, err := h.load(ctx, tenantID, received.Data.ReceiptID)
	if errors.Is(err, shared.ErrNotFound) {
		log.Warn("receipt not found, skipping extraction")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load receipt: %w", err)
	}
	if !isPendingSubmission(current, received.Data.Submission) {
		log.Info("receipt is not awaiting this submission, skipping extraction",
			zap.String("status", current.Status.String()),
			zap.Int("current_submission", current.Submission),
		)
		return nil
	}

	result, err := h.extract(ctx, tenantID, current.FileObjectID)
	if err != nil {
		log.Error("receipt extraction failed", zap.Error(err))
		return err
	}

	confidence := receipt.EffectiveConfidence(result.Normalized, result.Confidence)
	decision := receipt.Evaluate(result.Normalized, confidence)

	err = h.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		r, err := repos.Receipts().FindByID(ctx, tenantID, received.Data.ReceiptID)
		if err != nil {
			return fmt.Errorf("failed to reload receipt: %w", err)
		}
		if !isPendingSubmission(r, received.Data.Submission) {
			return errSuperseded
		}

		if err := r.StartProcessing(); err != nil {
			return err
		}
		if err := r.CompleteExtraction(confidence); err != nil {
			return err
		}
		if err := repos.Extractions().Append(ctx, receipt.NewReceiptExtraction(r, result, confidence)); err != nil {
			return fmt.Errorf("failed to append extraction: %w", err)
		}
		if err := r.ApplyDecision(result.Normalized, decision, received.CorrelationID()); err != nil {
			return err
		}
		if decision.IsHold() {
			if err := repos.Reviews().Save(ctx, receipt.NewReceiptReview(r, decision)); err != nil {
				return fmt.Errorf("failed to open review: %w", err)
			}
		}
		if err := repos.Receipts().Save(ctx, r); err != nil {
			return fmt.Errorf("failed to save receipt: %w", err)
		}
		if err := repos.Events().Record(ctx, r.PendingEvents()...); err != nil {
			return fmt.Errorf("failed to record receipt events: %w", err)
		}
		return repos.Audit().Append(ctx, decisionAudit(r, decision, result.ModelVersion, received.CorrelationID())...)
	})
	if errors.Is(err, errSuperseded) {
		log.Info("receipt changed during extraction, discarding result")
		return nil
	}
	if err != nil {
		return err
	}

	metrics.ReceiptDecisionsTotal.WithLabelValues(string(decision.Outcome), decision.Reason).Inc()
	if decision.IsHold() {
		log.Info("receipt held for review",
			zap.Float64("confidence", confidence),
			zap.String("hold_reason", decision.Reason),
		)
	} else {
		log.Info("receipt ready for posting", zap.Float64("confidence", confidence))
	}
	return nil
}

func (h *ExtractionHandler) load(ctx context.Context, tenantID, receiptID uuid.UUID) (*receipt.Receipt, error) {
	var found *receipt.Receipt
	err := h.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		r, err := repos.Receipts().FindByID(ctx, tenantID, receiptID)
		found = r
		return err
	})
	return found, err
}

// extract makes the single extractor call for a document
func (h *ExtractionHandler) extract(ctx context.Context, tenantID, fileObjectID uuid.UUID) (*receipt.ExtractionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "receipt.extract",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
	)
	defer span.End()

	doc, err := h.files.Open(ctx, tenantID, fileObjectID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to open receipt document: %w", err)
	}
	defer doc.Close()

	start := time.Now()
	result, err := h.extractor.Extract(ctx, doc)
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to extract receipt: %w", err)
	}
	if result == nil {
		return nil, errors.New("extractor returned no result")
	}
	return result, nil
}

func isPendingSubmission(r *receipt.Receipt, submission int) bool {
	return r.Status == receipt.ReceiptStatusSubmitted && r.Submission == submission
}

func decisionAudit(r *receipt.Receipt, decision receipt.Decision, modelVersion, correlationID string) []*audit.Event {
	extracted := audit.NewEvent(r.TenantID, audit.ActionReceiptExtracted, EntityTypeReceipt, r.ID, correlationID,
		map[string]any{
			"submission":   r.Submission,
			"confidence":   r.Confidence,
			"modelVersion": modelVersion,
		})
	if decision.IsHold() {
		return []*audit.Event{extracted, audit.NewEvent(r.TenantID, audit.ActionReceiptHeld, EntityTypeReceipt, r.ID,
			correlationID, map[string]any{
				"holdReason": decision.Reason,
				"questions":  decision.Questions,
			})}
	}
	return []*audit.Event{extracted, audit.NewEvent(r.TenantID, audit.ActionReceiptReady, EntityTypeReceipt, r.ID,
		correlationID, map[string]any{
			"total": r.Total.String(),
			"tax":   r.Tax.String(),
		})}
}

var _ shared.EventHandler = (*ExtractionHandler)(nil)
