package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/application/transaction"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/reconciliation"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// JobTypeVariancePosting is the processing job type of reconciliation variance posting
const JobTypeVariancePosting = "ledger.variance_posting"

// ReconciliationCompletedHandler handles ReconciliationCompletedEvent.
// Each variance whose correction is not yet on the ledger gets one Other line dated
// on the last day of the reconciled year. A previously posted correction is reversed first.
type ReconciliationCompletedHandler struct {
	scope   transaction.TransactionScope
	posting *PostingService
	logger  *zap.Logger
}

// NewReconciliationCompletedHandler creates a new handler for reconciliation completed events
func NewReconciliationCompletedHandler(scope transaction.TransactionScope, posting *PostingService, logger *zap.Logger) *ReconciliationCompletedHandler {
	return &ReconciliationCompletedHandler{
		scope:   scope,
		posting: posting,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *ReconciliationCompletedHandler) EventTypes() []string {
	return []string{reconciliation.EventTypeReconciliationCompleted}
}

type posted struct {
	entry   *ledger.LedgerEntry
	created bool
}

// Handle posts the run's outstanding corrections. The run is read in its current revision,
// so a late delivery of an older revision posts the latest figures.
func (h *ReconciliationCompletedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	completed, ok := event.(*reconciliation.ReconciliationCompletedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", reconciliation.EventTypeReconciliationCompleted),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			reconciliation.EventTypeReconciliationCompleted, event.EventType())
	}

	ctx, log := logger.WithEvent(ctx, h.logger, event)
	log = log.With(
		zap.String("run_id", completed.Data.RunID.String()),
		zap.String("provider", completed.Data.Provider),
		zap.String("period_key", completed.Data.PeriodKey),
	)
	tenantID := completed.TenantID()

	var entries []posted
	err := h.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		entries = entries[:0]
		run, err := repos.Runs().FindByID(ctx, tenantID, completed.Data.RunID)
		if errors.Is(err, shared.ErrNotFound) {
			log.Warn("reconciliation run not found, skipping variance posting")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load reconciliation run: %w", err)
		}
		entryDate, err := yearEnd(run.PeriodKey)
		if err != nil {
			return err
		}

		for i := range run.Variances {
			v := &run.Variances[i]
			if !v.NeedsPosting() {
				continue
			}
			var entryID *uuid.UUID
			if v.LedgerEntryID != nil {
				reversal, created, err := h.posting.ReverseInTx(ctx, repos, ReverseEntryRequest{
					TenantID:       tenantID,
					EntryID:        *v.LedgerEntryID,
					IdempotencyKey: "reconciliation-variance:" + v.LedgerEntryID.String(),
					Reason:         fmt.Sprintf("Superseded %s variance for %s %s", v.MetricKey, run.Provider, run.PeriodKey),
					PostedBy:       ledger.PostedBySystem,
					CorrelationID:  completed.CorrelationID(),
				})
				if err != nil && !errors.Is(err, ErrAlreadyReversed) {
					return fmt.Errorf("failed to reverse previous %s correction: %w", v.MetricKey, err)
				}
				if reversal != nil {
					entries = append(entries, posted{entry: reversal, created: created})
				}
			}

			correction := v.Correction()
			if !correction.IsZero() {
				entry, created, err := h.posting.PostInTx(ctx, repos, ledger.EntrySpec{
					TenantID:      tenantID,
					EntryDate:     entryDate,
					SourceType:    ledger.SourceTypeReconciliation,
					SourceID:      v.ID,
					PostedByType:  ledger.PostedBySystem,
					CorrelationID: completed.CorrelationID(),
					Evidence:      ledger.EvidenceEvidenced,
					Description:   fmt.Sprintf("%s %s reconciliation variance", run.Provider, run.PeriodKey),
					Lines: []ledger.LineSpec{{
						Category:    v.MetricKey,
						LineType:    ledger.LineTypeOther,
						Amount:      correction,
						Description: fmt.Sprintf("%s monthly %s, yearly %s", v.MetricKey, v.MonthlyTotal, v.YearlyTotal),
					}},
					Links: []ledger.LinkSpec{{Kind: ledger.SourceLinkReconciliationVariance, ReferenceID: v.ID}},
				})
				if err != nil {
					return fmt.Errorf("failed to post %s correction: %w", v.MetricKey, err)
				}
				entries = append(entries, posted{entry: entry, created: created})
				id := entry.ID
				entryID = &id
			}

			v.RecordPosting(entryID, correction)
			if err := repos.Runs().RecordVariancePosting(ctx, tenantID, v.ID, v.LedgerEntryID, *v.PostedAmount); err != nil {
				return fmt.Errorf("failed to record %s correction: %w", v.MetricKey, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to post reconciliation variances", zap.Error(err))
		return err
	}
	for _, p := range entries {
		h.posting.Observe(p.entry, p.created)
	}
	log.Info("reconciliation variances posted", zap.Int("entries", len(entries)))
	return nil
}

// yearEnd is the last day of a YYYY period key
func yearEnd(periodKey string) (time.Time, error) {
	year, err := strconv.Atoi(periodKey)
	if err != nil || len(periodKey) != 4 {
		return time.Time{}, fmt.Errorf("%w: %q", ledger.ErrInvalidPeriodKey, periodKey)
	}
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC), nil
}

var _ shared.EventHandler = (*ReconciliationCompletedHandler)(nil)
