package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/application/transaction"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/logger"
	"github.com/livestatement/backend/internal/infrastructure/metrics"
	"github.com/livestatement/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// JobTypeSnapshotRecompute is the processing job type of snapshot recomputation
const JobTypeSnapshotRecompute = "ledger.snapshot_recompute"

// SnapshotService recomputes period snapshots from the ledger
type SnapshotService struct {
	scope  transaction.TransactionScope
	logger *zap.Logger
	now    func() time.Time
}

// NewSnapshotService creates a new SnapshotService
func NewSnapshotService(scope transaction.TransactionScope, logger *zap.Logger) *SnapshotService {
	return &SnapshotService{scope: scope, logger: logger, now: time.Now}
}

// Recompute rebuilds the snapshot of one period from every line dated within it
func (s *SnapshotService) Recompute(ctx context.Context, tenantID uuid.UUID, periodType ledger.PeriodType, periodKey string) (*ledger.Snapshot, error) {
	period, err := ledger.ResolvePeriod(periodType, periodKey)
	if err != nil {
		return nil, err
	}
	var snaps []*ledger.Snapshot
	err = s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		snaps, err = s.RecomputeInTx(ctx, repos, tenantID, period)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.observe(snaps)
	return snaps[0], nil
}

// RecomputeInTx rebuilds the snapshots of the given periods inside the caller's transaction
func (s *SnapshotService) RecomputeInTx(ctx context.Context, repos transaction.TransactionalRepositories, tenantID uuid.UUID, periods ...ledger.Period) ([]*ledger.Snapshot, error) {
	snaps := make([]*ledger.Snapshot, 0, len(periods))
	for _, p := range periods {
		ctx, span := telemetry.StartSpan(ctx, "ledger.snapshot",
			telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
			telemetry.WithAttribute(telemetry.SpanAttrPeriodKey, p.Key),
		)
		if err := repos.Snapshots().LockPeriod(ctx, tenantID, p.Type, p.Key); err != nil {
			telemetry.RecordError(span, err)
			span.End()
			return nil, err
		}
		facts, err := repos.Ledger().LineFacts(ctx, tenantID, p)
		if err != nil {
			telemetry.RecordError(span, err)
			span.End()
			return nil, fmt.Errorf("failed to load ledger lines for %s %s: %w", p.Type, p.Key, err)
		}
		snap := ledger.CalculateSnapshot(tenantID, p, facts, s.now())
		if err := repos.Snapshots().Upsert(ctx, snap); err != nil {
			telemetry.RecordError(span, err)
			span.End()
			return nil, fmt.Errorf("failed to store snapshot for %s %s: %w", p.Type, p.Key, err)
		}
		span.End()
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Get returns the stored snapshot of a period
func (s *SnapshotService) Get(ctx context.Context, tenantID uuid.UUID, periodType ledger.PeriodType, periodKey string) (*ledger.Snapshot, error) {
	if _, err := ledger.ResolvePeriod(periodType, periodKey); err != nil {
		return nil, err
	}
	var snap *ledger.Snapshot
	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		found, err := repos.Snapshots().Find(ctx, tenantID, periodType, periodKey)
		snap = found
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *SnapshotService) observe(snaps []*ledger.Snapshot) {
	for _, snap := range snaps {
		metrics.SnapshotRecomputesTotal.WithLabelValues(snap.PeriodType.String()).Inc()
		s.logger.Debug("snapshot recomputed",
			zap.String("tenant_id", snap.TenantID.String()),
			zap.String("period_type", snap.PeriodType.String()),
			zap.String("period_key", snap.PeriodKey),
			zap.Int("authority_score", snap.AuthorityScore),
			zap.Int("line_count", snap.LineCount),
		)
	}
}

// SnapshotHandler handles LedgerPostedEvent.
// It recomputes the Monthly and YTD snapshots containing the entry date.
type SnapshotHandler struct {
	snapshots *SnapshotService
	logger    *zap.Logger
}

// NewSnapshotHandler creates a new handler for ledger posted events
func NewSnapshotHandler(snapshots *SnapshotService, logger *zap.Logger) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *SnapshotHandler) EventTypes() []string {
	return []string{ledger.EventTypeLedgerPosted}
}

// Handle recomputes both periods in one transaction. Recomputing is idempotent,
// so a redelivered event only refreshes CalculatedAt.
func (h *SnapshotHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	posted, ok := event.(*ledger.LedgerPostedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", ledger.EventTypeLedgerPosted),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			ledger.EventTypeLedgerPosted, event.EventType())
	}

	ctx, log := logger.WithEvent(ctx, h.logger, event)
	periods := ledger.PeriodsFor(posted.Data.EntryDate)

	var snaps []*ledger.Snapshot
	err := h.snapshots.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		var err error
		snaps, err = h.snapshots.RecomputeInTx(ctx, repos, posted.TenantID(), periods...)
		return err
	})
	if err != nil {
		log.Error("failed to recompute snapshots",
			zap.String("ledger_entry_id", posted.Data.LedgerEntryID.String()),
			zap.Error(err),
		)
		return err
	}
	h.snapshots.observe(snaps)
	log.Info("snapshots recomputed",
		zap.String("ledger_entry_id", posted.Data.LedgerEntryID.String()),
		zap.String("month", periods[0].Key),
		zap.String("year", periods[1].Key),
	)
	return nil
}

var _ shared.EventHandler = (*SnapshotHandler)(nil)
