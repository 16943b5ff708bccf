// Package ledger posts business facts to the append-only ledger and keeps
// period snapshots current.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/application/transaction"
	"github.com/livestatement/backend/internal/application/validation"
	"github.com/livestatement/backend/internal/domain/audit"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/metrics"
	"github.com/livestatement/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntityTypeLedgerEntry is the audit entity type of ledger entries
const EntityTypeLedgerEntry = "ledger_entry"

// Posting errors
var (
	ErrAlreadyReversed     = shared.NewDomainError("ALREADY_REVERSED", "Ledger entry has already been reversed")
	ErrReversalNotAllowed  = shared.NewDomainError("REVERSAL_NOT_ALLOWED", "A reversal entry cannot itself be reversed")
	ErrIdempotencyConflict = shared.NewDomainError("IDEMPOTENCY_CONFLICT", "Idempotency key was already used for a different entry")
)

// ManualLineRequest is one line of a manual entry
type ManualLineRequest struct {
	Category      string           `json:"category" validate:"max=100"`
	LineType      ledger.LineType  `json:"lineType" validate:"required,oneof=INCOME FEE EXPENSE TAX_COLLECTED ITC OTHER"`
	Amount        decimal.Decimal  `json:"amount" validate:"ne=0"`
	GstHst        decimal.Decimal  `json:"gstHst"`
	DeductiblePct *decimal.Decimal `json:"deductiblePct,omitempty" validate:"omitempty,gte=0,lte=1"`
	Description   string           `json:"description" validate:"max=500"`
}

// ManualEntryRequest posts an entry keyed by a caller idempotency key
type ManualEntryRequest struct {
	TenantID       uuid.UUID           `json:"tenantId" validate:"required"`
	IdempotencyKey string              `json:"idempotencyKey" validate:"required,max=128"`
	EntryDate      time.Time           `json:"entryDate" validate:"required"`
	PostedBy       ledger.PostedByType `json:"postedBy" validate:"required,oneof=DRIVER ADMIN SYSTEM"`
	PostedByID     *uuid.UUID          `json:"postedById,omitempty"`
	Description    string              `json:"description" validate:"max=500"`
	CorrelationID  string              `json:"correlationId" validate:"max=128"`
	Lines          []ManualLineRequest `json:"lines" validate:"required,min=1,max=50,dive"`
}

// ReverseEntryRequest cancels an entry with an adjustment
type ReverseEntryRequest struct {
	TenantID       uuid.UUID           `json:"tenantId" validate:"required"`
	EntryID        uuid.UUID           `json:"entryId" validate:"required"`
	IdempotencyKey string              `json:"idempotencyKey" validate:"required,max=128"`
	Reason         string              `json:"reason" validate:"required,max=500"`
	PostedBy       ledger.PostedByType `json:"postedBy" validate:"required,oneof=DRIVER ADMIN SYSTEM"`
	PostedByID     *uuid.UUID          `json:"postedById,omitempty"`
	CorrelationID  string              `json:"correlationId" validate:"max=128"`
}

// PostingService appends entries to the ledger, exactly once per source
type PostingService struct {
	scope  transaction.TransactionScope
	logger *zap.Logger
}

// NewPostingService creates a new PostingService
func NewPostingService(scope transaction.TransactionScope, logger *zap.Logger) *PostingService {
	return &PostingService{scope: scope, logger: logger}
}

// Post appends the entry described by spec in its own transaction.
// If an entry already exists for the source it is returned with created=false.
func (s *PostingService) Post(ctx context.Context, spec ledger.EntrySpec) (*ledger.LedgerEntry, bool, error) {
	var (
		entry   *ledger.LedgerEntry
		created bool
	)
	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		var err error
		entry, created, err = s.PostInTx(ctx, repos, spec)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	s.Observe(entry, created)
	return entry, created, nil
}

// PostInTx appends the entry inside the caller's transaction, together with its
// ledger.posted envelope and audit record. A concurrent insert that wins the unique
// (tenant, source type, source id) race is re-read and returned with created=false.
func (s *PostingService) PostInTx(ctx context.Context, repos transaction.TransactionalRepositories, spec ledger.EntrySpec) (*ledger.LedgerEntry, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "ledger.post",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, spec.TenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrSourceType, spec.SourceType.String()),
		telemetry.WithAttribute(telemetry.SpanAttrSourceID, spec.SourceID.String()),
	)
	defer span.End()

	entries := repos.Ledger()
	existing, err := entries.FindBySource(ctx, spec.TenantID, spec.SourceType, spec.SourceID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		telemetry.RecordError(span, err)
		return nil, false, fmt.Errorf("failed to look up ledger source: %w", err)
	}

	entry, err := ledger.NewLedgerEntry(spec)
	if err != nil {
		return nil, false, err
	}
	if err := entries.Append(ctx, entry); err != nil {
		if !errors.Is(err, ledger.ErrDuplicateSource) {
			telemetry.RecordError(span, err)
			return nil, false, err
		}
		winner, findErr := entries.FindBySource(ctx, spec.TenantID, spec.SourceType, spec.SourceID)
		if findErr != nil {
			return nil, false, errors.Join(err, findErr)
		}
		return winner, false, nil
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrEntryID, entry.ID.String())

	if err := repos.Events().Record(ctx, ledger.NewLedgerPostedEvent(entry)); err != nil {
		return nil, false, fmt.Errorf("failed to record ledger event: %w", err)
	}
	action := audit.ActionLedgerPosted
	if entry.IsReversal() {
		action = audit.ActionLedgerReversed
	}
	details := map[string]any{
		"sourceType": entry.SourceType,
		"sourceId":   entry.SourceID,
		"entryDate":  entry.EntryDate.Format("2006-01-02"),
		"evidence":   entry.Evidence,
		"lineCount":  len(entry.Lines),
	}
	if entry.ReverseEntryID != nil {
		details["reverseEntryId"] = *entry.ReverseEntryID
	}
	if err := repos.Audit().Append(ctx, audit.NewEvent(entry.TenantID, action, EntityTypeLedgerEntry,
		entry.ID, entry.CorrelationID, details)); err != nil {
		return nil, false, fmt.Errorf("failed to write ledger audit: %w", err)
	}
	return entry, true, nil
}

// Observe logs and counts a posting once its transaction committed
func (s *PostingService) Observe(entry *ledger.LedgerEntry, created bool) {
	fields := []zap.Field{
		zap.String("tenant_id", entry.TenantID.String()),
		zap.String("ledger_entry_id", entry.ID.String()),
		zap.String("source_type", entry.SourceType.String()),
		zap.String("source_id", entry.SourceID.String()),
		zap.String("correlation_id", entry.CorrelationID),
	}
	if !created {
		s.logger.Info("ledger entry already exists for source", fields...)
		return
	}
	metrics.LedgerEntriesPostedTotal.WithLabelValues(entry.SourceType.String()).Inc()
	s.logger.Info("ledger entry posted", fields...)
}

// PostManual posts an operator entry. Retries with the same idempotency key return the first entry.
func (s *PostingService) PostManual(ctx context.Context, req ManualEntryRequest) (*ledger.LedgerEntry, bool, error) {
	if err := validation.Struct(req); err != nil {
		return nil, false, err
	}
	lines := make([]ledger.LineSpec, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = ledger.LineSpec{
			Category:      l.Category,
			LineType:      l.LineType,
			Amount:        l.Amount,
			GstHst:        l.GstHst,
			DeductiblePct: l.DeductiblePct,
			Description:   l.Description,
		}
	}
	return s.Post(ctx, ledger.EntrySpec{
		TenantID:       req.TenantID,
		EntryDate:      req.EntryDate,
		SourceType:     ledger.SourceTypeManual,
		SourceID:       ledger.SourceIDForKey(req.TenantID, ledger.SourceTypeManual, req.IdempotencyKey),
		PostedByType:   req.PostedBy,
		PostedByID:     req.PostedByID,
		CorrelationID:  correlationOrNew(req.CorrelationID),
		Evidence:       ledger.EvidenceEvidenced,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
		Lines:          lines,
	})
}

// Reverse posts an adjustment that negates every line of an entry.
// An entry can be reversed once; a retry with the same key returns the first reversal.
func (s *PostingService) Reverse(ctx context.Context, req ReverseEntryRequest) (*ledger.LedgerEntry, bool, error) {
	if err := validation.Struct(req); err != nil {
		return nil, false, err
	}
	var (
		entry   *ledger.LedgerEntry
		created bool
	)
	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		var err error
		entry, created, err = s.ReverseInTx(ctx, repos, req)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	s.Observe(entry, created)
	return entry, created, nil
}

// ReverseInTx posts the reversal inside the caller's transaction.
// The reversal is dated like the original so the original's periods net to zero.
func (s *PostingService) ReverseInTx(ctx context.Context, repos transaction.TransactionalRepositories, req ReverseEntryRequest) (*ledger.LedgerEntry, bool, error) {
	sourceID := ledger.SourceIDForKey(req.TenantID, ledger.SourceTypeAdjustment, req.IdempotencyKey)
	entries := repos.Ledger()

	existing, err := entries.FindBySource(ctx, req.TenantID, ledger.SourceTypeAdjustment, sourceID)
	switch {
	case err == nil:
		if existing.ReverseEntryID == nil || *existing.ReverseEntryID != req.EntryID {
			return nil, false, ErrIdempotencyConflict
		}
		return existing, false, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, false, fmt.Errorf("failed to look up adjustment: %w", err)
	}

	original, err := entries.FindByID(ctx, req.TenantID, req.EntryID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load entry %s: %w", req.EntryID, err)
	}
	if original.IsReversal() {
		return nil, false, ErrReversalNotAllowed
	}
	if _, err := entries.FindReversalOf(ctx, req.TenantID, original.ID); err == nil {
		return nil, false, ErrAlreadyReversed
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up reversal: %w", err)
	}

	reversed := original.ID
	return s.PostInTx(ctx, repos, ledger.EntrySpec{
		TenantID:       req.TenantID,
		EntryDate:      original.EntryDate,
		SourceType:     ledger.SourceTypeAdjustment,
		SourceID:       sourceID,
		PostedByType:   req.PostedBy,
		PostedByID:     req.PostedByID,
		CorrelationID:  correlationOrNew(req.CorrelationID),
		Evidence:       original.Evidence,
		Description:    req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		ReverseEntryID: &reversed,
		Lines:          original.ReversalLines(),
		Links:          []ledger.LinkSpec{{Kind: ledger.SourceLinkReversedEntry, ReferenceID: original.ID}},
	})
}

// Get loads an entry with its lines and links
func (s *PostingService) Get(ctx context.Context, tenantID, entryID uuid.UUID) (*ledger.LedgerEntry, error) {
	var found *ledger.LedgerEntry
	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		e, err := repos.Ledger().FindByID(ctx, tenantID, entryID)
		found = e
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func correlationOrNew(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}
