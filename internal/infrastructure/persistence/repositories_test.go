package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/application/transaction"
	"github.com/livestatement/backend/internal/domain/audit"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/reconciliation"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/event"
	"github.com/livestatement/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReceiptEntry(t *testing.T, tenantID uuid.UUID, total, tax string) *ledger.LedgerEntry {
	t.Helper()
	sourceID := uuid.New()
	entry, err := ledger.NewLedgerEntry(ledger.EntrySpec{
		TenantID:     tenantID,
		EntryDate:    time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC),
		SourceType:   ledger.SourceTypeReceipt,
		SourceID:     sourceID,
		PostedByType: ledger.PostedBySystem,
		Description:  "Fuel Stop",
		Lines: ledger.ReceiptLines(decimal.RequireFromString(total), decimal.RequireFromString(tax),
			decimal.NewFromInt(1), "fuel", "Fuel Stop"),
		Links: []ledger.LinkSpec{{Kind: ledger.SourceLinkReceipt, ReferenceID: sourceID}},
	})
	require.NoError(t, err)
	return entry
}

func newTestScope(d *Database) *GormTransactionScope {
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	return NewGormTransactionScope(d.DB, event.NewOutboxPublisher(serializer))
}

func TestReceiptRepository_SaveAndFind(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	repo := NewGormReceiptRepository(d.DB)
	tenantID := uuid.New()

	rc, err := receipt.NewReceipt(tenantID, uuid.New())
	require.NoError(t, err)
	require.NoError(t, rc.Submit("corr-1"))
	require.NoError(t, repo.Save(ctx, rc))

	found, err := repo.FindByID(ctx, tenantID, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.ReceiptStatusSubmitted, found.Status)
	assert.Equal(t, 1, found.Submission)
	assert.True(t, found.DeductiblePct.Equal(decimal.NewFromInt(1)))

	_, err = repo.FindByID(ctx, uuid.New(), rc.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	submitted, err := repo.FindByStatus(ctx, tenantID, receipt.ReceiptStatusSubmitted, 10)
	require.NoError(t, err)
	assert.Len(t, submitted, 1)
}

func TestReceiptRepository_OptimisticLock(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	repo := NewGormReceiptRepository(d.DB)
	tenantID := uuid.New()

	rc, err := receipt.NewReceipt(tenantID, uuid.New())
	require.NoError(t, err)
	require.NoError(t, rc.Submit("corr-1"))
	require.NoError(t, repo.Save(ctx, rc))

	first, err := repo.FindByID(ctx, tenantID, rc.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, tenantID, rc.ID)
	require.NoError(t, err)

	require.NoError(t, first.StartProcessing())
	require.NoError(t, repo.Save(ctx, first))
	assert.Equal(t, rc.Version+1, first.Version)

	require.NoError(t, second.StartProcessing())
	assert.ErrorIs(t, repo.Save(ctx, second), shared.ErrConcurrencyConflict)
}

func TestExtractionRepository_FindLatest(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	repo := NewGormExtractionRepository(d.DB)
	tenantID := uuid.New()
	rc, err := receipt.NewReceipt(tenantID, uuid.New())
	require.NoError(t, err)

	total := decimal.RequireFromString("113.00")
	for i := 1; i <= 2; i++ {
		rc.Submission = i
		result := &receipt.ExtractionResult{
			Normalized:   receipt.NewReceiptDocument(receipt.ReceiptFields{Vendor: "Fuel Stop", Total: &total}),
			ModelVersion: fmt.Sprintf("v%d", i),
			RawPayload:   []byte(`{"ok":true}`),
		}
		require.NoError(t, repo.Append(ctx, receipt.NewReceiptExtraction(rc, result, 0.9)))
	}

	latest, err := repo.FindLatest(ctx, tenantID, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Submission)
	assert.Equal(t, "v2", latest.ModelVersion)
	fields, ok := latest.Normalized.ReceiptFields()
	require.True(t, ok)
	assert.Equal(t, "Fuel Stop", fields.Vendor)

	_, err = repo.FindLatest(ctx, tenantID, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReviewRepository_OpenAndResolve(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	repo := NewGormReviewRepository(d.DB)
	tenantID := uuid.New()
	rc, err := receipt.NewReceipt(tenantID, uuid.New())
	require.NoError(t, err)

	review := receipt.NewReceiptReview(rc, receipt.Decision{
		Outcome:   receipt.OutcomeHold,
		Reason:    "missing total",
		Questions: []receipt.Question{{Field: "total", Prompt: "What is the total?"}},
	})
	require.NoError(t, repo.Save(ctx, review))

	open, err := repo.FindOpenByReceipt(ctx, tenantID, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, "missing total", open.HoldReason)
	require.Len(t, open.Questions, 1)
	assert.Equal(t, "total", open.Questions[0].Field)

	require.NoError(t, open.Resolve(receipt.ReviewResolutionApproved, uuid.New(), "checked"))
	require.NoError(t, repo.Save(ctx, open))

	_, err = repo.FindOpenByReceipt(ctx, tenantID, rc.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	all, err := repo.FindOpen(ctx, tenantID, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLedgerRepository_AppendAndQuery(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	repo := NewGormLedgerRepository(d.DB)
	tenantID := uuid.New()

	entry := newReceiptEntry(t, tenantID, "113.00", "13.00")
	require.NoError(t, repo.Append(ctx, entry))

	t.Run("duplicate source", func(t *testing.T) {
		dup := newReceiptEntry(t, tenantID, "50.00", "0")
		dup.SourceID = entry.SourceID
		assert.ErrorIs(t, repo.Append(ctx, dup), ledger.ErrDuplicateSource)
	})

	t.Run("find by source", func(t *testing.T) {
		found, err := repo.FindBySource(ctx, tenantID, ledger.SourceTypeReceipt, entry.SourceID)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, found.ID)
		require.Len(t, found.Lines, 2)
		assert.True(t, found.Total(ledger.LineTypeExpense).Equal(decimal.RequireFromString("100.00")))
		assert.True(t, found.Total(ledger.LineTypeItc).Equal(decimal.RequireFromString("13.00")))
	})

	t.Run("line facts are bounded by period", func(t *testing.T) {
		dec, err := ledger.ResolvePeriod(ledger.PeriodTypeMonthly, "2025-12")
		require.NoError(t, err)
		facts, err := repo.LineFacts(ctx, tenantID, dec)
		require.NoError(t, err)
		assert.Len(t, facts, 2)

		nov, err := ledger.ResolvePeriod(ledger.PeriodTypeMonthly, "2025-11")
		require.NoError(t, err)
		facts, err = repo.LineFacts(ctx, tenantID, nov)
		require.NoError(t, err)
		assert.Empty(t, facts)

		facts, err = repo.LineFacts(ctx, uuid.New(), dec)
		require.NoError(t, err)
		assert.Empty(t, facts)
	})

	t.Run("save and delete without a transaction are refused", func(t *testing.T) {
		assert.ErrorIs(t, repo.Save(ctx, entry), ledger.ErrLedgerAppendOnly)
		assert.ErrorIs(t, repo.Delete(ctx, tenantID, entry.ID), ledger.ErrLedgerAppendOnly)
	})

	t.Run("reversal lookup", func(t *testing.T) {
		reversal, err := ledger.NewLedgerEntry(ledger.EntrySpec{
			TenantID:       tenantID,
			EntryDate:      entry.EntryDate,
			SourceType:     ledger.SourceTypeAdjustment,
			SourceID:       ledger.SourceIDForKey(tenantID, ledger.SourceTypeAdjustment, "reverse-1"),
			PostedByType:   ledger.PostedByAdmin,
			ReverseEntryID: &entry.ID,
			Lines:          entry.ReversalLines(),
		})
		require.NoError(t, err)
		require.NoError(t, repo.Append(ctx, reversal))

		found, err := repo.FindReversalOf(ctx, tenantID, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, reversal.ID, found.ID)
	})
}

func TestSnapshotRepository_UpsertReplaces(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	repo := NewGormSnapshotRepository(d.DB)
	tenantID := uuid.New()
	period, err := ledger.ResolvePeriod(ledger.PeriodTypeYTD, "2025")
	require.NoError(t, err)

	first := ledger.CalculateSnapshot(tenantID, period, []ledger.LineFact{
		{LineType: ledger.LineTypeExpense, Amount: decimal.NewFromInt(100), Evidence: ledger.EvidenceEvidenced},
	}, time.Now())
	require.NoError(t, repo.Upsert(ctx, first))
	originalID := first.ID

	second := ledger.CalculateSnapshot(tenantID, period, []ledger.LineFact{
		{LineType: ledger.LineTypeExpense, Amount: decimal.NewFromInt(100), Evidence: ledger.EvidenceEvidenced},
		{LineType: ledger.LineTypeItc, Amount: decimal.NewFromInt(13), Evidence: ledger.EvidenceEstimated},
	}, time.Now())
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, originalID, second.ID)

	var count int64
	require.NoError(t, d.DB.Model(&models.LedgerSnapshotModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	stored, err := repo.Find(ctx, tenantID, ledger.PeriodTypeYTD, "2025")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.LineCount)
	assert.Equal(t, 50, stored.AuthorityScore)
	itc, ok := stored.Detail(ledger.MetricItcTotal)
	require.True(t, ok)
	assert.True(t, itc.Value.Equal(decimal.NewFromInt(13)))
	assert.Len(t, stored.Details, len(second.Details))

	_, err = repo.Find(ctx, tenantID, ledger.PeriodTypeMonthly, "2025-01")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStatementRepository_FindForYear(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	repo := NewGormStatementRepository(d.DB)
	tenantID := uuid.New()

	mk := func(pt reconciliation.StatementPeriodType, key string) *reconciliation.Statement {
		s, err := reconciliation.NewStatement(tenantID, "Uber", pt, key, []reconciliation.StatementLineInput{
			{Description: "Gross fares", Amount: decimal.NewFromInt(1000)},
		})
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, s))
		return s
	}
	yearly := mk(reconciliation.StatementPeriodYearly, "2025")
	mk(reconciliation.StatementPeriodMonthly, "2025-01")
	mk(reconciliation.StatementPeriodMonthly, "2024-12")

	require.NoError(t, yearly.Post())
	require.NoError(t, repo.Save(ctx, yearly))

	found, err := repo.FindForYear(ctx, tenantID, "uber", 2025)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "2025", found[0].PeriodKey)
	assert.True(t, found[0].IsPosted())
	require.Len(t, found[1].Lines, 1)
	assert.Equal(t, "Gross fares", found[1].Lines[0].Description)
}

func TestRunRepository_RerunReplacesVariances(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	repo := NewGormRunRepository(d.DB)
	tenantID := uuid.New()
	metric := reconciliation.Metric{Key: "GrossFares", LineType: ledger.LineTypeIncome}

	run := reconciliation.NewRun(tenantID, "uber", 2025)
	run.Apply(&reconciliation.Result{
		YearlyStatementID: uuid.New(),
		Metrics: []reconciliation.MetricResult{
			{Metric: metric, MonthlyTotal: decimal.NewFromInt(1000), YearlyTotal: decimal.NewFromInt(900)},
		},
	}, time.Now())
	require.NoError(t, repo.Save(ctx, run))

	v, ok := run.Variance("GrossFares")
	require.True(t, ok)
	entryID := uuid.New()
	require.NoError(t, repo.RecordVariancePosting(ctx, tenantID, v.ID, &entryID, v.Correction()))

	loaded, err := repo.Find(ctx, tenantID, "Uber", "2025")
	require.NoError(t, err)
	assert.Equal(t, reconciliation.RunStatusVarianceDetected, loaded.Status)
	loaded.Apply(&reconciliation.Result{
		YearlyStatementID: loaded.YearlyStatementID,
		Metrics: []reconciliation.MetricResult{
			{Metric: metric, MonthlyTotal: decimal.NewFromInt(1000), YearlyTotal: decimal.NewFromInt(1000)},
		},
	}, time.Now())
	require.NoError(t, repo.Save(ctx, loaded))

	rerun, err := repo.FindByID(ctx, tenantID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rerun.Revision)
	assert.Equal(t, reconciliation.RunStatusMatched, rerun.Status)
	require.Len(t, rerun.Variances, 1)
	assert.True(t, rerun.Variances[0].VarianceAmount.IsZero())
	require.NotNil(t, rerun.Variances[0].LedgerEntryID)
	assert.Equal(t, entryID, *rerun.Variances[0].LedgerEntryID)

	var count int64
	require.NoError(t, d.DB.Model(&models.ReconciliationVarianceModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	assert.ErrorIs(t, repo.RecordVariancePosting(ctx, tenantID, uuid.New(), nil, decimal.Zero), shared.ErrNotFound)
}

func TestAuditRepository_AppendAndFind(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	repo := NewGormAuditRepository(d.DB)
	tenantID := uuid.New()
	entityID := uuid.New()

	require.NoError(t, repo.Append(ctx,
		audit.NewEvent(tenantID, audit.ActionReceiptSubmitted, "receipt", entityID, "corr", nil),
		audit.NewEvent(tenantID, audit.ActionReceiptHeld, "receipt", entityID, "corr", map[string]string{"reason": "low confidence"}),
	))
	require.NoError(t, repo.Append(ctx))

	events, err := repo.FindByEntity(ctx, tenantID, "receipt", entityID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.JSONEq(t, `{"reason":"low confidence"}`, string(events[1].Details))
}

func TestProcessingJobRepository_Gate(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	gate := NewGormProcessingJobRepository(d.DB)
	tenantID := uuid.New()

	res, err := gate.Admit(ctx, tenantID, "ledger.post_receipt", "receipt.ready.v1:abc")
	require.NoError(t, err)
	assert.Equal(t, shared.Admitted, res)

	res, err = gate.Admit(ctx, tenantID, "ledger.post_receipt", "receipt.ready.v1:abc")
	require.NoError(t, err)
	assert.Equal(t, shared.Retrying, res)

	require.NoError(t, gate.MarkFailed(ctx, tenantID, "ledger.post_receipt", "receipt.ready.v1:abc", errors.New("boom")))
	failed, err := gate.FindFailed(ctx, tenantID, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].LastError)

	res, err = gate.Admit(ctx, tenantID, "ledger.post_receipt", "receipt.ready.v1:abc")
	require.NoError(t, err)
	assert.Equal(t, shared.Retrying, res)

	require.NoError(t, gate.MarkSucceeded(ctx, tenantID, "ledger.post_receipt", "receipt.ready.v1:abc"))
	res, err = gate.Admit(ctx, tenantID, "ledger.post_receipt", "receipt.ready.v1:abc")
	require.NoError(t, err)
	assert.Equal(t, shared.AlreadySucceeded, res)

	job, err := gate.FindByKey(ctx, tenantID, "ledger.post_receipt", "receipt.ready.v1:abc")
	require.NoError(t, err)
	assert.Equal(t, shared.JobStatusSucceeded, job.Status)
	assert.Equal(t, 3, job.Attempts)
	assert.Empty(t, job.LastError)

	res, err = gate.Admit(ctx, uuid.New(), "ledger.post_receipt", "receipt.ready.v1:abc")
	require.NoError(t, err)
	assert.Equal(t, shared.Admitted, res, "keys are scoped by tenant")

	assert.ErrorIs(t, gate.MarkSucceeded(ctx, tenantID, "other", "missing"), shared.ErrNotFound)
}

func TestProcessingJobRepository_MarkFailedKeepsValidUTF8(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	gate := NewGormProcessingJobRepository(d.DB)
	tenantID := uuid.New()

	_, err := gate.Admit(ctx, tenantID, "receipt.extraction", "receipt.received.v1:r1")
	require.NoError(t, err)

	cause := errors.New("x" + strings.Repeat("reçu illisible ", shared.MaxJobErrorLength))
	require.NoError(t, gate.MarkFailed(ctx, tenantID, "receipt.extraction", "receipt.received.v1:r1", cause))

	job, err := gate.FindByKey(ctx, tenantID, "receipt.extraction", "receipt.received.v1:r1")
	require.NoError(t, err)
	assert.Equal(t, shared.JobStatusFailed, job.Status)
	assert.True(t, utf8.ValidString(job.LastError))
	assert.LessOrEqual(t, len(job.LastError), shared.MaxJobErrorLength)
}

func TestTransactionScope_CommitsTogether(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	scope := newTestScope(d)
	tenantID := uuid.New()

	rc, err := receipt.NewReceipt(tenantID, uuid.New())
	require.NoError(t, err)
	require.NoError(t, rc.Submit("corr-1"))

	err = scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		if err := repos.Receipts().Save(ctx, rc); err != nil {
			return err
		}
		if err := repos.Audit().Append(ctx, audit.NewEvent(tenantID, audit.ActionReceiptSubmitted, "receipt", rc.ID, "corr-1", nil)); err != nil {
			return err
		}
		return repos.Events().Record(ctx, rc.PendingEvents()...)
	})
	require.NoError(t, err)

	var outbox int64
	require.NoError(t, d.DB.Model(&models.OutboxEntryModel{}).Count(&outbox).Error)
	assert.Equal(t, int64(1), outbox)
	_, err = NewGormReceiptRepository(d.DB).FindByID(ctx, tenantID, rc.ID)
	assert.NoError(t, err)
}

func TestTransactionScope_RollsBack(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	scope := newTestScope(d)
	tenantID := uuid.New()

	entry := newReceiptEntry(t, tenantID, "113.00", "13.00")
	require.NoError(t, NewGormLedgerRepository(d.DB).Append(ctx, entry))

	t.Run("ledger update rejected at commit", func(t *testing.T) {
		rc, err := receipt.NewReceipt(tenantID, uuid.New())
		require.NoError(t, err)

		err = scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
			if err := repos.Receipts().Save(ctx, rc); err != nil {
				return err
			}
			entry.Description = "edited"
			return repos.Ledger().Save(ctx, entry)
		})
		assert.ErrorIs(t, err, ledger.ErrLedgerAppendOnly)

		_, err = NewGormReceiptRepository(d.DB).FindByID(ctx, tenantID, rc.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("ledger delete rejected at commit", func(t *testing.T) {
		err := scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
			return repos.Ledger().Delete(ctx, tenantID, entry.ID)
		})
		assert.ErrorIs(t, err, ledger.ErrLedgerAppendOnly)
	})

	t.Run("handler error", func(t *testing.T) {
		boom := errors.New("boom")
		next := newReceiptEntry(t, tenantID, "20.00", "0")
		err := scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
			if err := repos.Ledger().Append(ctx, next); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = NewGormLedgerRepository(d.DB).FindByID(ctx, tenantID, next.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("extra guard", func(t *testing.T) {
		denyAudit := func(changes []shared.PendingChange) error {
			for _, c := range changes {
				if c.Target == targetAuditEvent {
					return errors.New("audit disabled")
				}
			}
			return nil
		}
		guarded := NewGormTransactionScope(d.DB, nil, denyAudit)
		err := guarded.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
			return repos.Audit().Append(ctx, audit.NewEvent(tenantID, audit.ActionLedgerPosted, "ledger_entry", entry.ID, "", nil))
		})
		assert.EqualError(t, err, "audit disabled")
	})

	stored, err := NewGormLedgerRepository(d.DB).FindByID(ctx, tenantID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fuel Stop", stored.Description)
}
