package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/application/transaction"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	env       *testutil.Env
	posting   *PostingService
	snapshots *SnapshotService
	receipts  *ReceiptReadyHandler
	snapshot  *SnapshotHandler
	variances *ReconciliationCompletedHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := testutil.NewEnv(t)
	logger := zap.NewNop()
	posting := NewPostingService(env.Scope, logger)
	snapshots := NewSnapshotService(env.Scope, logger)
	return &fixture{
		env:       env,
		posting:   posting,
		snapshots: snapshots,
		receipts:  NewReceiptReadyHandler(env.Scope, posting, logger),
		snapshot:  NewSnapshotHandler(snapshots, logger),
		variances: NewReconciliationCompletedHandler(env.Scope, posting, logger),
	}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// readyReceipt stores a receipt that passed extraction and returns its receipt.ready envelope.
// A held receipt is approved by a reviewer instead.
func (f *fixture) readyReceipt(t *testing.T, total, tax string, held bool) (*receipt.Receipt, *receipt.ReceiptReadyEvent) {
	t.Helper()
	r, err := receipt.NewReceipt(testutil.TestTenantID(), uuid.New())
	require.NoError(t, err)
	r.Category = "fuel"
	require.NoError(t, r.Submit("corr-receipt"))
	require.NoError(t, r.StartProcessing())

	date := day(2025, time.December, 10)
	tot, tx := dec(total), dec(tax)
	fields := receipt.ReceiptFields{Date: &date, Vendor: "Fuel Stop", Total: &tot, Tax: &tx, Currency: "CAD"}
	confidence := 0.95
	if held {
		confidence = 0.4
	}
	require.NoError(t, r.CompleteExtraction(confidence))
	doc := receipt.NewReceiptDocument(fields)
	require.NoError(t, r.ApplyDecision(doc, receipt.Evaluate(doc, confidence), "corr-receipt"))
	if held {
		require.Equal(t, receipt.ReceiptStatusHold, r.Status)
		require.NoError(t, r.Approve(fields, "corr-receipt"))
	}
	require.Equal(t, receipt.ReceiptStatusReadyForPosting, r.Status)

	var ready *receipt.ReceiptReadyEvent
	for _, evt := range r.PendingEvents() {
		if e, ok := evt.(*receipt.ReceiptReadyEvent); ok {
			ready = e
		}
	}
	require.NotNil(t, ready)
	r.ClearPendingEvents()

	require.NoError(t, f.env.Scope.Execute(context.Background(), func(repos transaction.TransactionalRepositories) error {
		return repos.Receipts().Save(context.Background(), r)
	}))
	return r, ready
}

func (f *fixture) loadReceipt(t *testing.T, id uuid.UUID) *receipt.Receipt {
	t.Helper()
	var r *receipt.Receipt
	require.NoError(t, f.env.Scope.Execute(context.Background(), func(repos transaction.TransactionalRepositories) error {
		var err error
		r, err = repos.Receipts().FindByID(context.Background(), testutil.TestTenantID(), id)
		return err
	}))
	return r
}

func (f *fixture) entryForSource(t *testing.T, sourceType ledger.SourceType, sourceID uuid.UUID) *ledger.LedgerEntry {
	t.Helper()
	var e *ledger.LedgerEntry
	require.NoError(t, f.env.Scope.Execute(context.Background(), func(repos transaction.TransactionalRepositories) error {
		var err error
		e, err = repos.Ledger().FindBySource(context.Background(), testutil.TestTenantID(), sourceType, sourceID)
		return err
	}))
	return e
}

// postedEvents returns the recorded ledger.posted envelopes
func (f *fixture) postedEvents(t *testing.T) []*ledger.LedgerPostedEvent {
	t.Helper()
	var out []*ledger.LedgerPostedEvent
	for _, evt := range f.env.RecordedEvents(t, ledger.EventTypeLedgerPosted) {
		out = append(out, evt.(*ledger.LedgerPostedEvent))
	}
	return out
}

func (f *fixture) manual(key string, date time.Time, lines ...ManualLineRequest) ManualEntryRequest {
	return ManualEntryRequest{
		TenantID:       testutil.TestTenantID(),
		IdempotencyKey: key,
		EntryDate:      date,
		PostedBy:       ledger.PostedByAdmin,
		Description:    "Cash fares",
		Lines:          lines,
	}
}
