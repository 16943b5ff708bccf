package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/infrastructure/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReceiptReadyHandler_EventTypes(t *testing.T) {
	h := NewReceiptReadyHandler(nil, nil, zap.NewNop())
	assert.Equal(t, []string{receipt.EventTypeReceiptReady}, h.EventTypes())
}

func TestReceiptReadyHandler_WrongEventType(t *testing.T) {
	h := NewReceiptReadyHandler(nil, nil, zap.NewNop())
	wrong := ledger.NewLedgerPostedEvent(&ledger.LedgerEntry{ID: uuid.New(), TenantID: uuid.New()})

	err := h.Handle(context.Background(), wrong)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected event type")
}

func TestReceiptReadyHandler_PostsExpenseAndItc(t *testing.T) {
	f := newFixture(t)
	r, ready := f.readyReceipt(t, "113.00", "13.00", false)

	require.NoError(t, f.receipts.Handle(context.Background(), ready))

	entry := f.entryForSource(t, ledger.SourceTypeReceipt, r.ID)
	assert.Equal(t, day(2025, 12, 10), entry.EntryDate.UTC())
	assert.Equal(t, ledger.PostedBySystem, entry.PostedByType)
	assert.Equal(t, ledger.EvidenceEvidenced, entry.Evidence)
	assert.Equal(t, "corr-receipt", entry.CorrelationID)
	assert.True(t, dec("100.00").Equal(entry.Total(ledger.LineTypeExpense)))
	assert.True(t, dec("13.00").Equal(entry.Total(ledger.LineTypeItc)))

	kinds := make([]ledger.SourceLinkKind, len(entry.SourceLinks))
	for i, l := range entry.SourceLinks {
		kinds[i] = l.Kind
	}
	assert.ElementsMatch(t, []ledger.SourceLinkKind{ledger.SourceLinkReceipt, ledger.SourceLinkReceiptFile}, kinds)

	posted := f.loadReceipt(t, r.ID)
	assert.Equal(t, receipt.ReceiptStatusPosted, posted.Status)
	require.NotNil(t, posted.LedgerEntryID)
	assert.Equal(t, entry.ID, *posted.LedgerEntryID)

	events := f.postedEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, "corr-receipt", events[0].CorrelationID())
}

func TestReceiptReadyHandler_HeldReceiptIsEstimated(t *testing.T) {
	f := newFixture(t)
	r, ready := f.readyReceipt(t, "56.50", "6.50", true)

	require.NoError(t, f.receipts.Handle(context.Background(), ready))

	entry := f.entryForSource(t, ledger.SourceTypeReceipt, r.ID)
	assert.Equal(t, ledger.EvidenceEstimated, entry.Evidence)
}

func TestReceiptReadyHandler_RedeliveryPostsOnce(t *testing.T) {
	f := newFixture(t)
	_, ready := f.readyReceipt(t, "113.00", "13.00", false)
	ctx := context.Background()

	require.NoError(t, f.receipts.Handle(ctx, ready))
	require.NoError(t, f.receipts.Handle(ctx, ready))

	assert.Len(t, f.postedEvents(t), 1)
}

func TestReceiptReadyHandler_BehindGate(t *testing.T) {
	f := newFixture(t)
	r, ready := f.readyReceipt(t, "113.00", "13.00", false)
	gated := event.NewIdempotentHandler(JobTypeReceiptPosting, f.receipts, f.env.Gate, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, gated.Handle(ctx, ready))
	require.NoError(t, gated.Handle(ctx, ready))

	assert.Len(t, f.postedEvents(t), 1)
	assert.Equal(t, int64(1), gated.GetMetrics().Stats().EventsDuplicate)
	assert.Equal(t, receipt.ReceiptStatusPosted, f.loadReceipt(t, r.ID).Status)
}

func TestReceiptReadyHandler_UnknownReceiptIsNoOp(t *testing.T) {
	f := newFixture(t)
	r, _ := f.readyReceipt(t, "113.00", "13.00", false)
	r.ID = uuid.New()

	require.NoError(t, f.receipts.Handle(context.Background(), receipt.NewReceiptReadyEvent(r, 0.95, "")))
	assert.Empty(t, f.postedEvents(t))
}
