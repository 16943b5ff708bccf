package receipt

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockFileStore is a mock implementation of receipt.FileStore
type MockFileStore struct {
	mock.Mock
}

func (m *MockFileStore) Open(ctx context.Context, tenantID, fileObjectID uuid.UUID) (io.ReadCloser, error) {
	args := m.Called(ctx, tenantID, fileObjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// MockExtractor is a mock implementation of receipt.Extractor
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, document io.Reader) (*receipt.ExtractionResult, error) {
	args := m.Called(ctx, document)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*receipt.ExtractionResult), args.Error(1)
}

func document() io.ReadCloser {
	return io.NopCloser(strings.NewReader("%PDF-1.7 receipt"))
}

func confidence(v float64) *float64 {
	return &v
}

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// fuelReceipt is a complete, trustworthy extraction
func fuelReceipt() *receipt.ExtractionResult {
	date := time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC)
	return &receipt.ExtractionResult{
		Normalized: receipt.NewReceiptDocument(receipt.ReceiptFields{
			Date:     &date,
			Vendor:   "Fuel Stop",
			Total:    money("113.00"),
			Tax:      money("13.00"),
			Currency: "cad",
		}),
		Confidence:   confidence(0.95),
		ModelVersion: "receipt-v3",
		RawPayload:   []byte(`{"vendor":"Fuel Stop"}`),
	}
}

// unreadableReceipt scores low and has no usable total
func unreadableReceipt() *receipt.ExtractionResult {
	return &receipt.ExtractionResult{
		Normalized:   receipt.NewReceiptDocument(receipt.ReceiptFields{Total: money("0")}),
		Confidence:   confidence(0.5),
		ModelVersion: "receipt-v3",
	}
}

type fixture struct {
	env        *testutil.Env
	files      *MockFileStore
	extractor  *MockExtractor
	submission *SubmissionService
	handler    *ExtractionHandler
	reviews    *ReviewService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	env := testutil.NewEnv(t)
	files := new(MockFileStore)
	extractor := new(MockExtractor)
	logger := zap.NewNop()
	return &fixture{
		env:        env,
		files:      files,
		extractor:  extractor,
		submission: NewSubmissionService(env.Scope, logger),
		handler:    NewExtractionHandler(env.Scope, files, extractor, logger),
		reviews:    NewReviewService(env.Scope, logger),
	}
}

// submit creates a receipt and returns it with its receipt.received envelope
func (f *fixture) submit(t *testing.T) (*receipt.Receipt, *receipt.ReceiptReceivedEvent) {
	t.Helper()
	r, err := f.submission.Submit(context.Background(), SubmitReceiptRequest{
		TenantID:     testutil.TestTenantID(),
		FileObjectID: uuid.New(),
		Category:     "fuel",
	})
	require.NoError(t, err)
	return r, f.receivedEvent(t, r.ID, r.Submission)
}

func (f *fixture) receivedEvent(t *testing.T, receiptID uuid.UUID, submission int) *receipt.ReceiptReceivedEvent {
	t.Helper()
	for _, evt := range f.env.RecordedEvents(t, receipt.EventTypeReceiptReceived) {
		received := evt.(*receipt.ReceiptReceivedEvent)
		if received.Data.ReceiptID == receiptID && received.Data.Submission == submission {
			return received
		}
	}
	require.Failf(t, "missing event", "no receipt.received for %s submission %d", receiptID, submission)
	return nil
}

// extract runs the extraction handler with the given extractor output
func (f *fixture) extract(t *testing.T, r *receipt.Receipt, evt shared.DomainEvent, result *receipt.ExtractionResult) {
	t.Helper()
	f.files.On("Open", mock.Anything, r.TenantID, r.FileObjectID).Return(document(), nil).Once()
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(result, nil).Once()
	require.NoError(t, f.handler.Handle(context.Background(), evt))
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *receipt.Receipt {
	t.Helper()
	r, err := f.submission.Get(context.Background(), testutil.TestTenantID(), id)
	require.NoError(t, err)
	return r
}
