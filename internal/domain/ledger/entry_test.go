package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func receiptSpec(tenantID uuid.UUID) EntrySpec {
	return EntrySpec{
		TenantID:     tenantID,
		EntryDate:    time.Date(2025, 12, 10, 15, 30, 0, 0, time.UTC),
		SourceType:   SourceTypeReceipt,
		SourceID:     uuid.New(),
		PostedByType: PostedBySystem,
		Evidence:     EvidenceEvidenced,
		Lines:        ReceiptLines(d("113.00"), d("13.00"), d("1"), "fuel", "Petro-Canada"),
		Links:        []LinkSpec{{Kind: SourceLinkReceipt, ReferenceID: uuid.New()}},
	}
}

func TestNewLedgerEntry(t *testing.T) {
	tenantID := uuid.New()

	t.Run("builds lines and links", func(t *testing.T) {
		entry, err := NewLedgerEntry(receiptSpec(tenantID))
		require.NoError(t, err)

		require.Len(t, entry.Lines, 2)
		assert.Equal(t, LineTypeExpense, entry.Lines[0].LineType)
		assert.True(t, entry.Lines[0].Amount.Equal(d("100.00")))
		assert.Equal(t, LineTypeItc, entry.Lines[1].LineType)
		assert.True(t, entry.Lines[1].Amount.Equal(d("13.00")))
		assert.Equal(t, 1, entry.Lines[0].LineNo)
		assert.Equal(t, entry.ID, entry.Lines[1].EntryID)
		require.Len(t, entry.SourceLinks, 1)
		assert.Equal(t, time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC), entry.EntryDate)
	})

	t.Run("defaults evidence", func(t *testing.T) {
		spec := receiptSpec(tenantID)
		spec.Evidence = ""
		entry, err := NewLedgerEntry(spec)
		require.NoError(t, err)
		assert.Equal(t, EvidenceEvidenced, entry.Evidence)
	})

	invalid := map[string]func(*EntrySpec){
		"no lines":         func(s *EntrySpec) { s.Lines = nil },
		"no source":        func(s *EntrySpec) { s.SourceID = uuid.Nil },
		"bad source type":  func(s *EntrySpec) { s.SourceType = "INVOICE" },
		"no date":          func(s *EntrySpec) { s.EntryDate = time.Time{} },
		"bad posted by":    func(s *EntrySpec) { s.PostedByType = "ROBOT" },
		"bad line type":    func(s *EntrySpec) { s.Lines[0].LineType = "ASSET" },
		"reversal non adj": func(s *EntrySpec) { id := uuid.New(); s.ReverseEntryID = &id },
		"deductible above one": func(s *EntrySpec) {
			p := d("1.2")
			s.Lines[0].DeductiblePct = &p
		},
		"link without reference": func(s *EntrySpec) { s.Links = []LinkSpec{{Kind: SourceLinkReceipt}} },
	}
	for name, mutate := range invalid {
		t.Run(name, func(t *testing.T) {
			spec := receiptSpec(tenantID)
			mutate(&spec)
			_, err := NewLedgerEntry(spec)
			assert.Error(t, err)
		})
	}
}

func TestReceiptLines_DeductibleShare(t *testing.T) {
	lines := ReceiptLines(d("113.00"), d("13.00"), d("0.5"), "phone", "")

	require.Len(t, lines, 2)
	assert.True(t, lines[0].Amount.Equal(d("50.00")))
	assert.True(t, lines[1].Amount.Equal(d("13.00")))
	assert.Equal(t, "Receipt", lines[0].Description)
}

func TestLedgerEntry_ReversalLines(t *testing.T) {
	entry, err := NewLedgerEntry(receiptSpec(uuid.New()))
	require.NoError(t, err)

	rev := entry.ReversalLines()

	require.Len(t, rev, 2)
	assert.True(t, rev[0].Amount.Equal(d("-100.00")))
	assert.True(t, rev[1].Amount.Equal(d("-13.00")))
	assert.Equal(t, entry.Lines[0].LineType, rev[0].LineType)
	assert.True(t, entry.Total(LineTypeExpense).Add(rev[0].Amount).IsZero())
}

func TestSourceIDForKey(t *testing.T) {
	tenantID := uuid.New()
	a := SourceIDForKey(tenantID, SourceTypeManual, "cash-tips-2025-03")
	b := SourceIDForKey(tenantID, SourceTypeManual, "cash-tips-2025-03")
	c := SourceIDForKey(uuid.New(), SourceTypeManual, "cash-tips-2025-03")
	e := SourceIDForKey(tenantID, SourceTypeAdjustment, "cash-tips-2025-03")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, e)
}

func TestNewLedgerPostedEvent(t *testing.T) {
	spec := receiptSpec(uuid.New())
	spec.CorrelationID = "corr-7"
	entry, err := NewLedgerEntry(spec)
	require.NoError(t, err)

	ev := NewLedgerPostedEvent(entry)

	assert.Equal(t, EventTypeLedgerPosted, ev.EventType())
	assert.Equal(t, entry.ID, ev.Data.LedgerEntryID)
	assert.Equal(t, "corr-7", ev.CorrelationID())
	assert.Equal(t, "ledger.posted.v1:"+entry.ID.String(), ev.DedupeKey())
}
