package receipt

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func completeFields() ReceiptFields {
	return ReceiptFields{
		Date:     day(2025, 12, 10),
		Vendor:   "Petro-Canada",
		Total:    dec("113.00"),
		Tax:      dec("13.00"),
		Currency: "CAD",
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		fields     ReceiptFields
		confidence float64
		wantHold   bool
		wantReason string
	}{
		{
			name:       "complete receipt passes",
			fields:     completeFields(),
			confidence: 0.95,
		},
		{
			name:       "exactly at threshold passes",
			fields:     completeFields(),
			confidence: 0.70,
		},
		{
			name:       "low confidence holds",
			fields:     completeFields(),
			confidence: 0.69,
			wantHold:   true,
			wantReason: HoldReasonLowConfidence,
		},
		{
			name: "low confidence takes precedence over invalid total",
			fields: func() ReceiptFields {
				f := completeFields()
				f.Total = dec("0")
				return f
			}(),
			confidence: 0.5,
			wantHold:   true,
			wantReason: HoldReasonLowConfidence,
		},
		{
			name: "zero total holds",
			fields: func() ReceiptFields {
				f := completeFields()
				f.Total = dec("0")
				return f
			}(),
			confidence: 0.9,
			wantHold:   true,
			wantReason: HoldReasonInvalidTotal,
		},
		{
			name: "negative total holds",
			fields: func() ReceiptFields {
				f := completeFields()
				f.Total = dec("-4.00")
				return f
			}(),
			confidence: 0.9,
			wantHold:   true,
			wantReason: HoldReasonInvalidTotal,
		},
		{
			name: "missing total holds",
			fields: func() ReceiptFields {
				f := completeFields()
				f.Total = nil
				return f
			}(),
			confidence: 0.9,
			wantHold:   true,
			wantReason: HoldReasonInvalidTotal,
		},
		{
			name: "missing date holds",
			fields: func() ReceiptFields {
				f := completeFields()
				f.Date = nil
				return f
			}(),
			confidence: 0.9,
			wantHold:   true,
			wantReason: HoldReasonMissingFields,
		},
		{
			name: "blank vendor holds",
			fields: func() ReceiptFields {
				f := completeFields()
				f.Vendor = "   "
				return f
			}(),
			confidence: 0.9,
			wantHold:   true,
			wantReason: HoldReasonMissingFields,
		},
		{
			name: "tax above total holds",
			fields: func() ReceiptFields {
				f := completeFields()
				f.Tax = dec("120.00")
				return f
			}(),
			confidence: 0.9,
			wantHold:   true,
			wantReason: HoldReasonTaxExceedsTotal,
		},
		{
			name: "tax equal to total passes",
			fields: func() ReceiptFields {
				f := completeFields()
				f.Tax = dec("113.00")
				return f
			}(),
			confidence: 0.9,
		},
		{
			name: "missing tax passes",
			fields: func() ReceiptFields {
				f := completeFields()
				f.Tax = nil
				return f
			}(),
			confidence: 0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Evaluate(NewReceiptDocument(tt.fields), tt.confidence)

			assert.Equal(t, tt.wantHold, decision.IsHold())
			assert.Equal(t, tt.wantReason, decision.Reason)
			if tt.wantHold {
				assert.NotEmpty(t, decision.Questions)
			}
		})
	}
}

func TestEvaluate_MissingFieldsAsksForEach(t *testing.T) {
	f := completeFields()
	f.Date = nil
	f.Vendor = ""

	decision := Evaluate(NewReceiptDocument(f), 0.9)

	require.Len(t, decision.Questions, 2)
	assert.Equal(t, "date", decision.Questions[0].Field)
	assert.Equal(t, "vendor", decision.Questions[1].Field)
	assert.JSONEq(t,
		`[{"field":"date","prompt":"What date is on the receipt?"},{"field":"vendor","prompt":"Who is the vendor on the receipt?"}]`,
		decision.QuestionsJSON())
}

func TestEvaluate_NonReceiptDocumentHolds(t *testing.T) {
	doc := NewPlatformStatementDocument(PlatformStatementFields{Provider: "uber", PeriodKey: "2025-01"})

	decision := Evaluate(doc, 0.99)

	assert.True(t, decision.IsHold())
	assert.Equal(t, HoldReasonUnsupportedKind, decision.Reason)
}

func TestDecision_QuestionsJSONEmpty(t *testing.T) {
	assert.Equal(t, "[]", Decision{Outcome: OutcomePass}.QuestionsJSON())
}
