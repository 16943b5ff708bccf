package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Snapshot metric keys
const (
	MetricIncomeTotal       = "IncomeTotal"
	MetricFeesTotal         = "FeesTotal"
	MetricExpensesTotal     = "ExpensesTotal"
	MetricTaxCollectedTotal = "TaxCollectedTotal"
	MetricItcTotal          = "ItcTotal"
	MetricOtherTotal        = "OtherTotal"
	MetricNetIncome         = "NetIncome"
	MetricNetTax            = "NetTax"
)

var lineTypeMetric = map[LineType]string{
	LineTypeIncome:       MetricIncomeTotal,
	LineTypeFee:          MetricFeesTotal,
	LineTypeExpense:      MetricExpensesTotal,
	LineTypeTaxCollected: MetricTaxCollectedTotal,
	LineTypeItc:          MetricItcTotal,
	LineTypeOther:        MetricOtherTotal,
}

// LineFact is the slice of a ledger line the snapshot calculator needs
type LineFact struct {
	LineType LineType
	Amount   decimal.Decimal
	Evidence EvidenceStatus
}

// Authority summarizes how much of a period is backed by evidence
type Authority struct {
	Score        int
	EvidencePct  decimal.Decimal
	EstimatedPct decimal.Decimal
}

// ComputeAuthority scores evidence coverage over counted ledger lines.
// score = round(100 * evidenced / total); an empty period scores 0 with 0 evidence.
func ComputeAuthority(total, evidenced int) Authority {
	if total <= 0 {
		return Authority{Score: 0, EvidencePct: decimal.Zero, EstimatedPct: decimal.Zero}
	}
	if evidenced < 0 {
		evidenced = 0
	}
	if evidenced > total {
		evidenced = total
	}
	t := decimal.NewFromInt(int64(total))
	e := decimal.NewFromInt(int64(evidenced))
	evidencePct := e.DivRound(t, 4)
	return Authority{
		Score:        int(e.Mul(decimal.NewFromInt(100)).DivRound(t, 0).IntPart()),
		EvidencePct:  evidencePct,
		EstimatedPct: decimal.NewFromInt(1).Sub(evidencePct),
	}
}

// SnapshotDetail is one metric within a snapshot
type SnapshotDetail struct {
	MetricKey    string
	Value        decimal.Decimal
	EvidencePct  decimal.Decimal
	EstimatedPct decimal.Decimal
}

// Snapshot is the recomputed summary of one tenant period
type Snapshot struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	PeriodType     PeriodType
	PeriodKey      string
	CalculatedAt   time.Time
	AuthorityScore int
	EvidencePct    decimal.Decimal
	EstimatedPct   decimal.Decimal
	LineCount      int
	EvidencedCount int
	Totals         map[string]decimal.Decimal
	Details        []SnapshotDetail
}

// Detail returns the detail for a metric key
func (s *Snapshot) Detail(metricKey string) (SnapshotDetail, bool) {
	for _, d := range s.Details {
		if d.MetricKey == metricKey {
			return d, true
		}
	}
	return SnapshotDetail{}, false
}

type metricAcc struct {
	value     decimal.Decimal
	lines     int
	evidenced int
}

func (a *metricAcc) add(f LineFact, sign decimal.Decimal) {
	a.value = a.value.Add(f.Amount.Mul(sign))
	a.lines++
	if f.Evidence == EvidenceEvidenced {
		a.evidenced++
	}
}

// CalculateSnapshot folds every line of a period into totals, details and an authority score.
// The result depends only on the facts given, never on their order.
func CalculateSnapshot(tenantID uuid.UUID, period Period, facts []LineFact, calculatedAt time.Time) *Snapshot {
	accs := make(map[string]*metricAcc, 8)
	for _, key := range []string{
		MetricIncomeTotal, MetricFeesTotal, MetricExpensesTotal, MetricTaxCollectedTotal,
		MetricItcTotal, MetricOtherTotal, MetricNetIncome, MetricNetTax,
	} {
		accs[key] = &metricAcc{value: decimal.Zero}
	}

	plus := decimal.NewFromInt(1)
	minus := decimal.NewFromInt(-1)
	evidenced := 0
	for _, f := range facts {
		if f.Evidence == EvidenceEvidenced {
			evidenced++
		}
		key, ok := lineTypeMetric[f.LineType]
		if !ok {
			key = MetricOtherTotal
		}
		accs[key].add(f, plus)

		switch f.LineType {
		case LineTypeIncome:
			accs[MetricNetIncome].add(f, plus)
		case LineTypeFee, LineTypeExpense:
			accs[MetricNetIncome].add(f, minus)
		case LineTypeTaxCollected:
			accs[MetricNetTax].add(f, plus)
		case LineTypeItc:
			accs[MetricNetTax].add(f, minus)
		}
	}

	authority := ComputeAuthority(len(facts), evidenced)
	snap := &Snapshot{
		ID:             uuid.New(),
		TenantID:       tenantID,
		PeriodType:     period.Type,
		PeriodKey:      period.Key,
		CalculatedAt:   calculatedAt.UTC(),
		AuthorityScore: authority.Score,
		EvidencePct:    authority.EvidencePct,
		EstimatedPct:   authority.EstimatedPct,
		LineCount:      len(facts),
		EvidencedCount: evidenced,
		Totals:         make(map[string]decimal.Decimal, len(accs)),
	}

	keys := make([]string, 0, len(accs))
	for k := range accs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		acc := accs[k]
		a := ComputeAuthority(acc.lines, acc.evidenced)
		snap.Totals[k] = acc.value
		snap.Details = append(snap.Details, SnapshotDetail{
			MetricKey:    k,
			Value:        acc.value,
			EvidencePct:  a.EvidencePct,
			EstimatedPct: a.EstimatedPct,
		})
	}
	return snap
}
