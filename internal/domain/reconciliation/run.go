package reconciliation

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RunStatus is the outcome of a reconciliation run
type RunStatus string

const (
	RunStatusMatched          RunStatus = "MATCHED"
	RunStatusVarianceDetected RunStatus = "VARIANCE_DETECTED"
)

// Reconciliation errors
var (
	ErrYearlyStatementMissing   = shared.NewDomainError("YEARLY_STATEMENT_MISSING", "No posted yearly statement for provider and year")
	ErrYearlyStatementAmbiguous = shared.NewDomainError("YEARLY_STATEMENT_AMBIGUOUS", "More than one posted yearly statement for provider and year")
)

// Variance is the difference for one metric between summed monthly statements and the yearly statement.
// Each metric is its own row; tax collected and ITC are never netted.
type Variance struct {
	ID             uuid.UUID
	RunID          uuid.UUID
	TenantID       uuid.UUID
	MetricKey      string
	LineType       ledger.LineType
	MonthlyTotal   decimal.Decimal
	YearlyTotal    decimal.Decimal
	VarianceAmount decimal.Decimal
	// LedgerEntryID and PostedAmount track the ledger correction posted for this variance
	LedgerEntryID *uuid.UUID
	PostedAmount  *decimal.Decimal
}

// IsZero returns true if monthly and yearly agree
func (v *Variance) IsZero() bool {
	return v.VarianceAmount.IsZero()
}

// Correction is the ledger amount that brings monthly-derived figures to the yearly statement
func (v *Variance) Correction() decimal.Decimal {
	return v.VarianceAmount.Neg()
}

// NeedsPosting reports whether the posted correction differs from the current one
func (v *Variance) NeedsPosting() bool {
	if v.PostedAmount == nil {
		return !v.IsZero()
	}
	return !v.PostedAmount.Equal(v.Correction())
}

// RecordPosting stores the correction entry for the variance
func (v *Variance) RecordPosting(entryID *uuid.UUID, amount decimal.Decimal) {
	v.LedgerEntryID = entryID
	a := amount
	v.PostedAmount = &a
}

// Run is the persisted result of reconciling one provider's year.
// There is one run per (tenant, provider, year); reruns replace its variances.
type Run struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	Provider              string
	PeriodKey             string
	Status                RunStatus
	MonthlyIncomeTotal    decimal.Decimal
	YearlyIncomeTotal     decimal.Decimal
	VarianceAmount        decimal.Decimal
	MonthlyStatementCount int
	YearlyStatementID     uuid.UUID
	Revision              int
	RanAt                 time.Time
	Variances             []Variance
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewRun creates an empty run for a provider year
func NewRun(tenantID uuid.UUID, provider string, year int) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Provider:  NormalizeProvider(provider),
		PeriodKey: strconv.Itoa(year),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Result is what Reconcile computed before it is applied to a run
type Result struct {
	YearlyStatementID     uuid.UUID
	MonthlyStatementCount int
	Metrics               []MetricResult
}

// MetricResult is the monthly and yearly totals of one metric
type MetricResult struct {
	Metric       Metric
	MonthlyTotal decimal.Decimal
	YearlyTotal  decimal.Decimal
}

// Variance returns monthly minus yearly
func (m MetricResult) Variance() decimal.Decimal {
	return m.MonthlyTotal.Sub(m.YearlyTotal)
}

// Reconcile compares the posted monthly statements of a year against its single posted yearly statement.
// statements may contain any statements of the provider; only posted ones of the year are used.
func Reconcile(catalog *Catalog, provider string, year int, statements []*Statement) (*Result, error) {
	var yearly []*Statement
	var monthly []*Statement
	for _, s := range statements {
		if !s.IsPosted() || s.Year() != year || s.Provider != NormalizeProvider(provider) {
			continue
		}
		switch s.PeriodType {
		case StatementPeriodYearly:
			yearly = append(yearly, s)
		case StatementPeriodMonthly:
			monthly = append(monthly, s)
		}
	}
	switch {
	case len(yearly) == 0:
		return nil, fmt.Errorf("%w: %s %d", ErrYearlyStatementMissing, provider, year)
	case len(yearly) > 1:
		return nil, fmt.Errorf("%w: %s %d", ErrYearlyStatementAmbiguous, provider, year)
	}

	metrics := catalog.MetricsFor(provider)
	results := make([]MetricResult, len(metrics))
	for i, m := range metrics {
		results[i] = MetricResult{Metric: m, MonthlyTotal: decimal.Zero, YearlyTotal: decimal.Zero}
	}

	accumulate := func(s *Statement, yearlySide bool) {
		for _, line := range s.Lines {
			i := metricFor(results, line.Description)
			switch {
			case i < 0:
				continue
			case yearlySide:
				results[i].YearlyTotal = results[i].YearlyTotal.Add(line.Amount)
			default:
				results[i].MonthlyTotal = results[i].MonthlyTotal.Add(line.Amount)
			}
		}
	}
	for _, s := range monthly {
		accumulate(s, false)
	}
	accumulate(yearly[0], true)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Metric.Key < results[j].Metric.Key
	})

	return &Result{
		YearlyStatementID:     yearly[0].ID,
		MonthlyStatementCount: len(monthly),
		Metrics:               results,
	}, nil
}

// Apply replaces the run's variances with a new result.
// Posting state carries over for metrics that were already posted.
func (r *Run) Apply(result *Result, ranAt time.Time) {
	previous := make(map[string]Variance, len(r.Variances))
	for _, v := range r.Variances {
		previous[v.MetricKey] = v
	}

	r.Variances = make([]Variance, 0, len(result.Metrics))
	r.MonthlyIncomeTotal = decimal.Zero
	r.YearlyIncomeTotal = decimal.Zero
	r.VarianceAmount = decimal.Zero
	r.Status = RunStatusMatched

	for _, m := range result.Metrics {
		v := Variance{
			ID:             uuid.New(),
			RunID:          r.ID,
			TenantID:       r.TenantID,
			MetricKey:      m.Metric.Key,
			LineType:       m.Metric.LineType,
			MonthlyTotal:   m.MonthlyTotal,
			YearlyTotal:    m.YearlyTotal,
			VarianceAmount: m.Variance(),
		}
		if prev, ok := previous[v.MetricKey]; ok {
			v.LedgerEntryID = prev.LedgerEntryID
			v.PostedAmount = prev.PostedAmount
		}
		if !v.IsZero() {
			r.Status = RunStatusVarianceDetected
		}
		if m.Metric.LineType == ledger.LineTypeIncome {
			r.MonthlyIncomeTotal = r.MonthlyIncomeTotal.Add(m.MonthlyTotal)
			r.YearlyIncomeTotal = r.YearlyIncomeTotal.Add(m.YearlyTotal)
		}
		r.Variances = append(r.Variances, v)
	}

	r.VarianceAmount = r.MonthlyIncomeTotal.Sub(r.YearlyIncomeTotal)
	r.MonthlyStatementCount = result.MonthlyStatementCount
	r.YearlyStatementID = result.YearlyStatementID
	r.Revision++
	r.RanAt = ranAt.UTC()
	r.UpdatedAt = r.RanAt
}

// Variance returns the variance row for a metric
func (r *Run) Variance(metricKey string) (*Variance, bool) {
	for i := range r.Variances {
		if r.Variances[i].MetricKey == metricKey {
			return &r.Variances[i], true
		}
	}
	return nil, false
}

// NonZeroVariances counts metrics that disagree
func (r *Run) NonZeroVariances() int {
	n := 0
	for i := range r.Variances {
		if !r.Variances[i].IsZero() {
			n++
		}
	}
	return n
}
