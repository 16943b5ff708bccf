package reconciliation

import (
	"context"
	"errors"
	"testing"

	"github.com/livestatement/backend/internal/domain/reconciliation"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*Service, *testutil.Env) {
	t.Helper()
	env := testutil.NewEnv(t)
	catalog, err := reconciliation.DefaultCatalog()
	require.NoError(t, err)
	return NewService(env.Scope, catalog, zap.NewNop()), env
}

func statement(periodType reconciliation.StatementPeriodType, key string, post bool, lines ...StatementLineRequest) RecordStatementRequest {
	return RecordStatementRequest{
		TenantID:   testutil.TestTenantID(),
		Provider:   "Uber",
		PeriodType: periodType,
		PeriodKey:  key,
		Post:       post,
		Lines:      lines,
	}
}

func fares(amount string) StatementLineRequest {
	return StatementLineRequest{Description: "Gross Uber rides fares", Amount: decimal.RequireFromString(amount)}
}

// seedYear records two posted months totalling 11950 and a posted yearly statement of 12000
func seedYear(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	for _, req := range []RecordStatementRequest{
		statement(reconciliation.StatementPeriodMonthly, "2025-01", true, fares("6000.00")),
		statement(reconciliation.StatementPeriodMonthly, "2025-02", true, fares("5950.00")),
		statement(reconciliation.StatementPeriodYearly, "2025", true, fares("12000.00")),
	} {
		_, err := svc.RecordStatement(ctx, req)
		require.NoError(t, err)
	}
}

func runRequest() RunRequest {
	return RunRequest{TenantID: testutil.TestTenantID(), Provider: "uber", Year: 2025, CorrelationID: "recon-2025"}
}

func TestService_RunDetectsVariance(t *testing.T) {
	svc, env := newService(t)
	seedYear(t, svc)

	run, err := svc.Run(context.Background(), runRequest())
	require.NoError(t, err)
	assert.Equal(t, reconciliation.RunStatusVarianceDetected, run.Status)
	assert.Equal(t, 1, run.Revision)
	assert.Equal(t, 2, run.MonthlyStatementCount)
	assert.True(t, decimal.RequireFromString("-50").Equal(run.VarianceAmount))

	v, ok := run.Variance("Income.GrossUberRidesFares")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("11950").Equal(v.MonthlyTotal))
	assert.True(t, decimal.RequireFromString("12000").Equal(v.YearlyTotal))
	assert.True(t, decimal.RequireFromString("50").Equal(v.Correction()))
	assert.Equal(t, 1, run.NonZeroVariances())

	events := env.RecordedEvents(t, reconciliation.EventTypeReconciliationCompleted)
	require.Len(t, events, 1)
	completed := events[0].(*reconciliation.ReconciliationCompletedEvent)
	assert.Equal(t, run.ID, completed.Data.RunID)
	assert.Equal(t, "recon-2025", completed.CorrelationID())
	assert.Equal(t, 1, completed.Data.VarianceCount)
}

func TestService_RerunBumpsRevision(t *testing.T) {
	svc, env := newService(t)
	seedYear(t, svc)
	ctx := context.Background()

	first, err := svc.Run(ctx, runRequest())
	require.NoError(t, err)
	second, err := svc.Run(ctx, runRequest())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Revision)

	stored, err := svc.GetRun(ctx, testutil.TestTenantID(), "UBER", 2025)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Revision)
	assert.Len(t, stored.Variances, len(first.Variances))

	events := env.RecordedEvents(t, reconciliation.EventTypeReconciliationCompleted)
	require.Len(t, events, 2)
	assert.NotEqual(t, events[0].DedupeKey(), events[1].DedupeKey())
}

func TestService_RunMatched(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, req := range []RecordStatementRequest{
		statement(reconciliation.StatementPeriodMonthly, "2025-01", true, fares("6000.00")),
		statement(reconciliation.StatementPeriodYearly, "2025", true, fares("6000.00")),
	} {
		_, err := svc.RecordStatement(ctx, req)
		require.NoError(t, err)
	}

	run, err := svc.Run(ctx, runRequest())
	require.NoError(t, err)
	assert.Equal(t, reconciliation.RunStatusMatched, run.Status)
	assert.Equal(t, 0, run.NonZeroVariances())
}

func TestService_DraftStatementsAreIgnored(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.RecordStatement(ctx, statement(reconciliation.StatementPeriodMonthly, "2025-01", true, fares("6000.00")))
	require.NoError(t, err)
	draft, err := svc.RecordStatement(ctx, statement(reconciliation.StatementPeriodMonthly, "2025-02", false, fares("5000.00")))
	require.NoError(t, err)
	_, err = svc.RecordStatement(ctx, statement(reconciliation.StatementPeriodYearly, "2025", true, fares("11000.00")))
	require.NoError(t, err)

	run, err := svc.Run(ctx, runRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, run.MonthlyStatementCount)

	_, err = svc.PostStatement(ctx, testutil.TestTenantID(), draft.ID)
	require.NoError(t, err)
	run, err = svc.Run(ctx, runRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, run.MonthlyStatementCount)
	assert.Equal(t, reconciliation.RunStatusMatched, run.Status)
}

func TestService_RunWithoutYearlyStatement(t *testing.T) {
	svc, env := newService(t)
	_, err := svc.RecordStatement(context.Background(), statement(reconciliation.StatementPeriodMonthly, "2025-01", true, fares("6000.00")))
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), runRequest())
	assert.True(t, errors.Is(err, reconciliation.ErrYearlyStatementMissing))
	assert.Empty(t, env.RecordedEvents(t, reconciliation.EventTypeReconciliationCompleted))
}

func TestService_Validates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Run(ctx, RunRequest{TenantID: testutil.TestTenantID(), Provider: "uber", Year: 25})
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	_, err = svc.RecordStatement(ctx, statement("WEEKLY", "2025-01", true, fares("1")))
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))

	_, err = svc.RecordStatement(ctx, statement(reconciliation.StatementPeriodMonthly, "2025-01", true))
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}
