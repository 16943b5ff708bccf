// Package reconciliation compares platform statements and records the runs.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/application/transaction"
	"github.com/livestatement/backend/internal/application/validation"
	"github.com/livestatement/backend/internal/domain/audit"
	"github.com/livestatement/backend/internal/domain/reconciliation"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/metrics"
	"github.com/livestatement/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Audit entity types
const (
	EntityTypeRun       = "reconciliation_run"
	EntityTypeStatement = "statement"
)

// StatementLineRequest is one described amount on a statement
type StatementLineRequest struct {
	Description string          `json:"description" validate:"required,max=200"`
	Amount      decimal.Decimal `json:"amount"`
}

// RecordStatementRequest stores a platform statement, optionally posting it
type RecordStatementRequest struct {
	TenantID   uuid.UUID                          `json:"tenantId" validate:"required"`
	Provider   string                             `json:"provider" validate:"required,max=50"`
	PeriodType reconciliation.StatementPeriodType `json:"periodType" validate:"required,oneof=MONTHLY YEARLY"`
	PeriodKey  string                             `json:"periodKey" validate:"required,max=7"`
	Post       bool                               `json:"post"`
	Lines      []StatementLineRequest             `json:"lines" validate:"required,min=1,max=200,dive"`
}

// RunRequest reconciles one provider's year
type RunRequest struct {
	TenantID      uuid.UUID `json:"tenantId" validate:"required"`
	Provider      string    `json:"provider" validate:"required,max=50"`
	Year          int       `json:"year" validate:"gte=2000,lte=2100"`
	CorrelationID string    `json:"correlationId" validate:"max=128"`
}

// Service stores statements and runs reconciliation
type Service struct {
	scope   transaction.TransactionScope
	catalog *reconciliation.Catalog
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new reconciliation Service
func NewService(scope transaction.TransactionScope, catalog *reconciliation.Catalog, logger *zap.Logger) *Service {
	return &Service{
		scope:   scope,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// RecordStatement stores a statement. Only posted statements take part in reconciliation.
func (s *Service) RecordStatement(ctx context.Context, req RecordStatementRequest) (*reconciliation.Statement, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	lines := make([]reconciliation.StatementLineInput, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = reconciliation.StatementLineInput{Description: l.Description, Amount: l.Amount}
	}
	st, err := reconciliation.NewStatement(req.TenantID, req.Provider, req.PeriodType, req.PeriodKey, lines)
	if err != nil {
		return nil, err
	}
	if req.Post {
		if err := st.Post(); err != nil {
			return nil, err
		}
	}
	err = s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		if err := repos.Statements().Save(ctx, st); err != nil {
			return err
		}
		return repos.Audit().Append(ctx, audit.NewEvent(st.TenantID, audit.ActionStatementRecorded,
			EntityTypeStatement, st.ID, "", map[string]any{
				"provider":   st.Provider,
				"periodType": st.PeriodType,
				"periodKey":  st.PeriodKey,
				"status":     st.Status,
			}))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("statement recorded",
		zap.String("tenant_id", st.TenantID.String()),
		zap.String("statement_id", st.ID.String()),
		zap.String("provider", st.Provider),
		zap.String("period_key", st.PeriodKey),
		zap.String("status", string(st.Status)),
	)
	return st, nil
}

// PostStatement finalizes a draft statement
func (s *Service) PostStatement(ctx context.Context, tenantID, statementID uuid.UUID) (*reconciliation.Statement, error) {
	var st *reconciliation.Statement
	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		var err error
		st, err = repos.Statements().FindByID(ctx, tenantID, statementID)
		if err != nil {
			return err
		}
		if err := st.Post(); err != nil {
			return err
		}
		return repos.Statements().Save(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Run reconciles the posted monthly statements of a year against its yearly statement.
// Each (tenant, provider, year) has one run; a rerun replaces its variances and bumps the revision.
// The run and its reconciliation.completed envelope commit together.
func (s *Service) Run(ctx context.Context, req RunRequest) (*reconciliation.Run, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartSpan(ctx, "reconciliation.run",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, req.TenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrProvider, req.Provider),
		telemetry.WithAttribute(telemetry.SpanAttrPeriodKey, strconv.Itoa(req.Year)),
	)
	defer span.End()

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := s.logger.With(
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("provider", reconciliation.NormalizeProvider(req.Provider)),
		zap.Int("year", req.Year),
		zap.String("correlation_id", correlationID),
	)

	var run *reconciliation.Run
	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		statements, err := repos.Statements().FindForYear(ctx, req.TenantID, req.Provider, req.Year)
		if err != nil {
			return fmt.Errorf("failed to load statements: %w", err)
		}
		result, err := reconciliation.Reconcile(s.catalog, req.Provider, req.Year, statements)
		if err != nil {
			return err
		}

		run, err = repos.Runs().Find(ctx, req.TenantID, reconciliation.NormalizeProvider(req.Provider), strconv.Itoa(req.Year))
		if errors.Is(err, shared.ErrNotFound) {
			run = reconciliation.NewRun(req.TenantID, req.Provider, req.Year)
		} else if err != nil {
			return fmt.Errorf("failed to load reconciliation run: %w", err)
		}
		run.Apply(result, s.now())

		if err := repos.Runs().Save(ctx, run); err != nil {
			return fmt.Errorf("failed to save reconciliation run: %w", err)
		}
		if err := repos.Events().Record(ctx, reconciliation.NewReconciliationCompletedEvent(run, correlationID)); err != nil {
			return fmt.Errorf("failed to record reconciliation event: %w", err)
		}
		return repos.Audit().Append(ctx, audit.NewEvent(run.TenantID, audit.ActionReconciliationCompleted,
			EntityTypeRun, run.ID, correlationID, map[string]any{
				"revision":          run.Revision,
				"status":            run.Status,
				"monthlyStatements": run.MonthlyStatementCount,
				"varianceAmount":    run.VarianceAmount.String(),
				"nonZeroVariances":  run.NonZeroVariances(),
			}))
	})
	if err != nil {
		telemetry.RecordError(span, err)
		metrics.ReconciliationRunsTotal.WithLabelValues("error").Inc()
		log.Error("reconciliation failed", zap.Error(err))
		return nil, err
	}

	metrics.ReconciliationRunsTotal.WithLabelValues(string(run.Status)).Inc()
	log.Info("reconciliation completed",
		zap.String("run_id", run.ID.String()),
		zap.Int("revision", run.Revision),
		zap.String("status", string(run.Status)),
		zap.String("variance_amount", run.VarianceAmount.String()),
	)
	return run, nil
}

// GetRun returns the run of a provider year
func (s *Service) GetRun(ctx context.Context, tenantID uuid.UUID, provider string, year int) (*reconciliation.Run, error) {
	var run *reconciliation.Run
	err := s.scope.Execute(ctx, func(repos transaction.TransactionalRepositories) error {
		var err error
		run, err = repos.Runs().Find(ctx, tenantID, reconciliation.NormalizeProvider(provider), strconv.Itoa(year))
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}
