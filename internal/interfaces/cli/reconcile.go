package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	reconapp "github.com/livestatement/backend/internal/application/reconciliation"
	"github.com/livestatement/backend/internal/domain/reconciliation"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// RunOutput is the printed form of a reconciliation run
type RunOutput struct {
	ID                    uuid.UUID        `json:"id"`
	Provider              string           `json:"provider"`
	Year                  string           `json:"year"`
	Status                string           `json:"status"`
	Revision              int              `json:"revision"`
	MonthlyStatementCount int              `json:"monthly_statement_count"`
	VarianceAmount        string           `json:"variance_amount"`
	RanAt                 time.Time        `json:"ran_at"`
	Variances             []VarianceOutput `json:"variances"`
}

// VarianceOutput is one reconciled metric
type VarianceOutput struct {
	MetricKey     string     `json:"metric_key"`
	Monthly       string     `json:"monthly"`
	Yearly        string     `json:"yearly"`
	Variance      string     `json:"variance"`
	LedgerEntryID *uuid.UUID `json:"ledger_entry_id,omitempty"`
}

// StatementOutput is the printed form of a stored statement
type StatementOutput struct {
	ID         uuid.UUID `json:"id"`
	Provider   string    `json:"provider"`
	PeriodType string    `json:"period_type"`
	PeriodKey  string    `json:"period_key"`
	Status     string    `json:"status"`
	Lines      int       `json:"lines"`
}

func toRunOutput(r *reconciliation.Run) RunOutput {
	out := RunOutput{
		ID:                    r.ID,
		Provider:              r.Provider,
		Year:                  r.PeriodKey,
		Status:                string(r.Status),
		Revision:              r.Revision,
		MonthlyStatementCount: r.MonthlyStatementCount,
		VarianceAmount:        r.VarianceAmount.StringFixed(2),
		RanAt:                 r.RanAt,
		Variances:             make([]VarianceOutput, len(r.Variances)),
	}
	for i, v := range r.Variances {
		out.Variances[i] = VarianceOutput{
			MetricKey:     v.MetricKey,
			Monthly:       v.MonthlyTotal.StringFixed(2),
			Yearly:        v.YearlyTotal.StringFixed(2),
			Variance:      v.VarianceAmount.StringFixed(2),
			LedgerEntryID: v.LedgerEntryID,
		}
	}
	return out
}

func (a *app) printRun(cmd *cobra.Command, r *reconciliation.Run) error {
	p := a.printer(cmd)
	out := toRunOutput(r)
	return p.emit(out, func() {
		p.kv(
			[2]string{"Run", out.ID.String()},
			[2]string{"Provider", out.Provider + " " + out.Year},
			[2]string{"Status", out.Status},
			[2]string{"Revision", strconv.Itoa(out.Revision)},
			[2]string{"Monthly statements", strconv.Itoa(out.MonthlyStatementCount)},
			[2]string{"Variance", out.VarianceAmount},
		)
		t := newTable("METRIC", "MONTHLY", "YEARLY", "VARIANCE", "CORRECTION")
		for _, v := range out.Variances {
			correction := "-"
			if v.LedgerEntryID != nil {
				correction = v.LedgerEntryID.String()
			}
			t.add(v.MetricKey, v.Monthly, v.Yearly, v.Variance, correction)
		}
		t.render(cmd.OutOrStdout())
	})
}

func (a *app) reconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reconcile",
		Aliases: []string{"recon"},
		Short:   "Run and inspect yearly reconciliation",
	}

	run := &cobra.Command{
		Use:     "run PROVIDER YEAR",
		Short:   "Reconcile posted monthly statements against the yearly statement",
		Example: "  ledgerctl reconcile run uber 2025 --tenant $TENANT",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			year, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid year: %w", err)
			}
			correlation, _ := cmd.Flags().GetString("correlation-id")
			result, err := core.Recon.Run(cmd.Context(), reconapp.RunRequest{
				TenantID:      tenantID,
				Provider:      args[0],
				Year:          year,
				CorrelationID: correlation,
			})
			if err != nil {
				return err
			}
			p := a.printer(cmd)
			if n := result.NonZeroVariances(); n > 0 {
				p.warn("%d metric(s) differ; corrections post when the relay delivers reconciliation.completed", n)
			} else {
				p.success("Monthly statements match the yearly statement")
			}
			return a.printRun(cmd, result)
		},
	}
	run.Flags().String("correlation-id", "", "correlation ID (generated when empty)")

	show := &cobra.Command{
		Use:   "show PROVIDER YEAR",
		Short: "Show the latest run of a provider year",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			year, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid year: %w", err)
			}
			result, err := core.Recon.GetRun(cmd.Context(), tenantID, args[0], year)
			if err != nil {
				return err
			}
			return a.printRun(cmd, result)
		},
	}

	cmd.AddCommand(run, show)
	return cmd
}

// parseStatementLine reads description=amount
func parseStatementLine(raw string) (reconapp.StatementLineRequest, error) {
	i := strings.LastIndex(raw, "=")
	if i <= 0 {
		return reconapp.StatementLineRequest{}, fmt.Errorf("invalid --line %q: want description=amount", raw)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(raw[i+1:]))
	if err != nil {
		return reconapp.StatementLineRequest{}, fmt.Errorf("invalid amount in --line %q: %w", raw, err)
	}
	return reconapp.StatementLineRequest{Description: strings.TrimSpace(raw[:i]), Amount: amount}, nil
}

func (a *app) printStatement(cmd *cobra.Command, st *reconciliation.Statement) error {
	p := a.printer(cmd)
	out := StatementOutput{
		ID:         st.ID,
		Provider:   st.Provider,
		PeriodType: string(st.PeriodType),
		PeriodKey:  st.PeriodKey,
		Status:     string(st.Status),
		Lines:      len(st.Lines),
	}
	return p.emit(out, func() {
		p.kv(
			[2]string{"Statement", out.ID.String()},
			[2]string{"Provider", out.Provider},
			[2]string{"Period", out.PeriodType + " " + out.PeriodKey},
			[2]string{"Status", out.Status},
			[2]string{"Lines", strconv.Itoa(out.Lines)},
		)
	})
}

func (a *app) statementCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "statement",
		Aliases: []string{"statements"},
		Short:   "Record and post platform statements",
	}

	record := &cobra.Command{
		Use:   "record PROVIDER PERIOD_TYPE PERIOD_KEY",
		Short: "Record a monthly or yearly statement",
		Example: `  ledgerctl statement record uber monthly 2025-01 --tenant $TENANT \
    --line "Gross Uber rides fares=6000.00" --line "Service fee=-1500.00" --post`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			rawLines, _ := cmd.Flags().GetStringArray("line")
			post, _ := cmd.Flags().GetBool("post")
			lines := make([]reconapp.StatementLineRequest, 0, len(rawLines))
			for _, raw := range rawLines {
				line, err := parseStatementLine(raw)
				if err != nil {
					return err
				}
				lines = append(lines, line)
			}
			st, err := core.Recon.RecordStatement(cmd.Context(), reconapp.RecordStatementRequest{
				TenantID:   tenantID,
				Provider:   args[0],
				PeriodType: reconciliation.StatementPeriodType(strings.ToUpper(args[1])),
				PeriodKey:  args[2],
				Post:       post,
				Lines:      lines,
			})
			if err != nil {
				return err
			}
			a.printer(cmd).success("Statement %s recorded", st.ID)
			return a.printStatement(cmd, st)
		},
	}
	record.Flags().StringArray("line", nil, "statement line description=amount (repeatable)")
	record.Flags().Bool("post", false, "post the statement immediately")
	_ = record.MarkFlagRequired("line")

	post := &cobra.Command{
		Use:   "post STATEMENT_ID",
		Short: "Post a draft statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid statement ID: %w", err)
			}
			st, err := core.Recon.PostStatement(cmd.Context(), tenantID, id)
			if err != nil {
				return err
			}
			a.printer(cmd).success("Statement %s posted", st.ID)
			return a.printStatement(cmd, st)
		},
	}

	cmd.AddCommand(record, post)
	return cmd
}
