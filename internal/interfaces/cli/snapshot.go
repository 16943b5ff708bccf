package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/spf13/cobra"
)

// SnapshotOutput is the printed form of a period snapshot
type SnapshotOutput struct {
	ID             uuid.UUID         `json:"id"`
	PeriodType     string            `json:"period_type"`
	PeriodKey      string            `json:"period_key"`
	CalculatedAt   time.Time         `json:"calculated_at"`
	AuthorityScore int               `json:"authority_score"`
	EvidencePct    string            `json:"evidence_pct"`
	EstimatedPct   string            `json:"estimated_pct"`
	LineCount      int               `json:"line_count"`
	Metrics        map[string]string `json:"metrics"`
}

func toSnapshotOutput(s *ledger.Snapshot) SnapshotOutput {
	out := SnapshotOutput{
		ID:             s.ID,
		PeriodType:     string(s.PeriodType),
		PeriodKey:      s.PeriodKey,
		CalculatedAt:   s.CalculatedAt,
		AuthorityScore: s.AuthorityScore,
		EvidencePct:    s.EvidencePct.StringFixed(4),
		EstimatedPct:   s.EstimatedPct.StringFixed(4),
		LineCount:      s.LineCount,
		Metrics:        make(map[string]string, len(s.Details)),
	}
	for _, d := range s.Details {
		out.Metrics[d.MetricKey] = d.Value.StringFixed(2)
	}
	return out
}

func (a *app) printSnapshot(cmd *cobra.Command, s *ledger.Snapshot) error {
	p := a.printer(cmd)
	out := toSnapshotOutput(s)
	return p.emit(out, func() {
		p.kv(
			[2]string{"Period", out.PeriodType + " " + out.PeriodKey},
			[2]string{"Authority score", fmt.Sprint(out.AuthorityScore)},
			[2]string{"Evidenced", out.EvidencePct},
			[2]string{"Estimated", out.EstimatedPct},
			[2]string{"Lines", fmt.Sprint(out.LineCount)},
			[2]string{"Calculated", out.CalculatedAt.UTC().Format(time.RFC3339)},
		)
		t := newTable("METRIC", "VALUE", "EVIDENCE", "ESTIMATED")
		for _, d := range s.Details {
			t.add(d.MetricKey, d.Value.StringFixed(2), d.EvidencePct.StringFixed(4), d.EstimatedPct.StringFixed(4))
		}
		t.render(cmd.OutOrStdout())
	})
}

func (a *app) snapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshot",
		Aliases: []string{"snapshots", "snap"},
		Short:   "Inspect and recompute period snapshots",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "get PERIOD_TYPE PERIOD_KEY",
			Short:   "Show a stored snapshot",
			Example: "  ledgerctl snapshot get monthly 2025-03 --tenant $TENANT",
			Args:    cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				core, tenantID, err := a.session(cmd)
				if err != nil {
					return err
				}
				snap, err := core.Snapshots.Get(cmd.Context(), tenantID, ledger.PeriodType(strings.ToUpper(args[0])), args[1])
				if err != nil {
					return err
				}
				return a.printSnapshot(cmd, snap)
			},
		},
		&cobra.Command{
			Use:     "recompute PERIOD_TYPE PERIOD_KEY",
			Short:   "Recompute a snapshot from the ledger",
			Example: "  ledgerctl snapshot recompute ytd 2025 --tenant $TENANT",
			Args:    cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				core, tenantID, err := a.session(cmd)
				if err != nil {
					return err
				}
				snap, err := core.Snapshots.Recompute(cmd.Context(), tenantID, ledger.PeriodType(strings.ToUpper(args[0])), args[1])
				if err != nil {
					return err
				}
				a.printer(cmd).success("Snapshot %s %s recomputed", snap.PeriodType, snap.PeriodKey)
				return a.printSnapshot(cmd, snap)
			},
		},
	)
	return cmd
}
