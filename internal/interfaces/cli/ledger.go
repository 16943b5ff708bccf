package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	ledgerapp "github.com/livestatement/backend/internal/application/ledger"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

// EntryOutput is the printed form of a ledger entry
type EntryOutput struct {
	ID             uuid.UUID    `json:"id"`
	EntryDate      string       `json:"entry_date"`
	SourceType     string       `json:"source_type"`
	SourceID       uuid.UUID    `json:"source_id"`
	PostedBy       string       `json:"posted_by"`
	Evidence       string       `json:"evidence"`
	CorrelationID  string       `json:"correlation_id"`
	Description    string       `json:"description,omitempty"`
	ReverseEntryID *uuid.UUID   `json:"reverse_entry_id,omitempty"`
	Created        bool         `json:"created"`
	Lines          []LineOutput `json:"lines"`
}

// LineOutput is the printed form of a ledger line
type LineOutput struct {
	LineNo   int    `json:"line_no"`
	LineType string `json:"line_type"`
	Category string `json:"category"`
	Amount   string `json:"amount"`
	GstHst   string `json:"gst_hst"`
}

func toEntryOutput(e *ledger.LedgerEntry, created bool) EntryOutput {
	out := EntryOutput{
		ID:             e.ID,
		EntryDate:      e.EntryDate.UTC().Format(dateLayout),
		SourceType:     string(e.SourceType),
		SourceID:       e.SourceID,
		PostedBy:       string(e.PostedByType),
		Evidence:       string(e.Evidence),
		CorrelationID:  e.CorrelationID,
		Description:    e.Description,
		ReverseEntryID: e.ReverseEntryID,
		Created:        created,
		Lines:          make([]LineOutput, len(e.Lines)),
	}
	for i, l := range e.Lines {
		out.Lines[i] = LineOutput{
			LineNo:   l.LineNo,
			LineType: string(l.LineType),
			Category: l.Category,
			Amount:   l.Amount.StringFixed(2),
			GstHst:   l.GstHst.StringFixed(2),
		}
	}
	return out
}

func (a *app) printEntry(cmd *cobra.Command, e *ledger.LedgerEntry, created bool) error {
	p := a.printer(cmd)
	if created {
		p.success("Entry %s posted", e.ID)
	} else {
		p.warn("Idempotency key already used, returning entry %s", e.ID)
	}
	return a.renderEntry(cmd, toEntryOutput(e, created))
}

func (a *app) renderEntry(cmd *cobra.Command, out EntryOutput) error {
	p := a.printer(cmd)
	return p.emit(out, func() {
		p.kv(
			[2]string{"ID", out.ID.String()},
			[2]string{"Date", out.EntryDate},
			[2]string{"Source", out.SourceType + " " + out.SourceID.String()},
			[2]string{"Posted by", out.PostedBy},
			[2]string{"Evidence", out.Evidence},
			[2]string{"Correlation", out.CorrelationID},
		)
		t := newTable("#", "TYPE", "CATEGORY", "AMOUNT", "GST/HST")
		for _, l := range out.Lines {
			t.add(fmt.Sprint(l.LineNo), l.LineType, l.Category, l.Amount, l.GstHst)
		}
		t.render(cmd.OutOrStdout())
	})
}

// parseLine reads TYPE:category:amount[:gst[:deductible]]
func parseLine(raw string) (ledgerapp.ManualLineRequest, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 || len(parts) > 5 {
		return ledgerapp.ManualLineRequest{}, fmt.Errorf("invalid --line %q: want TYPE:category:amount[:gst[:deductible]]", raw)
	}
	line := ledgerapp.ManualLineRequest{
		LineType: ledger.LineType(strings.ToUpper(parts[0])),
		Category: parts[1],
	}
	var err error
	if line.Amount, err = decimal.NewFromString(parts[2]); err != nil {
		return line, fmt.Errorf("invalid amount in --line %q: %w", raw, err)
	}
	if len(parts) > 3 && parts[3] != "" {
		if line.GstHst, err = decimal.NewFromString(parts[3]); err != nil {
			return line, fmt.Errorf("invalid gst in --line %q: %w", raw, err)
		}
	}
	if len(parts) > 4 {
		pct, err := decimal.NewFromString(parts[4])
		if err != nil {
			return line, fmt.Errorf("invalid deductible in --line %q: %w", raw, err)
		}
		line.DeductiblePct = &pct
	}
	return line, nil
}

func (a *app) ledgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ledger",
		Aliases: []string{"entry", "entries"},
		Short:   "Post, reverse and inspect ledger entries",
	}
	cmd.AddCommand(a.ledgerPostCommand(), a.ledgerReverseCommand(), a.ledgerGetCommand())
	return cmd
}

func (a *app) ledgerPostCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post a manual entry",
		Example: `  ledgerctl ledger post --tenant $TENANT --key fuel-2025-03-02 --date 2025-03-02 \
    --line EXPENSE:fuel:88.50:11.50 --description "Fuel top-up"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			key, _ := cmd.Flags().GetString("key")
			date, _ := cmd.Flags().GetString("date")
			postedBy, _ := cmd.Flags().GetString("posted-by")
			description, _ := cmd.Flags().GetString("description")
			correlation, _ := cmd.Flags().GetString("correlation-id")
			rawLines, _ := cmd.Flags().GetStringArray("line")

			entryDate, err := time.Parse(dateLayout, date)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			lines := make([]ledgerapp.ManualLineRequest, 0, len(rawLines))
			for _, raw := range rawLines {
				line, err := parseLine(raw)
				if err != nil {
					return err
				}
				lines = append(lines, line)
			}

			entry, created, err := core.Posting.PostManual(cmd.Context(), ledgerapp.ManualEntryRequest{
				TenantID:       tenantID,
				IdempotencyKey: key,
				EntryDate:      entryDate,
				PostedBy:       ledger.PostedByType(strings.ToUpper(postedBy)),
				Description:    description,
				CorrelationID:  correlation,
				Lines:          lines,
			})
			if err != nil {
				return err
			}
			return a.printEntry(cmd, entry, created)
		},
	}
	cmd.Flags().String("key", "", "idempotency key (required)")
	cmd.Flags().String("date", "", "entry date, YYYY-MM-DD (required)")
	cmd.Flags().String("posted-by", string(ledger.PostedByAdmin), "DRIVER, ADMIN or SYSTEM")
	cmd.Flags().String("description", "", "entry description")
	cmd.Flags().String("correlation-id", "", "correlation ID (generated when empty)")
	cmd.Flags().StringArray("line", nil, "entry line TYPE:category:amount[:gst[:deductible]] (repeatable)")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("line")
	return cmd
}

func (a *app) ledgerReverseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverse ENTRY_ID",
		Short: "Reverse an entry with an adjustment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			entryID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry ID: %w", err)
			}
			key, _ := cmd.Flags().GetString("key")
			reason, _ := cmd.Flags().GetString("reason")
			postedBy, _ := cmd.Flags().GetString("posted-by")
			correlation, _ := cmd.Flags().GetString("correlation-id")

			entry, created, err := core.Posting.Reverse(cmd.Context(), ledgerapp.ReverseEntryRequest{
				TenantID:       tenantID,
				EntryID:        entryID,
				IdempotencyKey: key,
				Reason:         reason,
				PostedBy:       ledger.PostedByType(strings.ToUpper(postedBy)),
				CorrelationID:  correlation,
			})
			if err != nil {
				return err
			}
			return a.printEntry(cmd, entry, created)
		},
	}
	cmd.Flags().String("key", "", "idempotency key (required)")
	cmd.Flags().String("reason", "", "reversal reason (required)")
	cmd.Flags().String("posted-by", string(ledger.PostedByAdmin), "DRIVER, ADMIN or SYSTEM")
	cmd.Flags().String("correlation-id", "", "correlation ID (generated when empty)")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func (a *app) ledgerGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get ENTRY_ID",
		Short: "Show an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			entryID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry ID: %w", err)
			}
			entry, err := core.Posting.Get(cmd.Context(), tenantID, entryID)
			if err != nil {
				return err
			}
			return a.renderEntry(cmd, toEntryOutput(entry, false))
		},
	}
}
