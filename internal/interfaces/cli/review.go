package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	receiptapp "github.com/livestatement/backend/internal/application/receipt"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// ReviewOutput is an open hold review
type ReviewOutput struct {
	ID         uuid.UUID `json:"id"`
	ReceiptID  uuid.UUID `json:"receipt_id"`
	Submission int       `json:"submission"`
	HoldReason string    `json:"hold_reason"`
	Questions  []string  `json:"questions"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReceiptOutput is a receipt after a review decision
type ReceiptOutput struct {
	ID         uuid.UUID `json:"id"`
	Status     string    `json:"status"`
	Submission int       `json:"submission"`
	Vendor     string    `json:"vendor,omitempty"`
	Total      string    `json:"total"`
	Tax        string    `json:"tax"`
}

func (a *app) printReceipt(cmd *cobra.Command, r *receipt.Receipt) error {
	p := a.printer(cmd)
	out := ReceiptOutput{
		ID:         r.ID,
		Status:     string(r.Status),
		Submission: r.Submission,
		Vendor:     r.Vendor,
		Total:      r.Total.StringFixed(2),
		Tax:        r.Tax.StringFixed(2),
	}
	return p.emit(out, func() {
		p.kv(
			[2]string{"Receipt", out.ID.String()},
			[2]string{"Status", out.Status},
			[2]string{"Submission", strconv.Itoa(out.Submission)},
			[2]string{"Vendor", out.Vendor},
			[2]string{"Total", out.Total},
			[2]string{"Tax", out.Tax},
		)
	})
}

// reviewTarget reads the receipt argument and the shared reviewer flags
func reviewTarget(cmd *cobra.Command, tenantID uuid.UUID, receiptArg string) (receiptapp.ReviewTarget, error) {
	receiptID, err := uuid.Parse(receiptArg)
	if err != nil {
		return receiptapp.ReviewTarget{}, fmt.Errorf("invalid receipt ID: %w", err)
	}
	rawReviewer, _ := cmd.Flags().GetString("reviewer")
	reviewerID, err := uuid.Parse(rawReviewer)
	if err != nil {
		return receiptapp.ReviewTarget{}, fmt.Errorf("invalid --reviewer: %w", err)
	}
	note, _ := cmd.Flags().GetString("note")
	return receiptapp.ReviewTarget{
		TenantID:   tenantID,
		ReceiptID:  receiptID,
		ReviewerID: reviewerID,
		Note:       note,
	}, nil
}

func reviewerFlags(cmd *cobra.Command) {
	cmd.Flags().String("reviewer", "", "reviewer user ID (required)")
	cmd.Flags().String("note", "", "review note")
	_ = cmd.MarkFlagRequired("reviewer")
}

func (a *app) reviewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "review",
		Aliases: []string{"reviews"},
		Short:   "Resolve receipts held for review",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List open reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			reviews, err := core.Reviews.ListOpen(cmd.Context(), tenantID, limit)
			if err != nil {
				return err
			}
			out := make([]ReviewOutput, len(reviews))
			for i, r := range reviews {
				questions := make([]string, len(r.Questions))
				for j, q := range r.Questions {
					questions[j] = q.Field
				}
				out[i] = ReviewOutput{
					ID:         r.ID,
					ReceiptID:  r.ReceiptID,
					Submission: r.Submission,
					HoldReason: r.HoldReason,
					Questions:  questions,
					CreatedAt:  r.CreatedAt,
				}
			}
			p := a.printer(cmd)
			return p.emit(out, func() {
				t := newTable("RECEIPT", "SUBMISSION", "REASON", "QUESTIONS", "OPENED")
				for _, r := range out {
					t.add(r.ReceiptID.String(), strconv.Itoa(r.Submission), r.HoldReason,
						strings.Join(r.Questions, ","), r.CreatedAt.UTC().Format(time.RFC3339))
				}
				t.render(cmd.OutOrStdout())
			})
		},
	}
	list.Flags().Int("limit", 50, "maximum reviews to list")

	approve := &cobra.Command{
		Use:   "approve RECEIPT_ID",
		Short: "Approve a held receipt with confirmed fields",
		Example: `  ledgerctl review approve $RECEIPT --tenant $TENANT --reviewer $USER \
    --vendor "Petro-Canada" --date 2025-03-02 --total 100.00 --tax 13.00`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			target, err := reviewTarget(cmd, tenantID, args[0])
			if err != nil {
				return err
			}
			vendor, _ := cmd.Flags().GetString("vendor")
			rawDate, _ := cmd.Flags().GetString("date")
			rawTotal, _ := cmd.Flags().GetString("total")
			rawTax, _ := cmd.Flags().GetString("tax")
			currency, _ := cmd.Flags().GetString("currency")
			category, _ := cmd.Flags().GetString("category")

			date, err := time.Parse(dateLayout, rawDate)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			total, err := decimal.NewFromString(rawTotal)
			if err != nil {
				return fmt.Errorf("invalid --total: %w", err)
			}
			tax, err := decimal.NewFromString(rawTax)
			if err != nil {
				return fmt.Errorf("invalid --tax: %w", err)
			}

			r, err := core.Reviews.Approve(cmd.Context(), receiptapp.ApproveReceiptRequest{
				ReviewTarget: target,
				Vendor:       vendor,
				Date:         date,
				Total:        total,
				Tax:          tax,
				Currency:     strings.ToUpper(currency),
				Category:     category,
			})
			if err != nil {
				return err
			}
			a.printer(cmd).success("Receipt %s approved; it posts as estimated when the relay delivers receipt.ready", r.ID)
			return a.printReceipt(cmd, r)
		},
	}
	reviewerFlags(approve)
	approve.Flags().String("vendor", "", "vendor name (required)")
	approve.Flags().String("date", "", "receipt date, YYYY-MM-DD (required)")
	approve.Flags().String("total", "", "receipt total including tax (required)")
	approve.Flags().String("tax", "0", "GST/HST amount")
	approve.Flags().String("currency", "CAD", "ISO currency code")
	approve.Flags().String("category", "", "expense category")
	_ = approve.MarkFlagRequired("vendor")
	_ = approve.MarkFlagRequired("date")
	_ = approve.MarkFlagRequired("total")

	reject := &cobra.Command{
		Use:   "reject RECEIPT_ID",
		Short: "Reject a held receipt without posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			target, err := reviewTarget(cmd, tenantID, args[0])
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			r, err := core.Reviews.Reject(cmd.Context(), receiptapp.RejectReceiptRequest{ReviewTarget: target, Reason: reason})
			if err != nil {
				return err
			}
			a.printer(cmd).success("Receipt %s rejected", r.ID)
			return a.printReceipt(cmd, r)
		},
	}
	reviewerFlags(reject)
	reject.Flags().String("reason", "", "rejection reason (required)")
	_ = reject.MarkFlagRequired("reason")

	reextract := &cobra.Command{
		Use:   "reextract RECEIPT_ID",
		Short: "Send a held receipt back through extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			target, err := reviewTarget(cmd, tenantID, args[0])
			if err != nil {
				return err
			}
			r, err := core.Reviews.Reextract(cmd.Context(), target)
			if err != nil {
				return err
			}
			a.printer(cmd).success("Receipt %s resubmitted as submission %d", r.ID, r.Submission)
			return a.printReceipt(cmd, r)
		},
	}
	reviewerFlags(reextract)

	cmd.AddCommand(list, approve, reject, reextract)
	return cmd
}
