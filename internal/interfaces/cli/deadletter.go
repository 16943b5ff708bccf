package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	appevent "github.com/livestatement/backend/internal/application/event"
	"github.com/spf13/cobra"
)

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func (a *app) printOutboxEntry(cmd *cobra.Command, e *appevent.OutboxEntryDTO) error {
	p := a.printer(cmd)
	return p.emit(e, func() {
		p.kv(
			[2]string{"ID", e.ID.String()},
			[2]string{"Event", e.EventType + " " + e.EventID.String()},
			[2]string{"Tenant", e.TenantID.String()},
			[2]string{"Correlation", e.CorrelationID},
			[2]string{"Status", e.Status},
			[2]string{"Retries", fmt.Sprintf("%d/%d", e.RetryCount, e.MaxRetries)},
			[2]string{"Last error", e.LastError},
			[2]string{"Next retry", formatTime(e.NextRetryAt)},
		)
	})
}

func (a *app) deadLetterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dead-letters",
		Aliases: []string{"dlq", "outbox"},
		Short:   "Inspect and replay envelopes the relay gave up on",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List dead letter entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := a.open(cmd)
			if err != nil {
				return err
			}
			page, _ := cmd.Flags().GetInt("page")
			size, _ := cmd.Flags().GetInt("page-size")
			result, err := core.DeadLetters.GetDeadLetterEntries(cmd.Context(), appevent.OutboxFilter{Page: page, PageSize: size})
			if err != nil {
				return err
			}
			p := a.printer(cmd)
			return p.emit(result, func() {
				t := newTable("ID", "EVENT TYPE", "CORRELATION", "RETRIES", "LAST ERROR")
				for _, e := range result.Entries {
					t.add(e.ID.String(), e.EventType, e.CorrelationID, strconv.Itoa(e.RetryCount), e.LastError)
				}
				t.render(cmd.OutOrStdout())
				fmt.Fprintf(cmd.OutOrStdout(), "\npage %d of %d (%d total)\n", result.Page, result.TotalPages, result.Total)
			})
		},
	}
	list.Flags().Int("page", 1, "page number")
	list.Flags().Int("page-size", 20, "entries per page (max 100)")

	get := &cobra.Command{
		Use:   "get ENTRY_ID",
		Short: "Show an outbox entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := a.open(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry ID: %w", err)
			}
			entry, err := core.DeadLetters.GetEntry(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printOutboxEntry(cmd, entry)
		},
	}

	retry := &cobra.Command{
		Use:   "retry ENTRY_ID",
		Short: "Return a dead letter entry to the relay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := a.open(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry ID: %w", err)
			}
			entry, err := core.DeadLetters.RetryDeadEntry(cmd.Context(), id)
			if err != nil {
				return err
			}
			a.printer(cmd).success("Entry %s queued for redelivery", entry.ID)
			return a.printOutboxEntry(cmd, entry)
		},
	}

	retryAll := &cobra.Command{
		Use:   "retry-all",
		Short: "Return every dead letter entry to the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := a.open(cmd)
			if err != nil {
				return err
			}
			count, err := core.DeadLetters.RetryAllDeadEntries(cmd.Context())
			if err != nil {
				return err
			}
			p := a.printer(cmd)
			p.success("%d entries queued for redelivery", count)
			return p.emit(map[string]int64{"count": count}, func() {})
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count outbox entries by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := a.open(cmd)
			if err != nil {
				return err
			}
			s, err := core.DeadLetters.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			p := a.printer(cmd)
			return p.emit(s, func() {
				t := newTable("PENDING", "PROCESSING", "SENT", "FAILED", "DEAD", "TOTAL")
				t.add(
					strconv.FormatInt(s.Pending, 10),
					strconv.FormatInt(s.Processing, 10),
					strconv.FormatInt(s.Sent, 10),
					strconv.FormatInt(s.Failed, 10),
					strconv.FormatInt(s.Dead, 10),
					strconv.FormatInt(s.Total, 10),
				)
				t.render(cmd.OutOrStdout())
			})
		},
	}

	failed := &cobra.Command{
		Use:   "failed-jobs",
		Short: "List a tenant's failed handler runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, tenantID, err := a.session(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			jobs, err := core.DeadLetters.GetFailedJobs(cmd.Context(), tenantID, limit)
			if err != nil {
				return err
			}
			p := a.printer(cmd)
			return p.emit(jobs, func() {
				t := newTable("JOB TYPE", "DEDUPE KEY", "ATTEMPTS", "FINISHED", "LAST ERROR")
				for _, j := range jobs {
					t.add(j.JobType, j.DedupeKey, strconv.Itoa(j.Attempts), formatTime(j.FinishedAt), j.LastError)
				}
				t.render(cmd.OutOrStdout())
			})
		},
	}
	failed.Flags().Int("limit", 50, "maximum jobs to list")

	cmd.AddCommand(list, get, retry, retryAll, stats, failed)
	return cmd
}
