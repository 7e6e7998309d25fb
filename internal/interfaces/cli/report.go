package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	appbilling "github.com/garage/billing/internal/application/billing"
	"github.com/spf13/cobra"
)

func (c *CLI) reportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "report",
		Aliases: []string{"reports"},
		Short:   "Revenue and dashboard reports",
	}
	cmd.AddCommand(
		c.reportRevenueCommand(),
		c.reportSummaryCommand(),
	)
	return cmd
}

func (c *CLI) reportRevenueCommand() *cobra.Command {
	var (
		from, to string
		archive  bool
	)
	cmd := &cobra.Command{
		Use:   "revenue",
		Short: "Revenue collected in a period, by payment method and service type",
		Long: `Revenue collected in a period, by payment method and service type.
Without --from and --to the current month is reported.`,
		Example: `  billing report revenue --from 2024-01-01 --to 2024-01-31`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := reportRange(from, to, time.Now())
			if err != nil {
				return err
			}
			report, err := c.service().GetRevenueReport(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			var archived *appbilling.ArchivedDocument
			if archive {
				if archived, err = c.service().ArchiveRevenueReport(cmd.Context(), report); err != nil {
					return err
				}
			}
			if c.out.json() {
				if archived != nil {
					return c.out.printJSON(map[string]any{"report": report, "archived": archived})
				}
				return c.out.printJSON(report)
			}

			f := c.service().FormatAmount
			if err := c.out.fields(
				"Period", formatDate(report.Start)+" to "+formatDate(report.End),
				"Revenue", f(report.TotalRevenue),
				"Payments", fmt.Sprint(report.PaymentCount),
				"Average", f(report.AveragePayment),
			); err != nil {
				return err
			}
			if report.PaymentCount == 0 {
				c.printArchived(archived)
				return nil
			}

			c.out.line("")
			rows := make([][]string, 0, len(report.PaymentMethods))
			for _, method := range slices.Sorted(maps.Keys(report.PaymentMethods)) {
				rows = append(rows, []string{string(method), f(report.PaymentMethods[method])})
			}
			if err := c.out.table([]string{"METHOD", "AMOUNT"}, rows); err != nil {
				return err
			}

			c.out.line("")
			rows = rows[:0]
			for _, service := range slices.Sorted(maps.Keys(report.ServiceRevenue)) {
				rows = append(rows, []string{service, f(report.ServiceRevenue[service])})
			}
			if err := c.out.table([]string{"SERVICE", "AMOUNT"}, rows); err != nil {
				return err
			}
			c.printArchived(archived)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Period start, YYYY-MM-DD (default: first day of this month)")
	cmd.Flags().StringVar(&to, "to", "", "Period end, YYYY-MM-DD, inclusive (default: today)")
	cmd.Flags().BoolVar(&archive, "archive", false, "Also upload the report to the document archive")
	return cmd
}

// reportRange resolves --from/--to, defaulting to the month containing now
func reportRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	if (from == "") != (to == "") {
		return time.Time{}, time.Time{}, errors.New("--from and --to must be given together")
	}
	if from == "" {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, now, nil
	}
	start, err := parseDate(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, endOfDay(end), nil
}

func (c *CLI) reportSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Invoiced, collected, outstanding and overdue totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := c.service().GetSummary(cmd.Context())
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(summary)
			}
			f := c.service().FormatAmount
			return c.out.fields(
				"Invoiced", f(summary.TotalInvoiced),
				"Collected", f(summary.TotalCollected),
				"Outstanding", fmt.Sprintf("%s (%d)", f(summary.TotalOutstanding), summary.OutstandingCount),
				"Overdue", fmt.Sprintf("%s (%d)", f(summary.TotalOverdue), summary.OverdueCount),
				"Drafts", fmt.Sprint(summary.DraftCount),
				"Revenue this month", fmt.Sprintf("%s (%d payments)", f(summary.RevenueThisMonth), summary.PaymentsThisMonth),
			)
		},
	}
}
