package cli

import (
	"errors"

	appbilling "github.com/garage/billing/internal/application/billing"
	"github.com/garage/billing/internal/domain/billing"
	"github.com/spf13/cobra"
)

func (c *CLI) customerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "customer",
		Aliases: []string{"customers"},
		Short:   "Balances, statements and payment history per customer",
	}
	cmd.AddCommand(
		c.customerBalanceCommand(),
		c.customerStatementCommand(),
		c.customerHistoryCommand(),
	)
	return cmd
}

func (c *CLI) customerBalanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <customer-id>",
		Short: "Show what a customer owes and how much of it is overdue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			balance, err := c.service().GetCustomerBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			overdue, err := c.service().GetCustomerOverdue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(map[string]any{
					"customer_id": args[0],
					"balance":     balance,
					"overdue":     overdue,
				})
			}
			f := c.service().FormatAmount
			return c.out.fields(
				"Customer", args[0],
				"Balance", f(balance),
				"Overdue", f(overdue),
			)
		},
	}
}

func (c *CLI) customerStatementCommand() *cobra.Command {
	var (
		from, to string
		archive  bool
	)
	cmd := &cobra.Command{
		Use:     "statement <customer-id>",
		Short:   "Print a customer statement with a running balance",
		Example: `  billing customer statement c-17 --from 2024-01-01 --to 2024-03-31`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (from == "") != (to == "") {
				return errors.New("--from and --to must be given together")
			}

			var (
				st  *billing.Statement
				err error
			)
			if from == "" {
				st, err = c.service().BuildStatement(cmd.Context(), args[0])
			} else {
				start, perr := parseDate(from)
				if perr != nil {
					return perr
				}
				end, perr := parseDate(to)
				if perr != nil {
					return perr
				}
				st, err = c.service().BuildPeriodStatement(cmd.Context(), args[0], start, endOfDay(end))
			}
			if err != nil {
				return err
			}

			doc := c.service().StatementDocument(st)
			var archived *appbilling.ArchivedDocument
			if archive {
				if archived, err = c.service().ArchiveStatement(cmd.Context(), st); err != nil {
					return err
				}
			}
			if c.out.json() {
				if archived != nil {
					return c.out.printJSON(map[string]any{"statement": doc, "archived": archived})
				}
				return c.out.printJSON(doc)
			}

			pairs := []string{"Customer", st.Customer.Name}
			if st.Period != nil {
				pairs = append(pairs, "Period", formatDate(st.Period.Start)+" to "+formatDate(st.Period.End))
			}
			for _, v := range st.Vehicles {
				pairs = append(pairs, "Vehicle", v.Make+" "+v.Model+" "+v.PlateNumber)
			}
			if err := c.out.fields(pairs...); err != nil {
				return err
			}
			c.out.line("")
			rows := make([][]string, 0, len(doc.Lines))
			for _, l := range doc.Lines {
				rows = append(rows, []string{formatDate(l.Date), l.Description, l.Debit, l.Credit, l.Balance})
			}
			if err := c.out.table([]string{"DATE", "DESCRIPTION", "DEBIT", "CREDIT", "BALANCE"}, rows); err != nil {
				return err
			}
			c.out.line("")
			f := c.service().FormatAmount
			if err := c.out.fields(
				"Total billed", f(doc.TotalBilled),
				"Total paid", f(doc.TotalPaid),
				"Balance", f(doc.Balance),
			); err != nil {
				return err
			}
			c.printArchived(archived)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Period start, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Period end, YYYY-MM-DD (inclusive)")
	cmd.Flags().BoolVar(&archive, "archive", false, "Also upload the statement to the document archive")
	return cmd
}

func (c *CLI) customerHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <customer-id>",
		Short: "List a customer's payments, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := c.service().GetPaymentHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(items)
			}
			if len(items) == 0 {
				c.out.line("No payments")
				return nil
			}
			f := c.service().FormatAmount
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{formatDate(item.Date), item.InvoiceNumber, string(item.Method), f(item.Amount), item.Reference})
			}
			return c.out.table([]string{"DATE", "INVOICE", "METHOD", "AMOUNT", "REFERENCE"}, rows)
		},
	}
}
