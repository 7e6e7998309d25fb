package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"unicode/utf8"

	appbilling "github.com/garage/billing/internal/application/billing"
	"github.com/garage/billing/internal/domain/billing"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func (c *CLI) paymentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "payment",
		Aliases: []string{"payments"},
		Short:   "Record and void payments",
	}
	cmd.AddCommand(
		c.paymentRecordCommand(),
		c.paymentVoidCommand(),
		c.paymentListCommand(),
		c.paymentImportCommand(),
	)
	return cmd
}

func (c *CLI) paymentRecordCommand() *cobra.Command {
	var (
		amount    string
		method    string
		date      string
		reference string
		notes     string
	)
	cmd := &cobra.Command{
		Use:     "record <invoice-id>",
		Short:   "Apply a payment to an invoice",
		Example: `  billing payment record inv-1 --amount 2500 --method card --reference "VISA 4421"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q", amount)
			}
			req := appbilling.RecordPaymentRequest{
				InvoiceID: args[0],
				Amount:    amt,
				Method:    method,
				Reference: reference,
				Notes:     notes,
			}
			if date != "" {
				if req.Date, err = parseDate(date); err != nil {
					return err
				}
			}

			result, err := c.service().RecordPayment(cmd.Context(), req)
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(result)
			}
			f := c.service().FormatAmount
			c.out.line("Recorded %s %s on %s (payment %s)", f(result.Payment.Amount), result.Payment.Method,
				result.Invoice.InvoiceNumber, result.Payment.ID)
			return c.out.fields(
				"Paid", f(result.Invoice.PaidAmount),
				"Balance due", f(result.Invoice.BalanceDue),
				"Status", string(result.Invoice.Status),
			)
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "Amount paid")
	cmd.Flags().StringVar(&method, "method", string(billing.PaymentMethodCash), "cash, card, check or bank_transfer")
	cmd.Flags().StringVar(&date, "date", "", "Payment date, YYYY-MM-DD (default: now)")
	cmd.Flags().StringVar(&reference, "reference", "", "Card slip, cheque or transfer reference")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (c *CLI) paymentVoidCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "void <payment-id>",
		Short: "Remove a payment and restore the invoice balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.service().VoidPayment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(result)
			}
			f := c.service().FormatAmount
			c.out.line("Voided %s on %s", f(result.Payment.Amount), result.Invoice.InvoiceNumber)
			return c.out.fields(
				"Balance due", f(result.Invoice.BalanceDue),
				"Status", string(result.Invoice.Status),
			)
		},
	}
}

func (c *CLI) paymentListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <invoice-id>",
		Short: "List the payments of an invoice, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payments, err := c.service().GetInvoicePayments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(payments)
			}
			return c.printPayments(payments)
		},
	}
}

func (c *CLI) printPayments(payments []*billing.Payment) error {
	if len(payments) == 0 {
		c.out.line("No payments")
		return nil
	}
	f := c.service().FormatAmount
	rows := make([][]string, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, []string{p.ID, formatDate(p.Date), string(p.Method), f(p.Amount), p.Reference})
	}
	return c.out.table([]string{"PAYMENT", "DATE", "METHOD", "AMOUNT", "REFERENCE"}, rows)
}

func (c *CLI) paymentImportCommand() *cobra.Command {
	var (
		dryRun    bool
		maxRows   int
		delimiter string
	)
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Record payments from a CSV file",
		Long: `Record one payment per row of a CSV file. The header names the columns:
invoice and amount are required; method, date, reference and notes are
optional. The invoice column takes an invoice id or an invoice number.
Use - to read the file from standard input.`,
		Example: `  billing payment import bank-2024-06.csv --dry-run
  billing payment import - --delimiter ';' < payments.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sep, size := utf8.DecodeRuneInString(delimiter)
			if delimiter == "" || size != len(delimiter) || sep == utf8.RuneError {
				return fmt.Errorf("invalid delimiter %q", delimiter)
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer file.Close()
				in = file
			}

			result, err := c.service().ImportPayments(cmd.Context(), in, appbilling.PaymentImportOptions{
				DryRun:    dryRun,
				MaxRows:   maxRows,
				Delimiter: sep,
			})
			if result == nil {
				return err
			}
			if c.out.json() {
				if perr := c.out.printJSON(result); perr != nil {
					return perr
				}
			} else if perr := c.printImport(result); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			if result.ErrorRows > 0 {
				return fmt.Errorf("%d of %d rows rejected", result.ErrorRows, result.TotalRows)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Check the file against current balances without recording anything")
	cmd.Flags().IntVar(&maxRows, "max-rows", 5000, "Refuse files with more data rows (0 for no limit)")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "Field delimiter")
	return cmd
}

func (c *CLI) printImport(result *appbilling.PaymentImportResult) error {
	f := c.service().FormatAmount
	verb := "Recorded"
	if result.DryRun {
		verb = "Would record"
	}
	c.out.line("%s %d of %d payments (%s)", verb, result.ImportedRows, result.TotalRows, f(result.Amount))

	if len(result.Payments) > 0 {
		rows := make([][]string, 0, len(result.Payments))
		for _, p := range result.Payments {
			rows = append(rows, []string{strconv.Itoa(p.Row), p.InvoiceNumber, p.Method, f(p.Amount), f(p.BalanceDue), p.Status})
		}
		c.out.line("")
		if err := c.out.table([]string{"ROW", "INVOICE", "METHOD", "AMOUNT", "BALANCE", "STATUS"}, rows); err != nil {
			return err
		}
	}

	if len(result.Errors) > 0 {
		rows := make([][]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			rows = append(rows, []string{strconv.Itoa(e.Row), e.Column, e.Code, e.Message})
		}
		c.out.line("")
		if err := c.out.table([]string{"ROW", "COLUMN", "CODE", "PROBLEM"}, rows); err != nil {
			return err
		}
		if result.IsTruncated {
			c.out.line("... %d more problems not shown", result.TotalErrors-len(result.Errors))
		}
	}
	return nil
}
