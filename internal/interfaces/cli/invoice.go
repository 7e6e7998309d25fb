package cli

import (
	"context"
	"fmt"
	"strings"

	appbilling "github.com/garage/billing/internal/application/billing"
	"github.com/garage/billing/internal/domain/billing"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func (c *CLI) invoiceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invoice",
		Aliases: []string{"invoices"},
		Short:   "Create, inspect and maintain invoices",
	}
	cmd.AddCommand(
		c.invoiceCreateCommand(),
		c.invoiceShowCommand(),
		c.invoiceStatusCommand(),
		c.invoiceItemsCommand(),
		c.invoiceDeleteCommand(),
		c.invoiceReconcileCommand(),
		c.invoiceListCommand("outstanding", "List invoices with a balance due", (*appbilling.BillingService).GetOutstandingInvoices),
		c.invoiceListCommand("overdue", "List invoices past their due date", (*appbilling.BillingService).GetOverdueInvoices),
	)
	return cmd
}

func (c *CLI) invoiceCreateCommand() *cobra.Command {
	var (
		discount string
		notes    string
		items    []string
	)
	cmd := &cobra.Command{
		Use:   "create <service-id>",
		Short: "Bill a completed service",
		Long: `Bill a completed service. Without --item the invoice has one line for the
service cost. An advance payment recorded on the service is applied as the
first payment. Billing a service twice returns the existing invoice.`,
		Example: `  billing invoice create s-1042
  billing invoice create s-1042 --item "Oil filter|2|850|parts" --item "Labour|1|2500|labor" --discount 250`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := appbilling.CreateInvoiceRequest{ServiceID: args[0], Notes: notes}
			if discount != "" {
				d, err := decimal.NewFromString(discount)
				if err != nil {
					return fmt.Errorf("invalid discount %q", discount)
				}
				req.Discount = d
			}
			lines, err := parseLineItems(items)
			if err != nil {
				return err
			}
			req.LineItems = lines

			creation, err := c.service().CreateInvoiceFromService(cmd.Context(), req)
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(creation)
			}
			if !creation.Created {
				c.out.line("Service %s is already billed", args[0])
			}
			return c.printInvoice(creation.Invoice)
		},
	}
	cmd.Flags().StringVar(&discount, "discount", "", "Discount taken off the subtotal before tax")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes printed on the invoice")
	cmd.Flags().StringArrayVar(&items, "item", nil, `Line item as "description|quantity|unit price[|kind]"`)
	return cmd
}

func (c *CLI) invoiceShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <invoice-id>",
		Short: "Show an invoice with its line items and payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := c.service().GetInvoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			payments, err := c.service().GetInvoicePayments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(struct {
					Invoice  *billing.Invoice   `json:"invoice"`
					Payments []*billing.Payment `json:"payments"`
				}{inv, payments})
			}
			if err := c.printInvoice(inv); err != nil {
				return err
			}
			if len(payments) == 0 {
				return nil
			}
			c.out.line("")
			return c.printPayments(payments)
		},
	}
}

func (c *CLI) invoiceStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <invoice-id> <draft|sent|paid|canceled>",
		Short: "Change the status of an invoice",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.service().UpdateStatus(cmd.Context(), appbilling.UpdateStatusRequest{
				InvoiceID: args[0],
				Status:    args[1],
			})
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(result)
			}
			c.out.line("%s: %s -> %s", result.Invoice.InvoiceNumber, result.From, result.To)
			if result.Warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", result.Warning)
			}
			return nil
		},
	}
}

func (c *CLI) invoiceItemsCommand() *cobra.Command {
	var items []string
	cmd := &cobra.Command{
		Use:     "items <invoice-id>",
		Short:   "Replace the line items of an invoice",
		Example: `  billing invoice items inv-1 --item "Brake pads|1|4200|parts" --item "Labour|2|1500|labor"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := parseLineItems(items)
			if err != nil {
				return err
			}
			inv, err := c.service().UpdateLineItems(cmd.Context(), appbilling.UpdateLineItemsRequest{
				InvoiceID: args[0],
				Items:     lines,
			})
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(inv)
			}
			return c.printInvoice(inv)
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", nil, `Line item as "description|quantity|unit price[|kind]"`)
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func (c *CLI) invoiceDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <invoice-id>",
		Short: "Delete an invoice together with its payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.service().DeleteInvoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(result)
			}
			c.out.line("Deleted %s and %d payment(s)", result.Invoice.InvoiceNumber, len(result.RemovedPayments))
			return nil
		},
	}
}

func (c *CLI) invoiceReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <invoice-id>",
		Short: "Recompute paid amount, balance and status from the payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := c.service().ReconcileInvoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(result)
			}
			if !result.Changed {
				c.out.line("%s is consistent", result.Invoice.InvoiceNumber)
				return nil
			}
			c.out.line("%s repaired", result.Invoice.InvoiceNumber)
			return c.printInvoice(result.Invoice)
		},
	}
}

func (c *CLI) invoiceListCommand(use, short string, list func(*appbilling.BillingService, context.Context) ([]*billing.Invoice, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			invoices, err := list(c.service(), cmd.Context())
			if err != nil {
				return err
			}
			if c.out.json() {
				return c.out.printJSON(invoices)
			}
			return c.printInvoiceTable(invoices)
		},
	}
}

func (c *CLI) printInvoice(inv *billing.Invoice) error {
	f := c.service().FormatAmount
	if err := c.out.fields(
		"Invoice", inv.InvoiceNumber,
		"ID", inv.ID,
		"Customer", inv.CustomerID,
		"Status", string(inv.Status),
		"Date", formatDate(inv.DateCreated),
		"Due", formatOptionalDate(inv.DueDate),
	); err != nil {
		return err
	}
	if len(inv.LineItems) > 0 {
		c.out.line("")
		rows := make([][]string, 0, len(inv.LineItems))
		for _, item := range inv.LineItems {
			rows = append(rows, []string{item.Description, string(item.Kind), item.Quantity.String(), f(item.UnitPrice), f(item.Total)})
		}
		if err := c.out.table([]string{"DESCRIPTION", "KIND", "QTY", "UNIT PRICE", "TOTAL"}, rows); err != nil {
			return err
		}
		c.out.line("")
	}
	pairs := []string{"Subtotal", f(inv.Subtotal)}
	if inv.Discount.IsPositive() {
		pairs = append(pairs, "Discount", f(inv.Discount))
	}
	pairs = append(pairs,
		"Tax", f(inv.TaxAmount),
		"Total", f(inv.Total),
		"Paid", f(inv.PaidAmount),
		"Balance due", f(inv.BalanceDue),
	)
	return c.out.fields(pairs...)
}

func (c *CLI) printInvoiceTable(invoices []*billing.Invoice) error {
	if len(invoices) == 0 {
		c.out.line("No invoices")
		return nil
	}
	f := c.service().FormatAmount
	rows := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		rows = append(rows, []string{
			inv.InvoiceNumber, inv.CustomerID, formatDate(inv.DateCreated), formatOptionalDate(inv.DueDate),
			f(inv.Total), f(inv.BalanceDue), string(inv.Status),
		})
	}
	return c.out.table([]string{"NUMBER", "CUSTOMER", "DATE", "DUE", "TOTAL", "BALANCE", "STATUS"}, rows)
}

// parseLineItems reads "description|quantity|unit price[|kind]" values
func parseLineItems(values []string) ([]appbilling.LineItemInput, error) {
	items := make([]appbilling.LineItemInput, 0, len(values))
	for _, v := range values {
		parts := strings.Split(v, "|")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("invalid line item %q, want description|quantity|unit price[|kind]", v)
		}
		qty, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in line item %q", v)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("invalid unit price in line item %q", v)
		}
		item := appbilling.LineItemInput{
			Description: strings.TrimSpace(parts[0]),
			Quantity:    qty,
			UnitPrice:   price,
		}
		if len(parts) == 4 {
			item.Kind = strings.TrimSpace(parts[3])
		}
		items = append(items, item)
	}
	return items, nil
}
