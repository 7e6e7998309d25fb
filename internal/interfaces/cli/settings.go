package cli

import (
	"fmt"

	appbilling "github.com/garage/billing/internal/application/billing"
	"github.com/garage/billing/internal/domain/billing"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func (c *CLI) settingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the billing settings",
	}
	cmd.AddCommand(
		c.settingsShowCommand(),
		c.settingsSetCommand(),
	)
	return cmd
}

func (c *CLI) settingsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the billing settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := c.service().GetSettings(cmd.Context())
			if err != nil {
				return err
			}
			return c.printSettings(settings)
		},
	}
}

func (c *CLI) settingsSetCommand() *cobra.Command {
	var (
		taxRate    string
		prefix     string
		nextNumber int
		terms      string
		company    string
		address    string
		phone      string
		email      string
		taxID      string
	)
	cmd := &cobra.Command{
		Use:     "set",
		Short:   "Change billing settings; flags not given keep their value",
		Example: `  billing settings set --tax-rate 0.08 --terms "Net 15"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			current, err := c.service().GetSettings(cmd.Context())
			if err != nil {
				return err
			}
			req := settingsRequest(current)

			flags := cmd.Flags()
			if flags.Changed("tax-rate") {
				rate, err := decimal.NewFromString(taxRate)
				if err != nil {
					return fmt.Errorf("invalid tax rate %q", taxRate)
				}
				req.TaxRate = rate
			}
			if flags.Changed("prefix") {
				req.InvoicePrefix = prefix
			}
			if flags.Changed("next-number") {
				req.NextInvoiceNumber = nextNumber
			}
			if flags.Changed("terms") {
				req.PaymentTerms = terms
			}
			if flags.Changed("company") {
				req.CompanyName = company
			}
			if flags.Changed("address") {
				req.CompanyAddress = address
			}
			if flags.Changed("phone") {
				req.CompanyPhone = phone
			}
			if flags.Changed("email") {
				req.CompanyEmail = email
			}
			if flags.Changed("tax-id") {
				req.CompanyTaxID = taxID
			}

			settings, err := c.service().UpdateSettings(cmd.Context(), req)
			if err != nil {
				return err
			}
			return c.printSettings(settings)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&taxRate, "tax-rate", "", "Tax rate as a fraction, e.g. 0.08")
	flags.StringVar(&prefix, "prefix", "", "Invoice number prefix")
	flags.IntVar(&nextNumber, "next-number", 0, "Next invoice sequence number")
	flags.StringVar(&terms, "terms", "", `Payment terms, e.g. "Net 30" or "Due on receipt"`)
	flags.StringVar(&company, "company", "", "Company name")
	flags.StringVar(&address, "address", "", "Company address")
	flags.StringVar(&phone, "phone", "", "Company phone")
	flags.StringVar(&email, "email", "", "Company email")
	flags.StringVar(&taxID, "tax-id", "", "Company tax ID")
	return cmd
}

func settingsRequest(s billing.Settings) appbilling.UpdateSettingsRequest {
	return appbilling.UpdateSettingsRequest{
		TaxRate:           s.TaxRate,
		InvoicePrefix:     s.InvoicePrefix,
		NextInvoiceNumber: s.NextInvoiceNumber,
		PaymentTerms:      s.PaymentTerms,
		CompanyName:       s.Company.Name,
		CompanyAddress:    s.Company.Address,
		CompanyPhone:      s.Company.Phone,
		CompanyEmail:      s.Company.Email,
		CompanyTaxID:      s.Company.TaxID,
	}
}

func (c *CLI) printSettings(s billing.Settings) error {
	if c.out.json() {
		return c.out.printJSON(s)
	}
	return c.out.fields(
		"Tax rate", s.TaxRate.String(),
		"Invoice prefix", s.InvoicePrefix,
		"Next number", fmt.Sprint(s.NextInvoiceNumber),
		"Payment terms", s.PaymentTerms,
		"Company", s.Company.Name,
		"Address", s.Company.Address,
		"Phone", s.Company.Phone,
		"Email", s.Company.Email,
		"Tax ID", s.Company.TaxID,
	)
}
