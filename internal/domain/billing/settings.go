package billing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	DefaultInvoicePrefix     = "INV"
	DefaultNextInvoiceNumber = 1
	DefaultPaymentTerms      = "Net 30"
	DefaultPaymentTermDays   = 30
)

// CompanyInfo is printed on statements by the rendering collaborator
type CompanyInfo struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	TaxID   string `json:"tax_id,omitempty"`
}

// Settings is the externally configured billing singleton
type Settings struct {
	TaxRate           decimal.Decimal `json:"tax_rate"`
	InvoicePrefix     string          `json:"invoice_prefix"`
	NextInvoiceNumber int             `json:"next_invoice_number"`
	PaymentTerms      string          `json:"payment_terms"`
	Company           CompanyInfo     `json:"company"`
}

// DefaultSettings returns the settings used when none are configured
func DefaultSettings() Settings {
	return Settings{
		TaxRate:           decimal.Zero,
		InvoicePrefix:     DefaultInvoicePrefix,
		NextInvoiceNumber: DefaultNextInvoiceNumber,
		PaymentTerms:      DefaultPaymentTerms,
	}
}

// FormatInvoiceNumber renders n as <prefix>-<n> padded to four digits
func (s Settings) FormatInvoiceNumber(n int) string {
	return fmt.Sprintf("%s-%04d", s.InvoicePrefix, n)
}

// TakeInvoiceNumber returns the next invoice number and advances the counter.
// Numbers for which taken returns true are skipped.
func (s *Settings) TakeInvoiceNumber(taken func(string) bool) string {
	for {
		number := s.FormatInvoiceNumber(s.NextInvoiceNumber)
		s.NextInvoiceNumber++
		if taken == nil || !taken(number) {
			return number
		}
	}
}

// PaymentTermDays parses terms such as "Net 30" or "Due on receipt".
// Anything unrecognized falls back to 30 days.
func (s Settings) PaymentTermDays() int {
	terms := strings.ToLower(strings.TrimSpace(s.PaymentTerms))
	if terms == "" {
		return DefaultPaymentTermDays
	}
	if strings.Contains(terms, "receipt") || terms == "immediate" {
		return 0
	}
	fields := strings.Fields(terms)
	days, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || days < 0 {
		return DefaultPaymentTermDays
	}
	return days
}
