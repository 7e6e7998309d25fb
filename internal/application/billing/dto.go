package billing

import (
	"time"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// RecordPaymentRequest represents a request to record a payment. Amount and
// method are checked by the payment engine so their error codes stay stable.
type RecordPaymentRequest struct {
	InvoiceID string          `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required"`
	Date      time.Time       `json:"date"`
	Reference string          `json:"reference" validate:"max=100"`
	Notes     string          `json:"notes" validate:"max=500"`
}

// UpdateStatusRequest represents a request to change an invoice status
type UpdateStatusRequest struct {
	InvoiceID string `json:"invoice_id" validate:"required"`
	Status    string `json:"status" validate:"required"`
}

// LineItemInput is one line of an invoice edit
type LineItemInput struct {
	Description string          `json:"description" validate:"required,max=200"`
	Detail      string          `json:"detail" validate:"max=500"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
	Kind        string          `json:"kind" validate:"omitempty,oneof=service parts labor"`
}

// UpdateLineItemsRequest replaces the line items of an invoice
type UpdateLineItemsRequest struct {
	InvoiceID string          `json:"invoice_id" validate:"required"`
	Items     []LineItemInput `json:"items" validate:"required,min=1,dive"`
}

// CreateInvoiceRequest bills a completed service. Empty LineItems means one
// line for the service itself.
type CreateInvoiceRequest struct {
	ServiceID string          `json:"service_id" validate:"required"`
	Discount  decimal.Decimal `json:"discount"`
	LineItems []LineItemInput `json:"line_items" validate:"omitempty,dive"`
	Notes     string          `json:"notes" validate:"max=1000"`
}

// UpdateSettingsRequest replaces the billing settings
type UpdateSettingsRequest struct {
	TaxRate           decimal.Decimal `json:"tax_rate" validate:"gte=0,lte=1"`
	InvoicePrefix     string          `json:"invoice_prefix" validate:"required,max=10"`
	NextInvoiceNumber int             `json:"next_invoice_number" validate:"gte=1"`
	PaymentTerms      string          `json:"payment_terms" validate:"required,max=50"`
	CompanyName       string          `json:"company_name" validate:"max=200"`
	CompanyAddress    string          `json:"company_address" validate:"max=500"`
	CompanyPhone      string          `json:"company_phone" validate:"max=50"`
	CompanyEmail      string          `json:"company_email" validate:"omitempty,email"`
	CompanyTaxID      string          `json:"company_tax_id" validate:"max=50"`
}

// StatusUpdateResult is the outcome of UpdateStatus. Warning is set when an
// invoice was marked paid while still owing money.
type StatusUpdateResult struct {
	Invoice *billing.Invoice      `json:"invoice"`
	From    billing.InvoiceStatus `json:"from"`
	To      billing.InvoiceStatus `json:"to"`
	Warning string                `json:"warning,omitempty"`
}

// DeleteInvoiceResult lists what was removed by DeleteInvoice
type DeleteInvoiceResult struct {
	Invoice         *billing.Invoice   `json:"invoice"`
	RemovedPayments []*billing.Payment `json:"removed_payments"`
}

// ReconcileResult is the outcome of repairing one invoice
type ReconcileResult struct {
	Invoice *billing.Invoice `json:"invoice"`
	Changed bool             `json:"changed"`
}

// StatementLine is one rendered statement row, oldest first, with amounts
// passed through the service formatter
type StatementLine struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Debit       string    `json:"debit,omitempty"`
	Credit      string    `json:"credit,omitempty"`
	Balance     string    `json:"balance"`
}

// toLineItems converts edit inputs into domain line items
func toLineItems(inputs []LineItemInput) []billing.LineItem {
	if len(inputs) == 0 {
		return nil
	}
	items := make([]billing.LineItem, 0, len(inputs))
	for _, in := range inputs {
		item := billing.NewLineItem(in.Description, in.Quantity, in.UnitPrice, billing.LineItemKind(in.Kind))
		item.Detail = in.Detail
		items = append(items, item)
	}
	return items
}

// toSettings converts a settings request into domain settings
func (r UpdateSettingsRequest) toSettings() billing.Settings {
	return billing.Settings{
		TaxRate:           r.TaxRate,
		InvoicePrefix:     r.InvoicePrefix,
		NextInvoiceNumber: r.NextInvoiceNumber,
		PaymentTerms:      r.PaymentTerms,
		Company: billing.CompanyInfo{
			Name:    r.CompanyName,
			Address: r.CompanyAddress,
			Phone:   r.CompanyPhone,
			Email:   r.CompanyEmail,
			TaxID:   r.CompanyTaxID,
		},
	}
}
