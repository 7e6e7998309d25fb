package billing

import (
	"fmt"
	"slices"
	"time"

	"github.com/garage/billing/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the stored status of an invoice.
// Overdue is not a stored status; see Invoice.IsOverdue.
type InvoiceStatus string

const (
	InvoiceStatusDraft    InvoiceStatus = "draft"
	InvoiceStatusSent     InvoiceStatus = "sent"
	InvoiceStatusPaid     InvoiceStatus = "paid"
	InvoiceStatusCanceled InvoiceStatus = "canceled"
)

// AllInvoiceStatuses lists the stored statuses in lifecycle order
var AllInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusDraft,
	InvoiceStatusSent,
	InvoiceStatusPaid,
	InvoiceStatusCanceled,
}

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	return slices.Contains(AllInvoiceStatuses, s)
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true for paid and canceled. Terminal statuses can still
// be changed by UpdateStatus; they only stop an invoice from being overdue.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCanceled
}

// ParseInvoiceStatus validates a status coming from a caller
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	status := InvoiceStatus(s)
	if !status.IsValid() {
		return "", shared.NewValidationError("INVALID_STATUS", fmt.Sprintf("Unknown invoice status %q", s))
	}
	return status, nil
}

// LineItemKind classifies a line item
type LineItemKind string

const (
	LineItemService LineItemKind = "service"
	LineItemParts   LineItemKind = "parts"
	LineItemLabor   LineItemKind = "labor"
)

// LineItem is one billed line on an invoice
type LineItem struct {
	Description string          `json:"description"`
	Detail      string          `json:"detail,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
	Kind        LineItemKind    `json:"kind,omitempty"`
}

// NewLineItem creates a line item whose total is quantity * unit price
func NewLineItem(description string, quantity, unitPrice decimal.Decimal, kind LineItemKind) LineItem {
	return LineItem{
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		Total:       Round2(quantity.Mul(unitPrice)),
		Kind:        kind,
	}
}

// Invoice is the aggregate root of the billing context. It owns its status
// and the arithmetic relating subtotal, tax, total, paid and balance.
type Invoice struct {
	shared.EventRecorder
	ID            string          `json:"id"`
	CustomerID    string          `json:"customer_id"`
	VehicleID     string          `json:"vehicle_id"`
	ServiceID     string          `json:"service_id"`
	InvoiceNumber string          `json:"invoice_number"`
	DateCreated   time.Time       `json:"date_created"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
	LineItems     []LineItem      `json:"line_items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceDue    decimal.Decimal `json:"balance_due"`
	Status        InvoiceStatus   `json:"status"`
	PaymentTerms  string          `json:"payment_terms,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

// Clone returns a deep copy without pending domain events
func (inv *Invoice) Clone() *Invoice {
	c := *inv
	c.EventRecorder = shared.EventRecorder{}
	c.LineItems = slices.Clone(inv.LineItems)
	if inv.DueDate != nil {
		d := *inv.DueDate
		c.DueDate = &d
	}
	return &c
}

// StatusChange describes the outcome of UpdateStatus
type StatusChange struct {
	From    InvoiceStatus
	To      InvoiceStatus
	Warning string
}

// HasWarning returns true if the change was applied but looks inconsistent
func (c StatusChange) HasWarning() bool {
	return c.Warning != ""
}

// UpdateStatus sets the invoice status. Any transition between valid
// statuses is allowed; only Status is touched. Marking an invoice paid while
// a balance remains is applied and reported as a warning.
func (inv *Invoice) UpdateStatus(status InvoiceStatus, now time.Time) (StatusChange, error) {
	if !status.IsValid() {
		return StatusChange{}, shared.NewValidationError("INVALID_STATUS", fmt.Sprintf("Unknown invoice status %q", status))
	}

	change := StatusChange{From: inv.Status, To: status}
	if status == InvoiceStatusPaid && inv.BalanceDue.IsPositive() {
		change.Warning = fmt.Sprintf("Invoice %s marked paid with balance due %s", inv.InvoiceNumber, inv.BalanceDue.StringFixed(2))
	}
	if change.From == change.To {
		return change, nil
	}

	inv.Status = status
	inv.RecordEvent(NewInvoiceStatusChangedEvent(inv, change, now))
	return change, nil
}

// IsOverdue returns true if the invoice is neither paid nor canceled and its
// due date is before now
func (inv *Invoice) IsOverdue(now time.Time) bool {
	if inv.Status.IsTerminal() {
		return false
	}
	if inv.DueDate == nil {
		return false
	}
	return inv.DueDate.Before(now)
}

// DaysOverdue returns the number of whole days past due (0 if not overdue)
func (inv *Invoice) DaysOverdue(now time.Time) int {
	if !inv.IsOverdue(now) {
		return 0
	}
	return int(now.Sub(*inv.DueDate).Hours() / 24)
}

// IsOutstanding returns true if money is still owed on a non-canceled invoice
func (inv *Invoice) IsOutstanding() bool {
	return inv.Status != InvoiceStatusCanceled && inv.BalanceDue.IsPositive()
}

// Payable is the most a new payment may settle: the stored balance due,
// capped by what the total still allows after recorded payments
func (inv *Invoice) Payable() decimal.Decimal {
	payable := decimal.Min(inv.BalanceDue, inv.Total.Sub(inv.PaidAmount))
	if payable.IsNegative() {
		return decimal.Zero
	}
	return payable
}

// PaidPercentage returns the percentage of total that has been paid (0-100)
func (inv *Invoice) PaidPercentage() decimal.Decimal {
	if inv.Total.IsZero() {
		return decimal.NewFromInt(100)
	}
	return inv.PaidAmount.Div(inv.Total).Mul(decimal.NewFromInt(100)).Round(2)
}

// ReplaceLineItems swaps the line items and recomputes subtotal, tax, total
// and balance. The new total may not drop below what has already been paid.
func (inv *Invoice) ReplaceLineItems(items []LineItem) error {
	for i, it := range items {
		if it.Quantity.IsNegative() || it.UnitPrice.IsNegative() || it.Total.IsNegative() {
			return shared.NewValidationError("INVALID_LINE_ITEM", fmt.Sprintf("Line item %d has a negative amount", i+1))
		}
	}

	subtotal := sum(items, func(it LineItem) decimal.Decimal { return it.Total })
	if inv.Discount.GreaterThan(subtotal) {
		return shared.NewValidationError("DISCOUNT_EXCEEDS_SUBTOTAL", fmt.Sprintf("Discount %s exceeds subtotal %s", inv.Discount.StringFixed(2), subtotal.StringFixed(2)))
	}
	taxAmount, total := computeTotals(subtotal, inv.Discount, inv.TaxRate)
	if total.LessThan(inv.PaidAmount) {
		return shared.NewValidationError("TOTAL_BELOW_PAID", fmt.Sprintf("New total %s is below the amount already paid %s", total.StringFixed(2), inv.PaidAmount.StringFixed(2)))
	}

	inv.LineItems = slices.Clone(items)
	inv.Subtotal = Round2(subtotal)
	inv.TaxAmount = taxAmount
	inv.Total = total
	inv.BalanceDue = inv.Total.Sub(inv.PaidAmount)
	return nil
}

// computeTotals returns the tax and total for a tax-exclusive subtotal.
// Tax is charged on the discounted amount.
func computeTotals(subtotal, discount, taxRate decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	taxAmount := Round2(subtotal.Sub(discount).Mul(taxRate))
	total := Round2(subtotal).Sub(discount).Add(taxAmount)
	return taxAmount, total
}
