package billing

import (
	"fmt"
	"slices"
	"time"

	"github.com/garage/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod represents how a payment was made
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodCheck        PaymentMethod = "check"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// AllPaymentMethods lists the accepted payment methods
var AllPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodCard,
	PaymentMethodCheck,
	PaymentMethodBankTransfer,
}

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	return slices.Contains(AllPaymentMethods, m)
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// Payment is an immutable record of money received against one invoice.
// It is only created by Invoice.ApplyPayment and only removed by
// Invoice.VoidPayment.
type Payment struct {
	ID        string          `json:"id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method"`
	Date      time.Time       `json:"date"`
	Reference string          `json:"reference,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

// Clone returns a copy of the payment
func (p *Payment) Clone() *Payment {
	c := *p
	return &c
}

// PaymentInput carries the caller-supplied fields of a new payment
type PaymentInput struct {
	Amount    decimal.Decimal
	Method    PaymentMethod
	Date      time.Time // zero means now
	Reference string
	Notes     string
}

// Validate checks the input against the invoice's current balance without
// mutating anything
func (in PaymentInput) Validate(balanceDue decimal.Decimal) error {
	if !in.Amount.IsPositive() {
		return shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !in.Amount.Equal(Round2(in.Amount)) {
		return shared.NewValidationError("INVALID_AMOUNT", fmt.Sprintf("Payment amount %s has more than 2 decimal places", in.Amount))
	}
	if !in.Method.IsValid() {
		return shared.NewValidationError("INVALID_METHOD", fmt.Sprintf("Unknown payment method %q", in.Method))
	}
	if in.Amount.GreaterThan(balanceDue) {
		return shared.NewValidationError("EXCEEDS_BALANCE", fmt.Sprintf("Payment amount %s exceeds balance due %s", in.Amount.StringFixed(2), balanceDue.StringFixed(2)))
	}
	return nil
}

// ApplyPayment records a payment against the invoice. The amount must be
// positive, in whole cents and no greater than Payable; otherwise nothing
// changes. When the balance reaches zero the invoice becomes paid.
func (inv *Invoice) ApplyPayment(in PaymentInput, now time.Time) (*Payment, error) {
	if err := in.Validate(inv.Payable()); err != nil {
		return nil, err
	}

	date := in.Date
	if date.IsZero() {
		date = now
	}
	payment := &Payment{
		ID:        uuid.NewString(),
		InvoiceID: inv.ID,
		Amount:    in.Amount,
		Method:    in.Method,
		Date:      date,
		Reference: in.Reference,
		Notes:     in.Notes,
	}

	inv.PaidAmount = inv.PaidAmount.Add(in.Amount)
	inv.BalanceDue = inv.Total.Sub(inv.PaidAmount)
	inv.RecordEvent(NewPaymentRecordedEvent(inv, payment, now))

	if inv.BalanceDue.IsZero() && inv.Status != InvoiceStatusPaid {
		inv.Status = InvoiceStatusPaid
		inv.RecordEvent(NewInvoicePaidEvent(inv, now))
	}

	return payment, nil
}

// VoidPayment reverses the effect of a payment previously applied to this
// invoice. A paid invoice that owes money again goes back to sent.
func (inv *Invoice) VoidPayment(payment *Payment, now time.Time) error {
	if payment.InvoiceID != inv.ID {
		return shared.NewValidationError("PAYMENT_MISMATCH", fmt.Sprintf("Payment %s does not belong to invoice %s", payment.ID, inv.InvoiceNumber))
	}
	if payment.Amount.GreaterThan(inv.PaidAmount) {
		return shared.NewValidationError("EXCEEDS_PAID", fmt.Sprintf("Payment amount %s exceeds paid amount %s", payment.Amount.StringFixed(2), inv.PaidAmount.StringFixed(2)))
	}

	inv.PaidAmount = inv.PaidAmount.Sub(payment.Amount)
	inv.BalanceDue = inv.Total.Sub(inv.PaidAmount)
	if inv.Status == InvoiceStatusPaid && inv.BalanceDue.IsPositive() {
		inv.Status = InvoiceStatusSent
	}
	inv.RecordEvent(NewPaymentVoidedEvent(inv, payment, now))
	return nil
}
