package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Rule names an invoice invariant
type Rule string

const (
	RuleTotalArithmetic Rule = "total_arithmetic"  // total = subtotal - discount + taxAmount
	RulePaidMatches     Rule = "paid_matches"      // paidAmount = sum of payments
	RuleBalanceMatches  Rule = "balance_matches"   // balanceDue = total - paidAmount
	RuleBalanceNegative Rule = "balance_negative"  // balanceDue >= 0
	RulePaidWithBalance Rule = "paid_with_balance" // status paid => balanceDue = 0
	RuleOrphanPayment   Rule = "orphan_payment"    // payment references an unknown invoice
)

// Violation is one broken invariant found by Audit
type Violation struct {
	Rule          Rule   `json:"rule"`
	InvoiceID     string `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	PaymentID     string `json:"payment_id,omitempty"`
	Detail        string `json:"detail"`
}

func (v Violation) String() string {
	if v.InvoiceNumber != "" {
		return fmt.Sprintf("%s [%s]: %s", v.InvoiceNumber, v.Rule, v.Detail)
	}
	return fmt.Sprintf("%s [%s]: %s", v.InvoiceID, v.Rule, v.Detail)
}

// CheckInvariants compares the invoice against its own arithmetic and the
// sum of its payments
func (inv *Invoice) CheckInvariants(paymentsTotal decimal.Decimal) []Violation {
	var out []Violation
	add := func(rule Rule, format string, args ...any) {
		out = append(out, Violation{
			Rule:          rule,
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			Detail:        fmt.Sprintf(format, args...),
		})
	}

	expectedTotal := inv.Subtotal.Sub(inv.Discount).Add(inv.TaxAmount)
	if !approxEqual(inv.Total, expectedTotal) {
		add(RuleTotalArithmetic, "total %s != subtotal - discount + tax %s", inv.Total.StringFixed(2), expectedTotal.StringFixed(2))
	}
	if !approxEqual(inv.PaidAmount, paymentsTotal) {
		add(RulePaidMatches, "paid amount %s != payments %s", inv.PaidAmount.StringFixed(2), paymentsTotal.StringFixed(2))
	}
	expectedBalance := inv.Total.Sub(inv.PaidAmount)
	if !approxEqual(inv.BalanceDue, expectedBalance) {
		add(RuleBalanceMatches, "balance due %s != total - paid %s", inv.BalanceDue.StringFixed(2), expectedBalance.StringFixed(2))
	}
	if expectedBalance.IsNegative() {
		add(RuleBalanceNegative, "total - paid is %s", expectedBalance.StringFixed(2))
	}
	if inv.Status == InvoiceStatusPaid && inv.BalanceDue.IsPositive() {
		add(RulePaidWithBalance, "status paid with balance due %s", inv.BalanceDue.StringFixed(2))
	}
	return out
}

// Audit checks every invoice in the snapshot and reports payments that
// reference no invoice
func Audit(s *Snapshot) []Violation {
	var out []Violation
	for _, inv := range s.data.Invoices {
		paid := sum(s.paymentsFor(inv.ID), func(p *Payment) decimal.Decimal { return p.Amount })
		out = append(out, inv.CheckInvariants(paid)...)
	}
	for _, p := range s.data.Payments {
		if _, ok := s.invoices[p.InvoiceID]; !ok {
			out = append(out, Violation{
				Rule:      RuleOrphanPayment,
				InvoiceID: p.InvoiceID,
				PaymentID: p.ID,
				Detail:    fmt.Sprintf("payment %s of %s has no invoice", p.ID, p.Amount.StringFixed(2)),
			})
		}
	}
	return out
}

// Reconcile recomputes paidAmount from the payments and balanceDue from the
// total. A non-canceled invoice that ends up owing nothing becomes paid, and
// a paid one that owes money goes back to sent. It reports whether anything
// changed.
func (inv *Invoice) Reconcile(payments []*Payment) bool {
	paid := sum(payments, func(p *Payment) decimal.Decimal { return p.Amount })
	balance := inv.Total.Sub(paid)

	changed := !inv.PaidAmount.Equal(paid) || !inv.BalanceDue.Equal(balance)
	inv.PaidAmount = paid
	inv.BalanceDue = balance

	switch {
	case inv.Status != InvoiceStatusCanceled && inv.Status != InvoiceStatusPaid && balance.IsZero() && paid.IsPositive():
		inv.Status = InvoiceStatusPaid
		changed = true
	case inv.Status == InvoiceStatusPaid && balance.IsPositive():
		inv.Status = InvoiceStatusSent
		changed = true
	}
	return changed
}

// ReconcileInvoice returns a repaired copy of an invoice and whether it
// differed from the stored one
func ReconcileInvoice(s *Snapshot, invoiceID string) (*Invoice, bool, error) {
	inv, err := s.RequireInvoice(invoiceID)
	if err != nil {
		return nil, false, err
	}
	changed := inv.Reconcile(s.paymentsFor(invoiceID))
	return inv, changed, nil
}
