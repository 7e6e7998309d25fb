package billing

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind tells debits from credits on a statement
type EntryKind string

const (
	EntryKindInvoice EntryKind = "invoice"
	EntryKindPayment EntryKind = "payment"
)

// StatementEntry is one line of a customer statement. Invoices are debits
// (amount = invoice total) and payments are credits.
type StatementEntry struct {
	Kind          EntryKind       `json:"kind"`
	Date          time.Time       `json:"date"`
	SourceID      string          `json:"source_id"`
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
}

// IsDebit returns true for invoice entries
func (e StatementEntry) IsDebit() bool {
	return e.Kind == EntryKindInvoice
}

// SignedAmount is positive for debits and negative for credits
func (e StatementEntry) SignedAmount() decimal.Decimal {
	if e.IsDebit() {
		return e.Amount
	}
	return e.Amount.Neg()
}

// Period bounds a statement, both ends inclusive
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Statement is a customer's invoices and payments merged into one ledger
type Statement struct {
	Customer    Customer        `json:"customer"`
	Vehicles    []Vehicle       `json:"vehicles"`
	Period      *Period         `json:"period,omitempty"`
	TotalBilled decimal.Decimal `json:"total_billed"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Balance     decimal.Decimal `json:"balance"`

	newestFirst []StatementEntry
	oldestFirst []StatementEntry
}

// Entries yields the statement lines newest first. Lines with the same
// timestamp keep invoice-before-payment, then input order. The sequence can
// be ranged over any number of times.
func (st *Statement) Entries() iter.Seq[StatementEntry] {
	return slices.Values(st.newestFirst)
}

// Len returns the number of entries
func (st *Statement) Len() int {
	return len(st.newestFirst)
}

// RunningBalance yields the entries oldest first, each paired with the
// balance after it is applied
func (st *Statement) RunningBalance() iter.Seq2[StatementEntry, decimal.Decimal] {
	return func(yield func(StatementEntry, decimal.Decimal) bool) {
		running := decimal.Zero
		for _, e := range st.oldestFirst {
			running = running.Add(e.SignedAmount())
			if !yield(e, running) {
				return
			}
		}
	}
}

func invoiceEntry(inv *Invoice) StatementEntry {
	return StatementEntry{
		Kind:          EntryKindInvoice,
		Date:          inv.DateCreated,
		SourceID:      inv.ID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Description:   "Invoice Generated: " + inv.InvoiceNumber,
		Amount:        inv.Total,
	}
}

func paymentEntry(p *Payment, inv *Invoice) StatementEntry {
	desc := "Payment Received: " + p.Method.String()
	if p.Reference != "" {
		desc = fmt.Sprintf("%s (%s)", desc, p.Reference)
	}
	return StatementEntry{
		Kind:          EntryKindPayment,
		Date:          p.Date,
		SourceID:      p.ID,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Description:   desc,
		Amount:        p.Amount,
	}
}

// sortEntries orders a build-order slice (invoices, then payments) both ways
func sortEntries(entries []StatementEntry) (newest, oldest []StatementEntry) {
	newest = slices.Clone(entries)
	slices.SortStableFunc(newest, func(a, b StatementEntry) int {
		return b.Date.Compare(a.Date)
	})
	oldest = slices.Clone(entries)
	slices.SortStableFunc(oldest, func(a, b StatementEntry) int {
		return a.Date.Compare(b.Date)
	})
	return newest, oldest
}

func (s *Snapshot) statementCustomer(customerID string) (Customer, error) {
	if err := s.RequireCustomer(customerID); err != nil {
		return Customer{}, err
	}
	c, ok := s.Customer(customerID)
	if !ok {
		c = Customer{ID: customerID}
	}
	return c, nil
}

// BuildStatement merges all of a customer's invoices and their payments.
// Balance is total billed minus total paid.
func BuildStatement(s *Snapshot, customerID string) (*Statement, error) {
	customer, err := s.statementCustomer(customerID)
	if err != nil {
		return nil, err
	}

	invoices := s.customerInvoices(customerID)
	entries := make([]StatementEntry, 0, len(invoices)*2)
	billed, paid := decimal.Zero, decimal.Zero
	for _, inv := range invoices {
		entries = append(entries, invoiceEntry(inv))
		billed = billed.Add(inv.Total)
	}
	for _, inv := range invoices {
		for _, p := range s.paymentsFor(inv.ID) {
			entries = append(entries, paymentEntry(p, inv))
			paid = paid.Add(p.Amount)
		}
	}

	st := &Statement{
		Customer:    customer,
		Vehicles:    s.VehiclesOf(customerID),
		TotalBilled: billed,
		TotalPaid:   paid,
		Balance:     billed.Sub(paid),
	}
	st.newestFirst, st.oldestFirst = sortEntries(entries)
	return st, nil
}

// BuildPeriodStatement restricts a statement to invoices created and
// payments made within [start, end]. Its Balance is the customer's full
// outstanding balance (CustomerBalance), not the period difference.
func BuildPeriodStatement(s *Snapshot, customerID string, start, end time.Time) (*Statement, error) {
	customer, err := s.statementCustomer(customerID)
	if err != nil {
		return nil, err
	}

	invoices := s.customerInvoices(customerID)
	var entries []StatementEntry
	billed, paid := decimal.Zero, decimal.Zero
	for _, inv := range invoices {
		if inRange(inv.DateCreated, start, end) {
			entries = append(entries, invoiceEntry(inv))
			billed = billed.Add(inv.Total)
		}
	}
	for _, inv := range invoices {
		for _, p := range s.paymentsFor(inv.ID) {
			if inRange(p.Date, start, end) {
				entries = append(entries, paymentEntry(p, inv))
				paid = paid.Add(p.Amount)
			}
		}
	}

	st := &Statement{
		Customer:    customer,
		Vehicles:    s.VehiclesOf(customerID),
		Period:      &Period{Start: start, End: end},
		TotalBilled: billed,
		TotalPaid:   paid,
		Balance:     CustomerBalance(s, customerID),
	}
	st.newestFirst, st.oldestFirst = sortEntries(entries)
	return st, nil
}

// PaymentHistoryItem is a payment annotated with its invoice number
type PaymentHistoryItem struct {
	Payment
	InvoiceNumber string `json:"invoice_number"`
}

// PaymentHistory returns a customer's payments, newest first
func PaymentHistory(s *Snapshot, customerID string) []PaymentHistoryItem {
	var out []PaymentHistoryItem
	for _, inv := range s.customerInvoices(customerID) {
		for _, p := range s.paymentsFor(inv.ID) {
			out = append(out, PaymentHistoryItem{Payment: *p, InvoiceNumber: inv.InvoiceNumber})
		}
	}
	slices.SortStableFunc(out, func(a, b PaymentHistoryItem) int {
		return b.Date.Compare(a.Date)
	})
	return out
}
