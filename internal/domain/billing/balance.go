package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerBalance sums balanceDue over every invoice of the customer,
// canceled invoices included. CustomerOverdue excludes canceled invoices, so
// a canceled invoice with a remaining balance shows up here but never as
// overdue. The two definitions are kept as the business uses them today.
func CustomerBalance(s *Snapshot, customerID string) decimal.Decimal {
	return sum(s.customerInvoices(customerID), func(inv *Invoice) decimal.Decimal {
		return inv.BalanceDue
	})
}

// CustomerOverdue sums balanceDue over the customer's invoices that are
// neither paid nor canceled and whose due date is before now
func CustomerOverdue(s *Snapshot, customerID string, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range s.customerInvoices(customerID) {
		if inv.IsOverdue(now) {
			total = total.Add(inv.BalanceDue)
		}
	}
	return total
}

// OutstandingInvoices returns copies of the invoices that still owe money
// and are not canceled
func OutstandingInvoices(s *Snapshot) []*Invoice {
	var out []*Invoice
	for _, inv := range s.data.Invoices {
		if inv.IsOutstanding() {
			out = append(out, inv.Clone())
		}
	}
	return out
}

// OverdueInvoices returns copies of the outstanding invoices past their due
// date
func OverdueInvoices(s *Snapshot, now time.Time) []*Invoice {
	var out []*Invoice
	for _, inv := range s.data.Invoices {
		if inv.IsOutstanding() && inv.IsOverdue(now) {
			out = append(out, inv.Clone())
		}
	}
	return out
}

// Summary holds the billing dashboard totals
type Summary struct {
	TotalInvoiced     decimal.Decimal `json:"total_invoiced"`
	TotalCollected    decimal.Decimal `json:"total_collected"`
	TotalOutstanding  decimal.Decimal `json:"total_outstanding"`
	OutstandingCount  int             `json:"outstanding_count"`
	TotalOverdue      decimal.Decimal `json:"total_overdue"`
	OverdueCount      int             `json:"overdue_count"`
	DraftCount        int             `json:"draft_count"`
	RevenueThisMonth  decimal.Decimal `json:"revenue_this_month"`
	PaymentsThisMonth int             `json:"payments_this_month"`
}

// Summarize computes the dashboard totals. Canceled invoices count towards
// neither invoiced nor outstanding amounts.
func Summarize(s *Snapshot, now time.Time) Summary {
	summary := Summary{
		TotalInvoiced:    decimal.Zero,
		TotalCollected:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
		TotalOverdue:     decimal.Zero,
		RevenueThisMonth: decimal.Zero,
	}

	for _, inv := range s.data.Invoices {
		if inv.Status == InvoiceStatusDraft {
			summary.DraftCount++
		}
		if inv.Status == InvoiceStatusCanceled {
			continue
		}
		summary.TotalInvoiced = summary.TotalInvoiced.Add(inv.Total)
		if inv.IsOutstanding() {
			summary.TotalOutstanding = summary.TotalOutstanding.Add(inv.BalanceDue)
			summary.OutstandingCount++
			if inv.IsOverdue(now) {
				summary.TotalOverdue = summary.TotalOverdue.Add(inv.BalanceDue)
				summary.OverdueCount++
			}
		}
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for _, p := range s.data.Payments {
		summary.TotalCollected = summary.TotalCollected.Add(p.Amount)
		if inRange(p.Date, monthStart, now) {
			summary.RevenueThisMonth = summary.RevenueThisMonth.Add(p.Amount)
			summary.PaymentsThisMonth++
		}
	}
	return summary
}
