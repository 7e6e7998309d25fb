package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// GeneralServiceType buckets revenue whose originating service cannot be
// resolved
const GeneralServiceType = "General"

// Report is a revenue report over an inclusive date range
type Report struct {
	Start          time.Time                         `json:"start"`
	End            time.Time                         `json:"end"`
	TotalRevenue   decimal.Decimal                   `json:"total_revenue"`
	PaymentCount   int                               `json:"payment_count"`
	AveragePayment decimal.Decimal                   `json:"average_payment"`
	PaymentMethods map[PaymentMethod]decimal.Decimal `json:"payment_methods"`
	ServiceRevenue map[string]decimal.Decimal        `json:"service_revenue"`
}

// RevenueReport aggregates the payments dated within [start, end]. It never
// fails: payments whose invoice or service cannot be resolved are counted
// under GeneralServiceType.
func RevenueReport(s *Snapshot, start, end time.Time) Report {
	report := Report{
		Start:          start,
		End:            end,
		TotalRevenue:   decimal.Zero,
		AveragePayment: decimal.Zero,
		PaymentMethods: make(map[PaymentMethod]decimal.Decimal),
		ServiceRevenue: make(map[string]decimal.Decimal),
	}

	for _, p := range s.data.Payments {
		if !inRange(p.Date, start, end) {
			continue
		}
		report.TotalRevenue = report.TotalRevenue.Add(p.Amount)
		report.PaymentCount++
		report.PaymentMethods[p.Method] = report.PaymentMethods[p.Method].Add(p.Amount)

		serviceType := s.serviceTypeOf(p)
		report.ServiceRevenue[serviceType] = report.ServiceRevenue[serviceType].Add(p.Amount)
	}

	if report.PaymentCount > 0 {
		report.AveragePayment = report.TotalRevenue.DivRound(decimal.NewFromInt(int64(report.PaymentCount)), 2)
	}
	return report
}

// serviceTypeOf resolves payment -> invoice -> service -> type
func (s *Snapshot) serviceTypeOf(p *Payment) string {
	inv, ok := s.invoice(p.InvoiceID)
	if !ok {
		return GeneralServiceType
	}
	svc, ok := s.Service(inv.ServiceID)
	if !ok || svc.Type == "" {
		return GeneralServiceType
	}
	return svc.Type
}
