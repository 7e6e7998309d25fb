package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/domain/shared"
	"github.com/garage/billing/internal/infrastructure/logger"
	"github.com/garage/billing/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Cached view names
const (
	ViewBalance        = "balance"
	ViewRevenue        = "revenue"
	ViewPaymentHistory = "payment_history"
)

// GetInvoice returns a copy of one invoice
func (s *BillingService) GetInvoice(ctx context.Context, invoiceID string) (*billing.Invoice, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.RequireInvoice(invoiceID)
}

// GetCustomerBalance sums the balance due over all of a customer's invoices
func (s *BillingService) GetCustomerBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "get_customer_balance")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrCustomerID, customerID)

	snap, err := s.customerSnapshot(ctx, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return decimal.Zero, err
	}
	return cachedView(ctx, s, snap, ViewBalance, customerID, func() decimal.Decimal {
		return billing.CustomerBalance(snap, customerID)
	}), nil
}

// GetCustomerOverdue sums the balance due over a customer's overdue invoices
func (s *BillingService) GetCustomerOverdue(ctx context.Context, customerID string) (decimal.Decimal, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "get_customer_overdue")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrCustomerID, customerID)

	snap, err := s.customerSnapshot(ctx, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return decimal.Zero, err
	}
	return billing.CustomerOverdue(snap, customerID, s.now()), nil
}

// BuildStatement merges a customer's invoices and payments into a statement
func (s *BillingService) BuildStatement(ctx context.Context, customerID string) (*billing.Statement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "build_statement")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrCustomerID, customerID)

	snap, err := s.Snapshot(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	st, err := billing.BuildStatement(snap, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return st, nil
}

// BuildPeriodStatement is BuildStatement restricted to [start, end]
func (s *BillingService) BuildPeriodStatement(ctx context.Context, customerID string, start, end time.Time) (*billing.Statement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "build_period_statement")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrCustomerID, customerID)

	if err := checkRange(start, end); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	st, err := billing.BuildPeriodStatement(snap, customerID, start, end)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return st, nil
}

// RenderStatement lists a statement oldest first with running balances,
// formatting amounts with the service formatter
func (s *BillingService) RenderStatement(st *billing.Statement) []StatementLine {
	lines := make([]StatementLine, 0, st.Len())
	for entry, balance := range st.RunningBalance() {
		line := StatementLine{
			Date:        entry.Date,
			Description: entry.Description,
			Balance:     s.format(balance),
		}
		if entry.IsDebit() {
			line.Debit = s.format(entry.Amount)
		} else {
			line.Credit = s.format(entry.Amount)
		}
		lines = append(lines, line)
	}
	return lines
}

// GetRevenueReport aggregates payments dated within [start, end]
func (s *BillingService) GetRevenueReport(ctx context.Context, start, end time.Time) (billing.Report, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "get_revenue_report")
	defer span.End()

	if err := checkRange(start, end); err != nil {
		telemetry.RecordError(span, err)
		return billing.Report{}, err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return billing.Report{}, err
	}

	key := start.UTC().Format(time.RFC3339Nano) + "/" + end.UTC().Format(time.RFC3339Nano)
	report := cachedView(ctx, s, snap, ViewRevenue, key, func() billing.Report {
		return billing.RevenueReport(snap, start, end)
	})
	telemetry.SetAttributes(span,
		"payment_count", report.PaymentCount,
		telemetry.SpanAttrAmount, report.TotalRevenue.String(),
	)
	return report, nil
}

// GetInvoicePayments returns the payments recorded against an invoice
func (s *BillingService) GetInvoicePayments(ctx context.Context, invoiceID string) ([]*billing.Payment, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Invoice(invoiceID); !ok {
		return nil, shared.NewNotFoundError("invoice", invoiceID)
	}
	return snap.PaymentsFor(invoiceID), nil
}

// GetPaymentHistory returns a customer's payments, newest first
func (s *BillingService) GetPaymentHistory(ctx context.Context, customerID string) ([]billing.PaymentHistoryItem, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "get_payment_history")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrCustomerID, customerID)

	snap, err := s.customerSnapshot(ctx, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return cachedView(ctx, s, snap, ViewPaymentHistory, customerID, func() []billing.PaymentHistoryItem {
		return billing.PaymentHistory(snap, customerID)
	}), nil
}

// GetOutstandingInvoices returns invoices that still owe money
func (s *BillingService) GetOutstandingInvoices(ctx context.Context) ([]*billing.Invoice, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return billing.OutstandingInvoices(snap), nil
}

// GetOverdueInvoices returns invoices past their due date
func (s *BillingService) GetOverdueInvoices(ctx context.Context) ([]*billing.Invoice, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return billing.OverdueInvoices(snap, s.now()), nil
}

// GetSummary returns the billing dashboard totals
func (s *BillingService) GetSummary(ctx context.Context) (billing.Summary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "get_summary")
	defer span.End()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return billing.Summary{}, err
	}
	return billing.Summarize(snap, s.now()), nil
}

// Audit checks every invoice against its payments
func (s *BillingService) Audit(ctx context.Context) ([]billing.Violation, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "audit")
	defer span.End()

	snap, err := s.Snapshot(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	violations := billing.Audit(snap)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSnapshot, snap.Version(),
		"violations", len(violations),
	)
	if len(violations) > 0 {
		logger.WithLogger(ctx, s.log).Warn("Billing audit found violations",
			zap.Uint64("version", snap.Version()),
			zap.Int("violations", len(violations)),
		)
	}
	return violations, nil
}

// GetSettings returns the current billing settings
func (s *BillingService) GetSettings(ctx context.Context) (billing.Settings, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return billing.Settings{}, err
	}
	return snap.Settings(), nil
}

// FormatAmount renders an amount with the service formatter
func (s *BillingService) FormatAmount(amount decimal.Decimal) string {
	return s.format(amount)
}

// customerSnapshot returns the snapshot after checking the customer exists
func (s *BillingService) customerSnapshot(ctx context.Context, customerID string) (*billing.Snapshot, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if err := snap.RequireCustomer(customerID); err != nil {
		return nil, err
	}
	return snap, nil
}

func checkRange(start, end time.Time) error {
	if end.Before(start) {
		return shared.NewValidationError("INVALID_RANGE", fmt.Sprintf("End %s is before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly)))
	}
	return nil
}

// cachedView returns the cached value of a derived view for snap, computing
// and storing it on a miss. Cache failures fall back to computing.
func cachedView[T any](ctx context.Context, s *BillingService, snap *billing.Snapshot, view, key string, compute func() T) T {
	if s.cache == nil {
		return compute()
	}

	scope := s.scope(snap)
	var cached T
	hit, err := s.cache.Get(ctx, scope, view, key, &cached)
	if err != nil {
		logger.WithLogger(ctx, s.log).Warn("View cache read failed", zap.String("view", view), zap.Error(err))
	}
	s.metrics.RecordViewCacheLookup(ctx, hit)
	if hit {
		return cached
	}

	value := compute()
	if err := s.cache.Set(ctx, scope, view, key, value); err != nil {
		logger.WithLogger(ctx, s.log).Warn("View cache write failed", zap.String("view", view), zap.Error(err))
	}
	return value
}
