package billing

import (
	"context"
	"time"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/infrastructure/logger"
	"github.com/garage/billing/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SweepResult is the outcome of one maintenance sweep
type SweepResult struct {
	Version       uint64              `json:"version"`
	Violations    []billing.Violation `json:"violations"`
	OverdueCount  int                 `json:"overdue_count"`
	OverdueAmount decimal.Decimal     `json:"overdue_amount"`
	Duration      time.Duration       `json:"duration"`
}

// Sweep refetches every record, audits the result and counts what is
// overdue. It picks up changes written by other processes.
func (s *BillingService) Sweep(ctx context.Context) (*SweepResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "sweep")
	defer span.End()

	start := time.Now()
	snap, err := s.Refresh(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		s.metrics.RecordSweep(ctx, 0, err)
		return nil, err
	}

	result := &SweepResult{
		Version:    snap.Version(),
		Violations: billing.Audit(snap),
	}
	for _, inv := range billing.OverdueInvoices(snap, s.now()) {
		result.OverdueCount++
		result.OverdueAmount = result.OverdueAmount.Add(inv.BalanceDue)
	}
	result.Duration = time.Since(start)
	s.metrics.RecordSweep(ctx, len(result.Violations), nil)

	telemetry.SetAttributes(span,
		telemetry.SpanAttrSnapshot, result.Version,
		"violations", len(result.Violations),
		"overdue", result.OverdueCount,
	)

	log := logger.WithLogger(ctx, s.log)
	for _, v := range result.Violations {
		log.Warn("Billing audit violation",
			zap.String("rule", string(v.Rule)),
			zap.String("invoice_id", v.InvoiceID),
			zap.String("payment_id", v.PaymentID),
			zap.String("detail", v.Detail),
		)
	}
	log.Info("Billing sweep completed",
		zap.Uint64("version", result.Version),
		zap.Int("violations", len(result.Violations)),
		zap.Int("overdue_count", result.OverdueCount),
		zap.String("overdue_amount", s.format(result.OverdueAmount)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// DailySummary logs the dashboard totals and returns them
func (s *BillingService) DailySummary(ctx context.Context) (billing.Summary, error) {
	summary, err := s.GetSummary(ctx)
	if err != nil {
		return billing.Summary{}, err
	}
	logger.WithLogger(ctx, s.log).Info("Daily billing summary",
		zap.String("invoiced", s.format(summary.TotalInvoiced)),
		zap.String("collected", s.format(summary.TotalCollected)),
		zap.String("outstanding", s.format(summary.TotalOutstanding)),
		zap.Int("outstanding_count", summary.OutstandingCount),
		zap.String("overdue", s.format(summary.TotalOverdue)),
		zap.Int("overdue_count", summary.OverdueCount),
		zap.String("revenue_this_month", s.format(summary.RevenueThisMonth)),
	)
	return summary, nil
}
