package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
)

// BillingMetrics counts what the billing service does. A nil *BillingMetrics
// is valid and records nothing.
type BillingMetrics struct {
	paymentsRecorded *Counter
	paymentAmount    *Counter
	paymentsVoided   *Counter
	invoicesCreated  *Counter
	invoicesPaid     *Counter
	statusChanges    *Counter
	storeErrors      *Counter
	viewCacheLookups *Counter
	sweeps           *Counter
	auditViolations  *Counter
	importedRows     *Counter
	fetchDuration    *Histogram
}

// NewBillingMetrics registers the billing instruments on meter
func NewBillingMetrics(meter metric.Meter) (*BillingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	bm := &BillingMetrics{}
	counters := []struct {
		target      **Counter
		name        string
		description string
		unit        string
	}{
		{&bm.paymentsRecorded, "billing_payments_recorded_total", "Payments recorded against invoices", "{payments}"},
		{&bm.paymentAmount, "billing_payment_amount_cents_total", "Sum of recorded payments in cents", "{cents}"},
		{&bm.paymentsVoided, "billing_payments_voided_total", "Payments voided", "{payments}"},
		{&bm.invoicesCreated, "billing_invoices_created_total", "Invoices created from completed services", "{invoices}"},
		{&bm.invoicesPaid, "billing_invoices_paid_total", "Invoices settled by a payment", "{invoices}"},
		{&bm.statusChanges, "billing_invoice_status_changes_total", "Manual invoice status changes", "{changes}"},
		{&bm.storeErrors, "billing_store_errors_total", "Failed calls to the billing store", "{errors}"},
		{&bm.viewCacheLookups, "billing_view_cache_lookups_total", "Derived view cache lookups", "{lookups}"},
		{&bm.sweeps, "billing_sweeps_total", "Scheduled refresh and audit sweeps", "{sweeps}"},
		{&bm.auditViolations, "billing_audit_violations_total", "Violations reported by sweeps", "{violations}"},
		{&bm.importedRows, "billing_import_rows_total", "Payment file rows by outcome", "{rows}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(meter, c.name, c.description, c.unit)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	var err error
	bm.fetchDuration, err = NewDurationHistogram(meter,
		"billing_snapshot_fetch_duration_seconds",
		"Time spent fetching and normalizing a full snapshot",
		FetchDurationBuckets)
	if err != nil {
		return nil, err
	}
	return bm, nil
}

// RecordPayment counts a payment and adds its amount in cents
func (bm *BillingMetrics) RecordPayment(ctx context.Context, method string, amount decimal.Decimal) {
	if bm == nil {
		return
	}
	bm.paymentsRecorded.Inc(ctx, AttrPaymentMethod.String(method))
	bm.paymentAmount.Add(ctx, amount.Shift(2).IntPart(), AttrPaymentMethod.String(method))
}

// RecordPaymentVoided counts a voided payment
func (bm *BillingMetrics) RecordPaymentVoided(ctx context.Context, method string) {
	if bm == nil {
		return
	}
	bm.paymentsVoided.Inc(ctx, AttrPaymentMethod.String(method))
}

// RecordInvoiceCreated counts an invoice billed from a service
func (bm *BillingMetrics) RecordInvoiceCreated(ctx context.Context) {
	if bm == nil {
		return
	}
	bm.invoicesCreated.Inc(ctx)
}

// RecordInvoicePaid counts an invoice whose balance reached zero
func (bm *BillingMetrics) RecordInvoicePaid(ctx context.Context) {
	if bm == nil {
		return
	}
	bm.invoicesPaid.Inc(ctx)
}

// RecordStatusChange counts a manual status change
func (bm *BillingMetrics) RecordStatusChange(ctx context.Context, from, to string) {
	if bm == nil {
		return
	}
	bm.statusChanges.Inc(ctx, AttrStatusFrom.String(from), AttrStatusTo.String(to))
}

// RecordStoreError counts a failed store operation
func (bm *BillingMetrics) RecordStoreError(ctx context.Context, operation string) {
	if bm == nil {
		return
	}
	bm.storeErrors.Inc(ctx, AttrOperation.String(operation))
}

// RecordViewCacheLookup counts a cache hit or miss
func (bm *BillingMetrics) RecordViewCacheLookup(ctx context.Context, hit bool) {
	if bm == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	bm.viewCacheLookups.Inc(ctx, AttrCacheResult.String(result))
}

// RecordSweep counts a sweep and the audit violations it found
func (bm *BillingMetrics) RecordSweep(ctx context.Context, violations int, err error) {
	if bm == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	bm.sweeps.Inc(ctx, AttrResult.String(result))
	if violations > 0 {
		bm.auditViolations.Add(ctx, int64(violations))
	}
}

// RecordImport counts the rows of a payment file that were applied and
// rejected
func (bm *BillingMetrics) RecordImport(ctx context.Context, dryRun bool, imported, rejected int) {
	if bm == nil {
		return
	}
	bm.importedRows.Add(ctx, int64(imported), AttrResult.String("imported"), AttrDryRun.Bool(dryRun))
	bm.importedRows.Add(ctx, int64(rejected), AttrResult.String("rejected"), AttrDryRun.Bool(dryRun))
}

// RecordFetch records how long a full snapshot fetch took
func (bm *BillingMetrics) RecordFetch(ctx context.Context, d time.Duration) {
	if bm == nil {
		return
	}
	bm.fetchDuration.RecordDuration(ctx, d)
}
