package billing

import (
	"context"
	"slices"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/domain/shared"
	"github.com/garage/billing/internal/infrastructure/logger"
	"github.com/garage/billing/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RecordPayment applies a payment to an invoice. The invoice and payment are
// stored together; the snapshot only changes once the store acknowledged.
func (s *BillingService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*billing.PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "record_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, req.InvoiceID,
		telemetry.SpanAttrAmount, req.Amount.String(),
		telemetry.SpanAttrPaymentMethod, req.Method,
	)

	if err := s.validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.currentLocked(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, err := billing.RecordPayment(current, req.InvoiceID, billing.PaymentInput{
		Amount:    req.Amount,
		Method:    billing.PaymentMethod(req.Method),
		Date:      req.Date,
		Reference: req.Reference,
		Notes:     req.Notes,
	}, s.now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	settled := hasEvent(result.Invoice, billing.EventTypeInvoicePaid)

	err = s.commit(ctx, "save_payment", current, result.Invoice,
		func() error { return s.store.SavePayment(ctx, result.Invoice, result.Payment) },
		func(snap *billing.Snapshot) *billing.Snapshot { return snap.WithPayment(result.Invoice, result.Payment) },
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordPayment(ctx, result.Payment.Method.String(), result.Payment.Amount)
	if settled {
		s.metrics.RecordInvoicePaid(ctx)
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, result.Payment.ID,
		telemetry.SpanAttrInvoiceStatus, result.Invoice.Status.String(),
	)
	logger.WithLogger(ctx, s.log).Info("Payment recorded",
		zap.String("invoice_id", result.Invoice.ID),
		zap.String("invoice_number", result.Invoice.InvoiceNumber),
		zap.String("payment_id", result.Payment.ID),
		zap.String("amount", result.Payment.Amount.StringFixed(2)),
		zap.String("method", result.Payment.Method.String()),
		zap.String("balance_due", result.Invoice.BalanceDue.StringFixed(2)),
		zap.String("status", result.Invoice.Status.String()),
	)
	return result, nil
}

// VoidPayment removes a payment and restores the invoice balance
func (s *BillingService) VoidPayment(ctx context.Context, paymentID string) (*billing.PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "void_payment")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, paymentID)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.currentLocked(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, err := billing.VoidPayment(current, paymentID, s.now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	err = s.commit(ctx, "remove_payment", current, result.Invoice,
		func() error { return s.store.RemovePayment(ctx, result.Invoice, paymentID) },
		func(snap *billing.Snapshot) *billing.Snapshot { return snap.WithoutPayment(result.Invoice, paymentID) },
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordPaymentVoided(ctx, result.Payment.Method.String())
	logger.WithLogger(ctx, s.log).Info("Payment voided",
		zap.String("invoice_id", result.Invoice.ID),
		zap.String("payment_id", paymentID),
		zap.String("amount", result.Payment.Amount.StringFixed(2)),
		zap.String("balance_due", result.Invoice.BalanceDue.StringFixed(2)),
		zap.String("status", result.Invoice.Status.String()),
	)
	return result, nil
}

// UpdateStatus sets an invoice's status. Setting the status it already has
// writes nothing.
func (s *BillingService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*StatusUpdateResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "update_status")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, req.InvoiceID,
		telemetry.SpanAttrInvoiceStatus, req.Status,
	)

	if err := s.validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.currentLocked(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	inv, change, err := billing.UpdateStatus(current, req.InvoiceID, billing.InvoiceStatus(req.Status), s.now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	result := &StatusUpdateResult{Invoice: inv, From: change.From, To: change.To, Warning: change.Warning}
	log := logger.WithLogger(ctx, s.log).With(
		zap.String("invoice_id", inv.ID),
		zap.String("from", change.From.String()),
		zap.String("to", change.To.String()),
	)

	if change.From != change.To {
		err = s.commit(ctx, "save_invoice", current, inv,
			func() error { return s.store.SaveInvoice(ctx, inv) },
			func(snap *billing.Snapshot) *billing.Snapshot { return snap.WithInvoice(inv) },
		)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		s.metrics.RecordStatusChange(ctx, change.From.String(), change.To.String())
	}

	if change.HasWarning() {
		telemetry.AddEvent(span, "status_warning", "warning", change.Warning)
		log.Warn(change.Warning, zap.String("balance_due", inv.BalanceDue.StringFixed(2)))
	} else {
		log.Info("Invoice status updated")
	}
	return result, nil
}

// DeleteInvoice removes an invoice together with its payments
func (s *BillingService) DeleteInvoice(ctx context.Context, invoiceID string) (*DeleteInvoiceResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "delete_invoice")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, invoiceID)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.currentLocked(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	inv, removed, err := billing.DeleteInvoice(current, invoiceID, s.now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	err = s.commit(ctx, "remove_invoice", current, inv,
		func() error { return s.store.RemoveInvoice(ctx, invoiceID) },
		func(snap *billing.Snapshot) *billing.Snapshot { return snap.WithoutInvoice(invoiceID) },
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.WithLogger(ctx, s.log).Info("Invoice deleted",
		zap.String("invoice_id", invoiceID),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.Int("removed_payments", len(removed)),
	)
	return &DeleteInvoiceResult{Invoice: inv, RemovedPayments: removed}, nil
}

// UpdateLineItems replaces an invoice's line items and recomputes its totals
func (s *BillingService) UpdateLineItems(ctx context.Context, req UpdateLineItemsRequest) (*billing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "update_line_items")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, req.InvoiceID)

	if err := s.validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.currentLocked(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	inv, err := billing.UpdateLineItems(current, req.InvoiceID, toLineItems(req.Items), s.now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	err = s.commit(ctx, "save_invoice", current, inv,
		func() error { return s.store.SaveInvoice(ctx, inv) },
		func(snap *billing.Snapshot) *billing.Snapshot { return snap.WithInvoice(inv) },
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.WithLogger(ctx, s.log).Info("Invoice line items updated",
		zap.String("invoice_id", inv.ID),
		zap.Int("items", len(inv.LineItems)),
		zap.String("total", inv.Total.StringFixed(2)),
	)
	return inv, nil
}

// CreateInvoiceFromService bills a completed service. Billing the same
// service twice returns the existing invoice without writing.
func (s *BillingService) CreateInvoiceFromService(ctx context.Context, req CreateInvoiceRequest) (*billing.InvoiceCreation, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "create_invoice")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrServiceID, req.ServiceID)

	if err := s.validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.currentLocked(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	creation, err := billing.CreateInvoiceForService(current, req.ServiceID, billing.InvoiceOptions{
		Discount:  req.Discount,
		LineItems: toLineItems(req.LineItems),
		Notes:     req.Notes,
	}, s.now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, creation.Invoice.ID)
	if !creation.Created {
		logger.WithLogger(ctx, s.log).Debug("Service already billed",
			zap.String("service_id", req.ServiceID),
			zap.String("invoice_id", creation.Invoice.ID),
		)
		return creation, nil
	}

	inv, advance := creation.Invoice, creation.AdvancePayment
	settled := hasEvent(inv, billing.EventTypeInvoicePaid)
	err = s.commit(ctx, "create_invoice", current, inv,
		func() error { return s.store.CreateInvoice(ctx, inv, advance, creation.Settings) },
		func(snap *billing.Snapshot) *billing.Snapshot {
			snap = snap.WithSettings(creation.Settings)
			if advance != nil {
				return snap.WithPayment(inv, advance)
			}
			return snap.WithInvoice(inv)
		},
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordInvoiceCreated(ctx)
	if advance != nil {
		s.metrics.RecordPayment(ctx, advance.Method.String(), advance.Amount)
	}
	if settled {
		s.metrics.RecordInvoicePaid(ctx)
	}
	logger.WithLogger(ctx, s.log).Info("Invoice created",
		zap.String("invoice_id", inv.ID),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("service_id", inv.ServiceID),
		zap.String("total", inv.Total.StringFixed(2)),
		zap.Bool("advance_applied", advance != nil),
	)
	return creation, nil
}

// ReconcileInvoice recomputes an invoice's paid amount and balance from its
// payments and stores the result when anything drifted
func (s *BillingService) ReconcileInvoice(ctx context.Context, invoiceID string) (*ReconcileResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "reconcile_invoice")
	defer span.End()

	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, invoiceID)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.currentLocked(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	inv, changed, err := billing.ReconcileInvoice(current, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !changed {
		return &ReconcileResult{Invoice: inv}, nil
	}

	err = s.commit(ctx, "save_invoice", current, inv,
		func() error { return s.store.SaveInvoice(ctx, inv) },
		func(snap *billing.Snapshot) *billing.Snapshot { return snap.WithInvoice(inv) },
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.WithLogger(ctx, s.log).Warn("Invoice reconciled from payments",
		zap.String("invoice_id", inv.ID),
		zap.String("paid_amount", inv.PaidAmount.StringFixed(2)),
		zap.String("balance_due", inv.BalanceDue.StringFixed(2)),
		zap.String("status", inv.Status.String()),
	)
	return &ReconcileResult{Invoice: inv, Changed: true}, nil
}

// UpdateSettings replaces the billing settings
func (s *BillingService) UpdateSettings(ctx context.Context, req UpdateSettingsRequest) (billing.Settings, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "update_settings")
	defer span.End()

	if err := s.validateRequest(req); err != nil {
		telemetry.RecordError(span, err)
		return billing.Settings{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.currentLocked(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return billing.Settings{}, err
	}

	settings := req.toSettings()
	err = s.commit(ctx, "save_settings", current, nil,
		func() error { return s.store.SaveSettings(ctx, settings) },
		func(snap *billing.Snapshot) *billing.Snapshot { return snap.WithSettings(settings) },
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return billing.Settings{}, err
	}

	logger.WithLogger(ctx, s.log).Info("Billing settings updated",
		zap.String("tax_rate", settings.TaxRate.String()),
		zap.String("invoice_prefix", settings.InvoicePrefix),
		zap.Int("next_invoice_number", settings.NextInvoiceNumber),
	)
	return settings, nil
}

// ============================================
// Write helpers
// ============================================

// currentLocked returns the snapshot a mutation works against. Callers hold
// writeMu.
func (s *BillingService) currentLocked(ctx context.Context) (*billing.Snapshot, error) {
	if snap := s.fresh(); snap != nil {
		return snap, nil
	}
	return s.loadLocked(ctx)
}

// commit persists a change, swaps in the patched snapshot and publishes the
// events pending on inv. Nothing changes in memory when persist fails.
// Callers hold writeMu.
func (s *BillingService) commit(
	ctx context.Context,
	op string,
	current *billing.Snapshot,
	inv *billing.Invoice,
	persist func() error,
	patch func(*billing.Snapshot) *billing.Snapshot,
) error {
	if err := persist(); err != nil {
		s.metrics.RecordStoreError(ctx, op)
		logger.WithLogger(ctx, s.log).Error("Billing store write failed",
			zap.String("operation", op),
			zap.Error(err),
		)
		return asTransportError(op, err)
	}

	s.swap(ctx, current, patch(current))
	if inv != nil {
		s.publish(ctx, inv)
	}
	return nil
}

// publish hands the invoice's pending events to the publisher. The write is
// already durable, so a failed publish is logged and not returned.
func (s *BillingService) publish(ctx context.Context, inv *billing.Invoice) {
	events := inv.PendingEvents()
	defer inv.ClearEvents()
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		logger.WithLogger(ctx, s.log).Warn("Failed to publish billing events",
			zap.String("invoice_id", inv.ID),
			zap.Int("events", len(events)),
			zap.Error(err),
		)
	}
}

func hasEvent(inv *billing.Invoice, eventType string) bool {
	return slices.ContainsFunc(inv.PendingEvents(), func(e shared.DomainEvent) bool {
		return e.EventType() == eventType
	})
}
