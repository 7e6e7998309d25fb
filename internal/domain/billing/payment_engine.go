package billing

import "time"

// PaymentResult is the outcome of recording or voiding a payment: the
// updated invoice and the payment that was added or removed
type PaymentResult struct {
	Invoice *Invoice `json:"invoice"`
	Payment *Payment `json:"payment"`
}

// RecordPayment validates and applies a payment against an invoice in the
// snapshot. The snapshot is not modified; the caller persists the result and
// then patches its snapshot.
func RecordPayment(s *Snapshot, invoiceID string, in PaymentInput, now time.Time) (*PaymentResult, error) {
	inv, err := s.RequireInvoice(invoiceID)
	if err != nil {
		return nil, err
	}
	payment, err := inv.ApplyPayment(in, now)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Invoice: inv, Payment: payment}, nil
}

// VoidPayment reverses a payment in the snapshot, returning the updated
// invoice and the removed payment
func VoidPayment(s *Snapshot, paymentID string, now time.Time) (*PaymentResult, error) {
	payment, err := s.RequirePayment(paymentID)
	if err != nil {
		return nil, err
	}
	inv, err := s.RequireInvoice(payment.InvoiceID)
	if err != nil {
		return nil, err
	}
	if err := inv.VoidPayment(payment, now); err != nil {
		return nil, err
	}
	return &PaymentResult{Invoice: inv, Payment: payment}, nil
}

// UpdateStatus changes an invoice's status in the snapshot
func UpdateStatus(s *Snapshot, invoiceID string, status InvoiceStatus, now time.Time) (*Invoice, StatusChange, error) {
	if !status.IsValid() {
		_, err := ParseInvoiceStatus(string(status))
		return nil, StatusChange{}, err
	}
	inv, err := s.RequireInvoice(invoiceID)
	if err != nil {
		return nil, StatusChange{}, err
	}
	change, err := inv.UpdateStatus(status, now)
	if err != nil {
		return nil, StatusChange{}, err
	}
	return inv, change, nil
}

// DeleteInvoice resolves an invoice and the payments that are removed with
// it. Deletion cascades: payments never outlive their invoice.
func DeleteInvoice(s *Snapshot, invoiceID string, now time.Time) (*Invoice, []*Payment, error) {
	inv, err := s.RequireInvoice(invoiceID)
	if err != nil {
		return nil, nil, err
	}
	removed := s.PaymentsFor(invoiceID)
	inv.RecordEvent(NewInvoiceDeletedEvent(inv, removed, now))
	return inv, removed, nil
}

// UpdateLineItems replaces an invoice's line items in the snapshot
func UpdateLineItems(s *Snapshot, invoiceID string, items []LineItem, now time.Time) (*Invoice, error) {
	inv, err := s.RequireInvoice(invoiceID)
	if err != nil {
		return nil, err
	}
	if err := inv.ReplaceLineItems(items); err != nil {
		return nil, err
	}
	inv.RecordEvent(NewInvoiceUpdatedEvent(inv, now))
	return inv, nil
}
