package billing

import (
	"fmt"
	"time"

	"github.com/garage/billing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdvancePaymentNote marks the payment created from a service's advance
const AdvancePaymentNote = "Advance payment from service record"

// InvoiceOptions overrides the defaults used when billing a service
type InvoiceOptions struct {
	Discount  decimal.Decimal
	LineItems []LineItem
	Notes     string
}

// InvoiceCreation is the outcome of billing a completed service
type InvoiceCreation struct {
	Invoice        *Invoice `json:"invoice"`
	AdvancePayment *Payment `json:"advance_payment,omitempty"` // nil when the service had no advance
	Settings       Settings `json:"-"`                         // settings with the invoice counter advanced
	Created        bool     `json:"created"`                   // false when the service was already billed
}

// CreateInvoiceForService bills a completed service. A service that already
// has an invoice gets that invoice back with Created false.
func CreateInvoiceForService(s *Snapshot, serviceID string, opts InvoiceOptions, now time.Time) (*InvoiceCreation, error) {
	svc, ok := s.Service(serviceID)
	if !ok {
		return nil, shared.NewNotFoundError("service", serviceID)
	}
	if existing, ok := s.InvoiceForService(serviceID); ok {
		return &InvoiceCreation{Invoice: existing, Settings: s.Settings()}, nil
	}
	vehicle, ok := s.Vehicle(svc.VehicleID)
	if !ok {
		return nil, shared.NewNotFoundError("vehicle", svc.VehicleID)
	}

	settings := s.Settings()
	number := settings.TakeInvoiceNumber(s.HasInvoiceNumber)
	inv, advance, err := NewInvoiceFromService(svc, vehicle, number, settings, opts, now)
	if err != nil {
		return nil, err
	}
	return &InvoiceCreation{
		Invoice:        inv,
		AdvancePayment: advance,
		Settings:       settings,
		Created:        true,
	}, nil
}

// NewInvoiceFromService builds a draft invoice for a completed service.
//
// When the service cost includes tax, the cost is the total and the
// subtotal is backed out of it. Otherwise the cost is the subtotal and tax is
// charged on subtotal minus discount. A positive advance recorded on the
// service is applied as the invoice's first payment.
func NewInvoiceFromService(svc Service, vehicle Vehicle, number string, settings Settings, opts InvoiceOptions, now time.Time) (*Invoice, *Payment, error) {
	if !svc.IsCompleted() {
		return nil, nil, shared.NewValidationError("SERVICE_NOT_COMPLETED", fmt.Sprintf("Service %s is not completed", svc.ID))
	}
	if opts.Discount.IsNegative() {
		return nil, nil, shared.NewValidationError("INVALID_DISCOUNT", "Discount cannot be negative")
	}

	rate := settings.TaxRate
	var subtotal, taxAmount, total decimal.Decimal
	if svc.TaxIncluded {
		total = Round2(svc.Cost)
		subtotal = Round2(svc.Cost.Div(decimal.NewFromInt(1).Add(rate)))
		taxAmount = total.Sub(subtotal)
		if opts.Discount.IsPositive() {
			total = total.Sub(opts.Discount)
		}
	} else {
		subtotal = Round2(svc.Cost)
		taxAmount, total = computeTotals(subtotal, opts.Discount, rate)
	}
	if opts.Discount.GreaterThan(subtotal) {
		return nil, nil, shared.NewValidationError("DISCOUNT_EXCEEDS_SUBTOTAL", fmt.Sprintf("Discount %s exceeds subtotal %s", opts.Discount.StringFixed(2), subtotal.StringFixed(2)))
	}

	items := opts.LineItems
	if len(items) == 0 {
		items = []LineItem{{
			Description: "Service: " + svc.Type,
			Detail:      svc.Description,
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   subtotal,
			Total:       subtotal,
			Kind:        LineItemService,
		}}
	}

	dueDate := now.AddDate(0, 0, settings.PaymentTermDays())
	inv := &Invoice{
		ID:            uuid.NewString(),
		CustomerID:    vehicle.CustomerID,
		VehicleID:     vehicle.ID,
		ServiceID:     svc.ID,
		InvoiceNumber: number,
		DateCreated:   now,
		DueDate:       &dueDate,
		LineItems:     items,
		Subtotal:      subtotal,
		Discount:      opts.Discount,
		TaxRate:       rate,
		TaxAmount:     taxAmount,
		Total:         total,
		PaidAmount:    decimal.Zero,
		BalanceDue:    total,
		Status:        InvoiceStatusDraft,
		PaymentTerms:  settings.PaymentTerms,
		Notes:         opts.Notes,
	}
	inv.RecordEvent(NewInvoiceCreatedEvent(inv, now))

	if !svc.AdvancePayment.IsPositive() {
		return inv, nil, nil
	}
	advance, err := inv.ApplyPayment(PaymentInput{
		Amount: svc.AdvancePayment,
		Method: svc.AdvancePaymentMethod,
		Date:   now,
		Notes:  AdvancePaymentNote,
	}, now)
	if err != nil {
		return nil, nil, err
	}
	return inv, advance, nil
}
