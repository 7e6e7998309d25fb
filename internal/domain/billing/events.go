package billing

import (
	"time"

	"github.com/garage/billing/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeInvoice is the aggregate type carried by every billing event
const AggregateTypeInvoice = "Invoice"

// Event type names
const (
	EventTypeInvoiceCreated       = "InvoiceCreated"
	EventTypeInvoiceStatusChanged = "InvoiceStatusChanged"
	EventTypeInvoiceUpdated       = "InvoiceUpdated"
	EventTypeInvoicePaid          = "InvoicePaid"
	EventTypeInvoiceDeleted       = "InvoiceDeleted"
	EventTypePaymentRecorded      = "PaymentRecorded"
	EventTypePaymentVoided        = "PaymentVoided"
)

// InvoiceCreatedEvent is raised when a completed service is billed
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    string          `json:"customer_id"`
	ServiceID     string          `json:"service_id"`
	Total         decimal.Decimal `json:"total"`
	DueDate       *time.Time      `json:"due_date,omitempty"`
}

// NewInvoiceCreatedEvent creates a new InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice, now time.Time) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, AggregateTypeInvoice, inv.ID, now),
		InvoiceNumber:   inv.InvoiceNumber,
		CustomerID:      inv.CustomerID,
		ServiceID:       inv.ServiceID,
		Total:           inv.Total,
		DueDate:         inv.DueDate,
	}
}

// InvoiceStatusChangedEvent is raised by UpdateStatus
type InvoiceStatusChangedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string        `json:"invoice_number"`
	CustomerID    string        `json:"customer_id"`
	From          InvoiceStatus `json:"from"`
	To            InvoiceStatus `json:"to"`
	Warning       string        `json:"warning,omitempty"`
}

// NewInvoiceStatusChangedEvent creates a new InvoiceStatusChangedEvent
func NewInvoiceStatusChangedEvent(inv *Invoice, change StatusChange, now time.Time) *InvoiceStatusChangedEvent {
	return &InvoiceStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceStatusChanged, AggregateTypeInvoice, inv.ID, now),
		InvoiceNumber:   inv.InvoiceNumber,
		CustomerID:      inv.CustomerID,
		From:            change.From,
		To:              change.To,
		Warning:         change.Warning,
	}
}

// InvoiceUpdatedEvent is raised when line items are replaced
type InvoiceUpdatedEvent struct {
	shared.BaseDomainEvent
	CustomerID string          `json:"customer_id"`
	Total      decimal.Decimal `json:"total"`
	BalanceDue decimal.Decimal `json:"balance_due"`
}

// NewInvoiceUpdatedEvent creates a new InvoiceUpdatedEvent
func NewInvoiceUpdatedEvent(inv *Invoice, now time.Time) *InvoiceUpdatedEvent {
	return &InvoiceUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceUpdated, AggregateTypeInvoice, inv.ID, now),
		CustomerID:      inv.CustomerID,
		Total:           inv.Total,
		BalanceDue:      inv.BalanceDue,
	}
}

// InvoicePaidEvent is raised when a payment brings the balance to zero
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	CustomerID    string          `json:"customer_id"`
	Total         decimal.Decimal `json:"total"`
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice, now time.Time) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaid, AggregateTypeInvoice, inv.ID, now),
		InvoiceNumber:   inv.InvoiceNumber,
		CustomerID:      inv.CustomerID,
		Total:           inv.Total,
	}
}

// InvoiceDeletedEvent is raised after an invoice and its payments are removed
type InvoiceDeletedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber     string   `json:"invoice_number"`
	CustomerID        string   `json:"customer_id"`
	RemovedPaymentIDs []string `json:"removed_payment_ids"`
}

// NewInvoiceDeletedEvent creates a new InvoiceDeletedEvent
func NewInvoiceDeletedEvent(inv *Invoice, removed []*Payment, now time.Time) *InvoiceDeletedEvent {
	ids := make([]string, 0, len(removed))
	for _, p := range removed {
		ids = append(ids, p.ID)
	}
	return &InvoiceDeletedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeInvoiceDeleted, AggregateTypeInvoice, inv.ID, now),
		InvoiceNumber:     inv.InvoiceNumber,
		CustomerID:        inv.CustomerID,
		RemovedPaymentIDs: ids,
	}
}

// PaymentRecordedEvent is raised for every applied payment
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentID  string          `json:"payment_id"`
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	BalanceDue decimal.Decimal `json:"balance_due"`
}

// NewPaymentRecordedEvent creates a new PaymentRecordedEvent
func NewPaymentRecordedEvent(inv *Invoice, p *Payment, now time.Time) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, AggregateTypeInvoice, inv.ID, now),
		PaymentID:       p.ID,
		CustomerID:      inv.CustomerID,
		Amount:          p.Amount,
		Method:          p.Method,
		BalanceDue:      inv.BalanceDue,
	}
}

// PaymentVoidedEvent is raised when a payment is reversed
type PaymentVoidedEvent struct {
	shared.BaseDomainEvent
	PaymentID  string          `json:"payment_id"`
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	BalanceDue decimal.Decimal `json:"balance_due"`
}

// NewPaymentVoidedEvent creates a new PaymentVoidedEvent
func NewPaymentVoidedEvent(inv *Invoice, p *Payment, now time.Time) *PaymentVoidedEvent {
	return &PaymentVoidedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentVoided, AggregateTypeInvoice, inv.ID, now),
		PaymentID:       p.ID,
		CustomerID:      inv.CustomerID,
		Amount:          p.Amount,
		BalanceDue:      inv.BalanceDue,
	}
}
