package billing

import "context"

// Store is the persistence collaborator. Implementations return a
// TransportError (shared.NewTransportError) when the backend is unreachable
// or rejects a write; each method either applies fully or not at all.
type Store interface {
	// Fetch returns every record as the backend holds it
	Fetch(ctx context.Context) (*RawSnapshot, error)

	// SaveInvoice inserts or updates an invoice
	SaveInvoice(ctx context.Context, inv *Invoice) error

	// CreateInvoice inserts an invoice, its optional advance payment and the
	// advanced settings counter in one transaction
	CreateInvoice(ctx context.Context, inv *Invoice, advance *Payment, settings Settings) error

	// SavePayment stores the updated invoice and the new payment atomically
	SavePayment(ctx context.Context, inv *Invoice, payment *Payment) error

	// RemovePayment stores the updated invoice and deletes the payment
	// atomically
	RemovePayment(ctx context.Context, inv *Invoice, paymentID string) error

	// RemoveInvoice deletes an invoice together with all of its payments
	RemoveInvoice(ctx context.Context, invoiceID string) error

	// SaveSettings replaces the billing settings singleton
	SaveSettings(ctx context.Context, settings Settings) error
}
