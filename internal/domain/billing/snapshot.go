package billing

import (
	"iter"
	"slices"
	"time"

	"github.com/garage/billing/internal/domain/shared"
)

// SnapshotData is the canonical entity set a Snapshot is built from
type SnapshotData struct {
	Customers []Customer
	Vehicles  []Vehicle
	Services  []Service
	Invoices  []*Invoice
	Payments  []*Payment
	Settings  Settings
}

// Snapshot is an immutable, indexed view of every canonical record at one
// point in time. All derived views are computed from a Snapshot. The With*
// methods return a new Snapshot with a bumped version; the receiver is left
// untouched, so readers holding it never observe a partial mutation.
type Snapshot struct {
	version  uint64
	data     SnapshotData
	invoices map[string]int
	payments map[string]int
	byInv    map[string][]int
	services map[string]int
	vehicles map[string]int
	custs    map[string]int
}

// NewSnapshot indexes data into a version-1 snapshot. The snapshot takes
// ownership of the slices.
func NewSnapshot(data SnapshotData) *Snapshot {
	return newSnapshot(1, data)
}

func newSnapshot(version uint64, data SnapshotData) *Snapshot {
	s := &Snapshot{
		version:  version,
		data:     data,
		invoices: make(map[string]int, len(data.Invoices)),
		payments: make(map[string]int, len(data.Payments)),
		byInv:    make(map[string][]int, len(data.Invoices)),
		services: make(map[string]int, len(data.Services)),
		vehicles: make(map[string]int, len(data.Vehicles)),
		custs:    make(map[string]int, len(data.Customers)),
	}
	for i, inv := range data.Invoices {
		s.invoices[inv.ID] = i
	}
	for i, p := range data.Payments {
		s.payments[p.ID] = i
		s.byInv[p.InvoiceID] = append(s.byInv[p.InvoiceID], i)
	}
	for i, svc := range data.Services {
		s.services[svc.ID] = i
	}
	for i, v := range data.Vehicles {
		s.vehicles[v.ID] = i
	}
	for i, c := range data.Customers {
		s.custs[c.ID] = i
	}
	return s
}

// Version increases by one with every patch applied to a snapshot
func (s *Snapshot) Version() uint64 {
	return s.version
}

// WithVersion returns the same records under a different version. It is
// used when a refetched snapshot replaces a patched one.
func (s *Snapshot) WithVersion(version uint64) *Snapshot {
	c := *s
	c.version = version
	return &c
}

// Settings returns the billing settings
func (s *Snapshot) Settings() Settings {
	return s.data.Settings
}

// Customer looks up a customer by id
func (s *Snapshot) Customer(id string) (Customer, bool) {
	i, ok := s.custs[id]
	if !ok {
		return Customer{}, false
	}
	return s.data.Customers[i], true
}

// HasCustomer reports whether the customer is known, either as a customer
// record or as the owner of at least one invoice
func (s *Snapshot) HasCustomer(id string) bool {
	if _, ok := s.custs[id]; ok {
		return true
	}
	for _, inv := range s.data.Invoices {
		if inv.CustomerID == id {
			return true
		}
	}
	return false
}

// Customers returns all customers
func (s *Snapshot) Customers() []Customer {
	return slices.Clone(s.data.Customers)
}

// Vehicle looks up a vehicle by id
func (s *Snapshot) Vehicle(id string) (Vehicle, bool) {
	i, ok := s.vehicles[id]
	if !ok {
		return Vehicle{}, false
	}
	return s.data.Vehicles[i], true
}

// VehiclesOf returns the vehicles owned by a customer
func (s *Snapshot) VehiclesOf(customerID string) []Vehicle {
	var out []Vehicle
	for _, v := range s.data.Vehicles {
		if v.CustomerID == customerID {
			out = append(out, v)
		}
	}
	return out
}

// Service looks up a service by id
func (s *Snapshot) Service(id string) (Service, bool) {
	i, ok := s.services[id]
	if !ok {
		return Service{}, false
	}
	return s.data.Services[i], true
}

// Invoice returns a mutable copy of the invoice
func (s *Snapshot) Invoice(id string) (*Invoice, bool) {
	inv, ok := s.invoice(id)
	if !ok {
		return nil, false
	}
	return inv.Clone(), true
}

func (s *Snapshot) invoice(id string) (*Invoice, bool) {
	i, ok := s.invoices[id]
	if !ok {
		return nil, false
	}
	return s.data.Invoices[i], true
}

// InvoiceForService returns a copy of the invoice billed for a service
func (s *Snapshot) InvoiceForService(serviceID string) (*Invoice, bool) {
	for _, inv := range s.data.Invoices {
		if inv.ServiceID == serviceID {
			return inv.Clone(), true
		}
	}
	return nil, false
}

// HasInvoiceNumber reports whether an invoice already uses the number
func (s *Snapshot) HasInvoiceNumber(number string) bool {
	return slices.ContainsFunc(s.data.Invoices, func(inv *Invoice) bool {
		return inv.InvoiceNumber == number
	})
}

// InvoiceByNumber returns a copy of the first invoice with the number
func (s *Snapshot) InvoiceByNumber(number string) (*Invoice, bool) {
	i := slices.IndexFunc(s.data.Invoices, func(inv *Invoice) bool {
		return inv.InvoiceNumber == number
	})
	if i < 0 {
		return nil, false
	}
	return s.data.Invoices[i].Clone(), true
}

// Invoices yields a copy of every invoice in input order
func (s *Snapshot) Invoices() iter.Seq[*Invoice] {
	return func(yield func(*Invoice) bool) {
		for _, inv := range s.data.Invoices {
			if !yield(inv.Clone()) {
				return
			}
		}
	}
}

// InvoiceCount returns the number of invoices
func (s *Snapshot) InvoiceCount() int {
	return len(s.data.Invoices)
}

// Payment returns a copy of the payment
func (s *Snapshot) Payment(id string) (*Payment, bool) {
	i, ok := s.payments[id]
	if !ok {
		return nil, false
	}
	return s.data.Payments[i].Clone(), true
}

// PaymentsFor returns copies of the payments applied to an invoice, in
// input order
func (s *Snapshot) PaymentsFor(invoiceID string) []*Payment {
	idx := s.byInv[invoiceID]
	out := make([]*Payment, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.data.Payments[i].Clone())
	}
	return out
}

func (s *Snapshot) paymentsFor(invoiceID string) []*Payment {
	idx := s.byInv[invoiceID]
	out := make([]*Payment, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.data.Payments[i])
	}
	return out
}

// Payments yields a copy of every payment in input order
func (s *Snapshot) Payments() iter.Seq[*Payment] {
	return func(yield func(*Payment) bool) {
		for _, p := range s.data.Payments {
			if !yield(p.Clone()) {
				return
			}
		}
	}
}

// PaymentCount returns the number of payments
func (s *Snapshot) PaymentCount() int {
	return len(s.data.Payments)
}

// customerInvoices returns the stored invoices of a customer, input order
func (s *Snapshot) customerInvoices(customerID string) []*Invoice {
	var out []*Invoice
	for _, inv := range s.data.Invoices {
		if inv.CustomerID == customerID {
			out = append(out, inv)
		}
	}
	return out
}

// ============================================
// Copy-on-write patches
// ============================================

// WithInvoice returns a snapshot where the invoice is inserted or replaced
func (s *Snapshot) WithInvoice(inv *Invoice) *Snapshot {
	data := s.data
	data.Invoices = slices.Clone(s.data.Invoices)
	stored := inv.Clone()
	if i, ok := s.invoices[inv.ID]; ok {
		data.Invoices[i] = stored
	} else {
		data.Invoices = append(data.Invoices, stored)
	}
	return newSnapshot(s.version+1, data)
}

// WithPayment returns a snapshot where the invoice is replaced and the new
// payment appended, as one step
func (s *Snapshot) WithPayment(inv *Invoice, p *Payment) *Snapshot {
	data := s.data
	data.Invoices = slices.Clone(s.data.Invoices)
	if i, ok := s.invoices[inv.ID]; ok {
		data.Invoices[i] = inv.Clone()
	} else {
		data.Invoices = append(data.Invoices, inv.Clone())
	}
	data.Payments = append(slices.Clone(s.data.Payments), p.Clone())
	return newSnapshot(s.version+1, data)
}

// WithoutPayment returns a snapshot where the invoice is replaced and the
// payment removed, as one step
func (s *Snapshot) WithoutPayment(inv *Invoice, paymentID string) *Snapshot {
	data := s.data
	data.Invoices = slices.Clone(s.data.Invoices)
	if i, ok := s.invoices[inv.ID]; ok {
		data.Invoices[i] = inv.Clone()
	}
	data.Payments = slices.DeleteFunc(slices.Clone(s.data.Payments), func(p *Payment) bool {
		return p.ID == paymentID
	})
	return newSnapshot(s.version+1, data)
}

// WithoutInvoice returns a snapshot without the invoice and its payments
func (s *Snapshot) WithoutInvoice(invoiceID string) *Snapshot {
	data := s.data
	data.Invoices = slices.DeleteFunc(slices.Clone(s.data.Invoices), func(inv *Invoice) bool {
		return inv.ID == invoiceID
	})
	data.Payments = slices.DeleteFunc(slices.Clone(s.data.Payments), func(p *Payment) bool {
		return p.InvoiceID == invoiceID
	})
	return newSnapshot(s.version+1, data)
}

// WithSettings returns a snapshot with replaced billing settings
func (s *Snapshot) WithSettings(settings Settings) *Snapshot {
	data := s.data
	data.Settings = settings
	return newSnapshot(s.version+1, data)
}

// ============================================
// Lookups returning domain errors
// ============================================

// RequireInvoice returns a mutable copy or a NotFoundError
func (s *Snapshot) RequireInvoice(id string) (*Invoice, error) {
	inv, ok := s.Invoice(id)
	if !ok {
		return nil, shared.NewNotFoundError("invoice", id)
	}
	return inv, nil
}

// RequirePayment returns a copy or a NotFoundError
func (s *Snapshot) RequirePayment(id string) (*Payment, error) {
	p, ok := s.Payment(id)
	if !ok {
		return nil, shared.NewNotFoundError("payment", id)
	}
	return p, nil
}

// RequireCustomer returns a NotFoundError for unknown customers
func (s *Snapshot) RequireCustomer(id string) error {
	if !s.HasCustomer(id) {
		return shared.NewNotFoundError("customer", id)
	}
	return nil
}

// inRange reports whether t lies within [start, end]
func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
