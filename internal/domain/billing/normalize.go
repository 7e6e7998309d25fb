package billing

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// Raw records are what the persistence collaborator hands over. Monetary
// fields are untyped: they may be numbers, numeric strings, garbage or
// absent. Nothing outside this file should read them.

// RawCustomer is a customer record as supplied by the collaborator
type RawCustomer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// RawVehicle is a vehicle record as supplied by the collaborator
type RawVehicle struct {
	ID          string `json:"id"`
	CustomerID  string `json:"customerId"`
	Make        string `json:"make"`
	Model       string `json:"model"`
	PlateNumber string `json:"plateNumber"`
}

// RawService is a service record as supplied by the collaborator
type RawService struct {
	ID                   string `json:"id"`
	VehicleID            string `json:"vehicleId"`
	Type                 string `json:"type"`
	Description          string `json:"description"`
	Cost                 any    `json:"cost"`
	Status               string `json:"status"`
	TaxIncluded          any    `json:"taxIncluded"`
	AdvancePayment       any    `json:"advancePayment"`
	AdvancePaymentMethod string `json:"advancePaymentMethod"`
}

// RawLineItem is an invoice line as supplied by the collaborator
type RawLineItem struct {
	Description string `json:"description"`
	Detail      string `json:"detail"`
	Quantity    any    `json:"quantity"`
	UnitPrice   any    `json:"unitPrice"`
	Total       any    `json:"total"`
	Type        string `json:"type"`
}

// RawInvoice is an invoice record as supplied by the collaborator. Older
// records carry the balance under "balancedue" or "balance_due".
type RawInvoice struct {
	ID               string        `json:"id"`
	CustomerID       string        `json:"customerId"`
	VehicleID        string        `json:"vehicleId"`
	ServiceID        string        `json:"serviceId"`
	InvoiceNumber    string        `json:"invoiceNumber"`
	DateCreated      any           `json:"dateCreated"`
	DueDate          any           `json:"dueDate"`
	LineItems        []RawLineItem `json:"lineItems"`
	Subtotal         any           `json:"subtotal"`
	Discount         any           `json:"discount"`
	TaxRate          any           `json:"taxRate"`
	TaxAmount        any           `json:"taxAmount"`
	Total            any           `json:"total"`
	PaidAmount       any           `json:"paidAmount"`
	BalanceDue       any           `json:"balanceDue"`
	LegacyBalanceDue any           `json:"balancedue"`
	SnakeBalanceDue  any           `json:"balance_due"`
	Status           string        `json:"status"`
	PaymentTerms     string        `json:"paymentTerms"`
	Notes            string        `json:"notes"`
}

// RawPayment is a payment record as supplied by the collaborator
type RawPayment struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoiceId"`
	Amount    any    `json:"amount"`
	Method    string `json:"method"`
	Date      any    `json:"date"`
	Reference string `json:"reference"`
	Notes     string `json:"notes"`
}

// RawCompanyInfo is the company block of the billing settings
type RawCompanyInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	TaxID   string `json:"taxId"`
}

// RawSettings is the billing settings singleton as supplied by the
// collaborator
type RawSettings struct {
	TaxRate           any            `json:"taxRate"`
	InvoicePrefix     string         `json:"invoicePrefix"`
	NextInvoiceNumber any            `json:"nextInvoiceNumber"`
	PaymentTerms      string         `json:"paymentTerms"`
	CompanyInfo       RawCompanyInfo `json:"companyInfo"`
}

// RawSnapshot is the full entity set fetched from the collaborator
type RawSnapshot struct {
	Customers []RawCustomer `json:"customers"`
	Vehicles  []RawVehicle  `json:"vehicles"`
	Services  []RawService  `json:"services"`
	Invoices  []RawInvoice  `json:"invoices"`
	Payments  []RawPayment  `json:"payments"`
	Settings  *RawSettings  `json:"billingSettings"`
}

// Normalize canonicalizes a raw snapshot. It never fails: every unreadable
// amount becomes zero and missing settings take their defaults.
func Normalize(raw *RawSnapshot) *Snapshot {
	if raw == nil {
		raw = &RawSnapshot{}
	}

	customers := make([]Customer, 0, len(raw.Customers))
	for _, c := range raw.Customers {
		customers = append(customers, Customer(c))
	}
	vehicles := make([]Vehicle, 0, len(raw.Vehicles))
	for _, v := range raw.Vehicles {
		vehicles = append(vehicles, Vehicle(v))
	}
	services := make([]Service, 0, len(raw.Services))
	for _, s := range raw.Services {
		services = append(services, NormalizeService(s))
	}
	invoices := make([]*Invoice, 0, len(raw.Invoices))
	for _, inv := range raw.Invoices {
		invoices = append(invoices, NormalizeInvoice(inv))
	}
	payments := make([]*Payment, 0, len(raw.Payments))
	for _, p := range raw.Payments {
		payments = append(payments, NormalizePayment(p))
	}

	return NewSnapshot(SnapshotData{
		Customers: customers,
		Vehicles:  vehicles,
		Services:  services,
		Invoices:  invoices,
		Payments:  payments,
		Settings:  NormalizeSettings(raw.Settings),
	})
}

// NormalizeAmount coerces an untyped monetary value into a finite,
// non-negative decimal. Absent, malformed, non-finite and negative values
// all become zero.
func NormalizeAmount(v any) decimal.Decimal {
	d, ok := parseDecimal(v)
	if !ok || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// NormalizeTaxRate coerces a tax rate into [0, 1]; anything outside that
// range is treated as malformed.
func NormalizeTaxRate(v any) decimal.Decimal {
	d := NormalizeAmount(v)
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero
	}
	return d
}

func parseDecimal(v any) (decimal.Decimal, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return x, true
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, false
		}
		return *x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(x), true
	case json.Number:
		s = x.String()
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		str, err := cast.ToStringE(v)
		if err != nil {
			return decimal.Zero, false
		}
		s = str
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// normalizeTime accepts time.Time values and the date layouts cast knows
// (RFC3339, plain dates, ...). Unparseable input becomes the zero time.
func normalizeTime(v any) time.Time {
	if v == nil {
		return time.Time{}
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return time.Time{}
	}
	t, err := cast.ToTimeInDefaultLocationE(v, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstPresent(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// NormalizeLineItem canonicalizes one invoice line
func NormalizeLineItem(raw RawLineItem) LineItem {
	return LineItem{
		Description: raw.Description,
		Detail:      raw.Detail,
		Quantity:    NormalizeAmount(raw.Quantity),
		UnitPrice:   NormalizeAmount(raw.UnitPrice),
		Total:       NormalizeAmount(raw.Total),
		Kind:        LineItemKind(raw.Type),
	}
}

// NormalizeInvoice canonicalizes one invoice. Unknown statuses become draft.
func NormalizeInvoice(raw RawInvoice) *Invoice {
	status := InvoiceStatus(strings.ToLower(strings.TrimSpace(raw.Status)))
	if !status.IsValid() {
		status = InvoiceStatusDraft
	}

	var dueDate *time.Time
	if t := normalizeTime(raw.DueDate); !t.IsZero() {
		dueDate = &t
	}

	items := make([]LineItem, 0, len(raw.LineItems))
	for _, it := range raw.LineItems {
		items = append(items, NormalizeLineItem(it))
	}

	return &Invoice{
		ID:            raw.ID,
		CustomerID:    raw.CustomerID,
		VehicleID:     raw.VehicleID,
		ServiceID:     raw.ServiceID,
		InvoiceNumber: raw.InvoiceNumber,
		DateCreated:   normalizeTime(raw.DateCreated),
		DueDate:       dueDate,
		LineItems:     items,
		Subtotal:      NormalizeAmount(raw.Subtotal),
		Discount:      NormalizeAmount(raw.Discount),
		TaxRate:       NormalizeTaxRate(raw.TaxRate),
		TaxAmount:     NormalizeAmount(raw.TaxAmount),
		Total:         NormalizeAmount(raw.Total),
		PaidAmount:    NormalizeAmount(raw.PaidAmount),
		BalanceDue:    NormalizeAmount(firstPresent(raw.BalanceDue, raw.LegacyBalanceDue, raw.SnakeBalanceDue)),
		Status:        status,
		PaymentTerms:  raw.PaymentTerms,
		Notes:         raw.Notes,
	}
}

// NormalizePayment canonicalizes one payment. Unknown methods are kept as
// given so revenue reports still account for them.
func NormalizePayment(raw RawPayment) *Payment {
	return &Payment{
		ID:        raw.ID,
		InvoiceID: raw.InvoiceID,
		Amount:    NormalizeAmount(raw.Amount),
		Method:    PaymentMethod(strings.ToLower(strings.TrimSpace(raw.Method))),
		Date:      normalizeTime(raw.Date),
		Reference: raw.Reference,
		Notes:     raw.Notes,
	}
}

// NormalizeService canonicalizes one service record
func NormalizeService(raw RawService) Service {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(raw.AdvancePaymentMethod)))
	if method == "" {
		method = PaymentMethodCash
	}
	return Service{
		ID:                   raw.ID,
		VehicleID:            raw.VehicleID,
		Type:                 raw.Type,
		Description:          raw.Description,
		Cost:                 NormalizeAmount(raw.Cost),
		Status:               ServiceStatus(raw.Status),
		TaxIncluded:          cast.ToBool(raw.TaxIncluded),
		AdvancePayment:       NormalizeAmount(raw.AdvancePayment),
		AdvancePaymentMethod: method,
	}
}

// NormalizeSettings fills in defaults for anything missing or malformed
func NormalizeSettings(raw *RawSettings) Settings {
	settings := DefaultSettings()
	if raw == nil {
		return settings
	}

	settings.TaxRate = NormalizeTaxRate(raw.TaxRate)
	if prefix := strings.TrimSpace(raw.InvoicePrefix); prefix != "" {
		settings.InvoicePrefix = prefix
	}
	if n, err := cast.ToIntE(raw.NextInvoiceNumber); err == nil && n >= 1 {
		settings.NextInvoiceNumber = n
	}
	if terms := strings.TrimSpace(raw.PaymentTerms); terms != "" {
		settings.PaymentTerms = terms
	}
	settings.Company = CompanyInfo(raw.CompanyInfo)
	return settings
}
