package billing

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"float", 1000.5, "1000.5"},
		{"int", 42, "42"},
		{"int64", int64(7), "7"},
		{"numeric string", "250.75", "250.75"},
		{"padded string", "  12.30 ", "12.3"},
		{"json number", json.Number("99.99"), "99.99"},
		{"decimal", dec("3.14"), "3.14"},
		{"nil", nil, "0"},
		{"empty string", "", "0"},
		{"garbage", "abc", "0"},
		{"negative", -5, "0"},
		{"negative string", "-0.01", "0"},
		{"NaN", math.NaN(), "0"},
		{"Inf", math.Inf(1), "0"},
		{"bool", true, "0"},
		{"struct", struct{}{}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.expected, NormalizeAmount(tt.input))
		})
	}
}

func TestNormalizeAmount_IsTotal(t *testing.T) {
	inputs := []any{nil, "", "x", -1, math.NaN(), []int{1}, map[string]any{}, "1e400000000000"}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			d := NormalizeAmount(in)
			assert.False(t, d.IsNegative())
		})
	}
}

func TestNormalizeTaxRate(t *testing.T) {
	assertDecimal(t, "0.15", NormalizeTaxRate("0.15"))
	assertDecimal(t, "1", NormalizeTaxRate(1))
	assertDecimal(t, "0", NormalizeTaxRate(15))
	assertDecimal(t, "0", NormalizeTaxRate(nil))
}

func TestNormalizeSettings(t *testing.T) {
	t.Run("nil settings take defaults", func(t *testing.T) {
		s := NormalizeSettings(nil)
		assertDecimal(t, "0", s.TaxRate)
		assert.Equal(t, "INV", s.InvoicePrefix)
		assert.Equal(t, 1, s.NextInvoiceNumber)
		assert.Equal(t, "Net 30", s.PaymentTerms)
	})

	t.Run("blank and malformed fields take defaults", func(t *testing.T) {
		s := NormalizeSettings(&RawSettings{
			TaxRate:           "ten percent",
			InvoicePrefix:     "  ",
			NextInvoiceNumber: "not a number",
		})
		assertDecimal(t, "0", s.TaxRate)
		assert.Equal(t, "INV", s.InvoicePrefix)
		assert.Equal(t, 1, s.NextInvoiceNumber)
	})

	t.Run("valid fields are kept", func(t *testing.T) {
		s := NormalizeSettings(&RawSettings{
			TaxRate:           "0.08",
			InvoicePrefix:     "GAR",
			NextInvoiceNumber: float64(1009),
			PaymentTerms:      "Net 15",
			CompanyInfo:       RawCompanyInfo{Name: "Speedy Garage", TaxID: "TX-1"},
		})
		assertDecimal(t, "0.08", s.TaxRate)
		assert.Equal(t, "GAR", s.InvoicePrefix)
		assert.Equal(t, 1009, s.NextInvoiceNumber)
		assert.Equal(t, "Net 15", s.PaymentTerms)
		assert.Equal(t, "Speedy Garage", s.Company.Name)
		assert.Equal(t, "TX-1", s.Company.TaxID)
	})

	t.Run("zero and negative counters fall back to one", func(t *testing.T) {
		assert.Equal(t, 1, NormalizeSettings(&RawSettings{NextInvoiceNumber: 0}).NextInvoiceNumber)
		assert.Equal(t, 1, NormalizeSettings(&RawSettings{NextInvoiceNumber: -4}).NextInvoiceNumber)
	})
}

func TestNormalizeInvoice(t *testing.T) {
	t.Run("string amounts and dates", func(t *testing.T) {
		inv := NormalizeInvoice(RawInvoice{
			ID:          "inv-1",
			CustomerID:  "c-1",
			Status:      "Sent",
			DateCreated: "2024-05-01T09:30:00Z",
			DueDate:     "2024-05-31",
			Subtotal:    "1000",
			Discount:    nil,
			TaxRate:     "0.1",
			TaxAmount:   "100",
			Total:       "1100",
			PaidAmount:  "",
			BalanceDue:  "1100",
			LineItems: []RawLineItem{
				{Description: "Service: Oil Change", Quantity: "1", UnitPrice: 1000, Total: "1000", Type: "service"},
			},
		})

		assert.Equal(t, InvoiceStatusSent, inv.Status)
		assertDecimal(t, "1000", inv.Subtotal)
		assertDecimal(t, "0", inv.Discount)
		assertDecimal(t, "0.1", inv.TaxRate)
		assertDecimal(t, "1100", inv.Total)
		assertDecimal(t, "0", inv.PaidAmount)
		assertDecimal(t, "1100", inv.BalanceDue)
		assert.Equal(t, time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC), inv.DateCreated.UTC())
		require.NotNil(t, inv.DueDate)
		assert.Equal(t, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), inv.DueDate.UTC())
		require.Len(t, inv.LineItems, 1)
		assertDecimal(t, "1000", inv.LineItems[0].UnitPrice)
		assert.Equal(t, LineItemService, inv.LineItems[0].Kind)
		assert.Empty(t, inv.CheckInvariants(decimal.Zero))
	})

	t.Run("legacy balance keys", func(t *testing.T) {
		inv := NormalizeInvoice(RawInvoice{LegacyBalanceDue: 250.5})
		assertDecimal(t, "250.5", inv.BalanceDue)

		inv = NormalizeInvoice(RawInvoice{SnakeBalanceDue: "75"})
		assertDecimal(t, "75", inv.BalanceDue)

		inv = NormalizeInvoice(RawInvoice{BalanceDue: "10", LegacyBalanceDue: "20"})
		assertDecimal(t, "10", inv.BalanceDue)
	})

	t.Run("unknown status becomes draft, overdue included", func(t *testing.T) {
		assert.Equal(t, InvoiceStatusDraft, NormalizeInvoice(RawInvoice{Status: "overdue"}).Status)
		assert.Equal(t, InvoiceStatusDraft, NormalizeInvoice(RawInvoice{}).Status)
	})

	t.Run("unparseable due date is dropped", func(t *testing.T) {
		inv := NormalizeInvoice(RawInvoice{DueDate: "someday"})
		assert.Nil(t, inv.DueDate)
		assert.True(t, inv.DateCreated.IsZero())
	})
}

func TestNormalizePayment(t *testing.T) {
	p := NormalizePayment(RawPayment{
		ID:        "p-1",
		InvoiceID: "inv-1",
		Amount:    "400",
		Method:    " Cash ",
		Date:      "2024-06-01T10:00:00.000Z",
		Reference: "R-1",
	})
	assertDecimal(t, "400", p.Amount)
	assert.Equal(t, PaymentMethodCash, p.Method)
	assert.Equal(t, 2024, p.Date.Year())
	assert.Equal(t, "R-1", p.Reference)

	unknown := NormalizePayment(RawPayment{Method: "voucher", Amount: "oops"})
	assert.Equal(t, PaymentMethod("voucher"), unknown.Method)
	assertDecimal(t, "0", unknown.Amount)
}

func TestNormalizeService(t *testing.T) {
	svc := NormalizeService(RawService{
		ID:             "s-1",
		Type:           "Oil Change",
		Cost:           "4500.00",
		Status:         "Completed",
		TaxIncluded:    "true",
		AdvancePayment: nil,
	})
	assertDecimal(t, "4500", svc.Cost)
	assert.True(t, svc.TaxIncluded)
	assert.True(t, svc.IsCompleted())
	assertDecimal(t, "0", svc.AdvancePayment)
	assert.Equal(t, PaymentMethodCash, svc.AdvancePaymentMethod)
}

func TestNormalize_FromJSON(t *testing.T) {
	payload := `{
		"customers": [{"id": "c1", "name": "Nimal"}],
		"vehicles": [{"id": "v1", "customerId": "c1", "plateNumber": "CAB-1234"}],
		"services": [{"id": "s1", "vehicleId": "v1", "type": "Brake Service", "cost": "1200", "status": "Completed"}],
		"invoices": [{
			"id": "i1", "customerId": "c1", "vehicleId": "v1", "serviceId": "s1",
			"invoiceNumber": "INV-0001", "dateCreated": "2024-06-01T00:00:00Z",
			"subtotal": 1200, "taxAmount": 0, "total": "1200",
			"paidAmount": 200, "balancedue": 1000, "status": "sent"
		}],
		"payments": [{"id": "p1", "invoiceId": "i1", "amount": "200", "method": "card", "date": "2024-06-02"}]
	}`

	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.UseNumber()
	var raw RawSnapshot
	require.NoError(t, decoder.Decode(&raw))

	snap := Normalize(&raw)
	assert.Equal(t, uint64(1), snap.Version())
	assert.Equal(t, "INV", snap.Settings().InvoicePrefix)

	inv, ok := snap.Invoice("i1")
	require.True(t, ok)
	assertDecimal(t, "1000", inv.BalanceDue)
	assertDecimal(t, "200", inv.PaidAmount)
	assert.Empty(t, Audit(snap))

	c, ok := snap.Customer("c1")
	require.True(t, ok)
	assert.Equal(t, "Nimal", c.Name)
	v, ok := snap.Vehicle("v1")
	require.True(t, ok)
	assert.Equal(t, "CAB-1234", v.PlateNumber)
}

func TestNormalize_NilSnapshot(t *testing.T) {
	snap := Normalize(nil)
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.InvoiceCount())
	assert.Equal(t, DefaultSettings().InvoicePrefix, snap.Settings().InvoicePrefix)
}
