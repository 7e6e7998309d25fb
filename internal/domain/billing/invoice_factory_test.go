package billing

import (
	"testing"

	"github.com/garage/billing/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createServiceSnapshot(svc Service, settings Settings, invoices ...*Invoice) *Snapshot {
	return NewSnapshot(SnapshotData{
		Customers: []Customer{{ID: "cust-1", Name: "Kamal"}},
		Vehicles:  []Vehicle{{ID: "veh-1", CustomerID: "cust-1"}},
		Services:  []Service{svc},
		Invoices:  invoices,
		Settings:  settings,
	})
}

func completedService(cost string) Service {
	return Service{
		ID:        "svc-new",
		VehicleID: "veh-1",
		Type:      "Oil Change",
		Cost:      dec(cost),
		Status:    ServiceStatusCompleted,
	}
}

func taxSettings(rate string) Settings {
	s := DefaultSettings()
	s.TaxRate = dec(rate)
	return s
}

func TestCreateInvoiceForService_TaxExcluded(t *testing.T) {
	snap := createServiceSnapshot(completedService("1000"), taxSettings("0.1"))

	res, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{Discount: dec("100")}, testNow)
	require.NoError(t, err)
	require.True(t, res.Created)

	inv := res.Invoice
	assert.Equal(t, "INV-0001", inv.InvoiceNumber)
	assert.Equal(t, "cust-1", inv.CustomerID)
	assert.Equal(t, "veh-1", inv.VehicleID)
	assert.Equal(t, InvoiceStatusDraft, inv.Status)
	assertDecimal(t, "1000", inv.Subtotal)
	assertDecimal(t, "100", inv.Discount)
	assertDecimal(t, "90", inv.TaxAmount)
	assertDecimal(t, "990", inv.Total)
	assertDecimal(t, "990", inv.BalanceDue)
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, testNow.AddDate(0, 0, 30), *inv.DueDate)
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, "Service: Oil Change", inv.LineItems[0].Description)
	assert.Empty(t, inv.CheckInvariants(decimal.Zero))

	assert.Nil(t, res.AdvancePayment)
	assert.Equal(t, 2, res.Settings.NextInvoiceNumber)
	assert.Equal(t, 1, snap.Settings().NextInvoiceNumber)

	events := inv.PendingEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeInvoiceCreated, events[0].EventType())
}

func TestCreateInvoiceForService_TaxIncluded(t *testing.T) {
	svc := completedService("1100")
	svc.TaxIncluded = true
	snap := createServiceSnapshot(svc, taxSettings("0.1"))

	res, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{}, testNow)
	require.NoError(t, err)

	inv := res.Invoice
	assertDecimal(t, "1000", inv.Subtotal)
	assertDecimal(t, "100", inv.TaxAmount)
	assertDecimal(t, "1100", inv.Total)
	assert.Empty(t, inv.CheckInvariants(decimal.Zero))
}

func TestCreateInvoiceForService_TaxIncludedWithDiscount(t *testing.T) {
	svc := completedService("1000")
	svc.TaxIncluded = true
	snap := createServiceSnapshot(svc, taxSettings("0.1"))

	res, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{Discount: dec("50")}, testNow)
	require.NoError(t, err)

	inv := res.Invoice
	assertDecimal(t, "909.09", inv.Subtotal)
	assertDecimal(t, "90.91", inv.TaxAmount)
	assertDecimal(t, "950", inv.Total)
	assert.Empty(t, inv.CheckInvariants(decimal.Zero))
}

func TestCreateInvoiceForService_AdvancePayment(t *testing.T) {
	t.Run("partial advance", func(t *testing.T) {
		svc := completedService("500")
		svc.AdvancePayment = dec("200")
		svc.AdvancePaymentMethod = PaymentMethodCard
		snap := createServiceSnapshot(svc, DefaultSettings())

		res, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{}, testNow)
		require.NoError(t, err)
		require.NotNil(t, res.AdvancePayment)

		assertDecimal(t, "200", res.AdvancePayment.Amount)
		assert.Equal(t, PaymentMethodCard, res.AdvancePayment.Method)
		assert.Equal(t, AdvancePaymentNote, res.AdvancePayment.Notes)
		assert.Equal(t, res.Invoice.ID, res.AdvancePayment.InvoiceID)
		assertDecimal(t, "200", res.Invoice.PaidAmount)
		assertDecimal(t, "300", res.Invoice.BalanceDue)
		assert.Equal(t, InvoiceStatusDraft, res.Invoice.Status)
		assert.Empty(t, res.Invoice.CheckInvariants(res.AdvancePayment.Amount))
	})

	t.Run("advance covers the total", func(t *testing.T) {
		svc := completedService("500")
		svc.AdvancePayment = dec("500")
		svc.AdvancePaymentMethod = PaymentMethodCash
		snap := createServiceSnapshot(svc, DefaultSettings())

		res, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{}, testNow)
		require.NoError(t, err)
		assert.Equal(t, InvoiceStatusPaid, res.Invoice.Status)
		assertDecimal(t, "0", res.Invoice.BalanceDue)
	})

	t.Run("advance above the total is rejected", func(t *testing.T) {
		svc := completedService("500")
		svc.AdvancePayment = dec("600")
		svc.AdvancePaymentMethod = PaymentMethodCash
		snap := createServiceSnapshot(svc, DefaultSettings())

		_, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{}, testNow)
		require.Error(t, err)
		assert.Equal(t, "EXCEEDS_BALANCE", shared.CodeOf(err))
	})
}

func TestCreateInvoiceForService_Errors(t *testing.T) {
	t.Run("unknown service", func(t *testing.T) {
		snap := createServiceSnapshot(completedService("10"), DefaultSettings())
		_, err := CreateInvoiceForService(snap, "nope", InvoiceOptions{}, testNow)
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("unknown vehicle", func(t *testing.T) {
		svc := completedService("10")
		svc.VehicleID = "ghost"
		snap := createServiceSnapshot(svc, DefaultSettings())
		_, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{}, testNow)
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("service not completed", func(t *testing.T) {
		svc := completedService("10")
		svc.Status = ServiceStatusPending
		snap := createServiceSnapshot(svc, DefaultSettings())
		_, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{}, testNow)
		assert.Equal(t, "SERVICE_NOT_COMPLETED", shared.CodeOf(err))
	})

	t.Run("negative discount", func(t *testing.T) {
		snap := createServiceSnapshot(completedService("10"), DefaultSettings())
		_, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{Discount: dec("-1")}, testNow)
		assert.Equal(t, "INVALID_DISCOUNT", shared.CodeOf(err))
	})

	t.Run("discount above subtotal", func(t *testing.T) {
		snap := createServiceSnapshot(completedService("10"), DefaultSettings())
		_, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{Discount: dec("11")}, testNow)
		assert.Equal(t, "DISCOUNT_EXCEEDS_SUBTOTAL", shared.CodeOf(err))
	})
}

func TestCreateInvoiceForService_AlreadyBilled(t *testing.T) {
	existing := createTestInvoice(t, "old", "cust-1", "10")
	existing.ServiceID = "svc-new"
	snap := createServiceSnapshot(completedService("10"), DefaultSettings(), existing)

	res, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{}, testNow)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "old", res.Invoice.ID)
	assert.Equal(t, 1, res.Settings.NextInvoiceNumber)
}

func TestCreateInvoiceForService_SkipsTakenNumbers(t *testing.T) {
	taken := createTestInvoice(t, "x", "cust-1", "10")
	taken.InvoiceNumber = "INV-0001"
	snap := createServiceSnapshot(completedService("10"), DefaultSettings(), taken)

	res, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{}, testNow)
	require.NoError(t, err)
	assert.Equal(t, "INV-0002", res.Invoice.InvoiceNumber)
	assert.Equal(t, 3, res.Settings.NextInvoiceNumber)
}

func TestCreateInvoiceForService_CustomLineItemsAndTerms(t *testing.T) {
	settings := DefaultSettings()
	settings.PaymentTerms = "Due on receipt"
	snap := createServiceSnapshot(completedService("100"), settings)
	items := []LineItem{
		NewLineItem("Labour", dec("1"), dec("60"), LineItemService),
		NewLineItem("Oil filter", dec("2"), dec("20"), LineItemParts),
	}

	res, err := CreateInvoiceForService(snap, "svc-new", InvoiceOptions{LineItems: items, Notes: "thanks"}, testNow)
	require.NoError(t, err)
	assert.Len(t, res.Invoice.LineItems, 2)
	assert.Equal(t, "thanks", res.Invoice.Notes)
	assert.Equal(t, "Due on receipt", res.Invoice.PaymentTerms)
	assert.Equal(t, testNow, *res.Invoice.DueDate)
}
