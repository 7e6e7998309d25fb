package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createRevenueSnapshot(t *testing.T) *Snapshot {
	oil := createTestInvoice(t, "1", "cust-1", "1000")
	brakes := createTestInvoice(t, "2", "cust-1", "1000")
	snap := NewSnapshot(SnapshotData{
		Services: []Service{
			{ID: "svc-1", Type: "Oil Change", Status: ServiceStatusCompleted},
			{ID: "svc-2", Type: "Brake Service", Status: ServiceStatusCompleted},
		},
		Invoices: []*Invoice{oil, brakes},
	})

	// Scenario F
	inputs := []struct {
		invoiceID string
		amount    string
		method    PaymentMethod
	}{
		{"1", "100", PaymentMethodCash},
		{"1", "200", PaymentMethodCash},
		{"2", "50", PaymentMethodCard},
	}
	for i, in := range inputs {
		res, err := RecordPayment(snap, in.invoiceID, PaymentInput{
			Amount: dec(in.amount),
			Method: in.method,
			Date:   testNow.AddDate(0, 0, -i),
		}, testNow)
		require.NoError(t, err)
		snap = snap.WithPayment(res.Invoice, res.Payment)
	}
	return snap
}

func TestRevenueReport(t *testing.T) {
	snap := createRevenueSnapshot(t)

	report := RevenueReport(snap, testNow.AddDate(0, 0, -7), testNow)

	assertDecimal(t, "350", report.TotalRevenue)
	assert.Equal(t, 3, report.PaymentCount)
	assertDecimal(t, "116.67", report.AveragePayment)
	require.Len(t, report.PaymentMethods, 2)
	assertDecimal(t, "300", report.PaymentMethods[PaymentMethodCash])
	assertDecimal(t, "50", report.PaymentMethods[PaymentMethodCard])
	assertDecimal(t, "300", report.ServiceRevenue["Oil Change"])
	assertDecimal(t, "50", report.ServiceRevenue["Brake Service"])
}

func TestRevenueReport_BoundsAreInclusive(t *testing.T) {
	snap := createRevenueSnapshot(t)

	// payments are dated now, now-1d, now-2d
	report := RevenueReport(snap, testNow.AddDate(0, 0, -1), testNow)
	assertDecimal(t, "300", report.TotalRevenue)
	assert.Equal(t, 2, report.PaymentCount)

	report = RevenueReport(snap, testNow.AddDate(0, 0, -2), testNow.AddDate(0, 0, -2))
	assertDecimal(t, "50", report.TotalRevenue)
	assert.Equal(t, 1, report.PaymentCount)
}

func TestRevenueReport_Empty(t *testing.T) {
	report := RevenueReport(createRevenueSnapshot(t), testNow.AddDate(1, 0, 0), testNow.AddDate(2, 0, 0))

	assertDecimal(t, "0", report.TotalRevenue)
	assertDecimal(t, "0", report.AveragePayment)
	assert.Equal(t, 0, report.PaymentCount)
	assert.NotNil(t, report.PaymentMethods)
	assert.Empty(t, report.PaymentMethods)
	assert.Empty(t, report.ServiceRevenue)
}

func TestRevenueReport_UnresolvedServiceIsGeneral(t *testing.T) {
	inv := createTestInvoice(t, "1", "cust-1", "100")
	inv.ServiceID = ""
	snap := NewSnapshot(SnapshotData{
		Invoices: []*Invoice{inv},
		Payments: []*Payment{
			{ID: "p1", InvoiceID: "1", Amount: dec("40"), Method: PaymentMethodCheck, Date: testNow},
			{ID: "p2", InvoiceID: "missing", Amount: dec("10"), Method: PaymentMethod("voucher"), Date: testNow},
		},
	})

	report := RevenueReport(snap, testNow, testNow)

	assertDecimal(t, "50", report.TotalRevenue)
	assertDecimal(t, "50", report.ServiceRevenue[GeneralServiceType])
	assertDecimal(t, "10", report.PaymentMethods[PaymentMethod("voucher")])
}
