package billing

import (
	"testing"

	"github.com/garage/billing/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rulesOf(violations []Violation) []Rule {
	rules := make([]Rule, 0, len(violations))
	for _, v := range violations {
		rules = append(rules, v.Rule)
	}
	return rules
}

func TestInvoice_CheckInvariants(t *testing.T) {
	t.Run("consistent invoice", func(t *testing.T) {
		assert.Empty(t, createTaxIncludedInvoice(t).CheckInvariants(decimal.Zero))
	})

	t.Run("rounding within a cent is tolerated", func(t *testing.T) {
		inv := createTestInvoice(t, "1", "cust-1", "100")
		inv.Total = dec("100.009")
		inv.BalanceDue = dec("100.009")
		assert.Empty(t, inv.CheckInvariants(decimal.Zero))
	})

	t.Run("a full cent is not", func(t *testing.T) {
		inv := createTestInvoice(t, "1", "cust-1", "100")
		inv.Total = dec("100.01")
		inv.BalanceDue = dec("100.01")
		assert.Equal(t, []Rule{RuleTotalArithmetic}, rulesOf(inv.CheckInvariants(decimal.Zero)))
	})

	t.Run("paid amount drifted from payments", func(t *testing.T) {
		inv := createTestInvoice(t, "1", "cust-1", "100")
		inv.PaidAmount = dec("30")
		inv.BalanceDue = dec("70")
		assert.Equal(t, []Rule{RulePaidMatches}, rulesOf(inv.CheckInvariants(dec("20"))))
	})

	t.Run("overpaid and marked paid with balance", func(t *testing.T) {
		inv := createTestInvoice(t, "1", "cust-1", "100")
		inv.PaidAmount = dec("120")
		inv.BalanceDue = dec("5")
		inv.Status = InvoiceStatusPaid

		rules := rulesOf(inv.CheckInvariants(dec("120")))
		assert.Equal(t, []Rule{RuleBalanceMatches, RuleBalanceNegative, RulePaidWithBalance}, rules)
	})
}

func TestAudit(t *testing.T) {
	good := createTestInvoice(t, "1", "cust-1", "100")
	good.PaidAmount = dec("40")
	good.BalanceDue = dec("60")
	bad := createTestInvoice(t, "2", "cust-1", "100")
	bad.PaidAmount = dec("50")
	bad.BalanceDue = dec("50")

	snap := NewSnapshot(SnapshotData{
		Invoices: []*Invoice{good, bad},
		Payments: []*Payment{
			{ID: "p1", InvoiceID: "1", Amount: dec("40"), Method: PaymentMethodCash, Date: testNow},
			{ID: "p2", InvoiceID: "gone", Amount: dec("5"), Method: PaymentMethodCash, Date: testNow},
		},
	})

	violations := Audit(snap)
	require.Len(t, violations, 2)
	assert.Equal(t, RulePaidMatches, violations[0].Rule)
	assert.Equal(t, "2", violations[0].InvoiceID)
	assert.Equal(t, "INV-2 [paid_matches]: paid amount 50.00 != payments 0.00", violations[0].String())
	assert.Equal(t, RuleOrphanPayment, violations[1].Rule)
	assert.Equal(t, "p2", violations[1].PaymentID)
}

func TestAudit_HoldsAfterEveryOperation(t *testing.T) {
	snap := createScenarioE(t)
	steps := []func(*Snapshot) *Snapshot{
		func(s *Snapshot) *Snapshot {
			res, err := RecordPayment(s, "1", cashPayment("50"), testNow)
			require.NoError(t, err)
			return s.WithPayment(res.Invoice, res.Payment)
		},
		func(s *Snapshot) *Snapshot {
			res, err := RecordPayment(s, "2", cashPayment("300"), testNow)
			require.NoError(t, err)
			return s.WithPayment(res.Invoice, res.Payment)
		},
		func(s *Snapshot) *Snapshot {
			p := s.PaymentsFor("2")[0]
			res, err := VoidPayment(s, p.ID, testNow)
			require.NoError(t, err)
			return s.WithoutPayment(res.Invoice, res.Payment.ID)
		},
		func(s *Snapshot) *Snapshot {
			inv, _, err := UpdateStatus(s, "3", InvoiceStatusCanceled, testNow)
			require.NoError(t, err)
			return s.WithInvoice(inv)
		},
		func(s *Snapshot) *Snapshot {
			inv, _, err := DeleteInvoice(s, "1", testNow)
			require.NoError(t, err)
			return s.WithoutInvoice(inv.ID)
		},
	}

	for i, step := range steps {
		snap = step(snap)
		assert.Empty(t, Audit(snap), "step %d", i)
	}
}

func TestInvoice_Reconcile(t *testing.T) {
	t.Run("repairs drifted amounts and settles", func(t *testing.T) {
		inv := createTestInvoice(t, "1", "cust-1", "100")
		inv.PaidAmount = dec("10")
		inv.BalanceDue = dec("90")
		payments := []*Payment{
			{ID: "a", InvoiceID: "1", Amount: dec("60")},
			{ID: "b", InvoiceID: "1", Amount: dec("40")},
		}

		assert.True(t, inv.Reconcile(payments))
		assertDecimal(t, "100", inv.PaidAmount)
		assertDecimal(t, "0", inv.BalanceDue)
		assert.Equal(t, InvoiceStatusPaid, inv.Status)
		assert.Empty(t, inv.CheckInvariants(dec("100")))
	})

	t.Run("paid with balance goes back to sent", func(t *testing.T) {
		inv := createTestInvoice(t, "1", "cust-1", "100")
		inv.Status = InvoiceStatusPaid
		inv.PaidAmount = dec("100")
		inv.BalanceDue = dec("0")

		assert.True(t, inv.Reconcile(nil))
		assertDecimal(t, "100", inv.BalanceDue)
		assert.Equal(t, InvoiceStatusSent, inv.Status)
	})

	t.Run("canceled stays canceled", func(t *testing.T) {
		inv := createTestInvoice(t, "1", "cust-1", "100")
		inv.Status = InvoiceStatusCanceled

		assert.True(t, inv.Reconcile([]*Payment{{Amount: dec("100")}}))
		assert.Equal(t, InvoiceStatusCanceled, inv.Status)
	})

	t.Run("consistent invoice is untouched", func(t *testing.T) {
		inv := createTestInvoice(t, "1", "cust-1", "100")
		assert.False(t, inv.Reconcile(nil))
	})
}

func TestReconcileInvoice(t *testing.T) {
	inv := createTestInvoice(t, "1", "cust-1", "100")
	inv.PaidAmount = dec("0")
	snap := NewSnapshot(SnapshotData{
		Invoices: []*Invoice{inv},
		Payments: []*Payment{{ID: "p1", InvoiceID: "1", Amount: dec("25"), Method: PaymentMethodCash}},
	})

	fixed, changed, err := ReconcileInvoice(snap, "1")
	require.NoError(t, err)
	assert.True(t, changed)
	assertDecimal(t, "25", fixed.PaidAmount)
	assertDecimal(t, "75", fixed.BalanceDue)

	stored, _ := snap.Invoice("1")
	assertDecimal(t, "0", stored.PaidAmount)

	_, _, err = ReconcileInvoice(snap, "missing")
	assert.True(t, shared.IsNotFound(err))
}
