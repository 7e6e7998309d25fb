package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSweep_RefetchesAndCountsOverdue(t *testing.T) {
	store := newFetchingStore()
	svc, logs := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), result.Version)
	assert.Empty(t, result.Violations)
	assert.Equal(t, 1, result.OverdueCount)
	assertDecimal(t, "600", result.OverdueAmount)
	store.AssertNumberOfCalls(t, "Fetch", 2)

	entries := logs.FilterMessage("Billing sweep completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(1), fields["overdue_count"])
	assert.Equal(t, "600.00", fields["overdue_amount"])
}

func TestSweep_LogsViolations(t *testing.T) {
	raw := rawFixture()
	raw.Payments = append(raw.Payments, billing.RawPayment{
		ID: "p9", InvoiceID: "gone", Amount: 50, Method: "cash", Date: "2024-06-01T10:00:00Z",
	})
	store := new(MockStore)
	store.On("Fetch", mock.Anything).Return(raw, nil)
	svc, logs := newTestService(t, store)

	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Violations, 1)
	assert.Equal(t, billing.RuleOrphanPayment, result.Violations[0].Rule)
	warnings := logs.FilterMessage("Billing audit violation").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "p9", warnings[0].ContextMap()["payment_id"])
}

func TestSweep_FetchFailure(t *testing.T) {
	store := new(MockStore)
	store.On("Fetch", mock.Anything).Return(nil, errors.New("connection reset"))
	svc, _ := newTestService(t, store)

	_, err := svc.Sweep(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsTransport(err))
}

func TestDailySummary(t *testing.T) {
	svc, logs := newTestService(t, newFetchingStore())

	summary, err := svc.DailySummary(context.Background())
	require.NoError(t, err)

	assertDecimal(t, "900", summary.TotalOutstanding)
	assert.Equal(t, 2, summary.OutstandingCount)
	entries := logs.FilterMessage("Daily billing summary").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "900.00", entries[0].ContextMap()["outstanding"])
	assert.Equal(t, int64(1), entries[0].ContextMap()["overdue_count"])
}
