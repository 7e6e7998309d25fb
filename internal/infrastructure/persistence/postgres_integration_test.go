//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/infrastructure/config"
	"github.com/garage/billing/internal/infrastructure/migration"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newPostgresDatabase starts a throwaway postgres and applies the embedded
// migrations. Run with: go test -tags integration ./internal/infrastructure/persistence/
func newPostgresDatabase(t *testing.T) *Database {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("garage_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("billing"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := NewDatabase(&config.DatabaseConfig{
		Driver:       "postgres",
		Host:         host,
		Port:         port.Int(),
		User:         "postgres",
		Password:     "billing",
		DBName:       "garage_test",
		SSLMode:      "disable",
		MaxOpenConns: 4,
		MaxIdleConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	m, err := migration.New(sqlDB, migration.Options{Driver: migration.DriverPostgres}, nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	return db
}

func TestIntegration_PostgresInvoiceLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDatabase(t)
	seedGarage(t, db.DB)
	store := NewGormBillingStore(db.DB, WithDefaultSettings(billing.Settings{
		TaxRate:           decimal.RequireFromString("0.1"),
		InvoicePrefix:     "GAR",
		NextInvoiceNumber: 1,
		PaymentTerms:      "Net 30",
	}))

	creation, err := billing.CreateInvoiceForService(fetchSnapshot(t, store), "s1", billing.InvoiceOptions{}, storeNow)
	require.NoError(t, err)
	require.NoError(t, store.CreateInvoice(ctx, creation.Invoice, creation.AdvancePayment, creation.Settings))

	snap := fetchSnapshot(t, store)
	inv, ok := snap.Invoice(creation.Invoice.ID)
	require.True(t, ok)
	assert.Equal(t, "GAR-0001", inv.InvoiceNumber)
	assertDecimal(t, "1100", inv.Total)
	assertDecimal(t, "900", inv.BalanceDue)
	assert.Equal(t, 2, snap.Settings().NextInvoiceNumber)

	paid, err := billing.RecordPayment(snap, inv.ID, billing.PaymentInput{
		Amount: decimal.NewFromInt(900),
		Method: billing.PaymentMethodBankTransfer,
	}, storeNow)
	require.NoError(t, err)
	require.NoError(t, store.SavePayment(ctx, paid.Invoice, paid.Payment))

	snap = fetchSnapshot(t, store)
	inv, _ = snap.Invoice(inv.ID)
	assert.Equal(t, billing.InvoiceStatusPaid, inv.Status)
	assert.True(t, inv.BalanceDue.IsZero())
	assert.Empty(t, billing.Audit(snap))

	require.NoError(t, store.RemoveInvoice(ctx, inv.ID))
	snap = fetchSnapshot(t, store)
	assert.Equal(t, 0, snap.InvoiceCount())
	assert.Equal(t, 0, snap.PaymentCount())
}
