package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/domain/shared"
	"github.com/garage/billing/internal/infrastructure/config"
	"github.com/garage/billing/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var storeNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newSQLiteDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedGarage(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&models.CustomerModel{BaseModel: models.BaseModel{ID: "c1"}, Name: "Nimal Perera"}).Error)
	require.NoError(t, db.Create(&models.VehicleModel{BaseModel: models.BaseModel{ID: "v1"}, CustomerID: "c1", Make: "Toyota", PlateNumber: "CAB-1234"}).Error)
	require.NoError(t, db.Create(&models.ServiceModel{
		BaseModel:            models.BaseModel{ID: "s1"},
		VehicleID:            "v1",
		Type:                 "Full Service",
		Cost:                 decimal.NewFromInt(1000),
		Status:               "Completed",
		AdvancePayment:       decimal.NewFromInt(200),
		AdvancePaymentMethod: "cash",
	}).Error)
}

func fetchSnapshot(t *testing.T, store *GormBillingStore) *billing.Snapshot {
	t.Helper()
	raw, err := store.Fetch(context.Background())
	require.NoError(t, err)
	return billing.Normalize(raw)
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func TestGormBillingStore_FetchEmpty(t *testing.T) {
	db := newSQLiteDatabase(t)

	t.Run("without defaults the domain defaults apply", func(t *testing.T) {
		snap := fetchSnapshot(t, NewGormBillingStore(db.DB))
		assert.Equal(t, 0, snap.InvoiceCount())
		assert.Equal(t, billing.DefaultInvoicePrefix, snap.Settings().InvoicePrefix)
	})

	t.Run("configured defaults fill the missing settings row", func(t *testing.T) {
		store := NewGormBillingStore(db.DB, WithDefaultSettings(billing.Settings{
			TaxRate:           decimal.RequireFromString("0.1"),
			InvoicePrefix:     "GAR",
			NextInvoiceNumber: 7,
			PaymentTerms:      "Net 14",
		}))
		settings := fetchSnapshot(t, store).Settings()
		assert.Equal(t, "GAR", settings.InvoicePrefix)
		assert.Equal(t, 7, settings.NextInvoiceNumber)
		assert.Equal(t, 14, settings.PaymentTermDays())
		assertDecimal(t, "0.1", settings.TaxRate)
	})
}

func TestGormBillingStore_InvoiceLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDatabase(t)
	seedGarage(t, db.DB)
	store := NewGormBillingStore(db.DB, WithDefaultSettings(billing.Settings{
		TaxRate:           decimal.RequireFromString("0.1"),
		InvoicePrefix:     "GAR",
		NextInvoiceNumber: 1,
		PaymentTerms:      "Net 30",
	}))

	// bill the completed service
	creation, err := billing.CreateInvoiceForService(fetchSnapshot(t, store), "s1", billing.InvoiceOptions{}, storeNow)
	require.NoError(t, err)
	require.True(t, creation.Created)
	require.NotNil(t, creation.AdvancePayment)
	require.NoError(t, store.CreateInvoice(ctx, creation.Invoice, creation.AdvancePayment, creation.Settings))

	snap := fetchSnapshot(t, store)
	inv, ok := snap.Invoice(creation.Invoice.ID)
	require.True(t, ok)
	assert.Equal(t, "GAR-0001", inv.InvoiceNumber)
	assert.Equal(t, "c1", inv.CustomerID)
	assertDecimal(t, "1100", inv.Total)
	assertDecimal(t, "200", inv.PaidAmount)
	assertDecimal(t, "900", inv.BalanceDue)
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, creation.Invoice.LineItems[0].Description, inv.LineItems[0].Description)
	assertDecimal(t, "1000", inv.LineItems[0].Total)
	require.NotNil(t, inv.DueDate)
	assert.WithinDuration(t, *creation.Invoice.DueDate, *inv.DueDate, time.Second)
	assert.Len(t, snap.PaymentsFor(inv.ID), 1)
	assert.Equal(t, 2, snap.Settings().NextInvoiceNumber)
	assert.Empty(t, billing.Audit(snap))

	// record a payment
	paid, err := billing.RecordPayment(snap, inv.ID, billing.PaymentInput{
		Amount:    decimal.NewFromInt(300),
		Method:    billing.PaymentMethodCard,
		Reference: "TX-9",
	}, storeNow)
	require.NoError(t, err)
	require.NoError(t, store.SavePayment(ctx, paid.Invoice, paid.Payment))

	snap = fetchSnapshot(t, store)
	inv, _ = snap.Invoice(inv.ID)
	assertDecimal(t, "500", inv.PaidAmount)
	assertDecimal(t, "600", inv.BalanceDue)
	require.Len(t, snap.PaymentsFor(inv.ID), 2)
	stored, ok := snap.Payment(paid.Payment.ID)
	require.True(t, ok)
	assert.Equal(t, billing.PaymentMethodCard, stored.Method)
	assert.Equal(t, "TX-9", stored.Reference)

	// void it again
	voided, err := billing.VoidPayment(snap, paid.Payment.ID, storeNow)
	require.NoError(t, err)
	require.NoError(t, store.RemovePayment(ctx, voided.Invoice, paid.Payment.ID))

	snap = fetchSnapshot(t, store)
	inv, _ = snap.Invoice(inv.ID)
	assertDecimal(t, "200", inv.PaidAmount)
	assert.Len(t, snap.PaymentsFor(inv.ID), 1)

	// change status
	updated, _, err := billing.UpdateStatus(snap, inv.ID, billing.InvoiceStatusSent, storeNow)
	require.NoError(t, err)
	require.NoError(t, store.SaveInvoice(ctx, updated))

	snap = fetchSnapshot(t, store)
	inv, _ = snap.Invoice(inv.ID)
	assert.Equal(t, billing.InvoiceStatusSent, inv.Status)

	// delete cascades to payments
	require.NoError(t, store.RemoveInvoice(ctx, inv.ID))
	snap = fetchSnapshot(t, store)
	assert.Equal(t, 0, snap.InvoiceCount())
	assert.Equal(t, 0, snap.PaymentCount())
	assert.Equal(t, 2, snap.Settings().NextInvoiceNumber)

	err = store.RemoveInvoice(ctx, inv.ID)
	assert.True(t, shared.IsNotFound(err))
}

func TestGormBillingStore_SaveInvoiceInserts(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDatabase(t)
	store := NewGormBillingStore(db.DB)

	due := storeNow.AddDate(0, 0, 30)
	inv := &billing.Invoice{
		ID:            "inv-new",
		CustomerID:    "c1",
		InvoiceNumber: "INV-0100",
		DateCreated:   storeNow,
		DueDate:       &due,
		LineItems: []billing.LineItem{
			billing.NewLineItem("Brake pads", decimal.NewFromInt(2), decimal.NewFromInt(150), billing.LineItemParts),
		},
		Subtotal:   decimal.NewFromInt(300),
		Total:      decimal.NewFromInt(300),
		BalanceDue: decimal.NewFromInt(300),
		Status:     billing.InvoiceStatusDraft,
	}
	require.NoError(t, store.SaveInvoice(ctx, inv))

	inv.Notes = "customer supplied oil"
	require.NoError(t, store.SaveInvoice(ctx, inv))

	snap := fetchSnapshot(t, store)
	require.Equal(t, 1, snap.InvoiceCount())
	got, ok := snap.Invoice("inv-new")
	require.True(t, ok)
	assert.Equal(t, "customer supplied oil", got.Notes)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, billing.LineItemParts, got.LineItems[0].Kind)
	assertDecimal(t, "150", got.LineItems[0].UnitPrice)
}

func TestGormBillingStore_SaveSettings(t *testing.T) {
	ctx := context.Background()
	store := NewGormBillingStore(newSQLiteDatabase(t).DB)

	settings := billing.DefaultSettings()
	settings.InvoicePrefix = "GAR"
	settings.Company.Name = "Perera Motors"
	require.NoError(t, store.SaveSettings(ctx, settings))

	settings.NextInvoiceNumber = 42
	require.NoError(t, store.SaveSettings(ctx, settings))

	got := fetchSnapshot(t, store).Settings()
	assert.Equal(t, "GAR", got.InvoicePrefix)
	assert.Equal(t, 42, got.NextInvoiceNumber)
	assert.Equal(t, "Perera Motors", got.Company.Name)
}

func TestGormBillingStore_RemoveUnknownPayment(t *testing.T) {
	ctx := context.Background()
	store := NewGormBillingStore(newSQLiteDatabase(t).DB)

	inv := &billing.Invoice{ID: "inv-1", CustomerID: "c1", InvoiceNumber: "INV-0001", DateCreated: storeNow, Status: billing.InvoiceStatusSent}
	require.NoError(t, store.SaveInvoice(ctx, inv))

	err := store.RemovePayment(ctx, inv, "missing")
	assert.True(t, shared.IsNotFound(err))

	err = store.SavePayment(ctx, &billing.Invoice{ID: "ghost"}, &billing.Payment{ID: "p1", InvoiceID: "ghost"})
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, 0, fetchSnapshot(t, store).PaymentCount())
}

func TestInvoiceModel_ToRawToleratesBadLineItems(t *testing.T) {
	m := models.InvoiceModel{BaseModel: models.BaseModel{ID: "inv"}, LineItems: []byte(`{"not":"an array"}`)}
	raw := m.ToRaw()
	assert.Empty(t, raw.LineItems)
	assert.Nil(t, raw.DueDate)
}

// newMockDatabase creates a Database over a mocked postgres connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return &Database{DB: gormDB, driver: "postgres"}, mock
}

func TestGormBillingStore_TransportFailures(t *testing.T) {
	ctx := context.Background()
	connReset := errors.New("read tcp: connection reset by peer")

	t.Run("fetch", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "customers"`).WillReturnError(connReset)
		mock.ExpectRollback()

		raw, err := NewGormBillingStore(db.DB).Fetch(ctx)
		assert.Nil(t, raw)
		assert.True(t, shared.IsTransport(err))
		assert.ErrorIs(t, err, connReset)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("save payment rolls back", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "invoices"`).WillReturnError(connReset)
		mock.ExpectRollback()

		inv := &billing.Invoice{ID: "inv1", InvoiceNumber: "INV-0001", Status: billing.InvoiceStatusSent}
		err := NewGormBillingStore(db.DB).SavePayment(ctx, inv, &billing.Payment{ID: "p1", InvoiceID: "inv1"})
		assert.True(t, shared.IsTransport(err))
		assert.Equal(t, shared.ErrTransport.Code, shared.CodeOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("remove invoice rolls back", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "payments"`).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`DELETE FROM "invoices"`).WillReturnError(connReset)
		mock.ExpectRollback()

		err := NewGormBillingStore(db.DB).RemoveInvoice(ctx, "inv1")
		assert.True(t, shared.IsTransport(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin fails", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectBegin().WillReturnError(connReset)

		err := NewGormBillingStore(db.DB).SaveSettings(ctx, billing.DefaultSettings())
		assert.True(t, shared.IsTransport(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStoreError(t *testing.T) {
	assert.NoError(t, storeError("fetch", nil))
	assert.True(t, shared.IsNotFound(storeError("save_invoice", gorm.ErrRecordNotFound)))

	conflict := shared.NewValidationError("EXCEEDS_BALANCE", "too much")
	assert.Same(t, conflict, storeError("save_payment", conflict))

	err := storeError("save_settings", errors.New("disk full"))
	assert.True(t, shared.IsTransport(err))
	assert.Contains(t, err.Error(), "save_settings")
}
