package persistence

import (
	"context"
	"errors"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/domain/shared"
	"github.com/garage/billing/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBillingStore implements billing.Store using GORM. Every multi-row
// write runs in one transaction; driver failures surface as transport
// errors.
type GormBillingStore struct {
	db       *gorm.DB
	defaults *billing.RawSettings
}

// BillingStoreOption configures a GormBillingStore
type BillingStoreOption func(*GormBillingStore)

// WithDefaultSettings sets the settings reported while the settings table
// is still empty
func WithDefaultSettings(settings billing.Settings) BillingStoreOption {
	return func(s *GormBillingStore) {
		var m models.BillingSettingsModel
		m.FromDomain(settings)
		s.defaults = m.ToRaw()
	}
}

// NewGormBillingStore creates a new GormBillingStore
func NewGormBillingStore(db *gorm.DB, opts ...BillingStoreOption) *GormBillingStore {
	s := &GormBillingStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch reads every billing record inside one transaction so the snapshot
// is consistent
func (s *GormBillingStore) Fetch(ctx context.Context) (*billing.RawSnapshot, error) {
	raw := &billing.RawSnapshot{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customers []models.CustomerModel
		if err := tx.Order("id").Find(&customers).Error; err != nil {
			return err
		}
		var vehicles []models.VehicleModel
		if err := tx.Order("id").Find(&vehicles).Error; err != nil {
			return err
		}
		var services []models.ServiceModel
		if err := tx.Order("id").Find(&services).Error; err != nil {
			return err
		}
		var invoices []models.InvoiceModel
		if err := tx.Order("date_created, id").Find(&invoices).Error; err != nil {
			return err
		}
		var payments []models.PaymentModel
		if err := tx.Order("date, id").Find(&payments).Error; err != nil {
			return err
		}

		raw.Customers = make([]billing.RawCustomer, 0, len(customers))
		for i := range customers {
			raw.Customers = append(raw.Customers, customers[i].ToRaw())
		}
		raw.Vehicles = make([]billing.RawVehicle, 0, len(vehicles))
		for i := range vehicles {
			raw.Vehicles = append(raw.Vehicles, vehicles[i].ToRaw())
		}
		raw.Services = make([]billing.RawService, 0, len(services))
		for i := range services {
			raw.Services = append(raw.Services, services[i].ToRaw())
		}
		raw.Invoices = make([]billing.RawInvoice, 0, len(invoices))
		for i := range invoices {
			raw.Invoices = append(raw.Invoices, invoices[i].ToRaw())
		}
		raw.Payments = make([]billing.RawPayment, 0, len(payments))
		for i := range payments {
			raw.Payments = append(raw.Payments, payments[i].ToRaw())
		}

		var settings models.BillingSettingsModel
		err := tx.First(&settings, "id = ?", models.SettingsRowID).Error
		switch {
		case err == nil:
			raw.Settings = settings.ToRaw()
		case errors.Is(err, gorm.ErrRecordNotFound):
			raw.Settings = s.defaults
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return nil, shared.NewTransportError("fetch", err)
	}
	return raw, nil
}

// SaveInvoice inserts or updates an invoice
func (s *GormBillingStore) SaveInvoice(ctx context.Context, inv *billing.Invoice) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertInvoice(tx, inv)
	})
	return storeError("save_invoice", err)
}

// CreateInvoice inserts an invoice, its optional advance payment and the
// advanced settings counter
func (s *GormBillingStore) CreateInvoice(ctx context.Context, inv *billing.Invoice, advance *billing.Payment, settings billing.Settings) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.InvoiceModel
		if err := model.FromDomain(inv); err != nil {
			return err
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if advance != nil {
			var payment models.PaymentModel
			payment.FromDomain(advance)
			if err := tx.Create(&payment).Error; err != nil {
				return err
			}
		}
		return saveSettings(tx, settings)
	})
	return storeError("create_invoice", err)
}

// SavePayment stores the updated invoice and the new payment atomically
func (s *GormBillingStore) SavePayment(ctx context.Context, inv *billing.Invoice, payment *billing.Payment) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateInvoice(tx, inv); err != nil {
			return err
		}
		var model models.PaymentModel
		model.FromDomain(payment)
		return tx.Create(&model).Error
	})
	return storeError("save_payment", err)
}

// RemovePayment stores the updated invoice and deletes the payment atomically
func (s *GormBillingStore) RemovePayment(ctx context.Context, inv *billing.Invoice, paymentID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateInvoice(tx, inv); err != nil {
			return err
		}
		result := tx.Where("id = ? AND invoice_id = ?", paymentID, inv.ID).Delete(&models.PaymentModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewNotFoundError("payment", paymentID)
		}
		return nil
	})
	return storeError("remove_payment", err)
}

// RemoveInvoice deletes an invoice together with all of its payments
func (s *GormBillingStore) RemoveInvoice(ctx context.Context, invoiceID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", invoiceID).Delete(&models.PaymentModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", invoiceID).Delete(&models.InvoiceModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewNotFoundError("invoice", invoiceID)
		}
		return nil
	})
	return storeError("remove_invoice", err)
}

// SaveSettings replaces the billing settings singleton
func (s *GormBillingStore) SaveSettings(ctx context.Context, settings billing.Settings) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveSettings(tx, settings)
	})
	return storeError("save_settings", err)
}

// updateInvoice rewrites every column of an existing invoice except its
// creation time
func updateInvoice(tx *gorm.DB, inv *billing.Invoice) error {
	var model models.InvoiceModel
	if err := model.FromDomain(inv); err != nil {
		return err
	}
	result := tx.Model(&model).Select("*").Omit("id", "created_at").Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("invoice", inv.ID)
	}
	return nil
}

func upsertInvoice(tx *gorm.DB, inv *billing.Invoice) error {
	err := updateInvoice(tx, inv)
	if !shared.IsNotFound(err) {
		return err
	}
	var model models.InvoiceModel
	if err := model.FromDomain(inv); err != nil {
		return err
	}
	return tx.Create(&model).Error
}

func saveSettings(tx *gorm.DB, settings billing.Settings) error {
	var model models.BillingSettingsModel
	model.FromDomain(settings)
	return tx.Save(&model).Error
}

// storeError passes domain errors through and wraps everything else as a
// transport failure of op
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return shared.NewTransportError(op, err)
}

var _ billing.Store = (*GormBillingStore)(nil)
