package models

import (
	"encoding/json"
	"time"

	"github.com/garage/billing/internal/domain/billing"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SettingsRowID is the primary key of the billing settings singleton
const SettingsRowID = 1

// CustomerModel is the persistence model for customers. The customer
// collaborator owns these rows; billing only reads them.
type CustomerModel struct {
	BaseModel
	Name    string `gorm:"type:varchar(200);not null"`
	Email   string `gorm:"type:varchar(200)"`
	Phone   string `gorm:"type:varchar(50)"`
	Address string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToRaw converts the model to the record handed to Normalize
func (m *CustomerModel) ToRaw() billing.RawCustomer {
	return billing.RawCustomer{
		ID:      m.ID,
		Name:    m.Name,
		Email:   m.Email,
		Phone:   m.Phone,
		Address: m.Address,
	}
}

// VehicleModel is the persistence model for vehicles
type VehicleModel struct {
	BaseModel
	CustomerID  string `gorm:"type:varchar(64);not null;index"`
	Make        string `gorm:"type:varchar(100)"`
	Model       string `gorm:"type:varchar(100)"`
	PlateNumber string `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (VehicleModel) TableName() string {
	return "vehicles"
}

// ToRaw converts the model to the record handed to Normalize
func (m *VehicleModel) ToRaw() billing.RawVehicle {
	return billing.RawVehicle{
		ID:          m.ID,
		CustomerID:  m.CustomerID,
		Make:        m.Make,
		Model:       m.Model,
		PlateNumber: m.PlateNumber,
	}
}

// ServiceModel is the persistence model for service jobs
type ServiceModel struct {
	BaseModel
	VehicleID            string          `gorm:"type:varchar(64);not null;index"`
	Type                 string          `gorm:"type:varchar(100)"`
	Description          string          `gorm:"type:text"`
	Cost                 decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Status               string          `gorm:"type:varchar(20);not null;default:'Pending'"`
	TaxIncluded          bool            `gorm:"not null;default:false"`
	AdvancePayment       decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	AdvancePaymentMethod string          `gorm:"type:varchar(20)"`
}

// TableName returns the table name for GORM
func (ServiceModel) TableName() string {
	return "services"
}

// ToRaw converts the model to the record handed to Normalize
func (m *ServiceModel) ToRaw() billing.RawService {
	return billing.RawService{
		ID:                   m.ID,
		VehicleID:            m.VehicleID,
		Type:                 m.Type,
		Description:          m.Description,
		Cost:                 m.Cost,
		Status:               m.Status,
		TaxIncluded:          m.TaxIncluded,
		AdvancePayment:       m.AdvancePayment,
		AdvancePaymentMethod: m.AdvancePaymentMethod,
	}
}

// InvoiceModel is the persistence model for invoices. Line items are kept
// as a JSON array in the row.
type InvoiceModel struct {
	BaseModel
	CustomerID    string          `gorm:"type:varchar(64);not null;index"`
	VehicleID     string          `gorm:"type:varchar(64);index"`
	ServiceID     string          `gorm:"type:varchar(64);index"`
	InvoiceNumber string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	DateCreated   time.Time       `gorm:"not null"`
	DueDate       *time.Time      `gorm:"index"`
	LineItems     datatypes.JSON
	Subtotal      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Discount      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TaxRate       decimal.Decimal `gorm:"type:decimal(6,4);not null;default:0"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Total         decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	PaidAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	BalanceDue    decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Status        string          `gorm:"type:varchar(20);not null;default:'draft';index"`
	PaymentTerms  string          `gorm:"type:varchar(50)"`
	Notes         string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// lineItemRecord is the stored shape of one line; its keys match
// billing.RawLineItem so rows decode straight into raw records
type lineItemRecord struct {
	Description string          `json:"description"`
	Detail      string          `json:"detail,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Total       decimal.Decimal `json:"total"`
	Type        string          `json:"type,omitempty"`
}

// ToRaw converts the model to the record handed to Normalize. A line item
// column that is not a JSON array reads as no line items.
func (m *InvoiceModel) ToRaw() billing.RawInvoice {
	var items []billing.RawLineItem
	if len(m.LineItems) > 0 {
		if err := json.Unmarshal(m.LineItems, &items); err != nil {
			items = nil
		}
	}
	var due any
	if m.DueDate != nil {
		due = *m.DueDate
	}
	return billing.RawInvoice{
		ID:            m.ID,
		CustomerID:    m.CustomerID,
		VehicleID:     m.VehicleID,
		ServiceID:     m.ServiceID,
		InvoiceNumber: m.InvoiceNumber,
		DateCreated:   m.DateCreated,
		DueDate:       due,
		LineItems:     items,
		Subtotal:      m.Subtotal,
		Discount:      m.Discount,
		TaxRate:       m.TaxRate,
		TaxAmount:     m.TaxAmount,
		Total:         m.Total,
		PaidAmount:    m.PaidAmount,
		BalanceDue:    m.BalanceDue,
		Status:        m.Status,
		PaymentTerms:  m.PaymentTerms,
		Notes:         m.Notes,
	}
}

// FromDomain populates the model from a domain invoice
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) error {
	records := make([]lineItemRecord, 0, len(inv.LineItems))
	for _, it := range inv.LineItems {
		records = append(records, lineItemRecord{
			Description: it.Description,
			Detail:      it.Detail,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Total:       it.Total,
			Type:        string(it.Kind),
		})
	}
	items, err := json.Marshal(records)
	if err != nil {
		return err
	}

	m.ID = inv.ID
	m.CustomerID = inv.CustomerID
	m.VehicleID = inv.VehicleID
	m.ServiceID = inv.ServiceID
	m.InvoiceNumber = inv.InvoiceNumber
	m.DateCreated = inv.DateCreated
	m.DueDate = inv.DueDate
	m.LineItems = datatypes.JSON(items)
	m.Subtotal = inv.Subtotal
	m.Discount = inv.Discount
	m.TaxRate = inv.TaxRate
	m.TaxAmount = inv.TaxAmount
	m.Total = inv.Total
	m.PaidAmount = inv.PaidAmount
	m.BalanceDue = inv.BalanceDue
	m.Status = inv.Status.String()
	m.PaymentTerms = inv.PaymentTerms
	m.Notes = inv.Notes
	return nil
}

// PaymentModel is the persistence model for payments
type PaymentModel struct {
	BaseModel
	InvoiceID string          `gorm:"type:varchar(64);not null;index"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Method    string          `gorm:"type:varchar(20);not null"`
	Date      time.Time       `gorm:"not null;index"`
	Reference string          `gorm:"type:varchar(100)"`
	Notes     string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToRaw converts the model to the record handed to Normalize
func (m *PaymentModel) ToRaw() billing.RawPayment {
	return billing.RawPayment{
		ID:        m.ID,
		InvoiceID: m.InvoiceID,
		Amount:    m.Amount,
		Method:    m.Method,
		Date:      m.Date,
		Reference: m.Reference,
		Notes:     m.Notes,
	}
}

// FromDomain populates the model from a domain payment
func (m *PaymentModel) FromDomain(p *billing.Payment) {
	m.ID = p.ID
	m.InvoiceID = p.InvoiceID
	m.Amount = p.Amount
	m.Method = p.Method.String()
	m.Date = p.Date
	m.Reference = p.Reference
	m.Notes = p.Notes
}

// BillingSettingsModel is the single row of billing settings
type BillingSettingsModel struct {
	ID                uint            `gorm:"primaryKey"`
	TaxRate           decimal.Decimal `gorm:"type:decimal(6,4);not null;default:0"`
	InvoicePrefix     string          `gorm:"type:varchar(10);not null"`
	NextInvoiceNumber int             `gorm:"not null;default:1"`
	PaymentTerms      string          `gorm:"type:varchar(50)"`
	CompanyName       string          `gorm:"type:varchar(200)"`
	CompanyAddress    string          `gorm:"type:text"`
	CompanyPhone      string          `gorm:"type:varchar(50)"`
	CompanyEmail      string          `gorm:"type:varchar(200)"`
	CompanyTaxID      string          `gorm:"type:varchar(50)"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BillingSettingsModel) TableName() string {
	return "billing_settings"
}

// ToRaw converts the model to the record handed to Normalize
func (m *BillingSettingsModel) ToRaw() *billing.RawSettings {
	return &billing.RawSettings{
		TaxRate:           m.TaxRate,
		InvoicePrefix:     m.InvoicePrefix,
		NextInvoiceNumber: m.NextInvoiceNumber,
		PaymentTerms:      m.PaymentTerms,
		CompanyInfo: billing.RawCompanyInfo{
			Name:    m.CompanyName,
			Address: m.CompanyAddress,
			Phone:   m.CompanyPhone,
			Email:   m.CompanyEmail,
			TaxID:   m.CompanyTaxID,
		},
	}
}

// FromDomain populates the singleton row from domain settings
func (m *BillingSettingsModel) FromDomain(s billing.Settings) {
	m.ID = SettingsRowID
	m.TaxRate = s.TaxRate
	m.InvoicePrefix = s.InvoicePrefix
	m.NextInvoiceNumber = s.NextInvoiceNumber
	m.PaymentTerms = s.PaymentTerms
	m.CompanyName = s.Company.Name
	m.CompanyAddress = s.Company.Address
	m.CompanyPhone = s.Company.Phone
	m.CompanyEmail = s.Company.Email
	m.CompanyTaxID = s.Company.TaxID
}

// AllModels lists every billing model, in dependency order, for AutoMigrate
func AllModels() []any {
	return []any{
		&CustomerModel{},
		&VehicleModel{},
		&ServiceModel{},
		&InvoiceModel{},
		&PaymentModel{},
		&BillingSettingsModel{},
	}
}
