package billing

import "github.com/shopspring/decimal"

// Customer is owned by the customer-management collaborator. The engine
// references it and never mutates it.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Vehicle is referenced only to resolve statement context
type Vehicle struct {
	ID          string `json:"id"`
	CustomerID  string `json:"customer_id"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
	PlateNumber string `json:"plate_number,omitempty"`
}

// ServiceStatus represents the work status of a service job
type ServiceStatus string

const (
	ServiceStatusPending   ServiceStatus = "Pending"
	ServiceStatusCompleted ServiceStatus = "Completed"
)

// IsValid checks if the status is a valid ServiceStatus
func (s ServiceStatus) IsValid() bool {
	return s == ServiceStatusPending || s == ServiceStatusCompleted
}

// String returns the string representation of ServiceStatus
func (s ServiceStatus) String() string {
	return string(s)
}

// Service is a unit of garage work. Completing it is what gets billed.
type Service struct {
	ID                   string          `json:"id"`
	VehicleID            string          `json:"vehicle_id"`
	Type                 string          `json:"type"`
	Description          string          `json:"description,omitempty"`
	Cost                 decimal.Decimal `json:"cost"`
	Status               ServiceStatus   `json:"status"`
	TaxIncluded          bool            `json:"tax_included"`
	AdvancePayment       decimal.Decimal `json:"advance_payment"`
	AdvancePaymentMethod PaymentMethod   `json:"advance_payment_method,omitempty"`
}

// IsCompleted returns true if the service can be billed
func (s Service) IsCompleted() bool {
	return s.Status == ServiceStatusCompleted
}
