// Package billing provides the domain model for garage billing reconciliation.
//
// This package turns raw service, invoice and payment records into
// internally consistent financial state. It is responsible for:
//   - Normalizing raw records into canonical decimal values (Normalize)
//   - The invoice lifecycle and its arithmetic (Invoice)
//   - Applying and voiding payments (ApplyPayment, VoidPayment)
//   - Customer balance and overdue aggregates (CustomerBalance, CustomerOverdue)
//   - Customer statements (BuildStatement)
//   - Revenue reports (RevenueReport)
//
// Every derivation takes an immutable *Snapshot as a parameter. Mutations
// return new records; the caller persists them through Store and then
// replaces its snapshot.
//
// Invariants held after every mutation:
//   - total = subtotal - discount + taxAmount
//   - paidAmount = sum of the invoice's payments
//   - balanceDue = total - paidAmount, never negative
//   - status paid implies balanceDue = 0
package billing
