// Package models contains GORM persistence models for the billing tables.
// They stay separate from the domain entities so the domain layer carries no
// ORM tags.
//
// Reads go model -> Raw* record -> billing.Normalize, so rows written by
// other tools get the same tolerant treatment as any other input. Writes go
// domain entity -> model.
//
// Structure:
//   - base.go: BaseModel with the string primary key and timestamps
//   - billing.go: customers, vehicles, services, invoices, payments and the
//     settings singleton
package models
