package models

import "time"

// BaseModel provides common persistence fields for all models. IDs are
// opaque strings assigned by whoever created the record.
type BaseModel struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
