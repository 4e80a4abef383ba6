package model

import "time"

// Station is an operator-registered station. The built-in seed registry is not stored.
type Station struct {
	ID            string `gorm:"primaryKey;size:16"`
	Name          string `gorm:"size:256;not null"`
	Description   string `gorm:"size:1024"`
	FixedLocation bool   `gorm:"not null"`
	Lat           *float64
	Lng           *float64
	Capacity      int `gorm:"not null;default:0"`
	Order         int `gorm:"column:sort_order;not null"`
	CreatedAt     time.Time
}

// Product is an operator-registered product type.
type Product struct {
	ID        string `gorm:"primaryKey;size:8"`
	Name      string `gorm:"size:128;not null"`
	Glyph     string `gorm:"size:16"`
	Slot      int    `gorm:"not null;default:0"`
	CreatedAt time.Time
}
