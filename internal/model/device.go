package model

import "time"

// DeviceState is the latest sample of a device (hot table). One row per device.
type DeviceState struct {
	HistoryCode   string    `gorm:"primaryKey;size:32"`
	VegetableID   string    `gorm:"size:8;not null"`
	Unit          string    `gorm:"size:128;not null"`
	SourceID      string    `gorm:"size:16;not null;index"`
	SourceName    string    `gorm:"size:256;not null"`
	ProcessStatus string    `gorm:"size:16;not null"`
	NowStatus     string    `gorm:"size:16;not null"`
	LastUpdate    time.Time `gorm:"not null"`
	Light         *int
	Humidity      *int
	Temperature   *float64
	Lat           *float64
	Lng           *float64
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// DeviceSample is one archived sample of a device (cold table).
type DeviceSample struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	HistoryCode   string    `gorm:"size:32;not null;index:idx_device_samples_code_observed,priority:1"`
	ObservedAt    time.Time `gorm:"not null;index:idx_device_samples_code_observed,priority:2"`
	VegetableID   string    `gorm:"size:8;not null"`
	Unit          string    `gorm:"size:128;not null"`
	SourceID      string    `gorm:"size:16;not null"`
	SourceName    string    `gorm:"size:256;not null"`
	ProcessStatus string    `gorm:"size:16;not null"`
	NowStatus     string    `gorm:"size:16;not null"`
	Light         *int
	Humidity      *int
	Temperature   *float64
	Lat           *float64
	Lng           *float64
}
