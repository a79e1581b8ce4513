// Package registry owns device metadata and the monotonic device-id
// counter, and provisions a telemetry partition for every new device.
package registry

import (
	"time"
)

// CounterName is the key of the single device-id counter row.
const CounterName = "devices"

// Counter is the persistent device-id counter. NextID holds the most
// recently allocated id (ids start at 1); it only ever moves forward,
// even when a registration fails after allocation.
type Counter struct {
	Name   string `gorm:"primaryKey"`
	NextID int64  `gorm:"not null"`
}

// TableName specifies the table name for the Counter model.
func (Counter) TableName() string {
	return "device_counters"
}

// Device is the metadata record for a registered device. Devices are
// never deleted; Active may be toggled administratively.
type Device struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"not null"`
	Latitude  float64   `gorm:"not null"`
	Longitude float64   `gorm:"not null"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Device model.
func (Device) TableName() string {
	return "devices"
}
