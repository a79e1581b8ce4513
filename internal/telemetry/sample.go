// Package telemetry implements the per-device, time-ordered sample store
// with a bounded retention horizon.
package telemetry

import (
	"fmt"
	"time"
)

// Sample is one immutable sensor reading. Ownership is exclusive to the
// partition of its device; samples expire past the retention horizon.
type Sample struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	DeviceID    int64     `gorm:"index;not null" json:"deviceId"`
	Timestamp   time.Time `gorm:"index;not null" json:"timestamp"`
	Temperature float64   `gorm:"not null" json:"temperature"`
	Humidity    float64   `gorm:"not null" json:"humidity"`
	Pressure    float64   `gorm:"not null" json:"pressure"`
	Gas         float64   `gorm:"not null" json:"gas"`
}

// PartitionName returns the table name of a device's partition.
func PartitionName(deviceID int64) string {
	return fmt.Sprintf("device_%d_samples", deviceID)
}
