// Package access resolves a user identity to the set of device ids the
// user may read. The tables are a read-only projection of the external
// identity service; this core never verifies credentials.
package access

import (
	"time"
)

// UserAccount is the projected identity row. Its presence is what
// distinguishes "user with zero devices" from "user not found".
type UserAccount struct {
	UserID    string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the UserAccount model.
func (UserAccount) TableName() string {
	return "user_accounts"
}

// DeviceGrant authorizes one user to read one device.
type DeviceGrant struct {
	UserID    string    `gorm:"primaryKey"`
	DeviceID  int64     `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for the DeviceGrant model.
func (DeviceGrant) TableName() string {
	return "user_device_grants"
}
