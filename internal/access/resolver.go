package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUserNotFound reports a lookup for an identity that has no projected
// account row.
var ErrUserNotFound = errors.New("access: user not found")

// Resolver answers "which devices may this user read".
type Resolver struct {
	logger *slog.Logger
	db     *gorm.DB
}

// NewResolver creates a Resolver.
func NewResolver(logger *slog.Logger, db *gorm.DB) (*Resolver, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	return &Resolver{logger: logger, db: db}, nil
}

// AuthorizedDevices returns the device ids granted to userID, ascending.
// An empty set is a valid result and must short-circuit downstream
// queries; a missing account is ErrUserNotFound.
func (r *Resolver) AuthorizedDevices(ctx context.Context, userID string) ([]int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&UserAccount{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", userID, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, userID)
	}

	var ids []int64
	err = r.db.WithContext(ctx).
		Model(&DeviceGrant{}).
		Where("user_id = ?", userID).
		Order("device_id ASC").
		Pluck("device_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list grants for user %q: %w", userID, err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// Grant records that userID may read deviceID. This is the projection
// sync hook (registration's admin auto-grant, tests); the identity
// service owns the data. Granting twice is a no-op.
func (r *Resolver) Grant(ctx context.Context, userID string, deviceID int64) error {
	if userID == "" {
		return errors.New("user id cannot be empty")
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&UserAccount{UserID: userID}).Error
	if err != nil {
		return fmt.Errorf("failed to ensure account %q: %w", userID, err)
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&DeviceGrant{UserID: userID, DeviceID: deviceID}).Error
	if err != nil {
		return fmt.Errorf("failed to grant device %d to %q: %w", deviceID, userID, err)
	}

	r.logger.Debug("device granted", "user_id", userID, "device_id", deviceID)
	return nil
}
