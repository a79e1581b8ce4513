package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

var (
	// ErrStoreProvisioning reports that partition provisioning failed
	// after an id was allocated. The id is burned and will not be
	// reused; callers retry with a fresh registration.
	ErrStoreProvisioning = errors.New("registry: telemetry store provisioning failed")

	// ErrDeviceNotFound reports an operation against an unregistered id.
	ErrDeviceNotFound = errors.New("registry: device not found")

	errCounterMissing = errors.New("registry: device counter row missing")
)

// StoreProvisioner creates the per-device telemetry partition during
// registration. Implemented by the telemetry store.
type StoreProvisioner interface {
	Provision(ctx context.Context, deviceID int64) error
}

// Registry allocates device ids and owns the device metadata table.
type Registry struct {
	logger *slog.Logger
	db     *gorm.DB
	stores StoreProvisioner
}

// New creates a Registry.
func New(logger *slog.Logger, db *gorm.DB, stores StoreProvisioner) (*Registry, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if stores == nil {
		return nil, errors.New("store provisioner cannot be nil")
	}
	return &Registry{logger: logger, db: db, stores: stores}, nil
}

// AllocateDeviceID returns the next device id and advances the counter.
// The read-and-advance is a single UPDATE ... RETURNING statement, so
// concurrent callers never observe the same id. On storage failure
// nothing is allocated and the caller must retry the whole registration.
func (r *Registry) AllocateDeviceID(ctx context.Context) (int64, error) {
	var next int64
	tx := r.db.WithContext(ctx).Raw(
		"UPDATE device_counters SET next_id = next_id + 1 WHERE name = ? RETURNING next_id",
		CounterName,
	).Scan(&next)
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to advance device counter: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return 0, errCounterMissing
	}
	return next, nil
}

// RegisterDevice allocates an id, provisions the device's telemetry
// partition, and persists the metadata record. When name is empty the
// device is named "Device {id}". A provisioning failure burns the
// allocated id; density of the id space is traded for simplicity.
func (r *Registry) RegisterDevice(ctx context.Context, name string, lat, lon float64) (*Device, error) {
	id, err := r.AllocateDeviceID(ctx)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = fmt.Sprintf("Device %d", id)
	}

	if err := r.stores.Provision(ctx, id); err != nil {
		r.logger.Error("partition provisioning failed, id burned",
			"device_id", id,
			"error", err,
		)
		return nil, fmt.Errorf("%w: device %d: %w", ErrStoreProvisioning, id, err)
	}

	device := &Device{
		ID:        id,
		Name:      name,
		Latitude:  lat,
		Longitude: lon,
		Active:    true,
	}
	if err := r.db.WithContext(ctx).Create(device).Error; err != nil {
		return nil, fmt.Errorf("failed to persist device %d: %w", id, err)
	}

	r.logger.Info("device registered",
		"device_id", id,
		"name", name,
	)
	return device, nil
}

// ListDevices returns device metadata ordered by id ascending. A nil
// filter returns all devices; an empty filter returns nothing without
// touching storage.
func (r *Registry) ListDevices(ctx context.Context, ids []int64) ([]Device, error) {
	if ids != nil && len(ids) == 0 {
		return []Device{}, nil
	}

	query := r.db.WithContext(ctx).Order("id ASC")
	if ids != nil {
		query = query.Where("id IN ?", ids)
	}

	var devices []Device
	if err := query.Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

// DeviceIDs returns all registered device ids, ascending. Used by the
// retention janitor to enumerate partitions.
func (r *Registry) DeviceIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&Device{}).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list device ids: %w", err)
	}
	return ids, nil
}

// SetActive toggles a device's active flag. Administrative operation;
// the flag does not affect ingestion or queries in this core.
func (r *Registry) SetActive(ctx context.Context, id int64, active bool) error {
	tx := r.db.WithContext(ctx).
		Model(&Device{}).
		Where("id = ?", id).
		Update("active", active)
	if tx.Error != nil {
		return fmt.Errorf("failed to update device %d: %w", id, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrDeviceNotFound, id)
	}
	return nil
}
