package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"atmoview.dev/telemetry/pkg/metrics"
)

const (
	// DefaultRecentLimit is used when a Recent caller passes limit <= 0.
	DefaultRecentLimit = 50

	// MaxRecentLimit is the hard cap for Recent. Larger requests are
	// clamped, not rejected.
	MaxRecentLimit = 500

	// DefaultRetention matches the original deployment's ~30 day
	// time-series TTL.
	DefaultRetention = 720 * time.Hour
)

// ErrUnknownDevice reports an append or query against a device whose
// partition was never provisioned.
var ErrUnknownDevice = errors.New("telemetry: unknown device")

// Store holds one append-only partition table per device. Partitions are
// provisioned by the registry before any sample can target them.
type Store struct {
	logger    *slog.Logger
	db        *gorm.DB
	retention time.Duration
	metrics   *metrics.StoreMetrics // optional

	// provisioned caches partition existence so the append hot path
	// avoids a catalog round-trip. Misses fall through to the database,
	// which stays authoritative across restarts.
	mu          sync.RWMutex
	provisioned map[int64]struct{}
}

// StoreConfig holds the configuration for the Store.
type StoreConfig struct {
	Logger    *slog.Logger
	DB        *gorm.DB
	Retention time.Duration
	Metrics   *metrics.StoreMetrics
}

// NewStore creates a Store. A zero retention defaults to
// DefaultRetention.
func NewStore(cfg *StoreConfig) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("store config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}

	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &Store{
		logger:      cfg.Logger,
		db:          cfg.DB,
		retention:   retention,
		metrics:     cfg.Metrics,
		provisioned: make(map[int64]struct{}),
	}, nil
}

// Retention returns the configured retention horizon.
func (s *Store) Retention() time.Duration {
	return s.retention
}

// ClampLimit normalizes a Recent limit: non-positive values take the
// default, values above the cap are clamped.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		return MaxRecentLimit
	}
	return limit
}

// Provision creates the partition table for a device. Safe to call for
// an existing partition.
func (s *Store) Provision(ctx context.Context, deviceID int64) error {
	table := PartitionName(deviceID)
	if err := s.db.WithContext(ctx).Table(table).AutoMigrate(&Sample{}); err != nil {
		return fmt.Errorf("failed to provision partition %s: %w", table, err)
	}

	s.mu.Lock()
	s.provisioned[deviceID] = struct{}{}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.PartitionsProvisioned.Inc()
	}
	s.logger.Info("partition provisioned", "device_id", deviceID, "table", table)
	return nil
}

// partitionExists consults the cache first, then the database catalog.
func (s *Store) partitionExists(ctx context.Context, deviceID int64) bool {
	s.mu.RLock()
	_, ok := s.provisioned[deviceID]
	s.mu.RUnlock()
	if ok {
		return true
	}

	if !s.db.WithContext(ctx).Migrator().HasTable(PartitionName(deviceID)) {
		return false
	}

	s.mu.Lock()
	s.provisioned[deviceID] = struct{}{}
	s.mu.Unlock()
	return true
}

// Append inserts a sample into the device's partition. When the sample
// carries no timestamp the server clock is used; device clocks are not
// trusted. Each append is a single-row insert, atomically visible.
func (s *Store) Append(ctx context.Context, deviceID int64, sample *Sample) error {
	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.AppendDuration)
		defer timer.ObserveDuration()
	}

	if !s.partitionExists(ctx, deviceID) {
		if s.metrics != nil {
			s.metrics.AppendsTotal.WithLabelValues("unknown_device").Inc()
		}
		return fmt.Errorf("%w: %d", ErrUnknownDevice, deviceID)
	}

	sample.DeviceID = deviceID
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}

	table := PartitionName(deviceID)
	if err := s.db.WithContext(ctx).Table(table).Create(sample).Error; err != nil {
		if s.metrics != nil {
			s.metrics.AppendsTotal.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("failed to append sample to %s: %w", table, err)
	}

	if s.metrics != nil {
		s.metrics.AppendsTotal.WithLabelValues("success").Inc()
	}
	return nil
}

// Recent returns up to limit samples, newest first. Samples past the
// retention horizon are filtered out even if the sweep has not removed
// them yet; the horizon is a soft physical guarantee but a hard read
// guarantee.
func (s *Store) Recent(ctx context.Context, deviceID int64, limit int) ([]Sample, error) {
	if !s.partitionExists(ctx, deviceID) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDevice, deviceID)
	}

	limit = ClampLimit(limit)
	cutoff := time.Now().UTC().Add(-s.retention)

	var samples []Sample
	err := s.db.WithContext(ctx).
		Table(PartitionName(deviceID)).
		Where("timestamp >= ?", cutoff).
		Order("timestamp DESC").
		Limit(limit).
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent samples for device %d: %w", deviceID, err)
	}
	return samples, nil
}

// Sweep physically removes samples past the retention horizon from one
// device's partition and returns the number deleted.
func (s *Store) Sweep(ctx context.Context, deviceID int64) (int64, error) {
	if !s.partitionExists(ctx, deviceID) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownDevice, deviceID)
	}

	cutoff := time.Now().UTC().Add(-s.retention)
	tx := s.db.WithContext(ctx).
		Table(PartitionName(deviceID)).
		Where("timestamp < ?", cutoff).
		Delete(&Sample{})
	if tx.Error != nil {
		return 0, fmt.Errorf("failed to sweep device %d: %w", deviceID, tx.Error)
	}

	if s.metrics != nil && tx.RowsAffected > 0 {
		s.metrics.SamplesExpired.Add(float64(tx.RowsAffected))
	}
	return tx.RowsAffected, nil
}
