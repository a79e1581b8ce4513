package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"atmoview.dev/telemetry/pkg/metrics"
)

// DefaultSweepInterval is how often the janitor walks all partitions.
const DefaultSweepInterval = 15 * time.Minute

// DeviceSource enumerates the devices whose partitions need sweeping.
// Implemented by the registry.
type DeviceSource interface {
	DeviceIDs(ctx context.Context) ([]int64, error)
}

// Janitor periodically removes samples past the retention horizon.
// Removal is best effort; the store's query-side cutoff is what callers
// rely on.
type Janitor struct {
	logger   *slog.Logger
	store    *Store
	source   DeviceSource
	interval time.Duration
	metrics  *metrics.StoreMetrics // optional
}

// JanitorConfig holds the configuration for the Janitor.
type JanitorConfig struct {
	Logger   *slog.Logger
	Store    *Store
	Source   DeviceSource
	Interval time.Duration
	Metrics  *metrics.StoreMetrics
}

// NewJanitor creates a Janitor. A zero interval defaults to
// DefaultSweepInterval.
func NewJanitor(cfg *JanitorConfig) (*Janitor, error) {
	if cfg == nil {
		return nil, errors.New("janitor config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Source == nil {
		return nil, errors.New("device source cannot be nil")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &Janitor{
		logger:   cfg.Logger,
		store:    cfg.Store,
		source:   cfg.Source,
		interval: interval,
		metrics:  cfg.Metrics,
	}, nil
}

// Run sweeps on the configured interval until the context is canceled.
func (j *Janitor) Run(ctx context.Context) {
	j.logger.Info("retention janitor started",
		"interval", j.interval,
		"retention", j.store.Retention(),
	)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("retention janitor stopped")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps every known partition. Per-device failures are logged
// and skipped so one bad partition cannot stall the rest.
func (j *Janitor) RunOnce(ctx context.Context) {
	if j.metrics != nil {
		j.metrics.SweepsTotal.Inc()
	}

	ids, err := j.source.DeviceIDs(ctx)
	if err != nil {
		j.logger.Error("janitor could not list devices", "error", err)
		return
	}

	var deleted int64
	for _, id := range ids {
		n, err := j.store.Sweep(ctx, id)
		if err != nil {
			j.logger.Warn("sweep failed for device", "device_id", id, "error", err)
			continue
		}
		deleted += n
	}

	if deleted > 0 {
		j.logger.Info("retention sweep complete",
			"devices", len(ids),
			"samples_deleted", deleted,
		)
	}
}
