// Package dashboard joins a user's authorized device set with per-device
// recent-sample windows, fanning the per-device fetches out concurrently.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"atmoview.dev/telemetry/internal/registry"
	"atmoview.dev/telemetry/internal/telemetry"
	"atmoview.dev/telemetry/pkg/metrics"
)

const (
	// DefaultSampleLimit is the recent-sample window fetched per device.
	DefaultSampleLimit = 50

	// DefaultFetchTimeout bounds each per-device fetch. A device that
	// misses the deadline is degraded, not fatal.
	DefaultFetchTimeout = 3 * time.Second

	// DefaultFanOutLimit caps concurrent per-device fetches per query.
	DefaultFanOutLimit = 8
)

// AccessResolver maps a user to their authorized device ids.
type AccessResolver interface {
	AuthorizedDevices(ctx context.Context, userID string) ([]int64, error)
}

// DeviceLister returns device metadata for an id set, ascending by id.
type DeviceLister interface {
	ListDevices(ctx context.Context, ids []int64) ([]registry.Device, error)
}

// SampleReader returns a device's most recent samples, newest first.
type SampleReader interface {
	Recent(ctx context.Context, deviceID int64, limit int) ([]telemetry.Sample, error)
}

// DeviceView is one device joined with its recent samples in
// chronological (oldest first) order. A device whose fetch failed
// carries an empty, non-nil Samples slice; the failure is logged and
// counted, never silently swallowed.
type DeviceView struct {
	ID      int64              `json:"id"`
	Name    string             `json:"name"`
	Samples []telemetry.Sample `json:"samples"`
}

// DeviceSummary is metadata only, for map and locator views.
type DeviceSummary struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Engine is the access-filtered query fan-out engine.
type Engine struct {
	logger       *slog.Logger
	access       AccessResolver
	devices      DeviceLister
	samples      SampleReader
	sampleLimit  int
	fetchTimeout time.Duration
	fanOutLimit  int
	metrics      *metrics.QueryMetrics // optional
}

// EngineConfig holds the configuration for the Engine. Zero values for
// the tuning knobs take the package defaults.
type EngineConfig struct {
	Logger       *slog.Logger
	Access       AccessResolver
	Devices      DeviceLister
	Samples      SampleReader
	SampleLimit  int
	FetchTimeout time.Duration
	FanOutLimit  int
	Metrics      *metrics.QueryMetrics
}

// NewEngine creates an Engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Access == nil {
		return nil, errors.New("access resolver cannot be nil")
	}
	if cfg.Devices == nil {
		return nil, errors.New("device lister cannot be nil")
	}
	if cfg.Samples == nil {
		return nil, errors.New("sample reader cannot be nil")
	}

	sampleLimit := cfg.SampleLimit
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	fanOutLimit := cfg.FanOutLimit
	if fanOutLimit <= 0 {
		fanOutLimit = DefaultFanOutLimit
	}

	return &Engine{
		logger:       cfg.Logger,
		access:       cfg.Access,
		devices:      cfg.Devices,
		samples:      cfg.Samples,
		sampleLimit:  sampleLimit,
		fetchTimeout: fetchTimeout,
		fanOutLimit:  fanOutLimit,
		metrics:      cfg.Metrics,
	}, nil
}

// FetchDashboard resolves the user's authorized devices and joins each
// with its recent samples. An empty authorized set returns an empty
// result without touching the registry or the store. Per-device fetches
// run concurrently with a bounded limit; a failed or timed-out fetch
// degrades that device to an empty sample list instead of failing the
// whole call.
func (e *Engine) FetchDashboard(ctx context.Context, userID string) ([]DeviceView, error) {
	var timer *prometheus.Timer
	if e.metrics != nil {
		timer = prometheus.NewTimer(e.metrics.QueryDuration.WithLabelValues("dashboard"))
		defer timer.ObserveDuration()
	}

	ids, err := e.access.AuthorizedDevices(ctx, userID)
	if err != nil {
		e.countQuery("dashboard", "error")
		return nil, err
	}
	if len(ids) == 0 {
		e.countQuery("dashboard", "success")
		return []DeviceView{}, nil
	}

	devices, err := e.devices.ListDevices(ctx, ids)
	if err != nil {
		e.countQuery("dashboard", "error")
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.DevicesPerQuery.Observe(float64(len(devices)))
	}

	// Fan out. Fetch errors are captured per slot, never returned to
	// the group, so one slow or broken device cannot cancel its peers.
	views := make([]DeviceView, len(devices))
	var degraded atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(e.fanOutLimit)
	for i, device := range devices {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
			defer cancel()

			samples, err := e.samples.Recent(fetchCtx, device.ID, e.sampleLimit)
			if err != nil {
				e.logger.Warn("per-device fetch failed, returning device without samples",
					"device_id", device.ID,
					"user_id", userID,
					"error", err,
				)
				if e.metrics != nil {
					e.metrics.FetchesTotal.WithLabelValues("error").Inc()
				}
				degraded.Add(1)
				views[i] = DeviceView{ID: device.ID, Name: device.Name, Samples: []telemetry.Sample{}}
				return nil
			}

			if e.metrics != nil {
				e.metrics.FetchesTotal.WithLabelValues("success").Inc()
			}
			views[i] = DeviceView{ID: device.ID, Name: device.Name, Samples: chronological(samples)}
			return nil
		})
	}
	_ = g.Wait()

	if n := degraded.Load(); n > 0 {
		if e.metrics != nil {
			e.metrics.PartialFailures.Inc()
		}
		e.logger.Warn("dashboard query degraded",
			"user_id", userID,
			"devices", len(devices),
			"degraded", n,
		)
	}

	e.countQuery("dashboard", "success")
	return views, nil
}

// FetchDeviceSummaries resolves the user's authorized devices and
// returns metadata only, for map views. Same authorization and
// short-circuit semantics as FetchDashboard, no sample fan-out.
func (e *Engine) FetchDeviceSummaries(ctx context.Context, userID string) ([]DeviceSummary, error) {
	var timer *prometheus.Timer
	if e.metrics != nil {
		timer = prometheus.NewTimer(e.metrics.QueryDuration.WithLabelValues("summaries"))
		defer timer.ObserveDuration()
	}

	ids, err := e.access.AuthorizedDevices(ctx, userID)
	if err != nil {
		e.countQuery("summaries", "error")
		return nil, err
	}
	if len(ids) == 0 {
		e.countQuery("summaries", "success")
		return []DeviceSummary{}, nil
	}

	devices, err := e.devices.ListDevices(ctx, ids)
	if err != nil {
		e.countQuery("summaries", "error")
		return nil, err
	}

	summaries := make([]DeviceSummary, len(devices))
	for i, device := range devices {
		summaries[i] = DeviceSummary{
			ID:        device.ID,
			Name:      device.Name,
			Latitude:  device.Latitude,
			Longitude: device.Longitude,
		}
	}

	e.countQuery("summaries", "success")
	return summaries, nil
}

func (e *Engine) countQuery(operation, status string) {
	if e.metrics != nil {
		e.metrics.QueriesTotal.WithLabelValues(operation, status).Inc()
	}
}

// chronological reverses a newest-first window to oldest-first for
// display.
func chronological(samples []telemetry.Sample) []telemetry.Sample {
	out := make([]telemetry.Sample, len(samples))
	for i, sample := range samples {
		out[len(samples)-1-i] = sample
	}
	return out
}
