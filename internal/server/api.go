// Package server exposes the REST surface: telemetry ingest, device
// registration and the per-user dashboard query.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"atmoview.dev/telemetry/internal/dashboard"
	"atmoview.dev/telemetry/internal/registry"
	"atmoview.dev/telemetry/internal/telemetry"
	"atmoview.dev/telemetry/pkg/metrics"
)

// userIDHeader carries the caller identity resolved by the gateway in
// front of this service.
const userIDHeader = "X-User-ID"

// Dashboard answers access-filtered per-user queries.
type Dashboard interface {
	FetchDashboard(ctx context.Context, userID string) ([]dashboard.DeviceView, error)
	FetchDeviceSummaries(ctx context.Context, userID string) ([]dashboard.DeviceSummary, error)
}

// DeviceRegistrar creates devices and toggles their active flag.
type DeviceRegistrar interface {
	RegisterDevice(ctx context.Context, name string, lat, lon float64) (*registry.Device, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// SampleAppender persists one sample into a device's partition.
type SampleAppender interface {
	Append(ctx context.Context, deviceID int64, sample *telemetry.Sample) error
}

// AccessGranter syncs a device grant into the access projection.
type AccessGranter interface {
	Grant(ctx context.Context, userID string, deviceID int64) error
}

// API holds the HTTP handlers and their collaborators.
type API struct {
	logger    *slog.Logger
	dashboard Dashboard
	registrar DeviceRegistrar
	store     SampleAppender
	granter   AccessGranter // optional
	adminUser string
	metrics   *metrics.APIMetrics // optional
}

// APIConfig holds the configuration for the API.
type APIConfig struct {
	Logger    *slog.Logger
	Dashboard Dashboard
	Registrar DeviceRegistrar
	Store     SampleAppender
	Metrics   *metrics.APIMetrics

	// Granter and AdminUser enable the auto-grant of newly registered
	// devices to an administrative account. Both must be set for the
	// grant to happen.
	Granter   AccessGranter
	AdminUser string
}

// NewAPI creates a new API instance.
func NewAPI(cfg *APIConfig) (*API, error) {
	if cfg == nil {
		return nil, errors.New("api config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Dashboard == nil {
		return nil, errors.New("dashboard cannot be nil")
	}
	if cfg.Registrar == nil {
		return nil, errors.New("registrar cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("sample store cannot be nil")
	}

	return &API{
		logger:    cfg.Logger,
		dashboard: cfg.Dashboard,
		registrar: cfg.Registrar,
		store:     cfg.Store,
		granter:   cfg.Granter,
		adminUser: cfg.AdminUser,
		metrics:   cfg.Metrics,
	}, nil
}

// Routes configures the HTTP routes.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", a.handleHealth)

	// Metrics
	mux.Handle("GET /metrics", metrics.Handler())

	// Telemetry ingest
	mux.HandleFunc("POST /api/data", a.instrument("ingest", a.handleIngest))

	// Device registration and administration
	mux.HandleFunc("POST /api/devices", a.instrument("register_device", a.handleRegisterDevice))
	mux.HandleFunc("PATCH /api/devices/{id}", a.instrument("patch_device", a.handlePatchDevice))

	// Per-user queries
	mux.HandleFunc("GET /api/dashboard", a.instrument("dashboard", a.handleDashboard))
	mux.HandleFunc("GET /api/devices", a.instrument("list_devices", a.handleListDevices))

	return mux
}

// instrument wraps a handler with request counting, duration and
// in-flight tracking.
func (a *API) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	if a.metrics == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		a.metrics.RequestsInFlight.WithLabelValues(name).Inc()
		defer a.metrics.RequestsInFlight.WithLabelValues(name).Dec()

		timer := prometheus.NewTimer(a.metrics.RequestDuration.WithLabelValues(name))
		defer timer.ObserveDuration()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)

		a.metrics.RequestsTotal.WithLabelValues(name, sw.statusClass()).Inc()
	}
}

// statusWriter records the response status for metrics labels.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) statusClass() string {
	switch {
	case w.status >= 500:
		return "5xx"
	case w.status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// writeJSON writes a JSON response body with the given status.
func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("failed to write response", "error", err)
	}
}

// writeError writes a uniform JSON error body.
func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, errorResponse{Error: message})
}
