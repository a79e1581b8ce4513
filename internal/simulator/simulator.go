// Package simulator registers synthetic devices over the HTTP API and
// publishes generated readings to the ingest queue.
package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"atmoview.dev/telemetry/pkg/generator"
	"atmoview.dev/telemetry/pkg/metrics"
	"atmoview.dev/telemetry/pkg/mq"
)

// DefaultInterval is the time between published readings per device.
const DefaultInterval = 10 * time.Second

// simulatedDevice pairs a registered device id with its reading series.
type simulatedDevice struct {
	id  int64
	gen *generator.ReadingGenerator
}

// samplePayload mirrors the ingest queue wire format.
type samplePayload struct {
	DeviceID    int64   `json:"device_id"`
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Gas         float64 `json:"gas"`
}

// Simulator registers devices and publishes readings on an interval.
type Simulator struct {
	logger     *slog.Logger
	config     *Config
	httpClient *http.Client
	mqClient   mq.ClientInterface
	ownsClient bool
	devices    []simulatedDevice
	metrics    *metrics.SimulatorMetrics // optional
}

// Config holds the configuration for the Simulator.
type Config struct {
	Logger *slog.Logger

	// APIBaseURL is the hub's HTTP API, used for device registration.
	APIBaseURL string

	// RabbitMQ configuration
	RabbitMQURL string
	QueueName   string

	// DeviceCount is how many devices to register on startup.
	DeviceCount int

	// Interval is the time between published readings.
	Interval time.Duration

	Metrics   *metrics.SimulatorMetrics
	MQMetrics *metrics.MQMetrics

	// MQClient and HTTPClient override the defaults, for tests.
	MQClient   mq.ClientInterface
	HTTPClient *http.Client
}

// New creates a Simulator.
func New(cfg *Config) (*Simulator, error) {
	if cfg == nil {
		return nil, errors.New("simulator config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIBaseURL == "" {
		return nil, errors.New("API base URL cannot be empty")
	}
	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if cfg.DeviceCount <= 0 {
		return nil, errors.New("device count must be positive")
	}

	mqClient := cfg.MQClient
	ownsClient := false
	if mqClient == nil {
		if cfg.RabbitMQURL == "" {
			return nil, errors.New("rabbitmq URL cannot be empty")
		}
		client := mq.New(cfg.QueueName, cfg.RabbitMQURL, cfg.Logger.With(
			slog.String("component", "mq-client"),
		))
		if cfg.MQMetrics != nil {
			client.SetMetrics(cfg.MQMetrics)
		}
		mqClient = client
		ownsClient = true
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	return &Simulator{
		logger:     cfg.Logger,
		config:     cfg,
		httpClient: httpClient,
		mqClient:   mqClient,
		ownsClient: ownsClient,
		metrics:    cfg.Metrics,
	}, nil
}

// Run registers the configured number of devices and publishes readings
// until shutdown.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("starting simulator",
		"device_count", s.config.DeviceCount,
		"interval", s.config.Interval,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	if err := s.registerDevices(ctx); err != nil {
		return fmt.Errorf("failed to register devices: %w", err)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigChan:
			s.logger.Info("received shutdown signal", "signal", sig.String())
			return s.shutdown()

		case <-ctx.Done():
			s.logger.Info("context canceled")
			return s.shutdown()

		case <-ticker.C:
			s.publishReadings(ctx, time.Now())
		}
	}
}

// registerDevices creates the synthetic fleet through the HTTP API.
func (s *Simulator) registerDevices(ctx context.Context) error {
	for i := 0; i < s.config.DeviceCount; i++ {
		device := generator.NewDevice()
		if device == nil {
			return errors.New("failed to generate device")
		}

		id, err := s.registerDevice(ctx, device)
		if err != nil {
			return err
		}

		s.devices = append(s.devices, simulatedDevice{
			id:  id,
			gen: generator.NewReadingGenerator(),
		})
		if s.metrics != nil {
			s.metrics.DevicesRegistered.Inc()
		}

		s.logger.Info("registered simulated device",
			"device_id", id,
			"name", device.Name,
		)
	}
	return nil
}

// registerDevice posts one device and returns its allocated id.
func (s *Simulator) registerDevice(ctx context.Context, device *generator.Device) (int64, error) {
	body, err := json.Marshal(map[string]any{
		"name":      device.Name,
		"latitude":  device.Latitude,
		"longitude": device.Longitude,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal device: %w", err)
	}

	url := s.config.APIBaseURL + "/api/devices"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to register device: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("unexpected registration status: %s", resp.Status)
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("failed to decode registration response: %w", err)
	}

	return created.ID, nil
}

// publishReadings generates and publishes one reading per device.
// Publish failures are logged and counted, never fatal.
func (s *Simulator) publishReadings(ctx context.Context, now time.Time) {
	for _, device := range s.devices {
		reading := device.gen.Next(now)

		message, err := json.Marshal(samplePayload{
			DeviceID:    device.id,
			Timestamp:   reading.Timestamp.Unix(),
			Temperature: reading.Temperature,
			Humidity:    reading.Humidity,
			Pressure:    reading.Pressure,
			Gas:         reading.Gas,
		})
		if err != nil {
			s.logger.Error("failed to marshal reading",
				"device_id", device.id,
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.PublishFailures.WithLabelValues("marshal_error").Inc()
			}
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = s.mqClient.Push(pushCtx, message)
		cancel()
		if err != nil {
			s.logger.Error("failed to publish reading",
				"device_id", device.id,
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.PublishFailures.WithLabelValues("push_error").Inc()
			}
			continue
		}

		if s.metrics != nil {
			s.metrics.SamplesPublished.Inc()
		}
		s.logger.Debug("published reading", "device_id", device.id)
	}
}

// shutdown closes the MQ client when the simulator owns it.
func (s *Simulator) shutdown() error {
	if !s.ownsClient {
		return nil
	}
	if err := s.mqClient.Close(); err != nil {
		return fmt.Errorf("failed to close mq client: %w", err)
	}
	s.logger.Info("simulator stopped")
	return nil
}
