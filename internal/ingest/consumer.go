// Package ingest consumes telemetry messages from RabbitMQ and appends
// them to the per-device sample partitions.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"atmoview.dev/telemetry/internal/telemetry"
	"atmoview.dev/telemetry/pkg/metrics"
	"atmoview.dev/telemetry/pkg/mq"
)

// SampleAppender persists one sample into a device's partition.
type SampleAppender interface {
	Append(ctx context.Context, deviceID int64, sample *telemetry.Sample) error
}

// samplePayload is the JSON wire format published by devices and the
// simulator. Timestamp is unix seconds; zero means "stamp on arrival".
type samplePayload struct {
	DeviceID    int64   `json:"device_id"`
	Timestamp   int64   `json:"timestamp"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	Gas         float64 `json:"gas"`
}

// Consumer consumes telemetry messages from RabbitMQ and persists them.
type Consumer struct {
	logger     *slog.Logger
	store      SampleAppender
	mqClient   mq.ClientInterface
	ownsClient bool
	queueName  string
	metrics    *metrics.ConsumerMetrics // optional
	done       chan struct{}
}

// ConsumerConfig holds the configuration for the Consumer.
type ConsumerConfig struct {
	Logger      *slog.Logger
	Store       SampleAppender
	RabbitMQURL string
	QueueName   string
	Metrics     *metrics.ConsumerMetrics
	MQMetrics   *metrics.MQMetrics

	// MQClient overrides the default client, for tests.
	MQClient mq.ClientInterface
}

// NewConsumer creates a new Consumer instance.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("sample store cannot be nil")
	}

	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	mqClient := cfg.MQClient
	ownsClient := false
	if mqClient == nil {
		if cfg.RabbitMQURL == "" {
			return nil, errors.New("rabbitmq URL cannot be empty")
		}
		client := mq.New(cfg.QueueName, cfg.RabbitMQURL, cfg.Logger)
		if cfg.MQMetrics != nil {
			client.SetMetrics(cfg.MQMetrics)
		}
		mqClient = client
		ownsClient = true
	}

	return &Consumer{
		logger:     cfg.Logger,
		store:      cfg.Store,
		mqClient:   mqClient,
		ownsClient: ownsClient,
		queueName:  cfg.QueueName,
		metrics:    cfg.Metrics,
		done:       make(chan struct{}),
	}, nil
}

// Start begins consuming messages from RabbitMQ.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting consumer")

	// Wait for the reconnecting client to establish its first session
	if c.ownsClient {
		time.Sleep(2 * time.Second)
	}

	deliveries, err := c.mqClient.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("consumer started, waiting for messages")

	go c.processMessages(ctx, deliveries)

	return nil
}

// processMessages processes incoming messages from the deliveries channel.
func (c *Consumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing")
			close(c.done)
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				close(c.done)
				return
			}

			c.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery processes a single message delivery. Malformed
// payloads and samples for unknown devices are acked and counted so
// they never wedge the queue; storage failures are nacked for redelivery.
func (c *Consumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var timer *prometheus.Timer
	if c.metrics != nil {
		timer = prometheus.NewTimer(c.metrics.ProcessingDuration.WithLabelValues(c.queueName))
		defer timer.ObserveDuration()
	}

	var payload samplePayload
	if err := json.Unmarshal(delivery.Body, &payload); err != nil {
		c.logger.Error("failed to unmarshal sample payload",
			"error", err,
		)
		c.countError("malformed_payload")
		c.countMessage("rejected")
		if ackErr := delivery.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr)
		}
		return
	}

	c.logger.Debug("received sample",
		"device_id", payload.DeviceID,
		"timestamp", payload.Timestamp,
		"temperature", payload.Temperature,
	)

	if err := c.saveSample(ctx, &payload); err != nil {
		if errors.Is(err, telemetry.ErrUnknownDevice) {
			c.logger.Warn("dropping sample for unknown device",
				"device_id", payload.DeviceID,
			)
			c.countError("unknown_device")
			c.countMessage("rejected")
			if ackErr := delivery.Ack(false); ackErr != nil {
				c.logger.Error("failed to ack message", "error", ackErr)
			}
			return
		}

		c.logger.Error("failed to save sample",
			"device_id", payload.DeviceID,
			"error", err,
		)
		c.countError("storage")
		// Nack the message so it can be reprocessed
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr)
		}
		return
	}

	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
		return
	}

	c.countMessage("processed")
	c.logger.Debug("sample saved successfully",
		"device_id", payload.DeviceID,
	)
}

// saveSample appends one payload to the device's partition.
func (c *Consumer) saveSample(ctx context.Context, payload *samplePayload) error {
	sample := &telemetry.Sample{
		DeviceID:    payload.DeviceID,
		Temperature: payload.Temperature,
		Humidity:    payload.Humidity,
		Pressure:    payload.Pressure,
		Gas:         payload.Gas,
	}
	if payload.Timestamp > 0 {
		sample.Timestamp = time.Unix(payload.Timestamp, 0).UTC()
	}

	return c.store.Append(ctx, payload.DeviceID, sample)
}

func (c *Consumer) countMessage(status string) {
	if c.metrics != nil {
		c.metrics.MessagesTotal.WithLabelValues(c.queueName, status).Inc()
	}
}

func (c *Consumer) countError(errorType string) {
	if c.metrics != nil {
		c.metrics.Errors.WithLabelValues(c.queueName, errorType).Inc()
	}
}

// Stop stops the consumer and closes the MQ client.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping consumer")

	if err := c.mqClient.Close(); err != nil {
		return fmt.Errorf("failed to close mq client: %w", err)
	}

	// Wait for message processing to complete
	<-c.done

	c.logger.Info("consumer stopped")
	return nil
}
