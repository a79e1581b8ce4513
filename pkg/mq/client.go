// Package mq provides a RabbitMQ client with automatic reconnection and
// publisher confirms.
package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"atmoview.dev/telemetry/pkg/metrics"
)

const (
	// Delay before redialing after a dropped connection.
	reconnectDelay = 5 * time.Second

	// Delay before reopening a channel after a channel exception.
	reInitDelay = 2 * time.Second

	// Exponential backoff bounds for Push retries.
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 10 * time.Second

	// Push attempts before giving up.
	maxPushAttempts = 5
)

var (
	// ErrNotConnected is returned when an operation runs before the
	// client has established a connection.
	ErrNotConnected = errors.New("mq: not connected to a server")
	// ErrShutdown is returned for operations after Close.
	ErrShutdown = errors.New("mq: client is shutting down")
	// ErrPushExhausted is returned when a Push ran out of retry attempts.
	ErrPushExhausted = errors.New("mq: push retry attempts exhausted")

	errAlreadyClosed = errors.New("mq: already closed")
)

// Client manages a RabbitMQ connection to a single queue. It redials
// dropped connections in the background; Push and Consume report
// ErrNotConnected while the redial is in progress.
type Client struct {
	mu              sync.Mutex
	logger          *slog.Logger
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan struct{}
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	queueName       string
	ready           bool
	metrics         *metrics.MQMetrics // optional
}

// New creates a client for the given queue and starts connecting to addr
// in the background.
func New(queueName, addr string, logger *slog.Logger) *Client {
	client := &Client{
		logger:    logger,
		queueName: queueName,
		done:      make(chan struct{}),
	}
	go client.handleReconnect(addr)
	return client
}

// SetMetrics sets the metrics collector for this client. Call before the
// client starts moving messages.
func (c *Client) SetMetrics(m *metrics.MQMetrics) {
	c.metrics = m
}

// handleReconnect dials addr and, on connection loss, keeps redialing
// until Close is called.
func (c *Client) handleReconnect(addr string) {
	for {
		c.setReady(false)
		c.logger.Info("mq: connecting", "queue", c.queueName)

		if c.metrics != nil {
			c.metrics.ReconnectAttempts.Inc()
		}

		conn, err := c.connect(addr)
		if err != nil {
			c.logger.Error("mq: connect failed, retrying", "error", err)
			select {
			case <-c.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := c.handleReInit(conn); done {
			return
		}
	}
}

func (c *Client) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		if c.metrics != nil {
			c.metrics.ConnectionStatus.Set(0)
		}
		return nil, err
	}

	c.mu.Lock()
	c.connection = conn
	c.notifyConnClose = make(chan *amqp.Error, 1)
	conn.NotifyClose(c.notifyConnClose)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(1)
	}
	c.logger.Info("mq: connected")
	return conn, nil
}

// handleReInit opens a channel and declares the queue, reopening the
// channel on channel exceptions. Returns true when the client is done.
func (c *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		c.setReady(false)

		if err := c.init(conn); err != nil {
			c.logger.Error("mq: channel init failed, retrying", "error", err)
			select {
			case <-c.done:
				return true
			case <-c.notifyConnClose:
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-c.done:
			return true
		case <-c.notifyConnClose:
			c.logger.Info("mq: connection closed, reconnecting")
			return false
		case <-c.notifyChanClose:
			c.logger.Info("mq: channel closed, reopening")
		}
	}
}

func (c *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		c.queueName,
		false, // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	c.mu.Lock()
	c.channel = ch
	c.notifyChanClose = make(chan *amqp.Error, 1)
	c.notifyConfirm = make(chan amqp.Confirmation, 1)
	ch.NotifyClose(c.notifyChanClose)
	ch.NotifyPublish(c.notifyConfirm)
	c.ready = true
	c.mu.Unlock()

	c.logger.Info("mq: client ready", "queue", c.queueName)
	return nil
}

func (c *Client) setReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

func (c *Client) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Push publishes data to the queue and waits for a broker confirmation.
// While the client is disconnected it backs off and retries, giving the
// background redial time to succeed; after maxPushAttempts it returns
// ErrPushExhausted.
func (c *Client) Push(ctx context.Context, data []byte) error {
	var timer *prometheus.Timer
	if c.metrics != nil {
		timer = prometheus.NewTimer(c.metrics.PushDuration.WithLabelValues(c.queueName))
		defer timer.ObserveDuration()
	}

	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		if attempt >= maxPushAttempts {
			if c.metrics != nil {
				c.metrics.PushFailures.WithLabelValues(c.queueName, "attempts_exhausted").Inc()
			}
			return ErrPushExhausted
		}

		if err := c.tryPush(ctx, data); err != nil {
			c.logger.Warn("mq: push attempt failed",
				"error", err,
				"attempt", attempt,
				"backoff", backoff)
			select {
			case <-ctx.Done():
				if c.metrics != nil {
					c.metrics.PushFailures.WithLabelValues(c.queueName, "context_canceled").Inc()
				}
				return ctx.Err()
			case <-c.done:
				return ErrShutdown
			case <-time.After(backoff):
				backoff = min(backoff*2, maxBackoff)
			}
			continue
		}

		if c.metrics != nil {
			c.metrics.MessagesPushed.WithLabelValues(c.queueName).Inc()
		}
		return nil
	}
}

// tryPush performs a single publish and waits for its confirmation.
func (c *Client) tryPush(ctx context.Context, data []byte) error {
	if !c.isReady() {
		return ErrNotConnected
	}

	if err := c.publish(ctx, data); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrShutdown
	case confirm := <-c.notifyConfirm:
		if !confirm.Ack {
			return errors.New("mq: broker nacked publish")
		}
		c.logger.Debug("mq: push confirmed", "delivery_tag", confirm.DeliveryTag)
		return nil
	}
}

// publish sends to the queue without waiting for confirmation.
func (c *Client) publish(ctx context.Context, data []byte) error {
	c.mu.Lock()
	ch := c.channel
	ready := c.ready
	c.mu.Unlock()

	if !ready {
		return ErrNotConnected
	}

	return ch.PublishWithContext(
		ctx,
		"",          // exchange
		c.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        data,
		},
	)
}

// Consume starts delivering queue items on the returned channel with a
// prefetch of one. Callers must Ack each delivery once processed, or Nack
// it to requeue.
func (c *Client) Consume() (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	ch := c.channel
	ready := c.ready
	c.mu.Unlock()

	if !ready {
		return nil, ErrNotConnected
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return nil, err
	}

	return ch.Consume(
		c.queueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
}

// Close shuts down the channel and connection and stops the redial loop.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ready {
		return errAlreadyClosed
	}
	close(c.done)

	if err := c.channel.Close(); err != nil {
		return err
	}
	if err := c.connection.Close(); err != nil {
		return err
	}

	c.ready = false
	if c.metrics != nil {
		c.metrics.ConnectionStatus.Set(0)
	}
	return nil
}
