// Package mq provides a RabbitMQ client with automatic reconnection and confirmed publishing.
package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/weather-cache/pkg/metrics"
)

const (
	// When reconnecting to the server after connection failure.
	reconnectDelay = 5 * time.Second

	// When setting up the channel after a channel exception.
	reInitDelay = 2 * time.Second

	initialBackoff    = 100 * time.Millisecond
	maxBackoff        = 10 * time.Second
	backoffMultiplier = 2

	defaultMaxRetries  = 5
	defaultContentType = "application/json"
)

var (
	// ErrNotConnected is returned when the client has no usable channel.
	ErrNotConnected = errors.New("not connected to a server")
	// ErrShutdown is returned by operations interrupted by Close.
	ErrShutdown = errors.New("client is shutting down")
	// ErrMaxRetriesExceeded is returned by Push once every attempt has failed.
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
)

// Config holds the configuration for a queue client.
type Config struct {
	QueueName string
	URL       string
	Logger    *slog.Logger
	// Metrics is optional.
	Metrics *metrics.MQMetrics
	// Durable declares the queue durable and publishes persistent messages.
	Durable bool
	// ContentType of published messages (defaults to application/json).
	ContentType string
	// Prefetch is the consumer QoS prefetch count (defaults to 1).
	Prefetch int
	// MaxRetries bounds Push attempts (defaults to 5).
	MaxRetries int
}

// Client is a RabbitMQ client bound to a single queue. It reconnects in the
// background and publishes with broker confirmations.
type Client struct {
	m               sync.Mutex
	log             *slog.Logger
	cfg             Config
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan struct{}
	closeOnce       sync.Once
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	isReady         bool
}

// New validates cfg and returns a client that connects in the background.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if cfg.URL == "" {
		return nil, errors.New("url cannot be empty")
	}

	c := *cfg
	if c.ContentType == "" {
		c.ContentType = defaultContentType
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}

	client := &Client{
		log:  cfg.Logger.With(slog.String("queue", cfg.QueueName)),
		cfg:  c,
		done: make(chan struct{}),
	}
	go client.handleReconnect()
	return client, nil
}

// QueueName returns the queue this client is bound to.
func (client *Client) QueueName() string {
	return client.cfg.QueueName
}

// IsReady reports whether a channel is currently available.
func (client *Client) IsReady() bool {
	client.m.Lock()
	defer client.m.Unlock()
	return client.isReady
}

func (client *Client) setReady(ready bool) {
	client.m.Lock()
	client.isReady = ready
	client.m.Unlock()
	if client.cfg.Metrics != nil {
		if ready {
			client.cfg.Metrics.ConnectionStatus.Set(1)
		} else {
			client.cfg.Metrics.ConnectionStatus.Set(0)
		}
	}
}

// handleReconnect waits for a connection error on notifyConnClose and then
// keeps trying to reconnect until Close is called.
func (client *Client) handleReconnect() {
	for {
		client.setReady(false)
		client.log.Info("attempting to connect")

		if client.cfg.Metrics != nil {
			client.cfg.Metrics.ReconnectAttempts.Inc()
		}

		conn, err := amqp.Dial(client.cfg.URL)
		if err != nil {
			client.log.Error("failed to connect, retrying", "error", err)

			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		client.changeConnection(conn)
		client.log.Info("connected")

		if done := client.handleReInit(conn); done {
			return
		}
	}
}

// handleReInit waits for a channel error and re-initializes the channel.
// It returns true once the client is shutting down.
func (client *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		client.setReady(false)

		if err := client.init(conn); err != nil {
			client.log.Error("failed to initialize channel, retrying", "error", err)

			select {
			case <-client.done:
				return true
			case <-client.notifyConnClose:
				client.log.Info("connection closed, reconnecting")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			return true
		case <-client.notifyConnClose:
			client.log.Info("connection closed, reconnecting")
			return false
		case <-client.notifyChanClose:
			client.log.Info("channel closed, re-running init")
		}
	}
}

// init opens a confirming channel and declares the queue.
func (client *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}

	_, err = ch.QueueDeclare(
		client.cfg.QueueName,
		client.cfg.Durable,
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,
	)
	if err != nil {
		return err
	}

	client.changeChannel(ch)
	client.setReady(true)
	client.log.Info("client init done")

	return nil
}

func (client *Client) changeConnection(connection *amqp.Connection) {
	client.m.Lock()
	defer client.m.Unlock()
	client.connection = connection
	client.notifyConnClose = make(chan *amqp.Error, 1)
	client.connection.NotifyClose(client.notifyConnClose)
}

func (client *Client) changeChannel(channel *amqp.Channel) {
	client.m.Lock()
	defer client.m.Unlock()
	client.channel = channel
	client.notifyChanClose = make(chan *amqp.Error, 1)
	client.notifyConfirm = make(chan amqp.Confirmation, 1)
	client.channel.NotifyClose(client.notifyChanClose)
	client.channel.NotifyPublish(client.notifyConfirm)
}

// Push publishes data and waits for the broker confirmation. While the client is
// disconnected or the broker nacks, it retries with exponential backoff up to
// MaxRetries attempts.
func (client *Client) Push(ctx context.Context, data []byte) error {
	queue := client.cfg.QueueName
	if client.cfg.Metrics != nil {
		timer := prometheus.NewTimer(client.cfg.Metrics.PushDuration.WithLabelValues(queue))
		defer timer.ObserveDuration()
	}

	backoff := initialBackoff
	for attempt := 0; ; attempt++ {
		if attempt >= client.cfg.MaxRetries {
			client.log.Error("maximum retry attempts exceeded", "attempts", attempt)
			client.pushFailed("max_retries_exceeded")
			return ErrMaxRetriesExceeded
		}

		confirmed, err := client.pushOnce(ctx, data)
		switch {
		case err == nil && confirmed:
			if client.cfg.Metrics != nil {
				client.cfg.Metrics.MessagesPushed.WithLabelValues(queue).Inc()
			}
			client.log.Debug("push confirmed", "attempt", attempt)
			return nil
		case ctx.Err() != nil:
			client.pushFailed("context_canceled")
			return ctx.Err()
		case errors.Is(err, ErrShutdown):
			return err
		case err != nil:
			client.log.Warn("push failed, retrying", "error", err, "backoff", backoff, "attempt", attempt)
		default:
			client.log.Warn("push not acknowledged, retrying", "backoff", backoff, "attempt", attempt)
		}

		select {
		case <-ctx.Done():
			client.pushFailed("context_canceled")
			return ctx.Err()
		case <-client.done:
			return ErrShutdown
		case <-time.After(backoff):
		}

		backoff *= backoffMultiplier
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// pushOnce publishes a single message and waits for its confirmation.
func (client *Client) pushOnce(ctx context.Context, data []byte) (bool, error) {
	client.m.Lock()
	if !client.isReady {
		client.m.Unlock()
		return false, ErrNotConnected
	}
	ch := client.channel
	confirms := client.notifyConfirm
	client.m.Unlock()

	msg := amqp.Publishing{
		ContentType: client.cfg.ContentType,
		Timestamp:   time.Now().UTC(),
		Body:        data,
	}
	if client.cfg.Durable {
		msg.DeliveryMode = amqp.Persistent
	}

	if err := ch.PublishWithContext(ctx, "", client.cfg.QueueName, false, false, msg); err != nil {
		return false, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-client.done:
		return false, ErrShutdown
	case confirm, ok := <-confirms:
		if !ok {
			return false, ErrNotConnected
		}
		return confirm.Ack, nil
	}
}

func (client *Client) pushFailed(reason string) {
	if client.cfg.Metrics != nil {
		client.cfg.Metrics.PushFailures.WithLabelValues(client.cfg.QueueName, reason).Inc()
	}
}

// Consume starts a manual-ack subscription on the queue. It is required to call
// delivery.Ack when a message has been processed, or delivery.Nack when it fails.
func (client *Client) Consume() (<-chan amqp.Delivery, error) {
	client.m.Lock()
	if !client.isReady {
		client.m.Unlock()
		return nil, ErrNotConnected
	}
	ch := client.channel
	client.m.Unlock()

	if err := ch.Qos(client.cfg.Prefetch, 0, false); err != nil {
		return nil, err
	}

	deliveries, err := ch.Consume(
		client.cfg.QueueName,
		"",    // Consumer
		false, // Auto-Ack
		false, // Exclusive
		false, // No-local
		false, // No-Wait
		nil,
	)
	if err != nil {
		return nil, err
	}

	if client.cfg.Metrics != nil {
		client.cfg.Metrics.ConsumersStarted.WithLabelValues(client.cfg.QueueName).Inc()
	}
	return deliveries, nil
}

// Close stops reconnecting and shuts down the channel and connection.
// It is safe to call more than once.
func (client *Client) Close() error {
	client.closeOnce.Do(func() { close(client.done) })

	client.m.Lock()
	defer client.m.Unlock()

	if !client.isReady {
		return nil
	}
	client.isReady = false
	if client.cfg.Metrics != nil {
		client.cfg.Metrics.ConnectionStatus.Set(0)
	}

	if err := client.channel.Close(); err != nil {
		return err
	}
	return client.connection.Close()
}
