package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/weather-cache/internal/weather"
	"procodus.dev/weather-cache/pkg/metrics"
	"procodus.dev/weather-cache/pkg/mq"
)

const (
	defaultConsumerReadyTimeout = 30 * time.Second
	defaultRefreshTimeout       = 30 * time.Second
	consumerReadyPoll           = 250 * time.Millisecond
)

// RefreshRequest is the JSON form of a refresh message. A plain-text body is
// treated as the city name.
type RefreshRequest struct {
	City string `json:"city"`
}

// RefreshConsumer consumes city names from a queue and refreshes the cache for each.
type RefreshConsumer struct {
	logger       *slog.Logger
	weather      WeatherGetter
	client       mq.ClientInterface
	metrics      *metrics.BackendMetrics
	readyTimeout time.Duration
	timeout      time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// RefreshConsumerConfig holds the configuration for the RefreshConsumer.
type RefreshConsumerConfig struct {
	Logger  *slog.Logger
	Weather WeatherGetter
	Client  mq.ClientInterface
	Metrics *metrics.BackendMetrics
	// ReadyTimeout bounds how long Start waits for the broker connection.
	ReadyTimeout time.Duration
	// RequestTimeout bounds each GetWeather call.
	RequestTimeout time.Duration
}

// NewRefreshConsumer creates a new RefreshConsumer instance.
func NewRefreshConsumer(cfg *RefreshConsumerConfig) (*RefreshConsumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Weather == nil {
		return nil, errors.New("weather service cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	readyTimeout := cfg.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = defaultConsumerReadyTimeout
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}

	return &RefreshConsumer{
		logger:       cfg.Logger.With("component", "refresh_consumer"),
		weather:      cfg.Weather,
		client:       cfg.Client,
		metrics:      cfg.Metrics,
		readyTimeout: readyTimeout,
		timeout:      timeout,
	}, nil
}

// Start waits for the queue to become available and begins consuming.
func (c *RefreshConsumer) Start(ctx context.Context) error {
	c.logger.Info("starting refresh consumer")

	deliveries, err := c.subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.logger.Info("refresh consumer started, waiting for messages")

	go c.processMessages(runCtx, deliveries, done)

	return nil
}

func (c *RefreshConsumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	deadline := time.Now().Add(c.readyTimeout)
	for {
		deliveries, err := c.client.Consume()
		if err == nil {
			return deliveries, nil
		}
		if !errors.Is(err, mq.ErrNotConnected) || time.Now().After(deadline) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(consumerReadyPoll):
		}
	}
}

func (c *RefreshConsumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("deliveries channel closed")
				return
			}

			c.handleDelivery(ctx, delivery)
		}
	}
}

// handleDelivery refreshes one city. Every outcome is acked: a failed refresh
// is never retried in the background, the next request for the city does it.
func (c *RefreshConsumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	start := time.Now()

	city, err := parseRefreshBody(delivery.Body)
	if err != nil {
		c.logger.Warn("discarding malformed refresh request", "error", err)
		c.ack(delivery)
		c.record("rejected", start)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err = c.weather.GetWeather(reqCtx, city)
	switch {
	case err == nil:
		c.logger.Debug("cache refreshed", "city", city)
		c.ack(delivery)
		c.record("success", start)

	case weather.IsClientError(err):
		c.logger.Warn("refresh request rejected", "city", city, "error", err)
		c.ack(delivery)
		c.record("rejected", start)

	default:
		c.logger.Error("failed to refresh city", "city", city, "error", err)
		c.ack(delivery)
		c.record("failed", start)
	}
}

func (c *RefreshConsumer) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
	}
}

func (c *RefreshConsumer) record(status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ConsumerMessagesTotal.WithLabelValues(status).Inc()
	metrics.Since(c.metrics.ProcessingDuration.WithLabelValues(status), start)
}

func parseRefreshBody(body []byte) (string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", errors.New("empty message body")
	}

	if body[0] != '{' {
		return string(body), nil
	}

	var req RefreshRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", fmt.Errorf("failed to decode refresh request: %w", err)
	}
	if strings.TrimSpace(req.City) == "" {
		return "", errors.New("refresh request has no city")
	}
	return req.City, nil
}

// Stop stops consuming and closes the MQ client.
func (c *RefreshConsumer) Stop() error {
	c.logger.Info("stopping refresh consumer")

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close mq client: %w", err)
	}

	if done != nil {
		<-done
	}

	c.logger.Info("refresh consumer stopped")
	return nil
}
