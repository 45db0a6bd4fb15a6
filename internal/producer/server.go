package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"procodus.dev/weather-cache/pkg/metrics"
	"procodus.dev/weather-cache/pkg/mq"
)

// ServerConfig holds the configuration for the producer server.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// RabbitMQURL is the connection string for RabbitMQ
	RabbitMQURL string
	// QueueName is the refresh queue consumed by the backend
	QueueName string
	// Cities to refresh. Each producer generates its own fake cities when empty.
	Cities []string
	// Interval is the time between refresh requests of one producer
	Interval time.Duration
	// ProducerCount is the number of concurrent producers
	ProducerCount int
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.ProducerMetrics
	// MQMetrics is the optional Prometheus metrics collector for MQ operations
	MQMetrics *metrics.MQMetrics
}

// Server manages multiple producer instances.
type Server struct {
	logger    *slog.Logger
	config    *ServerConfig
	producers []*Producer
	clients   []mq.ClientInterface
	wg        sync.WaitGroup
	metrics   *metrics.ProducerMetrics
	closeOnce sync.Once
}

var (
	errInvalidProducerCount = errors.New("producer count must be greater than 0")
	errInvalidInterval      = errors.New("interval must be greater than 0")
	errLoggerRequired       = errors.New("logger is required")
)

// NewServer creates a new producer server with the given configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.ProducerCount <= 0 {
		return nil, errInvalidProducerCount
	}

	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	s := &Server{
		config:    cfg,
		producers: make([]*Producer, 0, cfg.ProducerCount),
		clients:   make([]mq.ClientInterface, 0, cfg.ProducerCount),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}

	for i := range cfg.ProducerCount {
		client, err := mq.New(&mq.Config{
			QueueName: cfg.QueueName,
			URL:       cfg.RabbitMQURL,
			Durable:   true,
			Metrics:   cfg.MQMetrics,
			Logger: cfg.Logger.With(
				slog.String("component", "mq-client"),
				slog.Int("producer_id", i),
			),
		})
		if err != nil {
			s.closeClients()
			return nil, fmt.Errorf("failed to create mq client: %w", err)
		}

		if err := s.add(client); err != nil {
			_ = client.Close()
			s.closeClients()
			return nil, err
		}
	}

	return s, nil
}

// NewServerWithClients creates a server that publishes through the given clients,
// one producer per client.
func NewServerWithClients(cfg *ServerConfig, clients ...mq.ClientInterface) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if len(clients) == 0 {
		return nil, errInvalidProducerCount
	}

	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	s := &Server{
		config:  cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	for _, client := range clients {
		if err := s.add(client); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Server) add(client mq.ClientInterface) error {
	producer, err := NewProducer(client, s.config.Cities, s.metrics)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	s.clients = append(s.clients, client)
	s.producers = append(s.producers, producer)

	s.logger.Info("created producer instance",
		"producer_id", len(s.producers)-1,
		"queue", s.config.QueueName,
		"cities", producer.Cities(),
	)
	return nil
}

// Run starts all producers and blocks until shutdown signal is received.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for i, producer := range s.producers {
		s.wg.Add(1)
		go s.runProducer(ctx, i, producer)
	}

	s.logger.Info("producer server started",
		"producer_count", len(s.producers),
		"interval", s.config.Interval,
	)

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down")
	}

	s.logger.Info("waiting for producers to shut down...")
	s.wg.Wait()

	s.logger.Info("closing MQ clients...")
	s.closeClients()

	s.logger.Info("producer server stopped")
	return nil
}

// runProducer publishes one refresh request per interval until ctx is done.
func (s *Server) runProducer(ctx context.Context, id int, producer *Producer) {
	defer s.wg.Done()

	if s.metrics != nil {
		s.metrics.ActiveProducers.Inc()
		defer s.metrics.ActiveProducers.Dec()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	producerLogger := s.logger.With(slog.Int("producer_id", id))
	producerLogger.Info("producer started")

	for {
		select {
		case <-ctx.Done():
			producerLogger.Info("producer shutting down")
			return

		case <-ticker.C:
			city, err := producer.PublishNext(ctx)
			if err != nil {
				producerLogger.Error("failed to publish refresh request",
					"city", city,
					"error", err,
				)
				continue
			}

			producerLogger.Debug("refresh request published", "city", city)
		}
	}
}

// closeClients closes all MQ clients once.
func (s *Server) closeClients() {
	s.closeOnce.Do(func() {
		var wg sync.WaitGroup
		for i, client := range s.clients {
			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := client.Close(); err != nil {
					s.logger.Error("failed to close MQ client",
						"producer_id", i,
						"error", err,
					)
					return
				}

				s.logger.Info("MQ client closed", "producer_id", i)
			}()
		}
		wg.Wait()
	})
}

// Shutdown initiates a graceful shutdown of the server.
// This is an alternative to sending OS signals.
func (s *Server) Shutdown() error {
	s.logger.Info("shutdown requested")
	s.closeClients()
	return nil
}
