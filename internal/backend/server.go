package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"google.golang.org/grpc"
	"gorm.io/gorm"

	"procodus.dev/weather-cache/internal/weather"
	"procodus.dev/weather-cache/pkg/metrics"
	"procodus.dev/weather-cache/pkg/mq"
	"procodus.dev/weather-cache/pkg/weatherrpc"
)

const shutdownTimeout = 10 * time.Second

// Server represents the backend server that manages the cache database, the HTTP
// and gRPC APIs, and the optional queue and warm-up workers.
type Server struct {
	logger *slog.Logger
	config *ServerConfig

	db         *gorm.DB
	httpApp    *fiber.App
	grpcServer *grpc.Server
	publisher  *Publisher
	consumer   *RefreshConsumer
	warmer     *Warmer
	mqMetrics  *metrics.MQMetrics

	httpAddr net.Addr
	grpcAddr net.Addr
	ready    chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger   *slog.Logger
	Database *DBConfig

	// Upstream configuration
	UpstreamBaseURL string
	APIKey          string
	UpstreamTimeout time.Duration

	// FreshnessWindow defaults to weather.DefaultFreshnessWindow.
	FreshnessWindow time.Duration

	// Listen addresses. An empty address disables that API; port 0 picks a free port.
	HTTPAddr string
	GRPCAddr string
	// AccessLog receives HTTP access log lines when set.
	AccessLog io.Writer

	// RabbitMQ configuration. Either queue may be left empty to disable it.
	RabbitMQURL  string
	EventsQueue  string
	RefreshQueue string

	// Cache warm-up
	WarmCities   []string
	WarmInterval time.Duration

	// MetricsNamespace enables Prometheus metrics when set.
	MetricsNamespace string
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Database == nil {
		return nil, errors.New("database config cannot be nil")
	}

	if cfg.APIKey == "" {
		return nil, errors.New("api key cannot be empty")
	}

	if cfg.HTTPAddr == "" && cfg.GRPCAddr == "" {
		return nil, errors.New("at least one of the HTTP or gRPC addresses must be set")
	}

	if cfg.RabbitMQURL == "" && (cfg.EventsQueue != "" || cfg.RefreshQueue != "") {
		return nil, errors.New("rabbitmq URL cannot be empty when a queue is configured")
	}

	if cfg.FreshnessWindow < 0 {
		return nil, errors.New("freshness window cannot be negative")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
		ready:  make(chan struct{}),
	}, nil
}

// Ready is closed once every listener is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// HTTPAddr returns the bound HTTP address, or nil before Ready.
func (s *Server) HTTPAddr() net.Addr {
	return s.httpAddr
}

// GRPCAddr returns the bound gRPC address, or nil before Ready.
func (s *Server) GRPCAddr() net.Addr {
	return s.grpcAddr
}

// Run starts the backend server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting backend server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var (
		backendMetrics *metrics.BackendMetrics
		weatherMetrics *metrics.WeatherMetrics
	)
	if ns := s.config.MetricsNamespace; ns != "" {
		backendMetrics = metrics.NewBackendMetrics(ns)
		weatherMetrics = metrics.NewWeatherMetrics(ns)
		if s.config.EventsQueue != "" || s.config.RefreshQueue != "" {
			s.mqMetrics = metrics.NewMQMetrics(ns)
		}
	}

	dbCfg := *s.config.Database
	dbCfg.Logger = s.logger
	db, err := NewDB(&dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	s.logger.Info("database initialized successfully")

	svc, err := s.buildService(db, weatherMetrics, backendMetrics)
	if err != nil {
		return errors.Join(err, s.Shutdown())
	}

	errCh := make(chan error, 2)

	if s.config.GRPCAddr != "" {
		if err := s.startGRPC(svc, backendMetrics, errCh); err != nil {
			return errors.Join(err, s.Shutdown())
		}
	}

	if s.config.HTTPAddr != "" {
		if err := s.startHTTP(svc, backendMetrics, errCh); err != nil {
			return errors.Join(err, s.Shutdown())
		}
	}

	if s.config.RefreshQueue != "" {
		if err := s.startConsumer(ctx, svc, backendMetrics); err != nil {
			return errors.Join(err, s.Shutdown())
		}
	}

	if len(s.config.WarmCities) > 0 {
		warmer, err := NewWarmer(&WarmerConfig{
			Logger:   s.logger,
			Weather:  svc,
			Metrics:  backendMetrics,
			Cities:   s.config.WarmCities,
			Interval: s.config.WarmInterval,
		})
		if err != nil {
			return errors.Join(fmt.Errorf("failed to initialize warmer: %w", err), s.Shutdown())
		}
		if err := warmer.Start(); err != nil {
			return errors.Join(err, s.Shutdown())
		}
		s.warmer = warmer
	}

	close(s.ready)
	s.logger.Info("backend server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-errCh:
		s.logger.Error("listener failed", "error", err)
		return errors.Join(err, s.Shutdown())
	}

	return s.Shutdown()
}

func (s *Server) buildService(db *gorm.DB, wm *metrics.WeatherMetrics, bm *metrics.BackendMetrics) (*weather.Service, error) {
	store, err := weather.NewStore(&weather.StoreConfig{
		DB:      db,
		Logger:  s.logger,
		Metrics: wm,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	baseURL := s.config.UpstreamBaseURL
	if baseURL == "" {
		baseURL = weather.DefaultBaseURL
	}
	upstream, err := weather.NewClient(&weather.ClientConfig{
		Logger:  s.logger,
		Metrics: wm,
		BaseURL: baseURL,
		APIKey:  s.config.APIKey,
		Timeout: s.config.UpstreamTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upstream client: %w", err)
	}

	svcCfg := &weather.ServiceConfig{
		Repository:      store,
		Upstream:        upstream,
		Logger:          s.logger,
		Metrics:         wm,
		FreshnessWindow: s.config.FreshnessWindow,
	}

	if s.config.EventsQueue != "" {
		client, err := mq.New(&mq.Config{
			QueueName: s.config.EventsQueue,
			URL:       s.config.RabbitMQURL,
			Logger:    s.logger,
			Metrics:   s.mqMetrics,
			Durable:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize events queue: %w", err)
		}
		pub, err := NewPublisher(&PublisherConfig{
			Logger:  s.logger,
			Client:  client,
			Metrics: bm,
		})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to initialize publisher: %w", err)
		}
		pub.Start()
		s.publisher = pub
		svcCfg.Notifier = pub
	}

	svc, err := weather.NewService(svcCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize weather service: %w", err)
	}
	return svc, nil
}

func (s *Server) startGRPC(svc WeatherGetter, m *metrics.BackendMetrics, errCh chan<- error) error {
	grpcService, err := NewWeatherGRPCService(s.logger, svc, m)
	if err != nil {
		return fmt.Errorf("failed to initialize gRPC service: %w", err)
	}

	s.grpcServer = grpc.NewServer()
	weatherrpc.RegisterWeatherServiceServer(s.grpcServer, grpcService)

	lis, err := net.Listen("tcp", s.config.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.GRPCAddr, err)
	}
	s.grpcAddr = lis.Addr()

	s.logger.Info("starting gRPC server", "address", s.grpcAddr.String())

	go func() {
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	return nil
}

func (s *Server) startHTTP(svc WeatherGetter, m *metrics.BackendMetrics, errCh chan<- error) error {
	db := s.db
	app, err := NewHTTPApp(&HTTPConfig{
		Logger:    s.logger,
		Weather:   svc,
		Metrics:   m,
		AccessLog: s.config.AccessLog,
		Health: func(ctx context.Context) error {
			if m != nil {
				if sqlDB, err := db.DB(); err == nil {
					m.DBConnectionsOpen.Set(float64(sqlDB.Stats().OpenConnections))
				}
			}
			return PingDB(ctx, db)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP API: %w", err)
	}
	s.httpApp = app

	lis, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.HTTPAddr, err)
	}
	s.httpAddr = lis.Addr()

	s.logger.Info("starting HTTP server", "address", s.httpAddr.String())

	go func() {
		if err := app.Listener(lis); err != nil {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	return nil
}

func (s *Server) startConsumer(ctx context.Context, svc WeatherGetter, m *metrics.BackendMetrics) error {
	client, err := mq.New(&mq.Config{
		QueueName: s.config.RefreshQueue,
		URL:       s.config.RabbitMQURL,
		Logger:    s.logger,
		Metrics:   s.mqMetrics,
		Durable:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize refresh queue: %w", err)
	}

	consumer, err := NewRefreshConsumer(&RefreshConsumerConfig{
		Logger:  s.logger,
		Weather: svc,
		Client:  client,
		Metrics: m,
	})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	s.consumer = consumer

	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server. It is safe to call more than once.
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown()
	})
	return s.shutdownErr
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down backend server")

	var errs []error

	if s.httpApp != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.httpApp.ShutdownWithContext(ctx); err != nil {
			s.logger.Error("failed to stop HTTP server", "error", err)
			errs = append(errs, fmt.Errorf("HTTP shutdown error: %w", err))
		}
		cancel()
	}

	if s.grpcServer != nil {
		s.logger.Info("stopping gRPC server")
		s.grpcServer.GracefulStop()
		s.logger.Info("gRPC server stopped")
	}

	if s.warmer != nil {
		s.warmer.Stop()
	}

	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
			errs = append(errs, fmt.Errorf("consumer shutdown error: %w", err))
		}
	}

	// After the APIs and workers so no new readings are reported mid-drain.
	if s.publisher != nil {
		if err := s.publisher.Stop(); err != nil {
			s.logger.Error("failed to stop publisher", "error", err)
			errs = append(errs, fmt.Errorf("publisher shutdown error: %w", err))
		}
	}

	if s.db != nil {
		if err := CloseDB(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			errs = append(errs, fmt.Errorf("database close error: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("backend server shutdown completed with errors", "error", err)
		return err
	}

	s.logger.Info("backend server shutdown completed successfully")
	return nil
}
