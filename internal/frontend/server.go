package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"procodus.dev/weather-cache/pkg/metrics"
	"procodus.dev/weather-cache/pkg/weatherrpc"
)

const defaultRequestTimeout = 15 * time.Second

// Server represents the frontend HTTP server.
type Server struct {
	logger         *slog.Logger
	httpServer     *http.Server
	client         weatherrpc.WeatherServiceClient
	grpcConn       *grpc.ClientConn
	metrics        *metrics.FrontendMetrics
	config         *ServerConfig
	requestTimeout time.Duration

	addr  net.Addr
	ready chan struct{}
	once  sync.Once
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// HTTPAddr is the listen address; port 0 picks a free port.
	HTTPAddr string

	// BackendGRPCAddr is dialed by Run unless Client is set.
	BackendGRPCAddr string
	Client          weatherrpc.WeatherServiceClient

	// RequestTimeout bounds each backend call (defaults to 15s).
	RequestTimeout time.Duration

	// Metrics is optional.
	Metrics *metrics.FrontendMetrics
}

// NewServer creates a new frontend Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("HTTP address cannot be empty")
	}

	if cfg.BackendGRPCAddr == "" && cfg.Client == nil {
		return nil, errors.New("backend gRPC address cannot be empty")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Server{
		logger:         cfg.Logger.With("component", "frontend"),
		client:         cfg.Client,
		metrics:        cfg.Metrics,
		config:         cfg,
		requestTimeout: timeout,
		ready:          make(chan struct{}),
	}, nil
}

// Ready is closed once the HTTP listener is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound HTTP address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Run starts the frontend server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting frontend server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if s.client == nil {
		s.logger.Info("connecting to backend gRPC server", "address", s.config.BackendGRPCAddr)
		conn, err := grpc.NewClient(
			s.config.BackendGRPCAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return fmt.Errorf("failed to connect to backend: %w", err)
		}
		s.grpcConn = conn
		s.client = weatherrpc.NewWeatherServiceClient(conn)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	lis, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to listen on %s: %w", s.config.HTTPAddr, err), s.Shutdown())
	}
	s.addr = lis.Addr()

	s.logger.Info("starting HTTP server", "address", s.addr.String())

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	close(s.ready)
	s.logger.Info("frontend server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			return errors.Join(err, s.Shutdown())
		}
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server. Later calls are no-ops.
func (s *Server) Shutdown() error {
	var shutdownErr error
	s.once.Do(func() {
		shutdownErr = s.shutdown()
	})
	return shutdownErr
}

func (s *Server) shutdown() error {
	s.logger.Info("shutting down frontend server")

	var errs []error

	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
		}
		s.logger.Info("HTTP server stopped")
	}

	if s.grpcConn != nil {
		s.logger.Info("closing gRPC connection")
		if err := s.grpcConn.Close(); err != nil {
			s.logger.Error("failed to close gRPC connection", "error", err)
			errs = append(errs, fmt.Errorf("gRPC connection close error: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("frontend server shutdown completed with errors", "error", err)
		return err
	}

	s.logger.Info("frontend server shutdown completed successfully")
	return nil
}

// Handler returns the HTTP routes. It requires a backend client, either from
// ServerConfig.Client or from Run.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /weather", s.handleWeather)
	mux.HandleFunc("GET /{$}", s.handleIndex)

	if s.metrics == nil {
		return mux
	}
	return s.instrument(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)

		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		metrics.Since(s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern), start)
	})
}
