package backend

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"procodus.dev/weather-cache/internal/weather"
	"procodus.dev/weather-cache/pkg/metrics"
	"procodus.dev/weather-cache/pkg/weatherrpc"
)

// WeatherGetter answers weather requests. *weather.Service implements it.
type WeatherGetter interface {
	GetWeather(ctx context.Context, city string) ([]byte, error)
}

// WeatherGRPCService implements weatherrpc.WeatherServiceServer.
type WeatherGRPCService struct {
	weatherrpc.UnimplementedWeatherServiceServer
	logger  *slog.Logger
	weather WeatherGetter
	metrics *metrics.BackendMetrics // Optional metrics
}

// NewWeatherGRPCService creates a new WeatherGRPCService instance.
func NewWeatherGRPCService(logger *slog.Logger, w WeatherGetter, m *metrics.BackendMetrics) (*WeatherGRPCService, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if w == nil {
		return nil, errors.New("weather service cannot be nil")
	}

	return &WeatherGRPCService{
		logger:  logger,
		weather: w,
		metrics: m,
	}, nil
}

// GetWeather returns the weather document for the requested city.
func (s *WeatherGRPCService) GetWeather(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	const method = "GetWeather"

	if s.metrics != nil {
		s.metrics.GRPCRequestsInFlight.WithLabelValues(method).Inc()
		defer s.metrics.GRPCRequestsInFlight.WithLabelValues(method).Dec()

		timer := prometheus.NewTimer(s.metrics.GRPCRequestDuration.WithLabelValues(method))
		defer timer.ObserveDuration()
	}

	city := req.GetValue()
	s.logger.Debug("GetWeather called", "city", city)

	body, err := s.weather.GetWeather(ctx, city)
	if err != nil {
		s.track(method, err)
		code := weather.GRPCCode(err)
		if code == codes.Internal {
			s.logger.Error("failed to get weather", "city", city, "error", err)
		} else {
			s.logger.Warn("weather request rejected", "city", city, "code", code.String(), "error", err)
		}
		return nil, status.Error(code, err.Error())
	}

	out, err := weatherrpc.PayloadToStruct(body)
	s.track(method, err)
	if err != nil {
		s.logger.Error("failed to convert weather payload", "city", city, "error", err)
		return nil, status.Errorf(codes.Internal, "failed to encode weather: %v", err)
	}

	return out, nil
}

func (s *WeatherGRPCService) track(method string, err error) {
	if s.metrics != nil {
		s.metrics.GRPCRequestsTotal.WithLabelValues(method, metrics.StatusLabel(err)).Inc()
	}
}
