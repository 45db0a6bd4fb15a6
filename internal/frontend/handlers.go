// Package frontend provides the web frontend for the weather cache.
package frontend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"procodus.dev/weather-cache/internal/weather"
	"procodus.dev/weather-cache/pkg/metrics"
	"procodus.dev/weather-cache/pkg/weatherrpc"
)

// handleIndex serves the search page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("handling index request")

	if err := render(r.Context(), w, s.metrics, "index", http.StatusOK, index()); err != nil {
		s.logger.Error("failed to render index", "error", err)
	}
}

// handleWeather serves the current weather page for ?city=.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.logger.Debug("handling weather request", "city", city)

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	view, err := s.fetchWeather(ctx, city)
	if err != nil {
		code, title, message := describeError(err, city)
		if code >= http.StatusInternalServerError {
			s.logger.Error("failed to fetch weather", "city", city, "error", err)
		}
		if rErr := render(r.Context(), w, s.metrics, "problem", code, problem(title, message)); rErr != nil {
			s.logger.Error("failed to render error page", "error", rErr)
		}
		return
	}

	if err := render(r.Context(), w, s.metrics, "weather", http.StatusOK, weatherPage(view)); err != nil {
		s.logger.Error("failed to render weather", "city", city, "error", err)
	}
}

func (s *Server) fetchWeather(ctx context.Context, city string) (WeatherView, error) {
	const method = "GetWeather"

	start := time.Now()
	resp, err := s.client.GetWeather(ctx, wrapperspb.String(city))
	if s.metrics != nil {
		s.metrics.GRPCClientCalls.WithLabelValues(method, status.Code(err).String()).Inc()
		metrics.Since(s.metrics.GRPCClientDuration.WithLabelValues(method), start)
	}
	if err != nil {
		return WeatherView{}, err
	}

	body, err := weatherrpc.StructToPayload(resp)
	if err != nil {
		return WeatherView{}, err
	}

	var payload weather.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return WeatherView{}, err
	}
	return newWeatherView(&payload), nil
}

// describeError turns a backend error into a status and a message for the user.
func describeError(err error, city string) (int, string, string) {
	switch status.Code(err) {
	case codes.InvalidArgument:
		return http.StatusBadRequest, "Invalid city", "Please enter a city name."
	case codes.NotFound:
		return http.StatusNotFound, "City not found", "No weather is available for " + city + "."
	case codes.Unavailable:
		return http.StatusServiceUnavailable, "Weather unavailable", "The weather service is unavailable. Please try again later."
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout, "Weather unavailable", "The weather service took too long to answer."
	default:
		return http.StatusBadGateway, "Something went wrong", "The weather for " + city + " could not be loaded."
	}
}

// handleHealth serves health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		s.logger.Error("failed to write health response", "error", err)
	}
}
