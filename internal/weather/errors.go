package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

var (
	// ErrInvalidCity is returned for an empty city name.
	ErrInvalidCity = errors.New("city name must not be empty")
	// ErrCityNotFound is returned when the upstream does not know the city.
	ErrCityNotFound = errors.New("city not found")
	// ErrUpstreamAuth is returned when the upstream rejects the API key.
	ErrUpstreamAuth = errors.New("upstream rejected the API key")
	// ErrUpstreamUnavailable is returned while the upstream circuit breaker is open.
	ErrUpstreamUnavailable = errors.New("upstream temporarily unavailable")
)

// UpstreamError is a non-2xx upstream response, or a transport failure when
// StatusCode is 0.
type UpstreamError struct {
	Err        error
	Body       string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ParseError reports an upstream payload that does not have the expected shape.
type ParseError struct {
	Err   error
	Field string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid upstream payload: %v", e.Err)
	}
	return fmt.Sprintf("invalid upstream payload field %q: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a failed store operation.
type PersistenceError struct {
	Err error
	Op  string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps a GetWeather error onto an HTTP status code.
func HTTPStatus(err error) int {
	var upstreamErr *UpstreamError

	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidCity):
		return http.StatusBadRequest
	case errors.Is(err, ErrCityNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrUpstreamAuth), errors.As(err, &upstreamErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GRPCCode maps a GetWeather error onto a gRPC status code.
func GRPCCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrInvalidCity):
		return codes.InvalidArgument
	case errors.Is(err, ErrCityNotFound):
		return codes.NotFound
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}

	var upstreamErr *UpstreamError
	if errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrUpstreamAuth) || errors.As(err, &upstreamErr) {
		return codes.Unavailable
	}
	return codes.Internal
}

// IsClientError reports whether err was caused by the request rather than by the
// upstream or the store. Retrying such requests cannot succeed.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCity) || errors.Is(err, ErrCityNotFound)
}
