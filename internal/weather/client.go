package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"

	"procodus.dev/weather-cache/pkg/metrics"
)

const (
	// DefaultBaseURL is the OpenWeather API root.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
	// DefaultTimeout bounds a single upstream request.
	DefaultTimeout = 10 * time.Second

	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second

	// maxBodyBytes caps how much of an upstream response is read.
	maxBodyBytes = 1 << 20
	// maxErrorBody caps the upstream body kept on an UpstreamError.
	maxErrorBody = 512
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ClientConfig holds the configuration for the upstream client.
type ClientConfig struct {
	Logger *slog.Logger `validate:"required"`
	// HTTPClient is optional; its Timeout is overridden by Timeout when set.
	HTTPClient *http.Client `validate:"-"`
	// Metrics is optional.
	Metrics *metrics.WeatherMetrics `validate:"-"`
	BaseURL string `validate:"required,url"`
	APIKey  string `validate:"required"`
	// Timeout bounds each upstream request (defaults to 10s).
	Timeout time.Duration `validate:"gte=0"`
	// BreakerOpenTimeout is how long the breaker stays open before probing again
	// (defaults to 30s).
	BreakerOpenTimeout time.Duration `validate:"gte=0"`
	// BreakerFailures is the number of consecutive failures that opens the breaker
	// (defaults to 5).
	BreakerFailures uint32
}

// Client fetches current weather from the OpenWeather API. It never retries;
// a circuit breaker short-circuits calls while the upstream keeps failing.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.WeatherMetrics
	baseURL string
	apiKey  string
}

// NewClient validates cfg and creates a new Client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := &http.Client{}
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		httpClient = &clone
	}
	httpClient.Timeout = timeout

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	openTimeout := cfg.BreakerOpenTimeout
	if openTimeout == 0 {
		openTimeout = defaultBreakerTimeout
	}

	c := &Client{
		http:    httpClient,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("upstream circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if c.metrics != nil {
				c.metrics.BreakerState.Set(float64(to))
			}
		},
	})

	return c, nil
}

// breakerSuccess keeps answers about the request itself, and callers giving up,
// from counting against the upstream.
func breakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrCityNotFound) ||
		errors.Is(err, ErrUpstreamAuth) ||
		errors.Is(err, context.Canceled)
}

// Fetch returns the raw upstream payload for city, unmodified.
func (c *Client) Fetch(ctx context.Context, city string) ([]byte, error) {
	start := time.Now()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, city)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.observe("breaker_open", start)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	c.observe(outcome(err), start)
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) do(ctx context.Context, city string) ([]byte, error) {
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/weather?"+q.Encode(), nil)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// *url.Error embeds the request URL, API key included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		c.logger.Error("upstream request failed", "city", city, "error", err)
		return nil, &UpstreamError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %q", ErrCityNotFound, city)
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.Error("upstream rejected the API key", "status", resp.StatusCode)
		return nil, ErrUpstreamAuth
	default:
		c.logger.Error("upstream returned an error",
			"city", city,
			"status", resp.StatusCode,
			"body", truncate(string(body), maxErrorBody),
		)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
	}
}

func (c *Client) observe(outcome string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamRequests.WithLabelValues(outcome).Inc()
	metrics.Since(c.metrics.UpstreamDuration, start)
}

func outcome(err error) string {
	var upstreamErr *UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCityNotFound):
		return "not_found"
	case errors.Is(err, ErrUpstreamAuth):
		return "auth"
	case errors.As(err, &upstreamErr) && upstreamErr.StatusCode == 0:
		return "transport"
	default:
		return "status"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
