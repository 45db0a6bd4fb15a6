package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"procodus.dev/weather-cache/pkg/metrics"
)

// DefaultFreshnessWindow is how long a stored reading answers requests.
const DefaultFreshnessWindow = 30 * time.Minute

// Fetcher retrieves a raw upstream payload for a city. *Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, city string) ([]byte, error)
}

// Repository is the storage surface used by the Service. *Store implements it.
type Repository interface {
	FindCityByName(ctx context.Context, name string) (*City, error)
	FindFreshReading(ctx context.Context, cityID uint, windowStart int64) (*CurrentReading, error)
	Persist(ctx context.Context, d *Decomposed) (*CurrentReading, error)
}

// StoredReading describes a reading committed on a cache miss.
type StoredReading struct {
	StoredAt   time.Time
	City       string
	ReadingID  uint
	ObservedAt int64
}

// ReadingNotifier is told about every committed reading. It must not block and
// cannot fail the request; the reading is already committed.
type ReadingNotifier interface {
	ReadingStored(ctx context.Context, r StoredReading)
}

// ServiceConfig holds the configuration for the Service.
type ServiceConfig struct {
	Repository Repository
	Upstream   Fetcher
	Logger     *slog.Logger
	// Metrics is optional.
	Metrics *metrics.WeatherMetrics
	// Notifier is optional.
	Notifier ReadingNotifier
	// Now defaults to time.Now.
	Now func() time.Time
	// FreshnessWindow defaults to DefaultFreshnessWindow.
	FreshnessWindow time.Duration
}

// Service answers weather requests from the store while a reading is fresh and
// from the upstream otherwise.
type Service struct {
	repo     Repository
	upstream Fetcher
	logger   *slog.Logger
	metrics  *metrics.WeatherMetrics
	notifier ReadingNotifier
	now      func() time.Time
	window   time.Duration
}

// NewService creates a new Service.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Repository == nil {
		return nil, errors.New("repository cannot be nil")
	}
	if cfg.Upstream == nil {
		return nil, errors.New("upstream cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.FreshnessWindow < 0 {
		return nil, errors.New("freshness window cannot be negative")
	}

	window := cfg.FreshnessWindow
	if window == 0 {
		window = DefaultFreshnessWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		repo:     cfg.Repository,
		upstream: cfg.Upstream,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		notifier: cfg.Notifier,
		now:      now,
		window:   window,
	}, nil
}

// FreshnessWindow returns the configured freshness window.
func (s *Service) FreshnessWindow() time.Duration {
	return s.window
}

// GetWeather returns the current weather for city as upstream-shaped JSON.
//
// A fresh stored reading is rendered from the store. Otherwise the upstream is
// called once, the payload is persisted in one transaction, and the upstream bytes
// are returned unchanged. The two shapes differ slightly: a rendered payload has a
// single "weather" element and store row ids.
func (s *Service) GetWeather(ctx context.Context, city string) ([]byte, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, ErrInvalidCity
	}

	log := s.logger.With("city", city)

	cached, err := s.lookup(ctx, city)
	if err != nil {
		s.countLookup("error")
		return nil, err
	}
	if cached != nil {
		s.countLookup("hit")
		log.Info("returning cached weather", "reading_id", cached.ID, "observed_at", cached.ObservedAt)
		body, err := Render(cached)
		if err != nil {
			return nil, fmt.Errorf("failed to render reading: %w", err)
		}
		return body, nil
	}

	s.countLookup("miss")
	log.Info("fetching fresh weather from upstream")

	raw, err := s.upstream.Fetch(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch weather for %q: %w", city, err)
	}

	decomposed, err := Decompose(raw)
	if err != nil {
		log.Error("upstream payload rejected", "error", err)
		return nil, err
	}

	saved, err := s.repo.Persist(ctx, decomposed)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, saved)
	return raw, nil
}

// lookup returns a fresh reading for city, or nil when the cache cannot answer.
func (s *Service) lookup(ctx context.Context, city string) (*CurrentReading, error) {
	found, err := s.repo.FindCityByName(ctx, city)
	if err != nil || found == nil {
		return nil, err
	}

	windowStart := s.now().Add(-s.window).Unix()
	return s.repo.FindFreshReading(ctx, found.ID, windowStart)
}

func (s *Service) notify(ctx context.Context, saved *CurrentReading) {
	if s.notifier == nil || saved == nil {
		return
	}

	name := ""
	if saved.City != nil {
		name = saved.City.Name
	}
	s.notifier.ReadingStored(ctx, StoredReading{
		City:       name,
		ReadingID:  saved.ID,
		ObservedAt: saved.ObservedAt,
		StoredAt:   s.now().UTC(),
	})
}

func (s *Service) countLookup(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}
