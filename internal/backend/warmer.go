package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"procodus.dev/weather-cache/pkg/metrics"
)

const (
	defaultWarmInterval = 15 * time.Minute
	defaultWarmTimeout  = 30 * time.Second
)

// WarmerConfig holds the configuration for the Warmer.
type WarmerConfig struct {
	Logger  *slog.Logger
	Weather WeatherGetter
	Metrics *metrics.BackendMetrics
	Cities  []string
	// Interval between runs. The first run starts immediately.
	Interval time.Duration
	// Timeout bounds each GetWeather call.
	Timeout time.Duration
}

// Warmer periodically requests weather for a fixed set of cities so their cached
// readings stay fresh.
type Warmer struct {
	scheduler *gocron.Scheduler
	logger    *slog.Logger
	weather   WeatherGetter
	metrics   *metrics.BackendMetrics
	cities    []string
	interval  time.Duration
	timeout   time.Duration
}

// NewWarmer creates a Warmer. Blank city names are skipped.
func NewWarmer(cfg *WarmerConfig) (*Warmer, error) {
	if cfg == nil {
		return nil, errors.New("warmer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Weather == nil {
		return nil, errors.New("weather service cannot be nil")
	}

	cities := make([]string, 0, len(cfg.Cities))
	for _, c := range cfg.Cities {
		if c = strings.TrimSpace(c); c != "" {
			cities = append(cities, c)
		}
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultWarmInterval
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWarmTimeout
	}

	return &Warmer{
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    cfg.Logger.With("component", "warmer"),
		weather:   cfg.Weather,
		metrics:   cfg.Metrics,
		cities:    cities,
		interval:  interval,
		timeout:   timeout,
	}, nil
}

// Cities returns the cities refreshed on every run.
func (w *Warmer) Cities() []string {
	return append([]string(nil), w.cities...)
}

// Start schedules the periodic job and starts the underlying scheduler.
func (w *Warmer) Start() error {
	if len(w.cities) == 0 {
		w.logger.Info("no cities configured; nothing to warm")
		return nil
	}

	_, err := w.scheduler.Every(w.interval).SingletonMode().Do(func() {
		w.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule warm job: %w", err)
	}

	w.scheduler.StartAsync()
	w.logger.Info("warmer started", "cities", len(w.cities), "interval", w.interval)
	return nil
}

// RunOnce refreshes every configured city concurrently and returns the number of
// failures.
func (w *Warmer) RunOnce(ctx context.Context) int {
	w.logger.Debug("running warm job")

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, city := range w.cities {
		wg.Add(1)
		go func() {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()

			_, err := w.weather.GetWeather(callCtx, city)
			if w.metrics != nil {
				w.metrics.WarmerRuns.WithLabelValues(metrics.StatusLabel(err)).Inc()
			}
			if err != nil {
				w.logger.Warn("warm fetch failed", "city", city, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	w.logger.Debug("warm job completed", "cities", len(w.cities), "failed", failed)
	return failed
}

// Stop stops the scheduler and cancels any future runs.
func (w *Warmer) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
