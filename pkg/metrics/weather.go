package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WeatherMetrics covers the cache-through pipeline: lookups, upstream calls and writes.
type WeatherMetrics struct {
	CacheLookups      *prometheus.CounterVec
	UpstreamRequests  *prometheus.CounterVec
	UpstreamDuration  prometheus.Histogram
	BreakerState      prometheus.Gauge
	PersistOperations *prometheus.CounterVec
	PersistDuration   prometheus.Histogram
	ReadingsStored    prometheus.Counter
}

// NewWeatherMetrics creates and registers cache pipeline metrics.
func NewWeatherMetrics(namespace string) *WeatherMetrics {
	m := &WeatherMetrics{
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Total number of cache lookups by result",
			},
			[]string{"result"}, // hit, miss, error
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of upstream weather API requests by outcome",
			},
			[]string{"outcome"}, // ok, not_found, auth, status, transport, breaker_open
		),
		UpstreamDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Duration of upstream weather API requests",
				Buckets:   prometheus.DefBuckets,
			},
		),
		BreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "upstream",
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
		),
		PersistOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "persist_total",
				Help:      "Total number of transactional reading writes",
			},
			[]string{"status"},
		),
		PersistDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "persist_duration_seconds",
				Help:      "Duration of transactional reading writes",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ReadingsStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "readings_stored_total",
				Help:      "Total number of readings committed",
			},
		),
	}

	MustRegister(
		m.CacheLookups,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.BreakerState,
		m.PersistOperations,
		m.PersistDuration,
		m.ReadingsStored,
	)

	return m
}
