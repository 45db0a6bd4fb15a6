package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ProducerMetrics contains Prometheus metrics for the refresh request producer.
type ProducerMetrics struct {
	RequestsPublished *prometheus.CounterVec
	PublishFailures   *prometheus.CounterVec
	PublishDuration   prometheus.Histogram
	ActiveProducers   prometheus.Gauge
	CitiesGenerated   prometheus.Counter
}

// NewProducerMetrics creates and registers producer metrics.
func NewProducerMetrics(namespace string) *ProducerMetrics {
	m := &ProducerMetrics{
		RequestsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "requests_published_total",
				Help:      "Total number of refresh requests published",
			},
			[]string{"status"},
		),
		PublishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "publish_failures_total",
				Help:      "Total number of refresh requests that could not be published",
			},
			[]string{"reason"}, // reason: marshal_error, push_error
		),
		PublishDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "publish_duration_seconds",
				Help:      "Duration of refresh request publishing",
				Buckets:   prometheus.DefBuckets,
			},
		),
		ActiveProducers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "active_producers",
				Help:      "Number of currently active producers",
			},
		),
		CitiesGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "cities_generated_total",
				Help:      "Total number of fake cities generated",
			},
		),
	}

	MustRegister(
		m.RequestsPublished,
		m.PublishFailures,
		m.PublishDuration,
		m.ActiveProducers,
		m.CitiesGenerated,
	)

	return m
}
