// Package producer publishes cache refresh requests onto a message queue.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"procodus.dev/weather-cache/internal/backend"
	"procodus.dev/weather-cache/pkg/generator"
	"procodus.dev/weather-cache/pkg/metrics"
	"procodus.dev/weather-cache/pkg/mq"
)

// Producer cycles through a set of cities and publishes a refresh request for
// one of them on every call to PublishNext.
type Producer struct {
	client  mq.ClientInterface
	cities  []string
	metrics *metrics.ProducerMetrics // Optional metrics

	mu   sync.Mutex
	next int
}

// NewProducer creates a producer for cities. Blank names are skipped; when none
// remain, between one and five fake cities are generated.
func NewProducer(client mq.ClientInterface, cities []string, m *metrics.ProducerMetrics) (*Producer, error) {
	if client == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	names := make([]string, 0, len(cities))
	for _, c := range cities {
		if c = strings.TrimSpace(c); c != "" {
			names = append(names, c)
		}
	}

	if len(names) == 0 {
		count := gofakeit.IntRange(1, 5)
		for range count {
			names = append(names, generator.RandomCity().Name)
		}
		if m != nil {
			m.CitiesGenerated.Add(float64(count))
		}
	}

	return &Producer{
		client:  client,
		cities:  names,
		metrics: m,
	}, nil
}

// Cities returns the cities this producer requests.
func (p *Producer) Cities() []string {
	return append([]string(nil), p.cities...)
}

// PublishNext publishes a refresh request for the next city in turn.
func (p *Producer) PublishNext(ctx context.Context) (string, error) {
	p.mu.Lock()
	city := p.cities[p.next%len(p.cities)]
	p.next++
	p.mu.Unlock()

	return city, p.Publish(ctx, city)
}

// Publish publishes a refresh request for city.
func (p *Producer) Publish(ctx context.Context, city string) error {
	start := time.Now()
	if p.metrics != nil {
		defer metrics.Since(p.metrics.PublishDuration, start)
	}

	message, err := json.Marshal(backend.RefreshRequest{City: city})
	if err != nil {
		p.fail("marshal_error")
		return err
	}

	if err := p.client.Push(ctx, message); err != nil {
		p.fail("push_error")
		return err
	}

	if p.metrics != nil {
		p.metrics.RequestsPublished.WithLabelValues("success").Inc()
	}
	return nil
}

func (p *Producer) fail(reason string) {
	if p.metrics != nil {
		p.metrics.PublishFailures.WithLabelValues(reason).Inc()
		p.metrics.RequestsPublished.WithLabelValues("error").Inc()
	}
}
