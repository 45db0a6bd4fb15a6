package backend

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"procodus.dev/weather-cache/internal/weather"
	"procodus.dev/weather-cache/pkg/metrics"
	"procodus.dev/weather-cache/pkg/mq"
)

const (
	defaultEventBuffer      = 256
	defaultEventPushTimeout = 5 * time.Second
)

// ReadingEvent is the message published for every committed reading.
type ReadingEvent struct {
	StoredAt   time.Time `json:"stored_at"`
	ID         string    `json:"id"`
	City       string    `json:"city"`
	ReadingID  uint      `json:"reading_id"`
	ObservedAt int64     `json:"observed_at"`
}

// PublisherConfig holds the configuration for the Publisher.
type PublisherConfig struct {
	Logger  *slog.Logger
	Client  mq.ClientInterface
	Metrics *metrics.BackendMetrics
	// BufferSize bounds the number of events waiting to be pushed.
	BufferSize  int
	PushTimeout time.Duration
}

// Publisher pushes ReadingEvents onto a queue from a background worker.
// It implements weather.ReadingNotifier.
type Publisher struct {
	logger      *slog.Logger
	client      mq.ClientInterface
	metrics     *metrics.BackendMetrics
	events      chan ReadingEvent
	done        chan struct{}
	pushTimeout time.Duration

	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewPublisher creates a new Publisher. Call Start to begin pushing.
func NewPublisher(cfg *PublisherConfig) (*Publisher, error) {
	if cfg == nil {
		return nil, errors.New("publisher config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	size := cfg.BufferSize
	if size <= 0 {
		size = defaultEventBuffer
	}

	timeout := cfg.PushTimeout
	if timeout <= 0 {
		timeout = defaultEventPushTimeout
	}

	return &Publisher{
		logger:      cfg.Logger.With("component", "publisher"),
		client:      cfg.Client,
		metrics:     cfg.Metrics,
		events:      make(chan ReadingEvent, size),
		done:        make(chan struct{}),
		pushTimeout: timeout,
	}, nil
}

// Start launches the push worker. It is a no-op after the first call.
func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	go p.run()
}

// ReadingStored enqueues an event for r. It never blocks; events are dropped when
// the buffer is full or the publisher is stopped.
func (p *Publisher) ReadingStored(_ context.Context, r weather.StoredReading) {
	ev := ReadingEvent{
		ID:         uuid.NewString(),
		City:       r.City,
		ReadingID:  r.ReadingID,
		ObservedAt: r.ObservedAt,
		StoredAt:   r.StoredAt,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.dropped(ev, "publisher stopped")
		return
	}

	select {
	case p.events <- ev:
	default:
		p.dropped(ev, "buffer full")
	}
}

func (p *Publisher) dropped(ev ReadingEvent, reason string) {
	p.logger.Warn("dropping reading event", "city", ev.City, "reading_id", ev.ReadingID, "reason", reason)
	p.count("dropped")
}

func (p *Publisher) run() {
	defer close(p.done)

	for ev := range p.events {
		p.push(ev)
	}
}

func (p *Publisher) push(ev ReadingEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal reading event", "error", err)
		p.count("error")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.pushTimeout)
	defer cancel()

	if err := p.client.Push(ctx, body); err != nil {
		p.logger.Error("failed to publish reading event",
			"event_id", ev.ID,
			"city", ev.City,
			"error", err,
		)
		p.count("error")
		return
	}

	p.logger.Debug("reading event published", "event_id", ev.ID, "city", ev.City, "reading_id", ev.ReadingID)
	p.count("success")
}

func (p *Publisher) count(status string) {
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(status).Inc()
	}
}

// Stop drains buffered events, waits for the worker and closes the mq client.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	close(p.events)
	p.mu.Unlock()

	if started {
		<-p.done
	}

	return p.client.Close()
}

var _ weather.ReadingNotifier = (*Publisher)(nil)
