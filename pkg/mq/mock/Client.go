// Package mock provides an in-memory mq.ClientInterface for tests.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/weather-cache/pkg/mq"
)

// MockClient records calls and returns configured results.
type MockClient struct {
	mu sync.Mutex

	// PushFunc is called when Push is invoked. If nil, returns PushError.
	PushFunc  func(ctx context.Context, data []byte) error
	PushError error
	pushed    [][]byte

	// ConsumeFunc is called when Consume is invoked. If nil, returns ConsumeChannel and ConsumeError.
	ConsumeFunc    func() (<-chan amqp.Delivery, error)
	ConsumeChannel <-chan amqp.Delivery
	ConsumeError   error
	consumeCalls   int

	CloseError error
	closeCalls int
}

// NewMockClient creates a MockClient whose operations succeed.
func NewMockClient() *MockClient {
	return &MockClient{
		ConsumeChannel: make(chan amqp.Delivery),
	}
}

// Push implements mq.ClientInterface.
func (m *MockClient) Push(ctx context.Context, data []byte) error {
	m.mu.Lock()
	fn, err := m.PushFunc, m.PushError
	m.pushed = append(m.pushed, append([]byte(nil), data...))
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, data)
	}
	return err
}

// Pushed returns a copy of every payload passed to Push.
func (m *MockClient) Pushed() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.pushed))
	copy(out, m.pushed)
	return out
}

// Consume implements mq.ClientInterface.
func (m *MockClient) Consume() (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consumeCalls++
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc()
	}
	return m.ConsumeChannel, m.ConsumeError
}

// ConsumeCalls returns how many times Consume was called.
func (m *MockClient) ConsumeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumeCalls
}

// Close implements mq.ClientInterface.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return m.CloseError
}

// CloseCalls returns how many times Close was called.
func (m *MockClient) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

var _ mq.ClientInterface = (*MockClient)(nil)

// Acknowledger records Ack/Nack/Reject calls made on deliveries built by Delivery.
type Acknowledger struct {
	mu       sync.Mutex
	Acked    []uint64
	Nacked   []uint64
	Requeued []uint64
	Rejected []uint64
}

// Ack implements amqp.Acknowledger.
func (a *Acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Acked = append(a.Acked, tag)
	return nil
}

// Nack implements amqp.Acknowledger.
func (a *Acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Nacked = append(a.Nacked, tag)
	if requeue {
		a.Requeued = append(a.Requeued, tag)
	}
	return nil
}

// Reject implements amqp.Acknowledger.
func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Rejected = append(a.Rejected, tag)
	if requeue {
		a.Requeued = append(a.Requeued, tag)
	}
	return nil
}

// Counts returns the number of acks, nacks and requeues seen so far.
func (a *Acknowledger) Counts() (acked, nacked, requeued int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Acked), len(a.Nacked), len(a.Requeued)
}

// Delivery builds a delivery whose acknowledgements are recorded by ack.
func Delivery(ack *Acknowledger, tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		Body:         body,
	}
}
