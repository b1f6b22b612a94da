// Package outbox delivers engine events to Kafka.
//
// Publisher is the in-process side: it marshals payloads and enqueues them on a
// bounded buffer without blocking the caller. Dispatcher drains the buffer in
// batches, frames payloads with Schema Registry metadata and writes them
// through a circuit breaker. Batches that cannot be delivered go to a
// DeadLetterWriter.
package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"example.com/challengeengine/internal/events"
	"example.com/challengeengine/internal/logging"
)

// Envelope is one enqueued event.
type Envelope struct {
	EventType   string
	AggregateID string
	Payload     []byte
	OccurredAt  time.Time
}

// Publisher is a non-blocking domain.Publisher backed by a bounded buffer.
type Publisher struct {
	mu     sync.RWMutex
	closed bool
	queue  chan Envelope
}

// NewPublisher returns a Publisher holding at most buffer pending events.
func NewPublisher(buffer int) *Publisher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Publisher{queue: make(chan Envelope, buffer)}
}

// Publish enqueues the payload under topic. When the buffer is full or the
// publisher is closed the event is dropped and counted.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("event_type", topic).Msg("outbox: marshal payload")
		droppedCounter.WithLabelValues(topic, "marshal").Inc()
		return
	}

	env := Envelope{EventType: topic, Payload: body, OccurredAt: time.Now().UTC()}
	if keyed, ok := payload.(events.Keyed); ok {
		env.AggregateID = keyed.AggregateKey()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		droppedCounter.WithLabelValues(topic, "closed").Inc()
		return
	}
	select {
	case p.queue <- env:
		enqueuedCounter.WithLabelValues(topic).Inc()
	default:
		droppedCounter.WithLabelValues(topic, "buffer_full").Inc()
		logging.Ctx(ctx).Warn().Str("event_type", topic).Str("aggregate_id", env.AggregateID).Msg("outbox: buffer full, event dropped")
	}
}

// Close stops accepting events. The Dispatcher drains what is already queued.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.queue)
}

// Pending reports the number of queued events.
func (p *Publisher) Pending() int {
	return len(p.queue)
}

func (p *Publisher) events() <-chan Envelope {
	return p.queue
}
