package outbox

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"example.com/challengeengine/internal/logging"
)

// KafkaProducer lazily manages writers per topic.
type KafkaProducer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes messages to the given topic, creating a writer if necessary.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	writer := p.writerForTopic(topic)
	return writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	// Hash on the aggregate id keeps one aggregate's events on one partition.
	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
	p.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}

// DiscardProducer drops every message. Used when no brokers are configured.
type DiscardProducer struct {
	logger zerolog.Logger
}

// NewDiscardProducer returns a DiscardProducer.
func NewDiscardProducer() *DiscardProducer {
	return &DiscardProducer{logger: logging.Component("outbox")}
}

// WriteMessages implements the dispatcher writer.
func (p *DiscardProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	p.logger.Debug().Str("topic", topic).Int("messages", len(msgs)).Msg("outbox: no brokers configured, messages discarded")
	return nil
}

// Close implements io.Closer.
func (p *DiscardProducer) Close() error { return nil }
