package outbox

import (
	"context"
	"io"
)

// PipelineConfig describes how published events reach Kafka.
type PipelineConfig struct {
	// Brokers empty means events are dispatched to a DiscardProducer unframed.
	Brokers           []string
	SchemaRegistryURL string
	Buffer            int
	Dispatcher        DispatcherConfig
	// DLQ receives undeliverable batches; nil logs them.
	DLQ DeadLetterWriter
}

type closingWriter interface {
	messageWriter
	io.Closer
}

// Pipeline owns a Publisher and the Dispatcher draining it.
type Pipeline struct {
	publisher  *Publisher
	dispatcher *Dispatcher
	producer   closingWriter
}

// StartPipeline builds the publisher, producer and dispatcher and starts
// delivery in the background.
func StartPipeline(ctx context.Context, cfg PipelineConfig) *Pipeline {
	publisher := NewPublisher(cfg.Buffer)

	var (
		producer closingWriter
		registry schemaRegistrar
	)
	if len(cfg.Brokers) > 0 {
		producer = NewKafkaProducer(cfg.Brokers)
		if cfg.SchemaRegistryURL != "" {
			registry = NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		}
	} else {
		producer = NewDiscardProducer()
	}

	dispatcher := NewDispatcher(publisher, producer, registry, cfg.DLQ, cfg.Dispatcher)
	go dispatcher.Start(ctx)

	return &Pipeline{publisher: publisher, dispatcher: dispatcher, producer: producer}
}

// Publisher returns the publisher services should emit events through.
func (p *Pipeline) Publisher() *Publisher {
	return p.publisher
}

// Close stops accepting events, waits for buffered events to be delivered and
// closes the producer.
func (p *Pipeline) Close() error {
	p.publisher.Close()
	p.dispatcher.Wait()
	return p.producer.Close()
}
