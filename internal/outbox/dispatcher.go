package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	gobreaker "github.com/sony/gobreaker/v2"

	"example.com/challengeengine/internal/events"
	"example.com/challengeengine/internal/logging"
)

// Kafka topics carrying engine events.
const (
	ActivityEventsTopic  = "activity_events"
	ChallengeEventsTopic = "challenge_events"
)

// Message headers set on every record.
const (
	HeaderEventType     = "event_type"
	HeaderAggregateID   = "aggregate_id"
	HeaderSchemaSubject = "schema_subject"
)

const drainTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// DispatcherConfig tunes batching and the circuit breaker.
type DispatcherConfig struct {
	BatchSize        int
	FlushInterval    time.Duration
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// Dispatcher drains a Publisher and delivers events to Kafka.
type Dispatcher struct {
	source           *Publisher
	producer         messageWriter
	registry         schemaRegistrar
	dlq              DeadLetterWriter
	breaker          *gobreaker.CircuitBreaker[struct{}]
	batchSize        int
	flushInterval    time.Duration
	schemaIDCache    sync.Map
	logger           zerolog.Logger
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher. registry may be nil, in which case
// payloads are written unframed.
func NewDispatcher(source *Publisher, producer messageWriter, registry schemaRegistrar, dlq DeadLetterWriter, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if dlq == nil {
		dlq = NewLogDeadLetterWriter()
	}

	logger := logging.Component("outbox")
	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerStateGauge.Set(float64(to))
			logger.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("outbox: circuit breaker state change")
		},
	})

	return &Dispatcher{
		source:           source,
		producer:         producer,
		registry:         registry,
		dlq:              dlq,
		breaker:          breaker,
		batchSize:        cfg.BatchSize,
		flushInterval:    cfg.FlushInterval,
		logger:           logger,
		shutdownComplete: make(chan struct{}),
	}
}

// Start runs the delivery loop until the publisher is closed or ctx is
// cancelled, flushing pending events before returning. It should be called in
// a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.flushInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	batch := make([]Envelope, 0, d.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		d.processBatch(ctx, batch)
		batch = batch[:0]
	}

	queue := d.source.events()
	for {
		select {
		case env, ok := <-queue:
			if !ok {
				flush(ctx)
				return
			}
			batch = append(batch, env)
			if len(batch) >= d.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			d.drain(drainCtx, &batch)
			flush(drainCtx)
			cancel()
			return
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) drain(ctx context.Context, batch *[]Envelope) {
	queue := d.source.events()
	for {
		select {
		case env, ok := <-queue:
			if !ok {
				return
			}
			*batch = append(*batch, env)
			if len(*batch) >= d.batchSize {
				d.processBatch(ctx, *batch)
				*batch = (*batch)[:0]
			}
		default:
			return
		}
	}
}

func (d *Dispatcher) processBatch(ctx context.Context, batch []Envelope) {
	start := time.Now()
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	for topic, group := range groupByTopic(batch) {
		err := d.deliver(ctx, topic, group)
		if err == nil {
			deliveredCounter.WithLabelValues(topic).Add(float64(len(group)))
			continue
		}

		d.logger.Error().Err(err).Str("topic", topic).Int("events", len(group)).Msg("outbox: delivery failure")
		failedCounter.WithLabelValues(topic).Add(float64(len(group)))
		if dlqErr := d.moveToDLQ(ctx, topic, group, err.Error()); dlqErr != nil {
			d.logger.Error().Err(dlqErr).Str("topic", topic).Msg("outbox: dead-letter write failed")
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, topic string, batch []Envelope) error {
	records := make([]kafka.Message, 0, len(batch))
	for _, env := range batch {
		subject := SchemaSubject(env.EventType)
		value, err := d.frame(ctx, env, subject)
		if err != nil {
			return err
		}
		records = append(records, kafka.Message{
			Key:   []byte(env.AggregateID),
			Value: value,
			Time:  env.OccurredAt,
			Headers: []kafka.Header{
				{Key: HeaderEventType, Value: []byte(env.EventType)},
				{Key: HeaderAggregateID, Value: []byte(env.AggregateID)},
				{Key: HeaderSchemaSubject, Value: []byte(subject)},
			},
		})
	}

	_, err := d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.producer.WriteMessages(ctx, topic, records...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("kafka producer unavailable: %w", err)
	}
	return err
}

func (d *Dispatcher) frame(ctx context.Context, env Envelope, subject string) ([]byte, error) {
	if d.registry == nil {
		return env.Payload, nil
	}
	schema, ok := schemaCatalog[env.EventType]
	if !ok {
		return nil, fmt.Errorf("no schema metadata for event_type=%s", env.EventType)
	}

	var schemaID int
	if cached, found := d.schemaIDCache.Load(subject); found {
		schemaID = cached.(int)
	} else {
		id, err := d.registry.EnsureSchema(ctx, subject, schema)
		if err != nil {
			return nil, err
		}
		d.schemaIDCache.Store(subject, id)
		schemaID = id
	}
	return EncodeWireFormat(schemaID, env.Payload), nil
}

func (d *Dispatcher) moveToDLQ(ctx context.Context, topic string, batch []Envelope, reason string) error {
	var errs []error
	for _, env := range batch {
		entry := DeadLetter{
			Topic:         topic,
			EventType:     env.EventType,
			AggregateID:   env.AggregateID,
			SchemaSubject: SchemaSubject(env.EventType),
			Payload:       env.Payload,
			Reason:        reason,
		}
		if err := d.dlq.Write(ctx, entry); err != nil {
			errs = append(errs, err)
			continue
		}
		dlqCounter.WithLabelValues(topic).Inc()
	}
	return errors.Join(errs...)
}

func groupByTopic(batch []Envelope) map[string][]Envelope {
	groups := make(map[string][]Envelope)
	for _, env := range batch {
		topic := KafkaTopic(env.EventType)
		groups[topic] = append(groups[topic], env)
	}
	return groups
}

// KafkaTopic maps an event type to the Kafka topic that carries it.
func KafkaTopic(eventType string) string {
	switch {
	case eventType == events.TopicPositionUpdated, strings.HasPrefix(eventType, "activity-"):
		return ActivityEventsTopic
	default:
		return ChallengeEventsTopic
	}
}

// SchemaSubject returns the registry subject for an event type.
func SchemaSubject(eventType string) string {
	return eventType + "-value"
}

// EncodeWireFormat applies Confluent framing for Schema Registry aware payloads.
func EncodeWireFormat(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	frame[0] = 0
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}

// DecodeWireFormat strips Confluent framing. Unframed payloads are returned as-is
// with schema id 0; a leading magic byte without a full schema id is an error.
func DecodeWireFormat(value []byte) (int, []byte, error) {
	if len(value) == 0 || value[0] != 0 {
		return 0, value, nil
	}
	if len(value) < 5 {
		return 0, nil, fmt.Errorf("invalid payload length: %d", len(value))
	}
	return int(binary.BigEndian.Uint32(value[1:5])), value[5:], nil
}
