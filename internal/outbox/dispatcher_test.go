package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/challengeengine/internal/events"
)

func TestDispatcherDeliversFramedMessagesPerTopic(t *testing.T) {
	publisher := NewPublisher(16)
	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(publisher, producer, registry, &stubDLQ{}, DispatcherConfig{BatchSize: 10, FlushInterval: time.Hour})

	ctx := context.Background()
	publisher.Publish(ctx, events.TopicActivityEnded, events.ActivityEnded{ActivityID: "act-1", UserID: "u1", Distance: 5000})
	publisher.Publish(ctx, events.TopicChallengeJoined, events.ChallengeJoined{ChallengeID: "ch-1", UserID: "u1"})

	beforeHistogram := histogramSampleCount(t)
	beforeDelivered := testutil.ToFloat64(deliveredCounter.WithLabelValues(ActivityEventsTopic))

	go dispatcher.Start(ctx)
	publisher.Close()
	dispatcher.Wait()

	require.Len(t, producer.writes, 2)
	byTopic := map[string][]kafka.Message{}
	for _, w := range producer.writes {
		byTopic[w.topic] = w.messages
	}
	require.Len(t, byTopic[ActivityEventsTopic], 1)
	require.Len(t, byTopic[ChallengeEventsTopic], 1)

	msg := byTopic[ActivityEventsTopic][0]
	require.Equal(t, "act-1", string(msg.Key))
	require.Equal(t, map[string]string{
		HeaderEventType:     events.TopicActivityEnded,
		HeaderAggregateID:   "act-1",
		HeaderSchemaSubject: "activity-ended-value",
	}, headerMap(msg.Headers))

	schemaID, payload, err := DecodeWireFormat(msg.Value)
	require.NoError(t, err)
	require.Equal(t, 42, schemaID)
	var decoded events.ActivityEnded
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "act-1", decoded.ActivityID)
	require.InDelta(t, 5000, decoded.Distance, 1e-9)

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter.WithLabelValues(ActivityEventsTopic)), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)
}

func TestDispatcherCachesSchemaIDsAcrossBatch(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 21}
	dispatcher := NewDispatcher(NewPublisher(1), producer, registry, &stubDLQ{}, DispatcherConfig{})

	batch := []Envelope{
		{EventType: events.TopicPositionUpdated, AggregateID: "act-1", Payload: []byte(`{"sequence":1}`)},
		{EventType: events.TopicPositionUpdated, AggregateID: "act-1", Payload: []byte(`{"sequence":2}`)},
	}
	dispatcher.processBatch(context.Background(), batch)
	dispatcher.processBatch(context.Background(), batch)

	require.Len(t, producer.writes, 2)
	require.Len(t, producer.writes[0].messages, 2)
	require.Len(t, registry.calls, 1, "schema registry should be invoked once due to cache")
	require.Equal(t, "position-updated-value", registry.calls[0].subject)
}

func TestDispatcherRoutesFailedBatchToDLQ(t *testing.T) {
	producer := &stubProducer{err: errors.New("kafka write failed")}
	dlq := &stubDLQ{}
	dispatcher := NewDispatcher(NewPublisher(1), producer, &stubRegistry{id: 7}, dlq, DispatcherConfig{FailureThreshold: 10})

	beforeFailed := testutil.ToFloat64(failedCounter.WithLabelValues(ChallengeEventsTopic))
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues(ChallengeEventsTopic))

	dispatcher.processBatch(context.Background(), []Envelope{
		{EventType: events.TopicChallengeCompleted, AggregateID: "ch-1", Payload: []byte(`{"challenge_id":"ch-1"}`)},
	})

	require.Len(t, dlq.entries, 1)
	entry := dlq.entries[0]
	require.Equal(t, ChallengeEventsTopic, entry.Topic)
	require.Equal(t, events.TopicChallengeCompleted, entry.EventType)
	require.Equal(t, "challenge-completed-value", entry.SchemaSubject)
	require.Contains(t, entry.Reason, "kafka write failed")

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter.WithLabelValues(ChallengeEventsTopic)), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues(ChallengeEventsTopic)), 0.0001)
}

func TestDispatcherUnknownEventTypeIsDeadLettered(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 99}
	dlq := &stubDLQ{}
	dispatcher := NewDispatcher(NewPublisher(1), producer, registry, dlq, DispatcherConfig{})

	dispatcher.processBatch(context.Background(), []Envelope{{EventType: "challenge-unknown", AggregateID: "x", Payload: []byte(`{}`)}})

	require.Empty(t, producer.writes, "unknown schema should skip kafka writes")
	require.Empty(t, registry.calls, "schema registry should not be invoked when metadata missing")
	require.Len(t, dlq.entries, 1)
	require.Contains(t, dlq.entries[0].Reason, "no schema metadata for event_type=challenge-unknown")
}

func TestDispatcherBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	producer := &stubProducer{err: errors.New("broker down")}
	dlq := &stubDLQ{}
	dispatcher := NewDispatcher(NewPublisher(1), producer, nil, dlq, DispatcherConfig{FailureThreshold: 2, BreakerTimeout: time.Hour})

	batch := []Envelope{{EventType: events.TopicActivityStarted, AggregateID: "act-1", Payload: []byte(`{}`)}}
	for i := 0; i < 3; i++ {
		dispatcher.processBatch(context.Background(), batch)
	}

	require.Equal(t, 2, producer.attempts)
	require.Len(t, dlq.entries, 3)
	require.Contains(t, dlq.entries[2].Reason, "kafka producer unavailable")
}

func TestDispatcherWithoutRegistryWritesRawPayload(t *testing.T) {
	producer := &stubProducer{}
	dispatcher := NewDispatcher(NewPublisher(1), producer, nil, &stubDLQ{}, DispatcherConfig{})

	dispatcher.processBatch(context.Background(), []Envelope{{EventType: events.TopicNewChallenge, AggregateID: "ch-1", Payload: []byte(`{"challenge_id":"ch-1"}`)}})

	require.Len(t, producer.writes, 1)
	require.Equal(t, `{"challenge_id":"ch-1"}`, string(producer.writes[0].messages[0].Value))
}

func TestPublisherDropsWhenBufferFull(t *testing.T) {
	publisher := NewPublisher(1)
	ctx := context.Background()

	before := testutil.ToFloat64(droppedCounter.WithLabelValues(events.TopicPositionUpdated, "buffer_full"))
	publisher.Publish(ctx, events.TopicPositionUpdated, events.PositionUpdated{ActivityID: "a", Sequence: 1})
	publisher.Publish(ctx, events.TopicPositionUpdated, events.PositionUpdated{ActivityID: "a", Sequence: 2})

	require.Equal(t, 1, publisher.Pending())
	require.InDelta(t, before+1, testutil.ToFloat64(droppedCounter.WithLabelValues(events.TopicPositionUpdated, "buffer_full")), 0.0001)

	env := <-publisher.events()
	require.Equal(t, "a", env.AggregateID)
	require.JSONEq(t, `{"activity_id":"a","user_id":"","longitude":0,"latitude":0,"timestamp":"0001-01-01T00:00:00Z","sequence":1}`, string(env.Payload))
}

func TestPublisherAfterCloseDrops(t *testing.T) {
	publisher := NewPublisher(4)
	publisher.Close()
	publisher.Close()

	before := testutil.ToFloat64(droppedCounter.WithLabelValues(events.TopicActivityStarted, "closed"))
	publisher.Publish(context.Background(), events.TopicActivityStarted, events.ActivityStarted{ActivityID: "a"})
	require.InDelta(t, before+1, testutil.ToFloat64(droppedCounter.WithLabelValues(events.TopicActivityStarted, "closed")), 0.0001)
}

func TestKafkaTopicMapping(t *testing.T) {
	require.Equal(t, ActivityEventsTopic, KafkaTopic(events.TopicActivityStarted))
	require.Equal(t, ActivityEventsTopic, KafkaTopic(events.TopicPositionUpdated))
	require.Equal(t, ActivityEventsTopic, KafkaTopic(events.TopicActivityEnded))
	require.Equal(t, ChallengeEventsTopic, KafkaTopic(events.TopicNewChallenge))
	require.Equal(t, ChallengeEventsTopic, KafkaTopic(events.TopicChallengeProgressUpdated))
}

func TestDecodeWireFormatPassesThroughUnframed(t *testing.T) {
	id, payload, err := DecodeWireFormat([]byte(`{"a":1}`))
	require.NoError(t, err)
	require.Zero(t, id)
	require.Equal(t, `{"a":1}`, string(payload))

	id, payload, err = DecodeWireFormat(EncodeWireFormat(513, []byte(`{}`)))
	require.NoError(t, err)
	require.Equal(t, 513, id)
	require.Equal(t, `{}`, string(payload))
}

func TestDecodeWireFormatRejectsTruncatedFrame(t *testing.T) {
	_, _, err := DecodeWireFormat([]byte{0, 0, 1})
	require.ErrorContains(t, err, "invalid payload length: 3")
}

type stubProducer struct {
	mu       sync.Mutex
	err      error
	attempts int
	writes   []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)

	s.writes = append(s.writes, writtenBatch{
		topic:    topic,
		messages: copied,
	})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}

type stubDLQ struct {
	mu      sync.Mutex
	entries []DeadLetter
}

func (s *stubDLQ) Write(_ context.Context, entry DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func headerMap(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}
