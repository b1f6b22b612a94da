package outbox

import "github.com/prometheus/client_golang/prometheus"

const namespace = "challenge_engine"

var (
	enqueuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_enqueued_total",
		Help:      "Number of events accepted into the publish buffer, labeled by event type.",
	}, []string{"event_type"})

	droppedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_dropped_total",
		Help:      "Number of events dropped before delivery, labeled by event type and reason.",
	}, []string{"event_type", "reason"})

	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of events successfully published to Kafka.",
	}, []string{"topic"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of events that failed to publish and were routed to the DLQ.",
	}, []string{"topic"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent framing and delivering outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Number of events routed to the dead-letter queue, labeled by topic.",
	}, []string{"topic"})

	breakerStateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "breaker_state",
		Help:      "Kafka producer circuit breaker state: 0 closed, 1 half-open, 2 open.",
	})
)

func init() {
	prometheus.MustRegister(enqueuedCounter, droppedCounter, deliveredCounter, failedCounter, batchDuration, dlqCounter, breakerStateGauge)
}
