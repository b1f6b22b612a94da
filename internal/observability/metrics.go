// Package observability exposes the engine's domain metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "challenge_engine"

var (
	samplesAcceptedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracking",
		Name:      "samples_accepted_total",
		Help:      "Number of route samples appended to recording activities.",
	})

	activitiesFinishedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracking",
		Name:      "activities_finished_total",
		Help:      "Number of activities transitioned to finished, labeled by activity type.",
	}, []string{"activity_type"})

	lastFinishedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tracking",
		Name:      "last_activity_finished_timestamp_seconds",
		Help:      "Unix timestamp of the most recently finished activity.",
	})

	evaluationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "challenges",
		Name:      "evaluations_total",
		Help:      "Number of progress evaluations grouped by outcome.",
	}, []string{"outcome"})

	completionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "challenges",
		Name:      "completions_total",
		Help:      "Number of participants who reached a challenge goal.",
	})

	versionConflictCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "version_conflicts_total",
		Help:      "Number of optimistic version mismatches, labeled by aggregate.",
	}, []string{"aggregate"})
)

func init() {
	prometheus.MustRegister(
		samplesAcceptedCounter,
		activitiesFinishedCounter,
		lastFinishedGauge,
		evaluationsCounter,
		completionsCounter,
		versionConflictCounter,
	)
}

// RecordSampleAccepted counts one appended sample.
func RecordSampleAccepted() {
	samplesAcceptedCounter.Inc()
}

// RecordActivityFinished counts a finished activity and moves the watermark gauge.
func RecordActivityFinished(activityType string, ts time.Time) {
	activitiesFinishedCounter.WithLabelValues(activityType).Inc()
	if ts.IsZero() {
		return
	}
	lastFinishedGauge.Set(float64(ts.Unix()))
}

// RecordEvaluation counts one progress evaluation outcome.
func RecordEvaluation(outcome string) {
	evaluationsCounter.WithLabelValues(outcome).Inc()
}

// RecordCompletion counts a latched challenge completion.
func RecordCompletion() {
	completionsCounter.Inc()
}

// RecordVersionConflict counts a failed optimistic update.
func RecordVersionConflict(aggregate string) {
	versionConflictCounter.WithLabelValues(aggregate).Inc()
}
