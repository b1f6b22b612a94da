package domain

import (
	"fmt"
	"time"

	"example.com/challengeengine/internal/route"
)

// ActivityType enumerates supported outdoor activities.
type ActivityType string

const (
	ActivityTypeRunning ActivityType = "running"
	ActivityTypeCycling ActivityType = "cycling"
	ActivityTypeHiking  ActivityType = "hiking"
	// ActivityTypeAll is only valid as a challenge filter.
	ActivityTypeAll ActivityType = "all"
)

// ActivityStatus is the tracking lifecycle state.
type ActivityStatus string

const (
	ActivityStatusRecording ActivityStatus = "recording"
	ActivityStatusFinished  ActivityStatus = "finished"
)

// Activity is one recorded outing. Metrics are authoritative only once Status
// is Finished.
type Activity struct {
	ID          string
	UserID      string
	Type        ActivityType
	Title       string
	Description string
	// Route is populated by Get only; list and append results leave it nil.
	Route       []route.Sample
	Metrics     route.Metrics
	StartTime   time.Time
	EndTime     *time.Time
	IsPublic    bool
	Status      ActivityStatus
	Deactivated bool
	// SampleCount and LastSampleAt summarise Route so appends need not load it.
	SampleCount  int
	LastSampleAt *time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AcceptSample checks that s may be appended and records it in the route summary.
// The caller appends s to the stored route.
func (a *Activity) AcceptSample(s route.Sample, now time.Time) error {
	if a.Deactivated {
		return fmt.Errorf("%w: activity %s is deactivated", ErrInvalidState, a.ID)
	}
	if a.Status != ActivityStatusRecording {
		return fmt.Errorf("%w: activity %s is %s", ErrInvalidState, a.ID, a.Status)
	}
	if err := route.ValidateSample(s); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if a.LastSampleAt != nil && s.Timestamp.Before(*a.LastSampleAt) {
		return validationError("sample at %s precedes last sample at %s",
			s.Timestamp.Format(time.RFC3339Nano), a.LastSampleAt.Format(time.RFC3339Nano))
	}
	ts := s.Timestamp
	a.LastSampleAt = &ts
	a.SampleCount++
	a.UpdatedAt = now
	return nil
}

// Finish computes metrics over the route and freezes them.
func (a *Activity) Finish(now time.Time) error {
	if a.Deactivated {
		return fmt.Errorf("%w: activity %s is deactivated", ErrInvalidState, a.ID)
	}
	if a.Status != ActivityStatusRecording {
		return fmt.Errorf("%w: activity %s is already %s", ErrInvalidState, a.ID, a.Status)
	}
	metrics, err := route.Compute(a.Route)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	end := now
	a.Metrics = metrics
	a.EndTime = &end
	a.Status = ActivityStatusFinished
	a.UpdatedAt = now
	return nil
}

// Deactivate soft-deletes the activity. It reports false when already deactivated.
func (a *Activity) Deactivate(now time.Time) bool {
	if a.Deactivated {
		return false
	}
	a.Deactivated = true
	a.UpdatedAt = now
	return true
}

// OwnedBy reports whether userID may mutate the activity.
func (a *Activity) OwnedBy(userID string) bool {
	return a.UserID == userID
}

// ActivityStats aggregates a user's finished, active activities.
type ActivityStats struct {
	// TotalDistance in km.
	TotalDistance float64 `json:"totalDistance"`
	// TotalTime in seconds.
	TotalTime       float64 `json:"totalTime"`
	TotalActivities int     `json:"totalActivities"`
	// AverageSpeed in km/h.
	AverageSpeed float64 `json:"avgSpeed"`
}

// ActivityTotals are the raw sums a repository reports for stats.
type ActivityTotals struct {
	Count    int
	Distance float64
	Duration float64
}
