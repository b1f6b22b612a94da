// Package events defines the topics and payloads emitted by the engine.
package events

import "time"

// Topics emitted for the activity lifecycle.
const (
	TopicActivityStarted = "activity-started"
	TopicPositionUpdated = "position-updated"
	TopicActivityEnded   = "activity-ended"
)

// ActivityStarted is emitted when a tracking session begins.
type ActivityStarted struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	Title        string    `json:"title"`
	StartedAt    time.Time `json:"started_at"`
}

// AggregateKey implements Keyed.
func (e ActivityStarted) AggregateKey() string { return e.ActivityID }

// PositionUpdated is emitted for every accepted route sample.
type PositionUpdated struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	Longitude  float64   `json:"longitude"`
	Latitude   float64   `json:"latitude"`
	Elevation  *float64  `json:"elevation,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Sequence   int       `json:"sequence"`
}

// AggregateKey implements Keyed.
func (e PositionUpdated) AggregateKey() string { return e.ActivityID }

// ActivityEnded is emitted once an activity is Finished, either by finishing a
// tracking session or by a manual upload.
type ActivityEnded struct {
	ActivityID    string    `json:"activity_id"`
	UserID        string    `json:"user_id"`
	ActivityType  string    `json:"activity_type"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	Distance      float64   `json:"distance"`
	Duration      float64   `json:"duration"`
	ElevationGain float64   `json:"elevation_gain"`
	ElevationLoss float64   `json:"elevation_loss"`
	AverageSpeed  float64   `json:"average_speed"`
	MaxSpeed      float64   `json:"max_speed"`
	Pace          *float64  `json:"pace,omitempty"`
}

// AggregateKey implements Keyed.
func (e ActivityEnded) AggregateKey() string { return e.ActivityID }

// Keyed payloads expose the id used as the Kafka message key.
type Keyed interface {
	AggregateKey() string
}
