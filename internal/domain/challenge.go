package domain

import (
	"time"

	"example.com/challengeengine/internal/route"
)

// ChallengeType selects how an activity contributes to progress.
type ChallengeType string

const (
	ChallengeTypeDistance  ChallengeType = "distance"
	ChallengeTypeTime      ChallengeType = "time"
	ChallengeTypeElevation ChallengeType = "elevation"
	ChallengeTypeFrequency ChallengeType = "frequency"
)

// GoalUnit returns the only unit accepted for the challenge type.
func (t ChallengeType) GoalUnit() string {
	switch t {
	case ChallengeTypeDistance:
		return "km"
	case ChallengeTypeTime:
		return "minutes"
	case ChallengeTypeElevation:
		return "meters"
	case ChallengeTypeFrequency:
		return "times"
	default:
		return ""
	}
}

// Visibility controls who can discover a challenge.
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityPrivate    Visibility = "private"
	VisibilityInviteOnly Visibility = "invite-only"
)

// Goal is the target a participant must reach.
type Goal struct {
	Value float64 `json:"value" validate:"gt=0"`
	Unit  string  `json:"unit" validate:"required"`
}

// Rules restrict which activities qualify.
type Rules struct {
	// MinActivityLength in meters.
	MinActivityLength *float64 `json:"minActivityLength,omitempty" validate:"omitempty,gte=0"`
	// MinActivityDuration in minutes.
	MinActivityDuration *float64         `json:"minActivityDuration,omitempty" validate:"omitempty,gte=0"`
	AllowedLocations    []route.GeoFence `json:"allowedLocations,omitempty" validate:"dive"`
}

// Reward describes what completing the challenge grants.
type Reward struct {
	Points        int    `json:"points" validate:"gte=0"`
	Badge         string `json:"badge,omitempty"`
	AchievementID string `json:"achievementId,omitempty"`
}

// ProgressRecord tracks one participant. CurrentValue never decreases and
// Completed latches once.
type ProgressRecord struct {
	UserID         string     `json:"userId"`
	CurrentValue   float64    `json:"currentValue"`
	LastUpdate     time.Time  `json:"lastUpdate"`
	Completed      bool       `json:"completed"`
	CompletionDate *time.Time `json:"completionDate,omitempty"`
}

// Apply adds value and latches completion once goal is reached. It reports
// whether this call completed the record.
func (r *ProgressRecord) Apply(value, goal float64, now time.Time) bool {
	if value > 0 {
		r.CurrentValue += value
	}
	r.LastUpdate = now
	if r.Completed || r.CurrentValue < goal {
		return false
	}
	completed := now
	r.Completed = true
	r.CompletionDate = &completed
	return true
}

// Challenge is a time-boxed community goal.
type Challenge struct {
	ID           string
	CreatorID    string
	Title        string
	Description  string
	Type         ChallengeType
	ActivityType ActivityType
	Goal         Goal
	StartDate    time.Time
	EndDate      time.Time
	Rules        Rules
	Visibility   Visibility
	Reward       Reward
	// Progress holds one record per participant in join order.
	Progress    []ProgressRecord
	Deactivated bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ParticipantIDs lists participants in join order.
func (c *Challenge) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Progress))
	for _, p := range c.Progress {
		ids = append(ids, p.UserID)
	}
	return ids
}

// ProgressFor returns the participant's record, or nil.
func (c *Challenge) ProgressFor(userID string) *ProgressRecord {
	for i := range c.Progress {
		if c.Progress[i].UserID == userID {
			return &c.Progress[i]
		}
	}
	return nil
}

// InWindow reports whether t lies within [StartDate, EndDate].
func (c *Challenge) InWindow(t time.Time) bool {
	return !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// ActiveAt reports whether the challenge accepts progress at t.
func (c *Challenge) ActiveAt(t time.Time) bool {
	return !c.Deactivated && c.InWindow(t)
}

// ProgressPercent is the participant's progress towards the goal; 0 without a record.
func (c *Challenge) ProgressPercent(userID string) float64 {
	rec := c.ProgressFor(userID)
	if rec == nil || c.Goal.Value <= 0 {
		return 0
	}
	return rec.CurrentValue / c.Goal.Value * 100
}

// RemainingTime until EndDate, never negative.
func (c *Challenge) RemainingTime(now time.Time) time.Duration {
	if now.After(c.EndDate) {
		return 0
	}
	return c.EndDate.Sub(now)
}
