package events

import "time"

// Topics emitted for challenges.
const (
	TopicChallengeJoined          = "challenge-joined"
	TopicChallengeProgressUpdated = "challenge-progress-updated"
	TopicNewChallenge             = "new-challenge"
	TopicChallengeCompleted       = "challenge-completed"
)

// ChallengeCreated is published on new-challenge for public challenges.
type ChallengeCreated struct {
	ChallengeID  string    `json:"challenge_id"`
	CreatorID    string    `json:"creator_id"`
	Title        string    `json:"title"`
	Type         string    `json:"type"`
	ActivityType string    `json:"activity_type"`
	GoalValue    float64   `json:"goal_value"`
	GoalUnit     string    `json:"goal_unit"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
}

// AggregateKey implements Keyed.
func (e ChallengeCreated) AggregateKey() string { return e.ChallengeID }

// ChallengeJoined is emitted when a new progress record is created.
type ChallengeJoined struct {
	ChallengeID string    `json:"challenge_id"`
	UserID      string    `json:"user_id"`
	JoinedAt    time.Time `json:"joined_at"`
}

// AggregateKey implements Keyed.
func (e ChallengeJoined) AggregateKey() string { return e.ChallengeID }

// ChallengeProgressUpdated is emitted after a qualifying contribution.
type ChallengeProgressUpdated struct {
	ChallengeID  string    `json:"challenge_id"`
	UserID       string    `json:"user_id"`
	ActivityID   string    `json:"activity_id"`
	Contribution float64   `json:"contribution"`
	CurrentValue float64   `json:"current_value"`
	GoalValue    float64   `json:"goal_value"`
	Completed    bool      `json:"completed"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AggregateKey implements Keyed.
func (e ChallengeProgressUpdated) AggregateKey() string { return e.ChallengeID }

// ChallengeCompleted is emitted once per participant when the goal is reached.
type ChallengeCompleted struct {
	ChallengeID   string    `json:"challenge_id"`
	UserID        string    `json:"user_id"`
	CompletedAt   time.Time `json:"completed_at"`
	RewardPoints  int       `json:"reward_points"`
	RewardBadge   string    `json:"reward_badge,omitempty"`
	AchievementID string    `json:"achievement_id,omitempty"`
}

// AggregateKey implements Keyed.
func (e ChallengeCompleted) AggregateKey() string { return e.ChallengeID }
