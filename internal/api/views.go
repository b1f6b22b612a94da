package api

import (
	"time"

	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/route"
)

// StartTrackingRequest is the payload for POST /v1/tracking.
type StartTrackingRequest struct {
	ActivityType string `json:"activity_type"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	IsPublic     bool   `json:"is_public"`
}

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest struct {
	ActivityType string         `json:"activity_type"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	IsPublic     bool           `json:"is_public"`
	Route        []route.Sample `json:"route"`
}

// UpdateProgressRequest is the payload for POST /v1/challenges/{challengeID}/progress.
type UpdateProgressRequest struct {
	ActivityID string `json:"activity_id"`
}

// GoalBody describes a challenge goal.
type GoalBody struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// GeoFenceBody is a circular allowed location.
type GeoFenceBody struct {
	Longitude    float64 `json:"longitude"`
	Latitude     float64 `json:"latitude"`
	RadiusMeters float64 `json:"radius_meters"`
}

// RulesBody holds optional qualification rules.
type RulesBody struct {
	MinActivityLengthMeters    *float64       `json:"min_activity_length_m,omitempty"`
	MinActivityDurationMinutes *float64       `json:"min_activity_duration_min,omitempty"`
	AllowedLocations           []GeoFenceBody `json:"allowed_locations,omitempty"`
}

// RewardBody describes what completing a challenge grants.
type RewardBody struct {
	Points        int    `json:"points"`
	Badge         string `json:"badge,omitempty"`
	AchievementID string `json:"achievement_id,omitempty"`
}

// CreateChallengeRequest is the payload for POST /v1/challenges.
type CreateChallengeRequest struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Type         string     `json:"type"`
	ActivityType string     `json:"activity_type"`
	Goal         GoalBody   `json:"goal"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      time.Time  `json:"end_date"`
	Rules        RulesBody  `json:"rules"`
	Visibility   string     `json:"visibility"`
	Reward       RewardBody `json:"reward"`
}

// MetricsView exposes computed route metrics.
type MetricsView struct {
	DistanceMeters      float64  `json:"distance_m"`
	DurationSeconds     float64  `json:"duration_s"`
	ElevationGainMeters float64  `json:"elevation_gain_m"`
	ElevationLossMeters float64  `json:"elevation_loss_m"`
	AverageSpeedKmh     float64  `json:"average_speed_kmh"`
	MaxSpeedKmh         float64  `json:"max_speed_kmh"`
	PaceMinPerKm        *float64 `json:"pace_min_per_km,omitempty"`
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID   string         `json:"activity_id"`
	UserID       string         `json:"user_id"`
	ActivityType string         `json:"activity_type"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Status       string         `json:"status"`
	IsPublic     bool           `json:"is_public"`
	Deactivated  bool           `json:"deactivated"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Metrics      MetricsView    `json:"metrics"`
	SampleCount  int            `json:"sample_count"`
	Route        []route.Sample `json:"route,omitempty"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// FinishedActivityResponse is returned when an activity becomes Finished.
type FinishedActivityResponse struct {
	Activity          ActivityView         `json:"activity"`
	ChallengeProgress []ProgressResultView `json:"challenge_progress,omitempty"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items    []ActivityView `json:"items"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// StatsView summarises a user's finished activities.
type StatsView struct {
	TotalDistanceKm  float64 `json:"total_distance_km"`
	TotalTimeSeconds float64 `json:"total_time_s"`
	TotalActivities  int     `json:"total_activities"`
	AverageSpeedKmh  float64 `json:"average_speed_kmh"`
}

// ProgressView is one participant's progress record.
type ProgressView struct {
	UserID         string     `json:"user_id"`
	CurrentValue   float64    `json:"current_value"`
	LastUpdate     time.Time  `json:"last_update"`
	Completed      bool       `json:"completed"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
}

// ChallengeView exposes a challenge as seen by the caller.
type ChallengeView struct {
	ChallengeID      string        `json:"challenge_id"`
	CreatorID        string        `json:"creator_id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	Type             string        `json:"type"`
	ActivityType     string        `json:"activity_type"`
	Goal             GoalBody      `json:"goal"`
	StartDate        time.Time     `json:"start_date"`
	EndDate          time.Time     `json:"end_date"`
	Rules            RulesBody     `json:"rules"`
	Visibility       string        `json:"visibility"`
	Reward           RewardBody    `json:"reward"`
	ParticipantCount int           `json:"participant_count"`
	Deactivated      bool          `json:"deactivated"`
	MyProgress       *ProgressView `json:"my_progress,omitempty"`
	ProgressPercent  float64       `json:"progress_percent"`
	RemainingSeconds float64       `json:"remaining_s"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// ListChallengesResponse packages challenge list results.
type ListChallengesResponse struct {
	Items    []ChallengeView `json:"items"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// JoinResponse reports the caller's progress record after a join.
type JoinResponse struct {
	Progress ProgressView `json:"progress"`
	Joined   bool         `json:"joined"`
}

// ProgressResultView reports one challenge evaluation.
type ProgressResultView struct {
	ChallengeID  string        `json:"challenge_id"`
	Outcome      string        `json:"outcome"`
	Contribution float64       `json:"contribution"`
	Progress     *ProgressView `json:"progress,omitempty"`
	Completed    bool          `json:"completed"`
}

// LeaderboardEntryView is one ranked participant.
type LeaderboardEntryView struct {
	Rank           int        `json:"rank"`
	UserID         string     `json:"user_id"`
	CurrentValue   float64    `json:"current_value"`
	Completed      bool       `json:"completed"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
}

// LeaderboardResponse wraps the ranked entries.
type LeaderboardResponse struct {
	ChallengeID string                 `json:"challenge_id"`
	Entries     []LeaderboardEntryView `json:"entries"`
}

func toActivityView(a domain.Activity) ActivityView {
	m := a.Metrics
	return ActivityView{
		ActivityID:   a.ID,
		UserID:       a.UserID,
		ActivityType: string(a.Type),
		Title:        a.Title,
		Description:  a.Description,
		Status:       string(a.Status),
		IsPublic:     a.IsPublic,
		Deactivated:  a.Deactivated,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		Metrics: MetricsView{
			DistanceMeters:      m.Distance,
			DurationSeconds:     m.Duration,
			ElevationGainMeters: m.ElevationGain,
			ElevationLossMeters: m.ElevationLoss,
			AverageSpeedKmh:     m.AverageSpeed,
			MaxSpeedKmh:         m.MaxSpeed,
			PaceMinPerKm:        m.Pace,
		},
		SampleCount: a.SampleCount,
		Route:       a.Route,
		Version:     a.Version,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toActivityViews(activities []domain.Activity) []ActivityView {
	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	return items
}

func toProgressView(r domain.ProgressRecord) ProgressView {
	return ProgressView{
		UserID:         r.UserID,
		CurrentValue:   r.CurrentValue,
		LastUpdate:     r.LastUpdate,
		Completed:      r.Completed,
		CompletionDate: r.CompletionDate,
	}
}

func toChallengeView(c domain.Challenge, callerID string, now time.Time) ChallengeView {
	view := ChallengeView{
		ChallengeID:  c.ID,
		CreatorID:    c.CreatorID,
		Title:        c.Title,
		Description:  c.Description,
		Type:         string(c.Type),
		ActivityType: string(c.ActivityType),
		Goal:         GoalBody{Value: c.Goal.Value, Unit: c.Goal.Unit},
		StartDate:    c.StartDate,
		EndDate:      c.EndDate,
		Rules: RulesBody{
			MinActivityLengthMeters:    c.Rules.MinActivityLength,
			MinActivityDurationMinutes: c.Rules.MinActivityDuration,
		},
		Visibility: string(c.Visibility),
		Reward: RewardBody{
			Points:        c.Reward.Points,
			Badge:         c.Reward.Badge,
			AchievementID: c.Reward.AchievementID,
		},
		ParticipantCount: len(c.Progress),
		Deactivated:      c.Deactivated,
		ProgressPercent:  c.ProgressPercent(callerID),
		RemainingSeconds: c.RemainingTime(now).Seconds(),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	for _, f := range c.Rules.AllowedLocations {
		view.Rules.AllowedLocations = append(view.Rules.AllowedLocations, GeoFenceBody{
			Longitude:    f.Center.Longitude,
			Latitude:     f.Center.Latitude,
			RadiusMeters: f.RadiusMeters,
		})
	}
	if rec := c.ProgressFor(callerID); rec != nil {
		pv := toProgressView(*rec)
		view.MyProgress = &pv
	}
	return view
}

func toChallengeViews(challenges []domain.Challenge, callerID string, now time.Time) []ChallengeView {
	items := make([]ChallengeView, 0, len(challenges))
	for _, c := range challenges {
		items = append(items, toChallengeView(c, callerID, now))
	}
	return items
}

func toProgressResultViews(results []domain.ProgressResult) []ProgressResultView {
	out := make([]ProgressResultView, 0, len(results))
	for _, res := range results {
		view := ProgressResultView{
			ChallengeID:  res.ChallengeID,
			Outcome:      string(res.Outcome),
			Contribution: res.Contribution,
			Completed:    res.Completed,
		}
		if res.Record != nil {
			pv := toProgressView(*res.Record)
			view.Progress = &pv
		}
		out = append(out, view)
	}
	return out
}

func (r CreateChallengeRequest) toInput(creatorID string) domain.CreateChallengeInput {
	rules := domain.Rules{
		MinActivityLength:   r.Rules.MinActivityLengthMeters,
		MinActivityDuration: r.Rules.MinActivityDurationMinutes,
	}
	for _, f := range r.Rules.AllowedLocations {
		rules.AllowedLocations = append(rules.AllowedLocations, route.GeoFence{
			Center:       route.Point{Longitude: f.Longitude, Latitude: f.Latitude},
			RadiusMeters: f.RadiusMeters,
		})
	}
	return domain.CreateChallengeInput{
		CreatorID:    creatorID,
		Title:        r.Title,
		Description:  r.Description,
		Type:         domain.ChallengeType(r.Type),
		ActivityType: domain.ActivityType(r.ActivityType),
		Goal:         domain.Goal{Value: r.Goal.Value, Unit: r.Goal.Unit},
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		Rules:        rules,
		Visibility:   domain.Visibility(r.Visibility),
		Reward: domain.Reward{
			Points:        r.Reward.Points,
			Badge:         r.Reward.Badge,
			AchievementID: r.Reward.AchievementID,
		},
	}
}
