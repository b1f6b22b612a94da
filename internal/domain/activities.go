package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"example.com/challengeengine/internal/events"
	"example.com/challengeengine/internal/observability"
	"example.com/challengeengine/internal/route"
)

// CreateActivityInput captures a manually uploaded activity.
type CreateActivityInput struct {
	UserID      string       `validate:"required"`
	Type        ActivityType `validate:"required,oneof=running cycling hiking"`
	Title       string       `validate:"required,max=200"`
	Description string       `validate:"max=2000"`
	IsPublic    bool
	Route       []route.Sample `validate:"required,min=1"`
}

// CreateActivity stores a complete route as a Finished activity.
func (s *ActivityService) CreateActivity(ctx context.Context, input CreateActivityInput) (*Activity, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	for i := 1; i < len(input.Route); i++ {
		if input.Route[i].Timestamp.Before(input.Route[i-1].Timestamp) {
			return nil, validationError("route sample %d precedes sample %d", i, i-1)
		}
	}
	metrics, err := route.Compute(input.Route)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	now := s.opts.now()
	first := input.Route[0].Timestamp.UTC()
	last := input.Route[len(input.Route)-1].Timestamp.UTC()
	activity := Activity{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		Type:         input.Type,
		Title:        input.Title,
		Description:  input.Description,
		Route:        input.Route,
		Metrics:      metrics,
		StartTime:    first,
		EndTime:      &last,
		IsPublic:     input.IsPublic,
		Status:       ActivityStatusFinished,
		SampleCount:  len(input.Route),
		LastSampleAt: &last,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, err
	}

	observability.RecordActivityFinished(string(activity.Type), now)
	s.publisher.Publish(ctx, events.TopicActivityEnded, activityEnded(&activity))
	return &activity, nil
}

// GetActivity fetches an activity including its route.
func (s *ActivityService) GetActivity(ctx context.Context, activityID string) (*Activity, error) {
	return s.getActivity(ctx, activityID)
}

// DeactivateActivity soft-deletes an activity owned by userID. Repeated calls succeed.
// Only version conflicts are retried; typed failures return immediately.
func (s *ActivityService) DeactivateActivity(ctx context.Context, userID, activityID string) (*Activity, error) {
	for attempt := 0; attempt < s.opts.maxAttempts; attempt++ {
		activity, err := s.getActivity(ctx, activityID)
		if err != nil {
			return nil, err
		}
		if !activity.OwnedBy(userID) {
			return nil, fmt.Errorf("%w: activity %s", ErrForbidden, activityID)
		}

		expected := activity.Version
		if !activity.Deactivate(s.opts.now()) {
			return activity, nil
		}
		if err := s.activities.Update(ctx, activity, expected); err != nil {
			if errors.Is(err, ErrConflict) {
				observability.RecordVersionConflict("activity")
				continue
			}
			return nil, err
		}
		return activity, nil
	}
	return nil, fmt.Errorf("%w: activity %s", ErrConflict, activityID)
}

// ListUserActivities returns the user's active activities, newest first.
func (s *ActivityService) ListUserActivities(ctx context.Context, userID string, page, pageSize int) ([]Activity, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}
	return s.activities.List(ctx, ActivityFilter{UserID: userID}, page, pageSize)
}

// Feed returns public finished activities, newest first.
func (s *ActivityService) Feed(ctx context.Context, page, pageSize int) ([]Activity, error) {
	return s.activities.List(ctx, ActivityFilter{PublicOnly: true, Status: ActivityStatusFinished}, page, pageSize)
}

// Stats aggregates the user's finished, active activities, optionally of one type.
func (s *ActivityService) Stats(ctx context.Context, userID string, activityType ActivityType) (ActivityStats, error) {
	if userID == "" {
		return ActivityStats{}, validationError("user id is required")
	}
	switch activityType {
	case "", ActivityTypeRunning, ActivityTypeCycling, ActivityTypeHiking:
	default:
		return ActivityStats{}, validationError("unknown activity type %q", activityType)
	}

	totals, err := s.activities.Totals(ctx, ActivityFilter{
		UserID: userID,
		Type:   activityType,
		Status: ActivityStatusFinished,
	})
	if err != nil {
		return ActivityStats{}, err
	}

	stats := ActivityStats{
		TotalDistance:   totals.Distance / 1000,
		TotalTime:       totals.Duration,
		TotalActivities: totals.Count,
	}
	if hours := totals.Duration / 3600; hours > 0 {
		stats.AverageSpeed = stats.TotalDistance / hours
	}
	return stats, nil
}
