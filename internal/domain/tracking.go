package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"example.com/challengeengine/internal/events"
	"example.com/challengeengine/internal/logging"
	"example.com/challengeengine/internal/observability"
	"example.com/challengeengine/internal/route"
)

// ActivityService manages tracking sessions and recorded activities.
type ActivityService struct {
	activities ActivityRepository
	publisher  Publisher
	opts       options
}

// NewActivityService constructs an ActivityService. A nil publisher discards events.
func NewActivityService(activities ActivityRepository, publisher Publisher, opts ...Option) *ActivityService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &ActivityService{
		activities: activities,
		publisher:  publisher,
		opts:       buildOptions(opts),
	}
}

// StartTrackingInput captures a new tracking session request.
type StartTrackingInput struct {
	UserID      string       `validate:"required"`
	Type        ActivityType `validate:"required,oneof=running cycling hiking"`
	Title       string       `validate:"required,max=200"`
	Description string       `validate:"max=2000"`
	IsPublic    bool
}

// StartTracking creates a Recording activity with an empty route.
func (s *ActivityService) StartTracking(ctx context.Context, input StartTrackingInput) (*Activity, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := s.opts.now()
	activity := Activity{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		Type:        input.Type,
		Title:       input.Title,
		Description: input.Description,
		StartTime:   now,
		IsPublic:    input.IsPublic,
		Status:      ActivityStatusRecording,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.TopicActivityStarted, events.ActivityStarted{
		ActivityID:   activity.ID,
		UserID:       activity.UserID,
		ActivityType: string(activity.Type),
		Title:        activity.Title,
		StartedAt:    activity.StartTime,
	})
	return &activity, nil
}

// UpdateTracking appends one sample to a Recording activity owned by userID.
// No metrics are computed here.
func (s *ActivityService) UpdateTracking(ctx context.Context, userID, activityID string, sample route.Sample) (*Activity, error) {
	if activityID == "" {
		return nil, validationError("activity id is required")
	}
	now := s.opts.now()
	activity, err := s.activities.AppendSample(ctx, activityID, sample, func(a *Activity) error {
		if !a.OwnedBy(userID) {
			return fmt.Errorf("%w: activity %s", ErrForbidden, a.ID)
		}
		return a.AcceptSample(sample, now)
	})
	if err != nil {
		return nil, err
	}

	observability.RecordSampleAccepted()
	s.publisher.Publish(ctx, events.TopicPositionUpdated, events.PositionUpdated{
		ActivityID: activity.ID,
		UserID:     activity.UserID,
		Longitude:  sample.Longitude,
		Latitude:   sample.Latitude,
		Elevation:  sample.Elevation,
		Speed:      sample.Speed,
		Timestamp:  sample.Timestamp,
		Sequence:   activity.SampleCount,
	})
	return activity, nil
}

// FinishTracking computes and freezes the route metrics of a Recording
// activity owned by userID. A version conflict re-reads the activity and
// tries again, up to the configured attempts; typed failures such as
// ErrForbidden or ErrInvalidState are never retried.
func (s *ActivityService) FinishTracking(ctx context.Context, userID, activityID string) (*Activity, error) {
	if activityID == "" {
		return nil, validationError("activity id is required")
	}

	for attempt := 0; attempt < s.opts.maxAttempts; attempt++ {
		activity, err := s.getActivity(ctx, activityID)
		if err != nil {
			return nil, err
		}
		if !activity.OwnedBy(userID) {
			return nil, fmt.Errorf("%w: activity %s", ErrForbidden, activityID)
		}

		expected := activity.Version
		if err := activity.Finish(s.opts.now()); err != nil {
			return nil, err
		}
		if err := s.activities.Update(ctx, activity, expected); err != nil {
			if errors.Is(err, ErrConflict) {
				// A sample landed between read and write.
				observability.RecordVersionConflict("activity")
				continue
			}
			return nil, err
		}

		observability.RecordActivityFinished(string(activity.Type), *activity.EndTime)
		s.publisher.Publish(ctx, events.TopicActivityEnded, activityEnded(activity))
		logging.Ctx(ctx).Debug().
			Str("activity_id", activity.ID).
			Float64("distance_m", activity.Metrics.Distance).
			Int("samples", len(activity.Route)).
			Msg("activity finished")
		return activity, nil
	}
	return nil, fmt.Errorf("%w: activity %s", ErrConflict, activityID)
}

func (s *ActivityService) getActivity(ctx context.Context, id string) (*Activity, error) {
	activity, err := s.activities.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, fmt.Errorf("%w: activity %s", ErrNotFound, id)
	}
	return activity, nil
}

func activityEnded(a *Activity) events.ActivityEnded {
	evt := events.ActivityEnded{
		ActivityID:    a.ID,
		UserID:        a.UserID,
		ActivityType:  string(a.Type),
		StartedAt:     a.StartTime,
		Distance:      a.Metrics.Distance,
		Duration:      a.Metrics.Duration,
		ElevationGain: a.Metrics.ElevationGain,
		ElevationLoss: a.Metrics.ElevationLoss,
		AverageSpeed:  a.Metrics.AverageSpeed,
		MaxSpeed:      a.Metrics.MaxSpeed,
		Pace:          a.Metrics.Pace,
	}
	if a.EndTime != nil {
		evt.EndedAt = *a.EndTime
	}
	return evt
}
