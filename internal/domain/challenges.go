package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"example.com/challengeengine/internal/events"
	"example.com/challengeengine/internal/logging"
	"example.com/challengeengine/internal/observability"
)

const challengeScanPageSize = 100

// ProgressOutcome describes what an evaluation did.
type ProgressOutcome string

const (
	OutcomeApplied        ProgressOutcome = "applied"
	OutcomeOutsideWindow  ProgressOutcome = "outside_window"
	OutcomeNotParticipant ProgressOutcome = "not_participant"
	OutcomeNotQualifying  ProgressOutcome = "not_qualifying"
	OutcomeAlreadyApplied ProgressOutcome = "already_applied"
)

// ProgressResult reports one evaluation of an activity against a challenge.
// Record is set only when the outcome is OutcomeApplied.
type ProgressResult struct {
	ChallengeID  string          `json:"challengeId"`
	Outcome      ProgressOutcome `json:"outcome"`
	Contribution float64         `json:"contribution"`
	Record       *ProgressRecord `json:"record,omitempty"`
	// Completed is true only for the evaluation that latched completion.
	Completed bool `json:"completed"`
}

// ChallengeService creates challenges, tracks participation and evaluates
// finished activities against them.
type ChallengeService struct {
	challenges ChallengeRepository
	activities ActivityRepository
	publisher  Publisher
	opts       options
}

// NewChallengeService constructs a ChallengeService. A nil publisher discards events.
func NewChallengeService(challenges ChallengeRepository, activities ActivityRepository, publisher Publisher, opts ...Option) *ChallengeService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &ChallengeService{
		challenges: challenges,
		activities: activities,
		publisher:  publisher,
		opts:       buildOptions(opts),
	}
}

// CreateChallengeInput captures a new challenge definition.
type CreateChallengeInput struct {
	CreatorID    string        `validate:"required"`
	Title        string        `validate:"required,max=200"`
	Description  string        `validate:"required,max=2000"`
	Type         ChallengeType `validate:"required,oneof=distance time elevation frequency"`
	ActivityType ActivityType  `validate:"required,oneof=running cycling hiking all"`
	Goal         Goal          `validate:"required"`
	StartDate    time.Time     `validate:"required"`
	EndDate      time.Time     `validate:"required,gtfield=StartDate"`
	Rules        Rules
	Visibility   Visibility `validate:"required,oneof=public private invite-only"`
	Reward       Reward
}

// CreateChallenge stores a challenge with the creator as first participant.
func (s *ChallengeService) CreateChallenge(ctx context.Context, input CreateChallengeInput) (*Challenge, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if want := input.Type.GoalUnit(); input.Goal.Unit != want {
		return nil, validationError("goal unit for %s challenges must be %q", input.Type, want)
	}

	now := s.opts.now()
	challenge := Challenge{
		ID:           uuid.NewString(),
		CreatorID:    input.CreatorID,
		Title:        input.Title,
		Description:  input.Description,
		Type:         input.Type,
		ActivityType: input.ActivityType,
		Goal:         input.Goal,
		StartDate:    input.StartDate.UTC(),
		EndDate:      input.EndDate.UTC(),
		Rules:        input.Rules,
		Visibility:   input.Visibility,
		Reward:       input.Reward,
		Progress:     []ProgressRecord{{UserID: input.CreatorID, LastUpdate: now}},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.challenges.Create(ctx, challenge); err != nil {
		return nil, err
	}

	if challenge.Visibility == VisibilityPublic {
		s.publisher.Publish(ctx, events.TopicNewChallenge, events.ChallengeCreated{
			ChallengeID:  challenge.ID,
			CreatorID:    challenge.CreatorID,
			Title:        challenge.Title,
			Type:         string(challenge.Type),
			ActivityType: string(challenge.ActivityType),
			GoalValue:    challenge.Goal.Value,
			GoalUnit:     challenge.Goal.Unit,
			StartDate:    challenge.StartDate,
			EndDate:      challenge.EndDate,
		})
	}
	return &challenge, nil
}

// GetChallenge fetches a challenge with its progress records.
func (s *ChallengeService) GetChallenge(ctx context.Context, challengeID string) (*Challenge, error) {
	challenge, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if challenge == nil {
		return nil, fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
	}
	return challenge, nil
}

// Join creates a zero progress record for userID. Joining twice returns the
// existing record and reports false.
func (s *ChallengeService) Join(ctx context.Context, challengeID, userID string) (ProgressRecord, bool, error) {
	if challengeID == "" || userID == "" {
		return ProgressRecord{}, false, validationError("challenge id and user id are required")
	}

	now := s.opts.now()
	record := ProgressRecord{UserID: userID, LastUpdate: now}
	var existing *ProgressRecord
	added, err := s.challenges.AddParticipant(ctx, challengeID, record, func(c *Challenge) error {
		if c.Deactivated {
			return fmt.Errorf("%w: challenge %s is deactivated", ErrInvalidState, c.ID)
		}
		if rec := c.ProgressFor(userID); rec != nil {
			cp := *rec
			existing = &cp
		}
		return nil
	})
	if err != nil {
		return ProgressRecord{}, false, err
	}
	if !added {
		if existing != nil {
			return *existing, false, nil
		}
		return record, false, nil
	}

	s.publisher.Publish(ctx, events.TopicChallengeJoined, events.ChallengeJoined{
		ChallengeID: challengeID,
		UserID:      userID,
		JoinedAt:    now,
	})
	return record, true, nil
}

// UpdateProgress evaluates one of userID's finished activities against a challenge.
func (s *ChallengeService) UpdateProgress(ctx context.Context, userID, challengeID, activityID string) (ProgressResult, error) {
	activity, err := s.finishedActivity(ctx, activityID)
	if err != nil {
		return ProgressResult{}, err
	}
	if !activity.OwnedBy(userID) {
		return ProgressResult{}, fmt.Errorf("%w: activity %s", ErrForbidden, activityID)
	}
	return s.evaluate(ctx, challengeID, activity)
}

// ApplyFinishedActivity evaluates a finished activity against every active
// challenge its owner participates in. Challenges are evaluated concurrently;
// failures for individual challenges are joined into the returned error.
func (s *ChallengeService) ApplyFinishedActivity(ctx context.Context, activityID string) ([]ProgressResult, error) {
	activity, err := s.finishedActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	now := s.opts.now()
	var candidates []Challenge
	for page := 1; ; page++ {
		batch, err := s.challenges.List(ctx, ChallengeFilter{
			ParticipantID: activity.UserID,
			ActiveAt:      &now,
		}, page, challengeScanPageSize)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, batch...)
		if len(batch) < challengeScanPageSize {
			break
		}
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		errs    []error
		results = make([]*ProgressResult, len(candidates))
	)
	g.SetLimit(s.opts.parallelism)
	for i, challenge := range candidates {
		i, challenge := i, challenge
		g.Go(func() error {
			res, err := s.evaluate(ctx, challenge.ID, activity)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("challenge %s: %w", challenge.ID, err))
				mu.Unlock()
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	out := make([]ProgressResult, 0, len(results))
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out, errors.Join(errs...)
}

func (s *ChallengeService) finishedActivity(ctx context.Context, activityID string) (*Activity, error) {
	if activityID == "" {
		return nil, validationError("activity id is required")
	}
	activity, err := s.activities.Get(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, fmt.Errorf("%w: activity %s", ErrNotFound, activityID)
	}
	if activity.Status != ActivityStatusFinished {
		return nil, fmt.Errorf("%w: activity %s is %s", ErrInvalidState, activity.ID, activity.Status)
	}
	if activity.Deactivated {
		return nil, fmt.Errorf("%w: activity %s is deactivated", ErrInvalidState, activity.ID)
	}
	return activity, nil
}

// evaluate applies a finished activity to one challenge under optimistic versioning.
// Only ErrConflict from SaveProgress re-runs the evaluation against a fresh
// read; any other failure is returned as is.
func (s *ChallengeService) evaluate(ctx context.Context, challengeID string, activity *Activity) (ProgressResult, error) {
	log := logging.Ctx(ctx).With().
		Str("challenge_id", challengeID).
		Str("activity_id", activity.ID).
		Logger()

	for attempt := 0; attempt < s.opts.maxAttempts; attempt++ {
		challenge, err := s.GetChallenge(ctx, challengeID)
		if err != nil {
			return ProgressResult{}, err
		}
		if challenge.Deactivated {
			return ProgressResult{}, fmt.Errorf("%w: challenge %s is deactivated", ErrInvalidState, challengeID)
		}

		now := s.opts.now()
		result := ProgressResult{ChallengeID: challengeID}
		if !challenge.InWindow(now) {
			result.Outcome = OutcomeOutsideWindow
		} else if challenge.ProgressFor(activity.UserID) == nil {
			result.Outcome = OutcomeNotParticipant
		} else if !Qualifies(challenge, activity) {
			result.Outcome = OutcomeNotQualifying
		}
		if result.Outcome != "" {
			observability.RecordEvaluation(string(result.Outcome))
			log.Debug().Str("outcome", string(result.Outcome)).Msg("activity not applied")
			return result, nil
		}

		record := *challenge.ProgressFor(activity.UserID)
		value := ContributionValue(challenge.Type, activity)
		latched := record.Apply(value, challenge.Goal.Value, now)

		err = s.challenges.SaveProgress(ctx, challengeID, challenge.Version, record, Contribution{
			ActivityID: activity.ID,
			UserID:     activity.UserID,
			Value:      value,
			AppliedAt:  now,
		})
		switch {
		case errors.Is(err, ErrConflict):
			observability.RecordVersionConflict("challenge")
			continue
		case errors.Is(err, ErrAlreadyApplied):
			result.Outcome = OutcomeAlreadyApplied
			observability.RecordEvaluation(string(result.Outcome))
			return result, nil
		case err != nil:
			return ProgressResult{}, err
		}

		result.Outcome = OutcomeApplied
		result.Contribution = value
		result.Record = &record
		result.Completed = latched
		observability.RecordEvaluation(string(result.Outcome))

		s.publisher.Publish(ctx, events.TopicChallengeProgressUpdated, events.ChallengeProgressUpdated{
			ChallengeID:  challengeID,
			UserID:       record.UserID,
			ActivityID:   activity.ID,
			Contribution: value,
			CurrentValue: record.CurrentValue,
			GoalValue:    challenge.Goal.Value,
			Completed:    record.Completed,
			UpdatedAt:    now,
		})
		if latched {
			observability.RecordCompletion()
			s.publisher.Publish(ctx, events.TopicChallengeCompleted, events.ChallengeCompleted{
				ChallengeID:   challengeID,
				UserID:        record.UserID,
				CompletedAt:   now,
				RewardPoints:  challenge.Reward.Points,
				RewardBadge:   challenge.Reward.Badge,
				AchievementID: challenge.Reward.AchievementID,
			})
			log.Info().Str("user_id", record.UserID).Msg("challenge completed")
		}
		return result, nil
	}
	return ProgressResult{}, fmt.Errorf("%w: challenge %s", ErrConflict, challengeID)
}

// Leaderboard ranks the challenge participants.
func (s *ChallengeService) Leaderboard(ctx context.Context, challengeID string) ([]LeaderboardEntry, error) {
	challenge, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	return BuildLeaderboard(challenge.Progress), nil
}

// ActiveUserChallenges lists challenges userID joined that currently accept progress.
func (s *ChallengeService) ActiveUserChallenges(ctx context.Context, userID string, page, pageSize int) ([]Challenge, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}
	now := s.opts.now()
	return s.challenges.List(ctx, ChallengeFilter{ParticipantID: userID, ActiveAt: &now}, page, pageSize)
}

// AvailableChallenges lists running public challenges userID has not joined.
func (s *ChallengeService) AvailableChallenges(ctx context.Context, userID string, page, pageSize int) ([]Challenge, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}
	now := s.opts.now()
	return s.challenges.List(ctx, ChallengeFilter{
		ExcludeParticipantID: userID,
		ActiveAt:             &now,
		Visibility:           VisibilityPublic,
	}, page, pageSize)
}

// DeactivateChallenge freezes a challenge. Only the creator may deactivate;
// repeated calls succeed. Version conflicts are retried, typed failures are not.
func (s *ChallengeService) DeactivateChallenge(ctx context.Context, userID, challengeID string) (*Challenge, error) {
	for attempt := 0; attempt < s.opts.maxAttempts; attempt++ {
		challenge, err := s.GetChallenge(ctx, challengeID)
		if err != nil {
			return nil, err
		}
		if challenge.CreatorID != userID {
			return nil, fmt.Errorf("%w: challenge %s", ErrForbidden, challengeID)
		}
		if challenge.Deactivated {
			return challenge, nil
		}

		if err := s.challenges.Deactivate(ctx, challengeID, challenge.Version); err != nil {
			if errors.Is(err, ErrConflict) {
				observability.RecordVersionConflict("challenge")
				continue
			}
			return nil, err
		}
		challenge.Deactivated = true
		challenge.Version++
		challenge.UpdatedAt = s.opts.now()
		return challenge, nil
	}
	return nil, fmt.Errorf("%w: challenge %s", ErrConflict, challengeID)
}
