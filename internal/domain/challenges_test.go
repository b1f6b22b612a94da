package domain_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/events"
	"example.com/challengeengine/internal/route"
)

func TestCreateChallengeJoinsCreator(t *testing.T) {
	f := newFixture(t)

	challenge := f.createChallenge(t, nil)
	require.Equal(t, []string{"creator"}, challenge.ParticipantIDs())
	require.Equal(t, 1, f.publisher.count(events.TopicNewChallenge))

	f.createChallenge(t, func(in *domain.CreateChallengeInput) {
		in.Visibility = domain.VisibilityPrivate
	})
	require.Equal(t, 1, f.publisher.count(events.TopicNewChallenge))
}

func TestCreateChallengeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := domain.CreateChallengeInput{
		CreatorID:    "creator",
		Title:        "Climb",
		Description:  "Gain 1000 m",
		Type:         domain.ChallengeTypeElevation,
		ActivityType: domain.ActivityTypeHiking,
		Goal:         domain.Goal{Value: 1000, Unit: "meters"},
		StartDate:    epoch,
		EndDate:      epoch.Add(time.Hour),
		Visibility:   domain.VisibilityPublic,
	}

	cases := map[string]func(*domain.CreateChallengeInput){
		"unit mismatch":  func(in *domain.CreateChallengeInput) { in.Goal.Unit = "km" },
		"zero goal":      func(in *domain.CreateChallengeInput) { in.Goal.Value = 0 },
		"end before":     func(in *domain.CreateChallengeInput) { in.EndDate = in.StartDate.Add(-time.Minute) },
		"no description": func(in *domain.CreateChallengeInput) { in.Description = "" },
		"bad visibility": func(in *domain.CreateChallengeInput) { in.Visibility = "friends" },
		"bad fence": func(in *domain.CreateChallengeInput) {
			in.Rules.AllowedLocations = []route.GeoFence{{Center: route.Point{Longitude: 0, Latitude: 0}, RadiusMeters: 0}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := base
			mutate(&input)
			_, err := f.challenges.CreateChallenge(ctx, input)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	_, err := f.challenges.CreateChallenge(ctx, base)
	require.NoError(t, err)
}

func TestJoinChallengeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	challenge := f.createChallenge(t, nil)

	first, joined, err := f.challenges.Join(ctx, challenge.ID, "runner")
	require.NoError(t, err)
	require.True(t, joined)
	require.Zero(t, first.CurrentValue)

	f.clock.Advance(time.Minute)
	second, joined, err := f.challenges.Join(ctx, challenge.ID, "runner")
	require.NoError(t, err)
	require.False(t, joined)
	require.Equal(t, first.LastUpdate, second.LastUpdate)

	stored, err := f.challenges.GetChallenge(ctx, challenge.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"creator", "runner"}, stored.ParticipantIDs())
	require.Equal(t, 1, f.publisher.count(events.TopicChallengeJoined))

	_, _, err = f.challenges.Join(ctx, "missing", "runner")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProgressCompletesOnceAcrossContributions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	challenge := f.createChallenge(t, nil)
	_, _, err := f.challenges.Join(ctx, challenge.ID, "runner")
	require.NoError(t, err)

	first := f.uploadRun(t, "runner", 6, 30)
	res, err := f.challenges.UpdateProgress(ctx, "runner", challenge.ID, first.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeApplied, res.Outcome)
	require.False(t, res.Completed)
	require.InDelta(t, 6, res.Record.CurrentValue, 1e-6)

	f.clock.Advance(time.Hour)
	completedAt := f.clock.Now()
	second := f.uploadRun(t, "runner", 5, 25)
	res, err = f.challenges.UpdateProgress(ctx, "runner", challenge.ID, second.ID)
	require.NoError(t, err)
	require.True(t, res.Completed)
	require.InDelta(t, 11, res.Record.CurrentValue, 1e-6)

	f.clock.Advance(time.Hour)
	third := f.uploadRun(t, "runner", 2, 10)
	res, err = f.challenges.UpdateProgress(ctx, "runner", challenge.ID, third.ID)
	require.NoError(t, err)
	require.False(t, res.Completed)

	stored, err := f.challenges.GetChallenge(ctx, challenge.ID)
	require.NoError(t, err)
	rec := stored.ProgressFor("runner")
	require.NotNil(t, rec)
	require.InDelta(t, 13, rec.CurrentValue, 1e-6)
	require.True(t, rec.Completed)
	require.Equal(t, completedAt, *rec.CompletionDate)
	require.Equal(t, f.clock.Now(), rec.LastUpdate)

	require.Equal(t, 3, f.publisher.count(events.TopicChallengeProgressUpdated))
	require.Equal(t, 1, f.publisher.count(events.TopicChallengeCompleted))
}

func TestMinDurationViolationLeavesProgressUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	challenge := f.createChallenge(t, func(in *domain.CreateChallengeInput) {
		minutes := 30.0
		in.Rules.MinActivityDuration = &minutes
	})
	joined, _, err := f.challenges.Join(ctx, challenge.ID, "runner")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	short := f.uploadRun(t, "runner", 3, 10)
	res, err := f.challenges.UpdateProgress(ctx, "runner", challenge.ID, short.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNotQualifying, res.Outcome)
	require.Nil(t, res.Record)

	stored, err := f.challenges.GetChallenge(ctx, challenge.ID)
	require.NoError(t, err)
	rec := stored.ProgressFor("runner")
	require.Zero(t, rec.CurrentValue)
	require.Equal(t, joined.LastUpdate, rec.LastUpdate)
	require.Zero(t, f.publisher.count(events.TopicChallengeProgressUpdated))
}

func TestUpdateProgressSilentNoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	challenge := f.createChallenge(t, func(in *domain.CreateChallengeInput) {
		in.ActivityType = domain.ActivityTypeCycling
	})

	run := f.uploadRun(t, "stranger", 5, 30)
	res, err := f.challenges.UpdateProgress(ctx, "stranger", challenge.ID, run.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNotParticipant, res.Outcome)

	_, _, err = f.challenges.Join(ctx, challenge.ID, "stranger")
	require.NoError(t, err)
	res, err = f.challenges.UpdateProgress(ctx, "stranger", challenge.ID, run.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeNotQualifying, res.Outcome)

	f.clock.Advance(31 * 24 * time.Hour)
	res, err = f.challenges.UpdateProgress(ctx, "stranger", challenge.ID, run.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeOutsideWindow, res.Outcome)

	require.Zero(t, f.publisher.count(events.TopicChallengeProgressUpdated))
}

func TestUpdateProgressErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	challenge := f.createChallenge(t, nil)
	run := f.uploadRun(t, "runner", 5, 30)

	_, err := f.challenges.UpdateProgress(ctx, "runner", "missing", run.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.challenges.UpdateProgress(ctx, "runner", challenge.ID, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.challenges.UpdateProgress(ctx, "someone-else", challenge.ID, run.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	recording, err := f.activities.StartTracking(ctx, domain.StartTrackingInput{UserID: "runner", Type: domain.ActivityTypeRunning, Title: "Live"})
	require.NoError(t, err)
	_, err = f.challenges.UpdateProgress(ctx, "runner", challenge.ID, recording.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestSameActivityCountsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	challenge := f.createChallenge(t, nil)
	_, _, err := f.challenges.Join(ctx, challenge.ID, "runner")
	require.NoError(t, err)
	run := f.uploadRun(t, "runner", 4, 20)

	res, err := f.challenges.UpdateProgress(ctx, "runner", challenge.ID, run.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeApplied, res.Outcome)

	res, err = f.challenges.UpdateProgress(ctx, "runner", challenge.ID, run.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeAlreadyApplied, res.Outcome)

	stored, err := f.challenges.GetChallenge(ctx, challenge.ID)
	require.NoError(t, err)
	require.InDelta(t, 4, stored.ProgressFor("runner").CurrentValue, 1e-6)
}

func TestDeactivateChallengeFreezesProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	challenge := f.createChallenge(t, nil)
	_, _, err := f.challenges.Join(ctx, challenge.ID, "runner")
	require.NoError(t, err)

	_, err = f.challenges.DeactivateChallenge(ctx, "runner", challenge.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	deactivated, err := f.challenges.DeactivateChallenge(ctx, "creator", challenge.ID)
	require.NoError(t, err)
	require.True(t, deactivated.Deactivated)

	again, err := f.challenges.DeactivateChallenge(ctx, "creator", challenge.ID)
	require.NoError(t, err)
	require.Equal(t, deactivated.Version, again.Version)

	_, _, err = f.challenges.Join(ctx, challenge.ID, "late")
	require.ErrorIs(t, err, domain.ErrInvalidState)

	run := f.uploadRun(t, "runner", 5, 30)
	_, err = f.challenges.UpdateProgress(ctx, "runner", challenge.ID, run.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	// history stays readable
	board, err := f.challenges.Leaderboard(ctx, challenge.ID)
	require.NoError(t, err)
	require.Len(t, board, 2)
}

func TestApplyFinishedActivityEvaluatesJoinedChallenges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	distance := f.createChallenge(t, nil)
	frequency := f.createChallenge(t, func(in *domain.CreateChallengeInput) {
		in.Type = domain.ChallengeTypeFrequency
		in.Goal = domain.Goal{Value: 3, Unit: "times"}
	})
	f.createChallenge(t, func(in *domain.CreateChallengeInput) {
		in.Title = "Not joined"
	})
	for _, c := range []*domain.Challenge{distance, frequency} {
		_, _, err := f.challenges.Join(ctx, c.ID, "runner")
		require.NoError(t, err)
	}

	run := f.uploadRun(t, "runner", 7, 40)
	results, err := f.challenges.ApplyFinishedActivity(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byChallenge := make(map[string]domain.ProgressResult, len(results))
	for _, res := range results {
		require.Equal(t, domain.OutcomeApplied, res.Outcome)
		byChallenge[res.ChallengeID] = res
	}
	require.InDelta(t, 7, byChallenge[distance.ID].Contribution, 1e-6)
	require.Equal(t, 1.0, byChallenge[frequency.ID].Contribution)

	again, err := f.challenges.ApplyFinishedActivity(ctx, run.ID)
	require.NoError(t, err)
	for _, res := range again {
		require.Equal(t, domain.OutcomeAlreadyApplied, res.Outcome)
	}
}

func TestConcurrentContributionsAreNotLost(t *testing.T) {
	const runs = 20
	f := newFixture(t, domain.WithMaxAttempts(runs+5))
	ctx := context.Background()
	challenge := f.createChallenge(t, func(in *domain.CreateChallengeInput) {
		in.Type = domain.ChallengeTypeFrequency
		in.Goal = domain.Goal{Value: 100, Unit: "times"}
	})
	_, _, err := f.challenges.Join(ctx, challenge.ID, "runner")
	require.NoError(t, err)

	ids := make([]string, 0, runs)
	for i := 0; i < runs; i++ {
		ids = append(ids, f.uploadRun(t, "runner", 1, 5).ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.challenges.UpdateProgress(ctx, "runner", challenge.ID, id)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.challenges.GetChallenge(ctx, challenge.ID)
	require.NoError(t, err)
	require.Equal(t, float64(runs), stored.ProgressFor("runner").CurrentValue)
}

func TestLeaderboardAndListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	challenge := f.createChallenge(t, nil)
	private := f.createChallenge(t, func(in *domain.CreateChallengeInput) {
		in.Visibility = domain.VisibilityPrivate
	})

	for _, user := range []string{"a", "b", "c"} {
		_, _, err := f.challenges.Join(ctx, challenge.ID, user)
		require.NoError(t, err)
	}
	for _, step := range []struct {
		user string
		km   float64
	}{{"a", 5}, {"b", 11}, {"c", 11}} {
		f.clock.Advance(time.Minute)
		run := f.uploadRun(t, step.user, step.km, 30)
		_, err := f.challenges.UpdateProgress(ctx, step.user, challenge.ID, run.ID)
		require.NoError(t, err)
	}

	board, err := f.challenges.Leaderboard(ctx, challenge.ID)
	require.NoError(t, err)
	require.Len(t, board, 4)
	require.Equal(t, "b", board[0].UserID)
	require.Equal(t, "c", board[1].UserID)
	require.Equal(t, "a", board[2].UserID)
	require.Equal(t, "creator", board[3].UserID)
	require.True(t, board[0].Completed)

	active, err := f.challenges.ActiveUserChallenges(ctx, "a", 1, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, challenge.ID, active[0].ID)

	available, err := f.challenges.AvailableChallenges(ctx, "newcomer", 1, 10)
	require.NoError(t, err)
	require.Len(t, available, 1)
	require.Equal(t, challenge.ID, available[0].ID)

	creatorActive, err := f.challenges.ActiveUserChallenges(ctx, "creator", 1, 10)
	require.NoError(t, err)
	require.Len(t, creatorActive, 2)
	require.ElementsMatch(t, []string{challenge.ID, private.ID}, []string{creatorActive[0].ID, creatorActive[1].ID})
}
