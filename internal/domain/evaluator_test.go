package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/challengeengine/internal/route"
)

func floatPtr(v float64) *float64 { return &v }

func finishedRun(distance, duration float64) *Activity {
	return &Activity{
		ID:     "a-1",
		UserID: "u-1",
		Type:   ActivityTypeRunning,
		Status: ActivityStatusFinished,
		Route: []route.Sample{
			{Longitude: 2.17, Latitude: 41.38, Timestamp: time.Unix(0, 0)},
			{Longitude: 2.18, Latitude: 41.39, Timestamp: time.Unix(600, 0)},
		},
		Metrics: route.Metrics{Distance: distance, Duration: duration, ElevationGain: 42},
	}
}

func TestQualifiesActivityType(t *testing.T) {
	run := finishedRun(5000, 1800)

	require.True(t, Qualifies(&Challenge{ActivityType: ActivityTypeRunning}, run))
	require.True(t, Qualifies(&Challenge{ActivityType: ActivityTypeAll}, run))
	require.False(t, Qualifies(&Challenge{ActivityType: ActivityTypeCycling}, run))
}

func TestQualifiesMinimums(t *testing.T) {
	run := finishedRun(5000, 1800)

	require.True(t, Qualifies(&Challenge{ActivityType: ActivityTypeAll, Rules: Rules{MinActivityLength: floatPtr(5000)}}, run))
	require.False(t, Qualifies(&Challenge{ActivityType: ActivityTypeAll, Rules: Rules{MinActivityLength: floatPtr(5001)}}, run))
	require.True(t, Qualifies(&Challenge{ActivityType: ActivityTypeAll, Rules: Rules{MinActivityDuration: floatPtr(30)}}, run))
	require.False(t, Qualifies(&Challenge{ActivityType: ActivityTypeAll, Rules: Rules{MinActivityDuration: floatPtr(31)}}, run))
}

func TestQualifiesAllowedLocations(t *testing.T) {
	run := finishedRun(5000, 1800)
	near := route.GeoFence{Center: route.Point{Longitude: 2.18, Latitude: 41.39}, RadiusMeters: 200}
	far := route.GeoFence{Center: route.Point{Longitude: -3.70, Latitude: 40.41}, RadiusMeters: 1000}

	require.True(t, Qualifies(&Challenge{ActivityType: ActivityTypeAll, Rules: Rules{AllowedLocations: []route.GeoFence{far, near}}}, run))
	require.False(t, Qualifies(&Challenge{ActivityType: ActivityTypeAll, Rules: Rules{AllowedLocations: []route.GeoFence{far}}}, run))
}

func TestContributionValue(t *testing.T) {
	run := finishedRun(5500, 1800)

	require.InDelta(t, 5.5, ContributionValue(ChallengeTypeDistance, run), 1e-9)
	require.InDelta(t, 30, ContributionValue(ChallengeTypeTime, run), 1e-9)
	require.InDelta(t, 42, ContributionValue(ChallengeTypeElevation, run), 1e-9)
	require.Equal(t, 1.0, ContributionValue(ChallengeTypeFrequency, run))
}

func TestProgressRecordApplyLatchesOnce(t *testing.T) {
	first := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	rec := ProgressRecord{UserID: "u-1"}

	require.False(t, rec.Apply(6, 10, first))
	require.True(t, rec.Apply(5, 10, first.Add(time.Hour)))
	require.True(t, rec.Completed)
	require.Equal(t, first.Add(time.Hour), *rec.CompletionDate)

	require.False(t, rec.Apply(3, 10, first.Add(2*time.Hour)))
	require.Equal(t, 14.0, rec.CurrentValue)
	require.Equal(t, first.Add(time.Hour), *rec.CompletionDate)
	require.Equal(t, first.Add(2*time.Hour), rec.LastUpdate)
}

func TestChallengeProgressHelpers(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c := Challenge{
		Goal:      Goal{Value: 20, Unit: "km"},
		StartDate: start,
		EndDate:   start.Add(48 * time.Hour),
		Progress:  []ProgressRecord{{UserID: "a", CurrentValue: 5}, {UserID: "b"}},
	}

	require.Equal(t, []string{"a", "b"}, c.ParticipantIDs())
	require.Equal(t, 25.0, c.ProgressPercent("a"))
	require.Zero(t, c.ProgressPercent("nobody"))
	require.Equal(t, 24*time.Hour, c.RemainingTime(start.Add(24*time.Hour)))
	require.Zero(t, c.RemainingTime(start.Add(72*time.Hour)))
	require.True(t, c.ActiveAt(start))
	require.True(t, c.ActiveAt(c.EndDate))
	require.False(t, c.ActiveAt(start.Add(-time.Second)))

	c.Deactivated = true
	require.False(t, c.ActiveAt(start.Add(time.Hour)))
}
