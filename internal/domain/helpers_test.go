package domain_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/persistence/memory"
	"example.com/challengeengine/internal/route"
)

var epoch = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// metersPerDegree is the meridian arc length of one degree on the engine's sphere.
const metersPerDegree = route.EarthRadiusMeters * math.Pi / 180

type published struct {
	topic   string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, payload: payload})
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

func (p *recordingPublisher) count(topic string) int {
	n := 0
	for _, t := range p.topics() {
		if t == topic {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	activities *domain.ActivityService
	challenges *domain.ChallengeService
	publisher  *recordingPublisher
	clock      *fakeClock
}

func newFixture(t *testing.T, opts ...domain.Option) *fixture {
	t.Helper()
	clock := &fakeClock{now: epoch}
	publisher := &recordingPublisher{}
	activityRepo := memory.NewActivityRepository()
	challengeRepo := memory.NewChallengeRepository()

	opts = append([]domain.Option{domain.WithClock(clock.Now)}, opts...)
	return &fixture{
		activities: domain.NewActivityService(activityRepo, publisher, opts...),
		challenges: domain.NewChallengeService(challengeRepo, activityRepo, publisher, opts...),
		publisher:  publisher,
		clock:      clock,
	}
}

// uploadRun stores a finished running activity of km kilometres lasting minutes.
func (f *fixture) uploadRun(t *testing.T, userID string, km, minutes float64) *domain.Activity {
	t.Helper()
	start := f.clock.Now().Add(-time.Duration(minutes * float64(time.Minute)))
	activity, err := f.activities.CreateActivity(context.Background(), domain.CreateActivityInput{
		UserID: userID,
		Type:   domain.ActivityTypeRunning,
		Title:  "Morning run",
		Route: []route.Sample{
			{Longitude: 0, Latitude: 0, Timestamp: start},
			{Longitude: 0, Latitude: km * 1000 / metersPerDegree, Timestamp: f.clock.Now()},
		},
	})
	require.NoError(t, err)
	return activity
}

func (f *fixture) createChallenge(t *testing.T, mutate func(*domain.CreateChallengeInput)) *domain.Challenge {
	t.Helper()
	input := domain.CreateChallengeInput{
		CreatorID:    "creator",
		Title:        "June distance",
		Description:  "Run 10 km in June",
		Type:         domain.ChallengeTypeDistance,
		ActivityType: domain.ActivityTypeAll,
		Goal:         domain.Goal{Value: 10, Unit: "km"},
		StartDate:    epoch.Add(-time.Hour),
		EndDate:      epoch.Add(30 * 24 * time.Hour),
		Visibility:   domain.VisibilityPublic,
		Reward:       domain.Reward{Points: 100, Badge: "june-10k"},
	}
	if mutate != nil {
		mutate(&input)
	}
	challenge, err := f.challenges.CreateChallenge(context.Background(), input)
	require.NoError(t, err)
	return challenge
}
