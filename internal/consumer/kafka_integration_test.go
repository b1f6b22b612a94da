//go:build integration

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/outbox"
	"example.com/challengeengine/internal/persistence/memory"
	"example.com/challengeengine/internal/route"
)

func TestKafkaActivityEndedAdvancesChallenge(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.Run(ctx, "confluentinc/confluent-local:7.5.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(
		kafka.TopicConfig{Topic: outbox.ActivityEventsTopic, NumPartitions: 1, ReplicationFactor: 1},
		kafka.TopicConfig{Topic: outbox.ChallengeEventsTopic, NumPartitions: 1, ReplicationFactor: 1},
	))

	pipeline := outbox.StartPipeline(context.Background(), outbox.PipelineConfig{
		Brokers:    brokers,
		Buffer:     64,
		Dispatcher: outbox.DispatcherConfig{BatchSize: 1, FlushInterval: 50 * time.Millisecond},
	})
	t.Cleanup(func() { _ = pipeline.Close() })

	activityRepo := memory.NewActivityRepository()
	activities := domain.NewActivityService(activityRepo, pipeline.Publisher())
	challenges := domain.NewChallengeService(memory.NewChallengeRepository(), activityRepo, pipeline.Publisher())

	now := time.Now().UTC()
	challenge, err := challenges.CreateChallenge(ctx, domain.CreateChallengeInput{
		CreatorID:    "coach",
		Title:        "Five k week",
		Description:  "Run five kilometres",
		Type:         domain.ChallengeTypeDistance,
		ActivityType: domain.ActivityTypeRunning,
		Goal:         domain.Goal{Value: 5, Unit: "km"},
		StartDate:    now.Add(-time.Hour),
		EndDate:      now.Add(7 * 24 * time.Hour),
		Visibility:   domain.VisibilityPublic,
	})
	require.NoError(t, err)
	_, joined, err := challenges.Join(ctx, challenge.ID, "runner")
	require.NoError(t, err)
	require.True(t, joined)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "challenge-engine-integration",
		GroupTopics: []string{outbox.ActivityEventsTopic},
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	proc := NewProcessor(reader, NewProgressHandler(challenges))
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	start := now.Add(-30 * time.Minute)
	_, err = activities.CreateActivity(ctx, domain.CreateActivityInput{
		UserID: "runner",
		Type:   domain.ActivityTypeRunning,
		Title:  "Lunch run",
		Route: []route.Sample{
			{Longitude: 0, Latitude: 0, Timestamp: start},
			{Longitude: 0, Latitude: 0.03, Timestamp: start.Add(20 * time.Minute)},
		},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := challenges.GetChallenge(ctx, challenge.ID)
		if err != nil {
			return false
		}
		rec := current.ProgressFor("runner")
		return rec != nil && rec.CurrentValue > 3.3
	}, time.Minute, 500*time.Millisecond)

	board, err := challenges.Leaderboard(ctx, challenge.ID)
	require.NoError(t, err)
	require.Equal(t, "runner", board[0].UserID)
	require.False(t, board[0].Completed)
}
