package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/challengeengine/internal/config"
	"example.com/challengeengine/internal/consumer"
	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/logging"
	"example.com/challengeengine/internal/outbox"
	"example.com/challengeengine/internal/persistence/postgres"
	httptransport "example.com/challengeengine/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.Logger()
		logger.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger := logging.Component("consumer")

	if cfg.PostgresURL == "" || len(cfg.Brokers()) == 0 {
		logger.Fatal().Msg("consumer requires postgres_url and kafka_brokers")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	// The pipeline outlives ctx so events from the last handled message still flush.
	pipeline := outbox.StartPipeline(context.Background(), outbox.PipelineConfig{
		Brokers:           cfg.Brokers(),
		SchemaRegistryURL: cfg.SchemaRegistryURL,
		Buffer:            cfg.PublishBuffer,
		Dispatcher: outbox.DispatcherConfig{
			BatchSize:        cfg.PublishBatchSize,
			FlushInterval:    cfg.PublishFlushInterval,
			FailureThreshold: cfg.BreakerFailureThreshold,
			BreakerTimeout:   cfg.BreakerTimeout,
		},
		DLQ: outbox.NewDLQWriter(pool),
	})

	activityRepo := postgres.NewActivityRepository(pool)
	challenges := domain.NewChallengeService(postgres.NewChallengeRepository(pool), activityRepo, pipeline.Publisher(),
		domain.WithParallelism(cfg.EvaluationParallelism))

	handler := consumer.Chain(
		consumer.NewAuditHandler(pool),
		consumer.NewProgressHandler(challenges),
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Brokers(),
		GroupID:         cfg.ConsumerGroupID,
		GroupTopics:     cfg.Topics(),
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger))

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress, promhttp.Handler())
	go func() {
		logger.Info().Str("address", cfg.MetricsAddress).Msg("consumer metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer reader.Close()

		logger.Info().Strs("topics", cfg.Topics()).Str("group", cfg.ConsumerGroupID).Msg("consumer started")
		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped with error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("consumer shutdown requested")
	cancel()
	<-done

	if err := pipeline.Close(); err != nil {
		logger.Error().Err(err).Msg("event pipeline close error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
}
