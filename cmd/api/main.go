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

	"example.com/challengeengine/internal/api"
	"example.com/challengeengine/internal/auth"
	"example.com/challengeengine/internal/config"
	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/logging"
	"example.com/challengeengine/internal/outbox"
	"example.com/challengeengine/internal/persistence/memory"
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
	logger := logging.Component("api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		activityRepo  domain.ActivityRepository
		challengeRepo domain.ChallengeRepository
		dlq           outbox.DeadLetterWriter
	)
	if cfg.PostgresURL != "" {
		pool, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer pool.Close()

		activityRepo = postgres.NewActivityRepository(pool)
		challengeRepo = postgres.NewChallengeRepository(pool)
		dlq = outbox.NewDLQWriter(pool)
	} else {
		logger.Warn().Msg("postgres_url not set, using in-memory repositories")
		activityRepo = memory.NewActivityRepository()
		challengeRepo = memory.NewChallengeRepository()
	}

	pipeline := outbox.StartPipeline(ctx, outbox.PipelineConfig{
		Brokers:           cfg.Brokers(),
		SchemaRegistryURL: cfg.SchemaRegistryURL,
		Buffer:            cfg.PublishBuffer,
		Dispatcher: outbox.DispatcherConfig{
			BatchSize:        cfg.PublishBatchSize,
			FlushInterval:    cfg.PublishFlushInterval,
			FailureThreshold: cfg.BreakerFailureThreshold,
			BreakerTimeout:   cfg.BreakerTimeout,
		},
		DLQ: dlq,
	})
	publisher := pipeline.Publisher()

	activities := domain.NewActivityService(activityRepo, publisher)
	challenges := domain.NewChallengeService(challengeRepo, activityRepo, publisher,
		domain.WithParallelism(cfg.EvaluationParallelism))

	handler := api.NewHandler(activities, challenges, api.WithInlineEvaluation(cfg.InlineEvaluation))
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	router := api.NewRouter(handler, api.RouterConfig{
		AllowedOrigins:    cfg.CORSOrigins(),
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Authenticate:      authMiddleware.Wrap,
	})

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), router)
	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress, promhttp.Handler())

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("address", cfg.MetricsAddress).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	go func() {
		logger.Info().Str("address", cfg.HTTPAddress).
			Bool("inline_evaluation", cfg.InlineEvaluation).
			Int("brokers", len(cfg.Brokers())).
			Msg("challenge engine api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-shutdownCh
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}

	// Requests are drained; flush what they published before the pool closes.
	if err := pipeline.Close(); err != nil {
		logger.Error().Err(err).Msg("event pipeline close error")
	}
	cancel()
}
