package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/challengeengine/internal/config"
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
	logger := logging.Component("dlq-pruner")

	if cfg.PostgresURL == "" {
		logger.Fatal().Msg("dlq pruner requires postgres_url")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress, promhttp.Handler())
	go func() {
		logger.Info().Str("address", cfg.MetricsAddress).Msg("dlq pruner metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	logger.Info().Dur("interval", cfg.DLQPollInterval).Dur("retention", cfg.DLQRetention).Msg("dlq pruner started")
	pruner := outbox.NewDLQPruner(pool, cfg.DLQRetention)
	if err := pruner.Run(ctx, cfg.DLQPollInterval); err != nil {
		logger.Error().Err(err).Msg("dlq pruner stopped with error")
	}
	logger.Info().Msg("dlq pruner received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown error")
	}
}
