// Package config centralises configuration parsing for the challenge engine processes.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names the optional YAML config file.
const PathEnvVar = "CONFIG_PATH"

// Config captures runtime configuration values shared by the api, consumer and dlqpruner processes.
type Config struct {
	HTTPAddress    string `koanf:"http_address"`
	MetricsAddress string `koanf:"metrics_address"`
	// PostgresURL selects the pgx repositories; empty means in-memory repositories.
	PostgresURL       string `koanf:"postgres_url"`
	KafkaBrokers      string `koanf:"kafka_brokers"`
	SchemaRegistryURL string `koanf:"schema_registry_url"`

	PublishBuffer           int           `koanf:"publish_buffer"`
	PublishBatchSize        int           `koanf:"publish_batch_size"`
	PublishFlushInterval    time.Duration `koanf:"publish_flush_interval"`
	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout"`

	JWTSecret string `koanf:"jwt_secret"`
	JWTIssuer string `koanf:"jwt_issuer"`

	ConsumerGroupID string `koanf:"consumer_group_id"`
	ConsumerTopics  string `koanf:"consumer_topics"`

	DLQRetention    time.Duration `koanf:"dlq_retention"`
	DLQPollInterval time.Duration `koanf:"dlq_poll_interval"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	EvaluationParallelism int  `koanf:"evaluation_parallelism"`
	InlineEvaluation      bool `koanf:"inline_evaluation"`

	CORSAllowedOrigins string        `koanf:"cors_allowed_origins"`
	RateLimitRequests  int           `koanf:"rate_limit_requests"`
	RateLimitWindow    time.Duration `koanf:"rate_limit_window"`
}

func defaults() Config {
	return Config{
		HTTPAddress:             ":8080",
		MetricsAddress:          ":9195",
		PostgresURL:             "",
		KafkaBrokers:            "",
		SchemaRegistryURL:       "http://schema-registry:8081",
		PublishBuffer:           1024,
		PublishBatchSize:        50,
		PublishFlushInterval:    500 * time.Millisecond,
		BreakerFailureThreshold: 5,
		BreakerTimeout:          30 * time.Second,
		JWTSecret:               "dev-secret-change-me",
		JWTIssuer:               "i5e.identity",
		ConsumerGroupID:         "challenge-engine-consumer",
		ConsumerTopics:          "activity_events,challenge_events",
		DLQRetention:            7 * 24 * time.Hour,
		DLQPollInterval:         time.Hour,
		LogLevel:                "info",
		LogFormat:               "json",
		EvaluationParallelism:   4,
		InlineEvaluation:        false,
		CORSAllowedOrigins:      "http://localhost:5173",
		RateLimitRequests:       100,
		RateLimitWindow:         time.Minute,
	}
}

// Load layers built-in defaults, an optional YAML file and environment variables (highest priority).
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path := os.Getenv(PathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// HTTP_ADDRESS -> http_address
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.PublishBuffer <= 0 {
		return fmt.Errorf("publish_buffer must be > 0")
	}
	if c.PublishBatchSize <= 0 {
		return fmt.Errorf("publish_batch_size must be > 0")
	}
	if c.EvaluationParallelism <= 0 {
		return fmt.Errorf("evaluation_parallelism must be > 0")
	}
	if c.RateLimitRequests < 0 {
		return fmt.Errorf("rate_limit_requests must be >= 0")
	}
	return nil
}

// Brokers returns the configured Kafka brokers.
func (c Config) Brokers() []string {
	return splitAndTrim(c.KafkaBrokers)
}

// CORSOrigins returns the origins allowed to call the HTTP API.
func (c Config) CORSOrigins() []string {
	return splitAndTrim(c.CORSAllowedOrigins)
}

// Topics returns the topics the consumer subscribes to.
func (c Config) Topics() []string {
	return splitAndTrim(c.ConsumerTopics)
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
