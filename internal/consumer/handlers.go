package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/events"
	"example.com/challengeengine/internal/logging"
)

// Chain runs handlers in order and stops at the first error.
func Chain(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, msg Message) error {
		for _, h := range handlers {
			if err := h.Handle(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// AuditHandler writes consumed events into the event_log table.
type AuditHandler struct {
	pool *pgxpool.Pool
}

// NewAuditHandler constructs a handler backed by the provided pool.
func NewAuditHandler(pool *pgxpool.Pool) *AuditHandler {
	return &AuditHandler{pool: pool}
}

// Handle stores the event. Redelivered offsets are ignored.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	_, err := h.pool.Exec(ctx,
		`INSERT INTO event_log (topic, partition, kafka_offset, event_type, aggregate_id, schema_id, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (topic, partition, kafka_offset) DO NOTHING`,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.EventType,
		msg.AggregateID,
		msg.SchemaID,
		string(msg.Payload),
		msg.Timestamp,
	)
	return err
}

// ActivityApplier applies a finished activity to the owner's challenges.
type ActivityApplier interface {
	ApplyFinishedActivity(ctx context.Context, activityID string) ([]domain.ProgressResult, error)
}

// ProgressHandler applies activity-ended events to challenge progress.
type ProgressHandler struct {
	applier ActivityApplier
	logger  zerolog.Logger
}

// NewProgressHandler constructs a ProgressHandler.
func NewProgressHandler(applier ActivityApplier) *ProgressHandler {
	return &ProgressHandler{applier: applier, logger: logging.Component("progress-handler")}
}

// Handle ignores every event type except activity-ended. Activities that were
// removed or challenges that were frozen since the event was emitted are
// skipped so the offset can be committed.
func (h *ProgressHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.TopicActivityEnded {
		return nil
	}

	var ended events.ActivityEnded
	if err := json.Unmarshal(msg.Payload, &ended); err != nil {
		return fmt.Errorf("decode %s: %w", msg.EventType, err)
	}
	if ended.ActivityID == "" {
		h.logger.Warn().Int64("offset", msg.Offset).Msg("activity-ended without activity id")
		return nil
	}

	results, err := h.applier.ApplyFinishedActivity(ctx, ended.ActivityID)
	for _, res := range results {
		recordEvaluation(string(res.Outcome))
	}
	if err != nil {
		if skippable(err) {
			h.logger.Info().Err(err).Str("activity_id", ended.ActivityID).Msg("activity skipped")
			return nil
		}
		return err
	}

	h.logger.Debug().Str("activity_id", ended.ActivityID).Int("challenges", len(results)).Msg("activity applied")
	return nil
}

func skippable(err error) bool {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !skippable(e) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidState)
}
