package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"example.com/challengeengine/internal/logging"
)

// DeadLetter is an event that could not be delivered.
type DeadLetter struct {
	Topic         string
	EventType     string
	AggregateID   string
	SchemaSubject string
	Payload       []byte
	Reason        string
}

// DeadLetterWriter records undeliverable events. The engine never retries them.
type DeadLetterWriter interface {
	Write(ctx context.Context, entry DeadLetter) error
}

// DLQWriter persists failed events to the event_dlq table.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter initialises a writer backed by the provided connection pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write implements DeadLetterWriter.
func (w *DLQWriter) Write(ctx context.Context, entry DeadLetter) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO event_dlq (topic, event_type, aggregate_id, schema_subject, payload, error_message)
         VALUES ($1,$2,$3,$4,$5,$6)`,
		entry.Topic, entry.EventType, entry.AggregateID, entry.SchemaSubject, string(entry.Payload), entry.Reason,
	)
	return err
}

// LogDeadLetterWriter logs failed events. Used when Postgres is not configured.
type LogDeadLetterWriter struct {
	logger zerolog.Logger
}

// NewLogDeadLetterWriter returns a LogDeadLetterWriter.
func NewLogDeadLetterWriter() *LogDeadLetterWriter {
	return &LogDeadLetterWriter{logger: logging.Component("outbox-dlq")}
}

// Write implements DeadLetterWriter.
func (w *LogDeadLetterWriter) Write(_ context.Context, entry DeadLetter) error {
	w.logger.Error().
		Str("topic", entry.Topic).
		Str("event_type", entry.EventType).
		Str("aggregate_id", entry.AggregateID).
		Str("reason", entry.Reason).
		RawJSON("payload", entry.Payload).
		Msg("outbox: event dead-lettered")
	return nil
}
