package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/challengeengine/internal/logging"
)

// DLQPruner deletes dead-lettered events older than the retention window.
type DLQPruner struct {
	pool      *pgxpool.Pool
	retention time.Duration
}

// NewDLQPruner constructs a DLQPruner. A non-positive retention defaults to seven days.
func NewDLQPruner(pool *pgxpool.Pool, retention time.Duration) *DLQPruner {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &DLQPruner{pool: pool, retention: retention}
}

// RunOnce deletes expired entries, refreshes the backlog gauge and returns the
// number of deleted rows.
func (p *DLQPruner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-p.retention)
	tag, err := p.pool.Exec(ctx, `DELETE FROM event_dlq WHERE failed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	pruned := tag.RowsAffected()
	recordDLQPruned(pruned)
	updateBacklogGauge(ctx, p.pool)
	return pruned, nil
}

// Run calls RunOnce every interval until ctx is cancelled.
func (p *DLQPruner) Run(ctx context.Context, interval time.Duration) error {
	logger := logging.Component("dlq-pruner")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pruned, err := p.RunOnce(ctx)
		switch {
		case err != nil && errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			logger.Error().Err(err).Msg("dlq prune failed")
		case pruned > 0:
			logger.Info().Int64("pruned", pruned).Dur("retention", p.retention).Msg("dlq entries pruned")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
