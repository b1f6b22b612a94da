package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/challengeengine/internal/domain"
)

// Connect opens a pool and waits until the database answers a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// missingOrConflict explains a versioned update that touched no rows.
// table and key are package constants, never caller input.
func missingOrConflict(ctx context.Context, pool *pgxpool.Pool, table, key, id string, expectedVersion int64) error {
	var current int64
	err := pool.QueryRow(ctx, fmt.Sprintf(`SELECT version FROM %s WHERE %s=$1`, table, key), id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, table, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s %s at version %d, expected %d", domain.ErrConflict, table, id, current, expectedVersion)
}
