// Package postgres provides pgx-backed repositories.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/persistence"
	"example.com/challengeengine/internal/route"
)

const activityColumns = `activity_id, user_id, activity_type, title, description, status, is_public, deactivated,
        start_time, end_time, distance_m, duration_s, elevation_gain_m, elevation_loss_m, average_speed_kmh,
        max_speed_kmh, pace_min_per_km, sample_count, last_sample_at, version, created_at, updated_at`

// ActivityRepository persists activities and their route samples.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// Create inserts the activity and any route it carries in one transaction.
func (r *ActivityRepository) Create(ctx context.Context, a domain.Activity) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const insert = `INSERT INTO activities (` + activityColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`

	_, err = tx.Exec(ctx, insert,
		a.ID, a.UserID, string(a.Type), a.Title, a.Description, string(a.Status), a.IsPublic, a.Deactivated,
		a.StartTime, a.EndTime, a.Metrics.Distance, a.Metrics.Duration, a.Metrics.ElevationGain, a.Metrics.ElevationLoss,
		a.Metrics.AverageSpeed, a.Metrics.MaxSpeed, a.Metrics.Pace, a.SampleCount, a.LastSampleAt, a.Version,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if len(a.Route) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"activity_samples"},
			[]string{"activity_id", "seq", "longitude", "latitude", "elevation_m", "speed_kmh", "recorded_at"},
			pgx.CopyFromSlice(len(a.Route), func(i int) ([]any, error) {
				s := a.Route[i]
				return []any{a.ID, i + 1, s.Longitude, s.Latitude, s.Elevation, s.Speed, s.Timestamp}, nil
			}),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Get loads the activity and its full route.
func (r *ActivityRepository) Get(ctx context.Context, id string) (*domain.Activity, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE activity_id=$1`, id)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT longitude, latitude, elevation_m, speed_kmh, recorded_at
        FROM activity_samples WHERE activity_id=$1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	samples, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (route.Sample, error) {
		var s route.Sample
		err := row.Scan(&s.Longitude, &s.Latitude, &s.Elevation, &s.Speed, &s.Timestamp)
		return s, err
	})
	if err != nil {
		return nil, err
	}
	a.Route = samples

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &a, nil
}

// List returns activity headers newest first.
func (r *ActivityRepository) List(ctx context.Context, filter domain.ActivityFilter, page, pageSize int) ([]domain.Activity, error) {
	where, args := activityWhere(filter)
	offset, limit := persistence.Offset(page, pageSize)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`SELECT %s FROM activities %s
        ORDER BY start_time DESC, activity_id DESC LIMIT $%d OFFSET $%d`,
		activityColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// Totals sums distance and duration over matching activities.
func (r *ActivityRepository) Totals(ctx context.Context, filter domain.ActivityFilter) (domain.ActivityTotals, error) {
	where, args := activityWhere(filter)
	query := `SELECT COUNT(*), COALESCE(SUM(distance_m), 0), COALESCE(SUM(duration_s), 0) FROM activities ` + where

	var totals domain.ActivityTotals
	err := r.pool.QueryRow(ctx, query, args...).Scan(&totals.Count, &totals.Distance, &totals.Duration)
	return totals, err
}

// AppendSample locks the activity row, validates through accept and appends the sample.
func (r *ActivityRepository) AppendSample(ctx context.Context, id string, sample route.Sample, accept func(*domain.Activity) error) (_ *domain.Activity, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE activity_id=$1 FOR UPDATE`, id)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: activity %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	if err = accept(&a); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO activity_samples (activity_id, seq, longitude, latitude, elevation_m, speed_kmh, recorded_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.SampleCount, sample.Longitude, sample.Latitude, sample.Elevation, sample.Speed, sample.Timestamp)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `UPDATE activities
        SET sample_count=$2, last_sample_at=$3, updated_at=$4, version=version+1
        WHERE activity_id=$1`,
		a.ID, a.SampleCount, a.LastSampleAt, a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Version++

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &a, nil
}

// Update writes the activity header when the stored version matches.
func (r *ActivityRepository) Update(ctx context.Context, a *domain.Activity, expectedVersion int64) error {
	const stmt = `UPDATE activities SET
            title=$3, description=$4, status=$5, is_public=$6, deactivated=$7, end_time=$8,
            distance_m=$9, duration_s=$10, elevation_gain_m=$11, elevation_loss_m=$12,
            average_speed_kmh=$13, max_speed_kmh=$14, pace_min_per_km=$15, updated_at=$16,
            version=version+1
        WHERE activity_id=$1 AND version=$2`

	tag, err := r.pool.Exec(ctx, stmt,
		a.ID, expectedVersion, a.Title, a.Description, string(a.Status), a.IsPublic, a.Deactivated, a.EndTime,
		a.Metrics.Distance, a.Metrics.Duration, a.Metrics.ElevationGain, a.Metrics.ElevationLoss,
		a.Metrics.AverageSpeed, a.Metrics.MaxSpeed, a.Metrics.Pace, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return missingOrConflict(ctx, r.pool, "activities", "activity_id", a.ID, expectedVersion)
	}
	a.Version = expectedVersion + 1
	return nil
}

func activityWhere(filter domain.ActivityFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.UserID != "" {
		add("user_id=$%d", filter.UserID)
	}
	if filter.Type != "" {
		add("activity_type=$%d", string(filter.Type))
	}
	if filter.Status != "" {
		add("status=$%d", string(filter.Status))
	}
	if filter.PublicOnly {
		clauses = append(clauses, "is_public")
	}
	if !filter.IncludeDeactivated {
		clauses = append(clauses, "NOT deactivated")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		a            domain.Activity
		activityType string
		status       string
	)
	err := row.Scan(
		&a.ID, &a.UserID, &activityType, &a.Title, &a.Description, &status, &a.IsPublic, &a.Deactivated,
		&a.StartTime, &a.EndTime, &a.Metrics.Distance, &a.Metrics.Duration, &a.Metrics.ElevationGain,
		&a.Metrics.ElevationLoss, &a.Metrics.AverageSpeed, &a.Metrics.MaxSpeed, &a.Metrics.Pace,
		&a.SampleCount, &a.LastSampleAt, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	a.Type = domain.ActivityType(activityType)
	a.Status = domain.ActivityStatus(status)
	return a, err
}
