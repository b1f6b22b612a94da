package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/persistence"
	"example.com/challengeengine/internal/route"
)

const challengeColumns = `challenge_id, creator_id, title, description, challenge_type, activity_type, goal_value,
        goal_unit, start_date, end_date, min_activity_length_m, min_activity_duration_min, allowed_locations,
        visibility, reward_points, reward_badge, reward_achievement_id, deactivated, version, created_at, updated_at`

// ChallengeRepository persists challenges, progress records and applied contributions.
type ChallengeRepository struct {
	pool *pgxpool.Pool
}

// NewChallengeRepository constructs a ChallengeRepository.
func NewChallengeRepository(pool *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{pool: pool}
}

// Create inserts the challenge and its initial progress records.
func (r *ChallengeRepository) Create(ctx context.Context, c domain.Challenge) (err error) {
	locations, err := json.Marshal(nonNilFences(c.Rules.AllowedLocations))
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const insert = `INSERT INTO challenges (` + challengeColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`

	_, err = tx.Exec(ctx, insert,
		c.ID, c.CreatorID, c.Title, c.Description, string(c.Type), string(c.ActivityType), c.Goal.Value,
		c.Goal.Unit, c.StartDate, c.EndDate, c.Rules.MinActivityLength, c.Rules.MinActivityDuration, locations,
		string(c.Visibility), c.Reward.Points, c.Reward.Badge, c.Reward.AchievementID, c.Deactivated, c.Version,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return err
	}

	for _, p := range c.Progress {
		if err = insertProgress(ctx, tx, c.ID, p); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Get loads the challenge with progress records in join order.
func (r *ChallengeRepository) Get(ctx context.Context, id string) (*domain.Challenge, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := scanChallenge(tx.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE challenge_id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if c.Progress, err = loadProgress(ctx, tx, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns challenge headers ordered by start date.
func (r *ChallengeRepository) List(ctx context.Context, filter domain.ChallengeFilter, page, pageSize int) ([]domain.Challenge, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, strings.ReplaceAll(clause, "$?", fmt.Sprintf("$%d", len(args))))
	}
	if !filter.IncludeDeactivated {
		clauses = append(clauses, "NOT c.deactivated")
	}
	if filter.Visibility != "" {
		add("c.visibility=$?", string(filter.Visibility))
	}
	if filter.ActiveAt != nil {
		add("c.start_date <= $? AND c.end_date >= $?", *filter.ActiveAt)
	}
	if filter.ParticipantID != "" {
		add("EXISTS (SELECT 1 FROM challenge_progress p WHERE p.challenge_id=c.challenge_id AND p.user_id=$?)", filter.ParticipantID)
	}
	if filter.ExcludeParticipantID != "" {
		add("NOT EXISTS (SELECT 1 FROM challenge_progress p WHERE p.challenge_id=c.challenge_id AND p.user_id=$?)", filter.ExcludeParticipantID)
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	offset, limit := persistence.Offset(page, pageSize)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`SELECT %s FROM challenges c %s
        ORDER BY c.start_date, c.challenge_id LIMIT $%d OFFSET $%d`,
		challengeColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Challenge, 0, limit)
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// AddParticipant locks the challenge row and inserts a progress record when absent.
func (r *ChallengeRepository) AddParticipant(ctx context.Context, id string, record domain.ProgressRecord, check func(*domain.Challenge) error) (_ bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	c, err := scanChallenge(tx.QueryRow(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE challenge_id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%w: challenge %s", domain.ErrNotFound, id)
		}
		return false, err
	}
	if c.Progress, err = loadProgress(ctx, tx, id); err != nil {
		return false, err
	}
	if err = check(&c); err != nil {
		return false, err
	}
	if c.ProgressFor(record.UserID) != nil {
		return false, tx.Commit(ctx)
	}

	if err = insertProgress(ctx, tx, id, record); err != nil {
		return false, err
	}
	_, err = tx.Exec(ctx, `UPDATE challenges SET version=version+1, updated_at=$2 WHERE challenge_id=$1`, id, record.LastUpdate)
	if err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// SaveProgress records the contribution and replaces the participant's record
// when the stored version matches.
func (r *ChallengeRepository) SaveProgress(ctx context.Context, id string, expectedVersion int64, record domain.ProgressRecord, contribution domain.Contribution) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var current int64
	err = tx.QueryRow(ctx, `SELECT version FROM challenges WHERE challenge_id=$1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: challenge %s", domain.ErrNotFound, id)
		}
		return err
	}

	tag, err := tx.Exec(ctx, `INSERT INTO challenge_contributions (challenge_id, activity_id, user_id, value, applied_at)
        VALUES ($1,$2,$3,$4,$5) ON CONFLICT (challenge_id, activity_id) DO NOTHING`,
		id, contribution.ActivityID, contribution.UserID, contribution.Value, contribution.AppliedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: activity %s on challenge %s", domain.ErrAlreadyApplied, contribution.ActivityID, id)
	}
	if current != expectedVersion {
		return fmt.Errorf("%w: challenge %s at version %d, expected %d", domain.ErrConflict, id, current, expectedVersion)
	}

	tag, err = tx.Exec(ctx, `UPDATE challenge_progress
        SET current_value=$3, last_update=$4, completed=$5, completion_date=$6
        WHERE challenge_id=$1 AND user_id=$2`,
		id, record.UserID, record.CurrentValue, record.LastUpdate, record.Completed, record.CompletionDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: participant %s on challenge %s", domain.ErrNotFound, record.UserID, id)
	}

	_, err = tx.Exec(ctx, `UPDATE challenges SET version=version+1, updated_at=$2 WHERE challenge_id=$1`, id, contribution.AppliedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Deactivate marks the challenge deactivated when the stored version matches.
func (r *ChallengeRepository) Deactivate(ctx context.Context, id string, expectedVersion int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE challenges SET deactivated=TRUE, version=version+1, updated_at=now()
        WHERE challenge_id=$1 AND version=$2`, id, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return missingOrConflict(ctx, r.pool, "challenges", "challenge_id", id, expectedVersion)
	}
	return nil
}

func insertProgress(ctx context.Context, tx pgx.Tx, challengeID string, p domain.ProgressRecord) error {
	_, err := tx.Exec(ctx, `INSERT INTO challenge_progress (challenge_id, user_id, current_value, last_update, completed, completion_date)
        VALUES ($1,$2,$3,$4,$5,$6)`,
		challengeID, p.UserID, p.CurrentValue, p.LastUpdate, p.Completed, p.CompletionDate)
	return err
}

func loadProgress(ctx context.Context, tx pgx.Tx, challengeID string) ([]domain.ProgressRecord, error) {
	rows, err := tx.Query(ctx, `SELECT user_id, current_value, last_update, completed, completion_date
        FROM challenge_progress WHERE challenge_id=$1 ORDER BY join_order`, challengeID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ProgressRecord, error) {
		var p domain.ProgressRecord
		err := row.Scan(&p.UserID, &p.CurrentValue, &p.LastUpdate, &p.Completed, &p.CompletionDate)
		return p, err
	})
}

func scanChallenge(row pgx.Row) (domain.Challenge, error) {
	var (
		c            domain.Challenge
		kind         string
		activityType string
		visibility   string
		locations    []byte
	)
	err := row.Scan(
		&c.ID, &c.CreatorID, &c.Title, &c.Description, &kind, &activityType, &c.Goal.Value,
		&c.Goal.Unit, &c.StartDate, &c.EndDate, &c.Rules.MinActivityLength, &c.Rules.MinActivityDuration, &locations,
		&visibility, &c.Reward.Points, &c.Reward.Badge, &c.Reward.AchievementID, &c.Deactivated, &c.Version,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	c.Type = domain.ChallengeType(kind)
	c.ActivityType = domain.ActivityType(activityType)
	c.Visibility = domain.Visibility(visibility)
	if len(locations) > 0 {
		if err := json.Unmarshal(locations, &c.Rules.AllowedLocations); err != nil {
			return c, fmt.Errorf("decode allowed_locations: %w", err)
		}
	}
	if len(c.Rules.AllowedLocations) == 0 {
		c.Rules.AllowedLocations = nil
	}
	return c, nil
}

func nonNilFences(fences []route.GeoFence) []route.GeoFence {
	if fences == nil {
		return []route.GeoFence{}
	}
	return fences
}
