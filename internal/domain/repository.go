package domain

import (
	"context"
	"time"

	"example.com/challengeengine/internal/route"
)

// ActivityFilter narrows activity listings. Zero values do not filter.
type ActivityFilter struct {
	UserID             string
	Type               ActivityType
	Status             ActivityStatus
	PublicOnly         bool
	IncludeDeactivated bool
}

// ActivityRepository captures activity persistence. Get returns (nil, nil) for
// unknown ids; mutations return ErrNotFound.
type ActivityRepository interface {
	Create(ctx context.Context, activity Activity) error
	Get(ctx context.Context, id string) (*Activity, error)
	// List returns activities newest first without their routes. page is 1-based.
	List(ctx context.Context, filter ActivityFilter, page, pageSize int) ([]Activity, error)
	Totals(ctx context.Context, filter ActivityFilter) (ActivityTotals, error)
	// AppendSample locks the activity, lets accept validate and update it, then
	// appends the sample and bumps the version. The result carries no route.
	AppendSample(ctx context.Context, id string, sample route.Sample, accept func(*Activity) error) (*Activity, error)
	// Update stores everything except the route when the stored version equals
	// expectedVersion, returning ErrConflict otherwise.
	Update(ctx context.Context, activity *Activity, expectedVersion int64) error
}

// ChallengeFilter narrows challenge listings. Zero values do not filter.
type ChallengeFilter struct {
	ParticipantID        string
	ExcludeParticipantID string
	ActiveAt             *time.Time
	Visibility           Visibility
	IncludeDeactivated   bool
}

// Contribution identifies one activity counted towards one challenge.
type Contribution struct {
	ActivityID string
	UserID     string
	Value      float64
	AppliedAt  time.Time
}

// ChallengeRepository captures challenge persistence. Get returns (nil, nil)
// for unknown ids; mutations return ErrNotFound.
type ChallengeRepository interface {
	Create(ctx context.Context, challenge Challenge) error
	Get(ctx context.Context, id string) (*Challenge, error)
	// List returns challenges ordered by start date without progress records.
	List(ctx context.Context, filter ChallengeFilter, page, pageSize int) ([]Challenge, error)
	// AddParticipant locks the challenge, lets check reject the join, and appends
	// record unless the user already has one. It reports whether a record was added.
	AddParticipant(ctx context.Context, id string, record ProgressRecord, check func(*Challenge) error) (bool, error)
	// SaveProgress replaces the record for record.UserID and records the
	// contribution when the stored version equals expectedVersion. It returns
	// ErrConflict on a version mismatch and ErrAlreadyApplied when the activity
	// was already counted.
	SaveProgress(ctx context.Context, id string, expectedVersion int64, record ProgressRecord, contribution Contribution) error
	// Deactivate marks the challenge deactivated when the stored version equals expectedVersion.
	Deactivate(ctx context.Context, id string, expectedVersion int64) error
}

// Publisher is a fire-and-forget event sink. Publish must not block on delivery.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, any) {}
