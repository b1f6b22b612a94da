package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"example.com/challengeengine/internal/domain"
	"example.com/challengeengine/internal/persistence"
	"example.com/challengeengine/internal/route"
)

type challengeRecord struct {
	mu            sync.RWMutex
	challenge     domain.Challenge
	contributions map[string]domain.Contribution
}

// ChallengeRepository stores challenges in memory with one lock per challenge.
type ChallengeRepository struct {
	mu         sync.RWMutex
	challenges map[string]*challengeRecord
}

// NewChallengeRepository constructs an empty repository.
func NewChallengeRepository() *ChallengeRepository {
	return &ChallengeRepository{challenges: make(map[string]*challengeRecord)}
}

// Create implements domain.ChallengeRepository.
func (r *ChallengeRepository) Create(_ context.Context, challenge domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.challenges[challenge.ID]; exists {
		return fmt.Errorf("%w: challenge %s already exists", domain.ErrConflict, challenge.ID)
	}
	r.challenges[challenge.ID] = &challengeRecord{
		challenge:     cloneChallenge(challenge),
		contributions: make(map[string]domain.Contribution),
	}
	return nil
}

func (r *ChallengeRepository) lookup(id string) (*challengeRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.challenges[id]
	return rec, ok
}

func (r *ChallengeRepository) records() []*challengeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*challengeRecord, 0, len(r.challenges))
	for _, rec := range r.challenges {
		out = append(out, rec)
	}
	return out
}

// Get implements domain.ChallengeRepository.
func (r *ChallengeRepository) Get(_ context.Context, id string) (*domain.Challenge, error) {
	rec, ok := r.lookup(id)
	if !ok {
		return nil, nil
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()

	c := cloneChallenge(rec.challenge)
	return &c, nil
}

// List implements domain.ChallengeRepository.
func (r *ChallengeRepository) List(_ context.Context, filter domain.ChallengeFilter, page, pageSize int) ([]domain.Challenge, error) {
	matches := make([]domain.Challenge, 0)
	for _, rec := range r.records() {
		rec.mu.RLock()
		c := cloneChallenge(rec.challenge)
		rec.mu.RUnlock()

		if !filter.IncludeDeactivated && c.Deactivated {
			continue
		}
		if filter.Visibility != "" && c.Visibility != filter.Visibility {
			continue
		}
		if filter.ActiveAt != nil && !c.InWindow(*filter.ActiveAt) {
			continue
		}
		if filter.ParticipantID != "" && c.ProgressFor(filter.ParticipantID) == nil {
			continue
		}
		if filter.ExcludeParticipantID != "" && c.ProgressFor(filter.ExcludeParticipantID) != nil {
			continue
		}
		c.Progress = nil
		matches = append(matches, c)
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].StartDate.Equal(matches[j].StartDate) {
			return matches[i].StartDate.Before(matches[j].StartDate)
		}
		return matches[i].ID < matches[j].ID
	})
	start, end := persistence.Window(len(matches), page, pageSize)
	return matches[start:end], nil
}

// AddParticipant implements domain.ChallengeRepository.
func (r *ChallengeRepository) AddParticipant(_ context.Context, id string, record domain.ProgressRecord, check func(*domain.Challenge) error) (bool, error) {
	rec, ok := r.lookup(id)
	if !ok {
		return false, fmt.Errorf("%w: challenge %s", domain.ErrNotFound, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	current := cloneChallenge(rec.challenge)
	if err := check(&current); err != nil {
		return false, err
	}
	if rec.challenge.ProgressFor(record.UserID) != nil {
		return false, nil
	}
	rec.challenge.Progress = append(rec.challenge.Progress, record)
	rec.challenge.Version++
	rec.challenge.UpdatedAt = record.LastUpdate
	return true, nil
}

// SaveProgress implements domain.ChallengeRepository.
func (r *ChallengeRepository) SaveProgress(_ context.Context, id string, expectedVersion int64, record domain.ProgressRecord, contribution domain.Contribution) error {
	rec, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("%w: challenge %s", domain.ErrNotFound, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if _, applied := rec.contributions[contribution.ActivityID]; applied {
		return fmt.Errorf("%w: activity %s on challenge %s", domain.ErrAlreadyApplied, contribution.ActivityID, id)
	}
	if rec.challenge.Version != expectedVersion {
		return fmt.Errorf("%w: challenge %s at version %d, expected %d",
			domain.ErrConflict, id, rec.challenge.Version, expectedVersion)
	}
	existing := rec.challenge.ProgressFor(record.UserID)
	if existing == nil {
		return fmt.Errorf("%w: participant %s on challenge %s", domain.ErrNotFound, record.UserID, id)
	}

	*existing = cloneRecord(record)
	rec.contributions[contribution.ActivityID] = contribution
	rec.challenge.Version++
	rec.challenge.UpdatedAt = contribution.AppliedAt
	return nil
}

// Deactivate implements domain.ChallengeRepository.
func (r *ChallengeRepository) Deactivate(_ context.Context, id string, expectedVersion int64) error {
	rec, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("%w: challenge %s", domain.ErrNotFound, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.challenge.Version != expectedVersion {
		return fmt.Errorf("%w: challenge %s at version %d, expected %d",
			domain.ErrConflict, id, rec.challenge.Version, expectedVersion)
	}
	rec.challenge.Deactivated = true
	rec.challenge.Version++
	return nil
}

func cloneChallenge(c domain.Challenge) domain.Challenge {
	progress := make([]domain.ProgressRecord, len(c.Progress))
	for i, p := range c.Progress {
		progress[i] = cloneRecord(p)
	}
	c.Progress = progress
	c.Rules.AllowedLocations = append([]route.GeoFence(nil), c.Rules.AllowedLocations...)
	if c.Rules.MinActivityLength != nil {
		v := *c.Rules.MinActivityLength
		c.Rules.MinActivityLength = &v
	}
	if c.Rules.MinActivityDuration != nil {
		v := *c.Rules.MinActivityDuration
		c.Rules.MinActivityDuration = &v
	}
	return c
}

func cloneRecord(p domain.ProgressRecord) domain.ProgressRecord {
	if p.CompletionDate != nil {
		d := *p.CompletionDate
		p.CompletionDate = &d
	}
	return p
}
