// Package memory provides in-process repositories for local development and tests.
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

type activityRecord struct {
	mu     sync.RWMutex
	header domain.Activity
	route  []route.Sample
}

// ActivityRepository stores activities in memory. The repository lock guards
// the index only; each activity carries its own lock, so writes to different
// activities do not wait on each other.
type ActivityRepository struct {
	mu         sync.RWMutex
	activities map[string]*activityRecord
}

// NewActivityRepository constructs an empty repository.
func NewActivityRepository() *ActivityRepository {
	return &ActivityRepository{activities: make(map[string]*activityRecord)}
}

// Create implements domain.ActivityRepository.
func (r *ActivityRepository) Create(_ context.Context, activity domain.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[activity.ID]; exists {
		return fmt.Errorf("%w: activity %s already exists", domain.ErrConflict, activity.ID)
	}
	samples := append([]route.Sample(nil), activity.Route...)
	activity.Route = nil
	r.activities[activity.ID] = &activityRecord{header: cloneActivity(activity), route: samples}
	return nil
}

func (r *ActivityRepository) lookup(id string) (*activityRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.activities[id]
	return rec, ok
}

func (r *ActivityRepository) records() []*activityRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*activityRecord, 0, len(r.activities))
	for _, rec := range r.activities {
		out = append(out, rec)
	}
	return out
}

// Get implements domain.ActivityRepository.
func (r *ActivityRepository) Get(_ context.Context, id string) (*domain.Activity, error) {
	rec, ok := r.lookup(id)
	if !ok {
		return nil, nil
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()

	activity := cloneActivity(rec.header)
	activity.Route = append([]route.Sample(nil), rec.route...)
	return &activity, nil
}

// List implements domain.ActivityRepository.
func (r *ActivityRepository) List(_ context.Context, filter domain.ActivityFilter, page, pageSize int) ([]domain.Activity, error) {
	matches := r.filter(filter)
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].StartTime.Equal(matches[j].StartTime) {
			return matches[i].StartTime.After(matches[j].StartTime)
		}
		return matches[i].ID > matches[j].ID
	})
	start, end := persistence.Window(len(matches), page, pageSize)
	return matches[start:end], nil
}

// Totals implements domain.ActivityRepository.
func (r *ActivityRepository) Totals(_ context.Context, filter domain.ActivityFilter) (domain.ActivityTotals, error) {
	var totals domain.ActivityTotals
	for _, a := range r.filter(filter) {
		totals.Count++
		totals.Distance += a.Metrics.Distance
		totals.Duration += a.Metrics.Duration
	}
	return totals, nil
}

func (r *ActivityRepository) filter(filter domain.ActivityFilter) []domain.Activity {
	out := make([]domain.Activity, 0)
	for _, rec := range r.records() {
		rec.mu.RLock()
		a := cloneActivity(rec.header)
		rec.mu.RUnlock()

		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.PublicOnly && !a.IsPublic {
			continue
		}
		if !filter.IncludeDeactivated && a.Deactivated {
			continue
		}
		out = append(out, a)
	}
	return out
}

// AppendSample implements domain.ActivityRepository.
func (r *ActivityRepository) AppendSample(_ context.Context, id string, sample route.Sample, accept func(*domain.Activity) error) (*domain.Activity, error) {
	rec, ok := r.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: activity %s", domain.ErrNotFound, id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	header := cloneActivity(rec.header)
	if err := accept(&header); err != nil {
		return nil, err
	}
	header.Version++
	rec.route = append(rec.route, sample)
	rec.header = header

	out := cloneActivity(header)
	return &out, nil
}

// Update implements domain.ActivityRepository.
func (r *ActivityRepository) Update(_ context.Context, activity *domain.Activity, expectedVersion int64) error {
	rec, ok := r.lookup(activity.ID)
	if !ok {
		return fmt.Errorf("%w: activity %s", domain.ErrNotFound, activity.ID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.header.Version != expectedVersion {
		return fmt.Errorf("%w: activity %s at version %d, expected %d",
			domain.ErrConflict, activity.ID, rec.header.Version, expectedVersion)
	}
	activity.Version = expectedVersion + 1

	header := cloneActivity(*activity)
	header.Route = nil
	header.SampleCount = rec.header.SampleCount
	header.LastSampleAt = rec.header.LastSampleAt
	rec.header = header
	return nil
}

func cloneActivity(a domain.Activity) domain.Activity {
	if a.EndTime != nil {
		end := *a.EndTime
		a.EndTime = &end
	}
	if a.LastSampleAt != nil {
		last := *a.LastSampleAt
		a.LastSampleAt = &last
	}
	if a.Metrics.Pace != nil {
		pace := *a.Metrics.Pace
		a.Metrics.Pace = &pace
	}
	return a
}
