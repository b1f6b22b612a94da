package domain

import (
	"sort"
	"time"
)

// LeaderboardEntry is one ranked participant.
type LeaderboardEntry struct {
	Rank           int        `json:"rank"`
	UserID         string     `json:"userId"`
	CurrentValue   float64    `json:"currentValue"`
	Completed      bool       `json:"completed"`
	CompletionDate *time.Time `json:"completionDate,omitempty"`
}

// BuildLeaderboard ranks records by value descending, then earlier lastUpdate,
// then join order. Ranks follow row order, so tied values get distinct ranks.
func BuildLeaderboard(records []ProgressRecord) []LeaderboardEntry {
	ordered := make([]ProgressRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CurrentValue != ordered[j].CurrentValue {
			return ordered[i].CurrentValue > ordered[j].CurrentValue
		}
		return ordered[i].LastUpdate.Before(ordered[j].LastUpdate)
	})

	entries := make([]LeaderboardEntry, 0, len(ordered))
	for i, rec := range ordered {
		entries = append(entries, LeaderboardEntry{
			Rank:           i + 1,
			UserID:         rec.UserID,
			CurrentValue:   rec.CurrentValue,
			Completed:      rec.Completed,
			CompletionDate: rec.CompletionDate,
		})
	}
	return entries
}
