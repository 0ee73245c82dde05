package domain

import "time"

// CategoryCount is one entry of a category breakdown. CategoryID is nil for
// the uncategorized bucket.
type CategoryCount struct {
	CategoryID   *int64 `json:"category_id"`
	CategoryName string `json:"category_name"`
	Count        int    `json:"count"`
}

// SyncSummary is the result of a sync or re-categorization run, aggregated
// across all processed accounts.
type SyncSummary struct {
	SyncedCount        int             `json:"synced_count"`
	CategorizedCount   int             `json:"categorized_count"`
	UncategorizedCount int             `json:"uncategorized_count"`
	ArchivedCount      int             `json:"archived_count"`
	CategoryBreakdown  []CategoryCount `json:"category_breakdown"`
	LastSyncedAt       *time.Time      `json:"last_synced_at,omitempty"`
}

// Merge folds another summary into this one. Breakdown entries are not
// merged here; callers rebuild the breakdown from the combined email set.
func (s *SyncSummary) Merge(other *SyncSummary) {
	if other == nil {
		return
	}
	s.SyncedCount += other.SyncedCount
	s.CategorizedCount += other.CategorizedCount
	s.UncategorizedCount += other.UncategorizedCount
	s.ArchivedCount += other.ArchivedCount
	if other.LastSyncedAt != nil {
		if s.LastSyncedAt == nil || other.LastSyncedAt.After(*s.LastSyncedAt) {
			s.LastSyncedAt = other.LastSyncedAt
		}
	}
}
