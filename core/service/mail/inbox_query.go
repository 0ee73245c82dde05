package mail

import (
	"fmt"
	"time"
)

// =============================================================================
// Cursor resolution - provider search query construction
// =============================================================================

const queryDateLayout = "2006/01/02"

// BuildListQuery resolves the provider search query for a sync run.
//
// Historical mode (olderThan set) targets all mail before the given date,
// with no inbox restriction. Otherwise the query covers the inbox, bounded
// below by the day of the newest stored email when one exists. The day
// granularity re-lists messages from the watermark day itself; dedup
// absorbs the overlap.
func BuildListQuery(lastReceivedAt, olderThan *time.Time) string {
	if olderThan != nil {
		return fmt.Sprintf("before:%s", olderThan.Format(queryDateLayout))
	}
	if lastReceivedAt == nil {
		return "in:inbox"
	}
	return fmt.Sprintf("in:inbox after:%s", lastReceivedAt.Format(queryDateLayout))
}
