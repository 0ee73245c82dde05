package mail

import (
	"sort"

	"inbox_server/core/domain"
)

// RunBreakdown converts one run's classification tallies into an ordered
// breakdown. A run that classified nothing yields an empty breakdown.
func RunBreakdown(categorized map[int64]int, uncategorized int, categories []domain.Category) []domain.CategoryCount {
	if len(categorized) == 0 && uncategorized == 0 {
		return nil
	}

	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	counts := make([]domain.CategoryCount, 0, len(categorized)+1)
	for id, n := range categorized {
		cid := id
		counts = append(counts, domain.CategoryCount{
			CategoryID:   &cid,
			CategoryName: names[cid],
			Count:        n,
		})
	}
	if uncategorized > 0 {
		counts = append(counts, domain.CategoryCount{Count: uncategorized})
	}
	return BuildBreakdown(counts)
}

// BuildBreakdown orders raw per-category counts for a sync summary:
// categorized entries by count descending (name ascending on ties), with the
// uncategorized entry always last regardless of its count. Zero-count rows
// are dropped.
func BuildBreakdown(counts []domain.CategoryCount) []domain.CategoryCount {
	var categorized []domain.CategoryCount
	var uncategorized *domain.CategoryCount

	for _, c := range counts {
		if c.Count <= 0 {
			continue
		}
		if c.CategoryID == nil {
			u := c
			u.CategoryName = domain.UncategorizedName
			uncategorized = &u
			continue
		}
		categorized = append(categorized, c)
	}

	sort.SliceStable(categorized, func(i, j int) bool {
		if categorized[i].Count != categorized[j].Count {
			return categorized[i].Count > categorized[j].Count
		}
		return categorized[i].CategoryName < categorized[j].CategoryName
	})

	if uncategorized != nil {
		categorized = append(categorized, *uncategorized)
	}
	return categorized
}
