package mail

import (
	"testing"

	"inbox_server/core/domain"
)

func catID(id int64) *int64 { return &id }

func TestBuildBreakdown(t *testing.T) {
	got := BuildBreakdown([]domain.CategoryCount{
		{CategoryID: catID(1), CategoryName: "Work", Count: 3},
		{CategoryID: nil, CategoryName: "", Count: 5},
		{CategoryID: catID(2), CategoryName: "Newsletters", Count: 7},
	})

	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].CategoryName != "Newsletters" || got[0].Count != 7 {
		t.Errorf("first entry = %s(%d), want Newsletters(7)", got[0].CategoryName, got[0].Count)
	}
	if got[1].CategoryName != "Work" || got[1].Count != 3 {
		t.Errorf("second entry = %s(%d), want Work(3)", got[1].CategoryName, got[1].Count)
	}
	last := got[2]
	if last.CategoryID != nil {
		t.Errorf("last entry should be uncategorized, got category %d", *last.CategoryID)
	}
	if last.CategoryName != domain.UncategorizedName || last.Count != 5 {
		t.Errorf("last entry = %s(%d), want %s(5)", last.CategoryName, last.Count, domain.UncategorizedName)
	}
}

func TestBuildBreakdownUncategorizedLastEvenWhenLargest(t *testing.T) {
	got := BuildBreakdown([]domain.CategoryCount{
		{CategoryID: nil, Count: 100},
		{CategoryID: catID(1), CategoryName: "Work", Count: 1},
	})

	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].CategoryName != "Work" {
		t.Errorf("first entry = %s, want Work", got[0].CategoryName)
	}
	if got[1].CategoryID != nil {
		t.Error("uncategorized entry must sort last even with the highest count")
	}
}

func TestBuildBreakdownDropsZeroCounts(t *testing.T) {
	got := BuildBreakdown([]domain.CategoryCount{
		{CategoryID: catID(1), CategoryName: "Work", Count: 0},
		{CategoryID: nil, Count: 0},
	})
	if len(got) != 0 {
		t.Errorf("expected empty breakdown, got %d entries", len(got))
	}
}

func TestBuildBreakdownTieBreaksByName(t *testing.T) {
	got := BuildBreakdown([]domain.CategoryCount{
		{CategoryID: catID(2), CategoryName: "Zeta", Count: 4},
		{CategoryID: catID(1), CategoryName: "Alpha", Count: 4},
	})
	if got[0].CategoryName != "Alpha" || got[1].CategoryName != "Zeta" {
		t.Errorf("tie order = [%s, %s], want [Alpha, Zeta]", got[0].CategoryName, got[1].CategoryName)
	}
}
