package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollapseVisits_MergesAdjacentSameKey(t *testing.T) {
	in := []Visit{
		{URL: "A", Title: "a", VisitedAt: 100, DurationMicros: 5},
		{URL: "A", Title: "a", VisitedAt: 110, DurationMicros: 3},
		{URL: "B", Title: "b", VisitedAt: 120, DurationMicros: 2},
	}

	got := CollapseVisits(in)
	assert.Equal(t, []Visit{
		{URL: "A", Title: "a", VisitedAt: 100, LastVisitedAt: 110, DurationMicros: 8, Count: 2},
		{URL: "B", Title: "b", VisitedAt: 120, LastVisitedAt: 120, DurationMicros: 2, Count: 1},
	}, got)
}

func TestCollapseVisits_AdjacencyOnly(t *testing.T) {
	in := []Visit{
		{URL: "A", VisitedAt: 1},
		{URL: "B", VisitedAt: 2},
		{URL: "A", VisitedAt: 3},
	}

	got := CollapseVisits(in)
	assert.Len(t, got, 3)
	assert.Equal(t, []string{"A", "B", "A"}, []string{got[0].URL, got[1].URL, got[2].URL})
}

func TestCollapseVisits_TitleIsPartOfKey(t *testing.T) {
	in := []Visit{
		{URL: "A", Title: "inbox (3)", VisitedAt: 1},
		{URL: "A", Title: "inbox (4)", VisitedAt: 2},
	}
	assert.Len(t, CollapseVisits(in), 2)
}

func TestCollapseVisits_OnlyPositiveDurationsCount(t *testing.T) {
	in := []Visit{
		{URL: "A", VisitedAt: 1, DurationMicros: -1},
		{URL: "A", VisitedAt: 2, DurationMicros: 0},
		{URL: "A", VisitedAt: 3, DurationMicros: 4},
		{URL: "A", VisitedAt: 4, DurationMicros: -9},
	}

	got := CollapseVisits(in)
	assert.Len(t, got, 1)
	assert.EqualValues(t, 4, got[0].DurationMicros)
	assert.Equal(t, 4, got[0].Count)
}

func TestCollapseVisits_EarliestTimestampAndMaxGap(t *testing.T) {
	// Newest-first input, as the browser pager yields it.
	in := []Visit{
		{URL: "A", VisitedAt: 300, GapMicros: 10},
		{URL: "A", VisitedAt: 200, GapMicros: 70},
		{URL: "A", VisitedAt: 100, GapMicros: 20},
	}

	got := CollapseVisits(in)
	assert.Len(t, got, 1)
	assert.EqualValues(t, 100, got[0].VisitedAt)
	assert.EqualValues(t, 300, got[0].LastVisitedAt)
	assert.EqualValues(t, 70, got[0].GapMicros)
}

func TestCollapseVisits_RecollapsesMergedGroups(t *testing.T) {
	// A group carried over from the previous page meets the rest of its run.
	carried := Visit{URL: "A", VisitedAt: 200, LastVisitedAt: 400, DurationMicros: 6, Count: 3}
	in := []Visit{
		carried,
		{URL: "A", VisitedAt: 100, DurationMicros: 1},
		{URL: "B", VisitedAt: 50},
	}

	got := CollapseVisits(in)
	assert.Len(t, got, 2)
	assert.EqualValues(t, 100, got[0].VisitedAt)
	assert.EqualValues(t, 400, got[0].LastVisitedAt)
	assert.EqualValues(t, 7, got[0].DurationMicros)
	assert.Equal(t, 4, got[0].Count)
}

func TestCollapseVisits_UnicodeNormalizedKey(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	in := []Visit{
		{URL: "https://x/", Title: composed, VisitedAt: 1},
		{URL: "https://x/", Title: decomposed, VisitedAt: 2},
	}

	got := CollapseVisits(in)
	assert.Len(t, got, 1)
	assert.Equal(t, composed, got[0].Title, "first event's raw title is kept")
}

func TestCollapseVisits_PureFunction(t *testing.T) {
	in := []Visit{
		{URL: "A", VisitedAt: 2, DurationMicros: -3},
		{URL: "A", VisitedAt: 1, DurationMicros: 3},
	}
	snapshot := append([]Visit(nil), in...)

	first := CollapseVisits(in)
	second := CollapseVisits(in)
	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, in, "input must not be modified")
}

func TestCollapseVisits_Empty(t *testing.T) {
	assert.Empty(t, CollapseVisits(nil))
}

func TestCollapse_Generic(t *testing.T) {
	words := []string{"a", "a", "b", "a", "a", "a"}
	got := Collapse(words, func(s string) string { return s }, func(acc, next string) string { return acc + next })
	assert.Equal(t, []string{"aa", "b", "aaa"}, got)
}

func TestNormalizeText(t *testing.T) {
	assert.Nil(t, NormalizeText("   "))
	got := NormalizeText("  cafe\u0301 ")
	if assert.NotNil(t, got) {
		assert.Equal(t, "caf\u00e9", *got)
	}
}
