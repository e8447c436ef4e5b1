package ingest

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Collapse folds runs of adjacent events that share a key into one event.
//
// Only adjacency groups: A, B, A yields three groups. merge combines the
// group accumulated so far with the next event of the same key. Collapse is a
// single pass and does not modify events.
func Collapse[E any](events []E, key func(E) string, merge func(acc, next E) E) []E {
	if len(events) == 0 {
		return nil
	}

	out := make([]E, 0, len(events))
	cur := events[0]
	curKey := key(cur)
	for _, e := range events[1:] {
		k := key(e)
		if k == curKey {
			cur = merge(cur, e)
			continue
		}
		out = append(out, cur)
		cur, curKey = e, k
	}
	return append(out, cur)
}

// Visit is one browsing event at the browser's native precision.
type Visit struct {
	URL   string
	Title string

	// VisitedAt is microseconds since the browser's epoch.
	VisitedAt int64

	// LastVisitedAt is the newest raw visit folded into this one. It equals
	// VisitedAt for a raw visit.
	LastVisitedAt int64

	// DurationMicros is time spent on the page. Non-positive means unknown.
	DurationMicros int64

	// GapMicros is the time since the previous visit.
	GapMicros int64

	// Count is the number of raw visits folded into this one.
	Count int
}

// CollapseVisits merges adjacent visits to the same URL and title.
//
// A merged visit keeps the earliest VisitedAt and the latest LastVisitedAt,
// sums positive durations, takes the largest gap and counts the raw visits. URL and title are compared after
// NFC normalization so composed and decomposed forms of one title match.
func CollapseVisits(visits []Visit) []Visit {
	seeded := make([]Visit, len(visits))
	for i, v := range visits {
		if v.DurationMicros < 0 {
			v.DurationMicros = 0
		}
		if v.Count == 0 {
			v.Count = 1
		}
		if v.LastVisitedAt < v.VisitedAt {
			v.LastVisitedAt = v.VisitedAt
		}
		seeded[i] = v
	}
	return Collapse(seeded, visitKey, mergeVisits)
}

func visitKey(v Visit) string {
	return norm.NFC.String(v.URL) + "\x00" + norm.NFC.String(v.Title)
}

func mergeVisits(acc, next Visit) Visit {
	if next.VisitedAt < acc.VisitedAt {
		acc.VisitedAt = next.VisitedAt
	}
	if next.LastVisitedAt > acc.LastVisitedAt {
		acc.LastVisitedAt = next.LastVisitedAt
	}
	if next.DurationMicros > 0 {
		acc.DurationMicros += next.DurationMicros
	}
	if next.GapMicros > acc.GapMicros {
		acc.GapMicros = next.GapMicros
	}
	acc.Count += next.Count
	return acc
}

// NormalizeText trims surrounding space and converts s to NFC.
// Returns nil for empty input.
func NormalizeText(s string) *string {
	s = strings.TrimSpace(norm.NFC.String(s))
	if s == "" {
		return nil
	}
	return &s
}
