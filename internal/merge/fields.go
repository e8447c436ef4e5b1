package merge

import (
	"slices"
	"time"

	"github.com/roach88/tributary/internal/model"
)

// MergeFields computes the surviving record when source is merged into
// target. It is a pure function of its inputs.
//
//	title, content, url   target if set, else source
//	rating                target if non-zero, else source
//	is_curated, is_private either
//	sources               union, target's order first
//	created_at            earlier of the two
//	type, external_key    target's
//	updated_at            now
func MergeFields(source, target model.Record, now time.Time) model.Record {
	out := target
	out.Title = coalesce(target.Title, source.Title)
	out.Content = coalesce(target.Content, source.Content)
	out.URL = coalesce(target.URL, source.URL)
	out.ExternalKey = clonePtr(target.ExternalKey)

	out.Rating = target.Rating
	if out.Rating == 0 {
		out.Rating = source.Rating
	}
	out.IsCurated = target.IsCurated || source.IsCurated
	out.IsPrivate = target.IsPrivate || source.IsPrivate

	out.Sources = make([]string, 0, len(target.Sources)+len(source.Sources))
	for _, s := range slices.Concat(target.Sources, source.Sources) {
		if !slices.Contains(out.Sources, s) {
			out.Sources = append(out.Sources, s)
		}
	}

	if source.CreatedAt.Before(target.CreatedAt) {
		out.CreatedAt = source.CreatedAt
	}
	out.UpdatedAt = now
	out.MergedInto, out.MergedAt = nil, nil
	return out
}

func coalesce(preferred, fallback *string) *string {
	if preferred != nil {
		return clonePtr(preferred)
	}
	return clonePtr(fallback)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
