package ingest

import (
	"context"

	"github.com/roach88/tributary/internal/model"
)

// Marker is a source's cursor value: a timestamp or monotonic ID at the
// source's native precision. The zero Marker means "nothing ingested yet".
type Marker struct {
	Value int64
	Valid bool
}

// MarkerAt returns a valid marker.
func MarkerAt(v int64) Marker {
	return Marker{Value: v, Valid: true}
}

// After reports whether v is strictly newer than the marker.
// Every value is newer than an invalid marker.
func (m Marker) After(v int64) bool {
	return !m.Valid || v > m.Value
}

// Pager describes one newest-first remote listing.
type Pager[T any] struct {
	Source model.SourceType

	// PageSize is the requested page size. A page shorter than this is the last.
	PageSize int

	// MaxPages bounds the walk. Zero means unbounded.
	MaxPages int

	// Since is the cursor; items at or below it are already stored.
	Since Marker

	// MarkerOf extracts an item's marker.
	MarkerOf func(T) int64

	// Fetch returns page n, counting from zero.
	Fetch func(ctx context.Context, page int) ([]T, error)

	// Emit receives each page's fresh items before the next page is fetched.
	Emit func(ctx context.Context, items []T) error
}

// Paginate walks pages until the listing is exhausted or the cursor is
// reached, and returns the number of fresh items emitted.
//
// Stop conditions, checked per page in order:
//   - the page is empty;
//   - a cursor is set and no item on the page is newer than it;
//   - the page is shorter than PageSize.
//
// Items at or below the cursor are dropped. Marker comparison happens at the
// source's own precision; conversion to storage time is the writer's job.
func Paginate[T any](ctx context.Context, p Pager[T]) (int, error) {
	emitted := 0
	for page := 0; p.MaxPages == 0 || page < p.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}

		items, err := p.Fetch(ctx, page)
		if err != nil {
			return emitted, &AdapterFetchError{Source: p.Source, Page: page, Err: err}
		}
		if len(items) == 0 {
			return emitted, nil
		}

		fresh := make([]T, 0, len(items))
		for _, item := range items {
			if p.Since.After(p.MarkerOf(item)) {
				fresh = append(fresh, item)
			}
		}
		if len(fresh) == 0 {
			return emitted, nil
		}

		if err := p.Emit(ctx, fresh); err != nil {
			return emitted, err
		}
		emitted += len(fresh)

		if len(items) < p.PageSize {
			return emitted, nil
		}
	}
	return emitted, nil
}
