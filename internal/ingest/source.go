package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/tributary/internal/ledger"
	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/store"
)

// Cursor names the staging column a source's marker is derived from.
type Cursor struct {
	Table  string
	Column string

	// Scope, when set, is a column that partitions the listing. Each value
	// gets its own marker, so a partition that failed or was added later
	// resumes from its own rows instead of the source-wide maximum.
	Scope string
}

// Run is what an adapter receives for one sync attempt.
type Run struct {
	ID   int64
	Kind model.RunKind

	// Since is the cursor for incremental runs; invalid for full runs and
	// for the first run of a source.
	Since Marker

	// Scoped holds per-partition markers when the source's Cursor has a
	// Scope. Nil otherwise.
	Scoped map[string]Marker
}

// SinceFor returns the marker for one partition of a scoped cursor, or Since
// for an unscoped one. A partition with no stored rows gets an invalid marker.
func (r Run) SinceFor(scope string) Marker {
	if r.Scoped != nil {
		return r.Scoped[scope]
	}
	return r.Since
}

// Source is one external system. Implementations page their remote, stage
// rows through a Writer tagged with run.ID, and return the entry count.
type Source interface {
	Type() model.SourceType
	Cursor() Cursor
	Sync(ctx context.Context, run Run) (int, error)
}

// Result summarizes one finished run.
type Result struct {
	RunID   int64
	Source  model.SourceType
	Kind    model.RunKind
	Entries int
}

// Runner executes sources under the ledger.
type Runner struct {
	ledger *ledger.Ledger
	store  *store.Store
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(l *ledger.Ledger, s *store.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{ledger: l, store: s, logger: logger}
}

// Sync runs src once. For incremental runs the cursor is recomputed from the
// staged rows of earlier runs of the same source. The adapter's error is
// returned after the ledger records it.
func (r *Runner) Sync(ctx context.Context, src Source, kind model.RunKind) (Result, error) {
	source := src.Type()
	runID, entries, err := r.ledger.Run(ctx, source, kind, func(ctx context.Context, runID int64) (int, error) {
		run := Run{ID: runID, Kind: kind}
		if kind == model.RunIncremental {
			var err error
			if src.Cursor().Scope != "" {
				run.Scoped, err = r.scopedMarkers(ctx, src)
			} else {
				run.Since, err = r.marker(ctx, src)
			}
			if err != nil {
				return 0, err
			}
		}

		r.logger.Debug("sync starting",
			"run_id", runID,
			"source", source,
			"kind", kind,
			"since", run.Since.Value,
			"has_cursor", run.Since.Valid,
			"scoped_cursors", len(run.Scoped))
		return src.Sync(ctx, run)
	})
	res := Result{RunID: runID, Source: source, Kind: kind, Entries: entries}
	if err != nil {
		return res, fmt.Errorf("sync %s: %w", source, err)
	}
	return res, nil
}

func (r *Runner) marker(ctx context.Context, src Source) (Marker, error) {
	c := src.Cursor()
	v, ok, err := r.store.MaxMarker(ctx, c.Table, c.Column, src.Type())
	if err != nil {
		return Marker{}, fmt.Errorf("compute cursor: %w", err)
	}
	if !ok {
		return Marker{}, nil
	}
	return MarkerAt(v), nil
}

func (r *Runner) scopedMarkers(ctx context.Context, src Source) (map[string]Marker, error) {
	c := src.Cursor()
	values, err := r.store.MaxMarkerByScope(ctx, c.Table, c.Column, c.Scope, src.Type())
	if err != nil {
		return nil, fmt.Errorf("compute cursor: %w", err)
	}
	markers := make(map[string]Marker, len(values))
	for scope, v := range values {
		markers[scope] = MarkerAt(v)
	}
	return markers, nil
}
