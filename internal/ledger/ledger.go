// Package ledger records the lifecycle of every sync attempt.
//
// Each attempt is one integration_runs row. Begin inserts it as in_progress;
// exactly one of Complete or Fail moves it to a terminal status. The ledger
// is the audit trail operators read after a failed sync and the anchor that
// staging rows point at when incremental cursors are derived.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/tributary/internal/clock"
	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/store"
)

var (
	// ErrRunNotFound is returned when a run ID has no ledger row.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinalized is returned when Complete or Fail targets a run that
	// already reached a terminal status.
	ErrRunFinalized = errors.New("run already finalized")
)

// DefaultStaleAfter is how long a run may stay in_progress before SweepStale
// treats it as abandoned.
const DefaultStaleAfter = 6 * time.Hour

// RunFunc is the adapter seam: it performs one sync under runID and returns
// the number of entries it created.
type RunFunc func(ctx context.Context, runID int64) (int, error)

// Ledger owns the integration_runs table.
type Ledger struct {
	store   *store.Store
	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source. Defaults to the system clock.
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics sets the metric set transitions are recorded into.
func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New creates a Ledger over s.
func New(s *store.Store, opts ...Option) *Ledger {
	l := &Ledger{store: s}
	for _, opt := range opts {
		opt(l)
	}
	l.clock = clock.OrSystem(l.clock)
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.metrics == nil {
		l.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return l
}

// Metrics returns the metric set the ledger records into.
func (l *Ledger) Metrics() *Metrics {
	return l.metrics
}

// Begin inserts an in_progress run and returns its ID.
//
// Concurrent runs of the same source are not blocked; an existing
// in_progress run only produces a warning.
func (l *Ledger) Begin(ctx context.Context, source model.SourceType, kind model.RunKind) (int64, error) {
	if !model.ValidRunKinds[kind] {
		return 0, fmt.Errorf("begin %s run: invalid run kind %q", source, kind)
	}

	active, err := l.store.ListRuns(ctx, store.RunFilter{Source: source, Status: model.RunInProgress})
	if err != nil {
		return 0, fmt.Errorf("begin %s run: %w", source, err)
	}
	for _, run := range active {
		l.logger.Warn("run already in progress for source",
			"source", source,
			"run_id", run.ID,
			"started_at", run.StartedAt)
	}

	id, err := l.store.InsertRun(ctx, source, kind, l.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("begin %s run: %w", source, err)
	}

	l.logger.Info("run started", "run_id", id, "source", source, "kind", kind)
	return id, nil
}

// Complete marks a run successful with the number of entries it created.
func (l *Ledger) Complete(ctx context.Context, runID int64, entriesCreated int) error {
	return l.finish(ctx, runID, model.RunSuccess, nil, entriesCreated)
}

// Fail marks a run failed, storing cause's message.
func (l *Ledger) Fail(ctx context.Context, runID int64, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return l.finish(ctx, runID, model.RunFail, &msg, 0)
}

func (l *Ledger) finish(ctx context.Context, runID int64, status model.RunStatus, message *string, entries int) error {
	ok, err := l.store.FinishRun(ctx, runID, status, message, entries, l.clock.Now())
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}

	run, err := l.store.GetRun(ctx, runID)
	if store.IsNotFound(err) {
		return fmt.Errorf("finish run %d: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	if !ok {
		return fmt.Errorf("finish run %d (status %s): %w", runID, run.Status, ErrRunFinalized)
	}

	l.metrics.observe(run)

	attrs := []any{
		"run_id", run.ID,
		"source", run.SourceType,
		"kind", run.Kind,
		"status", run.Status,
		"entries_created", run.EntriesCreated,
	}
	if run.EndedAt != nil {
		attrs = append(attrs, "duration", run.EndedAt.Sub(run.StartedAt))
	}
	if status == model.RunFail {
		l.logger.Error("run failed", append(attrs, "error", *message)...)
	} else {
		l.logger.Info("run completed", attrs...)
	}
	return nil
}

// Run wraps fn in the ledger lifecycle: Begin, call fn with the run ID, then
// Complete on success or Fail on error. fn's error is returned unchanged so
// callers can exit non-zero; a failure to record the outcome is joined to it.
func (l *Ledger) Run(ctx context.Context, source model.SourceType, kind model.RunKind, fn RunFunc) (int64, int, error) {
	runID, err := l.Begin(ctx, source, kind)
	if err != nil {
		return 0, 0, err
	}

	entries, runErr := fn(ctx, runID)
	// Record the outcome even if ctx was cancelled mid-run.
	final := context.WithoutCancel(ctx)
	if runErr != nil {
		if err := l.Fail(final, runID, runErr); err != nil {
			return runID, entries, errors.Join(runErr, err)
		}
		return runID, entries, runErr
	}

	if err := l.Complete(final, runID, entries); err != nil {
		return runID, entries, err
	}
	return runID, entries, nil
}

// SweepStale fails every run left in_progress for longer than olderThan and
// returns their IDs. A run only gets there when its process died before
// reaching Complete or Fail.
func (l *Ledger) SweepStale(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	if olderThan <= 0 {
		return nil, fmt.Errorf("sweep stale runs: threshold must be positive, got %s", olderThan)
	}
	now := l.clock.Now()
	msg := fmt.Sprintf("abandoned: no terminal status within %s", olderThan)

	ids, err := l.store.FailStaleRuns(ctx, now.Add(-olderThan), msg, now)
	if err != nil {
		return nil, fmt.Errorf("sweep stale runs: %w", err)
	}
	for _, id := range ids {
		run, err := l.store.GetRun(ctx, id)
		if err != nil {
			return ids, fmt.Errorf("sweep stale runs: %w", err)
		}
		l.metrics.observe(run)
		l.logger.Warn("run marked abandoned", "run_id", id, "source", run.SourceType, "started_at", run.StartedAt)
	}
	return ids, nil
}

// Get returns one run.
func (l *Ledger) Get(ctx context.Context, runID int64) (model.IntegrationRun, error) {
	run, err := l.store.GetRun(ctx, runID)
	if store.IsNotFound(err) {
		return model.IntegrationRun{}, fmt.Errorf("get run %d: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return model.IntegrationRun{}, fmt.Errorf("get run %d: %w", runID, err)
	}
	return run, nil
}

// List returns runs newest first.
func (l *Ledger) List(ctx context.Context, filter store.RunFilter) ([]model.IntegrationRun, error) {
	runs, err := l.store.ListRuns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// LastSuccess returns the most recent successful run of source.
// ok is false if the source has never synced successfully.
func (l *Ledger) LastSuccess(ctx context.Context, source model.SourceType) (run model.IntegrationRun, ok bool, err error) {
	runs, err := l.store.ListRuns(ctx, store.RunFilter{Source: source, Status: model.RunSuccess, Limit: 1})
	if err != nil {
		return model.IntegrationRun{}, false, fmt.Errorf("last success %s: %w", source, err)
	}
	if len(runs) == 0 {
		return model.IntegrationRun{}, false, nil
	}
	return runs[0], true, nil
}
