package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tributary/internal/model"
)

// Outcome is the result of one source within a batch.
type Outcome struct {
	Result
	Err error
}

// Orchestrator runs several sources as one batch.
type Orchestrator struct {
	runner      *Runner
	parallelism int
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. parallelism <= 1 runs sources
// sequentially in the given order.
func NewOrchestrator(r *Runner, parallelism int, logger *slog.Logger) *Orchestrator {
	if parallelism < 1 {
		parallelism = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{runner: r, parallelism: parallelism, logger: logger}
}

// Daily runs every source incrementally. A failing source does not stop the
// others. Outcomes are returned in input order; the error joins every
// per-source failure and is nil only if all succeeded.
func (o *Orchestrator) Daily(ctx context.Context, sources []Source) ([]Outcome, error) {
	outcomes := make([]Outcome, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, src := range sources {
		g.Go(func() error {
			res, err := o.runner.Sync(gctx, src, model.RunIncremental)
			outcomes[i] = Outcome{Result: res, Err: err}
			if res.Source == "" {
				outcomes[i].Source = src.Type()
			}
			if err != nil {
				o.logger.Error("daily sync source failed", "source", src.Type(), "error", err)
			}
			// Failures are reported through outcomes so siblings keep running.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}

	var errs []error
	for _, out := range outcomes {
		if out.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", out.Source, out.Err))
		}
	}
	return outcomes, errors.Join(errs...)
}
