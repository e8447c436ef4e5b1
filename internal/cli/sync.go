package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tributary/internal/ingest"
	"github.com/roach88/tributary/internal/model"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Full bool
}

// SyncResult is one source's run as reported by sync.
type SyncResult struct {
	RunID   int64            `json:"run_id"`
	Source  model.SourceType `json:"source"`
	Kind    model.RunKind    `json:"run_kind"`
	Status  model.RunStatus  `json:"status"`
	Entries int              `json:"entries_created"`
	Error   string           `json:"error,omitempty"`
}

// SyncReport is the output of sync.
type SyncReport struct {
	BatchID string       `json:"batch_id,omitempty"`
	Swept   []int64      `json:"swept"`
	Results []SyncResult `json:"results"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <source>|daily",
		Short: "Pull new data from a source into the graph",
		Long: `Run one source adapter under the integration-run ledger.

By default only items newer than the source's cursor (the newest row staged
by an earlier run of that source) are fetched. --full ignores the cursor.
"daily" runs every source listed under daily: in the config, incrementally.

Stale in_progress runs are swept to fail before syncing.

Example:
  tributary sync github
  tributary sync browser --full
  tributary sync daily --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Full, "full", false, "ignore the cursor and re-fetch everything")

	return cmd
}

func runSync(ctx context.Context, opts *SyncOptions, target string, cmd *cobra.Command) error {
	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var sources []ingest.Source
	if target == "daily" {
		if opts.Full {
			return NewExitError(ExitCommandError, "--full cannot be combined with daily")
		}
		sources, err = a.sources.Resolve(a.cfg.Daily)
	} else {
		var src ingest.Source
		src, err = a.sources.Get(target)
		sources = []ingest.Source{src}
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid source", err)
	}

	report := SyncReport{Results: []SyncResult{}}
	report.Swept, err = a.ledger.SweepStale(ctx, a.cfg.StaleRunAfter)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to sweep stale runs", err)
	}

	var syncErr error
	if target == "daily" {
		report.BatchID = a.ids.Generate()
		logger := a.logger.With("batch_id", report.BatchID)
		logger.Info("daily sync starting", "sources", a.cfg.Daily, "parallelism", a.cfg.DailyParallelism)
		orch := ingest.NewOrchestrator(a.runner, a.cfg.DailyParallelism, logger)
		var outcomes []ingest.Outcome
		outcomes, syncErr = orch.Daily(ctx, sources)
		for _, o := range outcomes {
			report.Results = append(report.Results, syncResult(o.Result, o.Err))
		}
	} else {
		kind := model.RunIncremental
		if opts.Full {
			kind = model.RunFull
		}
		var res ingest.Result
		res, syncErr = a.runner.Sync(ctx, sources[0], kind)
		report.Results = append(report.Results, syncResult(res, syncErr))
	}

	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.ledger.Metrics().WriteTextfile(path); err != nil {
			a.logger.Warn("metrics export failed", "path", path, "error", err)
		}
	}

	if err := a.out.Render(report, func(w io.Writer) { writeSyncText(w, report) }); err != nil {
		return err
	}
	if syncErr != nil {
		return WrapExitError(ExitFailure, "sync failed", syncErr)
	}
	return nil
}

func syncResult(res ingest.Result, err error) SyncResult {
	r := SyncResult{
		RunID:   res.RunID,
		Source:  res.Source,
		Kind:    res.Kind,
		Status:  model.RunSuccess,
		Entries: res.Entries,
	}
	if err != nil {
		r.Status = model.RunFail
		r.Error = err.Error()
		// No run ID means the ledger never recorded a start.
		if res.RunID == 0 {
			r.Status = ""
		}
	}
	return r
}

func writeSyncText(w io.Writer, report SyncReport) {
	if len(report.Swept) > 0 {
		fmt.Fprintf(w, "Swept %d stale run(s): %v\n", len(report.Swept), report.Swept)
	}
	if report.BatchID != "" {
		fmt.Fprintf(w, "Batch: %s\n", report.BatchID)
	}
	for _, r := range report.Results {
		status := string(r.Status)
		if status == "" {
			status = "not started"
		}
		fmt.Fprintf(w, "%-10s %-12s run %-5d %-8s %d entries\n", r.Source, r.Kind, r.RunID, status, r.Entries)
		if r.Error != "" {
			fmt.Fprintf(w, "           error: %s\n", r.Error)
		}
	}
}
