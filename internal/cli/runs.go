package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/store"
)

// RunsOptions holds flags for the runs subcommands.
type RunsOptions struct {
	*RootOptions
	Source    string
	Status    string
	Limit     int
	OlderThan time.Duration
}

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and reconcile the integration-run ledger",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sync runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(cmd.Context(), opts, cmd)
		},
	}
	list.Flags().StringVar(&opts.Source, "source", "", "only runs of this source")
	list.Flags().StringVar(&opts.Status, "status", "", "only runs with this status (in_progress|success|fail)")
	list.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to show (0 for all)")

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Mark abandoned in_progress runs as failed",
		Long: `Mark in_progress runs older than --older-than as fail.

A run stays in_progress forever if its process died before recording an
outcome. Sweeping records the abandonment so the run no longer looks live.
Defaults to stale_run_after from the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsSweep(cmd.Context(), opts, cmd)
		},
	}
	sweep.Flags().DurationVar(&opts.OlderThan, "older-than", 0, "age after which an in_progress run is abandoned")

	cmd.AddCommand(list, sweep)
	return cmd
}

func runRunsList(ctx context.Context, opts *RunsOptions, cmd *cobra.Command) error {
	status := model.RunStatus(opts.Status)
	switch status {
	case "", model.RunInProgress, model.RunSuccess, model.RunFail:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q", opts.Status))
	}

	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.ledger.List(ctx, store.RunFilter{
		Source: model.SourceType(opts.Source),
		Status: status,
		Limit:  opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}
	return a.out.Render(runs, func(w io.Writer) { writeRunsText(w, runs) })
}

func runRunsSweep(ctx context.Context, opts *RunsOptions, cmd *cobra.Command) error {
	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	olderThan := opts.OlderThan
	if olderThan <= 0 {
		olderThan = a.cfg.StaleRunAfter
	}
	swept, err := a.ledger.SweepStale(ctx, olderThan)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to sweep stale runs", err)
	}

	data := map[string]any{"swept": swept, "older_than": olderThan.String()}
	return a.out.Render(data, func(w io.Writer) {
		if len(swept) == 0 {
			fmt.Fprintf(w, "No in_progress runs older than %s\n", olderThan)
			return
		}
		fmt.Fprintf(w, "Marked %d run(s) as failed: %v\n", len(swept), swept)
	})
}

func writeRunsText(w io.Writer, runs []model.IntegrationRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs")
		return
	}
	fmt.Fprintf(w, "%-5s %-10s %-12s %-12s %-20s %-10s %s\n", "ID", "SOURCE", "KIND", "STATUS", "STARTED", "DURATION", "ENTRIES")
	for _, r := range runs {
		duration := "-"
		if r.EndedAt != nil {
			duration = r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%-5d %-10s %-12s %-12s %-20s %-10s %d\n",
			r.ID, r.SourceType, r.Kind, r.Status, r.StartedAt.UTC().Format("2006-01-02 15:04:05"), duration, r.EntriesCreated)
		if r.Message != nil {
			fmt.Fprintf(w, "      %s\n", *r.Message)
		}
	}
}
