package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/tributary/internal/clock"
	"github.com/roach88/tributary/internal/config"
	"github.com/roach88/tributary/internal/graph"
	"github.com/roach88/tributary/internal/ident"
	"github.com/roach88/tributary/internal/ingest"
	"github.com/roach88/tributary/internal/ledger"
	"github.com/roach88/tributary/internal/merge"
	"github.com/roach88/tributary/internal/predicate"
	"github.com/roach88/tributary/internal/sources"
	"github.com/roach88/tributary/internal/store"
)

// app is everything one command invocation needs, wired from config.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	out     *OutputFormatter
	clock   clock.Clock
	ids     ident.Generator
	store   *store.Store
	ledger  *ledger.Ledger
	runner  *ingest.Runner
	sources *sources.Registry
	graph   *graph.Service
	merge   *merge.Engine
}

// newLogger returns a text logger on w; debug level when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadConfig reads the config file, applies environment credentials and the
// --db override.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg.ApplyEnv(getenv)
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// openApp loads config, opens the store and builds the services.
// The caller must close the returned app.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	logger.Debug("opening database", "dsn", cfg.Database)
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	clk := clock.OrSystem(opts.Clock)
	ids := ident.OrUUIDv7(opts.IDs)
	l := ledger.New(st,
		ledger.WithClock(clk),
		ledger.WithLogger(logger),
		ledger.WithMetrics(ledger.NewMetrics(prometheus.NewRegistry())))
	writer := ingest.NewWriter(st, cfg.BatchSize, logger)
	vocab := predicate.Default()

	return &app{
		cfg:     cfg,
		logger:  logger,
		out:     newFormatter(opts, cmd),
		clock:   clk,
		ids:     ids,
		store:   st,
		ledger:  l,
		runner:  ingest.NewRunner(l, st, logger),
		sources: sources.NewRegistry(cfg, writer, clk, logger),
		graph:   graph.NewService(st, vocab, clk, logger),
		merge:   merge.New(st, vocab, clk, ids, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}
