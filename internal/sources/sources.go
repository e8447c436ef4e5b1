// Package sources builds the configured source adapters.
package sources

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/tributary/internal/clock"
	"github.com/roach88/tributary/internal/config"
	"github.com/roach88/tributary/internal/ingest"
	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/sources/browser"
	"github.com/roach88/tributary/internal/sources/github"
	"github.com/roach88/tributary/internal/sources/raindrop"
)

// Registry holds one adapter per source type.
type Registry struct {
	sources map[model.SourceType]ingest.Source
}

// NewRegistry builds every known adapter from cfg. Adapters are built even
// when their credentials are missing; the missing token fails their run.
func NewRegistry(cfg config.Config, w *ingest.Writer, clk clock.Clock, logger *slog.Logger) *Registry {
	r := &Registry{sources: map[model.SourceType]ingest.Source{}}
	r.Register(browser.New(browser.Config{
		HistoryPath: cfg.Browser.HistoryPath,
		PageSize:    cfg.Browser.PageSize,
	}, w, clk, logger))
	r.Register(github.New(github.Config{
		BaseURL:           cfg.GitHub.BaseURL,
		Token:             cfg.Credentials.GitHubToken,
		User:              cfg.GitHub.User,
		Repos:             cfg.GitHub.Repos,
		PageSize:          cfg.GitHub.PageSize,
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
	}, w, clk, logger))
	r.Register(raindrop.New(raindrop.Config{
		BaseURL:           cfg.Raindrop.BaseURL,
		Token:             cfg.Credentials.RaindropToken,
		CollectionID:      cfg.Raindrop.CollectionID,
		PageSize:          cfg.Raindrop.PageSize,
		RequestsPerSecond: cfg.Raindrop.RequestsPerSecond,
	}, w, clk, logger))
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(src ingest.Source) {
	r.sources[src.Type()] = src
}

// Get returns the adapter for name.
func (r *Registry) Get(name string) (ingest.Source, error) {
	src, ok := r.sources[model.SourceType(name)]
	if !ok {
		return nil, fmt.Errorf("unknown source %q (known: %v)", name, r.Names())
	}
	return src, nil
}

// Resolve returns the adapters for names, in order.
func (r *Registry) Resolve(names []string) ([]ingest.Source, error) {
	out := make([]ingest.Source, 0, len(names))
	for _, name := range names {
		src, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// Names lists registered source types, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for t := range r.sources {
		names = append(names, string(t))
	}
	slices.Sort(names)
	return names
}
