// Package browser ingests Chromium-family browsing history.
//
// The browser keeps its History database locked while running, so each sync
// copies the file aside and reads the copy read-only. Visits are paged
// newest-first by visit_time, collapsed, and staged into browser_visits with
// insert-or-ignore: a visit, once recorded, is history and never rewritten.
//
// A collapsed row keeps its earliest visit in visited_at and its latest in
// last_visited_at. The cursor reads last_visited_at, so visits folded into
// the newest row are not fetched again. The oldest group of each page is held
// back until the next page shows whether its run continues.
package browser

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tributary/internal/clock"
	"github.com/roach88/tributary/internal/ingest"
	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/store"
)

// EpochOffsetMicros is the distance from 1601-01-01 (the browser's epoch) to
// the Unix epoch, in microseconds.
const EpochOffsetMicros int64 = 11_644_473_600_000_000

// RecordType is the graph record type for visited pages.
const RecordType = "webpage"

// DefaultPageSize is used when Config.PageSize is zero.
const DefaultPageSize = 500

// ErrNoHistoryPath is returned by Sync when no History file is configured.
var ErrNoHistoryPath = errors.New("browser: history_path not configured")

var visitsTable = store.Table{
	Name:    "browser_visits",
	Columns: []string{"url", "title", "visited_at", "last_visited_at", "duration_micros", "gap_micros", "visit_count", "integration_run_id"},
	Key:     []string{"url", "visited_at"},
	Policy:  store.Ignore,
}

// Config locates the History file.
type Config struct {
	HistoryPath string
	PageSize    int
}

// Source is the browser history adapter.
type Source struct {
	cfg    Config
	writer *ingest.Writer
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a browser Source.
func New(cfg Config, w *ingest.Writer, clk clock.Clock, logger *slog.Logger) *Source {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{cfg: cfg, writer: w, clock: clock.OrSystem(clk), logger: logger}
}

func (s *Source) Type() model.SourceType { return model.SourceBrowser }

// Cursor is the newest raw visit already stored. Stored values are Unix
// microseconds.
func (s *Source) Cursor() ingest.Cursor {
	return ingest.Cursor{Table: visitsTable.Name, Column: "last_visited_at"}
}

// Sync stages every visit newer than run.Since.
func (s *Source) Sync(ctx context.Context, run ingest.Run) (int, error) {
	if s.cfg.HistoryPath == "" {
		return 0, ErrNoHistoryPath
	}

	db, cleanup, err := openCopy(s.cfg.HistoryPath)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	// The cursor is stored in Unix time; compare at the browser's own epoch.
	since := run.Since
	if since.Valid {
		since = ingest.MarkerAt(since.Value + EpochOffsetMicros)
	}

	var (
		entries int
		pending []ingest.Visit
	)
	write := func(ctx context.Context, visits []ingest.Visit) error {
		n, err := s.writer.Write(ctx, visitsTable, visitRows(visits, run.ID), s.upsertRecords)
		entries += n
		return err
	}

	fetched, err := ingest.Paginate(ctx, ingest.Pager[ingest.Visit]{
		Source:   model.SourceBrowser,
		PageSize: s.cfg.PageSize,
		Since:    since,
		MarkerOf: func(v ingest.Visit) int64 { return v.VisitedAt },
		Fetch: func(ctx context.Context, page int) ([]ingest.Visit, error) {
			return fetchVisits(ctx, db, s.cfg.PageSize, page*s.cfg.PageSize)
		},
		Emit: func(ctx context.Context, visits []ingest.Visit) error {
			groups := ingest.CollapseVisits(append(pending, visits...))
			last := len(groups) - 1
			pending = []ingest.Visit{groups[last]}
			return write(ctx, groups[:last])
		},
	})
	if len(pending) > 0 {
		if werr := write(ctx, pending); werr != nil {
			err = errors.Join(err, werr)
		}
	}
	s.logger.Debug("browser history read",
		"run_id", run.ID,
		"visits", fetched,
		"stored", entries)
	return entries, err
}

// upsertRecords derives one webpage record per URL in the batch.
func (s *Source) upsertRecords(ctx context.Context, q *store.Queries, rows [][]any) error {
	now := s.clock.Now()
	for _, row := range rows {
		pageURL := row[0].(string)
		title, _ := row[1].(*string)
		visitedAt := row[2].(int64)
		_, err := q.UpsertRecord(ctx, store.RecordUpsert{
			Type:        RecordType,
			ExternalKey: "browser:" + pageURL,
			Title:       title,
			URL:         &pageURL,
			Source:      string(model.SourceBrowser),
			CreatedAt:   time.UnixMicro(visitedAt).UTC(),
		}, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func visitRows(visits []ingest.Visit, runID int64) [][]any {
	rows := make([][]any, 0, len(visits))
	for _, v := range visits {
		rows = append(rows, []any{
			v.URL,
			ingest.NormalizeText(v.Title),
			v.VisitedAt - EpochOffsetMicros,
			v.LastVisitedAt - EpochOffsetMicros,
			v.DurationMicros,
			v.GapMicros,
			v.Count,
			runID,
		})
	}
	return rows
}

const visitsQuery = `
	SELECT u.url, COALESCE(u.title, ''), v.visit_time, COALESCE(v.visit_duration, 0),
		COALESCE(v.visit_time - LAG(v.visit_time) OVER (ORDER BY v.visit_time, v.id), 0)
	FROM visits v
	JOIN urls u ON u.id = v.url
	ORDER BY v.visit_time DESC, v.id DESC
	LIMIT ? OFFSET ?`

func fetchVisits(ctx context.Context, db *sql.DB, limit, offset int) ([]ingest.Visit, error) {
	rows, err := db.QueryContext(ctx, visitsQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var visits []ingest.Visit
	for rows.Next() {
		var v ingest.Visit
		if err := rows.Scan(&v.URL, &v.Title, &v.VisitedAt, &v.DurationMicros, &v.GapMicros); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		v.LastVisitedAt = v.VisitedAt
		v.Count = 1
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}
	return visits, nil
}

// openCopy copies the History file to a temp directory and opens the copy
// read-only. cleanup closes the handle and removes the copy.
func openCopy(path string) (*sql.DB, func(), error) {
	dir, err := os.MkdirTemp("", "tributary-history-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create temp dir: %w", err)
	}
	removeDir := func() { _ = os.RemoveAll(dir) }

	dst := filepath.Join(dir, "History")
	if err := copyFile(path, dst); err != nil {
		removeDir()
		return nil, nil, err
	}

	dsn := (&url.URL{Scheme: "file", Path: dst, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		removeDir()
		return nil, nil, fmt.Errorf("open history copy: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		removeDir()
		return nil, nil, fmt.Errorf("open history copy: %w", err)
	}
	return db, func() {
		db.Close()
		removeDir()
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copy history: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy history: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("copy history: %w", err)
	}
	return nil
}
