package cli

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tributary/internal/ident"
	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/store"
	"github.com/roach88/tributary/internal/testutil"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// cliHarness runs the root command against a private config and database.
type cliHarness struct {
	t      *testing.T
	dir    string
	config string
	db     string
	clock  *testutil.FakeClock
	ids    *ident.FixedGenerator
	env    map[string]string
}

func newCLIHarness(t *testing.T, extraConfig string) *cliHarness {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "graph.db")
	config := filepath.Join(dir, "tributary.yaml")
	body := fmt.Sprintf("database: %q\n%s", db, extraConfig)
	require.NoError(t, os.WriteFile(config, []byte(body), 0o644))

	return &cliHarness{
		t:      t,
		dir:    dir,
		config: config,
		db:     db,
		clock:  testutil.NewFakeClock(testEpoch),
		ids:    ident.NewFixedGenerator("id-1", "id-2", "id-3", "id-4"),
		env:    map[string]string{},
	}
}

// run executes the CLI and returns stdout, stderr and the exit code.
func (h *cliHarness) run(args ...string) (string, string, int) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	opts := &RootOptions{
		Clock:  h.clock,
		IDs:    h.ids,
		Getenv: func(k string) string { return h.env[k] },
	}
	code := execute(context.Background(), opts, append([]string{"--config", h.config}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

// seed opens the harness database, runs fn, and closes it again.
func (h *cliHarness) seed(fn func(ctx context.Context, s *store.Store)) {
	h.t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, h.db)
	require.NoError(h.t, err)
	defer s.Close()
	fn(ctx, s)
}

func (h *cliHarness) insertRecord(ctx context.Context, s *store.Store, title string) int64 {
	h.t.Helper()
	id, err := s.InsertRecord(ctx, model.Record{
		Type:      "note",
		Title:     &title,
		Sources:   []string{"manual"},
		CreatedAt: testEpoch,
		UpdatedAt: testEpoch,
	})
	require.NoError(h.t, err)
	return id
}

// browserEpochOffset is 1601-01-01 to 1970-01-01 in microseconds.
const browserEpochOffset int64 = 11_644_473_600_000_000

// writeHistory creates a minimal browser History database with one visit
// per URL, a second apart.
func writeHistory(t *testing.T, path string, urls ...string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS urls (id INTEGER PRIMARY KEY, url TEXT NOT NULL, title TEXT);
		CREATE TABLE IF NOT EXISTS visits (id INTEGER PRIMARY KEY, url INTEGER NOT NULL,
			visit_time INTEGER NOT NULL, visit_duration INTEGER NOT NULL DEFAULT 0);
	`)
	require.NoError(t, err)
	for i, u := range urls {
		res, err := db.Exec(`INSERT INTO urls (url, title) VALUES (?, ?)`, u, "Page "+u)
		require.NoError(t, err)
		urlID, err := res.LastInsertId()
		require.NoError(t, err)
		at := testEpoch.Add(time.Duration(i)*time.Second).UnixMicro() + browserEpochOffset
		_, err = db.Exec(`INSERT INTO visits (url, visit_time) VALUES (?, ?)`, urlID, at)
		require.NoError(t, err)
	}
}
