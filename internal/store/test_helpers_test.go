package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tributary/internal/model"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed SQLite store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord inserts an active record with the given title.
func createTestRecord(t *testing.T, s *Store, title string) model.Record {
	t.Helper()
	r := model.Record{
		Type:      "note",
		Title:     &title,
		Sources:   []string{"manual"},
		CreatedAt: testEpoch,
		UpdatedAt: testEpoch,
	}
	id, err := s.InsertRecord(context.Background(), r)
	require.NoError(t, err)
	r.ID = id
	return r
}

// createTestRun inserts an in_progress run for source.
func createTestRun(t *testing.T, s *Store, source model.SourceType) int64 {
	t.Helper()
	id, err := s.InsertRun(context.Background(), source, model.RunIncremental, testEpoch)
	require.NoError(t, err)
	return id
}

func (s *Store) verifyPragma(name, want string) error {
	var got string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("pragma %s = %q, want %q", name, got, want)
	}
	return nil
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func strPtr(s string) *string { return &s }
