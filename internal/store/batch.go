package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/tributary/internal/model"
)

// ConflictPolicy says what a batch write does when a row's key already exists.
type ConflictPolicy int

const (
	// Overwrite replaces the non-key columns of the existing row.
	Overwrite ConflictPolicy = iota
	// Ignore keeps the existing row untouched.
	Ignore
)

func (p ConflictPolicy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case Ignore:
		return "ignore"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(p))
	}
}

// Table describes a batch write target.
type Table struct {
	Name    string
	Columns []string
	// Key is the natural key used for conflict resolution. Must be covered by
	// a PRIMARY KEY or UNIQUE constraint.
	Key []string
	// UpdateColumns are rewritten under Overwrite. Empty means every non-key column.
	UpdateColumns []string
	Policy        ConflictPolicy
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks that every identifier is a plain lower-case SQL name and
// that the key and update columns are drawn from Columns.
func (t Table) Validate() error {
	if !identPattern.MatchString(t.Name) {
		return fmt.Errorf("table %q: invalid name", t.Name)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	if len(t.Key) == 0 {
		return fmt.Errorf("table %s: no conflict key", t.Name)
	}
	for _, c := range t.Columns {
		if !identPattern.MatchString(c) {
			return fmt.Errorf("table %s: invalid column %q", t.Name, c)
		}
	}
	for _, c := range append(slices.Clone(t.Key), t.UpdateColumns...) {
		if !slices.Contains(t.Columns, c) {
			return fmt.Errorf("table %s: column %q not in column list", t.Name, c)
		}
	}
	return nil
}

// KeyIndexes returns the positions of the key columns within Columns.
func (t Table) KeyIndexes() []int {
	idx := make([]int, len(t.Key))
	for i, k := range t.Key {
		idx[i] = slices.Index(t.Columns, k)
	}
	return idx
}

func (t Table) updateColumns() []string {
	if len(t.UpdateColumns) > 0 {
		return t.UpdateColumns
	}
	var cols []string
	for _, c := range t.Columns {
		if !slices.Contains(t.Key, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// upsertSQL builds a multi-row INSERT for n rows with the table's conflict clause.
func (t Table) upsertSQL(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", t.Name, strings.Join(t.Columns, ", "))

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ") + ")"
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) ", strings.Join(t.Key, ", "))
	update := t.updateColumns()
	if t.Policy == Ignore || len(update) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	b.WriteString("DO UPDATE SET ")
	for i, c := range update {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = excluded.%s", c, c)
	}
	return b.String()
}

// WriteBatch writes rows into t with a single statement and returns the
// number of rows inserted or updated. Each row must have one value per column.
// Rows must not repeat a key within one call.
func (q *Queries) WriteBatch(ctx context.Context, t Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}

	args := make([]any, 0, len(rows)*len(t.Columns))
	for i, row := range rows {
		if len(row) != len(t.Columns) {
			return 0, fmt.Errorf("write %s: row %d has %d values, want %d", t.Name, i, len(row), len(t.Columns))
		}
		args = append(args, row...)
	}

	result, err := q.exec(ctx, t.upsertSQL(len(rows)), args...)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", t.Name, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("write %s: rows affected: %w", t.Name, err)
	}
	return n, nil
}

// MaxMarker returns the largest value of column across rows of table that
// were written by runs of the given source. The table must carry an
// integration_run_id column. ok is false when no such rows exist.
func (q *Queries) MaxMarker(ctx context.Context, table, column string, source model.SourceType) (marker int64, ok bool, err error) {
	if !identPattern.MatchString(table) || !identPattern.MatchString(column) {
		return 0, false, fmt.Errorf("max marker: invalid identifier %s.%s", table, column)
	}

	var v sql.NullInt64
	err = q.queryRow(ctx, fmt.Sprintf(`
		SELECT MAX(t.%s)
		FROM %s t
		JOIN integration_runs r ON r.id = t.integration_run_id
		WHERE r.source_type = ?
	`, column, table), string(source)).Scan(&v)
	if err != nil {
		return 0, false, fmt.Errorf("max marker %s.%s: %w", table, column, err)
	}
	return v.Int64, v.Valid, nil
}

// MaxMarkerByScope is MaxMarker grouped by the values of scope, for sources
// whose listing is partitioned (one cursor per repository, say). Scopes with
// no rows are absent from the map.
func (q *Queries) MaxMarkerByScope(ctx context.Context, table, column, scope string, source model.SourceType) (map[string]int64, error) {
	for _, ident := range []string{table, column, scope} {
		if !identPattern.MatchString(ident) {
			return nil, fmt.Errorf("max marker: invalid identifier %q", ident)
		}
	}

	rows, err := q.query(ctx, fmt.Sprintf(`
		SELECT t.%s, MAX(t.%s)
		FROM %s t
		JOIN integration_runs r ON r.id = t.integration_run_id
		WHERE r.source_type = ?
		GROUP BY t.%s
	`, scope, column, table, scope), string(source))
	if err != nil {
		return nil, fmt.Errorf("max marker %s.%s by %s: %w", table, column, scope, err)
	}
	defer rows.Close()

	markers := map[string]int64{}
	for rows.Next() {
		var (
			key   string
			value int64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("max marker %s.%s by %s: %w", table, column, scope, err)
		}
		markers[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("max marker %s.%s by %s: %w", table, column, scope, err)
	}
	return markers, nil
}
