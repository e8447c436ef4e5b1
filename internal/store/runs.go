package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/tributary/internal/model"
)

const runColumns = `id, source_type, run_kind, status, message, started_at, ended_at, entries_created`

// RunFilter narrows ListRuns. Zero values mean "any".
type RunFilter struct {
	Source model.SourceType
	Status model.RunStatus
	Limit  int
}

// InsertRun records the start of a sync attempt with status in_progress.
func (q *Queries) InsertRun(ctx context.Context, source model.SourceType, kind model.RunKind, startedAt time.Time) (int64, error) {
	var id int64
	err := q.queryRow(ctx, `
		INSERT INTO integration_runs (source_type, run_kind, status, started_at, entries_created)
		VALUES (?, ?, ?, ?, 0)
		RETURNING id
	`, string(source), string(kind), string(model.RunInProgress), micros(startedAt)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun moves a run from in_progress to a terminal status.
// Returns false if the run does not exist or was already terminal; the row
// is left untouched in that case.
func (q *Queries) FinishRun(ctx context.Context, id int64, status model.RunStatus, message *string, entries int, endedAt time.Time) (bool, error) {
	result, err := q.exec(ctx, `
		UPDATE integration_runs
		SET status = ?, message = ?, entries_created = ?, ended_at = ?
		WHERE id = ? AND status = ?
	`, string(status), nullString(message), entries, micros(endedAt), id, string(model.RunInProgress))
	if err != nil {
		return false, fmt.Errorf("finish run %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish run %d: rows affected: %w", id, err)
	}
	return n == 1, nil
}

// GetRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (q *Queries) GetRun(ctx context.Context, id int64) (model.IntegrationRun, error) {
	row := q.queryRow(ctx, `SELECT `+runColumns+` FROM integration_runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns runs newest first.
// Returns an empty slice (not nil) if nothing matches.
func (q *Queries) ListRuns(ctx context.Context, filter RunFilter) ([]model.IntegrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM integration_runs WHERE 1 = 1`
	var args []any
	if filter.Source != "" {
		query += ` AND source_type = ?`
		args = append(args, string(filter.Source))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []model.IntegrationRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// FailStaleRuns marks every in_progress run started before cutoff as failed
// and returns the IDs it touched, oldest first.
func (q *Queries) FailStaleRuns(ctx context.Context, cutoff time.Time, message string, endedAt time.Time) ([]int64, error) {
	rows, err := q.query(ctx, `
		UPDATE integration_runs
		SET status = ?, message = ?, ended_at = ?
		WHERE status = ? AND started_at < ?
		RETURNING id
	`, string(model.RunFail), message, micros(endedAt), string(model.RunInProgress), micros(cutoff))
	if err != nil {
		return nil, fmt.Errorf("fail stale runs: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale runs: %w", err)
	}
	slices.Sort(ids)
	return ids, nil
}

// scanRun scans a row into an IntegrationRun. The row must have runColumns in order.
func scanRun(scanner interface{ Scan(dest ...any) error }) (model.IntegrationRun, error) {
	var (
		run       model.IntegrationRun
		source    string
		kind      string
		status    string
		message   sql.NullString
		startedAt int64
		endedAt   sql.NullInt64
	)
	err := scanner.Scan(&run.ID, &source, &kind, &status, &message, &startedAt, &endedAt, &run.EntriesCreated)
	if err != nil {
		return model.IntegrationRun{}, err
	}
	run.SourceType = model.SourceType(source)
	run.Kind = model.RunKind(kind)
	run.Status = model.RunStatus(status)
	run.Message = stringPtr(message)
	run.StartedAt = fromMicros(startedAt)
	run.EndedAt = timePtr(endedAt)
	return run, nil
}
