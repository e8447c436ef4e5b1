package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/tributary/internal/model"
)

const recordColumns = `id, type, title, content, url, rating, is_curated, is_private, sources,
	external_key, created_at, updated_at, merged_into, merged_at`

// RecordUpsert is the normalized form of an ingested record.
// Only source-owned fields appear here; curated fields are never touched by sync.
type RecordUpsert struct {
	Type        string
	ExternalKey string
	Title       *string
	Content     *string
	URL         *string
	Source      string
	CreatedAt   time.Time
}

// InsertRecord inserts a new record and returns its ID. Record.ID is ignored.
func (q *Queries) InsertRecord(ctx context.Context, r model.Record) (int64, error) {
	sources, err := marshalSources(r.Sources)
	if err != nil {
		return 0, err
	}

	var id int64
	err = q.queryRow(ctx, `
		INSERT INTO records (type, title, content, url, rating, is_curated, is_private, sources,
			external_key, created_at, updated_at, merged_into, merged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`, r.Type, nullString(r.Title), nullString(r.Content), nullString(r.URL), r.Rating,
		r.IsCurated, r.IsPrivate, sources, nullString(r.ExternalKey),
		micros(r.CreatedAt), micros(r.UpdatedAt), nullInt64(r.MergedInto), nullMicros(r.MergedAt)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	return id, nil
}

// UpsertRecord inserts an ingested record or refreshes the source-owned fields
// of the existing row with the same external key. Returns the record ID.
//
// sources is seeded on insert only; rating, is_curated, is_private and any
// merge tombstone survive re-syncs. A merged-away row is left untouched.
func (q *Queries) UpsertRecord(ctx context.Context, r RecordUpsert, now time.Time) (int64, error) {
	sources, err := marshalSources([]string{r.Source})
	if err != nil {
		return 0, err
	}

	var id int64
	err = q.queryRow(ctx, `
		INSERT INTO records (type, title, content, url, rating, is_curated, is_private, sources,
			external_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_key) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			url = excluded.url,
			updated_at = excluded.updated_at
		WHERE records.merged_into IS NULL
		RETURNING id
	`, r.Type, nullString(r.Title), nullString(r.Content), nullString(r.URL), false, false,
		sources, r.ExternalKey, micros(r.CreatedAt), micros(now)).Scan(&id)
	if IsNotFound(err) {
		// Skipped update of a tombstone returns no row.
		err = q.queryRow(ctx, `SELECT id FROM records WHERE external_key = ?`, r.ExternalKey).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("upsert record %s: %w", r.ExternalKey, err)
	}
	return id, nil
}

// GetRecord retrieves a record by ID, including merged-away records.
// Returns sql.ErrNoRows if not found.
func (q *Queries) GetRecord(ctx context.Context, id int64) (model.Record, error) {
	row := q.queryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	return scanRecord(row)
}

// GetRecordByExternalKey retrieves a record by its natural key.
// Returns sql.ErrNoRows if not found.
func (q *Queries) GetRecordByExternalKey(ctx context.Context, key string) (model.Record, error) {
	row := q.queryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE external_key = ?`, key)
	return scanRecord(row)
}

// ListRecords returns active (not merged) records ordered by ID.
// Returns an empty slice (not nil) if there are none.
func (q *Queries) ListRecords(ctx context.Context, limit int) ([]model.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE merged_into IS NULL ORDER BY id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// UpdateRecord overwrites every column of the record with r's values,
// including the merge tombstone.
func (q *Queries) UpdateRecord(ctx context.Context, r model.Record) error {
	sources, err := marshalSources(r.Sources)
	if err != nil {
		return err
	}

	result, err := q.exec(ctx, `
		UPDATE records
		SET type = ?, title = ?, content = ?, url = ?, rating = ?, is_curated = ?, is_private = ?,
			sources = ?, external_key = ?, created_at = ?, updated_at = ?, merged_into = ?, merged_at = ?
		WHERE id = ?
	`, r.Type, nullString(r.Title), nullString(r.Content), nullString(r.URL), r.Rating,
		r.IsCurated, r.IsPrivate, sources, nullString(r.ExternalKey),
		micros(r.CreatedAt), micros(r.UpdatedAt), nullInt64(r.MergedInto), nullMicros(r.MergedAt), r.ID)
	if err != nil {
		return fmt.Errorf("update record %d: %w", r.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record %d: rows affected: %w", r.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update record %d: %w", r.ID, sql.ErrNoRows)
	}
	return nil
}

// scanRecord scans a row into a Record. The row must have recordColumns in order.
func scanRecord(scanner interface{ Scan(dest ...any) error }) (model.Record, error) {
	var (
		r           model.Record
		title       sql.NullString
		content     sql.NullString
		url         sql.NullString
		sources     string
		externalKey sql.NullString
		createdAt   int64
		updatedAt   int64
		mergedInto  sql.NullInt64
		mergedAt    sql.NullInt64
	)
	err := scanner.Scan(&r.ID, &r.Type, &title, &content, &url, &r.Rating, &r.IsCurated, &r.IsPrivate,
		&sources, &externalKey, &createdAt, &updatedAt, &mergedInto, &mergedAt)
	if err != nil {
		return model.Record{}, err
	}
	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return model.Record{}, fmt.Errorf("unmarshal sources for record %d: %w", r.ID, err)
	}
	if r.Sources == nil {
		r.Sources = []string{}
	}
	r.Title = stringPtr(title)
	r.Content = stringPtr(content)
	r.URL = stringPtr(url)
	r.ExternalKey = stringPtr(externalKey)
	r.CreatedAt = fromMicros(createdAt)
	r.UpdatedAt = fromMicros(updatedAt)
	r.MergedInto = int64Ptr(mergedInto)
	r.MergedAt = timePtr(mergedAt)
	return r, nil
}

func marshalSources(sources []string) (string, error) {
	if sources == nil {
		sources = []string{}
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return "", fmt.Errorf("marshal sources: %w", err)
	}
	return string(data), nil
}
