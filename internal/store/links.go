package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/tributary/internal/model"
)

const linkColumns = `id, source_id, target_id, predicate, notes, created_at`

// UpsertLink stores a link, or refreshes the notes of the existing link with
// the same (source, target, predicate). Returns the stored row.
func (q *Queries) UpsertLink(ctx context.Context, sourceID, targetID int64, predicate string, notes *string, now time.Time) (model.Link, error) {
	row := q.queryRow(ctx, `
		INSERT INTO links (source_id, target_id, predicate, notes, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source_id, target_id, predicate) DO UPDATE SET notes = excluded.notes
		RETURNING `+linkColumns,
		sourceID, targetID, predicate, nullString(notes), micros(now))
	link, err := scanLink(row)
	if err != nil {
		return model.Link{}, fmt.Errorf("upsert link %d -[%s]-> %d: %w", sourceID, predicate, targetID, err)
	}
	return link, nil
}

// InsertLinkWithID re-inserts a previously deleted link with its original ID.
func (q *Queries) InsertLinkWithID(ctx context.Context, l model.Link) error {
	_, err := q.exec(ctx, `
		INSERT INTO links (id, source_id, target_id, predicate, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.ID, l.SourceID, l.TargetID, l.Predicate, nullString(l.Notes), micros(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("restore link %d: %w", l.ID, err)
	}
	return nil
}

// GetLink retrieves a link by ID.
// Returns sql.ErrNoRows if not found.
func (q *Queries) GetLink(ctx context.Context, id int64) (model.Link, error) {
	row := q.queryRow(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id)
	return scanLink(row)
}

// FindLink looks up a link by its natural key.
// Returns sql.ErrNoRows if not found.
func (q *Queries) FindLink(ctx context.Context, sourceID, targetID int64, predicate string) (model.Link, error) {
	row := q.queryRow(ctx, `
		SELECT `+linkColumns+` FROM links
		WHERE source_id = ? AND target_id = ? AND predicate = ?
	`, sourceID, targetID, predicate)
	return scanLink(row)
}

// DeleteLink removes a link. Returns false if no such link existed.
func (q *Queries) DeleteLink(ctx context.Context, id int64) (bool, error) {
	result, err := q.exec(ctx, `DELETE FROM links WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete link %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete link %d: rows affected: %w", id, err)
	}
	return n == 1, nil
}

// UpdateLinkEndpoints moves a link to new endpoints, keeping its ID.
func (q *Queries) UpdateLinkEndpoints(ctx context.Context, id, sourceID, targetID int64) error {
	_, err := q.exec(ctx, `UPDATE links SET source_id = ?, target_id = ? WHERE id = ?`, sourceID, targetID, id)
	if err != nil {
		return fmt.Errorf("repoint link %d: %w", id, err)
	}
	return nil
}

// LinksFrom returns links whose source is recordID, ordered by ID.
func (q *Queries) LinksFrom(ctx context.Context, recordID int64) ([]model.Link, error) {
	return q.queryLinks(ctx, `SELECT `+linkColumns+` FROM links WHERE source_id = ? ORDER BY id`, recordID)
}

// LinksTo returns links whose target is recordID, ordered by ID.
func (q *Queries) LinksTo(ctx context.Context, recordID int64) ([]model.Link, error) {
	return q.queryLinks(ctx, `SELECT `+linkColumns+` FROM links WHERE target_id = ? ORDER BY id`, recordID)
}

// LinksTouching returns links with recordID at either end, ordered by ID.
func (q *Queries) LinksTouching(ctx context.Context, recordID int64) ([]model.Link, error) {
	return q.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM links
		WHERE source_id = ? OR target_id = ?
		ORDER BY id
	`, recordID, recordID)
}

func (q *Queries) queryLinks(ctx context.Context, query string, args ...any) ([]model.Link, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := []model.Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

func scanLink(scanner interface{ Scan(dest ...any) error }) (model.Link, error) {
	var (
		l         model.Link
		notes     sql.NullString
		createdAt int64
	)
	if err := scanner.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Predicate, &notes, &createdAt); err != nil {
		return model.Link{}, err
	}
	l.Notes = stringPtr(notes)
	l.CreatedAt = fromMicros(createdAt)
	return l, nil
}
