package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/tributary/internal/model"
)

const mediaColumns = `id, record_id, url, mime_type, alt_text, created_at`

// InsertMedia stores a media row and returns its ID.
// Attaching the same URL to the same record twice is a no-op that returns
// the existing row's ID.
func (q *Queries) InsertMedia(ctx context.Context, m model.Media) (int64, error) {
	_, err := q.exec(ctx, `
		INSERT INTO media (record_id, url, mime_type, alt_text, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (record_id, url) DO NOTHING
	`, nullInt64(m.RecordID), m.URL, nullString(m.MimeType), nullString(m.AltText), micros(m.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert media: %w", err)
	}

	// Unowned media never conflict (NULLs are distinct), so the newest row is ours.
	var id int64
	if m.RecordID == nil {
		err = q.queryRow(ctx, `SELECT MAX(id) FROM media WHERE record_id IS NULL AND url = ?`, m.URL).Scan(&id)
	} else {
		err = q.queryRow(ctx, `SELECT id FROM media WHERE record_id = ? AND url = ?`, *m.RecordID, m.URL).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("insert media: lookup id: %w", err)
	}
	return id, nil
}

// InsertMediaWithID re-inserts a previously deleted media row with its original ID.
func (q *Queries) InsertMediaWithID(ctx context.Context, m model.Media) error {
	_, err := q.exec(ctx, `
		INSERT INTO media (id, record_id, url, mime_type, alt_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, nullInt64(m.RecordID), m.URL, nullString(m.MimeType), nullString(m.AltText), micros(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("restore media %d: %w", m.ID, err)
	}
	return nil
}

// AttachMediaByExternalKey attaches url to the record with the given natural
// key. Does nothing if the record is missing, merged away or already has the URL.
func (q *Queries) AttachMediaByExternalKey(ctx context.Context, externalKey, url string, now time.Time) error {
	_, err := q.exec(ctx, `
		INSERT INTO media (record_id, url, created_at)
		SELECT id, ?, ? FROM records WHERE external_key = ? AND merged_into IS NULL
		ON CONFLICT (record_id, url) DO NOTHING
	`, url, micros(now), externalKey)
	if err != nil {
		return fmt.Errorf("attach media to %s: %w", externalKey, err)
	}
	return nil
}

// MediaForRecord returns media owned by recordID, ordered by ID.
func (q *Queries) MediaForRecord(ctx context.Context, recordID int64) ([]model.Media, error) {
	rows, err := q.query(ctx, `SELECT `+mediaColumns+` FROM media WHERE record_id = ? ORDER BY id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	media := []model.Media{}
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		media = append(media, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return media, nil
}

// UpdateMediaRecord moves a media row to a new owner.
func (q *Queries) UpdateMediaRecord(ctx context.Context, id int64, recordID *int64) error {
	_, err := q.exec(ctx, `UPDATE media SET record_id = ? WHERE id = ?`, nullInt64(recordID), id)
	if err != nil {
		return fmt.Errorf("reassign media %d: %w", id, err)
	}
	return nil
}

// DeleteMedia removes a media row.
func (q *Queries) DeleteMedia(ctx context.Context, id int64) error {
	if _, err := q.exec(ctx, `DELETE FROM media WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete media %d: %w", id, err)
	}
	return nil
}

func scanMedia(scanner interface{ Scan(dest ...any) error }) (model.Media, error) {
	var (
		m         model.Media
		recordID  sql.NullInt64
		mimeType  sql.NullString
		altText   sql.NullString
		createdAt int64
	)
	if err := scanner.Scan(&m.ID, &recordID, &m.URL, &mimeType, &altText, &createdAt); err != nil {
		return model.Media{}, err
	}
	m.RecordID = int64Ptr(recordID)
	m.MimeType = stringPtr(mimeType)
	m.AltText = stringPtr(altText)
	m.CreatedAt = fromMicros(createdAt)
	return m, nil
}
