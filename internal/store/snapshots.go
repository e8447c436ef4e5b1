package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/tributary/internal/model"
)

// InsertSnapshot persists a merge snapshot. The full snapshot is stored as
// JSON; source_id and target_id are copied out for lookup.
func (q *Queries) InsertSnapshot(ctx context.Context, snap model.MergeSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}
	_, err = q.exec(ctx, `
		INSERT INTO merge_snapshots (id, source_id, target_id, payload, created_at, undone_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.Source.ID, snap.Target.ID, string(payload), micros(snap.CreatedAt), nullMicros(snap.UndoneAt))
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// GetSnapshot loads a merge snapshot by ID.
// Returns sql.ErrNoRows if not found.
func (q *Queries) GetSnapshot(ctx context.Context, id string) (model.MergeSnapshot, error) {
	var (
		payload  string
		undoneAt sql.NullInt64
	)
	err := q.queryRow(ctx, `SELECT payload, undone_at FROM merge_snapshots WHERE id = ?`, id).Scan(&payload, &undoneAt)
	if err != nil {
		return model.MergeSnapshot{}, err
	}

	var snap model.MergeSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return model.MergeSnapshot{}, fmt.Errorf("unmarshal snapshot %s: %w", id, err)
	}
	snap.UndoneAt = timePtr(undoneAt)
	return snap, nil
}

// MarkSnapshotUndone stamps undone_at on a snapshot that has not been undone.
// Returns false if the snapshot is missing or was already undone.
func (q *Queries) MarkSnapshotUndone(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := q.exec(ctx, `
		UPDATE merge_snapshots SET undone_at = ? WHERE id = ? AND undone_at IS NULL
	`, micros(at), id)
	if err != nil {
		return false, fmt.Errorf("mark snapshot %s undone: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark snapshot %s undone: rows affected: %w", id, err)
	}
	return n == 1, nil
}
