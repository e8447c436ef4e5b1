// Package merge consolidates duplicate records and reverses consolidations.
//
// Merge folds a source record into a target: fields are combined by
// MergeFields, every link and media row on the source moves to the target,
// and the source becomes a tombstone pointing at the target. Rows that would
// duplicate something the target already has, or links that would join the
// target to itself, are deleted instead of moved.
//
// Each merge writes a MergeSnapshot holding the pre-merge rows. Undo replays
// it: moved rows go back, deleted rows are re-inserted under their original
// IDs and both records are restored as they were.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/tributary/internal/clock"
	"github.com/roach88/tributary/internal/ident"
	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/predicate"
	"github.com/roach88/tributary/internal/store"
)

// Result describes a completed merge.
type Result struct {
	Updated    model.Record        `json:"updated"`
	DeletedID  int64               `json:"deleted_id"`
	TouchedIDs []int64             `json:"touched_ids"`
	Snapshot   model.MergeSnapshot `json:"snapshot"`
}

// UndoResult holds both records as restored.
type UndoResult struct {
	Source model.Record `json:"source"`
	Target model.Record `json:"target"`
}

// Engine runs merges and undos, each in a single transaction.
type Engine struct {
	store  *store.Store
	vocab  *predicate.Vocabulary
	clock  clock.Clock
	ids    ident.Generator
	logger *slog.Logger
}

// New creates an Engine. Nil vocab, clock, ids and logger fall back to
// predicate.Default(), the system clock, UUIDv7 and slog.Default().
func New(s *store.Store, vocab *predicate.Vocabulary, clk clock.Clock, ids ident.Generator, logger *slog.Logger) *Engine {
	if vocab == nil {
		vocab = predicate.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, vocab: vocab, clock: clock.OrSystem(clk), ids: ident.OrUUIDv7(ids), logger: logger}
}

// Merge folds sourceID into targetID.
func (e *Engine) Merge(ctx context.Context, sourceID, targetID int64) (Result, error) {
	if sourceID == targetID {
		return Result{}, newSameRecordError(sourceID)
	}

	var res Result
	err := e.store.InTx(ctx, func(q *store.Queries) error {
		source, err := loadActive(ctx, q, sourceID)
		if err != nil {
			return err
		}
		target, err := loadActive(ctx, q, targetID)
		if err != nil {
			return err
		}

		now := e.clock.Now()
		snap := model.MergeSnapshot{
			ID:             e.ids.Generate(),
			Source:         source,
			Target:         target,
			RepointedLinks: []model.Link{},
			DroppedLinks:   []model.Link{},
			RepointedMedia: []model.Media{},
			DroppedMedia:   []model.Media{},
			CreatedAt:      now,
		}
		touched := []int64{sourceID, targetID}

		links, err := q.LinksTouching(ctx, sourceID)
		if err != nil {
			return err
		}
		for _, l := range links {
			newSource, newTarget := e.vocab.Orient(
				repoint(l.SourceID, sourceID, targetID), repoint(l.TargetID, sourceID, targetID), l.Predicate)
			touched = append(touched, l.SourceID, l.TargetID)

			drop := newSource == newTarget
			if !drop {
				drop, err = e.duplicates(ctx, q, l, newSource, newTarget)
				if err != nil {
					return err
				}
			}

			if drop {
				if _, err := q.DeleteLink(ctx, l.ID); err != nil {
					return err
				}
				snap.DroppedLinks = append(snap.DroppedLinks, l)
				continue
			}
			if err := q.UpdateLinkEndpoints(ctx, l.ID, newSource, newTarget); err != nil {
				return err
			}
			snap.RepointedLinks = append(snap.RepointedLinks, l)
		}

		targetMedia, err := q.MediaForRecord(ctx, targetID)
		if err != nil {
			return err
		}
		urls := make(map[string]bool, len(targetMedia))
		for _, m := range targetMedia {
			urls[m.URL] = true
		}
		sourceMedia, err := q.MediaForRecord(ctx, sourceID)
		if err != nil {
			return err
		}
		for _, m := range sourceMedia {
			if urls[m.URL] {
				if err := q.DeleteMedia(ctx, m.ID); err != nil {
					return err
				}
				snap.DroppedMedia = append(snap.DroppedMedia, m)
				continue
			}
			if err := q.UpdateMediaRecord(ctx, m.ID, &targetID); err != nil {
				return err
			}
			urls[m.URL] = true
			snap.RepointedMedia = append(snap.RepointedMedia, m)
		}

		updated := MergeFields(source, target, now)
		if err := q.UpdateRecord(ctx, updated); err != nil {
			return err
		}

		tombstone := source
		tombstone.MergedInto = &targetID
		tombstone.MergedAt = &now
		tombstone.UpdatedAt = now
		if err := q.UpdateRecord(ctx, tombstone); err != nil {
			return err
		}

		if err := q.InsertSnapshot(ctx, snap); err != nil {
			return err
		}

		slices.Sort(touched)
		res = Result{
			Updated:    updated,
			DeletedID:  sourceID,
			TouchedIDs: slices.Compact(touched),
			Snapshot:   snap,
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("merge %d into %d: %w", sourceID, targetID, err)
	}

	e.logger.Info("records merged",
		"source_id", sourceID,
		"target_id", targetID,
		"snapshot_id", res.Snapshot.ID,
		"links_repointed", len(res.Snapshot.RepointedLinks),
		"links_dropped", len(res.Snapshot.DroppedLinks),
		"media_repointed", len(res.Snapshot.RepointedMedia),
		"media_dropped", len(res.Snapshot.DroppedMedia))
	return res, nil
}

// Undo replays a merge snapshot, restoring both records and every moved or
// deleted link and media row. A snapshot can be undone once.
func (e *Engine) Undo(ctx context.Context, snapshotID string) (UndoResult, error) {
	var res UndoResult
	err := e.store.InTx(ctx, func(q *store.Queries) error {
		snap, err := q.GetSnapshot(ctx, snapshotID)
		if store.IsNotFound(err) {
			return &Error{Code: ErrCodeSnapshotNotFound, Message: "no such merge snapshot", SnapshotID: snapshotID}
		}
		if err != nil {
			return err
		}
		if snap.UndoneAt != nil {
			return &Error{
				Code:       ErrCodeAlreadyUndone,
				Message:    fmt.Sprintf("undone at %s", snap.UndoneAt.Format(time.RFC3339)),
				SnapshotID: snapshotID,
			}
		}

		target, err := q.GetRecord(ctx, snap.Target.ID)
		if err != nil {
			return err
		}
		if target.Merged() {
			// Undoing would orphan the later merge.
			return newAlreadyMergedError(target.ID, *target.MergedInto)
		}

		for _, l := range snap.RepointedLinks {
			if _, err := q.GetLink(ctx, l.ID); store.IsNotFound(err) {
				if err := q.InsertLinkWithID(ctx, l); err != nil {
					return err
				}
				continue
			} else if err != nil {
				return err
			}
			if err := q.UpdateLinkEndpoints(ctx, l.ID, l.SourceID, l.TargetID); err != nil {
				return err
			}
		}
		for _, l := range snap.DroppedLinks {
			if err := q.InsertLinkWithID(ctx, l); err != nil {
				return err
			}
		}
		for _, m := range snap.RepointedMedia {
			if err := q.UpdateMediaRecord(ctx, m.ID, m.RecordID); err != nil {
				return err
			}
		}
		for _, m := range snap.DroppedMedia {
			if err := q.InsertMediaWithID(ctx, m); err != nil {
				return err
			}
		}

		if err := q.UpdateRecord(ctx, snap.Source); err != nil {
			return err
		}
		if err := q.UpdateRecord(ctx, snap.Target); err != nil {
			return err
		}
		if _, err := q.MarkSnapshotUndone(ctx, snapshotID, e.clock.Now()); err != nil {
			return err
		}

		res = UndoResult{Source: snap.Source, Target: snap.Target}
		return nil
	})
	if store.IsConstraintViolation(err) {
		return UndoResult{}, newUndoConflictError(snapshotID, err)
	}
	if err != nil {
		return UndoResult{}, fmt.Errorf("undo merge %s: %w", snapshotID, err)
	}

	e.logger.Info("merge undone", "snapshot_id", snapshotID, "source_id", res.Source.ID, "target_id", res.Target.ID)
	return res, nil
}

// Snapshot returns a stored merge snapshot.
func (e *Engine) Snapshot(ctx context.Context, snapshotID string) (model.MergeSnapshot, error) {
	snap, err := e.store.GetSnapshot(ctx, snapshotID)
	if store.IsNotFound(err) {
		return model.MergeSnapshot{}, &Error{Code: ErrCodeSnapshotNotFound, Message: "no such merge snapshot", SnapshotID: snapshotID}
	}
	return snap, err
}

func loadActive(ctx context.Context, q *store.Queries, id int64) (model.Record, error) {
	r, err := q.GetRecord(ctx, id)
	if store.IsNotFound(err) {
		return model.Record{}, newRecordNotFoundError(id)
	}
	if err != nil {
		return model.Record{}, err
	}
	if r.Merged() {
		return model.Record{}, newAlreadyMergedError(id, *r.MergedInto)
	}
	return r, nil
}

// duplicates reports whether another link already joins the new endpoints
// with l's predicate. Self-inverse links match in either orientation.
func (e *Engine) duplicates(ctx context.Context, q *store.Queries, l model.Link, sourceID, targetID int64) (bool, error) {
	pairs := [][2]int64{{sourceID, targetID}}
	if p, err := e.vocab.Get(l.Predicate); err == nil && p.SelfInverse() {
		pairs = append(pairs, [2]int64{targetID, sourceID})
	}
	for _, pair := range pairs {
		existing, err := q.FindLink(ctx, pair[0], pair[1], l.Predicate)
		switch {
		case err == nil:
			if existing.ID != l.ID {
				return true, nil
			}
		case !store.IsNotFound(err):
			return false, err
		}
	}
	return false, nil
}

func repoint(id, from, to int64) int64 {
	if id == from {
		return to
	}
	return id
}
