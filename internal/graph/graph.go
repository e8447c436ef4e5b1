// Package graph reads and writes records and the typed links between them.
//
// Links are stored in their canonical direction only. Reading a record's
// incoming links relabels each one with the inverse predicate, so callers
// see "A creator_of B" without that row ever existing.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/tributary/internal/clock"
	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/predicate"
	"github.com/roach88/tributary/internal/store"
)

var (
	// ErrRecordNotFound is returned for missing or merged-away records.
	ErrRecordNotFound = errors.New("record not found")

	// ErrLinkNotFound is returned when a link ID has no row.
	ErrLinkNotFound = errors.New("link not found")

	// ErrSelfLink is returned when a link's source and target are the same record.
	ErrSelfLink = errors.New("link source and target are the same record")
)

// Direction says which end of a link the viewing record is on.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

// Edge is a link as seen from one of its records.
type Edge struct {
	Link      model.Link      `json:"link"`
	Direction Direction       `json:"direction"`
	Label     model.Predicate `json:"label"`    // canonical for outgoing, inverse for incoming
	OtherID   int64           `json:"other_id"` // the record at the far end
}

// Service is the link graph API.
type Service struct {
	store  *store.Store
	vocab  *predicate.Vocabulary
	clock  clock.Clock
	logger *slog.Logger
}

// NewService creates a Service. A nil vocab uses predicate.Default().
func NewService(s *store.Store, vocab *predicate.Vocabulary, clk clock.Clock, logger *slog.Logger) *Service {
	if vocab == nil {
		vocab = predicate.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, vocab: vocab, clock: clock.OrSystem(clk), logger: logger}
}

// Vocabulary returns the predicate table links are validated against.
func (s *Service) Vocabulary() *predicate.Vocabulary {
	return s.vocab
}

// UpsertLink stores sourceID -[slug]-> targetID, or refreshes the notes of
// the existing link with that key.
//
// slug must be canonical; an inverse slug is rejected with
// NON_CANONICAL_PREDICATE before anything is read or written. Both records
// must exist and must not be merged away. A self-inverse slug is stored once
// per pair whichever way round the endpoints are given.
func (s *Service) UpsertLink(ctx context.Context, sourceID, targetID int64, slug string, notes *string) (model.Link, error) {
	if err := s.vocab.RequireCanonical(slug); err != nil {
		return model.Link{}, err
	}
	sourceID, targetID = s.vocab.Orient(sourceID, targetID, slug)
	if sourceID == targetID {
		return model.Link{}, fmt.Errorf("link %d -[%s]-> %d: %w", sourceID, slug, targetID, ErrSelfLink)
	}

	var link model.Link
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		for _, id := range []int64{sourceID, targetID} {
			if _, err := activeRecord(ctx, q, id); err != nil {
				return err
			}
		}
		var err error
		link, err = q.UpsertLink(ctx, sourceID, targetID, slug, notes, s.clock.Now())
		return err
	})
	if err != nil {
		return model.Link{}, fmt.Errorf("upsert link: %w", err)
	}

	s.logger.Debug("link stored", "link_id", link.ID, "source_id", sourceID, "target_id", targetID, "predicate", slug)
	return link, nil
}

// Connect stores a relationship given in either direction. An inverse slug
// is flipped to its canonical form with the endpoints swapped.
func (s *Service) Connect(ctx context.Context, fromID, toID int64, slug string, notes *string) (model.Link, error) {
	sourceID, targetID, canonical, err := s.vocab.Canonicalize(fromID, toID, slug)
	if err != nil {
		return model.Link{}, err
	}
	return s.UpsertLink(ctx, sourceID, targetID, canonical, notes)
}

// DeleteLink removes a link by ID.
func (s *Service) DeleteLink(ctx context.Context, id int64) error {
	ok, err := s.store.DeleteLink(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("delete link %d: %w", id, ErrLinkNotFound)
	}
	s.logger.Debug("link deleted", "link_id", id)
	return nil
}

// Outgoing returns links stored with recordID as source, labeled canonically.
func (s *Service) Outgoing(ctx context.Context, recordID int64) ([]Edge, error) {
	if _, err := s.Record(ctx, recordID); err != nil {
		return nil, err
	}
	links, err := s.store.LinksFrom(ctx, recordID)
	if err != nil {
		return nil, err
	}
	edges := make([]Edge, 0, len(links))
	for _, l := range links {
		p, err := s.vocab.Get(l.Predicate)
		if err != nil {
			return nil, fmt.Errorf("link %d: %w", l.ID, err)
		}
		edges = append(edges, Edge{Link: l, Direction: Outgoing, Label: p, OtherID: l.TargetID})
	}
	return edges, nil
}

// Incoming returns links stored with recordID as target, labeled with the
// inverse predicate.
func (s *Service) Incoming(ctx context.Context, recordID int64) ([]Edge, error) {
	if _, err := s.Record(ctx, recordID); err != nil {
		return nil, err
	}
	links, err := s.store.LinksTo(ctx, recordID)
	if err != nil {
		return nil, err
	}
	edges := make([]Edge, 0, len(links))
	for _, l := range links {
		inv, err := s.vocab.Inverse(l.Predicate)
		if err != nil {
			return nil, fmt.Errorf("link %d: %w", l.ID, err)
		}
		edges = append(edges, Edge{Link: l, Direction: Incoming, Label: inv, OtherID: l.SourceID})
	}
	return edges, nil
}

// Edges returns outgoing then incoming edges of recordID.
func (s *Service) Edges(ctx context.Context, recordID int64) ([]Edge, error) {
	out, err := s.Outgoing(ctx, recordID)
	if err != nil {
		return nil, err
	}
	in, err := s.Incoming(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return append(out, in...), nil
}

// Record returns an active record.
func (s *Service) Record(ctx context.Context, id int64) (model.Record, error) {
	return activeRecord(ctx, s.store.Queries, id)
}

// CreateRecord inserts a manually curated record stamped with the current time.
func (s *Service) CreateRecord(ctx context.Context, r model.Record) (model.Record, error) {
	now := s.clock.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	r.MergedInto, r.MergedAt = nil, nil
	if r.Sources == nil {
		r.Sources = []string{}
	}
	id, err := s.store.InsertRecord(ctx, r)
	if err != nil {
		return model.Record{}, err
	}
	r.ID = id
	return r, nil
}

// Records lists active records.
func (s *Service) Records(ctx context.Context, limit int) ([]model.Record, error) {
	return s.store.ListRecords(ctx, limit)
}

func activeRecord(ctx context.Context, q *store.Queries, id int64) (model.Record, error) {
	r, err := q.GetRecord(ctx, id)
	if store.IsNotFound(err) {
		return model.Record{}, fmt.Errorf("record %d: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return model.Record{}, err
	}
	if r.Merged() {
		return model.Record{}, fmt.Errorf("record %d (merged into %d): %w", id, *r.MergedInto, ErrRecordNotFound)
	}
	return r, nil
}
