// Package raindrop ingests bookmarks from one Raindrop.io collection.
//
// Raindrop IDs increase monotonically, so the cursor is the largest stored
// ID rather than a timestamp. Listings are requested newest-first.
package raindrop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/roach88/tributary/internal/clock"
	"github.com/roach88/tributary/internal/ingest"
	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/sources/httpx"
	"github.com/roach88/tributary/internal/store"
)

// RecordType is the graph record type for bookmarks.
const RecordType = "bookmark"

// ErrNoToken is returned by Sync when RAINDROP_TOKEN is missing.
var ErrNoToken = errors.New("raindrop: RAINDROP_TOKEN not set")

var bookmarksTable = store.Table{
	Name:    "raindrop_bookmarks",
	Columns: []string{"raindrop_id", "title", "link", "excerpt", "tags", "cover", "created_at", "integration_run_id"},
	Key:     []string{"raindrop_id"},
	Policy:  store.Overwrite,
}

// Config selects the collection to ingest. CollectionID 0 is "all".
type Config struct {
	BaseURL           string
	Token             string
	CollectionID      int64
	PageSize          int
	RequestsPerSecond float64
}

// Raindrop is one bookmark as returned by the API.
type Raindrop struct {
	ID      int64     `json:"_id"`
	Title   string    `json:"title"`
	Link    string    `json:"link"`
	Excerpt string    `json:"excerpt"`
	Tags    []string  `json:"tags"`
	Cover   string    `json:"cover"`
	Created time.Time `json:"created"`
}

type listResponse struct {
	Result bool       `json:"result"`
	Items  []Raindrop `json:"items"`
}

// Source is the Raindrop adapter.
type Source struct {
	cfg    Config
	client *httpx.Client
	writer *ingest.Writer
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Raindrop Source.
func New(cfg Config, w *ingest.Writer, clk clock.Clock, logger *slog.Logger) *Source {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := httpx.New(httpx.Options{
		BaseURL:           cfg.BaseURL,
		Token:             cfg.Token,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	return &Source{cfg: cfg, client: client, writer: w, clock: clock.OrSystem(clk), logger: logger}
}

func (s *Source) Type() model.SourceType { return model.SourceRaindrop }

func (s *Source) Cursor() ingest.Cursor {
	return ingest.Cursor{Table: bookmarksTable.Name, Column: "raindrop_id"}
}

// Sync stages bookmarks with IDs above run.Since.
func (s *Source) Sync(ctx context.Context, run ingest.Run) (int, error) {
	if s.cfg.Token == "" {
		return 0, ErrNoToken
	}

	entries := 0
	fetched, err := ingest.Paginate(ctx, ingest.Pager[Raindrop]{
		Source:   model.SourceRaindrop,
		PageSize: s.cfg.PageSize,
		Since:    run.Since,
		MarkerOf: func(r Raindrop) int64 { return r.ID },
		Fetch:    s.fetch,
		Emit: func(ctx context.Context, items []Raindrop) error {
			rows, err := bookmarkRows(items, run.ID)
			if err != nil {
				return err
			}
			n, err := s.writer.Write(ctx, bookmarksTable, rows, s.upsertRecords)
			entries += n
			return err
		},
	})
	s.logger.Debug("raindrop collection read",
		"run_id", run.ID,
		"collection", s.cfg.CollectionID,
		"fetched", fetched,
		"stored", entries)
	return entries, err
}

func (s *Source) fetch(ctx context.Context, page int) ([]Raindrop, error) {
	query := url.Values{
		"perpage": {strconv.Itoa(s.cfg.PageSize)},
		"page":    {strconv.Itoa(page)},
		"sort":    {"-created"},
	}
	var resp listResponse
	path := "/rest/v1/raindrops/" + strconv.FormatInt(s.cfg.CollectionID, 10)
	if err := s.client.GetJSON(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	if !resp.Result {
		return nil, fmt.Errorf("raindrop: result=false for page %d", page)
	}
	return resp.Items, nil
}

func bookmarkRows(items []Raindrop, runID int64) ([][]any, error) {
	rows := make([][]any, 0, len(items))
	for _, r := range items {
		tags := r.Tags
		if tags == nil {
			tags = []string{}
		}
		tagJSON, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tags for raindrop %d: %w", r.ID, err)
		}
		rows = append(rows, []any{
			r.ID,
			ingest.NormalizeText(r.Title),
			r.Link,
			ingest.NormalizeText(r.Excerpt),
			string(tagJSON),
			ingest.NormalizeText(r.Cover),
			r.Created.UnixMicro(),
			runID,
		})
	}
	return rows, nil
}

// upsertRecords derives one bookmark record per staged row and attaches the
// cover image as media.
func (s *Source) upsertRecords(ctx context.Context, q *store.Queries, rows [][]any) error {
	now := s.clock.Now()
	for _, row := range rows {
		id := row[0].(int64)
		title, _ := row[1].(*string)
		link := row[2].(string)
		excerpt, _ := row[3].(*string)
		cover, _ := row[5].(*string)
		createdAt := row[6].(int64)

		key := "raindrop:" + strconv.FormatInt(id, 10)
		_, err := q.UpsertRecord(ctx, store.RecordUpsert{
			Type:        RecordType,
			ExternalKey: key,
			Title:       title,
			Content:     excerpt,
			URL:         &link,
			Source:      string(model.SourceRaindrop),
			CreatedAt:   time.UnixMicro(createdAt).UTC(),
		}, now)
		if err != nil {
			return err
		}
		if cover != nil {
			if err := q.AttachMediaByExternalKey(ctx, key, *cover, now); err != nil {
				return err
			}
		}
	}
	return nil
}
