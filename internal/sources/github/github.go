// Package github ingests a user's commits from the GitHub REST API.
//
// Each configured repository is paged newest-first. GitHub is authoritative
// for commit metadata, so staged rows are overwritten on re-sync.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/tributary/internal/clock"
	"github.com/roach88/tributary/internal/ingest"
	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/sources/httpx"
	"github.com/roach88/tributary/internal/store"
)

// RecordType is the graph record type for commits.
const RecordType = "commit"

// Errors returned by Sync before any request is made.
var (
	ErrNoToken = errors.New("github: GITHUB_TOKEN not set")
	ErrNoRepos = errors.New("github: no repos configured")
)

var commitsTable = store.Table{
	Name:    "github_commits",
	Columns: []string{"sha", "repo", "message", "author", "url", "committed_at", "integration_run_id"},
	Key:     []string{"sha"},
	Policy:  store.Overwrite,
}

// Config selects the commits to ingest.
type Config struct {
	BaseURL           string
	Token             string
	User              string
	Repos             []string
	PageSize          int
	RequestsPerSecond float64
}

// Commit is one item of the list-commits response.
type Commit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
}

// CommittedAt is the commit's marker time.
func (c Commit) CommittedAt() time.Time {
	if !c.Commit.Committer.Date.IsZero() {
		return c.Commit.Committer.Date
	}
	return c.Commit.Author.Date
}

// Source is the GitHub commits adapter.
type Source struct {
	cfg    Config
	client *httpx.Client
	writer *ingest.Writer
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a GitHub Source.
func New(cfg Config, w *ingest.Writer, clk clock.Clock, logger *slog.Logger) *Source {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := httpx.New(httpx.Options{
		BaseURL:           cfg.BaseURL,
		Token:             cfg.Token,
		Accept:            "application/vnd.github+json",
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
	return &Source{cfg: cfg, client: client, writer: w, clock: clock.OrSystem(clk), logger: logger}
}

func (s *Source) Type() model.SourceType { return model.SourceGitHub }

// Cursor is the newest stored commit time per repo, in Unix microseconds.
func (s *Source) Cursor() ingest.Cursor {
	return ingest.Cursor{Table: commitsTable.Name, Column: "committed_at", Scope: "repo"}
}

// Sync stages commits newer than each repo's own cursor from every configured
// repo. Repos are walked in order; the first failing repo ends the run.
func (s *Source) Sync(ctx context.Context, run ingest.Run) (int, error) {
	if s.cfg.Token == "" {
		return 0, ErrNoToken
	}
	if len(s.cfg.Repos) == 0 {
		return 0, ErrNoRepos
	}

	entries := 0
	for _, repo := range s.cfg.Repos {
		n, err := s.syncRepo(ctx, run, repo)
		entries += n
		if err != nil {
			return entries, fmt.Errorf("repo %s: %w", repo, err)
		}
		s.logger.Debug("github repo synced", "run_id", run.ID, "repo", repo, "stored", n)
	}
	return entries, nil
}

func (s *Source) syncRepo(ctx context.Context, run ingest.Run, repo string) (int, error) {
	entries := 0
	_, err := ingest.Paginate(ctx, ingest.Pager[Commit]{
		Source:   model.SourceGitHub,
		PageSize: s.cfg.PageSize,
		Since:    run.SinceFor(repo),
		MarkerOf: func(c Commit) int64 { return c.CommittedAt().UnixMicro() },
		Fetch: func(ctx context.Context, page int) ([]Commit, error) {
			return s.fetch(ctx, repo, page+1)
		},
		Emit: func(ctx context.Context, commits []Commit) error {
			n, err := s.writer.Write(ctx, commitsTable, commitRows(repo, commits, run.ID), s.upsertRecords)
			entries += n
			return err
		},
	})
	return entries, err
}

func (s *Source) fetch(ctx context.Context, repo string, page int) ([]Commit, error) {
	query := url.Values{
		"per_page": {strconv.Itoa(s.cfg.PageSize)},
		"page":     {strconv.Itoa(page)},
	}
	if s.cfg.User != "" {
		query.Set("author", s.cfg.User)
	}
	var commits []Commit
	if err := s.client.GetJSON(ctx, "/repos/"+repo+"/commits", query, &commits); err != nil {
		return nil, err
	}
	return commits, nil
}

func commitRows(repo string, commits []Commit, runID int64) [][]any {
	rows := make([][]any, 0, len(commits))
	for _, c := range commits {
		author := c.Commit.Author.Name
		if c.Author != nil && c.Author.Login != "" {
			author = c.Author.Login
		}
		rows = append(rows, []any{
			c.SHA,
			repo,
			ingest.NormalizeText(c.Commit.Message),
			ingest.NormalizeText(author),
			ingest.NormalizeText(c.HTMLURL),
			c.CommittedAt().UnixMicro(),
			runID,
		})
	}
	return rows
}

// upsertRecords derives one commit record per staged row. The title is the
// message's first line.
func (s *Source) upsertRecords(ctx context.Context, q *store.Queries, rows [][]any) error {
	now := s.clock.Now()
	for _, row := range rows {
		sha := row[0].(string)
		message, _ := row[2].(*string)
		htmlURL, _ := row[4].(*string)
		committedAt := row[5].(int64)

		var title *string
		if message != nil {
			subject, _, _ := strings.Cut(*message, "\n")
			title = ingest.NormalizeText(subject)
		}
		_, err := q.UpsertRecord(ctx, store.RecordUpsert{
			Type:        RecordType,
			ExternalKey: "github:" + sha,
			Title:       title,
			Content:     message,
			URL:         htmlURL,
			Source:      string(model.SourceGitHub),
			CreatedAt:   time.UnixMicro(committedAt).UTC(),
		}, now)
		if err != nil {
			return err
		}
	}
	return nil
}
