package model

import "time"

// SourceType identifies an external system that feeds the graph.
type SourceType string

const (
	SourceBrowser  SourceType = "browser"
	SourceGitHub   SourceType = "github"
	SourceRaindrop SourceType = "raindrop"
)

// RunKind distinguishes a full backfill from a cursor-bounded run.
type RunKind string

const (
	RunFull        RunKind = "full"
	RunIncremental RunKind = "incremental"
)

// ValidRunKinds defines allowed run kinds.
var ValidRunKinds = map[RunKind]bool{
	RunFull:        true,
	RunIncremental: true,
}

// RunStatus is the lifecycle state of an IntegrationRun.
type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunSuccess    RunStatus = "success"
	RunFail       RunStatus = "fail"
)

// IntegrationRun is one ledger row: a single sync attempt for one source.
type IntegrationRun struct {
	ID             int64      `json:"id"`
	SourceType     SourceType `json:"source_type"`
	Kind           RunKind    `json:"run_kind"`
	Status         RunStatus  `json:"status"`
	Message        *string    `json:"message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EntriesCreated int        `json:"entries_created"`
}

// Terminal reports whether the run has reached success or fail.
func (r IntegrationRun) Terminal() bool {
	return r.Status == RunSuccess || r.Status == RunFail
}

// Record is a graph node.
type Record struct {
	ID          int64      `json:"id"`
	Type        string     `json:"type"` // "bookmark", "commit", "page", "note", ...
	Title       *string    `json:"title"`
	Content     *string    `json:"content"`
	URL         *string    `json:"url"`
	Rating      int        `json:"rating"`
	IsCurated   bool       `json:"is_curated"`
	IsPrivate   bool       `json:"is_private"`
	Sources     []string   `json:"sources"`
	ExternalKey *string    `json:"external_key,omitempty"` // natural key for ingested records
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	MergedInto  *int64     `json:"merged_into,omitempty"` // tombstone: survivor of a merge
	MergedAt    *time.Time `json:"merged_at,omitempty"`
}

// Merged reports whether the record has been merged away.
func (r Record) Merged() bool {
	return r.MergedInto != nil
}

// Link is a typed directed edge between two records.
// Predicate is always a canonical slug.
type Link struct {
	ID        int64     `json:"id"`
	SourceID  int64     `json:"source_id"`
	TargetID  int64     `json:"target_id"`
	Predicate string    `json:"predicate"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Media is an attachment optionally owned by a record.
type Media struct {
	ID        int64     `json:"id"`
	RecordID  *int64    `json:"record_id"`
	URL       string    `json:"url"`
	MimeType  *string   `json:"mime_type,omitempty"`
	AltText   *string   `json:"alt_text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Predicate is one entry of the relationship vocabulary.
type Predicate struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	InverseSlug string `json:"inverse"`
	Canonical   bool   `json:"canonical"`
}

// SelfInverse reports whether the predicate is its own inverse.
func (p Predicate) SelfInverse() bool {
	return p.Slug == p.InverseSlug
}

// MergeSnapshot captures everything needed to reverse one merge exactly.
//
// Source and Target hold the full pre-merge rows. RepointedLinks and
// RepointedMedia hold the rows as they were before their endpoint moved to
// the target; DroppedLinks and DroppedMedia hold rows deleted because the
// move would have duplicated an existing target-side row.
type MergeSnapshot struct {
	ID             string     `json:"id"`
	Source         Record     `json:"source"`
	Target         Record     `json:"target"`
	RepointedLinks []Link     `json:"repointed_links"`
	DroppedLinks   []Link     `json:"dropped_links"`
	RepointedMedia []Media    `json:"repointed_media"`
	DroppedMedia   []Media    `json:"dropped_media"`
	CreatedAt      time.Time  `json:"created_at"`
	UndoneAt       *time.Time `json:"undone_at,omitempty"`
}
