package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tributary/internal/ledger"
	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/store"
	"github.com/roach88/tributary/internal/testutil"
)

var epoch = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// fakeSource stages a fixed newest-first listing of commit timestamps into
// github_commits, paging through Paginate like a real adapter.
type fakeSource struct {
	typ     model.SourceType
	writer  *Writer
	listing []int64
	err     error
	runs    []Run
	delay   time.Duration
	scope   string
}

func (f *fakeSource) Type() model.SourceType { return f.typ }

func (f *fakeSource) Cursor() Cursor {
	return Cursor{Table: "github_commits", Column: "committed_at", Scope: f.scope}
}

func (f *fakeSource) Sync(ctx context.Context, run Run) (int, error) {
	f.runs = append(f.runs, run)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return 0, f.err
	}
	const size = 2
	entries := 0
	_, err := Paginate(ctx, Pager[int64]{
		Source:   f.typ,
		PageSize: size,
		Since:    run.SinceFor("o/r"),
		MarkerOf: func(v int64) int64 { return v },
		Fetch: func(_ context.Context, page int) ([]int64, error) {
			start := page * size
			if start >= len(f.listing) {
				return nil, nil
			}
			return f.listing[start:min(start+size, len(f.listing))], nil
		},
		Emit: func(ctx context.Context, items []int64) error {
			rows := make([][]any, len(items))
			for i, ts := range items {
				rows[i] = []any{string(f.typ) + "-" + time.UnixMicro(ts).UTC().Format(time.RFC3339Nano), "o/r", nil, nil, nil, ts, run.ID}
			}
			n, err := f.writer.Write(ctx, commitsTable(store.Overwrite), rows, nil)
			entries += n
			return err
		},
	})
	return entries, err
}

func newTestRunner(t *testing.T) (*Runner, *store.Store, *ledger.Ledger) {
	t.Helper()
	s := testutil.NewStore(t)
	l := ledger.New(s,
		ledger.WithClock(testutil.NewFakeClock(epoch)),
		ledger.WithLogger(testutil.DiscardLogger()),
		ledger.WithMetrics(ledger.NewMetrics(prometheus.NewRegistry())))
	return NewRunner(l, s, testutil.DiscardLogger()), s, l
}

func TestRunner_IncrementalResumesFromCursor(t *testing.T) {
	r, s, l := newTestRunner(t)
	ctx := context.Background()
	src := &fakeSource{typ: model.SourceGitHub, writer: NewWriter(s, 100, testutil.DiscardLogger())}

	src.listing = []int64{300, 200, 100}
	first, err := r.Sync(ctx, src, model.RunIncremental)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Entries)
	assert.False(t, src.runs[0].Since.Valid, "first run has no cursor")

	src.listing = []int64{500, 400, 300, 200, 100}
	second, err := r.Sync(ctx, src, model.RunIncremental)
	require.NoError(t, err)
	assert.Equal(t, MarkerAt(300), src.runs[1].Since)
	assert.Equal(t, 2, second.Entries)

	run, err := l.Get(ctx, second.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunSuccess, run.Status)
	assert.Equal(t, 2, run.EntriesCreated)

	// Every row staged by the second run is newer than its cursor.
	var minTS int64
	require.NoError(t, s.DB().QueryRow(
		"SELECT MIN(committed_at) FROM github_commits WHERE integration_run_id = ?", second.RunID).Scan(&minTS))
	assert.Greater(t, minTS, int64(300))
}

func TestRunner_FullRunIgnoresCursor(t *testing.T) {
	r, s, _ := newTestRunner(t)
	ctx := context.Background()
	src := &fakeSource{typ: model.SourceGitHub, writer: NewWriter(s, 100, testutil.DiscardLogger()), listing: []int64{2, 1}}

	_, err := r.Sync(ctx, src, model.RunIncremental)
	require.NoError(t, err)
	res, err := r.Sync(ctx, src, model.RunFull)
	require.NoError(t, err)

	assert.False(t, src.runs[1].Since.Valid)
	assert.Equal(t, 2, res.Entries, "full run rewrites everything")
}

func TestRunner_CursorIsPerSource(t *testing.T) {
	r, s, _ := newTestRunner(t)
	ctx := context.Background()
	w := NewWriter(s, 100, testutil.DiscardLogger())

	gh := &fakeSource{typ: model.SourceGitHub, writer: w, listing: []int64{900}}
	_, err := r.Sync(ctx, gh, model.RunIncremental)
	require.NoError(t, err)

	other := &fakeSource{typ: model.SourceRaindrop, writer: w, listing: []int64{50}}
	_, err = r.Sync(ctx, other, model.RunIncremental)
	require.NoError(t, err)
	assert.False(t, other.runs[0].Since.Valid, "another source's rows must not move this cursor")
}

func TestRunner_ScopedCursor(t *testing.T) {
	r, s, _ := newTestRunner(t)
	ctx := context.Background()
	src := &fakeSource{typ: model.SourceGitHub, writer: NewWriter(s, 100, testutil.DiscardLogger()), scope: "repo"}

	src.listing = []int64{300, 200}
	_, err := r.Sync(ctx, src, model.RunIncremental)
	require.NoError(t, err)
	assert.Empty(t, src.runs[0].Scoped)

	src.listing = []int64{400, 300, 200}
	res, err := r.Sync(ctx, src, model.RunIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Entries)
	assert.Equal(t, map[string]Marker{"o/r": MarkerAt(300)}, src.runs[1].Scoped)
	assert.Equal(t, MarkerAt(300), src.runs[1].SinceFor("o/r"))
	assert.False(t, src.runs[1].SinceFor("o/other").Valid, "unseen partitions backfill")
	assert.False(t, src.runs[1].Since.Valid)
}

func TestRunner_FailureMarksRun(t *testing.T) {
	r, _, l := newTestRunner(t)
	ctx := context.Background()
	boom := errors.New("401 bad credentials")
	src := &fakeSource{typ: model.SourceGitHub, err: boom}

	res, err := r.Sync(ctx, src, model.RunIncremental)
	require.ErrorIs(t, err, boom)

	run, err := l.Get(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFail, run.Status)
	assert.Equal(t, "401 bad credentials", *run.Message)
}
