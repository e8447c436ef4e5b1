package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/store"
)

func newSyncHarness(t *testing.T, extra string) (*cliHarness, string) {
	t.Helper()
	history := filepath.Join(t.TempDir(), "History")
	writeHistory(t, history, "https://a.example", "https://b.example")
	metrics := filepath.Join(t.TempDir(), "tributary.prom")
	h := newCLIHarness(t, fmt.Sprintf("browser:\n  history_path: %q\nmetrics:\n  textfile: %q\n%s", history, metrics, extra))
	return h, metrics
}

func TestSync_SingleSource(t *testing.T) {
	h, metrics := newSyncHarness(t, "")

	stdout, stderr, code := h.run("sync", "browser")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "browser")
	assert.Contains(t, stdout, "incremental")
	assert.Contains(t, stdout, "success")
	assert.Contains(t, stdout, "2 entries")

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tributary_sync_runs_total{source="browser",status="success"} 1`)

	// Nothing new since the first run.
	stdout, _, code = h.run("sync", "browser")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "0 entries")
}

func TestSync_FullJSON(t *testing.T) {
	h, _ := newSyncHarness(t, "")

	stdout, _, code := h.run("--format", "json", "sync", "browser", "--full")
	require.Equal(t, ExitSuccess, code)

	var resp struct {
		Status string     `json:"status"`
		Data   SyncReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Results, 1)
	assert.Equal(t, SyncResult{
		RunID:   1,
		Source:  model.SourceBrowser,
		Kind:    model.RunFull,
		Status:  model.RunSuccess,
		Entries: 2,
	}, resp.Data.Results[0])
}

func TestSync_UnknownSource(t *testing.T) {
	h, _ := newSyncHarness(t, "")

	_, stderr, code := h.run("sync", "myspace")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "unknown source")
}

func TestSync_FailureExitsNonZeroAndIsRecorded(t *testing.T) {
	h, _ := newSyncHarness(t, "github:\n  repos: [octo/one]\n")

	stdout, stderr, code := h.run("sync", "github")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "fail")
	assert.Contains(t, stdout, "GITHUB_TOKEN not set")
	assert.Contains(t, stderr, "sync failed")

	stdout, _, code = h.run("runs", "list", "--source", "github")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "fail")
}

func TestSync_DailyContinuesPastFailures(t *testing.T) {
	h, _ := newSyncHarness(t, "daily: [github, browser]\n")

	stdout, _, code := h.run("sync", "daily")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stdout, "Batch: id-1")

	lines := strings.Split(stdout, "\n")
	var github, browser string
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "github"):
			github = l
		case strings.HasPrefix(l, "browser"):
			browser = l
		}
	}
	assert.Contains(t, github, "fail")
	assert.Contains(t, browser, "success")
	assert.Contains(t, browser, "2 entries")
}

func TestSync_DailyRejectsFull(t *testing.T) {
	h, _ := newSyncHarness(t, "")
	_, _, code := h.run("sync", "daily", "--full")
	assert.Equal(t, ExitCommandError, code)
}

func TestSync_SweepsStaleRunsFirst(t *testing.T) {
	h, _ := newSyncHarness(t, "stale_run_after: 1h\n")
	h.seed(func(ctx context.Context, s *store.Store) {
		_, err := s.InsertRun(ctx, model.SourceBrowser, model.RunIncremental, testEpoch.Add(-2*time.Hour))
		require.NoError(t, err)
	})

	stdout, _, code := h.run("sync", "browser")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Swept 1 stale run(s): [1]")

	stdout, _, code = h.run("runs", "list", "--status", "fail")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "abandoned: no terminal status within 1h0m0s")
}
