package cli

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tributary/internal/model"
	"github.com/roach88/tributary/internal/store"
)

func TestRunsList_Empty(t *testing.T) {
	h := newCLIHarness(t, "")
	stdout, _, code := h.run("runs", "list")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "No runs\n", stdout)
}

func TestRunsList_FiltersAndJSON(t *testing.T) {
	h := newCLIHarness(t, "")
	h.seed(func(ctx context.Context, s *store.Store) {
		id, err := s.InsertRun(ctx, model.SourceGitHub, model.RunFull, testEpoch.Add(-time.Hour))
		require.NoError(t, err)
		_, err = s.FinishRun(ctx, id, model.RunSuccess, nil, 12, testEpoch.Add(-59*time.Minute))
		require.NoError(t, err)
		_, err = s.InsertRun(ctx, model.SourceRaindrop, model.RunIncremental, testEpoch.Add(-30*time.Minute))
		require.NoError(t, err)
	})

	stdout, _, code := h.run("runs", "list")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "raindrop")
	assert.Contains(t, stdout, "github")
	assert.Contains(t, stdout, "1m0s")

	stdout, _, code = h.run("--format", "json", "runs", "list", "--source", "github")
	require.Equal(t, ExitSuccess, code)
	var resp struct {
		Data []model.IntegrationRun `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, model.RunSuccess, resp.Data[0].Status)
	assert.Equal(t, 12, resp.Data[0].EntriesCreated)

	_, _, code = h.run("runs", "list", "--status", "pending")
	assert.Equal(t, ExitCommandError, code)
}

func TestRunsSweep(t *testing.T) {
	h := newCLIHarness(t, "")
	h.seed(func(ctx context.Context, s *store.Store) {
		_, err := s.InsertRun(ctx, model.SourceGitHub, model.RunFull, testEpoch.Add(-7*time.Hour))
		require.NoError(t, err)
		_, err = s.InsertRun(ctx, model.SourceBrowser, model.RunFull, testEpoch.Add(-time.Hour))
		require.NoError(t, err)
	})

	stdout, _, code := h.run("runs", "sweep")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "Marked 1 run(s) as failed: [1]\n", stdout)

	stdout, _, code = h.run("runs", "sweep", "--older-than", "30m")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "Marked 1 run(s) as failed: [2]\n", stdout)

	stdout, _, code = h.run("runs", "sweep")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "No in_progress runs older than 6h0m0s\n", stdout)
}
