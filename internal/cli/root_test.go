package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tributary", cmd.Use)
	assert.Contains(t, cmd.Long, "knowledge graph")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"sync"},
		{"runs", "list"},
		{"runs", "sweep"},
		{"records", "show"},
		{"records", "list"},
		{"records", "merge"},
		{"records", "unmerge"},
		{"links", "create"},
		{"links", "delete"},
		{"links", "list"},
		{"predicates", "list"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(filepath.Join(path...), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestSyncCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	syncCmd, _, err := cmd.Find([]string{"sync"})
	require.NoError(t, err)

	fullFlag := syncCmd.Flags().Lookup("full")
	require.NotNil(t, fullFlag)
	assert.Equal(t, "false", fullFlag.DefValue)
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestExecute_InvalidFormat(t *testing.T) {
	h := newCLIHarness(t, "")
	_, stderr, code := h.run("--format", "xml", "predicates", "list")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "invalid format")
}

func TestExecute_UsageErrors(t *testing.T) {
	h := newCLIHarness(t, "")

	_, stderr, code := h.run("frobnicate")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "unknown command")

	_, _, code = h.run("records", "merge", "1")
	assert.Equal(t, ExitCommandError, code)

	_, stderr, code = h.run("records", "show", "abc")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, `invalid record id "abc"`)
}

func TestExecute_MissingExplicitConfig(t *testing.T) {
	h := newCLIHarness(t, "")
	h.config = filepath.Join(h.dir, "absent.yaml")

	_, stderr, code := h.run("runs", "list")
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "failed to load config")
}

func TestExecute_JSONErrorsGoToStderr(t *testing.T) {
	h := newCLIHarness(t, "")

	stdout, stderr, code := h.run("--format", "json", "records", "show", "99")
	assert.Equal(t, ExitFailure, code)
	assert.Empty(t, stdout)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stderr), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RECORD_NOT_FOUND", resp.Error.Code)
}

func TestExecute_DBFlagOverridesConfig(t *testing.T) {
	h := newCLIHarness(t, "")
	other := filepath.Join(h.dir, "other.db")

	_, _, code := h.run("--db", other, "runs", "list")
	require.Equal(t, ExitSuccess, code)
	assert.FileExists(t, other)
}
