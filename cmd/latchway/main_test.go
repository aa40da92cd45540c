package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mandalnilabja/latchway/internal/storage/file"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		want  slog.Level
	}{
		{"debug", false, slog.LevelDebug},
		{"WARN", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"", false, slog.LevelInfo},
		{"bogus", false, slog.LevelInfo},
		{"error", true, slog.LevelDebug},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, levelFor(tc.name, tc.debug), "levelFor(%q, %v)", tc.name, tc.debug)
	}
}

func TestNewLogHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newLogHandler(&buf, slog.LevelInfo, "json")).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestNewLogHandler_FiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, slog.LevelWarn, "text"))
	logger.Info("quiet")
	logger.Warn("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func writeConfig(t *testing.T, statePath string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := fmt.Sprintf(`{
  "models": [
    {"name": "a", "url": "http://a.example/v1", "category": ["free"], "latch": true},
    {"name": "b", "url": "http://b.example/v1", "category": ["free", "paid"], "latch": false}
  ],
  "default_category": "free",
  "state": {"backend": "file", "path": %q}
}`, statePath)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestModelsCommand(t *testing.T) {
	cfg := writeConfig(t, filepath.Join(t.TempDir(), "state.json"))

	out, err := run(t, "models", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "CATEGORY")
	assert.Regexp(t, `free\s+a\s+b`, out)
	assert.Regexp(t, `paid\s+-\s+b`, out)
}

func TestStateUnpinCommand(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	cfg := writeConfig(t, statePath)

	store, err := file.New(statePath)
	require.NoError(t, err)
	require.NoError(t, store.SetPin(context.Background(), "free", "a"))
	require.NoError(t, store.Close())

	out, err := run(t, "state", "unpin", "free", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "free: unpinned a")

	out, err = run(t, "state", "unpin", "free", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "free: not pinned")
}

func TestStateShowCommand_JSON(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	cfg := writeConfig(t, statePath)

	store, err := file.New(statePath)
	require.NoError(t, err)
	require.NoError(t, store.SetPin(context.Background(), "free", "a"))
	require.NoError(t, store.Close())

	out, err := run(t, "state", "show", "--json", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"free": "a"`)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	_, err := run(t, "init", "--config", path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
