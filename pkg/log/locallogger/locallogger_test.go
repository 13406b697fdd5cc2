package locallogger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlogLogging(t *testing.T) {
	t.Parallel()

	logFile := filepath.Join(t.TempDir(), "netcheck-debug.json")

	logger := New(logFile, slog.LevelDebug)
	slogger := slog.New(logger.SlogHandler())

	slogger.Log(context.TODO(), slog.LevelDebug, "probe finished", "utility", "dns_check", "duration_ms", 42)
	require.NoError(t, logger.Close())

	contentsRaw, err := os.ReadFile(logFile)
	require.NoError(t, err, "read log file")

	lines := bytes.Split(bytes.TrimSpace(contentsRaw), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	require.Equal(t, "probe finished", entry["msg"])
	require.Equal(t, "dns_check", entry["utility"])
	require.Equal(t, float64(42), entry["duration_ms"])
	require.Contains(t, entry, "source")
}

func TestSlogLogging_RespectsLevel(t *testing.T) {
	t.Parallel()

	logFile := filepath.Join(t.TempDir(), "netcheck-debug.json")

	logger := New(logFile, slog.LevelInfo)
	slogger := slog.New(logger.SlogHandler())

	slogger.Log(context.TODO(), slog.LevelDebug, "too chatty")
	slogger.Log(context.TODO(), slog.LevelWarn, "worth keeping")
	require.NoError(t, logger.Close())

	contentsRaw, err := os.ReadFile(logFile)
	require.NoError(t, err, "read log file")
	require.NotContains(t, string(contentsRaw), "too chatty")
	require.Contains(t, string(contentsRaw), "worth keeping")
}
