package ui_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/savewarden/internal/ui"
)

func TestNewLoggerWritesJSONToStderrFile(t *testing.T) {
	stderr, err := os.Create(filepath.Join(t.TempDir(), "stderr"))
	require.NoError(t, err)
	defer stderr.Close()

	logger, closer := ui.NewLogger(ui.LogOptions{Level: slog.LevelInfo, Stderr: stderr})
	logger.Debug("hidden")
	logger.Info("visible", "src", "/saves")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(stderr.Name())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "visible", rec["msg"])
	assert.Equal(t, "/saves", rec["src"])
}

func TestNewLoggerRotatingFile(t *testing.T) {
	dir := t.TempDir()
	stderr, err := os.Create(filepath.Join(dir, "stderr"))
	require.NoError(t, err)
	defer stderr.Close()

	logPath := filepath.Join(dir, "logs", "savewarden.log")
	logger, closer := ui.NewLogger(ui.LogOptions{
		Level:      slog.LevelWarn,
		Stderr:     stderr,
		File:       logPath,
		MaxBackups: 2,
	})
	logger.Debug("debug goes to file only")
	logger.Warn("warn goes everywhere")
	require.NoError(t, closer.Close())

	fileData, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(fileData), "\n"))
	assert.Contains(t, string(fileData), "debug goes to file only")

	stderrData, err := os.ReadFile(stderr.Name())
	require.NoError(t, err)
	assert.NotContains(t, string(stderrData), "debug goes to file only")
	assert.Contains(t, string(stderrData), "warn goes everywhere")
}

func TestNewRotatingWriterDefaults(t *testing.T) {
	w := ui.NewRotatingWriter(ui.LogOptions{File: "x.log"})
	assert.Equal(t, 10, w.MaxSize)
	assert.Equal(t, "x.log", w.Filename)
}
