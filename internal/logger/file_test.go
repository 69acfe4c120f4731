package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/harrison/selfheal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJSONLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestFileLoggerWritesJSONAndSymlink(t *testing.T) {
	dir := t.TempDir()
	fl, err := NewFileLogger(dir, "info")
	require.NoError(t, err)

	fl.LogInfo("run started")
	fl.LogDebug("hidden at info")
	fl.LogAttemptStart("ED-42", 1, 3)
	fl.LogOutcome(models.HealingOutcome{RunID: "r1", StoryID: "ED-42", Status: models.OutcomePassed, Attempts: 1})
	require.NoError(t, fl.Close())

	target, err := os.Readlink(filepath.Join(dir, "latest.log"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(fl.RunFile()), target)

	lines := readJSONLines(t, fl.RunFile())
	require.Len(t, lines, 3)
	assert.Equal(t, "run started", lines[0]["msg"])
	assert.Equal(t, "attempt started", lines[1]["msg"])
	assert.Equal(t, float64(1), lines[1]["attempt"])
	assert.Equal(t, "outcome", lines[2]["msg"])
	assert.Equal(t, "passed", lines[2]["status"])
}

func TestFileLoggerReplacesSymlink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Symlink("stale.log", filepath.Join(dir, "latest.log")))

	fl, err := NewFileLogger(dir, "debug")
	require.NoError(t, err)
	defer fl.Close()

	target, err := os.Readlink(filepath.Join(dir, "latest.log"))
	require.NoError(t, err)
	assert.NotEqual(t, "stale.log", target)
}
