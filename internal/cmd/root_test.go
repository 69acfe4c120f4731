package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/selfheal/internal/models"
	"github.com/harrison/selfheal/internal/store"
)

// writeConfig writes a config file that keeps all state inside dir.
func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := `log_level: info
log_dir: ""
runner:
  tests_dir: ` + filepath.Join(dir, "tests") + `
store:
  enabled: true
  db_path: ` + filepath.Join(dir, "history.db") + `
` + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns combined output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SELFHEAL_HOME", "")
	for _, k := range []string{"JIRA_BASE_URL", "JIRA_API_TOKEN", "TESTRAIL_URL", "TESTRAIL_API_KEY", "SUT_USERNAME", "SUT_PASSWORD"} {
		t.Setenv(k, "")
	}

	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	out, err := execute(t, "", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "selfheal")
	assert.Contains(t, out, "Playwright")
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "selfheal", cmd.Use)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "run", "heal", "classify", "resolve-url", "history", "validate-config"} {
		assert.Contains(t, names, want)
	}
}

func TestRunRequiresStoryKey(t *testing.T) {
	_, err := execute(t, "", "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestValidateConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "healing:\n  max_attempts: 4\n")

	out, err := execute(t, "", "validate-config", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "Max attempts: 4")
	assert.Contains(t, out, "Jira: disabled")
	assert.Contains(t, out, "History: "+filepath.Join(dir, "history.db"))
}

func TestValidateConfigFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "healing:\n  max_attempts: 4\n")

	out, err := execute(t, "", "validate-config", "--config", cfgPath, "--max-attempts", "6", "--log-level", "DEBUG", "--timeout", "90s")
	require.NoError(t, err)
	assert.Contains(t, out, "Max attempts: 6")
	assert.Contains(t, out, "Log level: debug")
	assert.Contains(t, out, "timeout 1m30s")
}

func TestValidateConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		args    []string
		wantErr string
	}{
		{name: "zero attempts", extra: "healing:\n  max_attempts: 0\n", wantErr: "healing.max_attempts"},
		{name: "unknown provider", extra: "generator:\n  provider: gpt\n", wantErr: "generator.provider"},
		{name: "bad timeout flag", args: []string{"--timeout", "soon"}, wantErr: "invalid timeout format"},
		{name: "bad log level flag", args: []string{"--log-level", "loud"}, wantErr: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := writeConfig(t, t.TempDir(), tt.extra)
			args := append([]string{"validate-config", "--config", cfgPath}, tt.args...)
			_, err := execute(t, "", args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("healing: [unclosed"), 0644))

	_, err := execute(t, "", "validate-config", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

const strictOutput = `  1) [chromium] › ed-42.spec.ts:5:3 › course page shows enroll button
    Error: locator.click: Error: strict mode violation: getByRole('button', { name: 'Enroll' }) resolved to 2 elements:
`

func TestClassifyFromStdin(t *testing.T) {
	out, err := execute(t, strictOutput, "classify", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Error type: "+models.ErrorTypeStrictMode)
	assert.Contains(t, out, "Strict mode violations (1)")
}

func TestClassifyJSONFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.log")
	require.NoError(t, os.WriteFile(path, []byte("\x1b[31mError: page.goto: net::ERR_NAME_NOT_RESOLVED\x1b[0m\n"), 0644))

	out, err := execute(t, "", "classify", path, "--json")
	require.NoError(t, err)

	var report classifyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, models.ErrorTypeNavigation, report.ErrorType)
	assert.True(t, report.Classification.NavigationTimeout)
}

func TestClassifyRejectsUnknownStoryType(t *testing.T) {
	_, err := execute(t, strictOutput, "classify", "-", "--story-type", "rewrite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid story type")
}

func TestResolveURLFromStoryFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "")
	storyPath := filepath.Join(dir, "story.md")
	require.NoError(t, os.WriteFile(storyPath, []byte(`# Verify the course catalog

The catalog lives at https://courses.example.org/catalog.

## Acceptance Criteria
- Course cards are visible
- Login with username: qa-bot password: s3cret
`), 0644))

	out, err := execute(t, "", "resolve-url", "LOCAL-1", "--config", cfgPath, "--story-file", storyPath, "--json")
	require.NoError(t, err)

	var report resolveReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "LOCAL-1", report.StoryID)
	assert.Equal(t, "https://courses.example.org/catalog", report.URL)
	assert.False(t, report.Resolution.Placeholder)
	assert.Equal(t, "qa-bot", report.Credentials.Username)
}

func TestResolveURLWithoutTracker(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), "")
	_, err := execute(t, "", "resolve-url", "ED-1", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--story-file")
}

func seedHistory(t *testing.T, dbPath string) {
	t.Helper()
	s, err := store.NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordOutcome(context.Background(), models.HealingOutcome{
		RunID:          "run-1",
		StoryID:        "ED-42",
		Status:         models.OutcomePassed,
		Success:        true,
		Attempts:       2,
		MaxAttempts:    3,
		HealingApplied: true,
		FixesApplied:   []string{"replaced failing selectors"},
		Result:         models.ExecutionResult{Passed: 2, Total: 2},
		StartedAt:      started,
		FinishedAt:     started.Add(40 * time.Second),
		History: []models.HealingAttempt{
			{AttemptNumber: 1, ErrorType: models.ErrorTypeSelector, FixesApplied: []string{"replaced failing selectors"}, Result: models.ExecutionResult{Passed: 1, Failed: 1}},
			{AttemptNumber: 2, Success: true, Result: models.ExecutionResult{Passed: 2}},
		},
	}))
}

func TestHistoryListsRuns(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "")
	seedHistory(t, filepath.Join(dir, "history.db"))

	out, err := execute(t, "", "history", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ED-42")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "2/3")

	out, err = execute(t, "", "history", "ED-7", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded for ED-7")
}

func TestHistoryShowsRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "")
	seedHistory(t, filepath.Join(dir, "history.db"))

	out, err := execute(t, "", "history", "--run", "run-1", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Story: ED-42")
	assert.Contains(t, out, "#1 failed (1 passed, 1 failed) "+models.ErrorTypeSelector)
	assert.Contains(t, out, "#2 passed")
	assert.Contains(t, out, "fixes: replaced failing selectors")

	_, err = execute(t, "", "history", "--run", "missing", "--config", cfgPath)
	require.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestHistoryWithoutDatabase(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "")

	out, err := execute(t, "", "history", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded yet")
	_, statErr := os.Stat(filepath.Join(dir, "history.db"))
	assert.True(t, os.IsNotExist(statErr), "history must not create the database")
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantTitle string
		wantBody  string
	}{
		{name: "heading", doc: "# Add a banner\n\nBody text", wantTitle: "Add a banner", wantBody: "Body text"},
		{name: "leading blank lines", doc: "\n\n# Title\nBody", wantTitle: "Title", wantBody: "Body"},
		{name: "no heading", doc: "Just text", wantTitle: "", wantBody: "Just text"},
		{name: "second level heading is body", doc: "## Acceptance Criteria\n- a", wantTitle: "", wantBody: "## Acceptance Criteria\n- a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := splitTitle(tt.doc)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestParseStoryType(t *testing.T) {
	st, err := parseStoryType("Remove")
	require.NoError(t, err)
	assert.Equal(t, models.StoryRemove, st)
}
