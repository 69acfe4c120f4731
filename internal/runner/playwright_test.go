package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/selfheal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner implements CommandRunner for testing.
type fakeRunner struct {
	output string
	err    error
	calls  []Command
	before func(cmd Command)
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) (string, error) {
	f.calls = append(f.calls, cmd)
	if f.before != nil {
		f.before(cmd)
	}
	return f.output, f.err
}

type exitError struct{ code int }

func (e *exitError) Error() string { return "exit status" }
func (e *exitError) ExitCode() int { return e.code }

func testRunnerConfig(t *testing.T) config.RunnerConfig {
	cfg := config.DefaultConfig().Runner
	cfg.ResultsDir = t.TempDir()
	return cfg
}

func envValue(env []string, key string) string {
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			return strings.TrimPrefix(kv, key+"=")
		}
	}
	return ""
}

func TestPlaywrightRunnerCommand(t *testing.T) {
	cfg := testRunnerConfig(t)
	p := NewPlaywrightRunner(cfg, &fakeRunner{})

	cmd := p.Command("tests/generated/ed-42.spec.ts")
	artifact, err := filepath.Abs("tests/generated/ed-42.spec.ts")
	require.NoError(t, err)
	assert.Equal(t, "npx", cmd.Name)
	assert.Equal(t, []string{
		"playwright", "test", artifact,
		"--config", "playwright.config.ts",
		"--project", "chromium",
		"--timeout", "60000",
		"--reporter=list,json",
	}, cmd.Args)
	assert.Equal(t, filepath.Join(cfg.ResultsDir, "ed-42-report.json"), envValue(cmd.Env, "PLAYWRIGHT_JSON_OUTPUT_NAME"))
	assert.Equal(t, "0", envValue(cmd.Env, "FORCE_COLOR"))
}

func TestPlaywrightRunnerWorkDirUsesAbsolutePaths(t *testing.T) {
	cfg := testRunnerConfig(t)
	cfg.WorkDir = t.TempDir()
	cfg.ResultsDir = "results"
	p := NewPlaywrightRunner(cfg, &fakeRunner{})

	cmd := p.Command("generated/ed-42.spec.ts")
	assert.Equal(t, cfg.WorkDir, cmd.Dir)

	wantArtifact, err := filepath.Abs("generated/ed-42.spec.ts")
	require.NoError(t, err)
	assert.Contains(t, cmd.Args, wantArtifact)

	wantReport, err := filepath.Abs(filepath.Join("results", "ed-42-report.json"))
	require.NoError(t, err)
	report := envValue(cmd.Env, "PLAYWRIGHT_JSON_OUTPUT_NAME")
	assert.True(t, filepath.IsAbs(report))
	assert.Equal(t, wantReport, report)
}

func TestPlaywrightRunnerFailingTestIsNotAnError(t *testing.T) {
	fake := &fakeRunner{output: "  1 failed\n  1 passed (3s)", err: &exitError{code: 1}}
	p := NewPlaywrightRunner(testRunnerConfig(t), fake)

	ex, err := p.Run(context.Background(), "ed-42.spec.ts")
	require.NoError(t, err)
	assert.Equal(t, 1, ex.ExitCode)
	assert.False(t, ex.TimedOut)
	assert.Equal(t, "  1 failed\n  1 passed (3s)", ex.Output)
	assert.Len(t, fake.calls, 1)
}

func TestPlaywrightRunnerTimeoutKeepsPartialOutput(t *testing.T) {
	fake := &fakeRunner{output: "Running 2 tests\n  ✓  1 [chromium] › a.spec.ts:1:1 › loads (1s)", err: &TimeoutError{Command: "npx", TimeoutDuration: time.Second}}
	p := NewPlaywrightRunner(testRunnerConfig(t), fake)

	ex, err := p.Run(context.Background(), "ed-42.spec.ts")
	require.NoError(t, err)
	assert.True(t, ex.TimedOut)
	assert.Contains(t, ex.Output, "Running 2 tests")
	assert.Contains(t, ex.Summary(), "timed out")
}

func TestPlaywrightRunnerInfrastructureError(t *testing.T) {
	fake := &fakeRunner{err: errors.New("exec: \"npx\": executable file not found in $PATH")}
	p := NewPlaywrightRunner(testRunnerConfig(t), fake)

	_, err := p.Run(context.Background(), "ed-42.spec.ts")
	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Contains(t, runErr.Command, "playwright test")
}

func TestPlaywrightRunnerReadsJSONReport(t *testing.T) {
	cfg := testRunnerConfig(t)
	fake := &fakeRunner{output: "ignored"}
	fake.before = func(cmd Command) {
		path := envValue(cmd.Env, "PLAYWRIGHT_JSON_OUTPUT_NAME")
		require.NoError(t, os.WriteFile(path, []byte(`{"stats":{"expected":4,"duration":1000}}`), 0644))
	}
	p := NewPlaywrightRunner(cfg, fake)

	ex, err := p.Run(context.Background(), "ed-42.spec.ts")
	require.NoError(t, err)
	require.NotEmpty(t, ex.Report)

	r, err := ParseExecution(ex)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Passed)
}

func TestPlaywrightRunnerRemovesStaleReport(t *testing.T) {
	cfg := testRunnerConfig(t)
	stale := filepath.Join(cfg.ResultsDir, "ed-42-report.json")
	require.NoError(t, os.WriteFile(stale, []byte(`{"stats":{"expected":9}}`), 0644))

	p := NewPlaywrightRunner(cfg, &fakeRunner{output: "1 failed (2s)", err: &exitError{code: 1}})
	ex, err := p.Run(context.Background(), "ed-42.spec.ts")
	require.NoError(t, err)
	assert.Empty(t, ex.Report)
}

func TestExecRunnerCapturesOutputAndExitCode(t *testing.T) {
	r := NewExecRunner(1 << 20)
	out, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo '2 passed (1s)'; echo oops >&2; exit 1"}})

	var exitErr interface{ ExitCode() int }
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, out, "2 passed (1s)")
	assert.Contains(t, out, "oops")
}

func TestExecRunnerTimeout(t *testing.T) {
	r := NewExecRunner(1 << 20)
	r.WaitDelay = 100 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	out, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "echo started; sleep 5"}})
	assert.True(t, IsTimeoutError(err))
	assert.Contains(t, out, "started")
}

func TestExecRunnerEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	r := NewExecRunner(1 << 20)
	out, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo $SELFHEAL_MARK; pwd"}, Dir: dir, Env: []string{"SELFHEAL_MARK=hello"}})
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, filepath.Base(dir))
}

func TestTailBufferKeepsNewestBytes(t *testing.T) {
	b := newTailBuffer(5)
	_, _ = b.Write([]byte("abc"))
	_, _ = b.Write([]byte("defgh"))
	assert.Equal(t, "defgh", b.String())
	assert.True(t, b.Truncated())

	unbounded := newTailBuffer(0)
	_, _ = unbounded.Write([]byte("abcdef"))
	assert.Equal(t, "abcdef", unbounded.String())
	assert.False(t, unbounded.Truncated())
}
