// Package runner executes generated Playwright artifacts and parses their results.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/selfheal/internal/config"
)

// Execution is everything captured from one test-runner invocation.
// A non-zero exit code is an ordinary failing test, not an error.
type Execution struct {
	Command  string
	Output   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Report   []byte // JSON reporter output, when the runner produced it
}

// PlaywrightRunner runs one artifact per invocation under a hard timeout.
type PlaywrightRunner struct {
	cfg    config.RunnerConfig
	runner CommandRunner
}

// NewPlaywrightRunner creates a runner. A nil CommandRunner uses an
// ExecRunner bounded by cfg.MaxOutputBytes.
func NewPlaywrightRunner(cfg config.RunnerConfig, runner CommandRunner) *PlaywrightRunner {
	if runner == nil {
		runner = NewExecRunner(cfg.MaxOutputBytes)
	}
	return &PlaywrightRunner{cfg: cfg, runner: runner}
}

// Command builds the invocation for one artifact path. The artifact and
// report paths are made absolute because the tool runs in WorkDir while
// selfheal writes and reads them relative to its own working directory.
func (p *PlaywrightRunner) Command(artifactPath string) Command {
	artifactPath = absPath(artifactPath)
	args := append([]string{}, p.cfg.Args...)
	args = append(args, artifactPath)
	if p.cfg.ConfigPath != "" {
		args = append(args, "--config", p.cfg.ConfigPath)
	}
	if p.cfg.Project != "" {
		args = append(args, "--project", p.cfg.Project)
	}
	if p.cfg.TestTimeout > 0 {
		args = append(args, "--timeout", strconv.FormatInt(p.cfg.TestTimeout.Milliseconds(), 10))
	}

	env := []string{"FORCE_COLOR=0", "CI=1"}
	if p.cfg.JSONReport {
		args = append(args, "--reporter=list,json")
		env = append(env, "PLAYWRIGHT_JSON_OUTPUT_NAME="+p.reportPath(artifactPath))
	} else {
		args = append(args, "--reporter=list")
	}

	return Command{Name: p.cfg.Command, Args: args, Dir: p.cfg.WorkDir, Env: env}
}

func (p *PlaywrightRunner) reportPath(artifactPath string) string {
	base := strings.TrimSuffix(filepath.Base(artifactPath), ".spec.ts")
	return filepath.Join(absPath(p.cfg.ResultsDir), base+"-report.json")
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Run executes the artifact. Output is captured whatever the exit code;
// on timeout the partial output is kept and TimedOut is set. Only a
// failure to run the tool at all is returned as an error.
func (p *PlaywrightRunner) Run(ctx context.Context, artifactPath string) (*Execution, error) {
	cmd := p.Command(artifactPath)

	runCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	if p.cfg.JSONReport {
		_ = os.Remove(p.reportPath(artifactPath))
	}

	start := time.Now()
	output, err := p.runner.Run(runCtx, cmd)
	ex := &Execution{
		Command:  cmd.String(),
		Output:   output,
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
	case IsTimeoutError(err):
		ex.TimedOut = true
		ex.ExitCode = -1
	default:
		var exitErr interface{ ExitCode() int }
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			ex.ExitCode = exitErr.ExitCode()
		} else {
			return ex, &RunError{Command: cmd.String(), Output: output, Err: err}
		}
	}

	if p.cfg.JSONReport && !ex.TimedOut {
		if data, readErr := os.ReadFile(p.reportPath(artifactPath)); readErr == nil {
			ex.Report = data
		}
	}
	return ex, nil
}

// Summary is a one-line description for logs.
func (e *Execution) Summary() string {
	if e.TimedOut {
		return fmt.Sprintf("timed out after %v", e.Duration.Round(time.Second))
	}
	return fmt.Sprintf("exit %d after %v", e.ExitCode, e.Duration.Round(time.Millisecond))
}
