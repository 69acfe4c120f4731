package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// cleanTmpDir keeps the claude CLI away from editor socket files in the
// shared temp directory, which crash it when --settings is passed.
var cleanTmpDir = filepath.Join(os.TempDir(), "selfheal-claude")

// cleanEnv returns the environment with TMPDIR pointed at cleanTmpDir.
func cleanEnv() []string {
	_ = os.MkdirAll(cleanTmpDir, 0755)
	env := os.Environ()
	for i, kv := range env {
		if strings.HasPrefix(kv, "TMPDIR=") {
			env[i] = "TMPDIR=" + cleanTmpDir
			return env
		}
	}
	return append(env, "TMPDIR="+cleanTmpDir)
}

// execFunc runs a binary and returns its combined output.
type execFunc func(ctx context.Context, name string, args []string, env []string) ([]byte, error)

func runCommand(ctx context.Context, name string, args []string, env []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// ClaudeGenerator invokes the claude CLI in print mode with JSON output.
// Create once, use many times; safe for concurrent use.
type ClaudeGenerator struct {
	// ClaudePath is the claude binary. Defaults to "claude" (found in PATH).
	ClaudePath string

	// Model is passed as --model when set.
	Model string

	// Timeout bounds each invocation. Zero means the caller's context only.
	Timeout time.Duration

	exec execFunc
}

// NewClaudeGenerator creates a generator for the claude CLI.
func NewClaudeGenerator(path string, timeout time.Duration) *ClaudeGenerator {
	if path == "" {
		path = "claude"
	}
	return &ClaudeGenerator{ClaudePath: path, Timeout: timeout, exec: runCommand}
}

// Name returns the provider name.
func (g *ClaudeGenerator) Name() string { return "claude" }

// claudeEnvelope is the --output-format json result object.
type claudeEnvelope struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
	Content   string `json:"content"`
	Error     string `json:"error"`
	SessionID string `json:"session_id"`
}

// Generate runs one print-mode invocation. Sampling parameters are left to
// the CLI, which does not expose them.
func (g *ClaudeGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", &ProviderError{Provider: g.Name(), Err: fmt.Errorf("prompt is required")}
	}

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	args := []string{}
	if req.System != "" {
		args = append(args, "--system-prompt", req.System)
	}
	if g.Model != "" {
		args = append(args, "--model", g.Model)
	}
	args = append(args, "-p", req.Prompt, "--output-format", "json", "--settings", `{"disableAllHooks": true}`)

	run := g.exec
	if run == nil {
		run = runCommand
	}
	output, err := run(ctx, g.ClaudePath, args, cleanEnv())
	if err != nil {
		if rl := DetectRateLimit(string(output), time.Now()); rl != nil {
			return "", &ProviderError{Provider: g.Name(), Err: rl}
		}
		return "", &ProviderError{Provider: g.Name(), Err: fmt.Errorf("%w (output: %s)", err, truncate(string(output), 300))}
	}

	text, err := ParseClaudeOutput(output)
	if err != nil {
		if rl := DetectRateLimit(err.Error(), time.Now()); rl != nil {
			return "", &ProviderError{Provider: g.Name(), Err: rl}
		}
		return "", &ProviderError{Provider: g.Name(), Err: err}
	}
	return text, nil
}

// ParseClaudeOutput extracts the answer text from the CLI's JSON envelope.
// Output that is not an envelope is returned as-is.
func ParseClaudeOutput(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", ErrEmptyResponse
	}

	// Warnings may precede the envelope.
	start := bytes.IndexByte(trimmed, '{')
	if start < 0 {
		return string(trimmed), nil
	}

	var env claudeEnvelope
	if err := json.Unmarshal(trimmed[start:], &env); err != nil || (env.Type == "" && env.Result == "" && env.Content == "" && env.Error == "") {
		return string(trimmed), nil
	}
	if env.IsError || env.Error != "" {
		msg := env.Error
		if msg == "" {
			msg = env.Result
		}
		return "", fmt.Errorf("claude reported an error (%s): %s", env.Subtype, truncate(msg, 300))
	}

	text := env.Result
	if text == "" {
		text = env.Content
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
