package runner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Command describes one subprocess invocation.
type Command struct {
	Name string
	Args []string
	Dir  string   // Working directory (empty = current dir)
	Env  []string // Extra KEY=VALUE pairs appended to the parent environment
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// CommandRunner executes commands and returns their combined output.
// A non-nil error may still come with useful output.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) (output string, err error)
}

// ExecRunner executes real subprocesses with bounded output capture.
type ExecRunner struct {
	MaxOutputBytes int           // Combined stdout/stderr cap; the newest bytes are kept
	WaitDelay      time.Duration // Grace period for pipes after the process is killed
}

// NewExecRunner creates a CommandRunner that executes real processes.
func NewExecRunner(maxOutputBytes int) *ExecRunner {
	return &ExecRunner{MaxOutputBytes: maxOutputBytes, WaitDelay: 5 * time.Second}
}

// Run executes the command and returns combined stdout/stderr. When the
// context deadline fires the partial output is returned with a TimeoutError.
func (r *ExecRunner) Run(ctx context.Context, c Command) (string, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.WaitDelay = r.WaitDelay

	buf := newTailBuffer(r.MaxOutputBytes)
	cmd.Stdout = buf
	cmd.Stderr = buf

	start := time.Now()
	err := cmd.Run()
	output := buf.String()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return output, &TimeoutError{Command: c.String(), TimeoutDuration: time.Since(start).Round(time.Second), Output: output}
	}
	return output, err
}

// tailBuffer keeps at most max bytes, discarding the oldest first. Summary
// lines sit at the end of runner output, so the tail is what matters.
type tailBuffer struct {
	mu        sync.Mutex
	max       int
	data      []byte
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)
	if b.max > 0 && len(b.data) > b.max {
		b.data = append(b.data[:0:0], b.data[len(b.data)-b.max:]...)
		b.truncated = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
