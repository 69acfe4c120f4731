package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnrecognizedOutput indicates non-empty runner output that no grammar
// could turn into pass/fail counts. Callers treat it as a failure that
// still needs healing.
var ErrUnrecognizedOutput = errors.New("unrecognized test runner output")

// RunError is an infrastructure failure: the runner could not be started or
// crashed in a way that is not an ordinary failing test.
type RunError struct {
	Command string // Command line that was attempted
	Output  string // Whatever output was captured before the failure
	Err     error  // Underlying error
}

// Error implements the error interface for RunError.
func (e *RunError) Error() string {
	return fmt.Sprintf("run %q: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error for error wrapping support.
func (e *RunError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that a run hit its wall-clock limit. Output captured
// up to that point travels with the error.
type TimeoutError struct {
	Command         string
	TimeoutDuration time.Duration
	Output          string
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("run %q: timeout after %v", e.Command, e.TimeoutDuration))
	if e.Output != "" {
		sb.WriteString(fmt.Sprintf(" (%d bytes of partial output)", len(e.Output)))
	}
	return sb.String()
}

// Unwrap returns context.DeadlineExceeded to support error wrapping.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// IsTimeoutError checks if the error is or wraps a TimeoutError or context.DeadlineExceeded.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
