// Package logger provides logging implementations for selfheal runs.
//
// The logger package offers leveled logging plus structured events for the
// healing loop (attempt start, attempt result, healing, final outcome).
// Implementations are thread-safe and support console and file destinations.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/selfheal/internal/models"
	"github.com/mattn/go-isatty"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// ConsoleLogger logs healing progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// Color output is enabled automatically when the writer is a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) { cl.logWithLevel("TRACE", message) }

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) { cl.logWithLevel("DEBUG", message) }

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) { cl.logWithLevel("INFO", message) }

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) { cl.logWithLevel("WARN", message) }

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) { cl.logWithLevel("ERROR", message) }

// logWithLevel writes "[HH:MM:SS] [LEVEL] message" if filtering allows it.
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	levelText := level
	if cl.colorOutput {
		levelText = levelColor(level).Sprint(level)
	}
	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", timestamp(), levelText, message)
}

func levelColor(level string) *color.Color {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}

// LogAttemptStart logs the start of one execution at INFO level.
// Format: "[HH:MM:SS] Attempt 2/3 for ED-42 [=====     ]"
func (cl *ConsoleLogger) LogAttemptStart(storyID string, attempt, maxAttempts int) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	label := fmt.Sprintf("Attempt %d/%d", attempt, maxAttempts)
	if cl.colorOutput {
		label = color.New(color.Bold).Sprint(label)
	}
	fmt.Fprintf(cl.writer, "[%s] %s for %s %s\n", timestamp(), label, storyID, attemptBar(attempt, maxAttempts, 10))
}

// LogAttemptResult logs the parsed result of one execution at INFO level.
// Format: "[HH:MM:SS] Attempt 1 for ED-42: FAILED (1 passed, 2 failed, 0 skipped in 8.0s)"
func (cl *ConsoleLogger) LogAttemptResult(storyID string, attempt int, result models.ExecutionResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	status := "PASSED"
	if !result.Succeeded() {
		status = "FAILED"
	}
	if cl.colorOutput {
		if status == "PASSED" {
			status = color.New(color.FgGreen).Sprint(status)
		} else {
			status = color.New(color.FgRed).Sprint(status)
		}
	}
	fmt.Fprintf(cl.writer, "[%s] Attempt %d for %s: %s (%d passed, %d failed, %d skipped in %.1fs)\n",
		timestamp(), attempt, storyID, status, result.Passed, result.Failed, result.Skipped, result.DurationSeconds)
}

// LogHealing logs the classification that triggers a regeneration at INFO level.
func (cl *ConsoleLogger) LogHealing(storyID string, attempt int, classification models.FailureClassification) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	errType := classification.ErrorType()
	if cl.colorOutput {
		errType = color.New(color.FgYellow).Sprint(errType)
	}
	fmt.Fprintf(cl.writer, "[%s] Healing %s after attempt %d: %s - %s\n",
		timestamp(), storyID, attempt, errType, classification.Summary())
}

// LogOutcome logs the final healing outcome at INFO level.
func (cl *ConsoleLogger) LogOutcome(outcome models.HealingOutcome) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	ts := timestamp()
	header := "=== Healing Summary ==="
	status := strings.ToUpper(outcome.Status)
	if cl.colorOutput {
		header = color.New(color.Bold).Sprint(header)
		if outcome.Success {
			status = color.New(color.FgGreen).Sprint(status)
		} else {
			status = color.New(color.FgRed).Sprint(status)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s\n", ts, header)
	fmt.Fprintf(&sb, "[%s] Story: %s\n", ts, outcome.StoryID)
	fmt.Fprintf(&sb, "[%s] Status: %s\n", ts, status)
	fmt.Fprintf(&sb, "[%s] Attempts: %d/%d\n", ts, outcome.Attempts, outcome.MaxAttempts)
	fmt.Fprintf(&sb, "[%s] Tests: %d passed, %d failed, %d skipped\n", ts, outcome.Result.Passed, outcome.Result.Failed, outcome.Result.Skipped)
	if outcome.HealingApplied {
		fmt.Fprintf(&sb, "[%s] Fixes applied: %s\n", ts, strings.Join(outcome.FixesApplied, "; "))
	}
	if outcome.Reason != "" {
		fmt.Fprintf(&sb, "[%s] Reason: %s\n", ts, outcome.Reason)
	}
	if n := len(outcome.Evidence.Videos); n > 0 {
		fmt.Fprintf(&sb, "[%s] Videos: %d\n", ts, n)
	}
	fmt.Fprintf(&sb, "[%s] Duration: %s\n", ts, formatDuration(outcome.Duration()))

	io.WriteString(cl.writer, sb.String())
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// attemptBar renders "[=====     ]" for attempt out of total.
func attemptBar(attempt, total, width int) string {
	if total <= 0 {
		total = 1
	}
	filled := attempt * width / total
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		minutes := (d % time.Hour) / time.Minute
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	case d >= time.Minute:
		minutes := d / time.Minute
		seconds := (d % time.Minute) / time.Second
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}
