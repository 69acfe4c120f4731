package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harrison/selfheal/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileLogger writes one JSON object per event to a timestamped run log in
// the log directory and maintains a latest.log symlink to the newest run.
type FileLogger struct {
	logDir  string
	runFile string
	file    *os.File
	zl      *zap.Logger
}

// NewFileLogger creates the log directory if needed, opens
// run-YYYYMMDD-HHMMSS.log and points latest.log at it.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(file),
		zap.NewAtomicLevelAt(zapLevel(logLevel)),
	)

	return &FileLogger{
		logDir:  logDir,
		runFile: runFile,
		file:    file,
		zl:      zap.New(core),
	}, nil
}

// zapLevel maps our level names onto zap's; trace collapses into debug.
func zapLevel(level string) zapcore.Level {
	switch normalizeLogLevel(level) {
	case "trace", "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// RunFile returns the path of the current run log.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// LogTrace logs a trace-level message.
func (fl *FileLogger) LogTrace(message string) {
	fl.zl.Debug(message, zap.String("level_detail", "trace"))
}

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) { fl.zl.Debug(message) }

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) { fl.zl.Info(message) }

// LogWarn logs a warning-level message.
func (fl *FileLogger) LogWarn(message string) { fl.zl.Warn(message) }

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) { fl.zl.Error(message) }

// LogAttemptStart records the start of one execution.
func (fl *FileLogger) LogAttemptStart(storyID string, attempt, maxAttempts int) {
	fl.zl.Info("attempt started",
		zap.String("story", storyID),
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", maxAttempts))
}

// LogAttemptResult records the parsed result of one execution.
func (fl *FileLogger) LogAttemptResult(storyID string, attempt int, result models.ExecutionResult) {
	fl.zl.Info("attempt finished",
		zap.String("story", storyID),
		zap.Int("attempt", attempt),
		zap.Bool("passed", result.Succeeded()),
		zap.Int("tests_passed", result.Passed),
		zap.Int("tests_failed", result.Failed),
		zap.Int("tests_skipped", result.Skipped),
		zap.Int("tests_flaky", result.Flaky),
		zap.Int("tests_interrupted", result.Interrupted),
		zap.Float64("duration_seconds", result.DurationSeconds))
}

// LogHealing records the classification that triggered a regeneration.
func (fl *FileLogger) LogHealing(storyID string, attempt int, classification models.FailureClassification) {
	fl.zl.Info("healing",
		zap.String("story", storyID),
		zap.Int("attempt", attempt),
		zap.String("error_type", classification.ErrorType()),
		zap.Strings("selector_issues", classification.SelectorIssues),
		zap.Strings("strict_mode_violations", classification.StrictModeViolations),
		zap.Bool("navigation_timeout", classification.NavigationTimeout),
		zap.Bool("consent_dialog", classification.ConsentDialogDetected),
		zap.Bool("logic_error", classification.IsLogicError))
}

// LogOutcome records the final outcome of a run.
func (fl *FileLogger) LogOutcome(outcome models.HealingOutcome) {
	fl.zl.Info("outcome",
		zap.String("run_id", outcome.RunID),
		zap.String("story", outcome.StoryID),
		zap.String("status", outcome.Status),
		zap.Int("attempts", outcome.Attempts),
		zap.Bool("healing_applied", outcome.HealingApplied),
		zap.Strings("fixes", outcome.FixesApplied),
		zap.Int("tests_passed", outcome.Result.Passed),
		zap.Int("tests_failed", outcome.Result.Failed),
		zap.String("reason", outcome.Reason),
		zap.Strings("videos", outcome.Evidence.Videos),
		zap.Duration("duration", outcome.Duration()))
}

// Close flushes and closes the run log.
func (fl *FileLogger) Close() error {
	_ = fl.zl.Sync()
	return fl.file.Close()
}
