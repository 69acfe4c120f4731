package logger

import "github.com/harrison/selfheal/internal/models"

// Logger is the full logging surface used across selfheal.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
	LogAttemptStart(storyID string, attempt, maxAttempts int)
	LogAttemptResult(storyID string, attempt int, result models.ExecutionResult)
	LogHealing(storyID string, attempt int, classification models.FailureClassification)
	LogOutcome(outcome models.HealingOutcome)
}

// MultiLogger fans every call out to several loggers in order.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines loggers; nil entries are skipped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *MultiLogger) LogTrace(message string) {
	for _, l := range m.loggers {
		l.LogTrace(message)
	}
}

func (m *MultiLogger) LogDebug(message string) {
	for _, l := range m.loggers {
		l.LogDebug(message)
	}
}

func (m *MultiLogger) LogInfo(message string) {
	for _, l := range m.loggers {
		l.LogInfo(message)
	}
}

func (m *MultiLogger) LogWarn(message string) {
	for _, l := range m.loggers {
		l.LogWarn(message)
	}
}

func (m *MultiLogger) LogError(message string) {
	for _, l := range m.loggers {
		l.LogError(message)
	}
}

func (m *MultiLogger) LogAttemptStart(storyID string, attempt, maxAttempts int) {
	for _, l := range m.loggers {
		l.LogAttemptStart(storyID, attempt, maxAttempts)
	}
}

func (m *MultiLogger) LogAttemptResult(storyID string, attempt int, result models.ExecutionResult) {
	for _, l := range m.loggers {
		l.LogAttemptResult(storyID, attempt, result)
	}
}

func (m *MultiLogger) LogHealing(storyID string, attempt int, classification models.FailureClassification) {
	for _, l := range m.loggers {
		l.LogHealing(storyID, attempt, classification)
	}
}

func (m *MultiLogger) LogOutcome(outcome models.HealingOutcome) {
	for _, l := range m.loggers {
		l.LogOutcome(outcome)
	}
}

// NoOpLogger is a Logger implementation that discards all log messages.
// Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogTrace(message string)                                  {}
func (n *NoOpLogger) LogDebug(message string)                                  {}
func (n *NoOpLogger) LogInfo(message string)                                   {}
func (n *NoOpLogger) LogWarn(message string)                                   {}
func (n *NoOpLogger) LogError(message string)                                  {}
func (n *NoOpLogger) LogAttemptStart(storyID string, attempt, maxAttempts int) {}
func (n *NoOpLogger) LogAttemptResult(storyID string, attempt int, result models.ExecutionResult) {
}
func (n *NoOpLogger) LogHealing(storyID string, attempt int, classification models.FailureClassification) {
}
func (n *NoOpLogger) LogOutcome(outcome models.HealingOutcome) {}

var (
	_ Logger = (*ConsoleLogger)(nil)
	_ Logger = (*FileLogger)(nil)
	_ Logger = (*MultiLogger)(nil)
	_ Logger = (*NoOpLogger)(nil)
)
