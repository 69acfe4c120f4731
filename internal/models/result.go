package models

import "time"

// Per-test status values reported by the runner.
const (
	TestPassed  = "passed"
	TestFailed  = "failed"
	TestSkipped = "skipped"
	TestFlaky   = "flaky"
)

// TestCaseResult is the outcome of one test inside an execution.
type TestCaseResult struct {
	Title      string `json:"title"`
	Status     string `json:"status"`
	DurationMs int64  `json:"durationMs"`
}

// ExecutionResult is derived purely from the runner's output.
// Total counts passed and failed tests only. Skipped, flaky and interrupted
// tests are tracked separately and never count toward Total.
type ExecutionResult struct {
	Passed          int              `json:"passed"`
	Failed          int              `json:"failed"`
	Skipped         int              `json:"skipped"`
	Flaky           int              `json:"flaky,omitempty"`
	Interrupted     int              `json:"interrupted,omitempty"`
	Total           int              `json:"total"`
	DurationSeconds float64          `json:"duration"`
	Tests           []TestCaseResult `json:"tests,omitempty"`
}

// Normalize recomputes Total from Passed and Failed.
func (r *ExecutionResult) Normalize() {
	r.Total = r.Passed + r.Failed
}

// Succeeded reports whether the execution ran at least one test that passed
// (possibly after a retry) and none failed or were interrupted.
func (r ExecutionResult) Succeeded() bool {
	return r.Failed == 0 && r.Interrupted == 0 && r.Passed+r.Flaky > 0
}

// Empty reports whether no counts were parsed at all.
func (r ExecutionResult) Empty() bool {
	return r.Passed == 0 && r.Failed == 0 && r.Skipped == 0 && r.Flaky == 0 && r.Interrupted == 0
}

// Healing outcome statuses.
const (
	OutcomePassed     = "passed"
	OutcomeFailed     = "failed"
	OutcomeCannotHeal = "cannot-heal"
)

// Evidence holds artifacts discovered in the results directory.
type Evidence struct {
	Videos      []string `json:"videos,omitempty"`
	Traces      []string `json:"traces,omitempty"`
	Screenshots []string `json:"screenshots,omitempty"`
}

// Empty reports whether no evidence was found.
func (e Evidence) Empty() bool {
	return len(e.Videos) == 0 && len(e.Traces) == 0 && len(e.Screenshots) == 0
}

// HealingOutcome accumulates everything the retry loop learned about one run.
// It is built by value across iterations; nothing outside the loop mutates it.
type HealingOutcome struct {
	RunID              string                 `json:"runId"`
	StoryID            string                 `json:"storyId"`
	Status             string                 `json:"status"`
	Success            bool                   `json:"success"`
	Attempts           int                    `json:"attempts"`
	MaxAttempts        int                    `json:"maxAttempts"`
	HealingApplied     bool                   `json:"healingApplied"`
	FixesApplied       []string               `json:"fixesApplied,omitempty"`
	Result             ExecutionResult        `json:"result"`
	LastOutput         string                 `json:"lastOutput,omitempty"`
	LastClassification *FailureClassification `json:"lastClassification,omitempty"`
	Reason             string                 `json:"reason,omitempty"`
	Evidence           Evidence               `json:"evidence"`
	TargetURL          string                 `json:"targetUrl,omitempty"`
	ArtifactPath       string                 `json:"artifactPath,omitempty"`
	StartedAt          time.Time              `json:"startedAt"`
	FinishedAt         time.Time              `json:"finishedAt"`
	History            []HealingAttempt       `json:"history,omitempty"`
}

// Duration returns the wall-clock time of the whole run.
func (o HealingOutcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}
