package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/selfheal/internal/logger"
	"github.com/harrison/selfheal/internal/models"
)

func passedOutcome() models.HealingOutcome {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return models.HealingOutcome{
		RunID:          "run-1",
		StoryID:        "ED-42",
		Status:         models.OutcomePassed,
		Success:        true,
		Attempts:       2,
		MaxAttempts:    3,
		HealingApplied: true,
		FixesApplied:   []string{"replaced failing selectors"},
		Result:         models.ExecutionResult{Passed: 2, Total: 2, DurationSeconds: 8},
		LastOutput:     "2 passed (8s)",
		Evidence:       models.Evidence{Videos: []string{"test-results/a/video.webm"}},
		TargetURL:      "https://www.edx.org",
		StartedAt:      start,
		FinishedAt:     start.Add(42 * time.Second),
	}
}

func failedOutcome() models.HealingOutcome {
	o := passedOutcome()
	o.Status = models.OutcomeFailed
	o.Success = false
	o.Result = models.ExecutionResult{Passed: 0, Failed: 1, Total: 1, DurationSeconds: 31}
	o.LastOutput = "waiting for locator('#enroll')\n1 failed (31s)"
	o.LastClassification = &models.FailureClassification{SelectorIssues: []string{"waiting for locator('#enroll')"}}
	o.Reason = "failed after 2 attempts (selector-not-found)"
	return o
}

func TestBuildResponsePassed(t *testing.T) {
	resp := BuildResponse(passedOutcome())

	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Attempts)
	assert.True(t, resp.HealingApplied)
	assert.Equal(t, 42.0, resp.DurationSecs)
	assert.Equal(t, []string{"test-results/a/video.webm"}, resp.Videos)
	assert.Empty(t, resp.Output, "passing runs do not echo output")
	assert.Nil(t, resp.Classification)
	assert.Equal(t, "Passed after 2 attempts with self-healing: 2/2 tests passed", resp.Message)
}

func TestBuildResponseFailedCarriesOutputAndClassification(t *testing.T) {
	resp := BuildResponse(failedOutcome())

	assert.False(t, resp.Success)
	assert.Equal(t, models.OutcomeFailed, resp.Status)
	assert.Contains(t, resp.Output, "1 failed (31s)")
	require.NotNil(t, resp.Classification)
	assert.Equal(t, models.ErrorTypeSelector, resp.ErrorType)
	assert.Equal(t, "failed after 2 attempts (selector-not-found)", resp.Reason)
}

func TestBuildResponseJSONShape(t *testing.T) {
	o := passedOutcome()
	o.FixesApplied = nil
	o.Evidence = models.Evidence{}
	data, err := json.Marshal(BuildResponse(o))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, []interface{}{}, body["videos"])
	assert.Equal(t, []interface{}{}, body["fixesApplied"])
	results := body["results"].(map[string]interface{})
	assert.Equal(t, 2.0, results["total"])
	assert.Equal(t, 8.0, results["duration"])
	assert.NotContains(t, body, "output")
}

func TestBuildResponseTruncatesOutput(t *testing.T) {
	o := failedOutcome()
	o.LastOutput = strings.Repeat("a", maxOutputChars) + "TAIL"
	resp := BuildResponse(o)
	assert.True(t, strings.HasPrefix(resp.Output, "...(truncated)"))
	assert.True(t, strings.HasSuffix(resp.Output, "TAIL"))
}

func TestStatusLine(t *testing.T) {
	o := passedOutcome()
	o.HealingApplied = false
	o.Attempts = 1
	assert.Equal(t, "Passed on attempt 1: 2/2 tests passed", StatusLine(o))

	o.Status = models.OutcomeCannotHeal
	assert.Contains(t, StatusLine(o), "Cannot auto-heal after 1 attempt(s)")

	assert.Equal(t, "Failed after 2 attempt(s): 0 passed, 1 failed", StatusLine(failedOutcome()))
}

func TestCommentText(t *testing.T) {
	text := CommentText("ED-42", passedOutcome())
	assert.True(t, strings.HasPrefix(text, "[selfheal] ED-42: automated tests PASSED."))
	assert.Contains(t, text, "Fixes applied: replaced failing selectors.")
	assert.Contains(t, text, "1 video(s) recorded.")
	assert.NotContains(t, text, "Reason")

	text = CommentText("ED-42", failedOutcome())
	assert.Contains(t, text, "automated tests FAILED")
	assert.Contains(t, text, "Last failure: selector-not-found.")
	assert.Contains(t, text, "Reason: failed after 2 attempts (selector-not-found).")
}

type fakePoster struct {
	err      error
	comments map[string]string
}

func (f *fakePoster) AddComment(ctx context.Context, storyID, text string) error {
	if f.err != nil {
		return f.err
	}
	if f.comments == nil {
		f.comments = map[string]string{}
	}
	f.comments[storyID] = text
	return nil
}

type warnCollector struct {
	logger.NoOpLogger
	warnings []string
}

func (w *warnCollector) LogWarn(message string) { w.warnings = append(w.warnings, message) }

func TestPostStatus(t *testing.T) {
	poster := &fakePoster{}
	assert.True(t, PostStatus(context.Background(), poster, nil, "ED-42", passedOutcome()))
	assert.Contains(t, poster.comments["ED-42"], "PASSED")

	log := &warnCollector{}
	failing := &fakePoster{err: errors.New("403 Forbidden")}
	assert.False(t, PostStatus(context.Background(), failing, log, "ED-42", passedOutcome()))
	require.Len(t, log.warnings, 1)
	assert.Contains(t, log.warnings[0], "403 Forbidden")

	assert.False(t, PostStatus(context.Background(), nil, log, "ED-42", passedOutcome()))
}
