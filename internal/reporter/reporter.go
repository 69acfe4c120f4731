// Package reporter formats healing outcomes for the HTTP API and for the
// status comment posted back to the story tracker.
package reporter

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrison/selfheal/internal/logger"
	"github.com/harrison/selfheal/internal/models"
)

// maxOutputChars bounds the raw runner output echoed in failed responses.
const maxOutputChars = 20000

// Response is the JSON body returned by the execute-tests stage.
type Response struct {
	Success        bool                          `json:"success"`
	Status         string                        `json:"status"`
	RunID          string                        `json:"runId"`
	StoryID        string                        `json:"storyId"`
	Attempts       int                           `json:"attempts"`
	MaxAttempts    int                           `json:"maxAttempts"`
	HealingApplied bool                          `json:"healingApplied"`
	FixesApplied   []string                      `json:"fixesApplied"`
	Results        models.ExecutionResult        `json:"results"`
	Videos         []string                      `json:"videos"`
	Traces         []string                      `json:"traces,omitempty"`
	Screenshots    []string                      `json:"screenshots,omitempty"`
	TargetURL      string                        `json:"targetUrl,omitempty"`
	DurationSecs   float64                       `json:"durationSeconds"`
	Message        string                        `json:"message"`
	ErrorType      string                        `json:"errorType,omitempty"`
	Classification *models.FailureClassification `json:"classification,omitempty"`
	Reason         string                        `json:"reason,omitempty"`
	Output         string                        `json:"output,omitempty"`
}

// BuildResponse maps an outcome onto the API shape. Failed outcomes carry
// the last raw output and classification.
func BuildResponse(o models.HealingOutcome) Response {
	resp := Response{
		Success:        o.Success,
		Status:         o.Status,
		RunID:          o.RunID,
		StoryID:        o.StoryID,
		Attempts:       o.Attempts,
		MaxAttempts:    o.MaxAttempts,
		HealingApplied: o.HealingApplied,
		FixesApplied:   o.FixesApplied,
		Results:        o.Result,
		Videos:         o.Evidence.Videos,
		Traces:         o.Evidence.Traces,
		Screenshots:    o.Evidence.Screenshots,
		TargetURL:      o.TargetURL,
		DurationSecs:   o.Duration().Seconds(),
		Message:        StatusLine(o),
	}
	if resp.FixesApplied == nil {
		resp.FixesApplied = []string{}
	}
	if resp.Videos == nil {
		resp.Videos = []string{}
	}
	if !o.Success {
		resp.Reason = o.Reason
		resp.Output = tailOutput(o.LastOutput)
		if o.LastClassification != nil {
			resp.ErrorType = o.LastClassification.ErrorType()
			resp.Classification = o.LastClassification
		}
	}
	return resp
}

// StatusLine is the one-line verdict shared by responses and comments.
func StatusLine(o models.HealingOutcome) string {
	r := o.Result
	switch o.Status {
	case models.OutcomePassed:
		if o.HealingApplied {
			return fmt.Sprintf("Passed after %d attempts with self-healing: %d/%d tests passed", o.Attempts, r.Passed, r.Total)
		}
		return fmt.Sprintf("Passed on attempt %d: %d/%d tests passed", o.Attempts, r.Passed, r.Total)
	case models.OutcomeCannotHeal:
		return fmt.Sprintf("Cannot auto-heal after %d attempt(s): the test automation gave up", o.Attempts)
	default:
		return fmt.Sprintf("Failed after %d attempt(s): %d passed, %d failed", o.Attempts, r.Passed, r.Failed)
	}
}

// CommentText renders the status comment for the story tracker.
func CommentText(storyID string, o models.HealingOutcome) string {
	label := "FAILED"
	switch o.Status {
	case models.OutcomePassed:
		label = "PASSED"
	case models.OutcomeCannotHeal:
		label = "CANNOT AUTO-HEAL"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[selfheal] %s: automated tests %s. %s (%d skipped, %.1fs).",
		storyID, label, StatusLine(o), o.Result.Skipped, o.Result.DurationSeconds)
	if o.HealingApplied && len(o.FixesApplied) > 0 {
		fmt.Fprintf(&sb, " Fixes applied: %s.", strings.Join(o.FixesApplied, ", "))
	}
	if !o.Success {
		if o.LastClassification != nil {
			fmt.Fprintf(&sb, " Last failure: %s.", o.LastClassification.ErrorType())
		}
		if o.Reason != "" {
			fmt.Fprintf(&sb, " Reason: %s.", strings.TrimSuffix(o.Reason, "."))
		}
	}
	if n := len(o.Evidence.Videos); n > 0 {
		fmt.Fprintf(&sb, " %d video(s) recorded.", n)
	}
	if o.TargetURL != "" {
		fmt.Fprintf(&sb, " Target: %s", o.TargetURL)
	}
	return strings.TrimSpace(sb.String())
}

// CommentPoster posts a plain-text comment to a story.
type CommentPoster interface {
	AddComment(ctx context.Context, storyID, text string) error
}

// PostStatus posts the status comment. Failures are logged and swallowed;
// the return value only reports whether the comment was posted.
func PostStatus(ctx context.Context, poster CommentPoster, log logger.Logger, storyID string, o models.HealingOutcome) bool {
	if poster == nil {
		return false
	}
	if err := poster.AddComment(ctx, storyID, CommentText(storyID, o)); err != nil {
		if log != nil {
			log.LogWarn(fmt.Sprintf("failed to post status comment to %s: %v", storyID, err))
		}
		return false
	}
	return true
}

func tailOutput(s string) string {
	if len(s) <= maxOutputChars {
		return s
	}
	return "...(truncated)\n" + s[len(s)-maxOutputChars:]
}
