package generator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrRateLimited marks a provider call rejected by a usage or rate limit.
var ErrRateLimited = errors.New("generator rate limited")

// RateLimitError carries the reset time parsed from the provider's message.
// ResetAt is zero when the message named no reset time.
type RateLimitError struct {
	ResetAt time.Time
	Message string
}

// Error implements the error interface for RateLimitError.
func (e *RateLimitError) Error() string {
	if e.ResetAt.IsZero() {
		return fmt.Sprintf("rate limited: %s", e.Message)
	}
	return fmt.Sprintf("rate limited until %s: %s", e.ResetAt.Format(time.RFC3339), e.Message)
}

// Unwrap returns ErrRateLimited so callers can match with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter is the wait until the limit resets, or zero when unknown.
func (e *RateLimitError) RetryAfter() time.Duration {
	if e.ResetAt.IsZero() {
		return 0
	}
	if d := time.Until(e.ResetAt); d > 0 {
		return d
	}
	return 0
}

var (
	// "Claude AI usage limit reached|1767225600"
	unixResetPattern = regexp.MustCompile(`usage limit reached\|(\d+)`)

	// "limit will reset at 2pm (America/New_York)" or "resets 1am (Europe/Dublin)"
	clockResetPattern = regexp.MustCompile(`(?:reset at|resets)\s+(\d{1,2})(am|pm)\s*\(([^)]+)\)`)

	// "retry in 30 seconds", "retry after 30s"
	retrySecondsPattern = regexp.MustCompile(`(?i)retry (?:in|after)\s+(\d+)\s*(?:seconds?|s)\b`)

	rateLimitIndicator = regexp.MustCompile(`(?i)out of.*usage|rate.?limit|usage.?limit|resource.?exhausted|\b429\b|too.?many.?requests`)

	// Quoted or logged mentions are not limit errors.
	rateLimitFalsePositive = regexp.MustCompile("(?i)\\[rate.?limit\\]|`rate.?limit|\"rate.?limit|'rate.?limit")
)

// DetectRateLimit inspects provider output and returns a RateLimitError when
// the output reports a usage or rate limit, or nil otherwise.
func DetectRateLimit(output string, now time.Time) *RateLimitError {
	output = strings.TrimSpace(output)
	if output == "" || !rateLimitIndicator.MatchString(output) || rateLimitFalsePositive.MatchString(output) {
		return nil
	}
	e := &RateLimitError{Message: truncate(output, 300)}

	if m := unixResetPattern.FindStringSubmatch(output); m != nil {
		if ts, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			e.ResetAt = time.Unix(ts, 0)
			return e
		}
	}
	if m := clockResetPattern.FindStringSubmatch(output); m != nil {
		e.ResetAt = nextClockTime(now, m[1], m[2], m[3])
		return e
	}
	if m := retrySecondsPattern.FindStringSubmatch(output); m != nil {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			e.ResetAt = now.Add(time.Duration(secs) * time.Second)
		}
	}
	return e
}

// nextClockTime returns the next occurrence of a 12-hour clock time in tz.
// Unknown zones fall back to UTC.
func nextClockTime(now time.Time, hourText, meridiem, tz string) time.Time {
	hour, _ := strconv.Atoi(hourText)
	switch {
	case meridiem == "pm" && hour != 12:
		hour += 12
	case meridiem == "am" && hour == 12:
		hour = 0
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	reset := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !reset.After(local) {
		reset = reset.Add(24 * time.Hour)
	}
	return reset
}
