package models

import (
	"fmt"
	"strings"
)

// Error type labels derived from a FailureClassification.
const (
	ErrorTypeStrictMode   = "strict-mode-violation"
	ErrorTypeLogic        = "logic-error"
	ErrorTypeSelector     = "selector-not-found"
	ErrorTypeNavigation   = "navigation-timeout"
	ErrorTypeText         = "text-mismatch"
	ErrorTypeCSS          = "css-assertion"
	ErrorTypeURL          = "url-assertion"
	ErrorTypeConsent      = "consent-dialog"
	ErrorTypeUnclassified = "unclassified"
)

// FailureClassification is a set of independent flags built fresh from one
// attempt's failure text. Buckets hold the matching lines verbatim.
type FailureClassification struct {
	SelectorIssues        []string `json:"selectorIssues"`
	TextMismatches        []string `json:"textMismatches"`
	NavigationTimeout     bool     `json:"navigationTimeout"`
	StrictModeViolations  []string `json:"strictModeViolations"`
	CSSIssues             []string `json:"cssIssues"`
	URLIssues             []string `json:"urlIssues"`
	ConsentDialogDetected bool     `json:"consentDialogDetected"`
	IsLogicError          bool     `json:"isLogicError"`
}

// Empty reports whether nothing was recognized.
func (c FailureClassification) Empty() bool {
	return len(c.SelectorIssues) == 0 &&
		len(c.TextMismatches) == 0 &&
		!c.NavigationTimeout &&
		len(c.StrictModeViolations) == 0 &&
		len(c.CSSIssues) == 0 &&
		len(c.URLIssues) == 0 &&
		!c.ConsentDialogDetected &&
		!c.IsLogicError
}

// ErrorType returns the dominant failure label.
// Playwright call logs for assertion failures also contain "waiting for
// locator" lines, so the assertion-specific buckets outrank SelectorIssues.
func (c FailureClassification) ErrorType() string {
	switch {
	case len(c.StrictModeViolations) > 0:
		return ErrorTypeStrictMode
	case c.IsLogicError:
		return ErrorTypeLogic
	case c.NavigationTimeout:
		return ErrorTypeNavigation
	case len(c.URLIssues) > 0:
		return ErrorTypeURL
	case len(c.CSSIssues) > 0:
		return ErrorTypeCSS
	case len(c.TextMismatches) > 0:
		return ErrorTypeText
	case len(c.SelectorIssues) > 0:
		return ErrorTypeSelector
	case c.ConsentDialogDetected:
		return ErrorTypeConsent
	default:
		return ErrorTypeUnclassified
	}
}

// Summary renders a short human-readable description for prompts and logs.
func (c FailureClassification) Summary() string {
	if c.Empty() {
		return "Unclassified failure: no known failure pattern matched the runner output."
	}

	var parts []string
	if n := len(c.StrictModeViolations); n > 0 {
		parts = append(parts, fmt.Sprintf("%d strict mode violation(s) (locator matched multiple elements)", n))
	}
	if n := len(c.SelectorIssues); n > 0 {
		parts = append(parts, fmt.Sprintf("%d selector issue(s) (element not found or timed out)", n))
	}
	if n := len(c.TextMismatches); n > 0 {
		parts = append(parts, fmt.Sprintf("%d text assertion mismatch(es)", n))
	}
	if c.NavigationTimeout {
		parts = append(parts, "navigation timed out or failed")
	}
	if n := len(c.CSSIssues); n > 0 {
		parts = append(parts, fmt.Sprintf("%d CSS assertion failure(s)", n))
	}
	if n := len(c.URLIssues); n > 0 {
		parts = append(parts, fmt.Sprintf("%d URL assertion failure(s)", n))
	}
	if c.ConsentDialogDetected {
		parts = append(parts, "a consent or cookie dialog may be blocking the page")
	}
	if c.IsLogicError {
		parts = append(parts, "the test asserts on content that does not exist yet (logic error)")
	}
	return "Detected: " + strings.Join(parts, "; ") + "."
}

// HealingAttempt describes one retry cycle. It lives only for the cycle
// that produced it; the orchestrator copies it into the outcome history.
type HealingAttempt struct {
	AttemptNumber       int                   `json:"attemptNumber"`
	Classification      FailureClassification `json:"classification"`
	ErrorType           string                `json:"errorType"`
	RegeneratedArtifact string                `json:"-"`
	Success             bool                  `json:"success"`
	FixesApplied        []string              `json:"fixesApplied,omitempty"`
	Result              ExecutionResult       `json:"result"`
}
