// Package classifier labels Playwright failure output.
//
// Classification is a pure function over the raw combined stdout/stderr of
// one test run. It never errors: output that matches nothing yields an empty
// FailureClassification, which callers treat as an unclassified but still
// retryable failure.
package classifier

import (
	"regexp"
	"strings"

	"github.com/harrison/selfheal/internal/models"
)

// Bucket identifies the FailureClassification field a pattern feeds.
type Bucket int

const (
	BucketSelector Bucket = iota
	BucketText
	BucketNavigation
	BucketStrictMode
	BucketCSS
	BucketURL
	BucketConsent
)

// String returns the bucket name used in logs.
func (b Bucket) String() string {
	switch b {
	case BucketSelector:
		return "selector"
	case BucketText:
		return "text"
	case BucketNavigation:
		return "navigation"
	case BucketStrictMode:
		return "strict-mode"
	case BucketCSS:
		return "css"
	case BucketURL:
		return "url"
	case BucketConsent:
		return "consent"
	default:
		return "unknown"
	}
}

// FailurePattern is one line-scoped rule of the classifier.
type FailurePattern struct {
	Name   string
	Bucket Bucket
	Regex  *regexp.Regexp
}

// KnownPatterns is the ordered pattern table. A line lands in a bucket at
// most once even when several of that bucket's patterns match it.
var KnownPatterns = []FailurePattern{
	// Selector timeouts and missing elements
	{Name: "waiting-for-locator", Bucket: BucketSelector, Regex: regexp.MustCompile(`(?i)waiting for (locator|selector|getBy\w+)\b`)},
	{Name: "locator-action-timeout", Bucket: BucketSelector, Regex: regexp.MustCompile(`(?i)locator\.\w+: Timeout \d+ms exceeded`)},
	{Name: "elements-not-found", Bucket: BucketSelector, Regex: regexp.MustCompile(`(?i)element\(s\) not found`)},
	{Name: "no-element-matches", Bucket: BucketSelector, Regex: regexp.MustCompile(`(?i)no (element|node)s? (found|matches|matching)`)},
	{Name: "selector-timeout-error", Bucket: BucketSelector, Regex: regexp.MustCompile(`TimeoutError: .*(locator|selector)`)},

	// Text assertions
	{Name: "expected-string", Bucket: BucketText, Regex: regexp.MustCompile(`^\s*(Expected|Received) (string|substring|pattern):`)},
	{Name: "text-matcher", Bucket: BucketText, Regex: regexp.MustCompile(`\.(toHaveText|toContainText)\(`)},

	// Navigation
	{Name: "goto-failure", Bucket: BucketNavigation, Regex: regexp.MustCompile(`page\.goto: `)},
	{Name: "net-error", Bucket: BucketNavigation, Regex: regexp.MustCompile(`net::ERR_[A-Z_]+|NS_ERROR_[A-Z_]+`)},
	{Name: "navigation-wait", Bucket: BucketNavigation, Regex: regexp.MustCompile(`(?i)waiting for navigation|navigation timeout|page\.waitForURL: Timeout`)},

	// Strict mode multi-match
	{Name: "strict-mode", Bucket: BucketStrictMode, Regex: regexp.MustCompile(`(?i)strict mode violation`)},

	// CSS and URL assertions
	{Name: "css-matcher", Bucket: BucketCSS, Regex: regexp.MustCompile(`\.toHaveCSS\(`)},
	{Name: "url-matcher", Bucket: BucketURL, Regex: regexp.MustCompile(`\.toHaveURL\(`)},

	// Consent and cookie overlays
	{Name: "consent-keyword", Bucket: BucketConsent, Regex: regexp.MustCompile(`(?i)cookie consent|cookie banner|accept all cookies|onetrust|cookiebot|didomi|trustarc|gdpr|consent dialog`)},
	{Name: "pointer-intercepted", Bucket: BucketConsent, Regex: regexp.MustCompile(`(?i)intercepts pointer events`)},
}

// notFoundBackstop spans line breaks so wrapped error blocks still count.
var notFoundBackstop = regexp.MustCompile(`(?i)element\(s\)\s+not\s+found`)

// Hint carries the story context the logic-error heuristic needs.
type Hint struct {
	Type         models.StoryType
	ContentTerms []string
}

// HintFor builds a Hint from a story whose type was already inferred.
func HintFor(story models.Story, storyType models.StoryType) Hint {
	return Hint{Type: storyType, ContentTerms: story.ContentTerms()}
}

// Classify scans raw runner output line by line and returns the buckets that
// matched. Matching lines are kept verbatim and in order, without dedupe.
func Classify(raw string, hint Hint) models.FailureClassification {
	var c models.FailureClassification
	if strings.TrimSpace(raw) == "" {
		return c
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		for _, b := range matchedBuckets(line) {
			switch b {
			case BucketSelector:
				c.SelectorIssues = append(c.SelectorIssues, line)
			case BucketText:
				c.TextMismatches = append(c.TextMismatches, line)
			case BucketNavigation:
				c.NavigationTimeout = true
			case BucketStrictMode:
				c.StrictModeViolations = append(c.StrictModeViolations, line)
			case BucketCSS:
				c.CSSIssues = append(c.CSSIssues, line)
			case BucketURL:
				c.URLIssues = append(c.URLIssues, line)
			case BucketConsent:
				c.ConsentDialogDetected = true
			}
		}
	}

	if len(c.SelectorIssues) == 0 {
		if m := notFoundBackstop.FindString(raw); m != "" {
			c.SelectorIssues = append(c.SelectorIssues, strings.Join(strings.Fields(m), " "))
		}
	}

	c.IsLogicError = isLogicError(c, hint)
	return c
}

// matchedBuckets returns each bucket with at least one matching pattern,
// in table order.
func matchedBuckets(line string) []Bucket {
	var out []Bucket
	seen := make(map[Bucket]bool)
	for i := range KnownPatterns {
		p := &KnownPatterns[i]
		if seen[p.Bucket] {
			continue
		}
		if p.Regex.MatchString(line) {
			seen[p.Bucket] = true
			out = append(out, p.Bucket)
		}
	}
	return out
}

// isLogicError reports whether an ADD story's test asserted on the new
// content itself. Only text and selector failure lines are searched.
func isLogicError(c models.FailureClassification, hint Hint) bool {
	if hint.Type != models.StoryAdd || len(hint.ContentTerms) == 0 {
		return false
	}
	lines := make([]string, 0, len(c.TextMismatches)+len(c.SelectorIssues))
	lines = append(lines, c.TextMismatches...)
	lines = append(lines, c.SelectorIssues...)

	for _, term := range hint.ContentTerms {
		needle := strings.ToLower(strings.TrimSpace(term))
		if needle == "" {
			continue
		}
		for _, line := range lines {
			if strings.Contains(strings.ToLower(line), needle) {
				return true
			}
		}
	}
	return false
}
