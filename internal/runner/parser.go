package runner

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/harrison/selfheal/internal/models"
)

// Parser turns one form of runner output into an ExecutionResult.
// Each implementation is a versioned grammar so format drift shows up as a
// failing unit test instead of silently wrong counts.
type Parser interface {
	Name() string
	Parse(data []byte) (models.ExecutionResult, error)
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// StripANSI removes terminal color and cursor sequences.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// TextGrammarV1 parses the list reporter's console summary:
// "<n> passed", "<n> failed", "<n> flaky", "<n> skipped", "(<duration>)",
// plus per-test "✓ / ✘ / -" lines. Passed and failed counts are taken
// literally; flaky and interrupted counts go to their own fields.
type TextGrammarV1 struct{}

var (
	passedCount      = regexp.MustCompile(`\b(\d+) passed\b`)
	failedCount      = regexp.MustCompile(`\b(\d+) failed\b`)
	flakyCount       = regexp.MustCompile(`\b(\d+) flaky\b`)
	skippedCount     = regexp.MustCompile(`\b(\d+) skipped\b`)
	interruptedCount = regexp.MustCompile(`\b(\d+) interrupted\b`)
	didNotRunCount   = regexp.MustCompile(`\b(\d+) did not run\b`)
	durationSuffix   = regexp.MustCompile(`\((\d+(?:\.\d+)?)(ms|s|m|h)\)`)
	testLine         = regexp.MustCompile(`^\s*(✓|✔|ok|✘|✗|x|-|°)\s+\d+\s+(.*›.*?)(?:\s+\((\d+(?:\.\d+)?)(ms|s|m|h)\))?\s*$`)
)

// Name returns the grammar identifier.
func (TextGrammarV1) Name() string { return "text-v1" }

// Parse extracts counts from the last occurrence of each summary phrase.
func (TextGrammarV1) Parse(data []byte) (models.ExecutionResult, error) {
	text := StripANSI(string(data))
	var r models.ExecutionResult

	r.Passed = lastCount(passedCount, text)
	r.Failed = lastCount(failedCount, text)
	r.Flaky = lastCount(flakyCount, text)
	r.Interrupted = lastCount(interruptedCount, text)
	r.Skipped = lastCount(skippedCount, text) + lastCount(didNotRunCount, text)
	r.DurationSeconds = summaryDuration(text)
	r.Tests = parseTestLines(text)
	r.Normalize()

	if r.Empty() && strings.TrimSpace(text) != "" {
		return r, ErrUnrecognizedOutput
	}
	return r, nil
}

func lastCount(re *regexp.Regexp, text string) int {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(matches[len(matches)-1][1])
	return n
}

// summaryDuration prefers a duration on a summary line ("1 passed (5s)")
// and falls back to the last parenthesized duration in the output.
func summaryDuration(text string) float64 {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if !passedCount.MatchString(line) && !failedCount.MatchString(line) && !flakyCount.MatchString(line) && !skippedCount.MatchString(line) {
			continue
		}
		if m := durationSuffix.FindStringSubmatch(line); m != nil {
			return toSeconds(m[1], m[2])
		}
	}
	all := durationSuffix.FindAllStringSubmatch(text, -1)
	if len(all) == 0 {
		return 0
	}
	last := all[len(all)-1]
	return toSeconds(last[1], last[2])
}

func toSeconds(value, unit string) float64 {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	switch unit {
	case "ms":
		return v / 1000
	case "m":
		return v * 60
	case "h":
		return v * 3600
	default:
		return v
	}
}

func parseTestLines(text string) []models.TestCaseResult {
	var tests []models.TestCaseResult
	for _, line := range strings.Split(text, "\n") {
		m := testLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		tc := models.TestCaseResult{Title: lastSegment(m[2])}
		switch m[1] {
		case "✓", "✔", "ok":
			tc.Status = models.TestPassed
		case "✘", "✗", "x":
			tc.Status = models.TestFailed
		case "°":
			tc.Status = models.TestFlaky
		default:
			tc.Status = models.TestSkipped
		}
		if m[3] != "" {
			tc.DurationMs = int64(math.Round(toSeconds(m[3], m[4]) * 1000))
		}
		tests = append(tests, tc)
	}
	return tests
}

// lastSegment drops the "[project] › file:line:col ›" prefix of a test line.
func lastSegment(s string) string {
	parts := strings.Split(s, "›")
	return strings.TrimSpace(parts[len(parts)-1])
}

// JSONReporter parses the report written by Playwright's json reporter.
type JSONReporter struct{}

type jsonReport struct {
	Suites []jsonSuite `json:"suites"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Stats struct {
		Duration   float64 `json:"duration"`
		Expected   int     `json:"expected"`
		Unexpected int     `json:"unexpected"`
		Skipped    int     `json:"skipped"`
		Flaky      int     `json:"flaky"`
	} `json:"stats"`
}

type jsonSuite struct {
	Title  string      `json:"title"`
	File   string      `json:"file"`
	Specs  []jsonSpec  `json:"specs"`
	Suites []jsonSuite `json:"suites"`
}

type jsonSpec struct {
	Title string `json:"title"`
	Tests []struct {
		ProjectName string `json:"projectName"`
		Status      string `json:"status"`
		Results     []struct {
			Status   string  `json:"status"`
			Duration float64 `json:"duration"`
		} `json:"results"`
	} `json:"tests"`
}

// Name returns the grammar identifier.
func (JSONReporter) Name() string { return "json" }

// Parse reads stats for the counts and walks suites for per-test results.
func (JSONReporter) Parse(data []byte) (models.ExecutionResult, error) {
	var rep jsonReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return models.ExecutionResult{}, fmt.Errorf("failed to parse JSON report: %w", err)
	}

	r := models.ExecutionResult{
		Passed:          rep.Stats.Expected,
		Failed:          rep.Stats.Unexpected,
		Flaky:           rep.Stats.Flaky,
		Skipped:         rep.Stats.Skipped,
		DurationSeconds: rep.Stats.Duration / 1000,
	}
	for _, s := range rep.Suites {
		r.Tests = append(r.Tests, walkSuite(s, nil, true)...)
	}
	r.Normalize()

	if r.Empty() {
		if len(rep.Errors) > 0 {
			return r, fmt.Errorf("%w: %s", ErrUnrecognizedOutput, rep.Errors[0].Message)
		}
		return r, ErrUnrecognizedOutput
	}
	return r, nil
}

// walkSuite flattens nested describe blocks. The file-level suite title is
// left out of test titles.
func walkSuite(s jsonSuite, path []string, fileLevel bool) []models.TestCaseResult {
	if !fileLevel && s.Title != "" {
		path = append(path, s.Title)
	}

	var out []models.TestCaseResult
	for _, spec := range s.Specs {
		title := strings.Join(append(append([]string{}, path...), spec.Title), " › ")
		for _, t := range spec.Tests {
			tc := models.TestCaseResult{Title: title, Status: jsonStatus(t.Status)}
			if n := len(t.Results); n > 0 {
				tc.DurationMs = int64(math.Round(t.Results[n-1].Duration))
			}
			out = append(out, tc)
		}
	}
	for _, child := range s.Suites {
		out = append(out, walkSuite(child, path, false)...)
	}
	return out
}

func jsonStatus(s string) string {
	switch s {
	case "expected":
		return models.TestPassed
	case "unexpected":
		return models.TestFailed
	case "flaky":
		return models.TestFlaky
	default:
		return models.TestSkipped
	}
}

// ParseExecution prefers the JSON report and falls back to the console
// grammar when the report is missing or unusable.
func ParseExecution(ex *Execution) (models.ExecutionResult, error) {
	if len(ex.Report) > 0 {
		if r, err := (JSONReporter{}).Parse(ex.Report); err == nil {
			return r, nil
		}
	}
	return TextGrammarV1{}.Parse([]byte(ex.Output))
}
