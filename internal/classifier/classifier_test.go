package classifier

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/harrison/selfheal/internal/models"
)

const strictModeOutput = `  1) [chromium] › ed-42.spec.ts:5:3 › course page shows enroll button

    Error: locator.click: Error: strict mode violation: getByRole('button', { name: 'Enroll' }) resolved to 2 elements:
        1) <button class="btn">Enroll</button> aka getByRole('button', { name: 'Enroll' }).first()
        2) <button class="btn-alt">Enroll now</button> aka getByRole('button', { name: 'Enroll now' })

    Call log:
      - waiting for getByRole('button', { name: 'Enroll' })

  1 failed
`

const textMismatchOutput = `    Error: expect(locator).toHaveText(expected) failed

    Locator: locator('h1')
    Expected string: "Intro to Quantum Computing"
    Received string: "Course Catalog"

    Call log:
      - expect.toHaveText with timeout 5000ms
      - waiting for locator('h1')

      12 |   await expect(page.locator('h1')).toHaveText('Intro to Quantum Computing');
`

func TestClassifyStrictMode(t *testing.T) {
	c := Classify(strictModeOutput, Hint{})

	if len(c.StrictModeViolations) != 1 {
		t.Fatalf("StrictModeViolations = %v, want 1 line", c.StrictModeViolations)
	}
	if !strings.Contains(c.StrictModeViolations[0], "resolved to 2 elements") {
		t.Errorf("strict mode line not kept verbatim: %q", c.StrictModeViolations[0])
	}
	if got := c.ErrorType(); got != models.ErrorTypeStrictMode {
		t.Errorf("ErrorType() = %q, want %q", got, models.ErrorTypeStrictMode)
	}
}

func TestClassifyStrictModeAnyElementCount(t *testing.T) {
	for _, k := range []int{2, 3, 17} {
		raw := fmt.Sprintf("  3 passed\nError: strict mode violation: locator('a.card') resolved to %d elements:\n  1 failed", k)
		c := Classify(raw, Hint{})
		if len(c.StrictModeViolations) != 1 {
			t.Errorf("k=%d: StrictModeViolations = %v", k, c.StrictModeViolations)
		}
		if c.ErrorType() != models.ErrorTypeStrictMode {
			t.Errorf("k=%d: ErrorType() = %q", k, c.ErrorType())
		}
	}
}

func TestClassifyBuckets(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantType string
		check    func(t *testing.T, c models.FailureClassification)
	}{
		{
			name:     "locator timeout",
			raw:      "Error: Timeout 30000ms exceeded while waiting for locator('#buy-now')",
			wantType: models.ErrorTypeSelector,
			check: func(t *testing.T, c models.FailureClassification) {
				if len(c.SelectorIssues) != 1 {
					t.Errorf("SelectorIssues = %v", c.SelectorIssues)
				}
			},
		},
		{
			name:     "text mismatch outranks call log selector lines",
			raw:      textMismatchOutput,
			wantType: models.ErrorTypeText,
			check: func(t *testing.T, c models.FailureClassification) {
				if len(c.TextMismatches) < 2 {
					t.Errorf("TextMismatches = %v, want expected and received lines", c.TextMismatches)
				}
			},
		},
		{
			name:     "navigation failure",
			raw:      "Error: page.goto: net::ERR_NAME_NOT_RESOLVED at https://staging.invalid/\nCall log:\n  - navigating to \"https://staging.invalid/\", waiting until \"load\"",
			wantType: models.ErrorTypeNavigation,
			check: func(t *testing.T, c models.FailureClassification) {
				if !c.NavigationTimeout {
					t.Error("NavigationTimeout should be set")
				}
			},
		},
		{
			name:     "css assertion",
			raw:      "    Error: expect(locator).toHaveCSS(expected) failed\n    Expected string: \"rgb(0, 0, 0)\"",
			wantType: models.ErrorTypeCSS,
		},
		{
			name:     "url assertion",
			raw:      "    Error: expect(page).toHaveURL(expected) failed\n    Expected pattern: /checkout/",
			wantType: models.ErrorTypeURL,
		},
		{
			name:     "consent overlay",
			raw:      "  - <div id=\"onetrust-consent-sdk\">…</div> intercepts pointer events\n  - retrying click action",
			wantType: models.ErrorTypeConsent,
			check: func(t *testing.T, c models.FailureClassification) {
				if !c.ConsentDialogDetected {
					t.Error("ConsentDialogDetected should be set")
				}
			},
		},
		{
			name:     "nothing recognized",
			raw:      "Error: Cannot find module '@playwright/test'",
			wantType: models.ErrorTypeUnclassified,
			check: func(t *testing.T, c models.FailureClassification) {
				if !c.Empty() {
					t.Errorf("expected empty classification, got %+v", c)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.raw, Hint{})
			if got := c.ErrorType(); got != tt.wantType {
				t.Errorf("ErrorType() = %q, want %q (classification %+v)", got, tt.wantType, c)
			}
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestClassifyKeepsDuplicateLines(t *testing.T) {
	raw := "waiting for locator('#a')\nwaiting for locator('#a')\n"
	c := Classify(raw, Hint{})
	if len(c.SelectorIssues) != 2 {
		t.Errorf("SelectorIssues = %v, want both lines", c.SelectorIssues)
	}
}

func TestClassifyLineLandsInBucketOnce(t *testing.T) {
	raw := "locator.click: Timeout 5000ms exceeded waiting for locator('#a')"
	c := Classify(raw, Hint{})
	if len(c.SelectorIssues) != 1 {
		t.Errorf("SelectorIssues = %v, want one entry", c.SelectorIssues)
	}
}

func TestClassifyNotFoundBackstop(t *testing.T) {
	raw := "Error: expect(locator).toBeVisible() failed\nReceived: element(s)\n    not found"
	c := Classify(raw, Hint{})

	want := []string{"element(s) not found"}
	if diff := cmp.Diff(want, c.SelectorIssues); diff != "" {
		t.Errorf("SelectorIssues mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyBackstopSkippedWhenLinesMatched(t *testing.T) {
	raw := "Received: element(s) not found"
	c := Classify(raw, Hint{})
	if len(c.SelectorIssues) != 1 || c.SelectorIssues[0] != raw {
		t.Errorf("SelectorIssues = %v, want only the verbatim line", c.SelectorIssues)
	}
}

func TestClassifyIdempotent(t *testing.T) {
	hint := Hint{Type: models.StoryAdd, ContentTerms: []string{"Intro to Quantum Computing"}}
	for _, raw := range []string{strictModeOutput, textMismatchOutput, "", "1 passed (5s)"} {
		first := Classify(raw, hint)
		second := Classify(raw, hint)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("classification not idempotent (-first +second):\n%s", diff)
		}
	}
}

func TestClassifyLogicError(t *testing.T) {
	terms := []string{"Intro to Quantum Computing"}

	tests := []struct {
		name string
		hint Hint
		raw  string
		want bool
	}{
		{name: "add story asserting new content", hint: Hint{Type: models.StoryAdd, ContentTerms: terms}, raw: textMismatchOutput, want: true},
		{name: "verify story never flags", hint: Hint{Type: models.StoryVerify, ContentTerms: terms}, raw: textMismatchOutput, want: false},
		{name: "remove story never flags", hint: Hint{Type: models.StoryRemove, ContentTerms: terms}, raw: textMismatchOutput, want: false},
		{name: "add story without terms", hint: Hint{Type: models.StoryAdd}, raw: textMismatchOutput, want: false},
		{name: "term only outside failure lines", hint: Hint{Type: models.StoryAdd, ContentTerms: terms}, raw: "  ✘ Intro to Quantum Computing page loads\n  1 failed", want: false},
		{name: "selector line mentions term", hint: Hint{Type: models.StoryAdd, ContentTerms: terms}, raw: "waiting for getByText('intro to quantum computing')", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.raw, tt.hint)
			if c.IsLogicError != tt.want {
				t.Errorf("IsLogicError = %v, want %v", c.IsLogicError, tt.want)
			}
			if tt.want && c.ErrorType() != models.ErrorTypeLogic {
				t.Errorf("ErrorType() = %q, want %q", c.ErrorType(), models.ErrorTypeLogic)
			}
		})
	}
}

func TestHintFor(t *testing.T) {
	story := models.Story{ID: "ED-7", Title: `Add "Spring Sale" banner`}
	h := HintFor(story, story.Type())
	if h.Type != models.StoryAdd {
		t.Errorf("Type = %v, want ADD", h.Type)
	}
	if diff := cmp.Diff([]string{"Spring Sale"}, h.ContentTerms); diff != "" {
		t.Errorf("ContentTerms mismatch (-want +got):\n%s", diff)
	}
}

func TestBucketString(t *testing.T) {
	if BucketStrictMode.String() != "strict-mode" || Bucket(99).String() != "unknown" {
		t.Error("unexpected bucket names")
	}
}
