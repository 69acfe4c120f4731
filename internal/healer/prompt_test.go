package healer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harrison/selfheal/internal/models"
)

func fixesOf(ds []Directive) []string {
	var out []string
	for _, d := range ds {
		out = append(out, d.Fix)
	}
	return out
}

func TestDirectives(t *testing.T) {
	tests := []struct {
		name  string
		class models.FailureClassification
		want  []string
	}{
		{
			name: "unclassified",
			want: []string{"rebuilt test from acceptance criteria"},
		},
		{
			name:  "strict mode",
			class: models.FailureClassification{StrictModeViolations: []string{"strict mode violation"}},
			want:  []string{"narrowed multi-match locators"},
		},
		{
			name: "several flags in fixed order",
			class: models.FailureClassification{
				URLIssues:             []string{"toHaveURL"},
				CSSIssues:             []string{"toHaveCSS"},
				TextMismatches:        []string{"Expected string"},
				NavigationTimeout:     true,
				ConsentDialogDetected: true,
			},
			want: []string{
				"increased navigation timeout",
				"dismissed consent dialog",
				"relaxed text assertions",
				"dropped brittle CSS assertions",
				"relaxed URL assertions",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fixesOf(Directives(tt.class)))
		})
	}
}

func TestBuildPromptOmitsSelectorSectionWithoutIssues(t *testing.T) {
	in := sampleInput()
	in.Classification = models.FailureClassification{NavigationTimeout: true}
	prompt := BuildPrompt(in, Directives(in.Classification))
	assert.NotContains(t, prompt, "do not reuse")
	assert.Contains(t, prompt, "navigation timed out")
}

func TestBuildPromptCredentials(t *testing.T) {
	in := sampleInput()
	in.Credentials = models.Credentials{Username: "qa", Password: "secret"}
	prompt := BuildPrompt(in, Directives(in.Classification))
	assert.Contains(t, prompt, "process.env.SUT_USERNAME")
	assert.NotContains(t, prompt, "secret")
}

func TestBuildPromptTruncatesFailureOutput(t *testing.T) {
	in := sampleInput()
	in.RawFailure = strings.Repeat("x", maxFailureChars*2) + "\n1 failed"
	prompt := BuildPrompt(in, nil)
	assert.Contains(t, prompt, "1 failed")
	assert.Less(t, len(prompt), maxFailureChars*2)
}

func TestStrictPrompt(t *testing.T) {
	p := StrictPrompt("original prompt", errors.New("no test declaration"))
	assert.True(t, strings.HasPrefix(p, "Your previous answer was rejected: no test declaration."))
	assert.True(t, strings.HasSuffix(p, "original prompt"))
}

func TestStructuralTest(t *testing.T) {
	story := models.Story{
		ID:                 "ED-7",
		Title:              `Add "Spring Sale" banner`,
		AcceptanceCriteria: []string{`Banner reads "Spring Sale"`, "Banner links to /sale"},
	}
	src := StructuralTest(story, "https://www.edx.org/?a='b'")

	assert.True(t, strings.HasPrefix(src, playwrightImport))
	assert.Contains(t, src, `const TARGET_URL = "https://www.edx.org/?a='b'";`)
	assert.NotContains(t, src, "criterion 1", "criteria that name no element get no test")
	assert.Contains(t, src, `criterion 2 has a link on the page: Banner links to /sale`)
	assert.Contains(t, src, `await expect(page.getByRole("link").first()).toBeAttached();`)
	assert.Equal(t, 3, strings.Count(src, "  test("))
	assert.NotContains(t, src, "toHaveText")
}

func TestCriterionLandmark(t *testing.T) {
	tests := []struct {
		criterion string
		wantRole  string
	}{
		{criterion: "A Sign up button appears in the hero", wantRole: "button"},
		{criterion: "The banner links to the sale page", wantRole: "link"},
		{criterion: "New item in the main navigation", wantRole: "navigation"},
		{criterion: "Partner logos are shown", wantRole: "img"},
		{criterion: "Footer shows the new address", wantRole: "contentinfo"},
		{criterion: "Price reads $49", wantRole: ""},
	}
	for _, tt := range tests {
		l, ok := criterionLandmark(tt.criterion)
		assert.Equal(t, tt.wantRole != "", ok, tt.criterion)
		assert.Equal(t, tt.wantRole, l.role, tt.criterion)
	}
}

func TestEnsurePlaywrightImport(t *testing.T) {
	assert.Equal(t, "import { test } from '@playwright/test';", EnsurePlaywrightImport("import { test } from '@playwright/test';"))
	assert.Equal(t, playwrightImport+"\n\ntest('x', () => {});", EnsurePlaywrightImport("test('x', () => {});"))
}
