package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/harrison/selfheal/internal/generator"
	"github.com/harrison/selfheal/internal/models"
)

// ErrNoTestCases means the generator answer held no usable test case.
var ErrNoTestCases = errors.New("no test cases in generator response")

const testCaseSystemPrompt = `You are a QA engineer writing manual test cases for a web application.
Answer with a JSON array only. Each element has "title", "preconditions", "priority" (low, medium, high, critical),
"type" (functional, acceptance, regression, smoke, usability) and "steps", an array of {"content", "expected"}.`

// BuildTestCasePrompt asks for manual test cases covering every acceptance
// criterion of the story.
func BuildTestCasePrompt(story models.Story, storyType models.StoryType) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Story %s: %s\n", story.ID, story.Title)
	fmt.Fprintf(&sb, "Story type: %s. %s\n\n", storyType, storyType.Strategy().Directive)
	if story.Description != "" {
		sb.WriteString("## Description\n")
		sb.WriteString(story.Description)
		sb.WriteString("\n\n")
	}
	if len(story.AcceptanceCriteria) > 0 {
		sb.WriteString("## Acceptance criteria\n")
		for i, ac := range story.AcceptanceCriteria {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, ac)
		}
		sb.WriteString("\n")
	}
	if len(story.TestScenarios) > 0 {
		sb.WriteString("## Test scenarios\n")
		for _, sc := range story.TestScenarios {
			fmt.Fprintf(&sb, "- %s\n", sc)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Write one test case per acceptance criterion, plus one per listed scenario not already covered. ")
	sb.WriteString("Titles must be unique.")
	return sb.String()
}

// ParseTestCases reads the generator answer. It accepts a bare array, a
// fenced array or an object with a "testCases" field. Cases without a
// title are dropped and duplicate titles keep their first occurrence.
func ParseTestCases(text string) ([]models.TestCase, error) {
	body := strings.TrimSpace(generator.ExtractCode(text))

	var cases []models.TestCase
	if start, end := strings.Index(body, "["), strings.LastIndex(body, "]"); start >= 0 && end > start && !strings.HasPrefix(body, "{") {
		if err := json.Unmarshal([]byte(body[start:end+1]), &cases); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoTestCases, err)
		}
	} else {
		var wrapped struct {
			TestCases []models.TestCase `json:"testCases"`
		}
		if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoTestCases, err)
		}
		cases = wrapped.TestCases
	}

	seen := make(map[string]bool, len(cases))
	out := make([]models.TestCase, 0, len(cases))
	for _, tc := range cases {
		tc.Title = strings.TrimSpace(tc.Title)
		if tc.Title == "" || seen[tc.Title] {
			continue
		}
		seen[tc.Title] = true
		tc.ID = 0
		out = append(out, tc)
	}
	if len(out) == 0 {
		return nil, ErrNoTestCases
	}
	return out, nil
}

// FallbackTestCases derives one case per acceptance criterion when no
// generator is configured.
func FallbackTestCases(story models.Story) []models.TestCase {
	criteria := story.AcceptanceCriteria
	if len(criteria) == 0 {
		criteria = []string{story.Title}
	}
	out := make([]models.TestCase, 0, len(criteria))
	seen := make(map[string]bool)
	for i, ac := range criteria {
		title := fmt.Sprintf("%s AC%d: %s", story.ID, i+1, ac)
		if len(title) > 250 {
			title = title[:250]
		}
		if seen[title] {
			continue
		}
		seen[title] = true
		out = append(out, models.TestCase{
			Title:    title,
			Priority: "medium",
			Type:     "acceptance",
			Steps: []models.TestStep{
				{Content: "Open the page under test", Expected: "The page loads"},
				{Content: "Check: " + ac, Expected: "The criterion holds"},
			},
		})
	}
	return out
}
