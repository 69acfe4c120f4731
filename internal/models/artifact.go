package models

import (
	"regexp"
	"strings"
)

// TestArtifact is a generated runnable test script tied to one story.
type TestArtifact struct {
	StoryID  string `json:"storyId"`
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Source   string `json:"-"`
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// ArtifactFilename returns the unique spec filename for a story id.
// "ED-42" becomes "ed-42.spec.ts".
func ArtifactFilename(storyID string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(storyID), "-"), "-")
	if slug == "" {
		slug = "story"
	}
	return slug + ".spec.ts"
}

// TargetCandidate is one URL considered during target resolution.
type TargetCandidate struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// TargetResolution is the ordered candidate list with a chosen pointer.
// Chosen indexes Candidates; Placeholder is set only when every other
// candidate was exhausted.
type TargetResolution struct {
	Candidates  []TargetCandidate `json:"candidates"`
	Chosen      int               `json:"chosen"`
	Placeholder bool              `json:"placeholder"`
}

// URL returns the chosen candidate's URL.
func (r TargetResolution) URL() string {
	if r.Chosen < 0 || r.Chosen >= len(r.Candidates) {
		return ""
	}
	return r.Candidates[r.Chosen].URL
}

// Source returns the name of the strategy that produced the chosen URL.
func (r TargetResolution) Source() string {
	if r.Chosen < 0 || r.Chosen >= len(r.Candidates) {
		return ""
	}
	return r.Candidates[r.Chosen].Source
}

// Credentials are login details for the system under test.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"-"`
	Source   string `json:"source,omitempty"`
}

// Empty reports whether no username was resolved.
func (c Credentials) Empty() bool {
	return c.Username == ""
}

// TestStep is one step of a manual test case.
type TestStep struct {
	Content  string `json:"content"`
	Expected string `json:"expected"`
}

// TestCase is a generated manual test case, as pushed to the test-case tracker.
type TestCase struct {
	ID            int        `json:"id,omitempty"`
	Title         string     `json:"title"`
	Preconditions string     `json:"preconditions,omitempty"`
	Steps         []TestStep `json:"steps"`
	Priority      string     `json:"priority,omitempty"`
	Type          string     `json:"type,omitempty"`
}

// Text flattens the test case for free-text scanning.
func (tc TestCase) Text() string {
	var sb strings.Builder
	sb.WriteString(tc.Title)
	sb.WriteString("\n")
	sb.WriteString(tc.Preconditions)
	for _, s := range tc.Steps {
		sb.WriteString("\n")
		sb.WriteString(s.Content)
		sb.WriteString("\n")
		sb.WriteString(s.Expected)
	}
	return sb.String()
}
