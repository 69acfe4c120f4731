package models

import (
	"regexp"
	"strings"
)

// Story is a requirement record fetched from the story-tracking system.
type Story struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	URLs               []string `json:"urls,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
	TestScenarios      []string `json:"testScenarios,omitempty"`
	Status             string   `json:"status,omitempty"`
	IssueType          string   `json:"issueType,omitempty"`
	Labels             []string `json:"labels,omitempty"`
}

// StoryType classifies what a story changes on the system under test.
// It is computed once per story via InferStoryType and passed down.
type StoryType int

const (
	StoryVerify StoryType = iota // Content already exists and must be checked
	StoryAdd                     // New content, not yet live
	StoryModify                  // Existing content changes
	StoryRemove                  // Content goes away
)

// String returns the upper-case label for the story type.
func (t StoryType) String() string {
	switch t {
	case StoryAdd:
		return "ADD"
	case StoryModify:
		return "MODIFY"
	case StoryRemove:
		return "REMOVE"
	default:
		return "VERIFY"
	}
}

// MarshalText renders the story type as its label.
func (t StoryType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// VerificationStrategy describes how generated tests must assert on a story.
type VerificationStrategy struct {
	Name        string // Short identifier, e.g. "structural"
	Directive   string // Instruction embedded in generation prompts
	AssertsText bool   // Whether tests may assert on the story's content
}

// Strategy maps every story type to its verification strategy.
func (t StoryType) Strategy() VerificationStrategy {
	switch t {
	case StoryAdd:
		return VerificationStrategy{
			Name:        "structural",
			Directive:   "The content described by this story is NOT live yet. Only assert that the page loads and that the structural containers where the content will appear exist and are visible. Never assert on the new text itself.",
			AssertsText: false,
		}
	case StoryModify:
		return VerificationStrategy{
			Name:        "changed-content",
			Directive:   "The story modifies existing content. Assert on the updated values described in the acceptance criteria and locate elements by stable roles or test ids.",
			AssertsText: true,
		}
	case StoryRemove:
		return VerificationStrategy{
			Name:        "absence",
			Directive:   "The story removes content. Assert that the removed element or text is absent (toHaveCount(0) or not.toBeVisible()) while the rest of the page still loads.",
			AssertsText: false,
		}
	default:
		return VerificationStrategy{
			Name:        "existing-content",
			Directive:   "The content already exists. Assert on its visibility and text exactly as described in the acceptance criteria.",
			AssertsText: true,
		}
	}
}

var (
	removeKeywords = regexp.MustCompile(`(?i)\b(remove|delete|hide|deprecate|retire|drop|take down|get rid of)\b`)
	addKeywords    = regexp.MustCompile(`(?i)\b(add|create|introduce|new|launch|implement|build|publish)\b`)
	modifyKeywords = regexp.MustCompile(`(?i)\b(update|change|modify|rename|replace|edit|adjust|redesign|move|fix)\b`)
	quotedPhrase   = regexp.MustCompile(`["“']([^"”']{3,80})["”']`)
)

// InferStoryType derives the story type from its title first, then its description.
// Remove wins over Add wins over Modify so "remove the new banner" is a removal.
func InferStoryType(title, description string) StoryType {
	for _, text := range []string{title, description} {
		switch {
		case removeKeywords.MatchString(text):
			return StoryRemove
		case addKeywords.MatchString(text):
			return StoryAdd
		case modifyKeywords.MatchString(text):
			return StoryModify
		}
	}
	return StoryVerify
}

// Type infers the story's type from its title and description.
func (s Story) Type() StoryType {
	return InferStoryType(s.Title, s.Description)
}

// ContentTerms returns the quoted phrases in the title and description.
// They name the concrete content a story introduces or changes.
func (s Story) ContentTerms() []string {
	seen := make(map[string]bool)
	var terms []string
	for _, text := range []string{s.Title, s.Description} {
		for _, m := range quotedPhrase.FindAllStringSubmatch(text, -1) {
			term := strings.TrimSpace(m[1])
			key := strings.ToLower(term)
			if term == "" || seen[key] {
				continue
			}
			seen[key] = true
			terms = append(terms, term)
		}
	}
	return terms
}

// Text returns the title and description joined for free-text scanning.
func (s Story) Text() string {
	return s.Title + "\n" + s.Description
}
