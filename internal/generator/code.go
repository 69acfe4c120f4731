package generator

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrNotExecutable means the text has no test declaration.
	ErrNotExecutable = errors.New("generated text is not an executable test")

	// ErrAnalysisResponse means the provider answered with a JSON analysis
	// object instead of code.
	ErrAnalysisResponse = errors.New("generated text is a JSON analysis, not a test")
)

var (
	fencedBlock = regexp.MustCompile("(?s)```[ \\t]*([A-Za-z0-9_+-]*)[^\\n]*\\n(.*?)```")
	// test('title', async ({ page }) => ...), test.describe("title", () => ...),
	// it(`title`, function () ...). A quoted title and a callback are required
	// so prose such as "fix it (the selectors)" is not a declaration.
	testDeclaration = regexp.MustCompile(`\b(?:test|it)(?:\.(?:describe|only|skip|fixme|fail|slow|step|serial|parallel))*\s*\(\s*` +
		`(?:'(?:[^'\\\n]|\\.)*'|"(?:[^"\\\n]|\\.)*"|` + "`[^`]*`" + `)\s*,\s*` +
		`(?:\{[^}]*\}\s*,\s*)?(?:async\s*)?(?:\(|function\b|\w+\s*=>)`)
	codeStart = regexp.MustCompile(`(?m)^\s*(import\s|const\s|let\s|test(\.\w+)?\s*\(|describe\s*\(|//|/\*)`)
)

// ExtractCode strips markdown fences and surrounding prose. When several
// fenced blocks are present the first one holding a test declaration wins,
// then the longest.
func ExtractCode(text string) string {
	text = strings.TrimSpace(text)

	if blocks := fencedBlock.FindAllStringSubmatch(text, -1); len(blocks) > 0 {
		best := ""
		for _, b := range blocks {
			body := strings.TrimSpace(b[2])
			if testDeclaration.MatchString(body) {
				return body
			}
			if len(body) > len(best) {
				best = body
			}
		}
		return best
	}

	// Unfenced: drop leading prose up to the first line that looks like code.
	if loc := codeStart.FindStringIndex(text); loc != nil && loc[0] > 0 {
		text = strings.TrimSpace(text[loc[0]:])
	}
	return text
}

// LooksLikeAnalysisJSON reports whether text is a JSON object rather than
// source code.
func LooksLikeAnalysisJSON(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var obj map[string]interface{}
	return json.Unmarshal([]byte(trimmed), &obj) == nil
}

// ValidateTestSource accepts source with a recognizable test declaration
// that is not a JSON analysis object.
func ValidateTestSource(source string) error {
	if LooksLikeAnalysisJSON(source) {
		return ErrAnalysisResponse
	}
	if !testDeclaration.MatchString(source) {
		return ErrNotExecutable
	}
	return nil
}
