package inspector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/selfheal/internal/config"
)

const rawSnapshot = `{
  "url": "https://www.edx.org/",
  "title": "edX | Online courses",
  "headings": [{"level": 1, "text": "Learn without limits"}],
  "landmarks": ["header", "nav", "main"],
  "elements": [
    {"tag": "button", "role": "button", "name": "Accept all cookies", "text": "Accept all cookies", "id": "onetrust-accept-btn-handler"},
    {"tag": "input", "role": "searchbox", "name": "What do you want to learn?", "text": "", "id": "search-12345", "type": "search"},
    {"tag": "a", "role": "link", "name": "Sign in", "text": "Sign in", "testId": "header-signin", "href": "/login"},
    {"tag": "div", "role": "", "name": "", "text": ""}
  ],
  "consentDialog": true
}`

func TestParseSnapshot(t *testing.T) {
	s, err := ParseSnapshot(rawSnapshot)
	require.NoError(t, err)
	assert.Equal(t, "edX | Online courses", s.Title)
	assert.True(t, s.ConsentDialog)
	require.Len(t, s.Elements, 4)
	assert.Equal(t, "header-signin", s.Elements[2].TestID)

	_, err = ParseSnapshot("undefined")
	assert.Error(t, err)
}

func TestSelectors(t *testing.T) {
	tests := []struct {
		name string
		el   Element
		want []string
	}{
		{
			name: "test id first",
			el:   Element{Tag: "a", Role: "link", Name: "Sign in", Text: "Sign in", TestID: "header-signin"},
			want: []string{
				"page.getByTestId('header-signin')",
				"page.getByRole('link', { name: 'Sign in' })",
				"page.getByText('Sign in', { exact: true })",
			},
		},
		{
			name: "generated id skipped, label used",
			el:   Element{Tag: "input", Role: "searchbox", Name: "What do you want to learn?", ID: "search-12345"},
			want: []string{
				"page.getByRole('searchbox', { name: 'What do you want to learn?' })",
				"page.getByLabel('What do you want to learn?')",
			},
		},
		{
			name: "stable id escaped",
			el:   Element{Tag: "button", ID: "cart.open"},
			want: []string{`page.locator('#cart\\.open')`},
		},
		{
			name: "quotes escaped",
			el:   Element{Tag: "button", Role: "button", Name: "Don't miss out"},
			want: []string{`page.getByRole('button', { name: 'Don\'t miss out' })`},
		},
		{
			name: "nothing usable",
			el:   Element{Tag: "div"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Selectors(tt.el))
		})
	}
}

func TestRender(t *testing.T) {
	s, err := ParseSnapshot(rawSnapshot)
	require.NoError(t, err)

	out := Render(s)
	assert.True(t, strings.HasPrefix(out, "URL: https://www.edx.org/\nTitle: edX | Online courses\n"))
	assert.Contains(t, out, "Landmarks: header, nav, main")
	assert.Contains(t, out, "Consent dialog: a cookie or consent banner is visible")
	assert.Contains(t, out, "- h1 Learn without limits")
	assert.Contains(t, out, `- button "Accept all cookies": page.getByRole('button', { name: 'Accept all cookies' }) | page.locator('#onetrust-accept-btn-handler')`)
	assert.Contains(t, out, `- link "Sign in": page.getByTestId('header-signin')`)
	assert.NotContains(t, out, "- div")
	assert.Empty(t, Render(nil))
}

func TestScriptEmbedsElementCap(t *testing.T) {
	assert.Contains(t, script(25), "const max = 25;")
	assert.Contains(t, script(0), "const max = 60;")
	assert.NotContains(t, script(10), "%!")
}

func TestNewBackends(t *testing.T) {
	insp, err := New(config.InspectorConfig{Backend: "playwright"})
	require.NoError(t, err)
	assert.IsType(t, &PlaywrightInspector{}, insp)
	assert.NoError(t, insp.Close(), "closing an unstarted inspector is a no-op")

	insp, err = New(config.InspectorConfig{Backend: "chromedp"})
	require.NoError(t, err)
	assert.IsType(t, &ChromedpInspector{}, insp)
	assert.NoError(t, insp.Close())

	_, err = New(config.InspectorConfig{Backend: "selenium"})
	assert.Error(t, err)
}
