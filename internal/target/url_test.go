package target

import (
	"testing"

	"github.com/harrison/selfheal/internal/config"
	"github.com/harrison/selfheal/internal/logger"
	"github.com/harrison/selfheal/internal/models"
	"github.com/stretchr/testify/assert"
)

type warnRecorder struct {
	logger.NoOpLogger
	warnings []string
}

func (w *warnRecorder) LogWarn(message string) { w.warnings = append(w.warnings, message) }

func testTargetConfig() config.TargetConfig {
	return config.TargetConfig{
		Placeholder:    "https://example.com",
		PrefixDomains:  map[string]string{"ED": "https://www.edx.org"},
		KeywordDomains: map[string]string{"acme": "https://shop.acme.test"},
	}
}

func TestURLResolverPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		in         Input
		wantURL    string
		wantSource string
	}{
		{
			name:       "story url list wins",
			in:         Input{Story: models.Story{ID: "ED-1", URLs: []string{"https://staging.edx.org/course"}, Description: "see https://other.test"}},
			wantURL:    "https://staging.edx.org/course",
			wantSource: SourceStoryURLs,
		},
		{
			name:       "placeholder in url list is skipped",
			in:         Input{Story: models.Story{ID: "X-1", URLs: []string{"https://example.com/"}, Description: "Go to https://app.acme.test/login."}},
			wantURL:    "https://app.acme.test/login",
			wantSource: SourceStoryText,
		},
		{
			name:       "id prefix convention",
			in:         Input{Story: models.Story{ID: "ED-42", Title: "Update footer links"}},
			wantURL:    "https://www.edx.org",
			wantSource: SourceIDPrefix,
		},
		{
			name:       "failing artifact navigation",
			in:         Input{Story: models.Story{ID: "QA-3"}, ArtifactSource: "await page.goto('https://example.com');\nawait page.goto(\"https://qa.internal.test/home\");"},
			wantURL:    "https://qa.internal.test/home",
			wantSource: SourceArtifactGoto,
		},
		{
			name: "associated test cases",
			in: Input{Story: models.Story{ID: "QA-4"}, TestCases: []models.TestCase{
				{Title: "Login", Steps: []models.TestStep{{Content: "Open https://portal.test/signin", Expected: "Form shows"}}},
			}},
			wantURL:    "https://portal.test/signin",
			wantSource: SourceTestCases,
		},
		{
			name:       "brand keyword",
			in:         Input{Story: models.Story{ID: "QA-5", Description: "The ACME cart should show totals"}},
			wantURL:    "https://shop.acme.test",
			wantSource: SourceBrandKeyword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewURLResolver(testTargetConfig(), nil)
			res := r.Resolve(tt.in)
			assert.Equal(t, tt.wantURL, res.URL())
			assert.Equal(t, tt.wantSource, res.Source())
			assert.False(t, res.Placeholder)
		})
	}
}

func TestURLResolverScenarioD(t *testing.T) {
	r := NewURLResolver(testTargetConfig(), nil)
	res := r.Resolve(Input{Story: models.Story{ID: "ED-42", Title: "Add a new course card", Description: "Card lists the instructor"}})
	assert.Equal(t, "https://www.edx.org", res.URL())
	assert.False(t, res.Placeholder)
}

func TestURLResolverPlaceholderLastResort(t *testing.T) {
	rec := &warnRecorder{}
	r := NewURLResolver(testTargetConfig(), rec)

	res := r.Resolve(Input{Story: models.Story{ID: "ZZ-1", Title: "Something", Description: "nothing useful"}})
	assert.Equal(t, "https://example.com", res.URL())
	assert.Equal(t, SourcePlaceholder, res.Source())
	assert.True(t, res.Placeholder)
	assert.Len(t, rec.warnings, 1)
}

func TestURLResolverNeverPicksPlaceholderWhenAlternativeExists(t *testing.T) {
	r := NewURLResolver(testTargetConfig(), nil)
	placeholderEverywhere := "https://example.com https://www.example.com/path https://sub.example.com"

	inputs := []Input{
		{Story: models.Story{ID: "ZZ-1", URLs: []string{"https://example.com"}, Description: placeholderEverywhere + " acme"}},
		{Story: models.Story{ID: "ZZ-2", Description: placeholderEverywhere}, ArtifactSource: "page.goto('https://example.com')", TestCases: []models.TestCase{{Title: "https://real.test"}}},
		{Story: models.Story{ID: "ZZ-3", Description: placeholderEverywhere}, ArtifactSource: "page.goto(`https://real.test/x`)"},
	}
	for _, in := range inputs {
		res := r.Resolve(in)
		assert.False(t, res.Placeholder, in.Story.ID)
		assert.False(t, r.IsPlaceholder(res.URL()), "%s resolved to %s", in.Story.ID, res.URL())
		for _, c := range res.Candidates {
			assert.False(t, r.IsPlaceholder(c.URL), "candidate %s from %s", c.URL, c.Source)
		}
	}
}

func TestURLResolverCandidatesOrdered(t *testing.T) {
	r := NewURLResolver(testTargetConfig(), nil)
	res := r.Resolve(Input{Story: models.Story{ID: "ED-9", Description: "acme at https://a.test"}})

	var sources []string
	for _, c := range res.Candidates {
		sources = append(sources, c.Source)
	}
	assert.Equal(t, []string{SourceStoryText, SourceIDPrefix, SourceBrandKeyword}, sources)
	assert.Equal(t, 0, res.Chosen)
}

func TestExtractURLs(t *testing.T) {
	got := ExtractURLs(`Visit https://a.test/x?y=1, then (https://b.test/path). Also "http://c.test".`)
	assert.Equal(t, []string{"https://a.test/x?y=1", "https://b.test/path", "http://c.test"}, got)
}

func TestIsPlaceholder(t *testing.T) {
	r := NewURLResolver(testTargetConfig(), nil)
	assert.True(t, r.IsPlaceholder("https://example.com"))
	assert.True(t, r.IsPlaceholder("https://www.example.com/a"))
	assert.True(t, r.IsPlaceholder("http://docs.example.com"))
	assert.False(t, r.IsPlaceholder("https://notexample.com"))
	assert.False(t, r.IsPlaceholder("not a url"))
}
