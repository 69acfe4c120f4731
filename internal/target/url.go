package target

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/harrison/selfheal/internal/config"
	"github.com/harrison/selfheal/internal/logger"
	"github.com/harrison/selfheal/internal/models"
)

// URL strategy names, in precedence order.
const (
	SourceStoryURLs    = "story-urls"
	SourceStoryText    = "story-text"
	SourceIDPrefix     = "id-prefix"
	SourceArtifactGoto = "artifact-goto"
	SourceTestCases    = "test-cases"
	SourceBrandKeyword = "brand-keyword"
	SourcePlaceholder  = "placeholder"
)

var (
	urlPattern  = regexp.MustCompile("https?://[^\\s\"'<>()\\[\\]{}`|]+")
	gotoPattern = regexp.MustCompile("page\\.goto\\(\\s*[\"'`]([^\"'`]+)[\"'`]")
	idPrefix    = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9]*)-\d+`)
)

// URLResolver picks the target URL for a story.
type URLResolver struct {
	cfg      config.TargetConfig
	log      logger.Logger
	resolver Resolver[string]
}

// NewURLResolver builds the seven-step chain from configuration.
func NewURLResolver(cfg config.TargetConfig, log logger.Logger) *URLResolver {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	u := &URLResolver{cfg: cfg, log: log}
	u.resolver = Resolver[string]{Strategies: []Strategy[string]{
		{Name: SourceStoryURLs, Find: u.fromStoryURLs},
		{Name: SourceStoryText, Find: u.fromStoryText},
		{Name: SourceIDPrefix, Find: u.fromIDPrefix},
		{Name: SourceArtifactGoto, Find: u.fromArtifact},
		{Name: SourceTestCases, Find: u.fromTestCases},
		{Name: SourceBrandKeyword, Find: u.fromBrandKeyword},
	}}
	return u
}

// Resolve never returns an empty URL. The placeholder is chosen only when
// every other strategy came up empty, and that is logged as a warning.
func (u *URLResolver) Resolve(in Input) models.TargetResolution {
	var res models.TargetResolution
	for _, c := range u.resolver.Candidates(in) {
		res.Candidates = append(res.Candidates, models.TargetCandidate{URL: c.Value, Source: c.Source})
	}
	if len(res.Candidates) > 0 {
		res.Chosen = 0
		u.log.LogDebug(fmt.Sprintf("Target for %s: %s (from %s)", in.Story.ID, res.URL(), res.Source()))
		return res
	}

	res.Candidates = []models.TargetCandidate{{URL: u.cfg.Placeholder, Source: SourcePlaceholder}}
	res.Chosen = 0
	res.Placeholder = true
	u.log.LogWarn(fmt.Sprintf("No target URL found for %s; falling back to placeholder %s", in.Story.ID, u.cfg.Placeholder))
	return res
}

// IsPlaceholder reports whether raw points at the placeholder host or one of
// its subdomains.
func (u *URLResolver) IsPlaceholder(raw string) bool {
	host := hostOf(raw)
	ph := hostOf(u.cfg.Placeholder)
	if host == "" || ph == "" {
		return false
	}
	return host == ph || strings.HasSuffix(host, "."+ph)
}

func hostOf(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// usable accepts absolute http(s) URLs that are not the placeholder.
func (u *URLResolver) usable(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return !u.IsPlaceholder(raw)
}

func (u *URLResolver) firstUsable(urls []string) (string, bool) {
	for _, raw := range urls {
		if u.usable(raw) {
			return raw, true
		}
	}
	return "", false
}

// ExtractURLs returns every http(s) URL in text, trailing punctuation trimmed.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

func (u *URLResolver) fromStoryURLs(in Input) (string, bool) {
	return u.firstUsable(in.Story.URLs)
}

func (u *URLResolver) fromStoryText(in Input) (string, bool) {
	return u.firstUsable(ExtractURLs(in.Story.Text()))
}

func (u *URLResolver) fromIDPrefix(in Input) (string, bool) {
	m := idPrefix.FindStringSubmatch(strings.TrimSpace(in.Story.ID))
	if m == nil {
		return "", false
	}
	for prefix, domain := range u.cfg.PrefixDomains {
		if strings.EqualFold(prefix, m[1]) && u.usable(domain) {
			return domain, true
		}
	}
	return "", false
}

func (u *URLResolver) fromArtifact(in Input) (string, bool) {
	var urls []string
	for _, m := range gotoPattern.FindAllStringSubmatch(in.ArtifactSource, -1) {
		urls = append(urls, m[1])
	}
	return u.firstUsable(urls)
}

func (u *URLResolver) fromTestCases(in Input) (string, bool) {
	for _, tc := range in.TestCases {
		if v, ok := u.firstUsable(ExtractURLs(tc.Text())); ok {
			return v, true
		}
	}
	return "", false
}

func (u *URLResolver) fromBrandKeyword(in Input) (string, bool) {
	var sb strings.Builder
	sb.WriteString(in.Story.Text())
	for _, tc := range in.TestCases {
		sb.WriteString("\n")
		sb.WriteString(tc.Text())
	}
	text := strings.ToLower(sb.String())

	keywords := make([]string, 0, len(u.cfg.KeywordDomains))
	for k := range u.cfg.KeywordDomains {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)

	for _, k := range keywords {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(strings.ToLower(k)) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(text) && u.usable(u.cfg.KeywordDomains[k]) {
			return u.cfg.KeywordDomains[k], true
		}
	}
	return "", false
}
