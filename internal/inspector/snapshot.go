// Package inspector captures a compact DOM snapshot of a live page so that
// regenerated tests can target elements that actually exist.
package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/harrison/selfheal/internal/config"
)

// Heading is a visible h1-h3.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Element is a visible interactive element.
type Element struct {
	Tag    string `json:"tag"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	Text   string `json:"text"`
	ID     string `json:"id"`
	TestID string `json:"testId"`
	Href   string `json:"href"`
	Type   string `json:"type"`
}

// Snapshot is what the page looked like when inspected.
type Snapshot struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Headings      []Heading `json:"headings"`
	Landmarks     []string  `json:"landmarks"`
	Elements      []Element `json:"elements"`
	ConsentDialog bool      `json:"consentDialog"`
}

// Inspector loads a page and captures its snapshot.
type Inspector interface {
	Inspect(ctx context.Context, url string) (*Snapshot, error)
	Close() error
}

// New builds the configured backend. Browsers start lazily on first use.
func New(cfg config.InspectorConfig) (Inspector, error) {
	switch cfg.Backend {
	case "", "playwright":
		return NewPlaywrightInspector(cfg), nil
	case "chromedp":
		return NewChromedpInspector(cfg), nil
	default:
		return nil, fmt.Errorf("unknown inspector backend %q", cfg.Backend)
	}
}

// snapshotScript evaluates to a JSON string. %d is the element cap.
const snapshotScript = `(() => {
  const max = %d;
  const clean = (s) => (s || '').replace(/\s+/g, ' ').trim().slice(0, 80);
  const text = (el) => clean(el.innerText || el.textContent);
  const visible = (el) => {
    const r = el.getBoundingClientRect();
    const st = getComputedStyle(el);
    return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
  };
  const tagRoles = {A: 'link', BUTTON: 'button', SELECT: 'combobox', TEXTAREA: 'textbox', NAV: 'navigation'};
  const inputRoles = {checkbox: 'checkbox', radio: 'radio', submit: 'button', button: 'button', search: 'searchbox'};
  const roleOf = (el) => el.getAttribute('role') || tagRoles[el.tagName] ||
    (el.tagName === 'INPUT' ? (inputRoles[el.type] || 'textbox') : '');
  const nameOf = (el) => clean(el.getAttribute('aria-label') ||
    (el.labels && el.labels[0] && el.labels[0].innerText) ||
    el.getAttribute('placeholder') || el.getAttribute('title') || el.getAttribute('alt') || text(el));

  const elements = [];
  const interactive = 'a[href], button, input:not([type=hidden]), select, textarea, [role=button], [role=link], [role=tab], [role=menuitem], [role=checkbox]';
  for (const el of document.querySelectorAll(interactive)) {
    if (elements.length >= max) break;
    if (!visible(el)) continue;
    elements.push({
      tag: el.tagName.toLowerCase(),
      role: roleOf(el),
      name: nameOf(el),
      text: text(el),
      id: el.id || '',
      testId: el.getAttribute('data-testid') || el.getAttribute('data-test-id') || el.getAttribute('data-test') || '',
      href: el.getAttribute('href') || '',
      type: el.getAttribute('type') || '',
    });
  }

  const headings = Array.from(document.querySelectorAll('h1, h2, h3'))
    .filter(visible).slice(0, 20)
    .map((h) => ({level: Number(h.tagName[1]), text: text(h)}));
  const landmarks = ['header', 'nav', 'main', 'footer', 'aside', '[role=banner]', '[role=navigation]', '[role=main]', '[role=contentinfo]']
    .filter((s) => document.querySelector(s));
  const consentRe = /cookie|consent|gdpr|onetrust|cookiebot|privacy-banner/i;
  const consentDialog = Array.from(document.querySelectorAll('[id], [class], [role=dialog], [aria-modal=true]'))
    .some((el) => (consentRe.test(el.id) || consentRe.test(typeof el.className === 'string' ? el.className : '')) && visible(el));

  return JSON.stringify({url: location.href, title: document.title, headings, landmarks, elements, consentDialog});
})()`

func script(maxElements int) string {
	if maxElements <= 0 {
		maxElements = 60
	}
	return fmt.Sprintf(snapshotScript, maxElements)
}

// ParseSnapshot decodes the script's JSON result.
func ParseSnapshot(raw string) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("failed to decode page snapshot: %w", err)
	}
	return &s, nil
}

// generatedID matches ids that frameworks generate and change between builds.
var generatedID = regexp.MustCompile(`\d{3,}|^(ember|react|radix|headlessui|mui)[-_:]|^:r[0-9a-z]+:$`)

// Selectors returns Playwright locator expressions for the element, most
// stable first.
func Selectors(el Element) []string {
	var out []string
	if el.TestID != "" {
		out = append(out, fmt.Sprintf("page.getByTestId(%s)", jsQuote(el.TestID)))
	}
	if el.Role != "" && el.Name != "" {
		out = append(out, fmt.Sprintf("page.getByRole(%s, { name: %s })", jsQuote(el.Role), jsQuote(el.Name)))
	}
	if (el.Tag == "input" || el.Tag == "textarea" || el.Tag == "select") && el.Name != "" && el.Name != el.Text {
		out = append(out, fmt.Sprintf("page.getByLabel(%s)", jsQuote(el.Name)))
	}
	if el.ID != "" && !generatedID.MatchString(el.ID) {
		out = append(out, fmt.Sprintf("page.locator(%s)", jsQuote("#"+cssIdent(el.ID))))
	}
	if el.Text != "" && (el.Tag == "a" || el.Tag == "button") {
		out = append(out, fmt.Sprintf("page.getByText(%s, { exact: true })", jsQuote(el.Text)))
	}
	return out
}

// Render formats the snapshot for a generation prompt.
func Render(s *Snapshot) string {
	if s == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "URL: %s\nTitle: %s\n", s.URL, s.Title)
	if len(s.Landmarks) > 0 {
		fmt.Fprintf(&sb, "Landmarks: %s\n", strings.Join(s.Landmarks, ", "))
	}
	if s.ConsentDialog {
		sb.WriteString("Consent dialog: a cookie or consent banner is visible\n")
	}
	if len(s.Headings) > 0 {
		sb.WriteString("Headings:\n")
		for _, h := range s.Headings {
			fmt.Fprintf(&sb, "- h%d %s\n", h.Level, h.Text)
		}
	}
	if len(s.Elements) > 0 {
		sb.WriteString("Interactive elements (preferred locator first):\n")
		for _, el := range s.Elements {
			sels := Selectors(el)
			if len(sels) == 0 {
				continue
			}
			label := el.Name
			if label == "" {
				label = el.Text
			}
			fmt.Fprintf(&sb, "- %s %q: %s\n", describe(el), label, strings.Join(sels, " | "))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func describe(el Element) string {
	if el.Role != "" {
		return el.Role
	}
	return el.Tag
}

func jsQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)
	return "'" + r.Replace(s) + "'"
}

var cssSpecial = regexp.MustCompile(`([^a-zA-Z0-9_-])`)

func cssIdent(id string) string {
	return cssSpecial.ReplaceAllString(id, `\$1`)
}
