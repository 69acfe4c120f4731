package inspector

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/harrison/selfheal/internal/config"
)

// PlaywrightInspector drives Chromium through playwright-go.
type PlaywrightInspector struct {
	cfg config.InspectorConfig

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywrightInspector creates an inspector; the driver starts on first use.
func NewPlaywrightInspector(cfg config.InspectorConfig) *PlaywrightInspector {
	return &PlaywrightInspector{cfg: cfg}
}

func (p *PlaywrightInspector) start() (playwright.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		return p.browser, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(p.cfg.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}
	p.pw = pw
	p.browser = browser
	return browser, nil
}

// Inspect opens url in a fresh page and evaluates the snapshot script.
func (p *PlaywrightInspector) Inspect(ctx context.Context, url string) (*Snapshot, error) {
	browser, err := p.start()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	timeout := float64(p.cfg.Timeout.Milliseconds())
	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(timeout),
	}); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", url, err)
	}

	result, err := page.Evaluate(script(p.cfg.MaxElements))
	if err != nil {
		return nil, fmt.Errorf("snapshot script failed on %s: %w", url, err)
	}
	raw, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("snapshot script returned %T", result)
	}
	return ParseSnapshot(raw)
}

// Close stops the browser and the driver.
func (p *PlaywrightInspector) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser == nil {
		return nil
	}
	err := p.browser.Close()
	if stopErr := p.pw.Stop(); err == nil {
		err = stopErr
	}
	p.browser = nil
	p.pw = nil
	return err
}
