package inspector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/harrison/selfheal/internal/config"
)

// ChromedpInspector drives a local Chrome over the DevTools protocol.
type ChromedpInspector struct {
	cfg config.InspectorConfig

	mu      sync.Mutex
	browser context.Context
	cancel  context.CancelFunc
}

// NewChromedpInspector creates an inspector; Chrome starts on first use.
func NewChromedpInspector(cfg config.InspectorConfig) *ChromedpInspector {
	return &ChromedpInspector{cfg: cfg}
}

func (c *ChromedpInspector) start() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return c.browser
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
	}
	if c.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	c.browser = browserCtx
	c.cancel = func() {
		browserCancel()
		allocCancel()
	}
	return browserCtx
}

// Inspect opens url in a new tab and evaluates the snapshot script.
func (c *ChromedpInspector) Inspect(ctx context.Context, url string) (*Snapshot, error) {
	browser := c.start()

	tab, cancelTab := chromedp.NewContext(browser)
	defer cancelTab()

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tab, cancelTimeout := context.WithTimeout(tab, timeout)
	defer cancelTimeout()

	// Stop the tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var raw string
	err := chromedp.Run(tab,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(script(c.cfg.MaxElements), &raw),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", url, err)
	}
	return ParseSnapshot(raw)
}

// Close shuts Chrome down.
func (c *ChromedpInspector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.browser = nil
	c.cancel = nil
	return nil
}
