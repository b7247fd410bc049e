package source

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	appLog "danceimport/internal/log"
)

const (
	// DefaultWaitSelector matches the event cards on the listing page.
	DefaultWaitSelector = `div[class*="MuiPaper-root"] a[href^="/events/"]`
	defaultRenderTimeout = 45 * time.Second
)

// BrowserSource renders a client-side listing page in headless Chromium and
// returns the resulting document HTML. Use it when the event cards are
// built by JavaScript and a plain GET only sees an empty shell.
type BrowserSource struct {
	URL string
	// WaitSelector must become visible before the DOM is read.
	WaitSelector string
	// Timeout bounds the whole render.
	Timeout time.Duration
}

func (b *BrowserSource) Describe() string {
	return "browser:" + redactURL(b.URL)
}

func (b *BrowserSource) Fetch(parentCtx context.Context) ([]byte, error) {
	if b.URL == "" {
		return nil, fmt.Errorf("render: URL is required")
	}
	selector := b.WaitSelector
	if selector == "" {
		selector = DefaultWaitSelector
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	appLog.Info("render start", "url", redactURL(b.URL), "selector", selector, "timeout", timeout.String())

	var html string
	tasks := chromedp.Tasks{
		chromedp.Navigate(b.URL),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		// Let late cards finish rendering.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("render: chromedp run failed: %w", err)
	}

	appLog.Info("render success", "url", redactURL(b.URL), "bytes", len(html))
	return []byte(html), nil
}
