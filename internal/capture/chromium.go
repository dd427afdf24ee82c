package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// DefaultTimeoutSec bounds a render when RenderOptions.Timeout is zero.
const DefaultTimeoutSec = 30

// RenderOptions defines parameters for a Chromium-based page render.
type RenderOptions struct {
	// URL to render, e.g. "https://www.afisha.ru/prm/schedule_cinema/".
	URL string

	// UserAgent overrides the headless browser's default UA if set.
	UserAgent string

	// WaitSelector is waited for (visible) before the DOM is captured.
	// Defaults to "body".
	WaitSelector string

	// Timeout bounds the entire render. If zero, DefaultTimeoutSec is used.
	Timeout time.Duration
}

// RenderHTML launches a headless Chromium instance via chromedp, navigates
// to opts.URL, waits for opts.WaitSelector and returns the rendered outer
// HTML of the document.
func RenderHTML(parentCtx context.Context, opts RenderOptions) (string, error) {
	if opts.URL == "" {
		return "", fmt.Errorf("capture: URL is required")
	}
	if opts.WaitSelector == "" {
		opts.WaitSelector = "body"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var markup string
	tasks := chromedp.Tasks{
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery),
		// Small extra delay for late client-side rendering.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("capture: chromedp run failed for %s: %w", opts.URL, err)
	}

	return markup, nil
}
