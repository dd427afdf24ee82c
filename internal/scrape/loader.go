package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"

	"afishacal/internal/capture"
)

// Loader fetches one page and returns its parsed document.
type Loader interface {
	Load(ctx context.Context, pageURL string) (*goquery.Selection, error)
}

// HTTPLoader fetches pages with plain HTTP requests through colly.
type HTTPLoader struct {
	base           *colly.Collector
	acceptLanguage string
}

// NewHTTPLoader builds a loader sending browser-like headers.
func NewHTTPLoader(userAgent, acceptLanguage string, timeout time.Duration) *HTTPLoader {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}
	return &HTTPLoader{base: c, acceptLanguage: acceptLanguage}
}

// Load visits pageURL. Non-2xx responses and non-HTML bodies are errors.
func (l *HTTPLoader) Load(ctx context.Context, pageURL string) (*goquery.Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Clone shares configuration but not callbacks, so each page gets its
	// own capture of the document.
	c := l.base.Clone()
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		if l.acceptLanguage != "" {
			r.Headers.Set("Accept-Language", l.acceptLanguage)
		}
	})

	var doc *goquery.Selection
	c.OnHTML("html", func(e *colly.HTMLElement) {
		doc = e.DOM
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("load %s: %w", pageURL, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("load %s: %w", pageURL, errNotHTML)
	}
	return doc, nil
}

var errNotHTML = errors.New("response is not an HTML document")

// ChromiumLoader renders pages in headless Chromium, for listings that only
// materialize after client-side scripts run.
type ChromiumLoader struct {
	UserAgent string
	Timeout   time.Duration
}

func (l *ChromiumLoader) Load(ctx context.Context, pageURL string) (*goquery.Selection, error) {
	markup, err := capture.RenderHTML(ctx, capture.RenderOptions{
		URL:       pageURL,
		UserAgent: l.UserAgent,
		Timeout:   l.Timeout,
	})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("load %s: parse rendered HTML: %w", pageURL, err)
	}
	return doc.Selection, nil
}
