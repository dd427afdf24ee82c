// Package scrape collects raw listing entries from the cinema listing:
// paginated list pages first, then one detail page per film.
package scrape

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	appLog "afishacal/internal/log"
	"afishacal/internal/model"
)

// Options bounds and shapes one scrape.
type Options struct {
	// SourceURL is page 1; page N is SourceURL + "pageN/".
	SourceURL string
	// MaxPages / MaxMovies limit the scrape; zero means unlimited.
	MaxPages  int
	MaxMovies int
	// SkipDetails leaves detail pages unvisited. Entries then carry only the
	// date printed on the listing card, and are dropped downstream without one.
	SkipDetails bool
	// CountryPattern locates the country text on a detail page.
	CountryPattern *regexp.Regexp
}

// Scraper walks the listing with a Loader.
type Scraper struct {
	loader Loader
	opts   Options
}

// New creates a Scraper.
func New(loader Loader, opts Options) *Scraper {
	return &Scraper{loader: loader, opts: opts}
}

// Scrape returns one RawListingEntry per distinct film title. Failure to
// load the first page is fatal; later listing pages that fail end
// pagination, and failed detail pages leave the entry without details.
func (s *Scraper) Scrape(ctx context.Context) ([]model.RawListingEntry, error) {
	items, err := s.scrapeListing(ctx)
	if err != nil {
		return nil, err
	}

	if s.opts.MaxMovies > 0 && len(items) > s.opts.MaxMovies {
		items = items[:s.opts.MaxMovies]
		appLog.Info("movie limit applied", "max_movies", s.opts.MaxMovies)
	}

	entries := make([]model.RawListingEntry, 0, len(items))
	for i, it := range items {
		entry := model.RawListingEntry{Title: it.Title, URL: it.URL, DateText: it.DateText}

		if !s.opts.SkipDetails && it.URL != "" {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s.fillDetails(ctx, &entry)
		}
		entries = append(entries, entry)

		if (i+1)%10 == 0 {
			appLog.Info("detail progress", "processed", i+1, "total", len(items))
		}
	}

	return entries, nil
}

func (s *Scraper) scrapeListing(ctx context.Context) ([]listItem, error) {
	var all []listItem
	seen := make(map[string]struct{})

	for page := 1; s.opts.MaxPages == 0 || page <= s.opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL := s.pageURL(page)
		appLog.Info("listing page", "page", page, "url", pageURL)

		doc, err := s.loader.Load(ctx, pageURL)
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("scrape: first listing page: %w", err)
			}
			appLog.Warn("listing page unavailable; stopping", "page", page, "reason", err.Error())
			break
		}

		base, _ := url.Parse(pageURL)
		items := extractListing(doc, base)
		if len(items) == 0 {
			appLog.Info("empty listing page; stopping", "page", page)
			break
		}

		fresh := 0
		for _, it := range items {
			if _, dup := seen[it.Title]; dup {
				continue
			}
			seen[it.Title] = struct{}{}
			all = append(all, it)
			fresh++
		}
		// Sites that serve page 1 for any out-of-range page would loop forever.
		if fresh == 0 {
			appLog.Info("listing page repeats earlier films; stopping", "page", page)
			break
		}
	}

	appLog.Info("listing scraped", "films", len(all))
	return all, nil
}

func (s *Scraper) fillDetails(ctx context.Context, entry *model.RawListingEntry) {
	doc, err := s.loader.Load(ctx, entry.URL)
	if err != nil {
		appLog.Warn("detail page unavailable", "title", entry.Title, "reason", err.Error())
		return
	}

	base, _ := url.Parse(entry.URL)
	d := extractDetail(doc, base, s.opts.CountryPattern)
	entry.Nationality = d.Country
	if d.DateText != "" {
		entry.DateText = d.DateText
	}
	entry.Age = d.Age
	entry.Description = d.Description
	entry.BannerURL = d.BannerURL

	appLog.Debug("detail scraped", "title", entry.Title, "country", d.Country, "date", d.DateText)
}

func (s *Scraper) pageURL(page int) string {
	if page == 1 {
		return s.opts.SourceURL
	}
	base := s.opts.SourceURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return fmt.Sprintf("%spage%d/", base, page)
}
