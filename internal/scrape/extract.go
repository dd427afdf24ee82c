package scrape

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Listing page cards. Class names on the site are hashed, so matching is by
// substring of the stable parts.
const (
	cardSelector  = `div[class*="movie"], div[class*="film"], div[class*="item"], div[class*="card"]`
	titleSelector = `a[class*="title"], a[class*="name"], a[class*="h3"]`

	calendarDaySelector = `div[aria-label="Календарь"] a[class*="pdT6c"]`
	cardDateSelector    = `[class*="date"], [class*="session"], [class*="schedule"]`
	bannerSelector      = `img[class*="poster"], img[class*="banner"], img[class*="hero-image"]`
	ageSelector         = `span[class*="age"], span[class*="rating"]`
	descSiblingSelector = `div[class*="description"], div[class*="about"]`

	maxDescriptionRunes = 300
	ellipsisAfterRunes  = 200
	maxCountryRunes     = 50
)

var (
	ageRe      = regexp.MustCompile(`(\d{1,2})\+`)
	aboutRe    = regexp.MustCompile(`(?i)о фильме`)
	filmAltRe  = regexp.MustCompile(`(?i)фильм`)
	bgImageRe  = regexp.MustCompile(`url\(["']?(https?://[^"')]+)["']?\)`)
	skipTextIn = map[string]bool{"script": true, "style": true, "noscript": true}
)

type listItem struct {
	Title string
	URL   string
	// DateText is the showtime printed on the card, if any. Detail pages
	// carry a better one.
	DateText string
}

type detail struct {
	Country     string
	DateText    string
	Age         string
	Description string
	BannerURL   string
}

// extractListing returns the film cards on one listing page in document
// order. Nested cards yield the same title more than once; callers dedupe.
func extractListing(doc *goquery.Selection, page *url.URL) []listItem {
	var items []listItem
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		title := card.Find(titleSelector).First()
		if title.Length() == 0 {
			title = card.Find("h3").First()
		}
		if title.Length() == 0 {
			return
		}

		text := cleanText(title.Text())
		if text == "" {
			return
		}

		href, ok := title.Attr("href")
		if !ok {
			href, _ = title.Find("a").First().Attr("href")
		}
		items = append(items, listItem{Title: text, URL: resolve(page, href), DateText: extractCardDate(card)})
	})
	return items
}

// extractCardDate looks for a showtime on a listing card: the calendar
// widget, a <time datetime>, or an element whose class names a date.
func extractCardDate(card *goquery.Selection) string {
	if day := card.Find(calendarDaySelector).First(); day.Length() > 0 {
		if label := cleanText(day.AttrOr("aria-label", "")); label != "" {
			return label
		}
	}
	if tm := card.Find("time[datetime]").First(); tm.Length() > 0 {
		return cleanText(tm.AttrOr("datetime", ""))
	}
	return cleanText(card.Find(cardDateSelector).First().Text())
}

// extractDetail reads the optional extras from a film page.
func extractDetail(doc *goquery.Selection, page *url.URL, countryRe *regexp.Regexp) detail {
	var d detail

	if day := doc.Find(calendarDaySelector).First(); day.Length() > 0 {
		d.DateText = cleanText(day.AttrOr("aria-label", ""))
	}

	d.BannerURL = extractBanner(doc, page)
	d.Age = extractAge(doc)
	d.Description = extractDescription(doc)

	if countryRe != nil {
		eachText(doc, func(s string) bool {
			if countryRe.MatchString(s) {
				d.Country = truncateRunes(s, maxCountryRunes)
				return false
			}
			return true
		})
	}

	return d
}

func extractBanner(doc *goquery.Selection, page *url.URL) string {
	img := doc.Find(bannerSelector).First()
	if img.Length() == 0 {
		img = doc.Find("img").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return filmAltRe.MatchString(s.AttrOr("alt", ""))
		}).First()
	}
	if img.Length() == 0 {
		return ""
	}

	src := img.AttrOr("src", "")
	if src == "" {
		src = img.AttrOr("data-src", "")
	}
	if src != "" {
		return resolve(page, src)
	}
	if m := bgImageRe.FindStringSubmatch(img.AttrOr("style", "")); m != nil {
		return m[1]
	}
	return ""
}

func extractAge(doc *goquery.Selection) string {
	if m := ageRe.FindStringSubmatch(doc.Find(ageSelector).First().Text()); m != nil {
		return m[1] + "+"
	}
	var age string
	eachText(doc, func(s string) bool {
		if m := ageRe.FindStringSubmatch(s); m != nil {
			age = m[1] + "+"
			return false
		}
		return true
	})
	return age
}

func extractDescription(doc *goquery.Selection) string {
	h2 := doc.Find("h2").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return aboutRe.MatchString(s.Text())
	}).First()
	if h2.Length() == 0 {
		return ""
	}

	body := h2.NextAllFiltered(descSiblingSelector).First()
	if body.Length() == 0 {
		body = h2.NextAllFiltered("p").First()
	}
	if body.Length() == 0 {
		body = h2.Parent().Find("p").First()
	}

	text := cleanText(body.Text())
	if text == "" {
		return ""
	}
	if utf8.RuneCountInString(text) > ellipsisAfterRunes {
		return truncateRunes(text, maxDescriptionRunes) + "..."
	}
	return text
}

// eachText visits non-empty text nodes in document order, skipping script
// and style content, until fn returns false.
func eachText(doc *goquery.Selection, fn func(string) bool) {
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && skipTextIn[n.Data] {
			return true
		}
		if n.Type == html.TextNode {
			if s := cleanText(n.Data); s != "" && !fn(s) {
				return false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	for _, n := range doc.Nodes {
		if !walk(n) {
			return
		}
	}
}

func resolve(page *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || page == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return page.ResolveReference(ref).String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
