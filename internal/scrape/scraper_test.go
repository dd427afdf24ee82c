package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage1 = `<html><body>
<div class="movie-card">
  <div class="card-inner"><a class="title-link" href="/movie/dune/">Дюна:  Часть вторая</a></div>
</div>
<div class="item_x1"><h3><a href="/movie/brother/">Брат</a></h3></div>
<div class="footer">no films here</div>
</body></html>`

const listingPage2 = `<html><body>
<div class="film-row"><a class="name" href="/movie/amelie/">Амели</a></div>
<div class="film-row"><a class="name" href="/movie/dune/">Дюна: Часть вторая</a></div>
</body></html>`

const duneDetail = `<html><body>
<img class="poster_main" src="/img/dune.jpg">
<span class="age-badge">12+</span>
<p>Страна: США, Канада</p>
<h2>О фильме</h2>
<div class="description_text">Пол Атрейдес объединяется с фременами.</div>
<div aria-label="Календарь">
  <span class="off">7 октября</span>
  <a class="pdT6c x" aria-label="8 октября" href="#">8</a>
  <a class="pdT6c x" aria-label="9 октября" href="#">9</a>
</div>
<script>var country = "Россия";</script>
</body></html>`

const brotherDetail = `<html><body>
<p>Россия, 1997</p>
<h2>О фильме</h2><p>Данила Багров приезжает в Петербург.</p>
<div aria-label="Календарь"><a class="pdT6c" aria-label="10 октября">10</a></div>
</body></html>`

func newFixtureServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var detailHits atomic.Int32
	mux := http.NewServeMux()
	html := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, body)
		}
	}
	mux.HandleFunc("/prm/schedule_cinema/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/prm/schedule_cinema/" {
			http.NotFound(w, r)
			return
		}
		html(listingPage1)(w, r)
	})
	mux.HandleFunc("/prm/schedule_cinema/page2/", html(listingPage2))
	mux.HandleFunc("/movie/dune/", func(w http.ResponseWriter, r *http.Request) {
		detailHits.Add(1)
		html(duneDetail)(w, r)
	})
	mux.HandleFunc("/movie/brother/", func(w http.ResponseWriter, r *http.Request) {
		detailHits.Add(1)
		html(brotherDetail)(w, r)
	})
	mux.HandleFunc("/movie/amelie/", func(w http.ResponseWriter, r *http.Request) {
		detailHits.Add(1)
		http.Error(w, "gone", http.StatusGone)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &detailHits
}

func testScraper(srv *httptest.Server, opts Options) *Scraper {
	opts.SourceURL = srv.URL + "/prm/schedule_cinema/"
	if opts.CountryPattern == nil {
		opts.CountryPattern = regexp.MustCompile(`(?i)(росси|сша|usa)`)
	}
	return New(NewHTTPLoader("afishacal-test", "ru-RU", 5*time.Second), opts)
}

func TestScrape_PaginatesAndFillsDetails(t *testing.T) {
	srv, _ := newFixtureServer(t)

	entries, err := testScraper(srv, Options{}).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	dune := entries[0]
	assert.Equal(t, "Дюна: Часть вторая", dune.Title)
	assert.Equal(t, srv.URL+"/movie/dune/", dune.URL)
	assert.Equal(t, "Страна: США, Канада", dune.Nationality)
	assert.Equal(t, "8 октября", dune.DateText)
	assert.Equal(t, "12+", dune.Age)
	assert.Equal(t, "Пол Атрейдес объединяется с фременами.", dune.Description)
	assert.Equal(t, srv.URL+"/img/dune.jpg", dune.BannerURL)

	brother := entries[1]
	assert.Equal(t, "Брат", brother.Title)
	assert.Equal(t, "Россия, 1997", brother.Nationality)
	assert.Equal(t, "10 октября", brother.DateText)
	assert.Equal(t, "Данила Багров приезжает в Петербург.", brother.Description)

	amelie := entries[2]
	assert.Equal(t, "Амели", amelie.Title)
	assert.Empty(t, amelie.DateText, "failed detail page leaves entry bare")
}

func TestScrape_Limits(t *testing.T) {
	srv, hits := newFixtureServer(t)

	entries, err := testScraper(srv, Options{MaxPages: 1, MaxMovies: 1}).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Дюна: Часть вторая", entries[0].Title)
	assert.Equal(t, int32(1), hits.Load())
}

func TestScrape_SkipDetails(t *testing.T) {
	srv, hits := newFixtureServer(t)

	entries, err := testScraper(srv, Options{SkipDetails: true}).Scrape(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Zero(t, hits.Load())
	for _, e := range entries {
		assert.Empty(t, e.DateText)
	}
}

func TestScrape_FirstPageFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testScraper(srv, Options{}).Scrape(context.Background())
	assert.Error(t, err)
}

func TestScrape_RepeatedPageStopsPagination(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><div class="card"><h3>Same film</h3></div></body></html>`)
	}))
	defer srv.Close()

	entries, err := testScraper(srv, Options{SkipDetails: true}).Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].URL)
	assert.Equal(t, int32(2), requests.Load())
}

func TestScrape_CanceledContext(t *testing.T) {
	srv, _ := newFixtureServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testScraper(srv, Options{}).Scrape(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPLoader_RejectsNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	_, err := NewHTTPLoader("ua", "", time.Second).Load(context.Background(), srv.URL)
	assert.ErrorIs(t, err, errNotHTML)
}

func TestExtractDescription_Truncates(t *testing.T) {
	long := strings.Repeat("ж", 350)
	doc := mustDoc(t, `<html><body><h2>О фильме</h2><p>`+long+`</p></body></html>`)

	got := extractDescription(doc)
	assert.Equal(t, strings.Repeat("ж", 300)+"...", got)
}

func TestExtractBanner_BackgroundAndAlt(t *testing.T) {
	doc := mustDoc(t, `<html><body><img alt="Кадр из фильма" style="background-image: url('https://cdn.test/b.jpg')"></body></html>`)
	assert.Equal(t, "https://cdn.test/b.jpg", extractBanner(doc, nil))

	assert.Empty(t, extractBanner(mustDoc(t, `<html><body><img alt="logo" src="/x.png"></body></html>`), nil))
}

func mustDoc(t *testing.T, markup string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc.Selection
}

func TestExtractListing_CardDates(t *testing.T) {
	doc := mustDoc(t, `<html><body>
<div class="film-card"><h3><a href="/a/">A</a></h3>
  <div aria-label="Календарь"><a class="pdT6c" aria-label="8 октября">8</a></div></div>
<div class="film-card"><a class="title" href="/b/">B</a><time datetime="2025-10-09 19:00">9 окт, 19:00</time></div>
<div class="film-card"><a class="title" href="/c/">C</a><span class="session-time">10 октября, 21:15</span></div>
<div class="film-card"><a class="title" href="/d/">D</a></div>
</body></html>`)

	items := extractListing(doc, nil)
	require.Len(t, items, 4)
	assert.Equal(t, "8 октября", items[0].DateText)
	assert.Equal(t, "2025-10-09 19:00", items[1].DateText)
	assert.Equal(t, "10 октября, 21:15", items[2].DateText)
	assert.Empty(t, items[3].DateText)
}

func TestScrape_DetailDateOverridesCardDate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><div class="film"><a class="title" href="/film/">X</a><span class="date">1 октября</span></div></body></html>`)
	})
	mux.HandleFunc("/film/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><div aria-label="Календарь"><a class="pdT6c" aria-label="5 октября">5</a></div></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := New(NewHTTPLoader("ua", "", 5*time.Second), Options{SourceURL: srv.URL + "/list/", MaxPages: 1})
	entries, err := s.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "5 октября", entries[0].DateText)

	s = New(NewHTTPLoader("ua", "", 5*time.Second), Options{SourceURL: srv.URL + "/list/", MaxPages: 1, SkipDetails: true})
	entries, err = s.Scrape(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1 октября", entries[0].DateText)
}
