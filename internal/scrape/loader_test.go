package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireChromium skips when no browser chromedp could launch is on PATH.
func requireChromium(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("headless browser test skipped in -short mode")
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chromium binary on PATH")
}

func TestChromiumLoader_RendersScriptedListing(t *testing.T) {
	requireChromium(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><div id="root"></div>
<script>
document.getElementById("root").innerHTML =
  '<div class="movie-card"><a class="title" href="/movie/js/">Фильм из скрипта</a></div>';
</script></body></html>`)
	}))
	defer srv.Close()

	l := &ChromiumLoader{UserAgent: "afishacal-test", Timeout: 30 * time.Second}
	doc, err := l.Load(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	items := extractListing(doc, nil)
	require.Len(t, items, 1)
	assert.Equal(t, "Фильм из скрипта", items[0].Title)
	assert.Equal(t, "/movie/js/", items[0].URL)
}

func TestChromiumLoader_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := &ChromiumLoader{Timeout: time.Second}
	_, err := l.Load(ctx, "http://127.0.0.1:1/")
	assert.Error(t, err)
}
