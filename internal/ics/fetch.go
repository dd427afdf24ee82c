package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	appLog "afishacal/internal/log"
)

// maxCalendarBytes caps a downloaded calendar.
const maxCalendarBytes = 16 << 20

var fetchClient = &http.Client{Timeout: 15 * time.Second}

// Load returns the calendar at src, which is either a local path or an
// http(s) URL such as the /calendar.ics endpoint of `afishacal serve`.
func Load(ctx context.Context, src string) ([]byte, error) {
	if src == "" {
		return nil, errors.New("calendar source is empty")
	}
	if !isRemote(src) {
		return os.ReadFile(src)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")

	appLog.Info("calendar fetch start", "url", redactURL(src))
	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: %s", redactURL(src), resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCalendarBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxCalendarBytes {
		return nil, fmt.Errorf("fetch %s: calendar larger than %d bytes", redactURL(src), maxCalendarBytes)
	}
	appLog.Info("calendar fetch success", "url", redactURL(src), "bytes", len(body))
	return body, nil
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// redactURL keeps scheme and host only, hiding tokens in paths or queries.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
