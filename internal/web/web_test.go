package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afishacal/internal/config"
	"afishacal/internal/ics"
	"afishacal/internal/metrics"
	"afishacal/internal/model"
	"afishacal/internal/pipeline"
	"afishacal/internal/runner"
)

type fakeRefresher struct {
	sum   pipeline.Summary
	err   error
	calls int
}

func (f *fakeRefresher) Run(context.Context) (pipeline.Summary, error) {
	f.calls++
	return f.sum, f.err
}

func (f *fakeRefresher) LastStatus() *runner.Status {
	if f.calls == 0 {
		return nil
	}
	return &runner.Status{Summary: f.sum}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OutputPath = filepath.Join(t.TempDir(), "afisha.ics")
	return cfg
}

func writeCalendar(t *testing.T, cfg *config.Config) {
	t.Helper()
	now := time.Now().In(cfg.Location())
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, cfg.Location())
	body, err := ics.Encode([]model.EventCandidate{
		{Title: "Дюна", Date: tomorrow, URL: "https://afisha.test/dune/"},
	}, ics.EncodeOptions{})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg.OutputPath, body, 0o644))
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(testConfig(t), nil, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCalendar(t *testing.T) {
	cfg := testConfig(t)
	s := NewServer(cfg, nil, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/calendar.ics")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	writeCalendar(t, cfg)
	rec = do(t, s.Handler(), http.MethodGet, "/calendar.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "BEGIN:VCALENDAR"))

	rec = do(t, s.Handler(), http.MethodPost, "/calendar.ics")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEvents(t *testing.T) {
	cfg := testConfig(t)
	writeCalendar(t, cfg)
	s := NewServer(cfg, nil, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/events?days=3")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Occurrences, 1)
	assert.Equal(t, "Дюна", resp.Occurrences[0].Summary)
	assert.True(t, resp.Occurrences[0].AllDay)
	assert.Equal(t, "https://afisha.test/dune/", resp.Occurrences[0].URL)
	assert.Equal(t, cfg.Timezone, resp.DisplayTimeZone)
}

func TestEvents_ClampsWindow(t *testing.T) {
	cfg := testConfig(t)
	writeCalendar(t, cfg)
	s := NewServer(cfg, nil, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/events?days=1000000000&backfill=1000000000")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	today := startOfDay(time.Now().In(cfg.Location()))
	assert.WithinDuration(t, today.AddDate(0, 0, maxEventsDays), resp.RangeEnd, 48*time.Hour)
	assert.WithinDuration(t, today.AddDate(0, 0, -maxEventsDays), resp.RangeStart, 48*time.Hour)
	assert.Len(t, resp.Occurrences, 1)

	rec = do(t, s.Handler(), http.MethodGet, "/api/events?days=3&backfill=-5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.WithinDuration(t, today, resp.RangeStart, 48*time.Hour)
	assert.WithinDuration(t, today.AddDate(0, 0, 3), resp.RangeEnd, 48*time.Hour)
}

func TestRefreshAndStatus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule = "0 6 * * *"
	f := &fakeRefresher{sum: pipeline.Summary{Entries: 4, Events: 2}}
	s := NewServer(cfg, f, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, s.Handler(), http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum pipeline.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 2, sum.Events)

	rec = do(t, s.Handler(), http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.NotNil(t, st.LastRun)
	assert.Equal(t, 4, st.LastRun.Summary.Entries)
	require.NotNil(t, st.NextRun)
	assert.True(t, st.NextRun.After(time.Now()))
}

func TestRefreshFailure(t *testing.T) {
	f := &fakeRefresher{err: errors.New("listing down")}
	s := NewServer(testConfig(t), f, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "listing down")
}

func TestMetrics(t *testing.T) {
	cfg := testConfig(t)
	assert.Equal(t, http.StatusNotFound, do(t, NewServer(cfg, nil, nil).Handler(), http.MethodGet, "/metrics").Code)

	rec := metrics.NewRecorder()
	rec.Observe(pipeline.Summary{Events: 7}, nil, time.Now(), time.Second)
	resp := do(t, NewServer(cfg, nil, rec.Gatherer()).Handler(), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "afishacal_events 7")
}

func TestStartServer_ShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Listen = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- StartServer(ctx, cfg, nil, nil) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
