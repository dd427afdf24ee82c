package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"afishacal/internal/config"
	"afishacal/internal/ics"
	appLog "afishacal/internal/log"
	"afishacal/internal/pipeline"
	"afishacal/internal/runner"
	"afishacal/internal/scheduler"
)

// Refresher is the part of runner.Runner the server needs.
type Refresher interface {
	Run(ctx context.Context) (pipeline.Summary, error)
	LastStatus() *runner.Status
}

// Server publishes the generated calendar and the state of the last run.
type Server struct {
	cfg       *config.Config
	refresher Refresher
	gatherer  prometheus.Gatherer
	mux       *http.ServeMux

	// In-memory cache for /api/events, invalidated when the calendar file
	// changes or the entry ages out.
	eventsMu    sync.RWMutex
	eventsCache *eventsCache
}

// NewServer constructs a new Server. refresher and gatherer may be nil, in
// which case /api/refresh, /api/status and /metrics report unavailability.
func NewServer(cfg *config.Config, refresher Refresher, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		cfg:       cfg,
		refresher: refresher,
		gatherer:  gatherer,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StartServer serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, refresher Refresher, gatherer prometheus.Gatherer) error {
	s := NewServer(cfg, refresher, gatherer)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/metrics", s.handleMetrics)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleCalendar serves the last written calendar file. Until the first
// successful run it answers 404.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, err := os.Stat(s.cfg.OutputPath); err != nil {
		writeError(w, http.StatusNotFound, "calendar not generated yet")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	http.ServeFile(w, r, s.cfg.OutputPath)
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	LastRun    *runner.Status `json:"last_run"`
	OutputPath string         `json:"output_path"`
	Schedule   string         `json:"schedule,omitempty"`
	NextRun    *time.Time     `json:"next_run,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		OutputPath: s.cfg.OutputPath,
		Schedule:   s.cfg.Schedule,
	}
	if s.refresher != nil {
		resp.LastRun = s.refresher.LastStatus()
	}
	if s.cfg.Schedule != "" {
		if next, err := scheduler.Next(s.cfg.Schedule, time.Now().In(s.cfg.Location())); err == nil {
			resp.NextRun = &next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh runs one refresh synchronously.
//
// POST /api/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}

	appLog.Info("api refresh requested", "remote", r.RemoteAddr)
	sum, err := s.refresher.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.gatherer == nil {
		writeError(w, http.StatusNotFound, "metrics not available")
		return
	}
	promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Occurrences     []occurrenceDTO `json:"occurrences"`
	TruncatedUIDs   []string        `json:"truncated_uids,omitempty"`
	RangeStart      time.Time       `json:"range_start"`
	RangeEnd        time.Time       `json:"range_end"`
	DisplayTimeZone string          `json:"display_timezone"`
}

// eventsCache holds a cached /api/events response and what it was built from.
type eventsCache struct {
	resp      eventsResponse
	days      int
	backfill  int
	fileMod   time.Time
	updatedAt time.Time
}

// occurrenceDTO is a JSON-friendly view of occurrences.
type occurrenceDTO struct {
	UID         string    `json:"uid"`
	InstanceKey string    `json:"instance_key"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	URL         string    `json:"url,omitempty"`
	AllDay      bool      `json:"all_day"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// maxEventsDays bounds both days and backfill on /api/events.
const maxEventsDays = 366

// handleEvents returns occurrences from the generated calendar within a
// window around now.
//
// GET /api/events?days=7&backfill=1
//   - days:     how many days ahead (default cfg.PreviewDays)
//   - backfill: how many past days to include (default 0)
//
// Both are clamped to maxEventsDays.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), s.cfg.PreviewDays)
	if days <= 0 {
		days = s.cfg.PreviewDays
	}
	days = min(days, maxEventsDays)
	backfill := parseIntDefault(q.Get("backfill"), 0)
	backfill = max(0, min(backfill, maxEventsDays))

	info, err := os.Stat(s.cfg.OutputPath)
	if err != nil {
		writeError(w, http.StatusNotFound, "calendar not generated yet")
		return
	}

	const eventsCacheTTL = 30 * time.Second
	s.eventsMu.RLock()
	ec := s.eventsCache
	s.eventsMu.RUnlock()
	if ec != nil && ec.days == days && ec.backfill == backfill &&
		ec.fileMod.Equal(info.ModTime()) && time.Since(ec.updatedAt) < eventsCacheTTL {
		writeJSON(w, http.StatusOK, ec.resp)
		return
	}

	loc := s.cfg.Location()
	today := startOfDay(time.Now().In(loc))
	rangeStart := today.AddDate(0, 0, -backfill)
	rangeEnd := today.AddDate(0, 0, days)

	appLog.Debug("api events request",
		"days", days,
		"backfill", backfill,
		"range_start", rangeStart.Format(time.RFC3339),
		"range_end", rangeEnd.Format(time.RFC3339),
	)

	res, err := ics.ReadOccurrences(r.Context(), s.cfg.OutputPath, ics.ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	})
	if err != nil {
		appLog.Error("api events: read calendar failed", err, "path", s.cfg.OutputPath)
		writeError(w, http.StatusInternalServerError, "failed to read calendar")
		return
	}

	dtos := make([]occurrenceDTO, 0, len(res.Occurrences))
	for _, occ := range res.Occurrences {
		dtos = append(dtos, occurrenceDTO{
			UID:         occ.UID,
			InstanceKey: occ.InstanceKey,
			Summary:     occ.Summary,
			Description: occ.Description,
			Location:    occ.Location,
			URL:         occ.URL,
			AllDay:      occ.AllDay,
			Start:       occ.Start,
			End:         occ.End,
		})
	}

	resp := eventsResponse{
		Occurrences:     dtos,
		TruncatedUIDs:   res.TruncatedEvents,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		DisplayTimeZone: loc.String(),
	}

	s.eventsMu.Lock()
	s.eventsCache = &eventsCache{
		resp:      resp,
		days:      days,
		backfill:  backfill,
		fileMod:   info.ModTime(),
		updatedAt: time.Now(),
	}
	s.eventsMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
