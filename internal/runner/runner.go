// Package runner performs one full refresh: scrape the listing, run the
// pipeline and replace the calendar file.
package runner

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"afishacal/internal/config"
	"afishacal/internal/ics"
	appLog "afishacal/internal/log"
	"afishacal/internal/metrics"
	"afishacal/internal/pipeline"
	"afishacal/internal/scrape"
)

// Status describes the most recent run.
type Status struct {
	Summary  pipeline.Summary `json:"summary"`
	Finished time.Time        `json:"finished"`
	Duration time.Duration    `json:"duration_ns"`
	Error    string           `json:"error,omitempty"`
}

// Runner is safe for concurrent use; runs are serialized.
type Runner struct {
	cfg     *config.Config
	loader  scrape.Loader
	metrics *metrics.Recorder
	now     func() time.Time

	runMu sync.Mutex

	statusMu sync.RWMutex
	last     *Status
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLoader replaces the loader chosen from cfg.FetchMode.
func WithLoader(l scrape.Loader) Option {
	return func(r *Runner) { r.loader = l }
}

// WithClock replaces time.Now, which anchors year inference.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New builds a Runner for a validated config.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		metrics: metrics.NewRecorder(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	if r.loader == nil {
		r.loader = NewLoader(cfg)
	}
	return r
}

// NewLoader picks the page loader for cfg.FetchMode.
func NewLoader(cfg *config.Config) scrape.Loader {
	if cfg.FetchMode == config.FetchModeChromium {
		return &scrape.ChromiumLoader{UserAgent: cfg.UserAgent, Timeout: cfg.RequestTimeout()}
	}
	return scrape.NewHTTPLoader(cfg.UserAgent, cfg.AcceptLanguage, cfg.RequestTimeout())
}

// Run performs one refresh. The calendar file is only replaced when the
// whole run succeeds. A metrics write failure is logged and does not fail
// the run.
func (r *Runner) Run(ctx context.Context) (pipeline.Summary, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	started := r.now()
	sum, err := r.run(ctx, started)
	took := time.Since(started)
	finished := started.Add(took)

	r.metrics.Observe(sum, err, finished, took)
	if merr := r.metrics.WriteTextfile(r.cfg.MetricsFile); merr != nil {
		appLog.Error("metrics textfile write failed", merr, "path", r.cfg.MetricsFile)
	}

	st := &Status{Summary: sum, Finished: finished, Duration: took}
	if err != nil {
		st.Error = err.Error()
		appLog.Error("refresh failed", err, "duration", took.String())
	} else {
		appLog.Info("refresh completed", "events", sum.Events, "output", r.cfg.OutputPath, "duration", took.String())
	}
	r.statusMu.Lock()
	r.last = st
	r.statusMu.Unlock()

	return sum, err
}

func (r *Runner) run(ctx context.Context, now time.Time) (pipeline.Summary, error) {
	countryRe, err := regexp.Compile(r.cfg.Nationality.Pattern)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("runner: nationality pattern: %w", err)
	}

	s := scrape.New(r.loader, scrape.Options{
		SourceURL:      r.cfg.SourceURL,
		MaxPages:       r.cfg.MaxPages,
		MaxMovies:      r.cfg.MaxMovies,
		SkipDetails:    r.cfg.SkipDetails,
		CountryPattern: countryRe,
	})
	entries, err := s.Scrape(ctx)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("runner: scrape: %w", err)
	}

	res, err := pipeline.Run(entries, PipelineOptions(r.cfg, now))
	if err != nil {
		return pipeline.Summary{}, err
	}
	if r.cfg.SkipDetails && res.Summary.BadDate > 0 {
		appLog.Warn("skip_details: listing cards without a date were dropped; showtimes live on detail pages",
			"bad_date", res.Summary.BadDate, "entries", res.Summary.Entries, "events", res.Summary.Events)
	}

	if err := ics.WriteFile(r.cfg.OutputPath, res.Document); err != nil {
		return res.Summary, fmt.Errorf("runner: %w", err)
	}
	return res.Summary, nil
}

// PipelineOptions maps the config onto pipeline settings.
func PipelineOptions(cfg *config.Config, now time.Time) pipeline.Options {
	return pipeline.Options{
		Normalize: pipeline.NormalizeOptions{
			Location: cfg.Location(),
			Now:      now,
		},
		Keep: pipeline.AllOf(
			pipeline.AcceptNationality(cfg.Nationality.Accept),
			pipeline.ExcludeNationality(cfg.Nationality.Exclude),
		),
		Granularity: cfg.Granularity,
		Calendar: ics.EncodeOptions{
			ProdID:        cfg.Calendar.ProdID,
			Name:          cfg.Calendar.Name,
			Location:      cfg.Calendar.Location,
			UIDDomain:     cfg.Calendar.UIDDomain,
			SummaryPrefix: cfg.Calendar.SummaryPrefix,
			AllDayDays:    cfg.AllDayDays,
			TimedDuration: time.Duration(cfg.TimedMinutes) * time.Minute,
		},
	}
}

// LastStatus returns the most recent run, or nil before the first one.
func (r *Runner) LastStatus() *Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	if r.last == nil {
		return nil
	}
	st := *r.last
	return &st
}

// Metrics exposes the recorder fed by every run.
func (r *Runner) Metrics() *metrics.Recorder {
	return r.metrics
}
