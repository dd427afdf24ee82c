// Package metrics records the outcome of calendar refreshes as Prometheus
// gauges and writes them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"afishacal/internal/pipeline"
)

const namespace = "afishacal"

// Recorder owns a private registry so the textfile only ever holds
// afishacal series.
type Recorder struct {
	reg *prometheus.Registry

	entries     prometheus.Gauge
	skipped     *prometheus.GaugeVec
	filtered    prometheus.Gauge
	duplicates  prometheus.Gauge
	events      prometheus.Gauge
	lastRunTS   prometheus.Gauge
	lastSuccess prometheus.Gauge
	lastRunDur  prometheus.Gauge
}

// NewRecorder registers the run gauges.
func NewRecorder() *Recorder {
	r := &Recorder{reg: prometheus.NewRegistry()}

	r.entries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "entries",
		Help:      "Raw listing entries scraped in the last run",
	})
	r.skipped = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "skipped_entries",
		Help:      "Entries rejected by the normalizer in the last run",
	}, []string{"reason"})
	r.filtered = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "filtered_entries",
		Help:      "Entries dropped by the nationality filter in the last run",
	})
	r.duplicates = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "duplicate_entries",
		Help:      "Entries collapsed by deduplication in the last run",
	})
	r.events = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "events",
		Help:      "Events written to the calendar in the last run",
	})
	r.lastRunTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished",
	})
	r.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_success",
		Help:      "1 if the last run wrote the calendar, 0 otherwise",
	})
	r.lastRunDur = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_duration_seconds",
		Help:      "Wall time of the last run",
	})

	r.reg.MustRegister(
		r.entries, r.skipped, r.filtered, r.duplicates, r.events,
		r.lastRunTS, r.lastSuccess, r.lastRunDur,
	)
	return r
}

// Observe stores the result of one run. On failure only the run gauges
// change; the counts of the last successful run stay visible.
func (r *Recorder) Observe(sum pipeline.Summary, runErr error, finished time.Time, took time.Duration) {
	r.lastRunTS.Set(float64(finished.Unix()))
	r.lastRunDur.Set(took.Seconds())
	if runErr != nil {
		r.lastSuccess.Set(0)
		return
	}
	r.lastSuccess.Set(1)

	r.entries.Set(float64(sum.Entries))
	r.skipped.WithLabelValues(string(pipeline.SkipEmptyTitle)).Set(float64(sum.EmptyTitle))
	r.skipped.WithLabelValues(string(pipeline.SkipBadDate)).Set(float64(sum.BadDate))
	r.filtered.Set(float64(sum.Filtered))
	r.duplicates.Set(float64(sum.Duplicates))
	r.events.Set(float64(sum.Events))
}

// WriteTextfile writes the registry to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}

// Gatherer exposes the registry, e.g. for a /metrics handler.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.reg
}
