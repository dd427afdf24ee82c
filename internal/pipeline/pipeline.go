// Package pipeline turns scraped listing entries into a calendar document:
// normalize, filter by nationality, deduplicate, serialize.
package pipeline

import (
	"fmt"

	"afishacal/internal/ics"
	appLog "afishacal/internal/log"
	"afishacal/internal/model"
)

// Options configures one pipeline run.
type Options struct {
	Normalize   NormalizeOptions
	Keep        Predicate
	Granularity string
	Calendar    ics.EncodeOptions
}

// Summary counts what happened to the entries of one run.
type Summary struct {
	Entries    int `json:"entries"`
	EmptyTitle int `json:"empty_title"`
	BadDate    int `json:"bad_date"`
	Filtered   int `json:"filtered"`
	Duplicates int `json:"duplicates"`
	Events     int `json:"events"`
}

// Skipped is the number of entries the normalizer rejected.
func (s Summary) Skipped() int {
	return s.EmptyTitle + s.BadDate
}

// Result is the outcome of a successful run.
type Result struct {
	Events   []model.EventCandidate
	Document []byte
	Summary  Summary
}

// Run executes all stages. Per-entry problems are counted in the summary;
// an error means the document could not be produced at all.
func Run(entries []model.RawListingEntry, opts Options) (Result, error) {
	sum := Summary{Entries: len(entries)}

	cands := make([]model.EventCandidate, 0, len(entries))
	for _, raw := range entries {
		c, reason := Normalize(raw, opts.Normalize)
		switch reason {
		case SkipNone:
			cands = append(cands, c)
		case SkipEmptyTitle:
			sum.EmptyTitle++
		case SkipBadDate:
			sum.BadDate++
		}
	}

	kept := Filter(cands, opts.Keep)
	sum.Filtered = len(cands) - len(kept)

	events, dropped := Dedup(kept, opts.Granularity)
	sum.Duplicates = dropped
	sum.Events = len(events)

	calOpts := opts.Calendar
	calOpts.UIDWithTime = opts.Granularity == GranularityShowtime
	doc, err := ics.Encode(events, calOpts)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: encode: %w", err)
	}
	if n, err := ics.Verify(doc); err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	} else if n != len(events) {
		return Result{}, fmt.Errorf("pipeline: verify: document holds %d events, want %d", n, len(events))
	}

	appLog.Info("pipeline completed",
		"entries", sum.Entries,
		"skipped", sum.Skipped(),
		"empty_title", sum.EmptyTitle,
		"bad_date", sum.BadDate,
		"filtered", sum.Filtered,
		"duplicates", sum.Duplicates,
		"events", sum.Events,
	)

	return Result{Events: events, Document: doc, Summary: sum}, nil
}
