package pipeline

import (
	"strings"
	"time"

	appLog "afishacal/internal/log"
	"afishacal/internal/model"
)

// SkipReason explains why an entry did not become a candidate. The empty
// value means the entry was kept.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipEmptyTitle SkipReason = "empty_title"
	SkipBadDate    SkipReason = "bad_date"
)

// NormalizeOptions carries the run-wide context for the normalizer.
type NormalizeOptions struct {
	// Location is the zone showtime text is read in. Nil means UTC.
	Location *time.Location
	// Now anchors year inference for labels without a year.
	Now time.Time
}

// Normalize turns one raw listing entry into an event candidate. Bad input
// is reported as a SkipReason, never as an error.
func Normalize(raw model.RawListingEntry, opts NormalizeOptions) (model.EventCandidate, SkipReason) {
	title := collapseSpace(raw.Title)
	if title == "" {
		appLog.Debug("skip entry: empty title", "url", raw.URL)
		return model.EventCandidate{}, SkipEmptyTitle
	}

	st, err := ParseShowtime(raw.DateText, opts.Now, opts.Location)
	if err != nil {
		appLog.Debug("skip entry: bad date", "title", title, "date_text", raw.DateText)
		return model.EventCandidate{}, SkipBadDate
	}

	return model.EventCandidate{
		Title:       title,
		Nationality: collapseSpace(raw.Nationality),
		Date:        st.Date,
		Start:       st.Start,
		URL:         strings.TrimSpace(raw.URL),
		Age:         strings.TrimSpace(raw.Age),
		Description: strings.TrimSpace(raw.Description),
		BannerURL:   strings.TrimSpace(raw.BannerURL),
	}, SkipNone
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
