package model

import "time"

// RawListingEntry is one scraped row of the listing: a single film (and,
// when the page carries it, a showtime). Fields are kept exactly as
// scraped; validation happens in the normalizer.
type RawListingEntry struct {
	Title       string
	Nationality string // free-form country text from the detail page
	DateText    string // e.g. "2024-05-01 19:00" or "8 октября"
	URL         string // film detail page, optional

	// Optional detail-page extras used for the event description.
	Age         string
	Description string
	BannerURL   string
}

// EventCandidate is a normalized listing entry that may become a calendar
// event.
type EventCandidate struct {
	Title       string
	Nationality string

	// Date is midnight of the showing day in the configured location.
	Date time.Time
	// Start is the showtime, nil for all-day candidates.
	Start *time.Time

	URL         string
	Age         string
	Description string
	BannerURL   string
}

// AllDay reports whether the candidate has no showtime.
func (c EventCandidate) AllDay() bool {
	return c.Start == nil
}

// DateKey returns the candidate's date as YYYY-MM-DD.
func (c EventCandidate) DateKey() string {
	return c.Date.Format("2006-01-02")
}

// TimeKey returns the showtime as HH:MM, or "" for all-day candidates.
func (c EventCandidate) TimeKey() string {
	if c.Start == nil {
		return ""
	}
	return c.Start.Format("15:04")
}

// Occurrence represents a single concrete instance of an event read back
// from a calendar file (after recurrence expansion and timezone
// normalization).
type Occurrence struct {
	UID string

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string
	URL         string

	AllDay bool

	// Start / End are in the display timezone.
	Start time.Time
	End   time.Time
}
