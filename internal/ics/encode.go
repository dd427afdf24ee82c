package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"afishacal/internal/model"
)

// ErrDuplicateUID is returned when two events of one document would share
// a UID.
var ErrDuplicateUID = errors.New("duplicate event UID")

// uidNamespace scopes the name-based UUIDs; changing it changes every UID.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://afisha.ru/afishacal"))

// EncodeOptions controls calendar framing and per-event fields.
type EncodeOptions struct {
	ProdID        string
	Name          string // X-WR-CALNAME, optional
	Location      string // LOCATION for every event, optional
	UIDDomain     string
	SummaryPrefix string

	// UIDWithTime mixes the showtime into the UID. Needed when the document
	// may hold several showtimes of one film on one date.
	UIDWithTime bool

	AllDayDays    int           // DTEND offset for all-day events, default 1
	TimedDuration time.Duration // DTEND offset for timed events, default 2h
}

func (o EncodeOptions) withDefaults() EncodeOptions {
	if o.ProdID == "" {
		o.ProdID = "-//afishacal//EN"
	}
	if o.UIDDomain == "" {
		o.UIDDomain = "afishacal"
	}
	if o.AllDayDays <= 0 {
		o.AllDayDays = 1
	}
	if o.TimedDuration <= 0 {
		o.TimedDuration = 2 * time.Hour
	}
	return o
}

// EventUID derives a stable identifier from title and date (and the
// showtime when withTime is set).
func EventUID(c model.EventCandidate, withTime bool, domain string) string {
	name := c.Title + "|" + c.DateKey()
	if withTime && !c.AllDay() {
		name += "|" + c.TimeKey()
	}
	return uuid.NewSHA1(uidNamespace, []byte(name)).String() + "@" + domain
}

// Encode serializes the events, in order, into an iCalendar document.
// Output depends only on the input: DTSTAMP is derived from each event's
// date rather than the wall clock.
func Encode(events []model.EventCandidate, opts EncodeOptions) ([]byte, error) {
	opts = opts.withDefaults()

	cal := ical.NewCalendar()
	cal.SetProductId(opts.ProdID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	seen := make(map[string]string, len(events))
	for _, c := range events {
		uid := EventUID(c, opts.UIDWithTime, opts.UIDDomain)
		if prev, dup := seen[uid]; dup {
			return nil, fmt.Errorf("%w: %s (%q and %q)", ErrDuplicateUID, uid, prev, c.Title)
		}
		seen[uid] = c.Title

		ev := cal.AddEvent(uid)
		ev.SetDtStampTime(time.Date(c.Date.Year(), c.Date.Month(), c.Date.Day(), 0, 0, 0, 0, time.UTC))
		ev.SetSummary(opts.SummaryPrefix + c.Title)

		if c.AllDay() {
			ev.SetAllDayStartAt(c.Date)
			ev.SetAllDayEndAt(c.Date.AddDate(0, 0, opts.AllDayDays))
		} else {
			ev.SetStartAt(*c.Start)
			ev.SetEndAt(c.Start.Add(opts.TimedDuration))
		}

		if desc := describe(c); desc != "" {
			ev.SetDescription(desc)
		}
		if opts.Location != "" {
			ev.SetLocation(opts.Location)
		}
		if c.URL != "" {
			ev.SetURL(c.URL)
		}
	}

	// The library defaults to the build OS line ending; RFC 5545 wants CRLF.
	return []byte(cal.Serialize(ical.WithNewLineWindows)), nil
}

// describe builds the event description from detail-page extras. Missing
// pieces are left out.
func describe(c model.EventCandidate) string {
	var lines []string
	if c.Age != "" {
		lines = append(lines, "Возрастной рейтинг: "+c.Age)
	}
	if c.Nationality != "" {
		lines = append(lines, "Страна: "+c.Nationality)
	}
	if c.Description != "" {
		lines = append(lines, "О фильме: "+c.Description)
	}
	if c.BannerURL != "" {
		lines = append(lines, "Баннер: "+c.BannerURL)
	}
	if c.URL != "" {
		lines = append(lines, "Источник: "+c.URL)
	}
	return strings.Join(lines, "\n")
}
