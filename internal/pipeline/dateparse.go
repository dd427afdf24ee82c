package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnparseableDate is returned when showtime text matches none of the
// accepted formats.
var ErrUnparseableDate = errors.New("unparseable date")

// Showtime is a parsed date/time text.
type Showtime struct {
	// Date is midnight of the day in the parse location.
	Date time.Time
	// Start is nil when the text carries no clock time.
	Start *time.Time
}

// Accepted numeric layouts, tried in order. Layouts with a clock part come
// first so "2024-05-01 19:00" is not rejected by the date-only layout.
var numericLayouts = []struct {
	layout  string
	hasTime bool
}{
	{"2006-01-02 15:04", true},
	{"2006-01-02T15:04", true},
	{"2006-01-02", false},
	{"02.01.2006 15:04", true},
	{"02.01.2006", false},
}

// Day-month labels from the listing calendar widget, e.g. "8 октября" or
// "8 октября, 19:00".
var dayMonthRe = regexp.MustCompile(`^(\d{1,2})\s+([а-яё]+)(?:,?\s+(\d{1,2}):(\d{2}))?$`)

var genitiveMonths = map[string]time.Month{
	"января":   time.January,
	"февраля":  time.February,
	"марта":    time.March,
	"апреля":   time.April,
	"мая":      time.May,
	"июня":     time.June,
	"июля":     time.July,
	"августа":  time.August,
	"сентября": time.September,
	"октября":  time.October,
	"ноября":   time.November,
	"декабря":  time.December,
}

// yearRollover is how far in the past a year-less date may be before it is
// read as next year's date (a January label seen in December).
const yearRollover = 31 * 24 * time.Hour

// ParseShowtime parses free-form showtime text in loc. ref anchors year
// inference for labels without a year.
func ParseShowtime(text string, ref time.Time, loc *time.Location) (Showtime, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.Join(strings.Fields(text), " ")
	if s == "" {
		return Showtime{}, ErrUnparseableDate
	}

	for _, l := range numericLayouts {
		t, err := time.ParseInLocation(l.layout, s, loc)
		if err != nil {
			continue
		}
		return newShowtime(t, l.hasTime), nil
	}

	if m := dayMonthRe.FindStringSubmatch(strings.ToLower(s)); m != nil {
		return parseDayMonth(m, ref.In(loc), loc)
	}

	return Showtime{}, fmt.Errorf("%w: %q", ErrUnparseableDate, s)
}

func parseDayMonth(m []string, ref time.Time, loc *time.Location) (Showtime, error) {
	day, _ := strconv.Atoi(m[1])
	month, ok := genitiveMonths[m[2]]
	if !ok {
		return Showtime{}, fmt.Errorf("%w: unknown month %q", ErrUnparseableDate, m[2])
	}

	hour, minute, hasTime := 0, 0, m[3] != ""
	if hasTime {
		hour, _ = strconv.Atoi(m[3])
		minute, _ = strconv.Atoi(m[4])
		if hour > 23 || minute > 59 {
			return Showtime{}, fmt.Errorf("%w: bad clock %s:%s", ErrUnparseableDate, m[3], m[4])
		}
	}

	year := ref.Year()
	t, valid := dateIn(year, month, day, hour, minute, loc)
	refDay := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)
	if !valid || refDay.Sub(t) > yearRollover {
		// 29 February only exists in leap years; the next year may have it.
		t, valid = dateIn(year+1, month, day, hour, minute, loc)
	}
	if !valid {
		return Showtime{}, fmt.Errorf("%w: no day %d in %s", ErrUnparseableDate, day, month)
	}

	return newShowtime(t, hasTime), nil
}

// dateIn builds the date and reports whether day exists in that month.
func dateIn(year int, month time.Month, day, hour, minute int, loc *time.Location) (time.Time, bool) {
	t := time.Date(year, month, day, hour, minute, 0, 0, loc)
	return t, t.Month() == month && t.Day() == day
}

func newShowtime(t time.Time, hasTime bool) Showtime {
	st := Showtime{Date: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())}
	if hasTime {
		start := t
		st.Start = &start
	}
	return st
}
