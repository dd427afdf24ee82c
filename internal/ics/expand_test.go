package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"afishacal/internal/model"
)

func TestParseAndExpand_GeneratedCalendar(t *testing.T) {
	events := []model.EventCandidate{
		at(allDay("Timed", "2024-05-02"), "19:00"),
		allDay("Whole day", "2024-05-01"),
		allDay("Too late", "2024-06-01"),
	}
	body, err := Encode(events, EncodeOptions{Location: "Пермь"})
	require.NoError(t, err)

	parsed, err := ParseCalendar(body)
	require.NoError(t, err)
	require.Len(t, parsed, 3)

	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 2)

	first, second := res.Occurrences[0], res.Occurrences[1]
	assert.Equal(t, "Whole day", first.Summary)
	assert.True(t, first.AllDay)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), first.Start)
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), first.End)
	assert.Equal(t, "Пермь", first.Location)

	assert.Equal(t, "Timed", second.Summary)
	assert.False(t, second.AllDay)
	assert.Equal(t, time.Date(2024, 5, 2, 19, 0, 0, 0, time.UTC), second.Start)
	assert.Equal(t, time.Date(2024, 5, 2, 21, 0, 0, 0, time.UTC), second.End)
}

func TestExpand_RecurringWithExdate(t *testing.T) {
	doc := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:festival@test",
		"SUMMARY:Festival",
		"DTSTART:20240501T180000Z",
		"DTEND:20240501T200000Z",
		"RRULE:FREQ=DAILY;COUNT=5",
		"EXDATE:20240503T180000Z",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	parsed, err := ParseCalendar([]byte(doc))
	require.NoError(t, err)
	require.Len(t, parsed, 1)

	res, err := ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: time.UTC,
		RangeStart:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:        time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var days []int
	for _, occ := range res.Occurrences {
		days = append(days, occ.Start.Day())
		assert.Equal(t, 2*time.Hour, occ.End.Sub(occ.Start))
	}
	assert.Equal(t, []int{1, 2, 4, 5}, days)
}

func TestExpand_RejectsInvertedRange(t *testing.T) {
	_, err := ExpandOccurrences(nil, ExpandConfig{
		RangeStart: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)
}

func TestParseCalendar_Empty(t *testing.T) {
	_, err := ParseCalendar(nil)
	assert.Error(t, err)
}
