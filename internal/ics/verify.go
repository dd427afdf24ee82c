package ics

import (
	"bytes"
	"errors"
	"fmt"

	ical "github.com/arran4/golang-ical"
)

// Verify parses a serialized document back and checks that every event has
// a UID and that no UID repeats. It returns the number of events.
func Verify(body []byte) (int, error) {
	if len(body) == 0 {
		return 0, errors.New("verify: empty document")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("verify: parse: %w", err)
	}

	events := cal.Events()
	seen := make(map[string]struct{}, len(events))
	for i, ev := range events {
		var uid string
		if p := ev.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
			uid = p.Value
		}
		if uid == "" {
			return 0, fmt.Errorf("verify: event %d has no UID", i)
		}
		if _, dup := seen[uid]; dup {
			return 0, fmt.Errorf("verify: %w: %s", ErrDuplicateUID, uid)
		}
		seen[uid] = struct{}{}
	}
	return len(events), nil
}
