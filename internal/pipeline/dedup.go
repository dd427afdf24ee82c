package pipeline

import "afishacal/internal/model"

const (
	// GranularityDay collapses every showtime of a film on one date.
	GranularityDay = "day"
	// GranularityShowtime keeps one event per distinct showtime.
	GranularityShowtime = "showtime"
)

// Dedup drops repeated candidates, keeping the first occurrence. The key is
// (title, date), plus the showtime under GranularityShowtime.
func Dedup(cands []model.EventCandidate, granularity string) ([]model.EventCandidate, int) {
	seen := make(map[string]struct{}, len(cands))
	out := make([]model.EventCandidate, 0, len(cands))
	dropped := 0
	for _, c := range cands {
		k := dedupKey(c, granularity)
		if _, dup := seen[k]; dup {
			dropped++
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out, dropped
}

func dedupKey(c model.EventCandidate, granularity string) string {
	k := c.Title + "\x00" + c.DateKey()
	if granularity == GranularityShowtime {
		k += "\x00" + c.TimeKey()
	}
	return k
}
