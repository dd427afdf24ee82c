package pipeline

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"afishacal/internal/model"
)

// Predicate decides whether a nationality is kept.
type Predicate func(nationality string) bool

// AcceptNationality keeps nationalities equal to want, ignoring case and
// Unicode normalization form. An empty want accepts everything.
func AcceptNationality(want string) Predicate {
	want = foldNationality(want)
	if want == "" {
		return acceptAll
	}
	return func(n string) bool {
		return foldNationality(n) == want
	}
}

// ExcludeNationality drops nationalities containing unwanted, ignoring case.
// Unknown (empty) nationalities are kept. An empty unwanted drops nothing.
func ExcludeNationality(unwanted string) Predicate {
	unwanted = foldNationality(unwanted)
	if unwanted == "" {
		return acceptAll
	}
	return func(n string) bool {
		return !strings.Contains(foldNationality(n), unwanted)
	}
}

// AllOf keeps a nationality only when every predicate keeps it.
func AllOf(preds ...Predicate) Predicate {
	return func(n string) bool {
		for _, p := range preds {
			if p != nil && !p(n) {
				return false
			}
		}
		return true
	}
}

// Filter returns the candidates whose nationality satisfies keep, in input
// order. A nil keep retains everything.
func Filter(cands []model.EventCandidate, keep Predicate) []model.EventCandidate {
	out := make([]model.EventCandidate, 0, len(cands))
	for _, c := range cands {
		if keep == nil || keep(c.Nationality) {
			out = append(out, c)
		}
	}
	return out
}

func acceptAll(string) bool { return true }

func foldNationality(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return cases.Fold().String(s)
}
