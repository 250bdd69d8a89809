package models

import (
	pstrings "certledger/pkg/platform/strings"
)

// Filter is the visible-projection query over a certificate collection.
type Filter struct {
	Query  string
	Status Status
}

// Matches reports whether c satisfies the status filter and every query term.
// Terms match case-insensitively against id, uniqueId, course, and parties.
func (f Filter) Matches(c Certificate) bool {
	if f.Status != "" && f.Status != StatusAll && c.Status() != f.Status {
		return false
	}
	for _, term := range pstrings.Terms(f.Query) {
		if !matchesTerm(c, term) {
			return false
		}
	}
	return true
}

func matchesTerm(c Certificate, term string) bool {
	for _, field := range []string{c.ID, c.UniqueID, c.CourseName, c.CourseID, c.Student, c.Institution} {
		if pstrings.ContainsFold(field, term) {
			return true
		}
	}
	return false
}

// Apply returns the certificates matching f, preserving order.
func (f Filter) Apply(certs []Certificate) []Certificate {
	out := make([]Certificate, 0, len(certs))
	for _, c := range certs {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}
