package models

import (
	"fmt"
	"strings"
	"time"
)

// Term is the academic half-year deciding which semesters are scheduled together.
type Term string

const (
	TermOdd  Term = "odd"
	TermEven Term = "even"
)

// TermFor maps a calendar date onto its term: July to December is odd, January to June is even.
func TermFor(t time.Time) Term {
	if t.Month() >= time.July {
		return TermOdd
	}
	return TermEven
}

// ParseTerm validates a term name. An empty input yields an empty term.
func ParseTerm(raw string) (Term, error) {
	switch Term(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return "", nil
	case TermOdd:
		return TermOdd, nil
	case TermEven:
		return TermEven, nil
	}
	return "", fmt.Errorf("unknown term %q", raw)
}

// Semesters returns the semesters combined in the term, in processing order.
func (t Term) Semesters() []int {
	switch t {
	case TermOdd:
		return []int{1, 3, 5, 7}
	case TermEven:
		return []int{2, 4, 6, 8}
	}
	return nil
}

// Includes reports whether semester belongs to the term.
func (t Term) Includes(semester int) bool {
	for _, s := range t.Semesters() {
		if s == semester {
			return true
		}
	}
	return false
}
