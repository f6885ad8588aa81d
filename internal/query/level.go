// Package query implements the hierarchical query engine over the
// patient, study, series and instance tables.
package query

import (
	"fmt"
	"strings"
)

// Level represents the query/retrieve level of a query
type Level string

const (
	LevelPatient Level = "PATIENT"
	LevelStudy   Level = "STUDY"
	LevelSeries  Level = "SERIES"
	LevelImage   Level = "IMAGE"
)

// depth orders levels from the root of the hierarchy.
func (l Level) depth() int {
	switch l {
	case LevelPatient:
		return 0
	case LevelStudy:
		return 1
	case LevelSeries:
		return 2
	case LevelImage:
		return 3
	}
	return -1
}

// Covers reports whether keys of level other can be matched by a query at l.
func (l Level) Covers(other Level) bool {
	return other.depth() >= 0 && other.depth() <= l.depth()
}

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if l.depth() < 0 {
		return "", fmt.Errorf("unknown query level %q", s)
	}
	return l, nil
}
