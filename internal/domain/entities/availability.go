package entities

import (
	"sort"
	"strings"
)

// Availability classifies how quickly stored data can be retrieved.
type Availability string

const (
	AvailabilityOnline      Availability = "ONLINE"
	AvailabilityNearline    Availability = "NEARLINE"
	AvailabilityOffline     Availability = "OFFLINE"
	AvailabilityUnavailable Availability = "UNAVAILABLE"
)

func (a Availability) rank() int {
	switch a {
	case AvailabilityOnline:
		return 0
	case AvailabilityNearline:
		return 1
	case AvailabilityOffline:
		return 2
	default:
		return 3
	}
}

// Worse returns whichever of a and b is slower to retrieve. An empty value is ignored.
func (a Availability) Worse(b Availability) Availability {
	if a == "" {
		return b
	}
	if b == "" || a.rank() >= b.rank() {
		return a
	}
	return b
}

// IntersectAETs returns the retrieve AE titles common to every list, sorted.
// Lists are backslash separated.
func IntersectAETs(lists ...string) string {
	if len(lists) == 0 {
		return ""
	}
	common := map[string]bool{}
	for _, aet := range splitList(lists[0]) {
		common[aet] = true
	}
	for _, list := range lists[1:] {
		present := map[string]bool{}
		for _, aet := range splitList(list) {
			present[aet] = true
		}
		for aet := range common {
			if !present[aet] {
				delete(common, aet)
			}
		}
	}
	out := make([]string, 0, len(common))
	for aet := range common {
		out = append(out, aet)
	}
	sort.Strings(out)
	return strings.Join(out, `\`)
}

// Models lists every entity for schema migration.
func Models() []interface{} {
	return []interface{}{
		&Issuer{},
		&PatientIdentifier{},
		&Patient{},
		&Study{},
		&Series{},
		&Instance{},
		&StudyQueryAttributes{},
		&SeriesQueryAttributes{},
	}
}
