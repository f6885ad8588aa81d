package query

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Optional key policies.
const (
	OptionalKeysReport = "report"
	OptionalKeysReject = "reject"
)

// paramValidate is the validator instance for query parameters.
var paramValidate = validator.New()

// QueryParam holds the matching parameters of a query. The visibility options
// also apply to aggregate computation and so determine the view id.
type QueryParam struct {
	CombinedDatetimeMatching bool   `yaml:"combined_datetime_matching"`
	FuzzySemanticMatching    bool   `yaml:"fuzzy_semantic_matching"`
	HideRejectedInstances    bool   `yaml:"hide_rejected_instances" validate:"excluded_with=HideNotRejectedInstances"`
	HideNotRejectedInstances bool   `yaml:"hide_not_rejected_instances"`
	DefaultTimeZone          string `yaml:"default_time_zone" validate:"omitempty,timezone"`
	OptionalKeysPolicy       string `yaml:"optional_keys_policy" validate:"omitempty,oneof=report reject"`
}

// Validate checks the parameter combination.
func (p *QueryParam) Validate() error {
	return paramValidate.Struct(p)
}

// ViewID fingerprints the options that change aggregate values.
func (p *QueryParam) ViewID() string {
	switch {
	case p.HideRejectedInstances:
		return "hide-rejected"
	case p.HideNotRejectedInstances:
		return "hide-not-rejected"
	default:
		return "all"
	}
}

// Location returns the default time zone, or time.Local when unset.
func (p *QueryParam) Location() (*time.Location, error) {
	if p.DefaultTimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(p.DefaultTimeZone)
	if err != nil {
		return nil, fmt.Errorf("default time zone: %w", err)
	}
	return loc, nil
}

// RejectsOptionalKeys reports whether unsupported optional keys fail the query.
func (p *QueryParam) RejectsOptionalKeys() bool {
	return p.OptionalKeysPolicy == OptionalKeysReject
}
