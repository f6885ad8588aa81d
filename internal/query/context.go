package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/entities"
	apperrors "imaging-archive-service/internal/errors"
)

// MatchType is the kind of matching applied to one key.
type MatchType int

const (
	MatchExact MatchType = iota
	MatchRange
	MatchWildcard
	MatchFuzzy
)

func (m MatchType) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchRange:
		return "range"
	case MatchWildcard:
		return "wildcard"
	case MatchFuzzy:
		return "fuzzy"
	}
	return fmt.Sprintf("MatchType(%d)", int(m))
}

// MatchingKey is one requested key. Several values are OR-ed.
type MatchingKey struct {
	Tag    dicom.Tag
	VR     dicom.VR
	Values []string
	Type   MatchType
}

// ParseMatchingKey infers the match type from the value the way a C-FIND
// identifier would: '*' or '?' means wildcard, '-' on a date or time means
// range and a backslash separates list values. PN values use fuzzy matching
// when fuzzy is set.
func ParseMatchingKey(tag dicom.Tag, value string, fuzzy bool) MatchingKey {
	vr := dicom.VROf(tag)
	key := MatchingKey{Tag: tag, VR: vr, Values: strings.Split(value, `\`), Type: MatchExact}
	switch {
	case strings.ContainsAny(value, "*?"):
		key.Type = MatchWildcard
	case vr.IsDateTime() && strings.Contains(value, "-"):
		key.Type = MatchRange
	case vr == dicom.VR_PN && fuzzy:
		key.Type = MatchFuzzy
	}
	return key
}

// IsUniversal reports whether the key matches everything ("*").
func (k MatchingKey) IsUniversal() bool {
	return k.Type == MatchWildcard && len(k.Values) == 1 && strings.Trim(k.Values[0], "*") == ""
}

// AggregateSource computes or returns cached aggregates of a study or series.
// A NotFoundError means the entity vanished and counts as zero instances.
type AggregateSource interface {
	StudyAttributes(ctx context.Context, studyPK uuid.UUID, param *QueryParam) (*entities.StudyQueryAttributes, error)
	SeriesAttributes(ctx context.Context, seriesPK uuid.UUID, param *QueryParam) (*entities.SeriesQueryAttributes, error)
}

// QueryContext is the immutable set of criteria for one query execution.
type QueryContext struct {
	param      QueryParam
	aggregates AggregateSource
	patientIDs []*dicom.IDWithIssuer
	keys       []MatchingKey
	fuzzy      dicom.FuzzyStr
}

// Option configures a QueryContext under construction.
type Option func(*QueryContext)

// WithPatientIDs restricts the query to patients with any of the identifiers.
func WithPatientIDs(ids ...*dicom.IDWithIssuer) Option {
	return func(qc *QueryContext) {
		for _, id := range ids {
			if id != nil {
				qc.patientIDs = append(qc.patientIDs, id)
			}
		}
	}
}

// WithMatchingKey adds a matching key. A later key for the same tag replaces
// the earlier one.
func WithMatchingKey(key MatchingKey) Option {
	return func(qc *QueryContext) {
		for i := range qc.keys {
			if qc.keys[i].Tag == key.Tag {
				qc.keys[i] = key
				return
			}
		}
		qc.keys = append(qc.keys, key)
	}
}

// WithFuzzyStr sets the algorithm used to derive fuzzy codes of PN keys.
func WithFuzzyStr(f dicom.FuzzyStr) Option {
	return func(qc *QueryContext) { qc.fuzzy = f }
}

// NewQueryContext builds and validates a query context. Contradictory options
// fail here with a ValidationError instead of at query time.
func NewQueryContext(param QueryParam, aggregates AggregateSource, opts ...Option) (*QueryContext, error) {
	qc := &QueryContext{param: param, aggregates: aggregates, fuzzy: dicom.Soundex{}}
	for _, opt := range opts {
		opt(qc)
	}
	if qc.param.OptionalKeysPolicy == "" {
		qc.param.OptionalKeysPolicy = OptionalKeysReport
	}
	if err := qc.validate(); err != nil {
		return nil, err
	}
	return qc, nil
}

func (qc *QueryContext) validate() error {
	if err := qc.param.Validate(); err != nil {
		return apperrors.NewValidationError("QueryParam", "%v", err)
	}
	if qc.aggregates == nil {
		return apperrors.NewValidationError("AggregateSource", "must not be nil")
	}
	for _, id := range qc.patientIDs {
		if id.ID == "" {
			return apperrors.NewValidationError("PatientID", "empty patient id")
		}
	}
	for _, key := range qc.keys {
		if err := qc.validateKey(key); err != nil {
			return err
		}
	}
	return nil
}

func (qc *QueryContext) validateKey(key MatchingKey) error {
	name := key.Tag.Keyword()
	if name == "" {
		name = key.Tag.String()
	}
	switch key.Tag {
	case dicom.TagPatientID, dicom.TagIssuerOfPatientID, dicom.TagIssuerOfPatientIDQualifiersSequence:
		return apperrors.NewValidationError(name, "patient identifiers are passed with WithPatientIDs")
	}
	if len(key.Values) == 0 {
		return apperrors.NewValidationError(name, "no values")
	}
	switch key.Type {
	case MatchRange:
		if !key.VR.IsDateTime() {
			return apperrors.NewValidationError(name, "range matching on VR %s", key.VR)
		}
		if len(key.Values) != 1 {
			return apperrors.NewValidationError(name, "range matching with %d values", len(key.Values))
		}
		if _, _, err := parseRange(key.Values[0]); err != nil {
			return apperrors.NewValidationError(name, "%v", err)
		}
	case MatchWildcard:
		if key.VR == dicom.VR_UI || key.VR.IsDateTime() {
			return apperrors.NewValidationError(name, "wildcard matching on VR %s", key.VR)
		}
	case MatchFuzzy:
		if key.VR != dicom.VR_PN {
			return apperrors.NewValidationError(name, "fuzzy matching on VR %s", key.VR)
		}
		if !qc.param.FuzzySemanticMatching {
			return apperrors.NewValidationError(name, "fuzzy matching requested but fuzzy semantic matching is disabled")
		}
		if len(key.Values) != 1 {
			return apperrors.NewValidationError(name, "fuzzy matching with %d values", len(key.Values))
		}
	case MatchExact:
	default:
		return apperrors.NewValidationError(name, "unknown match type %s", key.Type)
	}
	return nil
}

// Param returns a copy of the matching parameters.
func (qc *QueryContext) Param() QueryParam { return qc.param }

// Aggregates returns the aggregate source.
func (qc *QueryContext) Aggregates() AggregateSource { return qc.aggregates }

// PatientIDs returns the identifier filter.
func (qc *QueryContext) PatientIDs() []*dicom.IDWithIssuer {
	return append([]*dicom.IDWithIssuer(nil), qc.patientIDs...)
}

// MatchingKeys returns the keys in request order.
func (qc *QueryContext) MatchingKeys() []MatchingKey {
	return append([]MatchingKey(nil), qc.keys...)
}

// FuzzyStr returns the fuzzy code algorithm.
func (qc *QueryContext) FuzzyStr() dicom.FuzzyStr { return qc.fuzzy }

func (qc *QueryContext) key(tag dicom.Tag) (MatchingKey, bool) {
	for _, k := range qc.keys {
		if k.Tag == tag {
			return k, true
		}
	}
	return MatchingKey{}, false
}

// parseRange splits "a-b", "-b" or "a-". A value without '-' is the single point a-a.
func parseRange(value string) (lower, upper string, err error) {
	lower, upper, found := strings.Cut(value, "-")
	if !found {
		return value, value, nil
	}
	if lower == "" && upper == "" {
		return "", "", fmt.Errorf("empty range")
	}
	if lower != "" && upper != "" && lower > upper {
		return "", "", fmt.Errorf("range %q has lower bound after upper bound", value)
	}
	return lower, upper, nil
}
