package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaging-archive-service/internal/dicom"
	apperrors "imaging-archive-service/internal/errors"
)

func TestParseMatchingKey(t *testing.T) {
	tests := []struct {
		name   string
		tag    dicom.Tag
		value  string
		fuzzy  bool
		want   MatchType
		values []string
	}{
		{"exact", dicom.TagModality, "CT", false, MatchExact, []string{"CT"}},
		{"list", dicom.TagModality, `CT\MR`, false, MatchExact, []string{"CT", "MR"}},
		{"wildcard", dicom.TagPatientName, "DOE*", false, MatchWildcard, []string{"DOE*"}},
		{"range", dicom.TagStudyDate, "20240101-", false, MatchRange, []string{"20240101-"}},
		{"dash outside date", dicom.TagAccessionNumber, "A-1", false, MatchExact, []string{"A-1"}},
		{"fuzzy name", dicom.TagPatientName, "DOE^JOHN", true, MatchFuzzy, []string{"DOE^JOHN"}},
		{"wildcard wins over fuzzy", dicom.TagPatientName, "DO*", true, MatchWildcard, []string{"DO*"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := ParseMatchingKey(tt.tag, tt.value, tt.fuzzy)
			assert.Equal(t, tt.want, key.Type)
			assert.Equal(t, tt.values, key.Values)
			assert.Equal(t, dicom.VROf(tt.tag), key.VR)
		})
	}

	assert.True(t, ParseMatchingKey(dicom.TagStudyDescription, "*", false).IsUniversal())
	assert.False(t, ParseMatchingKey(dicom.TagStudyDescription, "A*", false).IsUniversal())
}

func TestNewQueryContext_Validation(t *testing.T) {
	agg := &fakeAggregates{}
	tests := []struct {
		name  string
		param QueryParam
		agg   AggregateSource
		opts  []Option
	}{
		{"contradictory visibility", QueryParam{HideRejectedInstances: true, HideNotRejectedInstances: true}, agg, nil},
		{"unknown policy", QueryParam{OptionalKeysPolicy: "ignore"}, agg, nil},
		{"bad time zone", QueryParam{DefaultTimeZone: "Mars/Olympus"}, agg, nil},
		{"no aggregate source", QueryParam{}, nil, nil},
		{"empty patient id", QueryParam{}, agg, []Option{WithPatientIDs(&dicom.IDWithIssuer{})}},
		{"patient id as key", QueryParam{}, agg, []Option{WithMatchingKey(ParseMatchingKey(dicom.TagPatientID, "P1", false))}},
		{"range on text", QueryParam{}, agg, []Option{WithMatchingKey(MatchingKey{Tag: dicom.TagModality, VR: dicom.VR_CS, Type: MatchRange, Values: []string{"A-B"}})}},
		{"inverted range", QueryParam{}, agg, []Option{WithMatchingKey(ParseMatchingKey(dicom.TagStudyDate, "20240131-20240101", false))}},
		{"empty range", QueryParam{}, agg, []Option{WithMatchingKey(ParseMatchingKey(dicom.TagStudyDate, "-", false))}},
		{"wildcard on uid", QueryParam{}, agg, []Option{WithMatchingKey(ParseMatchingKey(dicom.TagStudyInstanceUID, "1.2.*", false))}},
		{"fuzzy disabled", QueryParam{}, agg, []Option{WithMatchingKey(ParseMatchingKey(dicom.TagPatientName, "DOE", true))}},
		{"fuzzy on text", QueryParam{FuzzySemanticMatching: true}, agg, []Option{WithMatchingKey(MatchingKey{Tag: dicom.TagModality, VR: dicom.VR_CS, Type: MatchFuzzy, Values: []string{"CT"}})}},
		{"no values", QueryParam{}, agg, []Option{WithMatchingKey(MatchingKey{Tag: dicom.TagModality, VR: dicom.VR_CS})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qc, err := NewQueryContext(tt.param, tt.agg, tt.opts...)
			assert.Nil(t, qc)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestNewQueryContext_Defaults(t *testing.T) {
	qc, err := NewQueryContext(QueryParam{}, &fakeAggregates{},
		WithMatchingKey(ParseMatchingKey(dicom.TagModality, "CT", false)),
		WithMatchingKey(ParseMatchingKey(dicom.TagModality, "MR", false)),
		WithPatientIDs(nil, &dicom.IDWithIssuer{ID: "P1"}),
	)
	require.NoError(t, err)

	param := qc.Param()
	assert.Equal(t, OptionalKeysReport, param.OptionalKeysPolicy)
	assert.Equal(t, "all", param.ViewID())
	assert.Equal(t, "S530", qc.FuzzyStr().ToFuzzy("SMITH"))
	require.Len(t, qc.MatchingKeys(), 1, "a later key for the same tag replaces the earlier one")
	assert.Equal(t, []string{"MR"}, qc.MatchingKeys()[0].Values)
	require.Len(t, qc.PatientIDs(), 1)
	assert.Equal(t, "P1", qc.PatientIDs()[0].ID)
}

func TestParseRange(t *testing.T) {
	lower, upper, err := parseRange("0800-1700")
	require.NoError(t, err)
	assert.Equal(t, "0800", lower)
	assert.Equal(t, "1700", upper)

	lower, upper, err = parseRange("20240101")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)

	_, _, err = parseRange("-")
	assert.Error(t, err)
}

func TestLevel(t *testing.T) {
	l, err := ParseLevel(" series ")
	require.NoError(t, err)
	assert.Equal(t, LevelSeries, l)
	assert.True(t, LevelSeries.Covers(LevelPatient))
	assert.True(t, LevelSeries.Covers(LevelSeries))
	assert.False(t, LevelStudy.Covers(LevelImage))

	_, err = ParseLevel("FRAME")
	assert.Error(t, err)
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	ancestor := dicom.NewAttributes(2)
	ancestor.SetSpecificCharacterSet("ISO_IR 100")
	ancestor.SetString(dicom.TagPatientName, dicom.VR_PN, "Müller")
	child := dicom.NewAttributes(2)
	child.SetSpecificCharacterSet("ISO_IR 144")
	child.SetString(dicom.TagStudyDescription, dicom.VR_LO, "Тест")

	merged := Merge(ancestor, child, 1)

	assert.Equal(t, []string{dicom.CharsetUTF8}, merged.SpecificCharacterSet())
	assert.Equal(t, "Müller", merged.GetString(dicom.TagPatientName))
	assert.Equal(t, "Тест", merged.GetString(dicom.TagStudyDescription))
	assert.Equal(t, []string{"ISO_IR 100"}, ancestor.SpecificCharacterSet())
	assert.Equal(t, []string{"ISO_IR 144"}, child.SpecificCharacterSet())
	assert.False(t, ancestor.Contains(dicom.TagStudyDescription))
}
