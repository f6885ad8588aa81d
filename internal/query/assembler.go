package query

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/entities"
	apperrors "imaging-archive-service/internal/errors"
)

// Merge returns a new attribute set holding the elements of ancestor followed
// by those of child, declared in a character set valid for both. extra is the
// number of fields the caller will stamp afterwards. Neither input is modified.
func Merge(ancestor, child *dicom.Attributes, extra int) *dicom.Attributes {
	codes := dicom.UnifiedCharacterSet(ancestor, child)
	out := dicom.NewAttributes(ancestor.Size() + child.Size() + extra)
	out.AddAll(ancestor)
	out.AddAll(child)
	out.SetSpecificCharacterSet(codes...)
	return out
}

// ancestorCache holds the last assembled ancestor of a stream. It is reused
// while the ancestor key repeats and rebuilt on every change.
type ancestorCache struct {
	level Level
	key   uuid.UUID
	valid bool
	attrs *dicom.Attributes
	err   error
}

func (c *ancestorCache) get(key uuid.UUID, build func() (*dicom.Attributes, error)) (*dicom.Attributes, error) {
	if c.valid && c.key == key {
		return c.attrs, c.err
	}
	queryAncestorDecodes.WithLabelValues(string(c.level)).Inc()
	c.attrs, c.err = build()
	c.key, c.valid = key, true
	return c.attrs, c.err
}

// rowAssembler turns rows into attribute sets for one query execution.
type rowAssembler struct {
	ctx   context.Context
	codec dicom.Codec
	qc    *QueryContext
	param QueryParam
	level Level

	patient ancestorCache
	study   ancestorCache
	series  ancestorCache
}

func newRowAssembler(ctx context.Context, codec dicom.Codec, qc *QueryContext, level Level) *rowAssembler {
	return &rowAssembler{
		ctx:     ctx,
		codec:   codec,
		qc:      qc,
		param:   qc.Param(),
		level:   level,
		patient: ancestorCache{level: LevelPatient},
		study:   ancestorCache{level: LevelStudy},
		series:  ancestorCache{level: LevelSeries},
	}
}

func (a *rowAssembler) decode(entity string, pk uuid.UUID, blob []byte) (*dicom.Attributes, error) {
	attrs, err := a.codec.Decode(blob, nil)
	if err != nil {
		return nil, apperrors.NewDecodeError(entity, pk, err)
	}
	return attrs, nil
}

// patientAttrs returns the patient of row, decoded once per run of equal keys.
func (a *rowAssembler) patientAttrs(row *Row) (*dicom.Attributes, error) {
	return a.patient.get(row.PatientPK, func() (*dicom.Attributes, error) {
		return a.decode("patient", row.PatientPK, row.PatientAttrs)
	})
}

// studyAttrs returns patient and study merged with the study aggregates
// stamped, once per run of equal study keys.
func (a *rowAssembler) studyAttrs(row *Row) (*dicom.Attributes, error) {
	return a.study.get(row.StudyPK, func() (*dicom.Attributes, error) {
		patient, err := a.patientAttrs(row)
		if err != nil {
			return nil, err
		}
		study, err := a.decode("study", row.StudyPK, row.StudyAttrs)
		if err != nil {
			return nil, err
		}
		agg, err := a.studyAggregates(row)
		if err != nil {
			return nil, err
		}
		attrs := Merge(patient, study, 4)
		if agg != nil {
			stampStudyAggregates(attrs, agg)
		}
		return attrs, nil
	})
}

// seriesAttrs returns patient, study and series merged, once per run of equal series keys.
func (a *rowAssembler) seriesAttrs(row *Row) (*dicom.Attributes, error) {
	return a.series.get(row.SeriesPK, func() (*dicom.Attributes, error) {
		study, err := a.studyAttrs(row)
		if err != nil {
			return nil, err
		}
		series, err := a.decode("series", row.SeriesPK, row.SeriesAttrs)
		if err != nil {
			return nil, err
		}
		return Merge(study, series, 0), nil
	})
}

// studyAggregates returns the aggregates of the row's study, from the row when
// stored for this view, otherwise from the aggregate source. A nil result
// means the study has vanished.
func (a *rowAssembler) studyAggregates(row *Row) (*entities.StudyQueryAttributes, error) {
	if row.StudyNumInstances.Valid {
		return &entities.StudyQueryAttributes{
			StudyID:      row.StudyPK,
			NumInstances: int(row.StudyNumInstances.Int64),
			NumSeries:    int(row.StudyNumSeries.Int64),
			ModsInStudy:  row.StudyModalities.String,
			CUIDsInStudy: row.StudySOPClasses.String,
			RetrieveAETs: row.StudyRetrieveAETs.String,
			Availability: entities.Availability(row.StudyAvailability.String),
		}, nil
	}
	a.fallback()
	agg, err := a.qc.Aggregates().StudyAttributes(a.ctx, row.StudyPK, &a.param)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	return agg, err
}

// seriesAggregates is the series counterpart of studyAggregates.
func (a *rowAssembler) seriesAggregates(row *Row) (*entities.SeriesQueryAttributes, error) {
	if row.SeriesNumInstances.Valid {
		return &entities.SeriesQueryAttributes{
			SeriesID:     row.SeriesPK,
			NumInstances: int(row.SeriesNumInstances.Int64),
			RetrieveAETs: row.SeriesRetrieveAETs.String,
			Availability: entities.Availability(row.SeriesAvailability.String),
		}, nil
	}
	a.fallback()
	agg, err := a.qc.Aggregates().SeriesAttributes(a.ctx, row.SeriesPK, &a.param)
	if apperrors.IsNotFound(err) {
		return nil, nil
	}
	return agg, err
}

func (a *rowAssembler) fallback() {
	queryAggregateFallbacks.WithLabelValues(string(a.level)).Inc()
}

// stampStudyAggregates writes the study counts, modalities and SOP classes.
func stampStudyAggregates(attrs *dicom.Attributes, agg *entities.StudyQueryAttributes) {
	if mods := agg.Modalities(); len(mods) > 0 {
		attrs.SetString(dicom.TagModalitiesInStudy, dicom.VR_CS, mods...)
	}
	if cuids := agg.SOPClasses(); len(cuids) > 0 {
		attrs.SetString(dicom.TagSOPClassesInStudy, dicom.VR_UI, cuids...)
	}
	attrs.SetInt(dicom.TagNumberOfStudyRelatedSeries, dicom.VR_IS, agg.NumSeries)
	attrs.SetInt(dicom.TagNumberOfStudyRelatedInstances, dicom.VR_IS, agg.NumInstances)
}

// stampLocation writes the retrieve AE titles and availability.
func stampLocation(attrs *dicom.Attributes, retrieveAETs string, availability entities.Availability) {
	if retrieveAETs != "" {
		attrs.SetString(dicom.TagRetrieveAETitle, dicom.VR_AE, strings.Split(retrieveAETs, `\`)...)
	}
	if availability != "" {
		attrs.SetString(dicom.TagInstanceAvailability, dicom.VR_CS, string(availability))
	}
}
