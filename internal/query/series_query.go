package query

import (
	"gorm.io/gorm"

	"imaging-archive-service/internal/dicom"
)

type seriesQuery struct{}

func (seriesQuery) Level() Level { return LevelSeries }

func (seriesQuery) project() []string {
	return []string{
		"patients.id",
		"patients.encoded_attrs",
		"studies.id",
		"studies.encoded_attrs",
		"sqa.num_instances",
		"sqa.num_series",
		"sqa.mods_in_study",
		"sqa.cuids_in_study",
		"series.id",
		"series.encoded_attrs",
		"srqa.num_instances",
		"srqa.retrieve_aets",
		"srqa.availability",
	}
}

func (seriesQuery) from(db *gorm.DB) *gorm.DB { return db.Table("series") }

func (seriesQuery) addJoins(db *gorm.DB, qc *QueryContext) *gorm.DB {
	db = db.
		Joins("JOIN studies ON studies.id = series.study_id").
		Joins("JOIN patients ON patients.id = studies.patient_id")
	db = joinPatientIdentifiers(db, qc)
	db = joinStudyQueryAttributes(db, qc)
	return db.Joins("LEFT JOIN series_query_attrs srqa ON srqa.series_id = series.id AND srqa.view_id = ?", qc.param.ViewID())
}

func (seriesQuery) addPredicates(db *gorm.DB, qc *QueryContext) *gorm.DB {
	db = wherePatientIDs(db, qc)
	db = whereKeys(db, LevelPatient, qc)
	db = whereKeys(db, LevelStudy, qc)
	return whereKeys(db, LevelSeries, qc)
}

func (seriesQuery) orderBy() string { return "patients.id, studies.id, series.id" }

func (seriesQuery) scanTargets(row *Row) []interface{} {
	return []interface{}{
		&row.PatientPK, &row.PatientAttrs,
		&row.StudyPK, &row.StudyAttrs,
		&row.StudyNumInstances, &row.StudyNumSeries,
		&row.StudyModalities, &row.StudySOPClasses,
		&row.SeriesPK, &row.SeriesAttrs,
		&row.SeriesNumInstances, &row.SeriesRetrieveAETs, &row.SeriesAvailability,
	}
}

// seriesStampedFields is the number of aggregate fields added to a series result.
const seriesStampedFields = 3

func (seriesQuery) assemble(a *rowAssembler, row *Row) (*dicom.Attributes, error) {
	study, err := a.studyAttrs(row)
	if err != nil {
		return nil, err
	}
	agg, err := a.seriesAggregates(row)
	if err != nil || agg == nil || agg.NumInstances == 0 {
		return nil, err
	}
	series, err := a.decode("series", row.SeriesPK, row.SeriesAttrs)
	if err != nil {
		return nil, err
	}
	attrs := Merge(study, series, seriesStampedFields)
	stampLocation(attrs, agg.RetrieveAETs, agg.Availability)
	attrs.SetInt(dicom.TagNumberOfSeriesRelatedInstances, dicom.VR_IS, agg.NumInstances)
	return attrs, nil
}
