package query

import (
	"gorm.io/gorm"

	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/entities"
)

type instanceQuery struct{}

func (instanceQuery) Level() Level { return LevelImage }

func (instanceQuery) project() []string {
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
		"instances.id",
		"instances.encoded_attrs",
		"instances.retrieve_aets",
		"instances.availability",
	}
}

func (instanceQuery) from(db *gorm.DB) *gorm.DB { return db.Table("instances") }

func (instanceQuery) addJoins(db *gorm.DB, qc *QueryContext) *gorm.DB {
	db = db.
		Joins("JOIN series ON series.id = instances.series_id").
		Joins("JOIN studies ON studies.id = series.study_id").
		Joins("JOIN patients ON patients.id = studies.patient_id")
	db = joinPatientIdentifiers(db, qc)
	return joinStudyQueryAttributes(db, qc)
}

func (instanceQuery) addPredicates(db *gorm.DB, qc *QueryContext) *gorm.DB {
	db = wherePatientIDs(db, qc)
	db = whereKeys(db, LevelPatient, qc)
	db = whereKeys(db, LevelStudy, qc)
	db = whereKeys(db, LevelSeries, qc)
	db = whereKeys(db, LevelImage, qc)
	return whereVisibility(db, &qc.param)
}

func (instanceQuery) orderBy() string { return "patients.id, studies.id, series.id, instances.id" }

func (instanceQuery) scanTargets(row *Row) []interface{} {
	return []interface{}{
		&row.PatientPK, &row.PatientAttrs,
		&row.StudyPK, &row.StudyAttrs,
		&row.StudyNumInstances, &row.StudyNumSeries,
		&row.StudyModalities, &row.StudySOPClasses,
		&row.SeriesPK, &row.SeriesAttrs,
		&row.InstancePK, &row.InstanceAttrs,
		&row.InstanceRetrieveAETs, &row.InstanceAvailability,
	}
}

func (instanceQuery) assemble(a *rowAssembler, row *Row) (*dicom.Attributes, error) {
	series, err := a.seriesAttrs(row)
	if err != nil {
		return nil, err
	}
	inst, err := a.decode("instance", row.InstancePK, row.InstanceAttrs)
	if err != nil {
		return nil, err
	}
	attrs := Merge(series, inst, 2)
	stampLocation(attrs, row.InstanceRetrieveAETs.String, entities.Availability(row.InstanceAvailability.String))
	return attrs, nil
}
