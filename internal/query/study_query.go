package query

import (
	"gorm.io/gorm"

	"imaging-archive-service/internal/dicom"
)

type studyQuery struct{}

func (studyQuery) Level() Level { return LevelStudy }

func (studyQuery) project() []string {
	return []string{
		"patients.id",
		"patients.encoded_attrs",
		"studies.id",
		"studies.encoded_attrs",
		"sqa.num_instances",
		"sqa.num_series",
		"sqa.mods_in_study",
		"sqa.cuids_in_study",
		"sqa.retrieve_aets",
		"sqa.availability",
	}
}

func (studyQuery) from(db *gorm.DB) *gorm.DB { return db.Table("studies") }

func (studyQuery) addJoins(db *gorm.DB, qc *QueryContext) *gorm.DB {
	db = db.Joins("JOIN patients ON patients.id = studies.patient_id")
	db = joinPatientIdentifiers(db, qc)
	return joinStudyQueryAttributes(db, qc)
}

func (studyQuery) addPredicates(db *gorm.DB, qc *QueryContext) *gorm.DB {
	db = wherePatientIDs(db, qc)
	db = whereKeys(db, LevelPatient, qc)
	return whereKeys(db, LevelStudy, qc)
}

func (studyQuery) orderBy() string { return "patients.id, studies.id" }

func (studyQuery) scanTargets(row *Row) []interface{} {
	return []interface{}{
		&row.PatientPK, &row.PatientAttrs,
		&row.StudyPK, &row.StudyAttrs,
		&row.StudyNumInstances, &row.StudyNumSeries,
		&row.StudyModalities, &row.StudySOPClasses,
		&row.StudyRetrieveAETs, &row.StudyAvailability,
	}
}

// studyStampedFields is the number of aggregate fields added to a study result.
const studyStampedFields = 6

func (studyQuery) assemble(a *rowAssembler, row *Row) (*dicom.Attributes, error) {
	patient, err := a.patientAttrs(row)
	if err != nil {
		return nil, err
	}
	agg, err := a.studyAggregates(row)
	if err != nil || agg == nil || agg.NumInstances == 0 {
		return nil, err
	}
	study, err := a.decode("study", row.StudyPK, row.StudyAttrs)
	if err != nil {
		return nil, err
	}
	attrs := Merge(patient, study, studyStampedFields)
	stampStudyAggregates(attrs, agg)
	stampLocation(attrs, agg.RetrieveAETs, agg.Availability)
	return attrs, nil
}

// joinStudyQueryAttributes joins the stored study aggregates of the view as sqa.
func joinStudyQueryAttributes(db *gorm.DB, qc *QueryContext) *gorm.DB {
	return db.Joins("LEFT JOIN study_query_attrs sqa ON sqa.study_id = studies.id AND sqa.view_id = ?", qc.param.ViewID())
}
