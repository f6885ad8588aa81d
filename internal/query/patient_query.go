package query

import (
	"gorm.io/gorm"

	"imaging-archive-service/internal/dicom"
)

type patientQuery struct{}

func (patientQuery) Level() Level { return LevelPatient }

func (patientQuery) project() []string {
	return []string{
		"patients.id",
		"patients.encoded_attrs",
		"(SELECT COUNT(*) FROM studies ps WHERE ps.patient_id = patients.id) AS num_studies",
	}
}

func (patientQuery) from(db *gorm.DB) *gorm.DB { return db.Table("patients") }

func (patientQuery) addJoins(db *gorm.DB, qc *QueryContext) *gorm.DB {
	return joinPatientIdentifiers(db, qc)
}

func (patientQuery) addPredicates(db *gorm.DB, qc *QueryContext) *gorm.DB {
	db = wherePatientIDs(db, qc)
	return whereKeys(db, LevelPatient, qc)
}

func (patientQuery) orderBy() string { return "patients.id" }

func (patientQuery) scanTargets(row *Row) []interface{} {
	return []interface{}{&row.PatientPK, &row.PatientAttrs, &row.NumStudies}
}

func (patientQuery) assemble(a *rowAssembler, row *Row) (*dicom.Attributes, error) {
	patient, err := a.decode("patient", row.PatientPK, row.PatientAttrs)
	if err != nil {
		return nil, err
	}
	patient.SetSpecificCharacterSet(dicom.UnifiedCharacterSet(patient)...)
	patient.SetInt(dicom.TagNumberOfPatientRelatedStudies, dicom.VR_IS, int(row.NumStudies.Int64))
	return patient, nil
}
