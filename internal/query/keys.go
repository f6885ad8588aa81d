package query

import "imaging-archive-service/internal/dicom"

type keyKind int

const (
	keyColumn keyKind = iota
	keyPersonName
	keyModalitiesInStudy
)

// keyDef maps a matching key to the level and column it is matched against.
type keyDef struct {
	level  Level
	column string
	kind   keyKind
	// fuzzy columns of PN keys; empty when fuzzy matching is not supported
	familyFuzzy, givenFuzzy string
}

var keyDefs = map[dicom.Tag]keyDef{
	dicom.TagPatientName:      {level: LevelPatient, column: "patients.pat_name", kind: keyPersonName, familyFuzzy: "patients.pat_name_family_fuzzy", givenFuzzy: "patients.pat_name_given_fuzzy"},
	dicom.TagPatientBirthDate: {level: LevelPatient, column: "patients.pat_birthdate"},
	dicom.TagPatientSex:       {level: LevelPatient, column: "patients.pat_sex"},

	dicom.TagStudyInstanceUID:       {level: LevelStudy, column: "studies.study_iuid"},
	dicom.TagStudyID:                {level: LevelStudy, column: "studies.study_id"},
	dicom.TagStudyDate:              {level: LevelStudy, column: "studies.study_date"},
	dicom.TagStudyTime:              {level: LevelStudy, column: "studies.study_time"},
	dicom.TagAccessionNumber:        {level: LevelStudy, column: "studies.accession_no"},
	dicom.TagStudyDescription:       {level: LevelStudy, column: "studies.study_desc"},
	dicom.TagReferringPhysicianName: {level: LevelStudy, column: "studies.ref_phys_name", kind: keyPersonName},
	dicom.TagModalitiesInStudy:      {level: LevelStudy, column: "series.modality", kind: keyModalitiesInStudy},

	dicom.TagSeriesInstanceUID: {level: LevelSeries, column: "series.series_iuid"},
	dicom.TagModality:          {level: LevelSeries, column: "series.modality"},
	dicom.TagSeriesNumber:      {level: LevelSeries, column: "series.series_no"},
	dicom.TagSeriesDescription: {level: LevelSeries, column: "series.series_desc"},
	dicom.TagBodyPartExamined:  {level: LevelSeries, column: "series.body_part"},

	dicom.TagSOPInstanceUID: {level: LevelImage, column: "instances.sop_iuid"},
	dicom.TagSOPClassUID:    {level: LevelImage, column: "instances.sop_cuid"},
	dicom.TagInstanceNumber: {level: LevelImage, column: "instances.inst_no"},
}

// lookupKey returns the definition of tag if a query at level can match it.
func lookupKey(level Level, tag dicom.Tag) (keyDef, bool) {
	def, ok := keyDefs[tag]
	if !ok || !level.Covers(def.level) {
		return keyDef{}, false
	}
	return def, true
}

// unsupportedKeys lists the requested keys a query at level cannot match.
func unsupportedKeys(level Level, qc *QueryContext) []dicom.Tag {
	var tags []dicom.Tag
	for _, k := range qc.keys {
		if _, ok := lookupKey(level, k.Tag); !ok {
			tags = append(tags, k.Tag)
		}
	}
	return tags
}
