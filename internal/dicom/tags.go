// Package dicom contains the attribute model shared by the archive: tags, value
// representations, ordered attribute sets, character sets and the blob codec.
package dicom

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag identifies a data element as (gggg,eeee) packed into 32 bits.
type Tag uint32

// NewTag builds a tag from its group and element numbers.
func NewTag(group, element uint16) Tag {
	return Tag(uint32(group)<<16 | uint32(element))
}

// Group returns the group number.
func (t Tag) Group() uint16 { return uint16(t >> 16) }

// Element returns the element number.
func (t Tag) Element() uint16 { return uint16(t) }

// String returns the tag in (gggg,eeee) format.
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group(), t.Element())
}

// Hex returns the tag as eight upper-case hex digits, as used by the DICOM JSON model.
func (t Tag) Hex() string {
	return fmt.Sprintf("%08X", uint32(t))
}

const (
	TagSpecificCharacterSet                Tag = 0x00080005
	TagSOPClassUID                         Tag = 0x00080016
	TagSOPInstanceUID                      Tag = 0x00080018
	TagStudyDate                           Tag = 0x00080020
	TagStudyTime                           Tag = 0x00080030
	TagAccessionNumber                     Tag = 0x00080050
	TagQueryRetrieveLevel                  Tag = 0x00080052
	TagRetrieveAETitle                     Tag = 0x00080054
	TagInstanceAvailability                Tag = 0x00080056
	TagModality                            Tag = 0x00080060
	TagModalitiesInStudy                   Tag = 0x00080061
	TagSOPClassesInStudy                   Tag = 0x00080062
	TagReferringPhysicianName              Tag = 0x00080090
	TagStudyDescription                    Tag = 0x00081030
	TagSeriesDescription                   Tag = 0x0008103E
	TagPatientName                         Tag = 0x00100010
	TagPatientID                           Tag = 0x00100020
	TagIssuerOfPatientID                   Tag = 0x00100021
	TagIssuerOfPatientIDQualifiersSequence Tag = 0x00100024
	TagPatientBirthDate                    Tag = 0x00100030
	TagPatientSex                          Tag = 0x00100040
	TagBodyPartExamined                    Tag = 0x00180015
	TagStudyInstanceUID                    Tag = 0x0020000D
	TagSeriesInstanceUID                   Tag = 0x0020000E
	TagStudyID                             Tag = 0x00200010
	TagSeriesNumber                        Tag = 0x00200011
	TagInstanceNumber                      Tag = 0x00200013
	TagNumberOfPatientRelatedStudies       Tag = 0x00201200
	TagNumberOfStudyRelatedSeries          Tag = 0x00201206
	TagNumberOfStudyRelatedInstances       Tag = 0x00201208
	TagNumberOfSeriesRelatedInstances      Tag = 0x00201209
	TagUniversalEntityID                   Tag = 0x00400032
	TagUniversalEntityIDType               Tag = 0x00400033

	TagItem                     Tag = 0xFFFEE000
	TagItemDelimitationItem     Tag = 0xFFFEE00D
	TagSequenceDelimitationItem Tag = 0xFFFEE0DD
)

type dictionaryEntry struct {
	keyword string
	vr      VR
}

var dictionary = map[Tag]dictionaryEntry{
	TagSpecificCharacterSet:                {"SpecificCharacterSet", VR_CS},
	TagSOPClassUID:                         {"SOPClassUID", VR_UI},
	TagSOPInstanceUID:                      {"SOPInstanceUID", VR_UI},
	TagStudyDate:                           {"StudyDate", VR_DA},
	TagStudyTime:                           {"StudyTime", VR_TM},
	TagAccessionNumber:                     {"AccessionNumber", VR_SH},
	TagQueryRetrieveLevel:                  {"QueryRetrieveLevel", VR_CS},
	TagRetrieveAETitle:                     {"RetrieveAETitle", VR_AE},
	TagInstanceAvailability:                {"InstanceAvailability", VR_CS},
	TagModality:                            {"Modality", VR_CS},
	TagModalitiesInStudy:                   {"ModalitiesInStudy", VR_CS},
	TagSOPClassesInStudy:                   {"SOPClassesInStudy", VR_UI},
	TagReferringPhysicianName:              {"ReferringPhysicianName", VR_PN},
	TagStudyDescription:                    {"StudyDescription", VR_LO},
	TagSeriesDescription:                   {"SeriesDescription", VR_LO},
	TagPatientName:                         {"PatientName", VR_PN},
	TagPatientID:                           {"PatientID", VR_LO},
	TagIssuerOfPatientID:                   {"IssuerOfPatientID", VR_LO},
	TagIssuerOfPatientIDQualifiersSequence: {"IssuerOfPatientIDQualifiersSequence", VR_SQ},
	TagPatientBirthDate:                    {"PatientBirthDate", VR_DA},
	TagPatientSex:                          {"PatientSex", VR_CS},
	TagBodyPartExamined:                    {"BodyPartExamined", VR_CS},
	TagStudyInstanceUID:                    {"StudyInstanceUID", VR_UI},
	TagSeriesInstanceUID:                   {"SeriesInstanceUID", VR_UI},
	TagStudyID:                             {"StudyID", VR_SH},
	TagSeriesNumber:                        {"SeriesNumber", VR_IS},
	TagInstanceNumber:                      {"InstanceNumber", VR_IS},
	TagNumberOfPatientRelatedStudies:       {"NumberOfPatientRelatedStudies", VR_IS},
	TagNumberOfStudyRelatedSeries:          {"NumberOfStudyRelatedSeries", VR_IS},
	TagNumberOfStudyRelatedInstances:       {"NumberOfStudyRelatedInstances", VR_IS},
	TagNumberOfSeriesRelatedInstances:      {"NumberOfSeriesRelatedInstances", VR_IS},
	TagUniversalEntityID:                   {"UniversalEntityID", VR_UT},
	TagUniversalEntityIDType:               {"UniversalEntityIDType", VR_CS},
}

var keywords = func() map[string]Tag {
	m := make(map[string]Tag, len(dictionary))
	for tag, e := range dictionary {
		m[e.keyword] = tag
	}
	return m
}()

// Keyword returns the dictionary keyword of the tag, or "" if unknown.
func (t Tag) Keyword() string {
	return dictionary[t].keyword
}

// VROf returns the dictionary VR of the tag, or VR_UN if unknown.
func VROf(tag Tag) VR {
	if e, ok := dictionary[tag]; ok {
		return e.vr
	}
	return VR_UN
}

// ParseTag accepts a dictionary keyword ("PatientName"), eight hex digits
// ("00100010") or the (gggg,eeee) form.
func ParseTag(s string) (Tag, error) {
	s = strings.TrimSpace(s)
	if tag, ok := keywords[s]; ok {
		return tag, nil
	}
	hex := strings.NewReplacer("(", "", ")", "", ",", "").Replace(s)
	if len(hex) != 8 {
		return 0, fmt.Errorf("unknown tag %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown tag %q: %w", s, err)
	}
	return Tag(v), nil
}
