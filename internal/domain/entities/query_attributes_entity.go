package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// StudyQueryAttributes caches the aggregates of a study for one view. The view
// id fingerprints the matching parameters the aggregates were computed under.
type StudyQueryAttributes struct {
	StudyID      uuid.UUID    `json:"study_id" gorm:"type:uuid;primaryKey"`
	ViewID       string       `json:"view_id" gorm:"column:view_id;primaryKey;size:64"`
	NumInstances int          `json:"num_instances" gorm:"column:num_instances;not null"`
	NumSeries    int          `json:"num_series" gorm:"column:num_series;not null"`
	ModsInStudy  string       `json:"mods_in_study" gorm:"column:mods_in_study"`
	CUIDsInStudy string       `json:"cuids_in_study" gorm:"column:cuids_in_study"`
	RetrieveAETs string       `json:"retrieve_aets" gorm:"column:retrieve_aets"`
	Availability Availability `json:"availability" gorm:"column:availability"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (StudyQueryAttributes) TableName() string { return "study_query_attrs" }

// Modalities splits the stored modality list.
func (a *StudyQueryAttributes) Modalities() []string { return splitList(a.ModsInStudy) }

// SOPClasses splits the stored SOP class list.
func (a *StudyQueryAttributes) SOPClasses() []string { return splitList(a.CUIDsInStudy) }

// SeriesQueryAttributes caches the aggregates of a series for one view.
type SeriesQueryAttributes struct {
	SeriesID     uuid.UUID    `json:"series_id" gorm:"type:uuid;primaryKey"`
	ViewID       string       `json:"view_id" gorm:"column:view_id;primaryKey;size:64"`
	NumInstances int          `json:"num_instances" gorm:"column:num_instances;not null"`
	RetrieveAETs string       `json:"retrieve_aets" gorm:"column:retrieve_aets"`
	Availability Availability `json:"availability" gorm:"column:availability"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (SeriesQueryAttributes) TableName() string { return "series_query_attrs" }

// JoinList stores a multi-valued aggregate in a single column.
func JoinList(values []string) string {
	return strings.Join(values, `\`)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, `\`)
}
