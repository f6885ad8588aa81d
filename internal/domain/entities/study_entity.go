package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Study belongs to one Patient and owns its Series.
type Study struct {
	ID                uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	PatientID         uuid.UUID `json:"patient_id" gorm:"type:uuid;not null;index"`
	Patient           *Patient  `json:"-" gorm:"foreignKey:PatientID"`
	StudyIUID         string    `json:"study_iuid" gorm:"column:study_iuid;not null;uniqueIndex"`
	StudyID           string    `json:"study_id" gorm:"column:study_id;index"`
	StudyDate         string    `json:"study_date" gorm:"column:study_date;index"`
	StudyTime         string    `json:"study_time" gorm:"column:study_time;index"`
	AccessionNo       string    `json:"accession_no" gorm:"column:accession_no;index"`
	StudyDesc         string    `json:"study_desc" gorm:"column:study_desc"`
	RefPhysName       string    `json:"ref_phys_name" gorm:"column:ref_phys_name"`
	EncodedAttributes []byte    `json:"-" gorm:"column:encoded_attrs;not null"`
	CreatedAt         time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"not null"`
}

func (Study) TableName() string { return "studies" }

func (s *Study) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
