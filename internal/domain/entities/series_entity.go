package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Series belongs to one Study and owns its Instances.
type Series struct {
	ID                uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	StudyID           uuid.UUID `json:"study_id" gorm:"type:uuid;not null;index"`
	Study             *Study    `json:"-" gorm:"foreignKey:StudyID"`
	SeriesIUID        string    `json:"series_iuid" gorm:"column:series_iuid;not null;uniqueIndex"`
	Modality          string    `json:"modality" gorm:"column:modality;index"`
	SeriesNo          string    `json:"series_no" gorm:"column:series_no"`
	SeriesDesc        string    `json:"series_desc" gorm:"column:series_desc"`
	BodyPart          string    `json:"body_part" gorm:"column:body_part"`
	EncodedAttributes []byte    `json:"-" gorm:"column:encoded_attrs;not null"`
	CreatedAt         time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time `json:"updated_at" gorm:"not null"`
}

func (Series) TableName() string { return "series" }

func (s *Series) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
