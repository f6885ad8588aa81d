package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Instance is a single stored SOP instance.
type Instance struct {
	ID                uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	SeriesID          uuid.UUID    `json:"series_id" gorm:"type:uuid;not null;index"`
	Series            *Series      `json:"-" gorm:"foreignKey:SeriesID"`
	SOPIUID           string       `json:"sop_iuid" gorm:"column:sop_iuid;not null;uniqueIndex"`
	SOPCUID           string       `json:"sop_cuid" gorm:"column:sop_cuid;not null;index"`
	InstNo            string       `json:"inst_no" gorm:"column:inst_no"`
	RetrieveAETs      string       `json:"retrieve_aets" gorm:"column:retrieve_aets"`
	Availability      Availability `json:"availability" gorm:"column:availability;not null;default:ONLINE"`
	RejectionCode     string       `json:"rejection_code" gorm:"column:rejection_code;not null;default:''"`
	EncodedAttributes []byte       `json:"-" gorm:"column:encoded_attrs;not null"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (Instance) TableName() string { return "instances" }

func (i *Instance) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Availability == "" {
		i.Availability = AvailabilityOnline
	}
	return nil
}

// Rejected reports whether the instance carries a rejection note code.
func (i *Instance) Rejected() bool {
	return i.RejectionCode != ""
}
