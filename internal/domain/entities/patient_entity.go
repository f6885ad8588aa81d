package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"imaging-archive-service/internal/dicom"
)

// PatientIdentifier is a stored Patient ID with its optional issuer.
type PatientIdentifier struct {
	ID       uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	PatID    string     `json:"pat_id" gorm:"column:pat_id;not null;index"`
	IssuerID *uuid.UUID `json:"issuer_id" gorm:"type:uuid;index"`
	Issuer   *Issuer    `json:"issuer,omitempty" gorm:"foreignKey:IssuerID"`
}

func (PatientIdentifier) TableName() string { return "patient_ids" }

func (p *PatientIdentifier) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IDWithIssuer converts the stored identifier to its attribute form.
func (p *PatientIdentifier) IDWithIssuer() *dicom.IDWithIssuer {
	if p == nil {
		return nil
	}
	return &dicom.IDWithIssuer{ID: p.PatID, Issuer: p.Issuer.ToIssuer()}
}

// Patient represents a patient in the archive.
type Patient struct {
	ID                  uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	PatientIdentifierID *uuid.UUID         `json:"patient_identifier_id" gorm:"type:uuid;index"`
	PatientIdentifier   *PatientIdentifier `json:"patient_identifier,omitempty" gorm:"foreignKey:PatientIdentifierID"`
	PatientName         string             `json:"patient_name" gorm:"column:pat_name;index"`
	PatientNameFamily   string             `json:"-" gorm:"column:pat_name_family_fuzzy;index"`
	PatientNameGiven    string             `json:"-" gorm:"column:pat_name_given_fuzzy;index"`
	PatientBirthDate    string             `json:"patient_birth_date" gorm:"column:pat_birthdate;index"`
	PatientSex          string             `json:"patient_sex" gorm:"column:pat_sex"`
	EncodedAttributes   []byte             `json:"-" gorm:"column:encoded_attrs;not null"`
	CreatedAt           time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time          `json:"updated_at" gorm:"not null"`

	// Attributes holds the decoded, filtered attributes when loaded by a service.
	Attributes *dicom.Attributes `json:"-" gorm:"-"`
}

func (Patient) TableName() string { return "patients" }

func (p *Patient) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// IDWithIssuer returns the stored identifier, or nil for a patient without one.
func (p *Patient) IDWithIssuer() *dicom.IDWithIssuer {
	return p.PatientIdentifier.IDWithIssuer()
}

// Issuer returns the issuer of the stored identifier, or nil.
func (p *Patient) Issuer() *dicom.Issuer {
	if id := p.IDWithIssuer(); id != nil {
		return id.Issuer
	}
	return nil
}
