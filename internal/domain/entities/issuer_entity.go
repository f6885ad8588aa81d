package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"imaging-archive-service/internal/dicom"
)

// Issuer is a registered assigning authority of patient identifiers.
type Issuer struct {
	ID                     uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	LocalNamespaceEntityID string    `json:"entity_id" gorm:"column:entity_id;index"`
	UniversalEntityID      string    `json:"entity_uid" gorm:"column:entity_uid;index"`
	UniversalEntityIDType  string    `json:"entity_uid_type" gorm:"column:entity_uid_type"`
	CreatedAt              time.Time `json:"created_at" gorm:"not null"`
}

func (Issuer) TableName() string { return "issuers" }

func (i *Issuer) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// ToIssuer returns the attribute form, or nil for a nil entity.
func (i *Issuer) ToIssuer() *dicom.Issuer {
	if i == nil {
		return nil
	}
	return &dicom.Issuer{
		LocalNamespaceEntityID: i.LocalNamespaceEntityID,
		UniversalEntityID:      i.UniversalEntityID,
		UniversalEntityIDType:  i.UniversalEntityIDType,
	}
}

// Merge fills components missing on the entity from issuer and reports whether
// anything changed.
func (i *Issuer) Merge(issuer *dicom.Issuer) bool {
	changed := false
	if i.LocalNamespaceEntityID == "" && issuer.LocalNamespaceEntityID != "" {
		i.LocalNamespaceEntityID = issuer.LocalNamespaceEntityID
		changed = true
	}
	if i.UniversalEntityID == "" && issuer.UniversalEntityID != "" {
		i.UniversalEntityID = issuer.UniversalEntityID
		i.UniversalEntityIDType = issuer.UniversalEntityIDType
		changed = true
	}
	return changed
}
