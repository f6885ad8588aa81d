package repositories

import (
	"context"

	"gorm.io/gorm"

	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/entities"
	apperrors "imaging-archive-service/internal/errors"
)

// IssuerRepositoryImpl keeps the issuer registry in the issuers table.
type IssuerRepositoryImpl struct {
	db *gorm.DB
}

// NewIssuerRepository creates an issuer repository on db.
func NewIssuerRepository(db *gorm.DB) IssuerRepositoryContract {
	return &IssuerRepositoryImpl{db: db}
}

// FindOrCreate looks up issuers sharing a local namespace or universal entity
// id with issuer. The first compatible one is completed with the components it
// lacks; when none is compatible a new issuer is registered.
func (r *IssuerRepositoryImpl) FindOrCreate(ctx context.Context, issuer *dicom.Issuer) (*entities.Issuer, error) {
	if issuer.IsEmpty() {
		return nil, apperrors.NewValidationError("Issuer", "empty issuer")
	}
	var found *entities.Issuer
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Order("created_at, id")
		switch {
		case issuer.LocalNamespaceEntityID != "" && issuer.UniversalEntityID != "":
			q = q.Where("entity_id = ? OR entity_uid = ?", issuer.LocalNamespaceEntityID, issuer.UniversalEntityID)
		case issuer.LocalNamespaceEntityID != "":
			q = q.Where("entity_id = ?", issuer.LocalNamespaceEntityID)
		default:
			q = q.Where("entity_uid = ?", issuer.UniversalEntityID)
		}
		var candidates []*entities.Issuer
		if err := q.Find(&candidates).Error; err != nil {
			return err
		}
		for _, c := range candidates {
			if !c.ToIssuer().Matches(issuer) {
				continue
			}
			found = c
			if c.Merge(issuer) {
				return tx.Save(c).Error
			}
			return nil
		}
		found = &entities.Issuer{
			LocalNamespaceEntityID: issuer.LocalNamespaceEntityID,
			UniversalEntityID:      issuer.UniversalEntityID,
			UniversalEntityIDType:  issuer.UniversalEntityIDType,
		}
		return tx.Create(found).Error
	})
	if err != nil {
		return nil, apperrors.NewStoreFailure("find or create issuer", err)
	}
	return found, nil
}
