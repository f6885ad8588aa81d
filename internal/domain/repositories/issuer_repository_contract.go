package repositories

import (
	"context"

	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/entities"
)

// IssuerRepositoryContract is the registry of assigning authorities.
type IssuerRepositoryContract interface {
	// FindOrCreate returns the registered issuer matching issuer, completing
	// its missing components, or registers a new one.
	FindOrCreate(ctx context.Context, issuer *dicom.Issuer) (*entities.Issuer, error)
}
