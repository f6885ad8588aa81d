package repositories

import (
	"context"

	"github.com/google/uuid"

	"imaging-archive-service/internal/domain/entities"
)

// PatientRepositoryContract defines the persistence operations on patients.
type PatientRepositoryContract interface {
	// Create stores the patient together with its identifier. The issuer, if
	// any, must already be registered.
	Create(ctx context.Context, patient *entities.Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Patient, error)
	Update(ctx context.Context, patient *entities.Patient) error
	// FindByPatientID returns every patient whose identifier has the given id,
	// whatever its issuer, with identifier and issuer loaded.
	FindByPatientID(ctx context.Context, patID string) ([]*entities.Patient, error)
}
