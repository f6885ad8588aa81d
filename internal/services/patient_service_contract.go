package services

import (
	"context"

	"github.com/google/uuid"

	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/entities"
)

// PatientServiceContract resolves and registers patient identities.
type PatientServiceContract interface {
	// FindPatient returns the unique stored patient matching the Patient ID and
	// issuer of attrs, or nil when none matches. It fails with
	// ErrIdentityIndeterminate when attrs carry no Patient ID and with an
	// AmbiguousPatientError when several patients match.
	FindPatient(ctx context.Context, attrs *dicom.Attributes) (*entities.Patient, error)
	// CreatePatient always persists a new patient from attrs.
	CreatePatient(ctx context.Context, attrs *dicom.Attributes) (*entities.Patient, error)
	// GetPatient loads a patient with its decoded attributes.
	GetPatient(ctx context.Context, id uuid.UUID) (*entities.Patient, error)
}
