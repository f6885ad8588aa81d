package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"imaging-archive-service/internal/domain/entities"
	apperrors "imaging-archive-service/internal/errors"
)

// PatientRepositoryImpl stores patients with gorm.
type PatientRepositoryImpl struct {
	db *gorm.DB
}

// NewPatientRepository creates a patient repository on db.
func NewPatientRepository(db *gorm.DB) PatientRepositoryContract {
	return &PatientRepositoryImpl{db: db}
}

func (r *PatientRepositoryImpl) Create(ctx context.Context, patient *entities.Patient) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if pid := patient.PatientIdentifier; pid != nil {
			if pid.Issuer != nil {
				pid.IssuerID = &pid.Issuer.ID
			}
			if err := tx.Omit(clause.Associations).Create(pid).Error; err != nil {
				return err
			}
			patient.PatientIdentifierID = &pid.ID
		}
		return tx.Omit(clause.Associations).Create(patient).Error
	})
	if err != nil {
		return apperrors.NewStoreFailure("create patient", err)
	}
	return nil
}

func (r *PatientRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entities.Patient, error) {
	var patient entities.Patient
	err := r.db.WithContext(ctx).
		Preload("PatientIdentifier.Issuer").
		First(&patient, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err, "get patient", "patient", id)
	}
	return &patient, nil
}

func (r *PatientRepositoryImpl) Update(ctx context.Context, patient *entities.Patient) error {
	result := r.db.WithContext(ctx).Omit(clause.Associations).Save(patient)
	if result.Error != nil {
		return apperrors.NewStoreFailure("update patient", result.Error)
	}
	return nil
}

func (r *PatientRepositoryImpl) FindByPatientID(ctx context.Context, patID string) ([]*entities.Patient, error) {
	var patients []*entities.Patient
	err := r.db.WithContext(ctx).
		Preload("PatientIdentifier.Issuer").
		Joins("JOIN patient_ids ON patient_ids.id = patients.patient_identifier_id").
		Where("patient_ids.pat_id = ?", patID).
		Order("patients.created_at, patients.id").
		Find(&patients).Error
	if err != nil {
		return nil, apperrors.NewStoreFailure("find patients by id", err)
	}
	return patients, nil
}

// translateError maps gorm's not-found error to NotFoundError and wraps
// everything else as a store failure.
func translateError(err error, op, entity string, key interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewNotFoundError(entity, key)
	}
	return apperrors.NewStoreFailure(op, err)
}
