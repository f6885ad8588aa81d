package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"imaging-archive-service/internal/domain/entities"
	apperrors "imaging-archive-service/internal/errors"
)

// InstanceRepositoryImpl stores instances with gorm.
type InstanceRepositoryImpl struct {
	db *gorm.DB
}

// NewInstanceRepository creates an instance repository on db.
func NewInstanceRepository(db *gorm.DB) InstanceRepositoryContract {
	return &InstanceRepositoryImpl{db: db}
}

func (r *InstanceRepositoryImpl) Create(ctx context.Context, instance *entities.Instance) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entities.Instance{}).Where("sop_iuid = ?", instance.SOPIUID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperrors.NewDuplicateInstanceError(instance.SOPIUID)
		}
		return tx.Omit(clause.Associations).Create(instance).Error
	})
	var dup *apperrors.DuplicateInstanceError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &dup):
		return err
	default:
		return apperrors.NewStoreFailure("create instance", err)
	}
}

func (r *InstanceRepositoryImpl) FindByUID(ctx context.Context, sopIUID string) (*entities.Instance, error) {
	var instance entities.Instance
	if err := r.db.WithContext(ctx).First(&instance, "sop_iuid = ?", sopIUID).Error; err != nil {
		return nil, translateError(err, "find instance", "instance", sopIUID)
	}
	return &instance, nil
}

func (r *InstanceRepositoryImpl) Reject(ctx context.Context, sopIUID, code string) error {
	result := r.db.WithContext(ctx).
		Model(&entities.Instance{}).
		Where("sop_iuid = ?", sopIUID).
		Update("rejection_code", code)
	if result.Error != nil {
		return apperrors.NewStoreFailure("reject instance", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("instance", sopIUID)
	}
	return nil
}
