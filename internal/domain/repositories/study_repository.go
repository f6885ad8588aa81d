package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"imaging-archive-service/internal/domain/entities"
	apperrors "imaging-archive-service/internal/errors"
)

// StudyRepositoryImpl stores studies with gorm.
type StudyRepositoryImpl struct {
	db *gorm.DB
}

// NewStudyRepository creates a study repository on db.
func NewStudyRepository(db *gorm.DB) StudyRepositoryContract {
	return &StudyRepositoryImpl{db: db}
}

func (r *StudyRepositoryImpl) Create(ctx context.Context, study *entities.Study) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(study).Error; err != nil {
		return apperrors.NewStoreFailure("create study", err)
	}
	return nil
}

func (r *StudyRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entities.Study, error) {
	var study entities.Study
	if err := r.db.WithContext(ctx).First(&study, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "get study", "study", id)
	}
	return &study, nil
}

func (r *StudyRepositoryImpl) FindByUID(ctx context.Context, studyIUID string) (*entities.Study, error) {
	var study entities.Study
	if err := r.db.WithContext(ctx).First(&study, "study_iuid = ?", studyIUID).Error; err != nil {
		return nil, translateError(err, "find study", "study", studyIUID)
	}
	return &study, nil
}
