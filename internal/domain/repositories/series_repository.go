package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"imaging-archive-service/internal/domain/entities"
	apperrors "imaging-archive-service/internal/errors"
)

// SeriesRepositoryImpl stores series with gorm.
type SeriesRepositoryImpl struct {
	db *gorm.DB
}

// NewSeriesRepository creates a series repository on db.
func NewSeriesRepository(db *gorm.DB) SeriesRepositoryContract {
	return &SeriesRepositoryImpl{db: db}
}

func (r *SeriesRepositoryImpl) Create(ctx context.Context, series *entities.Series) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(series).Error; err != nil {
		return apperrors.NewStoreFailure("create series", err)
	}
	return nil
}

func (r *SeriesRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*entities.Series, error) {
	var series entities.Series
	if err := r.db.WithContext(ctx).First(&series, "id = ?", id).Error; err != nil {
		return nil, translateError(err, "get series", "series", id)
	}
	return &series, nil
}

func (r *SeriesRepositoryImpl) FindByUID(ctx context.Context, seriesIUID string) (*entities.Series, error) {
	var series entities.Series
	if err := r.db.WithContext(ctx).First(&series, "series_iuid = ?", seriesIUID).Error; err != nil {
		return nil, translateError(err, "find series", "series", seriesIUID)
	}
	return &series, nil
}
