package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"imaging-archive-service/internal/domain/entities"
	apperrors "imaging-archive-service/internal/errors"
)

// QueryAttributesRepositoryImpl stores aggregate rows with gorm.
type QueryAttributesRepositoryImpl struct {
	db *gorm.DB
}

// NewQueryAttributesRepository creates an aggregate repository on db.
func NewQueryAttributesRepository(db *gorm.DB) QueryAttributesRepositoryContract {
	return &QueryAttributesRepositoryImpl{db: db}
}

func (r *QueryAttributesRepositoryImpl) FindStudy(ctx context.Context, studyID uuid.UUID, viewID string) (*entities.StudyQueryAttributes, error) {
	var attrs entities.StudyQueryAttributes
	err := r.db.WithContext(ctx).First(&attrs, "study_id = ? AND view_id = ?", studyID, viewID).Error
	if err != nil {
		return nil, translateError(err, "find study query attributes", "study query attributes", studyID)
	}
	return &attrs, nil
}

func (r *QueryAttributesRepositoryImpl) SaveStudy(ctx context.Context, attrs *entities.StudyQueryAttributes) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "study_id"}, {Name: "view_id"}},
		UpdateAll: true,
	}).Create(attrs).Error
	if err != nil {
		return apperrors.NewStoreFailure("save study query attributes", err)
	}
	return nil
}

func (r *QueryAttributesRepositoryImpl) FindSeries(ctx context.Context, seriesID uuid.UUID, viewID string) (*entities.SeriesQueryAttributes, error) {
	var attrs entities.SeriesQueryAttributes
	err := r.db.WithContext(ctx).First(&attrs, "series_id = ? AND view_id = ?", seriesID, viewID).Error
	if err != nil {
		return nil, translateError(err, "find series query attributes", "series query attributes", seriesID)
	}
	return &attrs, nil
}

func (r *QueryAttributesRepositoryImpl) SaveSeries(ctx context.Context, attrs *entities.SeriesQueryAttributes) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "series_id"}, {Name: "view_id"}},
		UpdateAll: true,
	}).Create(attrs).Error
	if err != nil {
		return apperrors.NewStoreFailure("save series query attributes", err)
	}
	return nil
}

func (r *QueryAttributesRepositoryImpl) DeleteForStudy(ctx context.Context, studyID uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("study_id = ?", studyID).Delete(&entities.StudyQueryAttributes{}).Error
	if err != nil {
		return apperrors.NewStoreFailure("delete study query attributes", err)
	}
	return nil
}

func (r *QueryAttributesRepositoryImpl) DeleteForSeries(ctx context.Context, seriesID uuid.UUID) error {
	err := r.db.WithContext(ctx).Where("series_id = ?", seriesID).Delete(&entities.SeriesQueryAttributes{}).Error
	if err != nil {
		return apperrors.NewStoreFailure("delete series query attributes", err)
	}
	return nil
}

func (r *QueryAttributesRepositoryImpl) ScanStudyInstances(ctx context.Context, studyID uuid.UUID, vis Visibility, fn func(InstanceSummary) error) error {
	return r.scan(ctx, "study instances", r.instances(ctx, vis).Where("series.study_id = ?", studyID), fn)
}

func (r *QueryAttributesRepositoryImpl) ScanSeriesInstances(ctx context.Context, seriesID uuid.UUID, vis Visibility, fn func(InstanceSummary) error) error {
	return r.scan(ctx, "series instances", r.instances(ctx, vis).Where("instances.series_id = ?", seriesID), fn)
}

func (r *QueryAttributesRepositoryImpl) instances(ctx context.Context, vis Visibility) *gorm.DB {
	tx := r.db.WithContext(ctx).
		Table("instances").
		Select("instances.series_id, series.modality, instances.sop_cuid, instances.retrieve_aets, instances.availability").
		Joins("JOIN series ON series.id = instances.series_id")
	switch {
	case vis.HideRejected:
		tx = tx.Where("instances.rejection_code = ''")
	case vis.HideNotRejected:
		tx = tx.Where("instances.rejection_code <> ''")
	}
	return tx.Order("instances.series_id, instances.id")
}

func (r *QueryAttributesRepositoryImpl) scan(ctx context.Context, op string, tx *gorm.DB, fn func(InstanceSummary) error) error {
	rows, err := tx.Rows()
	if err != nil {
		return apperrors.NewStoreFailure("scan "+op, err)
	}
	defer rows.Close()
	for rows.Next() {
		var s InstanceSummary
		var modality, aets *string
		if err := rows.Scan(&s.SeriesID, &modality, &s.SOPClassUID, &aets, &s.Availability); err != nil {
			return apperrors.NewStoreFailure("scan "+op, err)
		}
		if modality != nil {
			s.Modality = *modality
		}
		if aets != nil {
			s.RetrieveAETs = *aets
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.NewStoreFailure("scan "+op, err)
	}
	return ctx.Err()
}
