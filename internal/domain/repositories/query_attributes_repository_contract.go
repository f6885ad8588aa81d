package repositories

import (
	"context"

	"github.com/google/uuid"

	"imaging-archive-service/internal/domain/entities"
)

// Visibility selects instances by rejection state.
type Visibility struct {
	HideRejected    bool
	HideNotRejected bool
}

// InstanceSummary is the part of an instance that contributes to aggregates.
type InstanceSummary struct {
	SeriesID     uuid.UUID
	Modality     string
	SOPClassUID  string
	RetrieveAETs string
	Availability entities.Availability
}

// QueryAttributesRepositoryContract stores the per-view aggregate rows and
// scans the instances they are computed from.
type QueryAttributesRepositoryContract interface {
	FindStudy(ctx context.Context, studyID uuid.UUID, viewID string) (*entities.StudyQueryAttributes, error)
	SaveStudy(ctx context.Context, attrs *entities.StudyQueryAttributes) error
	FindSeries(ctx context.Context, seriesID uuid.UUID, viewID string) (*entities.SeriesQueryAttributes, error)
	SaveSeries(ctx context.Context, attrs *entities.SeriesQueryAttributes) error

	// DeleteForStudy drops the aggregate rows of a study in every view.
	DeleteForStudy(ctx context.Context, studyID uuid.UUID) error
	// DeleteForSeries drops the aggregate rows of a series in every view.
	DeleteForSeries(ctx context.Context, seriesID uuid.UUID) error

	ScanStudyInstances(ctx context.Context, studyID uuid.UUID, vis Visibility, fn func(InstanceSummary) error) error
	ScanSeriesInstances(ctx context.Context, seriesID uuid.UUID, vis Visibility, fn func(InstanceSummary) error) error
}
