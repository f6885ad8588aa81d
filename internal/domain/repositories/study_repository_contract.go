package repositories

import (
	"context"

	"github.com/google/uuid"

	"imaging-archive-service/internal/domain/entities"
)

// StudyRepositoryContract defines the persistence operations on studies.
type StudyRepositoryContract interface {
	Create(ctx context.Context, study *entities.Study) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Study, error)
	FindByUID(ctx context.Context, studyIUID string) (*entities.Study, error)
}

// SeriesRepositoryContract defines the persistence operations on series.
type SeriesRepositoryContract interface {
	Create(ctx context.Context, series *entities.Series) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Series, error)
	FindByUID(ctx context.Context, seriesIUID string) (*entities.Series, error)
}

// InstanceRepositoryContract defines the persistence operations on instances.
type InstanceRepositoryContract interface {
	// Create fails with a DuplicateInstanceError when the SOP Instance UID is
	// already stored.
	Create(ctx context.Context, instance *entities.Instance) error
	FindByUID(ctx context.Context, sopIUID string) (*entities.Instance, error)
	// Reject sets or clears the rejection code of an instance.
	Reject(ctx context.Context, sopIUID, code string) error
}
