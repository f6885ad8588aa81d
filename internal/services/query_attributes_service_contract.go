package services

import (
	"context"

	"github.com/google/uuid"

	"imaging-archive-service/internal/domain/entities"
	"imaging-archive-service/internal/query"
)

// QueryAttributesServiceContract is the read-through cache of study and series
// aggregates. Entries are keyed by entity and view id and never served for a
// different view.
type QueryAttributesServiceContract interface {
	query.AggregateSource

	// Invalidate drops the cached aggregates of a study and of the given series
	// in every view.
	Invalidate(ctx context.Context, studyID uuid.UUID, seriesIDs ...uuid.UUID) error
	// Refresh recomputes and stores the aggregates of a study and all its
	// series for the view of param.
	Refresh(ctx context.Context, studyID uuid.UUID, param *query.QueryParam) (*entities.StudyQueryAttributes, error)
}
