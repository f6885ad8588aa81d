package services

import (
	"context"

	"imaging-archive-service/internal/domain/dtos"
	"imaging-archive-service/internal/query"
)

// QueryServiceContract runs hierarchical queries described by a request.
type QueryServiceContract interface {
	// Query validates request and opens the result stream. The caller must
	// Close the returned Results.
	Query(ctx context.Context, request dtos.QueryRequest) (*query.Results, error)
}
