package services

import (
	"context"

	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/dtos"
)

// StoreServiceContract files received instances into the
// patient/study/series/instance hierarchy.
type StoreServiceContract interface {
	// Store files one instance. Instances of the same patient are stored one at
	// a time. A SOP Instance UID already stored fails with a
	// DuplicateInstanceError.
	Store(ctx context.Context, session *StoreSession, attrs *dicom.Attributes) (*dtos.StoreResult, error)
	// Reject marks a stored instance with a rejection code, or clears it when
	// code is empty.
	Reject(ctx context.Context, sopIUID, code string) error
}
