package services

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"imaging-archive-service/internal/domain/dtos"
	"imaging-archive-service/internal/domain/entities"
	apperrors "imaging-archive-service/internal/errors"
)

var requestValidate = validator.New()

// StoreSession groups the instances received over one association. It
// remembers the last series stored so consecutive instances of a series skip
// the lookup.
type StoreSession struct {
	RetrieveAETs string
	Availability entities.Availability

	mu     sync.Mutex
	series *entities.Series
}

// NewStoreSession validates req and opens a session.
func NewStoreSession(req dtos.StoreRequest) (*StoreSession, error) {
	if err := requestValidate.Struct(req); err != nil {
		return nil, apperrors.NewValidationError("StoreRequest", "%v", err)
	}
	availability := entities.Availability(req.Availability)
	if availability == "" {
		availability = entities.AvailabilityOnline
	}
	return &StoreSession{
		RetrieveAETs: strings.Join(req.RetrieveAETs, `\`),
		Availability: availability,
	}, nil
}

// CachedSeries returns the cached series if it has the given UID.
func (s *StoreSession) CachedSeries(seriesIUID string) *entities.Series {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.series != nil && s.series.SeriesIUID == seriesIUID {
		return s.series
	}
	return nil
}

func (s *StoreSession) cacheSeries(series *entities.Series) {
	s.mu.Lock()
	s.series = series
	s.mu.Unlock()
}
