package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"imaging-archive-service/internal/domain/entities"
	"imaging-archive-service/internal/domain/repositories"
	apperrors "imaging-archive-service/internal/errors"
	"imaging-archive-service/internal/query"
)

// QueryAttributesServiceImpl implements QueryAttributesServiceContract on top
// of the aggregate tables. Concurrent misses for the same entity and view are
// collapsed into one computation.
type QueryAttributesServiceImpl struct {
	attrsRepo  repositories.QueryAttributesRepositoryContract
	studyRepo  repositories.StudyRepositoryContract
	seriesRepo repositories.SeriesRepositoryContract
	logger     logrus.FieldLogger
	group      singleflight.Group
}

// NewQueryAttributesService creates the aggregate cache service.
func NewQueryAttributesService(
	attrsRepo repositories.QueryAttributesRepositoryContract,
	studyRepo repositories.StudyRepositoryContract,
	seriesRepo repositories.SeriesRepositoryContract,
	logger logrus.FieldLogger,
) QueryAttributesServiceContract {
	if logger == nil {
		logger = logrus.New()
	}
	return &QueryAttributesServiceImpl{
		attrsRepo:  attrsRepo,
		studyRepo:  studyRepo,
		seriesRepo: seriesRepo,
		logger:     logger,
	}
}

// StudyAttributes returns the stored aggregates of the study for the view of
// param, computing and storing them on a miss.
func (s *QueryAttributesServiceImpl) StudyAttributes(ctx context.Context, studyPK uuid.UUID, param *query.QueryParam) (*entities.StudyQueryAttributes, error) {
	viewID := param.ViewID()
	cached, err := s.attrsRepo.FindStudy(ctx, studyPK, viewID)
	if err == nil {
		aggregateLookups.WithLabelValues("study", "hit").Inc()
		return cached, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}
	aggregateLookups.WithLabelValues("study", "miss").Inc()

	v, err, _ := s.group.Do(fmt.Sprintf("study/%s/%s", studyPK, viewID), func() (interface{}, error) {
		agg, _, err := s.computeStudy(ctx, studyPK, param)
		return agg, err
	})
	if err != nil {
		if apperrors.IsNotFound(err) {
			aggregateLookups.WithLabelValues("study", "vanished").Inc()
		}
		return nil, err
	}
	agg := *v.(*entities.StudyQueryAttributes)
	return &agg, nil
}

// SeriesAttributes is the series counterpart of StudyAttributes.
func (s *QueryAttributesServiceImpl) SeriesAttributes(ctx context.Context, seriesPK uuid.UUID, param *query.QueryParam) (*entities.SeriesQueryAttributes, error) {
	viewID := param.ViewID()
	cached, err := s.attrsRepo.FindSeries(ctx, seriesPK, viewID)
	if err == nil {
		aggregateLookups.WithLabelValues("series", "hit").Inc()
		return cached, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}
	aggregateLookups.WithLabelValues("series", "miss").Inc()

	v, err, _ := s.group.Do(fmt.Sprintf("series/%s/%s", seriesPK, viewID), func() (interface{}, error) {
		return s.computeSeries(ctx, seriesPK, param)
	})
	if err != nil {
		if apperrors.IsNotFound(err) {
			aggregateLookups.WithLabelValues("series", "vanished").Inc()
		}
		return nil, err
	}
	agg := *v.(*entities.SeriesQueryAttributes)
	return &agg, nil
}

func (s *QueryAttributesServiceImpl) Invalidate(ctx context.Context, studyID uuid.UUID, seriesIDs ...uuid.UUID) error {
	if err := s.attrsRepo.DeleteForStudy(ctx, studyID); err != nil {
		return fmt.Errorf("invalidate study %s: %w", studyID, err)
	}
	for _, id := range seriesIDs {
		if err := s.attrsRepo.DeleteForSeries(ctx, id); err != nil {
			return fmt.Errorf("invalidate series %s: %w", id, err)
		}
	}
	s.logger.WithFields(logrus.Fields{"study_pk": studyID, "series": len(seriesIDs)}).Debug("aggregates invalidated")
	return nil
}

func (s *QueryAttributesServiceImpl) Refresh(ctx context.Context, studyID uuid.UUID, param *query.QueryParam) (*entities.StudyQueryAttributes, error) {
	agg, seriesIDs, err := s.computeStudy(ctx, studyID, param)
	if err != nil {
		return nil, err
	}
	for _, id := range seriesIDs {
		if _, err := s.computeSeries(ctx, id, param); err != nil && !apperrors.IsNotFound(err) {
			return nil, err
		}
	}
	return agg, nil
}

func (s *QueryAttributesServiceImpl) computeStudy(ctx context.Context, studyPK uuid.UUID, param *query.QueryParam) (*entities.StudyQueryAttributes, []uuid.UUID, error) {
	ctx, span := s.startSpan(ctx, "services.QueryAttributesService.computeStudy", studyPK, param)
	defer span.End()
	start := time.Now()
	defer func() { aggregateComputeDuration.WithLabelValues("study").Observe(time.Since(start).Seconds()) }()

	if _, err := s.studyRepo.GetByID(ctx, studyPK); err != nil {
		return nil, nil, spanError(span, err)
	}

	var acc aggregator
	series := map[uuid.UUID]struct{}{}
	modalities := map[string]struct{}{}
	cuids := map[string]struct{}{}
	err := s.attrsRepo.ScanStudyInstances(ctx, studyPK, visibility(param), func(inst repositories.InstanceSummary) error {
		acc.add(inst)
		series[inst.SeriesID] = struct{}{}
		if inst.Modality != "" {
			modalities[inst.Modality] = struct{}{}
		}
		cuids[inst.SOPClassUID] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, nil, spanError(span, err)
	}

	agg := &entities.StudyQueryAttributes{
		StudyID:      studyPK,
		ViewID:       param.ViewID(),
		NumInstances: acc.numInstances,
		NumSeries:    len(series),
		ModsInStudy:  entities.JoinList(sortedKeys(modalities)),
		CUIDsInStudy: entities.JoinList(sortedKeys(cuids)),
		RetrieveAETs: acc.retrieveAETs,
		Availability: acc.availability,
	}
	if err := s.attrsRepo.SaveStudy(ctx, agg); err != nil {
		return nil, nil, spanError(span, err)
	}
	seriesIDs := make([]uuid.UUID, 0, len(series))
	for id := range series {
		seriesIDs = append(seriesIDs, id)
	}
	span.SetAttributes(attribute.Int("num_instances", agg.NumInstances))
	s.logger.WithFields(logrus.Fields{
		"study_pk":      studyPK,
		"view_id":       agg.ViewID,
		"num_instances": agg.NumInstances,
	}).Debug("study aggregates computed")
	return agg, seriesIDs, nil
}

func (s *QueryAttributesServiceImpl) computeSeries(ctx context.Context, seriesPK uuid.UUID, param *query.QueryParam) (*entities.SeriesQueryAttributes, error) {
	ctx, span := s.startSpan(ctx, "services.QueryAttributesService.computeSeries", seriesPK, param)
	defer span.End()
	start := time.Now()
	defer func() { aggregateComputeDuration.WithLabelValues("series").Observe(time.Since(start).Seconds()) }()

	if _, err := s.seriesRepo.GetByID(ctx, seriesPK); err != nil {
		return nil, spanError(span, err)
	}
	var acc aggregator
	err := s.attrsRepo.ScanSeriesInstances(ctx, seriesPK, visibility(param), func(inst repositories.InstanceSummary) error {
		acc.add(inst)
		return nil
	})
	if err != nil {
		return nil, spanError(span, err)
	}
	agg := &entities.SeriesQueryAttributes{
		SeriesID:     seriesPK,
		ViewID:       param.ViewID(),
		NumInstances: acc.numInstances,
		RetrieveAETs: acc.retrieveAETs,
		Availability: acc.availability,
	}
	if err := s.attrsRepo.SaveSeries(ctx, agg); err != nil {
		return nil, spanError(span, err)
	}
	s.logger.WithFields(logrus.Fields{
		"series_pk":     seriesPK,
		"view_id":       agg.ViewID,
		"num_instances": agg.NumInstances,
	}).Debug("series aggregates computed")
	return agg, nil
}

func (s *QueryAttributesServiceImpl) startSpan(ctx context.Context, name string, pk uuid.UUID, param *query.QueryParam) (context.Context, trace.Span) {
	return otel.Tracer("archive").Start(ctx, name, trace.WithAttributes(
		attribute.String("pk", pk.String()),
		attribute.String("view_id", param.ViewID()),
	))
}

// aggregator accumulates the location aggregates of a set of instances.
type aggregator struct {
	numInstances int
	retrieveAETs string
	availability entities.Availability
}

func (a *aggregator) add(inst repositories.InstanceSummary) {
	if a.numInstances == 0 {
		a.retrieveAETs = entities.IntersectAETs(inst.RetrieveAETs)
	} else {
		a.retrieveAETs = entities.IntersectAETs(a.retrieveAETs, inst.RetrieveAETs)
	}
	a.availability = a.availability.Worse(inst.Availability)
	a.numInstances++
}

func visibility(param *query.QueryParam) repositories.Visibility {
	return repositories.Visibility{
		HideRejected:    param.HideRejectedInstances,
		HideNotRejected: param.HideNotRejectedInstances,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
