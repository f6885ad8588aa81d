package services

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/dtos"
	apperrors "imaging-archive-service/internal/errors"
	"imaging-archive-service/internal/query"
)

// QueryServiceImpl implements QueryServiceContract.
type QueryServiceImpl struct {
	engine     *query.Engine
	aggregates query.AggregateSource
	param      query.QueryParam
	fuzzy      dicom.FuzzyStr
	logger     logrus.FieldLogger
}

// NewQueryService creates a query service whose queries default to param.
func NewQueryService(
	engine *query.Engine,
	aggregates query.AggregateSource,
	param query.QueryParam,
	fuzzy dicom.FuzzyStr,
	logger logrus.FieldLogger,
) QueryServiceContract {
	if logger == nil {
		logger = logrus.New()
	}
	if fuzzy == nil {
		fuzzy = dicom.Soundex{}
	}
	return &QueryServiceImpl{
		engine:     engine,
		aggregates: aggregates,
		param:      param,
		fuzzy:      fuzzy,
		logger:     logger,
	}
}

func (s *QueryServiceImpl) Query(ctx context.Context, request dtos.QueryRequest) (*query.Results, error) {
	if err := requestValidate.Struct(request); err != nil {
		return nil, apperrors.NewValidationError("QueryRequest", "%v", err)
	}
	level, err := query.ParseLevel(request.Level)
	if err != nil {
		return nil, apperrors.NewValidationError("Level", "%v", err)
	}

	param := s.param
	if request.FuzzySemanticMatching != nil {
		param.FuzzySemanticMatching = *request.FuzzySemanticMatching
	}
	if request.CombinedDatetimeMatching != nil {
		param.CombinedDatetimeMatching = *request.CombinedDatetimeMatching
	}

	opts := []query.Option{query.WithFuzzyStr(s.fuzzy)}
	names := make([]string, 0, len(request.Keys))
	for name := range request.Keys {
		names = append(names, name)
	}
	// A keyword and its hex tag may name the same key; the later one wins.
	sort.Strings(names)
	for _, name := range names {
		tag, err := dicom.ParseTag(name)
		if err != nil {
			return nil, apperrors.NewValidationError("Keys", "%v", err)
		}
		opts = append(opts, query.WithMatchingKey(query.ParseMatchingKey(tag, request.Keys[name], param.FuzzySemanticMatching)))
	}
	for _, pid := range request.PatientIDs {
		opts = append(opts, query.WithPatientIDs(&dicom.IDWithIssuer{ID: pid.ID, Issuer: dicom.ParseIssuer(pid.Issuer)}))
	}

	qc, err := query.NewQueryContext(param, s.aggregates, opts...)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"level":   string(level),
		"keys":    len(names),
		"view_id": param.ViewID(),
	}).Debug("query accepted")
	return s.engine.Query(ctx, level, qc)
}
