package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"imaging-archive-service/internal/dicom"
	apperrors "imaging-archive-service/internal/errors"
)

// Engine runs hierarchical queries. It holds no per-query state and may be
// shared by concurrent callers; each Query owns its own cursor.
type Engine struct {
	executor Executor
	codec    dicom.Codec
	logger   logrus.FieldLogger
}

// NewEngine creates a query engine. A nil logger defaults to logrus.New().
func NewEngine(executor Executor, codec dicom.Codec, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{executor: executor, codec: codec, logger: logger}
}

// Query executes the query of level with the criteria of qc and returns the
// stream of results.
func (e *Engine) Query(ctx context.Context, level Level, qc *QueryContext) (*Results, error) {
	lq, err := newLevelQuery(level)
	if err != nil {
		return nil, err
	}
	if qc == nil {
		return nil, apperrors.NewValidationError("QueryContext", "must not be nil")
	}

	logger := e.logger.WithFields(logrus.Fields{
		"level":   string(level),
		"view_id": qc.param.ViewID(),
	})
	unsupported := unsupportedKeys(level, qc)
	if len(unsupported) > 0 {
		names := tagNames(unsupported)
		if qc.param.RejectsOptionalKeys() {
			return nil, apperrors.NewValidationError("MatchingKeys", "optional keys not supported at %s level: %s", level, names)
		}
		logger.WithField("keys", names).Warn("optional keys not supported, they are not matched")
	}

	ctx, span := otel.Tracer("archive").Start(ctx, "query.Engine.Query",
		trace.WithAttributes(
			attribute.String("level", string(level)),
			attribute.String("view_id", qc.param.ViewID()),
			attribute.Int("matching_keys", len(qc.keys)),
			attribute.Int("patient_ids", len(qc.patientIDs)),
		),
	)

	r := &Results{
		ctx:         ctx,
		lq:          lq,
		asm:         newRowAssembler(ctx, e.codec, qc, level),
		logger:      logger,
		span:        span,
		start:       time.Now(),
		state:       StateBuilt,
		unsupported: unsupported,
	}

	r.state = StateExecuting
	cursor, err := e.executor.Execute(ctx, lq, qc)
	if err != nil {
		var storeErr *apperrors.StoreFailure
		if !errors.As(err, &storeErr) {
			err = apperrors.NewStoreFailure("execute", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "execute failed")
		span.End()
		queryTotal.WithLabelValues(string(level), StateFailed.String()).Inc()
		logger.WithError(err).Error("query execution failed")
		return nil, err
	}
	r.cursor = cursor
	logger.Debug("query executing")
	return r, nil
}

func tagNames(tags []dicom.Tag) string {
	names := make([]string, len(tags))
	for i, t := range tags {
		if kw := t.Keyword(); kw != "" {
			names[i] = kw
		} else {
			names[i] = t.String()
		}
	}
	return strings.Join(names, ",")
}
