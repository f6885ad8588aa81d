package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"imaging-archive-service/internal/adapters"
	apperrors "imaging-archive-service/internal/errors"
	"imaging-archive-service/internal/query"
)

// QueryAttributesRefresherContract runs the background precomputation of
// aggregates.
type QueryAttributesRefresherContract interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// QueryAttributesRefresherImpl consumes refresh jobs and recomputes the
// aggregates of the configured default view.
type QueryAttributesRefresherImpl struct {
	aggregates    QueryAttributesServiceContract
	queueAdapter  adapters.QueueAdapter
	queueName     string
	param         query.QueryParam
	workers       int
	logger        logrus.FieldLogger
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
	mu            sync.Mutex
	started       bool
}

// NewQueryAttributesRefresher creates a refresher. workers below 1 start a
// single consumer.
func NewQueryAttributesRefresher(
	aggregates QueryAttributesServiceContract,
	queueAdapter adapters.QueueAdapter,
	queueName string,
	param query.QueryParam,
	workers int,
	logger logrus.FieldLogger,
) *QueryAttributesRefresherImpl {
	if logger == nil {
		logger = logrus.New()
	}
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &QueryAttributesRefresherImpl{
		aggregates:    aggregates,
		queueAdapter:  queueAdapter,
		queueName:     queueName,
		param:         param,
		workers:       workers,
		logger:        logger.WithField("queue", queueName),
		serviceCtx:    ctx,
		serviceCancel: cancel,
	}
}

func (r *QueryAttributesRefresherImpl) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	for i := 0; i < r.workers; i++ {
		if err := r.queueAdapter.StartConsuming(r.serviceCtx, r.queueName, r.handleRefreshJob); err != nil {
			r.serviceCancel()
			return fmt.Errorf("start consumer for %s: %w", r.queueName, err)
		}
	}
	r.started = true
	r.logger.WithField("workers", r.workers).Info("aggregate refresher started")
	return nil
}

func (r *QueryAttributesRefresherImpl) Stop(ctx context.Context) error {
	r.serviceCancel()
	if err := r.queueAdapter.StopConsuming(ctx, r.queueName); err != nil {
		return err
	}
	r.logger.Info("aggregate refresher stopped")
	return nil
}

func (r *QueryAttributesRefresherImpl) handleRefreshJob(ctx context.Context, data []byte) error {
	var job RefreshJob
	if err := json.Unmarshal(data, &job); err != nil {
		refreshJobs.WithLabelValues("malformed").Inc()
		return fmt.Errorf("decode refresh job: %w", err)
	}
	agg, err := r.aggregates.Refresh(ctx, job.StudyID, &r.param)
	switch {
	case apperrors.IsNotFound(err):
		// the study was deleted after the job was queued
		refreshJobs.WithLabelValues("vanished").Inc()
		r.logger.WithField("study_pk", job.StudyID).Debug("refresh skipped, study is gone")
		return nil
	case err != nil:
		refreshJobs.WithLabelValues("failed").Inc()
		return fmt.Errorf("refresh study %s: %w", job.StudyID, err)
	}
	refreshJobs.WithLabelValues("refreshed").Inc()
	r.logger.WithFields(logrus.Fields{
		"study_pk":      job.StudyID,
		"view_id":       agg.ViewID,
		"num_instances": agg.NumInstances,
	}).Debug("study aggregates refreshed")
	return nil
}
