// Package app wires the archive services from a configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"imaging-archive-service/internal/adapters"
	"imaging-archive-service/internal/api/handlers"
	"imaging-archive-service/internal/config"
	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/repositories"
	"imaging-archive-service/internal/query"
	"imaging-archive-service/internal/services"
)

// Archive holds the wired services of one process.
type Archive struct {
	DB         *gorm.DB
	Patients   services.PatientServiceContract
	Aggregates services.QueryAttributesServiceContract
	Store      services.StoreServiceContract
	Query      services.QueryServiceContract
	Handler    *handlers.ArchiveHandler

	queue     *adapters.InMemoryQueueAdapter
	refresher *services.QueryAttributesRefresherImpl
	logger    logrus.FieldLogger
}

// New opens the database and wires the services. The refresher is created
// only when refresh is enabled and runs after Start.
func New(cfg *config.Config, logger logrus.FieldLogger, timeout time.Duration) (*Archive, error) {
	if logger == nil {
		logger = logrus.New()
	}
	filters, err := cfg.Filters()
	if err != nil {
		return nil, err
	}
	fuzzy, err := cfg.FuzzyStr()
	if err != nil {
		return nil, err
	}
	db, err := config.OpenDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	codec := dicom.NewBinaryCodec()
	studies := repositories.NewStudyRepository(db)
	series := repositories.NewSeriesRepository(db)
	a := &Archive{DB: db, logger: logger}
	a.Aggregates = services.NewQueryAttributesService(repositories.NewQueryAttributesRepository(db), studies, series, logger)
	a.Patients = services.NewPatientService(
		repositories.NewPatientRepository(db),
		repositories.NewIssuerRepository(db),
		codec, filters.Patient, fuzzy, logger,
	)

	deps := services.StoreServiceDeps{
		Patients:     a.Patients,
		StudyRepo:    studies,
		SeriesRepo:   series,
		InstanceRepo: repositories.NewInstanceRepository(db),
		Aggregates:   a.Aggregates,
		Codec:        codec,
		Filters:      filters,
	}
	if cfg.Refresh.Enabled {
		a.queue = adapters.NewInMemoryQueueAdapter(logger, adapters.InMemoryQueueOptions{})
		a.refresher = services.NewQueryAttributesRefresher(a.Aggregates, a.queue, cfg.Refresh.Queue, cfg.QueryParam(), cfg.Refresh.Workers, logger)
		deps.QueueAdapter = a.queue
		deps.RefreshQueue = cfg.Refresh.Queue
	}
	a.Store = services.NewStoreService(deps, logger)

	engine := query.NewEngine(query.NewGormExecutor(db), codec, logger)
	a.Query = services.NewQueryService(engine, a.Aggregates, cfg.QueryParam(), fuzzy, logger)
	a.Handler = handlers.NewArchiveHandler(a.Store, a.Query, a.Patients, codec, timeout, logger)
	return a, nil
}

// Start launches the refresh consumers, if any.
func (a *Archive) Start(ctx context.Context) error {
	if a.refresher == nil {
		return nil
	}
	return a.refresher.Start(ctx)
}

// Close stops the refresher, waits for running jobs and closes the database.
func (a *Archive) Close(ctx context.Context) error {
	if a.refresher != nil {
		if err := a.refresher.Stop(ctx); err != nil {
			a.logger.WithError(err).Warn("stop refresher")
		}
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.logger.WithError(err).Warn("close queue")
		}
	}
	sqlDB, err := a.DB.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	return sqlDB.Close()
}
