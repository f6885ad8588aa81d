package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"imaging-archive-service/internal/adapters"
	"imaging-archive-service/internal/config"
	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/dtos"
	"imaging-archive-service/internal/domain/entities"
	"imaging-archive-service/internal/domain/repositories"
	apperrors "imaging-archive-service/internal/errors"
)

// RefreshJob asks the refresher to recompute the aggregates of a study.
type RefreshJob struct {
	StudyID uuid.UUID `json:"study_id"`
}

// StoreServiceImpl implements StoreServiceContract.
type StoreServiceImpl struct {
	patients     PatientServiceContract
	studyRepo    repositories.StudyRepositoryContract
	seriesRepo   repositories.SeriesRepositoryContract
	instanceRepo repositories.InstanceRepositoryContract
	aggregates   QueryAttributesServiceContract
	queueAdapter adapters.QueueAdapter
	refreshQueue string
	codec        dicom.Codec
	filters      *config.Filters
	logger       logrus.FieldLogger
	locks        keyedMutex
}

// StoreServiceDeps groups the collaborators of the store service.
type StoreServiceDeps struct {
	Patients     PatientServiceContract
	StudyRepo    repositories.StudyRepositoryContract
	SeriesRepo   repositories.SeriesRepositoryContract
	InstanceRepo repositories.InstanceRepositoryContract
	Aggregates   QueryAttributesServiceContract
	// QueueAdapter and RefreshQueue are optional. Without them no refresh job
	// is published and aggregates are computed on the next query.
	QueueAdapter adapters.QueueAdapter
	RefreshQueue string
	Codec        dicom.Codec
	// Filters selects the stored attributes per entity. Nil keeps everything.
	Filters *config.Filters
}

// NewStoreService creates a new instance of StoreServiceImpl.
func NewStoreService(deps StoreServiceDeps, logger logrus.FieldLogger) StoreServiceContract {
	if logger == nil {
		logger = logrus.New()
	}
	if deps.Filters == nil {
		deps.Filters = &config.Filters{}
	}
	return &StoreServiceImpl{
		patients:     deps.Patients,
		studyRepo:    deps.StudyRepo,
		seriesRepo:   deps.SeriesRepo,
		instanceRepo: deps.InstanceRepo,
		aggregates:   deps.Aggregates,
		queueAdapter: deps.QueueAdapter,
		refreshQueue: deps.RefreshQueue,
		codec:        deps.Codec,
		filters:      deps.Filters,
		logger:       logger,
	}
}

func (s *StoreServiceImpl) Store(ctx context.Context, session *StoreSession, attrs *dicom.Attributes) (*dtos.StoreResult, error) {
	if session == nil {
		return nil, apperrors.NewValidationError("StoreSession", "must not be nil")
	}
	result := &dtos.StoreResult{
		StudyIUID:  attrs.GetString(dicom.TagStudyInstanceUID),
		SeriesIUID: attrs.GetString(dicom.TagSeriesInstanceUID),
		SOPIUID:    attrs.GetString(dicom.TagSOPInstanceUID),
	}
	if err := requireUIDs(result, attrs.GetString(dicom.TagSOPClassUID)); err != nil {
		storedInstances.WithLabelValues("invalid").Inc()
		return nil, err
	}

	ctx, span := otel.Tracer("archive").Start(ctx, "services.StoreService.Store",
		trace.WithAttributes(attribute.String("sop_iuid", result.SOPIUID)))
	defer span.End()

	lockKey := "study:" + result.StudyIUID
	if pid := dicom.PatientIDOf(attrs); pid != nil {
		lockKey = "pid:" + pid.ID
	}
	unlock := s.locks.Lock(lockKey)
	defer unlock()

	if _, err := s.instanceRepo.FindByUID(ctx, result.SOPIUID); err == nil {
		storedInstances.WithLabelValues("duplicate").Inc()
		return nil, spanError(span, apperrors.NewDuplicateInstanceError(result.SOPIUID))
	} else if !apperrors.IsNotFound(err) {
		return nil, spanError(span, err)
	}

	patient, created, err := s.findOrCreatePatient(ctx, attrs)
	if err != nil {
		storedInstances.WithLabelValues("failed").Inc()
		return nil, spanError(span, err)
	}
	result.PatientCreated = created
	if id := patient.IDWithIssuer(); id != nil {
		result.PatientID = id.String()
	}

	study, err := s.findOrCreateStudy(ctx, patient, attrs)
	if err != nil {
		storedInstances.WithLabelValues("failed").Inc()
		return nil, spanError(span, err)
	}
	series, err := s.findOrCreateSeries(ctx, session, study, attrs)
	if err != nil {
		storedInstances.WithLabelValues("failed").Inc()
		return nil, spanError(span, err)
	}

	blob, err := s.codec.Encode(attrs.Filter(s.filters.Instance))
	if err != nil {
		storedInstances.WithLabelValues("failed").Inc()
		return nil, spanError(span, fmt.Errorf("encode instance attributes: %w", err))
	}
	instance := &entities.Instance{
		SeriesID:          series.ID,
		SOPIUID:           result.SOPIUID,
		SOPCUID:           attrs.GetString(dicom.TagSOPClassUID),
		InstNo:            attrs.GetString(dicom.TagInstanceNumber),
		RetrieveAETs:      session.RetrieveAETs,
		Availability:      session.Availability,
		EncodedAttributes: blob,
	}
	if err := s.instanceRepo.Create(ctx, instance); err != nil {
		outcome := "failed"
		var dup *apperrors.DuplicateInstanceError
		if errors.As(err, &dup) {
			outcome = "duplicate"
		}
		storedInstances.WithLabelValues(outcome).Inc()
		return nil, spanError(span, err)
	}

	// The instance lands in the series' own study, which may differ from study.
	if err := s.invalidate(ctx, series.StudyID, series.ID); err != nil {
		storedInstances.WithLabelValues("failed").Inc()
		return nil, spanError(span, err)
	}
	storedInstances.WithLabelValues("stored").Inc()
	s.logger.WithFields(logrus.Fields{
		"patient_id": result.PatientID,
		"study_pk":   study.ID,
		"series_pk":  series.ID,
		"sop_iuid":   result.SOPIUID,
	}).Info("instance stored")
	return result, nil
}

func (s *StoreServiceImpl) Reject(ctx context.Context, sopIUID, code string) error {
	instance, err := s.instanceRepo.FindByUID(ctx, sopIUID)
	if err != nil {
		return err
	}
	series, err := s.seriesRepo.GetByID(ctx, instance.SeriesID)
	if err != nil {
		return fmt.Errorf("series of instance %s: %w", sopIUID, err)
	}
	if err := s.instanceRepo.Reject(ctx, sopIUID, code); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"sop_iuid": sopIUID, "code": code}).Info("instance rejection updated")
	return s.invalidate(ctx, series.StudyID, series.ID)
}

// findOrCreatePatient resolves the identity of attrs. Attributes without a
// Patient ID always create a new patient.
func (s *StoreServiceImpl) findOrCreatePatient(ctx context.Context, attrs *dicom.Attributes) (*entities.Patient, bool, error) {
	patient, err := s.patients.FindPatient(ctx, attrs)
	switch {
	case errors.Is(err, apperrors.ErrIdentityIndeterminate):
		s.logger.Debug("no patient id, creating a patient without identifier")
	case err != nil:
		return nil, false, err
	case patient != nil:
		return patient, false, nil
	}
	patient, err = s.patients.CreatePatient(ctx, attrs)
	if err != nil {
		return nil, false, err
	}
	return patient, true, nil
}

func (s *StoreServiceImpl) findOrCreateStudy(ctx context.Context, patient *entities.Patient, attrs *dicom.Attributes) (*entities.Study, error) {
	uid := attrs.GetString(dicom.TagStudyInstanceUID)
	study, err := s.studyRepo.FindByUID(ctx, uid)
	if err == nil {
		if study.PatientID != patient.ID {
			s.logger.WithFields(logrus.Fields{"study_iuid": uid, "patient_pk": patient.ID}).
				Warn("study already filed under another patient")
		}
		return study, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}
	blob, err := s.codec.Encode(attrs.Filter(s.filters.Study))
	if err != nil {
		return nil, fmt.Errorf("encode study attributes: %w", err)
	}
	study = &entities.Study{
		PatientID:         patient.ID,
		StudyIUID:         uid,
		StudyID:           attrs.GetString(dicom.TagStudyID),
		StudyDate:         attrs.GetString(dicom.TagStudyDate),
		StudyTime:         attrs.GetString(dicom.TagStudyTime),
		AccessionNo:       attrs.GetString(dicom.TagAccessionNumber),
		StudyDesc:         attrs.GetString(dicom.TagStudyDescription),
		RefPhysName:       attrs.GetString(dicom.TagReferringPhysicianName),
		EncodedAttributes: blob,
	}
	if err := s.studyRepo.Create(ctx, study); err != nil {
		return nil, err
	}
	return study, nil
}

func (s *StoreServiceImpl) findOrCreateSeries(ctx context.Context, session *StoreSession, study *entities.Study, attrs *dicom.Attributes) (*entities.Series, error) {
	uid := attrs.GetString(dicom.TagSeriesInstanceUID)
	if cached := session.CachedSeries(uid); cached != nil && cached.StudyID == study.ID {
		return cached, nil
	}
	series, err := s.seriesRepo.FindByUID(ctx, uid)
	if err == nil {
		if series.StudyID != study.ID {
			s.logger.WithFields(logrus.Fields{"series_iuid": uid, "study_pk": study.ID, "filed_study_pk": series.StudyID}).
				Warn("series already filed under another study")
		}
		session.cacheSeries(series)
		return series, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}
	blob, err := s.codec.Encode(attrs.Filter(s.filters.Series))
	if err != nil {
		return nil, fmt.Errorf("encode series attributes: %w", err)
	}
	series = &entities.Series{
		StudyID:           study.ID,
		SeriesIUID:        uid,
		Modality:          attrs.GetString(dicom.TagModality),
		SeriesNo:          attrs.GetString(dicom.TagSeriesNumber),
		SeriesDesc:        attrs.GetString(dicom.TagSeriesDescription),
		BodyPart:          attrs.GetString(dicom.TagBodyPartExamined),
		EncodedAttributes: blob,
	}
	if err := s.seriesRepo.Create(ctx, series); err != nil {
		return nil, err
	}
	session.cacheSeries(series)
	return series, nil
}

// invalidate drops the stale aggregates and queues their recomputation. A
// failed publish is logged only; the next query recomputes them anyway.
func (s *StoreServiceImpl) invalidate(ctx context.Context, studyID, seriesID uuid.UUID) error {
	if err := s.aggregates.Invalidate(ctx, studyID, seriesID); err != nil {
		return err
	}
	if s.queueAdapter == nil || s.refreshQueue == "" {
		return nil
	}
	job, err := json.Marshal(RefreshJob{StudyID: studyID})
	if err != nil {
		return fmt.Errorf("marshal refresh job: %w", err)
	}
	if err := s.queueAdapter.Publish(ctx, s.refreshQueue, job); err != nil {
		s.logger.WithError(err).WithField("study_pk", studyID).Warn("refresh job not queued")
	}
	return nil
}

func requireUIDs(result *dtos.StoreResult, sopCUID string) error {
	switch {
	case result.StudyIUID == "":
		return apperrors.NewValidationError("StudyInstanceUID", "is missing")
	case result.SeriesIUID == "":
		return apperrors.NewValidationError("SeriesInstanceUID", "is missing")
	case result.SOPIUID == "":
		return apperrors.NewValidationError("SOPInstanceUID", "is missing")
	case sopCUID == "":
		return apperrors.NewValidationError("SOPClassUID", "is missing")
	}
	return nil
}
