package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"imaging-archive-service/internal/adapters"
	"imaging-archive-service/internal/dicom"
	"imaging-archive-service/internal/domain/entities"
	"imaging-archive-service/internal/domain/repositories"
	apperrors "imaging-archive-service/internal/errors"
	"imaging-archive-service/internal/query"
)

// --- MockPatientRepository ---
var _ repositories.PatientRepositoryContract = (*MockPatientRepository)(nil)

type MockPatientRepository struct {
	CreateFunc          func(ctx context.Context, patient *entities.Patient) error
	GetByIDFunc         func(ctx context.Context, id uuid.UUID) (*entities.Patient, error)
	UpdateFunc          func(ctx context.Context, patient *entities.Patient) error
	FindByPatientIDFunc func(ctx context.Context, patID string) ([]*entities.Patient, error)

	CreateFuncCallCount          int32
	FindByPatientIDFuncCallCount int32
}

func (m *MockPatientRepository) Create(ctx context.Context, patient *entities.Patient) error {
	atomic.AddInt32(&m.CreateFuncCallCount, 1)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, patient)
	}
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	return nil
}

func (m *MockPatientRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Patient, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, errors.New("GetByIDFunc not implemented in mock")
}

func (m *MockPatientRepository) Update(ctx context.Context, patient *entities.Patient) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, patient)
	}
	return errors.New("UpdateFunc not implemented in mock")
}

func (m *MockPatientRepository) FindByPatientID(ctx context.Context, patID string) ([]*entities.Patient, error) {
	atomic.AddInt32(&m.FindByPatientIDFuncCallCount, 1)
	if m.FindByPatientIDFunc != nil {
		return m.FindByPatientIDFunc(ctx, patID)
	}
	return nil, nil
}

// --- MockIssuerRepository ---
var _ repositories.IssuerRepositoryContract = (*MockIssuerRepository)(nil)

type MockIssuerRepository struct {
	FindOrCreateFunc          func(ctx context.Context, issuer *dicom.Issuer) (*entities.Issuer, error)
	FindOrCreateFuncCallCount int32
}

func (m *MockIssuerRepository) FindOrCreate(ctx context.Context, issuer *dicom.Issuer) (*entities.Issuer, error) {
	atomic.AddInt32(&m.FindOrCreateFuncCallCount, 1)
	if m.FindOrCreateFunc != nil {
		return m.FindOrCreateFunc(ctx, issuer)
	}
	return &entities.Issuer{
		ID:                     uuid.New(),
		LocalNamespaceEntityID: issuer.LocalNamespaceEntityID,
		UniversalEntityID:      issuer.UniversalEntityID,
		UniversalEntityIDType:  issuer.UniversalEntityIDType,
	}, nil
}

// --- MockStudyRepository ---
var _ repositories.StudyRepositoryContract = (*MockStudyRepository)(nil)

type MockStudyRepository struct {
	CreateFunc    func(ctx context.Context, study *entities.Study) error
	GetByIDFunc   func(ctx context.Context, id uuid.UUID) (*entities.Study, error)
	FindByUIDFunc func(ctx context.Context, studyIUID string) (*entities.Study, error)

	CreateFuncCallCount  int32
	GetByIDFuncCallCount int32
}

func (m *MockStudyRepository) Create(ctx context.Context, study *entities.Study) error {
	atomic.AddInt32(&m.CreateFuncCallCount, 1)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, study)
	}
	study.ID = uuid.New()
	return nil
}

func (m *MockStudyRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Study, error) {
	atomic.AddInt32(&m.GetByIDFuncCallCount, 1)
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &entities.Study{ID: id}, nil
}

func (m *MockStudyRepository) FindByUID(ctx context.Context, studyIUID string) (*entities.Study, error) {
	if m.FindByUIDFunc != nil {
		return m.FindByUIDFunc(ctx, studyIUID)
	}
	return nil, apperrors.NewNotFoundError("study", studyIUID)
}

// --- MockSeriesRepository ---
var _ repositories.SeriesRepositoryContract = (*MockSeriesRepository)(nil)

type MockSeriesRepository struct {
	CreateFunc    func(ctx context.Context, series *entities.Series) error
	GetByIDFunc   func(ctx context.Context, id uuid.UUID) (*entities.Series, error)
	FindByUIDFunc func(ctx context.Context, seriesIUID string) (*entities.Series, error)

	CreateFuncCallCount    int32
	FindByUIDFuncCallCount int32
}

func (m *MockSeriesRepository) Create(ctx context.Context, series *entities.Series) error {
	atomic.AddInt32(&m.CreateFuncCallCount, 1)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, series)
	}
	series.ID = uuid.New()
	return nil
}

func (m *MockSeriesRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Series, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &entities.Series{ID: id}, nil
}

func (m *MockSeriesRepository) FindByUID(ctx context.Context, seriesIUID string) (*entities.Series, error) {
	atomic.AddInt32(&m.FindByUIDFuncCallCount, 1)
	if m.FindByUIDFunc != nil {
		return m.FindByUIDFunc(ctx, seriesIUID)
	}
	return nil, apperrors.NewNotFoundError("series", seriesIUID)
}

// --- MockInstanceRepository ---
var _ repositories.InstanceRepositoryContract = (*MockInstanceRepository)(nil)

type MockInstanceRepository struct {
	CreateFunc    func(ctx context.Context, instance *entities.Instance) error
	FindByUIDFunc func(ctx context.Context, sopIUID string) (*entities.Instance, error)
	RejectFunc    func(ctx context.Context, sopIUID, code string) error

	CreateFuncCallCount int32
	RejectFuncCallCount int32
}

func (m *MockInstanceRepository) Create(ctx context.Context, instance *entities.Instance) error {
	atomic.AddInt32(&m.CreateFuncCallCount, 1)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, instance)
	}
	instance.ID = uuid.New()
	return nil
}

func (m *MockInstanceRepository) FindByUID(ctx context.Context, sopIUID string) (*entities.Instance, error) {
	if m.FindByUIDFunc != nil {
		return m.FindByUIDFunc(ctx, sopIUID)
	}
	return nil, apperrors.NewNotFoundError("instance", sopIUID)
}

func (m *MockInstanceRepository) Reject(ctx context.Context, sopIUID, code string) error {
	atomic.AddInt32(&m.RejectFuncCallCount, 1)
	if m.RejectFunc != nil {
		return m.RejectFunc(ctx, sopIUID, code)
	}
	return nil
}

// --- MockQueryAttributesRepository ---
var _ repositories.QueryAttributesRepositoryContract = (*MockQueryAttributesRepository)(nil)

// MockQueryAttributesRepository keeps saved aggregates in memory so a save is
// visible to the next find.
type MockQueryAttributesRepository struct {
	ScanStudyInstancesFunc  func(ctx context.Context, studyID uuid.UUID, vis repositories.Visibility, fn func(repositories.InstanceSummary) error) error
	ScanSeriesInstancesFunc func(ctx context.Context, seriesID uuid.UUID, vis repositories.Visibility, fn func(repositories.InstanceSummary) error) error
	FindStudyErr            error

	ScanStudyFuncCallCount  int32
	ScanSeriesFuncCallCount int32
	SaveStudyFuncCallCount  int32
	DeleteFuncCallCount     int32

	mu     sync.Mutex
	study  map[string]entities.StudyQueryAttributes
	series map[string]entities.SeriesQueryAttributes
}

func aggKey(id uuid.UUID, viewID string) string { return id.String() + "/" + viewID }

func (m *MockQueryAttributesRepository) FindStudy(ctx context.Context, studyID uuid.UUID, viewID string) (*entities.StudyQueryAttributes, error) {
	if m.FindStudyErr != nil {
		return nil, m.FindStudyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if agg, ok := m.study[aggKey(studyID, viewID)]; ok {
		return &agg, nil
	}
	return nil, apperrors.NewNotFoundError("study query attributes", studyID)
}

func (m *MockQueryAttributesRepository) SaveStudy(ctx context.Context, attrs *entities.StudyQueryAttributes) error {
	atomic.AddInt32(&m.SaveStudyFuncCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.study == nil {
		m.study = map[string]entities.StudyQueryAttributes{}
	}
	m.study[aggKey(attrs.StudyID, attrs.ViewID)] = *attrs
	return nil
}

func (m *MockQueryAttributesRepository) FindSeries(ctx context.Context, seriesID uuid.UUID, viewID string) (*entities.SeriesQueryAttributes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if agg, ok := m.series[aggKey(seriesID, viewID)]; ok {
		return &agg, nil
	}
	return nil, apperrors.NewNotFoundError("series query attributes", seriesID)
}

func (m *MockQueryAttributesRepository) SaveSeries(ctx context.Context, attrs *entities.SeriesQueryAttributes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.series == nil {
		m.series = map[string]entities.SeriesQueryAttributes{}
	}
	m.series[aggKey(attrs.SeriesID, attrs.ViewID)] = *attrs
	return nil
}

func (m *MockQueryAttributesRepository) DeleteForStudy(ctx context.Context, studyID uuid.UUID) error {
	atomic.AddInt32(&m.DeleteFuncCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.study {
		if v.StudyID == studyID {
			delete(m.study, k)
		}
	}
	return nil
}

func (m *MockQueryAttributesRepository) DeleteForSeries(ctx context.Context, seriesID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.series {
		if v.SeriesID == seriesID {
			delete(m.series, k)
		}
	}
	return nil
}

func (m *MockQueryAttributesRepository) ScanStudyInstances(ctx context.Context, studyID uuid.UUID, vis repositories.Visibility, fn func(repositories.InstanceSummary) error) error {
	atomic.AddInt32(&m.ScanStudyFuncCallCount, 1)
	if m.ScanStudyInstancesFunc != nil {
		return m.ScanStudyInstancesFunc(ctx, studyID, vis, fn)
	}
	return nil
}

func (m *MockQueryAttributesRepository) ScanSeriesInstances(ctx context.Context, seriesID uuid.UUID, vis repositories.Visibility, fn func(repositories.InstanceSummary) error) error {
	atomic.AddInt32(&m.ScanSeriesFuncCallCount, 1)
	if m.ScanSeriesInstancesFunc != nil {
		return m.ScanSeriesInstancesFunc(ctx, seriesID, vis, fn)
	}
	return nil
}

// --- MockPatientService ---
var _ PatientServiceContract = (*MockPatientService)(nil)

type MockPatientService struct {
	FindPatientFunc   func(ctx context.Context, attrs *dicom.Attributes) (*entities.Patient, error)
	CreatePatientFunc func(ctx context.Context, attrs *dicom.Attributes) (*entities.Patient, error)
	GetPatientFunc    func(ctx context.Context, id uuid.UUID) (*entities.Patient, error)

	FindPatientFuncCallCount   int32
	CreatePatientFuncCallCount int32
}

func (m *MockPatientService) FindPatient(ctx context.Context, attrs *dicom.Attributes) (*entities.Patient, error) {
	atomic.AddInt32(&m.FindPatientFuncCallCount, 1)
	if m.FindPatientFunc != nil {
		return m.FindPatientFunc(ctx, attrs)
	}
	return nil, nil
}

func (m *MockPatientService) CreatePatient(ctx context.Context, attrs *dicom.Attributes) (*entities.Patient, error) {
	atomic.AddInt32(&m.CreatePatientFuncCallCount, 1)
	if m.CreatePatientFunc != nil {
		return m.CreatePatientFunc(ctx, attrs)
	}
	return &entities.Patient{ID: uuid.New()}, nil
}

func (m *MockPatientService) GetPatient(ctx context.Context, id uuid.UUID) (*entities.Patient, error) {
	if m.GetPatientFunc != nil {
		return m.GetPatientFunc(ctx, id)
	}
	return nil, errors.New("GetPatientFunc not implemented in mock")
}

// --- MockQueryAttributesService ---
var _ QueryAttributesServiceContract = (*MockQueryAttributesService)(nil)

type MockQueryAttributesService struct {
	StudyAttributesFunc  func(ctx context.Context, studyPK uuid.UUID, param *query.QueryParam) (*entities.StudyQueryAttributes, error)
	SeriesAttributesFunc func(ctx context.Context, seriesPK uuid.UUID, param *query.QueryParam) (*entities.SeriesQueryAttributes, error)
	InvalidateFunc       func(ctx context.Context, studyID uuid.UUID, seriesIDs ...uuid.UUID) error
	RefreshFunc          func(ctx context.Context, studyID uuid.UUID, param *query.QueryParam) (*entities.StudyQueryAttributes, error)

	InvalidateFuncCallCount int32
	RefreshFuncCallCount    int32
}

func (m *MockQueryAttributesService) StudyAttributes(ctx context.Context, studyPK uuid.UUID, param *query.QueryParam) (*entities.StudyQueryAttributes, error) {
	if m.StudyAttributesFunc != nil {
		return m.StudyAttributesFunc(ctx, studyPK, param)
	}
	return nil, apperrors.NewNotFoundError("study", studyPK)
}

func (m *MockQueryAttributesService) SeriesAttributes(ctx context.Context, seriesPK uuid.UUID, param *query.QueryParam) (*entities.SeriesQueryAttributes, error) {
	if m.SeriesAttributesFunc != nil {
		return m.SeriesAttributesFunc(ctx, seriesPK, param)
	}
	return nil, apperrors.NewNotFoundError("series", seriesPK)
}

func (m *MockQueryAttributesService) Invalidate(ctx context.Context, studyID uuid.UUID, seriesIDs ...uuid.UUID) error {
	atomic.AddInt32(&m.InvalidateFuncCallCount, 1)
	if m.InvalidateFunc != nil {
		return m.InvalidateFunc(ctx, studyID, seriesIDs...)
	}
	return nil
}

func (m *MockQueryAttributesService) Refresh(ctx context.Context, studyID uuid.UUID, param *query.QueryParam) (*entities.StudyQueryAttributes, error) {
	atomic.AddInt32(&m.RefreshFuncCallCount, 1)
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, studyID, param)
	}
	return &entities.StudyQueryAttributes{StudyID: studyID, ViewID: param.ViewID()}, nil
}

// --- MockQueueAdapter ---
var _ adapters.QueueAdapter = (*MockQueueAdapter)(nil)

type MockQueueAdapter struct {
	PublishFunc        func(ctx context.Context, queueName string, jobData []byte) error
	StartConsumingFunc func(ctx context.Context, queueName string, handler adapters.JobHandler) error

	StartConsumingFuncCallCount int32
	StopConsumingFuncCallCount  int32

	mu                sync.Mutex
	PublishedMessages map[string][][]byte
	Handlers          map[string]adapters.JobHandler
}

func NewMockQueueAdapter() *MockQueueAdapter {
	return &MockQueueAdapter{
		PublishedMessages: make(map[string][][]byte),
		Handlers:          make(map[string]adapters.JobHandler),
	}
}

func (m *MockQueueAdapter) Publish(ctx context.Context, queueName string, jobData []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, queueName, jobData)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedMessages[queueName] = append(m.PublishedMessages[queueName], jobData)
	return nil
}

func (m *MockQueueAdapter) StartConsuming(ctx context.Context, queueName string, handler adapters.JobHandler) error {
	atomic.AddInt32(&m.StartConsumingFuncCallCount, 1)
	if m.StartConsumingFunc != nil {
		return m.StartConsumingFunc(ctx, queueName, handler)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[queueName] = handler
	return nil
}

func (m *MockQueueAdapter) StopConsuming(ctx context.Context, queueName string) error {
	atomic.AddInt32(&m.StopConsumingFuncCallCount, 1)
	return nil
}

func (m *MockQueueAdapter) Close() error { return nil }

func (m *MockQueueAdapter) Published(queueName string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.PublishedMessages[queueName]...)
}

func (m *MockQueueAdapter) Handler(queueName string) adapters.JobHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Handlers[queueName]
}
