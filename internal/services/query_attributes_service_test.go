package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaging-archive-service/internal/domain/entities"
	"imaging-archive-service/internal/domain/repositories"
	apperrors "imaging-archive-service/internal/errors"
	"imaging-archive-service/internal/query"
)

type fixtureInstance struct {
	repositories.InstanceSummary
	rejected bool
}

// scanFixture serves instances honouring the requested visibility. With
// bySeries set only instances of the scanned series are served.
func scanFixture(instances []fixtureInstance, bySeries bool) func(context.Context, uuid.UUID, repositories.Visibility, func(repositories.InstanceSummary) error) error {
	return func(ctx context.Context, id uuid.UUID, vis repositories.Visibility, fn func(repositories.InstanceSummary) error) error {
		for _, inst := range instances {
			if vis.HideRejected && inst.rejected || vis.HideNotRejected && !inst.rejected {
				continue
			}
			if bySeries && inst.SeriesID != id {
				continue
			}
			if err := fn(inst.InstanceSummary); err != nil {
				return err
			}
		}
		return nil
	}
}

func studyFixture() (ct, mr uuid.UUID, instances []fixtureInstance) {
	ct, mr = uuid.New(), uuid.New()
	instances = []fixtureInstance{
		{InstanceSummary: repositories.InstanceSummary{SeriesID: ct, Modality: "CT", SOPClassUID: "1.2.840.10008.5.1.4.1.1.2", RetrieveAETs: `ARCHIVE\BACKUP`, Availability: entities.AvailabilityOnline}},
		{InstanceSummary: repositories.InstanceSummary{SeriesID: ct, Modality: "CT", SOPClassUID: "1.2.840.10008.5.1.4.1.1.2", RetrieveAETs: `ARCHIVE`, Availability: entities.AvailabilityNearline}},
		{InstanceSummary: repositories.InstanceSummary{SeriesID: mr, Modality: "MR", SOPClassUID: "1.2.840.10008.5.1.4.1.1.4", RetrieveAETs: `ARCHIVE\BACKUP`, Availability: entities.AvailabilityOnline}, rejected: true},
	}
	return ct, mr, instances
}

func TestStudyAttributes_ComputesOnMissThenHits(t *testing.T) {
	_, _, instances := studyFixture()
	attrsRepo := &MockQueryAttributesRepository{ScanStudyInstancesFunc: scanFixture(instances, false)}
	service := NewQueryAttributesService(attrsRepo, &MockStudyRepository{}, &MockSeriesRepository{}, quietLogger())
	studyID := uuid.New()
	param := &query.QueryParam{}

	agg, err := service.StudyAttributes(context.Background(), studyID, param)
	require.NoError(t, err)
	assert.Equal(t, studyID, agg.StudyID)
	assert.Equal(t, "all", agg.ViewID)
	assert.Equal(t, 3, agg.NumInstances)
	assert.Equal(t, 2, agg.NumSeries)
	assert.Equal(t, []string{"CT", "MR"}, agg.Modalities())
	assert.Equal(t, []string{"1.2.840.10008.5.1.4.1.1.2", "1.2.840.10008.5.1.4.1.1.4"}, agg.SOPClasses())
	assert.Equal(t, "ARCHIVE", agg.RetrieveAETs)
	assert.Equal(t, entities.AvailabilityNearline, agg.Availability)

	again, err := service.StudyAttributes(context.Background(), studyID, param)
	require.NoError(t, err)
	assert.Equal(t, agg.NumInstances, again.NumInstances)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attrsRepo.ScanStudyFuncCallCount))
	assert.Equal(t, int32(1), atomic.LoadInt32(&attrsRepo.SaveStudyFuncCallCount))
}

func TestStudyAttributes_ViewsAreIsolated(t *testing.T) {
	_, _, instances := studyFixture()
	attrsRepo := &MockQueryAttributesRepository{ScanStudyInstancesFunc: scanFixture(instances, false)}
	service := NewQueryAttributesService(attrsRepo, &MockStudyRepository{}, &MockSeriesRepository{}, quietLogger())
	studyID := uuid.New()
	ctx := context.Background()

	all, err := service.StudyAttributes(ctx, studyID, &query.QueryParam{})
	require.NoError(t, err)
	hidden, err := service.StudyAttributes(ctx, studyID, &query.QueryParam{HideRejectedInstances: true})
	require.NoError(t, err)
	onlyRejected, err := service.StudyAttributes(ctx, studyID, &query.QueryParam{HideNotRejectedInstances: true})
	require.NoError(t, err)

	assert.Equal(t, 3, all.NumInstances)
	assert.Equal(t, "hide-rejected", hidden.ViewID)
	assert.Equal(t, 2, hidden.NumInstances)
	assert.Equal(t, []string{"CT"}, hidden.Modalities())
	assert.Equal(t, 1, onlyRejected.NumInstances)
	assert.Equal(t, []string{"MR"}, onlyRejected.Modalities())
	assert.Equal(t, int32(3), atomic.LoadInt32(&attrsRepo.ScanStudyFuncCallCount))

	// served from the stored rows of each view
	again, err := service.StudyAttributes(ctx, studyID, &query.QueryParam{HideRejectedInstances: true})
	require.NoError(t, err)
	assert.Equal(t, 2, again.NumInstances)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attrsRepo.ScanStudyFuncCallCount))
}

func TestStudyAttributes_EmptyStudyIsStoredWithZeroCounts(t *testing.T) {
	attrsRepo := &MockQueryAttributesRepository{}
	service := NewQueryAttributesService(attrsRepo, &MockStudyRepository{}, &MockSeriesRepository{}, quietLogger())

	agg, err := service.StudyAttributes(context.Background(), uuid.New(), &query.QueryParam{})
	require.NoError(t, err)
	assert.Equal(t, 0, agg.NumInstances)
	assert.Empty(t, agg.Modalities())
	assert.Equal(t, int32(1), atomic.LoadInt32(&attrsRepo.SaveStudyFuncCallCount))
}

func TestStudyAttributes_VanishedStudy(t *testing.T) {
	attrsRepo := &MockQueryAttributesRepository{}
	studies := &MockStudyRepository{
		GetByIDFunc: func(ctx context.Context, id uuid.UUID) (*entities.Study, error) {
			return nil, apperrors.NewNotFoundError("study", id)
		},
	}
	service := NewQueryAttributesService(attrsRepo, studies, &MockSeriesRepository{}, quietLogger())

	_, err := service.StudyAttributes(context.Background(), uuid.New(), &query.QueryParam{})
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(&attrsRepo.ScanStudyFuncCallCount))
	assert.Equal(t, int32(0), atomic.LoadInt32(&attrsRepo.SaveStudyFuncCallCount))
}

func TestStudyAttributes_LookupFailureIsNotAMiss(t *testing.T) {
	lookupErr := apperrors.NewStoreFailure("find study query attributes", errors.New("timeout"))
	attrsRepo := &MockQueryAttributesRepository{FindStudyErr: lookupErr}
	service := NewQueryAttributesService(attrsRepo, &MockStudyRepository{}, &MockSeriesRepository{}, quietLogger())

	_, err := service.StudyAttributes(context.Background(), uuid.New(), &query.QueryParam{})
	assert.ErrorIs(t, err, lookupErr)
	assert.Equal(t, int32(0), atomic.LoadInt32(&attrsRepo.ScanStudyFuncCallCount))
}

func TestStudyAttributes_ConcurrentMissesComputeOnce(t *testing.T) {
	release := make(chan struct{})
	attrsRepo := &MockQueryAttributesRepository{
		ScanStudyInstancesFunc: func(ctx context.Context, id uuid.UUID, vis repositories.Visibility, fn func(repositories.InstanceSummary) error) error {
			<-release
			return fn(repositories.InstanceSummary{SeriesID: uuid.New(), Modality: "CT", SOPClassUID: "1.2", Availability: entities.AvailabilityOnline})
		},
	}
	service := NewQueryAttributesService(attrsRepo, &MockStudyRepository{}, &MockSeriesRepository{}, quietLogger())
	studyID := uuid.New()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*entities.StudyQueryAttributes, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.StudyAttributes(context.Background(), studyID, &query.QueryParam{})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 1, results[i].NumInstances)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&attrsRepo.ScanStudyFuncCallCount))

	// callers get their own copies
	results[0].NumInstances = 99
	assert.Equal(t, 1, results[1].NumInstances)
}

func TestSeriesAttributes(t *testing.T) {
	ct, mr, instances := studyFixture()
	attrsRepo := &MockQueryAttributesRepository{ScanSeriesInstancesFunc: scanFixture(instances, true)}
	service := NewQueryAttributesService(attrsRepo, &MockStudyRepository{}, &MockSeriesRepository{}, quietLogger())

	agg, err := service.SeriesAttributes(context.Background(), ct, &query.QueryParam{})
	require.NoError(t, err)
	assert.Equal(t, ct, agg.SeriesID)
	assert.Equal(t, 2, agg.NumInstances)
	assert.Equal(t, "ARCHIVE", agg.RetrieveAETs)
	assert.Equal(t, entities.AvailabilityNearline, agg.Availability)

	_, err = service.SeriesAttributes(context.Background(), ct, &query.QueryParam{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attrsRepo.ScanSeriesFuncCallCount))

	rejected, err := service.SeriesAttributes(context.Background(), mr, &query.QueryParam{HideRejectedInstances: true})
	require.NoError(t, err)
	assert.Equal(t, 0, rejected.NumInstances)
}

func TestInvalidateAndRefresh(t *testing.T) {
	ct, mr, instances := studyFixture()
	attrsRepo := &MockQueryAttributesRepository{
		ScanStudyInstancesFunc:  scanFixture(instances, false),
		ScanSeriesInstancesFunc: scanFixture(instances, true),
	}
	service := NewQueryAttributesService(attrsRepo, &MockStudyRepository{}, &MockSeriesRepository{}, quietLogger())
	ctx := context.Background()
	studyID := uuid.New()
	param := &query.QueryParam{}

	_, err := service.StudyAttributes(ctx, studyID, param)
	require.NoError(t, err)
	require.NoError(t, service.Invalidate(ctx, studyID, ct))
	_, err = service.StudyAttributes(ctx, studyID, param)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attrsRepo.ScanStudyFuncCallCount), "invalidated rows are recomputed")

	agg, err := service.Refresh(ctx, studyID, param)
	require.NoError(t, err)
	assert.Equal(t, 3, agg.NumInstances)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attrsRepo.ScanSeriesFuncCallCount), "both series are refreshed")

	for id, want := range map[uuid.UUID]int{ct: 2, mr: 1} {
		series, err := attrsRepo.FindSeries(ctx, id, "all")
		require.NoError(t, err)
		assert.Equal(t, want, series.NumInstances)
	}
}
