package collect_public_data

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dealforge/dealforge-backend/internal/db"
	"github.com/dealforge/dealforge-backend/internal/events"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/types"
)

type fakeRegistry struct {
	err error
}

func (f *fakeRegistry) LookupCompany(ctx context.Context, company *types.Company) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"legal_name":"` + company.Name + `","status":"active"}`), nil
}

type fakeSearch struct {
	err error
}

func (f *fakeSearch) MarketResearch(ctx context.Context, company *types.Company) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"results":[{"title":"Market overview"}]}`), nil
}

type recordingBus struct {
	emitted []events.Payload
}

func (b *recordingBus) Emit(ctx context.Context, p events.Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	b.emitted = append(b.emitted, p)
	return nil
}

type fixture struct {
	db       *gorm.DB
	log      *logger.Logger
	bus      *recordingBus
	registry *fakeRegistry
	search   *fakeSearch
	pipeline *Pipeline
	jobs     repos.GenerationJobRepo
	cache    repos.CachedDataRepo
	job      *types.GenerationJob
	company  *types.Company
}

func newFixture(t *testing.T, requestIM bool) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))

	log, err := logger.New("production")
	require.NoError(t, err)

	f := &fixture{
		db:       gdb,
		log:      log,
		bus:      &recordingBus{},
		registry: &fakeRegistry{},
		search:   &fakeSearch{},
		jobs:     repos.NewGenerationJobRepo(gdb, log),
		cache:    repos.NewCachedDataRepo(gdb, log),
	}

	f.company = &types.Company{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Name:           "Aurora GmbH",
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, gdb.Create(f.company).Error)

	f.job, err = f.jobs.Create(context.Background(), nil, &types.GenerationJob{
		CompanyID:       f.company.ID,
		OrganizationID:  f.company.OrganizationID,
		CreatedByUserID: uuid.New(),
		RequestTeaser:   true,
		RequestIM:       requestIM,
		Status:          types.StatusCollectingData,
	})
	require.NoError(t, err)

	f.pipeline = New(gdb, log, repos.NewCompanyRepo(gdb, log), f.cache, f.registry, f.search)
	return f
}

func (f *fixture) runDelivery(t *testing.T) error {
	t.Helper()
	payload, err := json.Marshal(events.JobCreated{
		JobID:          f.job.ID,
		CompanyID:      f.company.ID,
		OrganizationID: f.company.OrganizationID,
	})
	require.NoError(t, err)

	delivery := &types.EventDelivery{
		ID:        uuid.New(),
		EventID:   uuid.New(),
		EventName: events.EventJobCreated,
		JobID:     f.job.ID,
		Payload:   datatypes.JSON(payload),
		Status:    types.DeliveryRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, f.db.Create(delivery).Error)

	jc := jobrt.NewContext(
		context.Background(),
		f.db,
		f.log,
		delivery,
		f.jobs,
		repos.NewStepRunRepo(f.db, f.log),
		repos.NewEventRepo(f.db, f.log),
		f.bus,
	)
	return f.pipeline.Run(jc)
}

func TestCollect_TeaserOnlyGoesStraightToQuestionnaire(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.runDelivery(t))

	job, err := f.jobs.GetByID(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusPublicDataCollected, job.Status)
	require.True(t, job.PublicDataCollected)
	require.NotNil(t, job.DataCollectedAt)
	require.Equal(t, 20, job.Progress)

	require.Len(t, f.bus.emitted, 1)
	require.Equal(t, events.EventQuestionnaireRequested, f.bus.emitted[0].EventName())
}

func TestCollect_DocumentDependentJobAwaitsUploads(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.runDelivery(t))

	job, err := f.jobs.GetByID(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusAwaitingUploads, job.Status)

	require.Len(t, f.bus.emitted, 1)
	require.Equal(t, events.EventUploadsRequired, f.bus.emitted[0].EventName())
}

func TestCollect_StoresBothCacheEntries(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.runDelivery(t))

	entries, err := f.cache.ListByJob(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	bySource := map[string]*types.CachedDataEntry{}
	for _, e := range entries {
		bySource[e.Source] = e
	}
	require.Contains(t, string(bySource[types.DataSourceRegistry].Payload), "Aurora GmbH")
	require.Contains(t, string(bySource[types.DataSourceWebSearch].Payload), "Market overview")
}

func TestCollect_SourceFailureSkipsEntryAndContinues(t *testing.T) {
	f := newFixture(t, false)
	f.registry.err = fmt.Errorf("registry timeout")

	require.NoError(t, f.runDelivery(t))

	// Only the surviving source leaves a row behind.
	entries, err := f.cache.ListByJob(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, types.DataSourceWebSearch, entries[0].Source)

	// The workflow still advances on partial data.
	job, err := f.jobs.GetByID(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.True(t, job.PublicDataCollected)
	require.Len(t, f.bus.emitted, 1)
}

func TestCollect_UnknownCompanyFailsDelivery(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.db.Where("id = ?", f.company.ID).Delete(&types.Company{}).Error)

	err := f.runDelivery(t)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}
