package jobwatch

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dealforge/dealforge-backend/internal/db"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/types"
)

type fakeWaker struct {
	wakes int
}

func (f *fakeWaker) Wake(ctx context.Context) error {
	f.wakes++
	return nil
}

func (f *fakeWaker) Watch(ctx context.Context, onWake func()) error { return nil }
func (f *fakeWaker) Close() error                                   { return nil }

type fixture struct {
	db    *gorm.DB
	jobs  repos.GenerationJobRepo
	waker *fakeWaker
	acts  *Activities
}

func newFixture(t *testing.T) *fixture {
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
		db:    gdb,
		jobs:  repos.NewGenerationJobRepo(gdb, log),
		waker: &fakeWaker{},
	}
	f.acts = &Activities{Log: log, DB: gdb, Jobs: f.jobs, Waker: f.waker}
	return f
}

func (f *fixture) createJob(t *testing.T, status string, updatedAt time.Time) *types.GenerationJob {
	t.Helper()
	job, err := f.jobs.Create(context.Background(), nil, &types.GenerationJob{
		CompanyID:       uuid.New(),
		OrganizationID:  uuid.New(),
		CreatedByUserID: uuid.New(),
		RequestTeaser:   true,
		Status:          status,
	})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&types.GenerationJob{}).
		Where("id = ?", job.ID).
		Update("updated_at", updatedAt).Error)
	return job
}

func (f *fixture) tick(t *testing.T, jobID string) (TickResult, error) {
	t.Helper()
	env := (&testsuite.WorkflowTestSuite{}).NewTestActivityEnvironment()
	env.RegisterActivity(f.acts.Tick)

	val, err := env.ExecuteActivity(f.acts.Tick, jobID)
	if err != nil {
		return TickResult{}, err
	}
	var res TickResult
	require.NoError(t, val.Get(&res))
	return res, nil
}

func TestTick_WaitingStatusesReported(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, types.StatusQuestionnairePending, time.Now().Add(-time.Hour))

	res, err := f.tick(t, job.ID.String())
	require.NoError(t, err)
	require.True(t, res.Waiting)
	require.False(t, res.Stalled, "waiting on the user is not a stall")
	require.Zero(t, f.waker.wakes)
}

func TestTick_StalledActiveJobWakesWorkers(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, types.StatusConsolidating, time.Now().Add(-time.Hour))

	res, err := f.tick(t, job.ID.String())
	require.NoError(t, err)
	require.True(t, res.Stalled)
	require.Equal(t, 1, f.waker.wakes)

	// The job row itself is never touched by the watchdog.
	loaded, err := f.jobs.GetByID(context.Background(), nil, job.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusConsolidating, loaded.Status)
}

func TestTick_FreshActiveJobIsQuiet(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, types.StatusConsolidating, time.Now())

	res, err := f.tick(t, job.ID.String())
	require.NoError(t, err)
	require.False(t, res.Stalled)
	require.Zero(t, f.waker.wakes)
}

func TestTick_TerminalJobStopsTheWatch(t *testing.T) {
	f := newFixture(t)
	job := f.createJob(t, types.StatusCompleted, time.Now().Add(-time.Hour))

	res, err := f.tick(t, job.ID.String())
	require.NoError(t, err)
	require.Equal(t, types.StatusCompleted, res.Status)
	require.False(t, res.Stalled)
	require.Zero(t, f.waker.wakes)
}

func TestTick_RejectsBadJobID(t *testing.T) {
	f := newFixture(t)
	_, err := f.tick(t, "not-a-uuid")
	require.Error(t, err)
}
