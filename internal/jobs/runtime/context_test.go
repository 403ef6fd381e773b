package runtime

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dealforge/dealforge-backend/internal/db"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/types"
)

func testContext(t *testing.T) (*Context, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))

	log, err := logger.New("production")
	require.NoError(t, err)

	delivery := &types.EventDelivery{
		ID:        uuid.New(),
		EventID:   uuid.New(),
		EventName: "materials.job.created",
		JobID:     uuid.New(),
		Status:    types.DeliveryRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, gdb.Create(delivery).Error)

	jc := NewContext(
		context.Background(),
		gdb,
		log,
		delivery,
		repos.NewGenerationJobRepo(gdb, log),
		repos.NewStepRunRepo(gdb, log),
		repos.NewEventRepo(gdb, log),
		nil,
	)
	return jc, gdb
}

func seedJob(t *testing.T, jc *Context, gdb *gorm.DB, status string) {
	t.Helper()
	require.NoError(t, gdb.Create(&types.GenerationJob{
		ID:              jc.JobID(),
		CompanyID:       uuid.New(),
		OrganizationID:  uuid.New(),
		CreatedByUserID: uuid.New(),
		RequestTeaser:   true,
		Status:          status,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}).Error)
}

func TestStep_RunsOnceAndReplaysResult(t *testing.T) {
	jc, _ := testContext(t)

	type summary struct {
		RegistryOK bool `json:"registry_ok"`
	}

	calls := 0
	var first summary
	err := jc.Step("fetch_public_data", &first, func(ctx context.Context) (any, error) {
		calls++
		return summary{RegistryOK: true}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.True(t, first.RegistryOK)

	// A re-invoked handler runs the same step again; the ledger must hand
	// back the memoized result without calling fn.
	var replayed summary
	err = jc.Step("fetch_public_data", &replayed, func(ctx context.Context) (any, error) {
		calls++
		return summary{RegistryOK: false}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.True(t, replayed.RegistryOK)
}

func TestStep_FailedStepRunsAgain(t *testing.T) {
	jc, _ := testContext(t)

	calls := 0
	err := jc.Step("mark_collected", nil, func(ctx context.Context) (any, error) {
		calls++
		return nil, fmt.Errorf("transient db error")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "mark_collected")

	err = jc.Step("mark_collected", nil, func(ctx context.Context) (any, error) {
		calls++
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	// Now committed: a third invocation is a replay.
	err = jc.Step("mark_collected", nil, func(ctx context.Context) (any, error) {
		calls++
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestStep_DistinctNamesRunIndependently(t *testing.T) {
	jc, _ := testContext(t)

	ran := map[string]int{}
	for _, name := range []string{"extract_a", "extract_b"} {
		name := name
		err := jc.Step(name, nil, func(ctx context.Context) (any, error) {
			ran[name]++
			return nil, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 1, ran["extract_a"])
	require.Equal(t, 1, ran["extract_b"])
}

func TestStep_RequiresName(t *testing.T) {
	jc, _ := testContext(t)
	err := jc.Step("", nil, func(ctx context.Context) (any, error) { return nil, nil })
	require.Error(t, err)
}

func TestProgress_StopsOnTerminalJob(t *testing.T) {
	jc, gdb := testContext(t)
	seedJob(t, jc, gdb, types.StatusCancelled)

	require.False(t, jc.Progress(50, "late update"))
}

func TestFailJob_GuardedAgainstCancelled(t *testing.T) {
	jc, gdb := testContext(t)
	seedJob(t, jc, gdb, types.StatusCancelled)

	jc.FailJob("consolidate", fmt.Errorf("boom"))

	job, err := jc.Job()
	require.NoError(t, err)
	require.Equal(t, types.StatusCancelled, job.Status, "cancellation must win over a late failure")
}

func TestFailJob_MarksJobFailed(t *testing.T) {
	jc, gdb := testContext(t)
	seedJob(t, jc, gdb, types.StatusConsolidating)

	jc.FailJob("consolidate", fmt.Errorf("bundle build failed"))

	job, err := jc.Job()
	require.NoError(t, err)
	require.Equal(t, types.StatusFailed, job.Status)
	require.Equal(t, "consolidate", job.CurrentStep)
	require.Equal(t, "bundle build failed", job.Error)
}
