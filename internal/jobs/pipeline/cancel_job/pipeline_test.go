package cancel_job

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

func runCancel(t *testing.T, startStatus, reason string) *types.GenerationJob {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))

	log, err := logger.New("production")
	require.NoError(t, err)

	jobs := repos.NewGenerationJobRepo(gdb, log)
	job, err := jobs.Create(context.Background(), nil, &types.GenerationJob{
		CompanyID:       uuid.New(),
		OrganizationID:  uuid.New(),
		CreatedByUserID: uuid.New(),
		RequestTeaser:   true,
		Status:          startStatus,
	})
	require.NoError(t, err)

	payload, err := json.Marshal(events.JobCancel{JobID: job.ID, Reason: reason})
	require.NoError(t, err)
	delivery := &types.EventDelivery{
		ID:        uuid.New(),
		EventID:   uuid.New(),
		EventName: events.EventJobCancel,
		JobID:     job.ID,
		Payload:   datatypes.JSON(payload),
		Status:    types.DeliveryRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, gdb.Create(delivery).Error)

	jc := jobrt.NewContext(
		context.Background(),
		gdb,
		log,
		delivery,
		jobs,
		repos.NewStepRunRepo(gdb, log),
		repos.NewEventRepo(gdb, log),
		nil,
	)
	require.NoError(t, New(gdb, log).Run(jc))

	loaded, err := jobs.GetByID(context.Background(), nil, job.ID)
	require.NoError(t, err)
	return loaded
}

func TestCancel_MarksJobCancelled(t *testing.T) {
	job := runCancel(t, types.StatusQuestionnairePending, "deal fell through")

	require.Equal(t, types.StatusCancelled, job.Status)
	require.Equal(t, "cancelled", job.CurrentStep)
	require.Equal(t, "deal fell through", job.Error)
	require.NotNil(t, job.CancelledAt)
}

func TestCancel_CompletedJobIsLeftAlone(t *testing.T) {
	job := runCancel(t, types.StatusCompleted, "too late")

	require.Equal(t, types.StatusCompleted, job.Status)
	require.Empty(t, job.Error)
	require.Nil(t, job.CancelledAt)
}
