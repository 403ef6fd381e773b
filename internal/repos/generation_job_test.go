package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dealforge/dealforge-backend/internal/types"
)

func newJob(t *testing.T, repo GenerationJobRepo, status string) *types.GenerationJob {
	t.Helper()
	job, err := repo.Create(context.Background(), nil, &types.GenerationJob{
		CompanyID:       uuid.New(),
		OrganizationID:  uuid.New(),
		CreatedByUserID: uuid.New(),
		RequestTeaser:   true,
		Status:          status,
	})
	require.NoError(t, err)
	return job
}

func TestGenerationJobRepo_CreateAssignsID(t *testing.T) {
	repo := NewGenerationJobRepo(testDB(t), testLogger(t))
	job := newJob(t, repo, types.StatusCollectingData)
	require.NotEqual(t, uuid.Nil, job.ID)
	require.False(t, job.CreatedAt.IsZero())

	loaded, err := repo.GetByID(context.Background(), nil, job.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, types.StatusCollectingData, loaded.Status)
}

func TestGenerationJobRepo_GetByIDUnknownReturnsNil(t *testing.T) {
	repo := NewGenerationJobRepo(testDB(t), testLogger(t))
	loaded, err := repo.GetByID(context.Background(), nil, uuid.New())
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestGenerationJobRepo_GuardedUpdateRejectsTerminal(t *testing.T) {
	repo := NewGenerationJobRepo(testDB(t), testLogger(t))
	ctx := context.Background()

	job := newJob(t, repo, types.StatusCancelled)
	ok, err := repo.UpdateFieldsUnlessStatus(ctx, nil, job.ID, types.TerminalStatuses(), map[string]interface{}{
		"status": types.StatusFailed,
	})
	require.NoError(t, err)
	require.False(t, ok, "terminal job must not be overwritten")

	loaded, err := repo.GetByID(ctx, nil, job.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusCancelled, loaded.Status)
}

func TestGenerationJobRepo_GuardedUpdateAppliesFields(t *testing.T) {
	repo := NewGenerationJobRepo(testDB(t), testLogger(t))
	ctx := context.Background()

	job := newJob(t, repo, types.StatusConsolidating)
	ok, err := repo.UpdateFieldsUnlessStatus(ctx, nil, job.ID, types.TerminalStatuses(), map[string]interface{}{
		"status":       types.StatusGeneratingTeaser,
		"current_step": "generating_teaser",
	})
	require.NoError(t, err)
	require.True(t, ok)

	loaded, err := repo.GetByID(ctx, nil, job.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusGeneratingTeaser, loaded.Status)
	require.Equal(t, "generating_teaser", loaded.CurrentStep)
}

func TestGenerationJobRepo_SetProgressIsMonotonic(t *testing.T) {
	repo := NewGenerationJobRepo(testDB(t), testLogger(t))
	ctx := context.Background()

	job := newJob(t, repo, types.StatusCollectingData)

	ok, err := repo.SetProgress(ctx, nil, job.ID, 50, "halfway")
	require.NoError(t, err)
	require.True(t, ok)

	// A lower checkpoint from a replayed handler must not move progress back.
	ok, err = repo.SetProgress(ctx, nil, job.ID, 20, "replayed")
	require.NoError(t, err)
	require.True(t, ok)

	loaded, err := repo.GetByID(ctx, nil, job.ID)
	require.NoError(t, err)
	require.Equal(t, 50, loaded.Progress)
	require.Equal(t, "replayed", loaded.CurrentStep)

	ok, err = repo.SetProgress(ctx, nil, job.ID, 75, "onward")
	require.NoError(t, err)
	require.True(t, ok)

	loaded, err = repo.GetByID(ctx, nil, job.ID)
	require.NoError(t, err)
	require.Equal(t, 75, loaded.Progress)
}

func TestGenerationJobRepo_SetProgressRejectedOnTerminal(t *testing.T) {
	repo := NewGenerationJobRepo(testDB(t), testLogger(t))
	job := newJob(t, repo, types.StatusCompleted)

	ok, err := repo.SetProgress(context.Background(), nil, job.ID, 10, "late")
	require.NoError(t, err)
	require.False(t, ok)
}
