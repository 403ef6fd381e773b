package generate_artifact

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
	"github.com/dealforge/dealforge-backend/internal/services"
	"github.com/dealforge/dealforge-backend/internal/types"
)

type fakeAI struct {
	generations int
}

func (f *fakeAI) ExtractFinancials(ctx context.Context, fileName, mimeType string, data []byte) (*services.ExtractionResult, error) {
	return nil, fmt.Errorf("not used")
}

func (f *fakeAI) ProposeQuestions(ctx context.Context, companyContext string) ([]services.ProposedQuestion, error) {
	return nil, fmt.Errorf("not used")
}

func (f *fakeAI) GenerateArtifactContent(ctx context.Context, artifactType types.ArtifactType, bundle json.RawMessage) (*services.ArtifactContent, error) {
	f.generations++
	return &services.ArtifactContent{
		Title:    "Project Aurora " + string(artifactType),
		Sections: json.RawMessage(`[{"heading":"Overview","body":"..."}]`),
	}, nil
}

type fakePresentation struct {
	fail  bool
	calls int
}

func (f *fakePresentation) CreatePresentation(ctx context.Context, artifactType types.ArtifactType, title string, sections json.RawMessage) (*services.PresentationResult, error) {
	f.calls++
	if f.fail {
		return nil, fmt.Errorf("render service unavailable")
	}
	return &services.PresentationResult{
		PresentationID: "pres-" + string(artifactType),
		ViewURL:        "https://decks.example.com/" + string(artifactType),
		EditURL:        "https://decks.example.com/" + string(artifactType) + "/edit",
	}, nil
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
	ai       *fakeAI
	renderer *fakePresentation
	pipeline *Pipeline
	jobs     repos.GenerationJobRepo
	assets   repos.GeneratedAssetRepo
	job      *types.GenerationJob
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
		ai:       &fakeAI{},
		renderer: &fakePresentation{},
		jobs:     repos.NewGenerationJobRepo(gdb, log),
		assets:   repos.NewGeneratedAssetRepo(gdb, log),
	}

	f.job, err = f.jobs.Create(context.Background(), nil, &types.GenerationJob{
		CompanyID:       uuid.New(),
		OrganizationID:  uuid.New(),
		CreatedByUserID: uuid.New(),
		RequestTeaser:   true,
		RequestIM:       requestIM,
		Status:          types.StatusConsolidating,
		Metadata:        datatypes.JSON(`{"company":{"name":"Aurora GmbH"}}`),
	})
	require.NoError(t, err)

	f.pipeline = New(gdb, log, f.assets, f.ai, f.renderer)
	return f
}

func (f *fixture) runGenerate(t *testing.T, artifact types.ArtifactType) error {
	t.Helper()
	payload, err := json.Marshal(events.ArtifactGenerate{JobID: f.job.ID, ArtifactType: artifact})
	require.NoError(t, err)

	delivery := &types.EventDelivery{
		ID:        uuid.New(),
		EventID:   uuid.New(),
		EventName: events.EventArtifactGenerate,
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

func (f *fixture) reload(t *testing.T) *types.GenerationJob {
	t.Helper()
	job, err := f.jobs.GetByID(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func TestGenerateArtifact_SingleArtifactCompletesJob(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.runGenerate(t, types.ArtifactTeaser))

	job := f.reload(t)
	require.Equal(t, types.StatusCompleted, job.Status)
	require.Equal(t, 100, job.Progress)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.TeaserAssetID)

	asset, err := f.assets.GetByJobArtifact(context.Background(), nil, f.job.ID, types.ArtifactTeaser)
	require.NoError(t, err)
	require.NotNil(t, asset)
	require.Equal(t, "pres-teaser", asset.PresentationID)

	require.Len(t, f.bus.emitted, 1)
	done, ok := f.bus.emitted[0].(events.GenerationCompleted)
	require.True(t, ok)
	require.Equal(t, *job.TeaserAssetID, done.AssetIDs[string(types.ArtifactTeaser)])
}

func TestGenerateArtifact_CompletionWaitsForAllArtifacts(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.runGenerate(t, types.ArtifactTeaser))

	job := f.reload(t)
	require.Equal(t, types.StatusGeneratingTeaser, job.Status)
	require.NotNil(t, job.TeaserAssetID)
	require.Nil(t, job.IMAssetID)
	require.Empty(t, f.bus.emitted, "completion must wait for the second artifact")

	require.NoError(t, f.runGenerate(t, types.ArtifactIM))

	job = f.reload(t)
	require.Equal(t, types.StatusCompleted, job.Status)
	require.NotNil(t, job.IMAssetID)
	require.Len(t, f.bus.emitted, 1)
	done := f.bus.emitted[0].(events.GenerationCompleted)
	require.Len(t, done.AssetIDs, 2)
}

func TestGenerateArtifact_DuplicateDeliveryKeepsOneAsset(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.runGenerate(t, types.ArtifactTeaser))
	firstID := f.reload(t).TeaserAssetID
	require.NotNil(t, firstID)

	// A second delivery of the same event replaces the asset in place and
	// must not complete the job early or add a second link.
	require.NoError(t, f.runGenerate(t, types.ArtifactTeaser))

	job := f.reload(t)
	require.Equal(t, types.StatusGeneratingTeaser, job.Status)
	require.Equal(t, *firstID, *job.TeaserAssetID)

	all, err := f.assets.ListByJob(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Empty(t, f.bus.emitted)
}

func TestGenerateArtifact_RedeliveryAfterCompletionIsIgnored(t *testing.T) {
	f := newFixture(t, false)

	require.NoError(t, f.runGenerate(t, types.ArtifactTeaser))
	require.Equal(t, types.StatusCompleted, f.reload(t).Status)
	require.Len(t, f.bus.emitted, 1)

	require.NoError(t, f.runGenerate(t, types.ArtifactTeaser))

	// Completed stays completed; nothing is regenerated or re-announced.
	require.Equal(t, types.StatusCompleted, f.reload(t).Status)
	require.Equal(t, 1, f.ai.generations)
	require.Len(t, f.bus.emitted, 1)
}

func TestGenerateArtifact_RenderFailureDegradesToContentOnly(t *testing.T) {
	f := newFixture(t, false)
	f.renderer.fail = true

	require.NoError(t, f.runGenerate(t, types.ArtifactTeaser))

	asset, err := f.assets.GetByJobArtifact(context.Background(), nil, f.job.ID, types.ArtifactTeaser)
	require.NoError(t, err)
	require.NotNil(t, asset)
	require.Empty(t, asset.ViewURL)
	require.NotEmpty(t, asset.Content)

	// The job still completes; rendering is not on the critical path.
	require.Equal(t, types.StatusCompleted, f.reload(t).Status)
}

func TestGenerateArtifact_RejectsUnrequestedArtifact(t *testing.T) {
	f := newFixture(t, false)

	err := f.runGenerate(t, types.ArtifactPitchDeck)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not requested")
	require.Zero(t, f.ai.generations)
}

func TestGenerateArtifact_RequiresConsolidatedBundle(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.db.Model(&types.GenerationJob{}).
		Where("id = ?", f.job.ID).
		Update("metadata", nil).Error)

	err := f.runGenerate(t, types.ArtifactTeaser)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no consolidated bundle")
}

func TestGenerateArtifact_TerminalJobIsSkipped(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.jobs.UpdateFieldsUnlessStatus(context.Background(), nil, f.job.ID, nil, map[string]interface{}{
		"status": types.StatusCancelled,
	})
	require.NoError(t, err)

	require.NoError(t, f.runGenerate(t, types.ArtifactTeaser))
	require.Zero(t, f.ai.generations)
	require.Empty(t, f.bus.emitted)
}
