package process_uploads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
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

type fakeStore struct {
	files map[string][]byte
}

func (f *fakeStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := f.ReadAll(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (f *fakeStore) ReadAll(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

type fakeAI struct {
	extractions int
	failFiles   map[string]bool
}

func (f *fakeAI) ExtractFinancials(ctx context.Context, fileName, mimeType string, data []byte) (*services.ExtractionResult, error) {
	f.extractions++
	if f.failFiles[fileName] {
		return nil, fmt.Errorf("model rejected %s", fileName)
	}
	revenue := 1_200_000.0
	return &services.ExtractionResult{
		Fields:     types.FinancialFields{Revenue: &revenue, Currency: "EUR", FiscalYear: 2025},
		Confidence: 0.9,
	}, nil
}

func (f *fakeAI) ProposeQuestions(ctx context.Context, companyContext string) ([]services.ProposedQuestion, error) {
	return nil, nil
}

func (f *fakeAI) GenerateArtifactContent(ctx context.Context, artifactType types.ArtifactType, bundle json.RawMessage) (*services.ArtifactContent, error) {
	return nil, fmt.Errorf("not used")
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
	db          *gorm.DB
	log         *logger.Logger
	bus         *recordingBus
	store       *fakeStore
	ai          *fakeAI
	pipeline    *Pipeline
	jobs        repos.GenerationJobRepo
	extractions repos.ExtractedFinancialRepo
	job         *types.GenerationJob
	docs        []*types.CompanyDocument
	delivery    *types.EventDelivery
}

func newFixture(t *testing.T, fileNames []string, failing map[string]bool) *fixture {
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
		db:          gdb,
		log:         log,
		bus:         &recordingBus{},
		store:       &fakeStore{files: map[string][]byte{}},
		ai:          &fakeAI{failFiles: failing},
		jobs:        repos.NewGenerationJobRepo(gdb, log),
		extractions: repos.NewExtractedFinancialRepo(gdb, log),
	}

	companyID := uuid.New()
	f.job, err = f.jobs.Create(context.Background(), nil, &types.GenerationJob{
		CompanyID:       companyID,
		OrganizationID:  uuid.New(),
		CreatedByUserID: uuid.New(),
		RequestIM:       true,
		Status:          types.StatusAwaitingUploads,
	})
	require.NoError(t, err)

	for i, name := range fileNames {
		doc := &types.CompanyDocument{
			ID:          uuid.New(),
			CompanyID:   companyID,
			FileName:    name,
			StoragePath: fmt.Sprintf("companies/%s/doc-%d.pdf", companyID, i),
			ContentType: "application/pdf",
			CreatedAt:   time.Now(),
		}
		require.NoError(t, gdb.Create(doc).Error)
		f.store.files[doc.StoragePath] = []byte("pdf bytes")
		f.docs = append(f.docs, doc)
	}

	f.pipeline = New(gdb, log, repos.NewCompanyDocumentRepo(gdb, log), f.extractions, f.store, f.ai)
	return f
}

// runDelivery runs the handler against one persistent delivery row. A second
// call reuses the same delivery, exactly like a retried handler invocation.
func (f *fixture) runDelivery(t *testing.T) error {
	t.Helper()
	if f.delivery == nil {
		docIDs := make([]uuid.UUID, 0, len(f.docs))
		for _, d := range f.docs {
			docIDs = append(docIDs, d.ID)
		}
		payload, err := json.Marshal(events.UploadsCompleted{JobID: f.job.ID, DocumentIDs: docIDs})
		require.NoError(t, err)

		f.delivery = &types.EventDelivery{
			ID:        uuid.New(),
			EventID:   uuid.New(),
			EventName: events.EventUploadsCompleted,
			JobID:     f.job.ID,
			Payload:   datatypes.JSON(payload),
			Status:    types.DeliveryRunning,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		require.NoError(t, f.db.Create(f.delivery).Error)
	}

	jc := jobrt.NewContext(
		context.Background(),
		f.db,
		f.log,
		f.delivery,
		f.jobs,
		repos.NewStepRunRepo(f.db, f.log),
		repos.NewEventRepo(f.db, f.log),
		f.bus,
	)
	return f.pipeline.Run(jc)
}

func TestProcessUploads_HappyPath(t *testing.T) {
	f := newFixture(t, []string{"annual_2024.pdf", "annual_2025.pdf"}, nil)

	require.NoError(t, f.runDelivery(t))

	records, err := f.extractions.ListByJob(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		require.Equal(t, 0.9, rec.Confidence)
		require.Empty(t, rec.Error)
	}

	job, err := f.jobs.GetByID(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusProcessingUploads, job.Status)
	require.True(t, job.DocumentsUploaded)
	require.NotNil(t, job.UploadsProcessedAt)
	require.Equal(t, 45, job.Progress)

	require.Len(t, f.bus.emitted, 1)
	require.Equal(t, events.EventQuestionnaireRequested, f.bus.emitted[0].EventName())
}

func TestProcessUploads_BadDocumentBecomesZeroConfidenceRecord(t *testing.T) {
	f := newFixture(t, []string{"good.pdf", "corrupt.pdf"}, map[string]bool{"corrupt.pdf": true})

	require.NoError(t, f.runDelivery(t))

	records, err := f.extractions.ListByJob(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byError := map[bool]int{}
	for _, rec := range records {
		byError[rec.Error != ""]++
		if rec.Error != "" {
			require.Zero(t, rec.Confidence)
		}
	}
	require.Equal(t, 1, byError[true])
	require.Equal(t, 1, byError[false])

	// The batch still completes and moves the workflow along.
	require.Len(t, f.bus.emitted, 1)
}

func TestProcessUploads_ReplaySkipsExtractedDocuments(t *testing.T) {
	f := newFixture(t, []string{"annual_2025.pdf"}, nil)

	require.NoError(t, f.runDelivery(t))
	require.Equal(t, 1, f.ai.extractions)

	// Re-running the same delivery must replay every step from the ledger:
	// no second extraction, no duplicate event.
	require.NoError(t, f.runDelivery(t))
	require.Equal(t, 1, f.ai.extractions)
	require.Len(t, f.bus.emitted, 1)
}

func TestProcessUploads_MissingDocumentsFailTheDelivery(t *testing.T) {
	f := newFixture(t, []string{"annual_2025.pdf"}, nil)
	require.NoError(t, f.db.Where("id = ?", f.docs[0].ID).Delete(&types.CompanyDocument{}).Error)

	err := f.runDelivery(t)
	require.Error(t, err)
}

func TestProcessUploads_TerminalJobIsSkipped(t *testing.T) {
	f := newFixture(t, []string{"annual_2025.pdf"}, nil)
	_, err := f.jobs.UpdateFieldsUnlessStatus(context.Background(), nil, f.job.ID, nil, map[string]interface{}{
		"status": types.StatusCancelled,
	})
	require.NoError(t, err)

	require.NoError(t, f.runDelivery(t))
	require.Zero(t, f.ai.extractions)
	require.Empty(t, f.bus.emitted)
}
