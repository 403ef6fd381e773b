package consolidate

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
	db            *gorm.DB
	log           *logger.Logger
	bus           *recordingBus
	pipeline      *Pipeline
	jobs          repos.GenerationJobRepo
	cache         repos.CachedDataRepo
	extractions   repos.ExtractedFinancialRepo
	questionnaire repos.QuestionnaireRepo
	job           *types.GenerationJob
	company       *types.Company
}

func newFixture(t *testing.T, requestPitchDeck bool) *fixture {
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
		db:            gdb,
		log:           log,
		bus:           &recordingBus{},
		jobs:          repos.NewGenerationJobRepo(gdb, log),
		cache:         repos.NewCachedDataRepo(gdb, log),
		extractions:   repos.NewExtractedFinancialRepo(gdb, log),
		questionnaire: repos.NewQuestionnaireRepo(gdb, log),
	}

	f.company = &types.Company{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Name:           "Aurora GmbH",
		Industry:       "Industrial automation",
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, gdb.Create(f.company).Error)

	f.job, err = f.jobs.Create(context.Background(), nil, &types.GenerationJob{
		CompanyID:        f.company.ID,
		OrganizationID:   f.company.OrganizationID,
		CreatedByUserID:  uuid.New(),
		RequestTeaser:    true,
		RequestPitchDeck: requestPitchDeck,
		Status:           types.StatusConsolidating,
	})
	require.NoError(t, err)

	f.pipeline = New(gdb, log, repos.NewCompanyRepo(gdb, log), f.cache, f.extractions, f.questionnaire)
	return f
}

func (f *fixture) runDelivery(t *testing.T) error {
	t.Helper()
	payload, err := json.Marshal(events.ConsolidationRequested{JobID: f.job.ID})
	require.NoError(t, err)

	delivery := &types.EventDelivery{
		ID:        uuid.New(),
		EventID:   uuid.New(),
		EventName: events.EventConsolidationRequested,
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

func (f *fixture) bundleFromJob(t *testing.T) map[string]json.RawMessage {
	t.Helper()
	job, err := f.jobs.GetByID(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, job.Metadata)

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(job.Metadata, &out))
	return out
}

func TestConsolidate_BundlesAllSources(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.cache.Upsert(ctx, nil, &types.CachedDataEntry{
		JobID:     f.job.ID,
		Source:    types.DataSourceRegistry,
		DataType:  types.DataTypeCompanyProfile,
		Payload:   datatypes.JSON(`{"legal_name":"Aurora GmbH"}`),
		FetchedAt: time.Now(),
	})
	require.NoError(t, err)

	_, err = f.extractions.Upsert(ctx, nil, &types.ExtractedFinancialRecord{
		JobID:      f.job.ID,
		DocumentID: uuid.New(),
		Fields:     datatypes.JSON(`{"revenue":1200000}`),
		Confidence: 0.9,
	})
	require.NoError(t, err)

	require.NoError(t, f.questionnaire.CreateQuestions(ctx, nil, []*types.QuestionnaireResponse{
		{JobID: f.job.ID, QuestionKey: "business_model", QuestionText: "How does the company make money?", Category: "business", Required: true, DisplayOrder: 1},
	}))
	_, err = f.questionnaire.SubmitAnswer(ctx, nil, f.job.ID, "business_model", "SaaS subscriptions")
	require.NoError(t, err)

	require.NoError(t, f.runDelivery(t))

	b := f.bundleFromJob(t)
	require.Contains(t, string(b["company"]), "Aurora GmbH")
	require.Contains(t, string(b["public_data"]), "legal_name")
	require.Contains(t, string(b["financials"]), "1200000")
	require.Contains(t, string(b["answers"]), "SaaS subscriptions")

	job, err := f.jobs.GetByID(context.Background(), nil, f.job.ID)
	require.NoError(t, err)
	require.True(t, job.DataConsolidated)
	require.NotNil(t, job.ConsolidatedAt)
	require.Equal(t, 70, job.Progress)
}

func TestConsolidate_DispatchesOneGeneratePerArtifact(t *testing.T) {
	f := newFixture(t, true)

	require.NoError(t, f.runDelivery(t))

	require.Len(t, f.bus.emitted, 2)
	seen := map[types.ArtifactType]bool{}
	for _, p := range f.bus.emitted {
		gen, ok := p.(events.ArtifactGenerate)
		require.True(t, ok)
		require.Equal(t, f.job.ID, gen.JobID)
		seen[gen.ArtifactType] = true
	}
	require.True(t, seen[types.ArtifactTeaser])
	require.True(t, seen[types.ArtifactPitchDeck])
}

func TestConsolidate_KeepsFailedExtractionsAndUnansweredQuestions(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	docID := uuid.New()
	_, err := f.extractions.Upsert(ctx, nil, &types.ExtractedFinancialRecord{
		JobID:      f.job.ID,
		DocumentID: docID,
		Confidence: 0,
		Error:      "model rejected the document",
	})
	require.NoError(t, err)

	require.NoError(t, f.questionnaire.CreateQuestions(ctx, nil, []*types.QuestionnaireResponse{
		{JobID: f.job.ID, QuestionKey: "reason_for_sale", QuestionText: "Why sell?", Category: "transaction", DisplayOrder: 1},
	}))

	require.NoError(t, f.runDelivery(t))

	// Every persisted row makes it into the bundle: the failed extraction
	// keeps its audit trail and the open question rides along unanswered.
	b := f.bundleFromJob(t)

	var financials []map[string]any
	require.NoError(t, json.Unmarshal(b["financials"], &financials))
	require.Len(t, financials, 1)
	require.Equal(t, docID.String(), financials[0]["document_id"])
	require.Equal(t, float64(0), financials[0]["confidence"])
	require.Equal(t, "model rejected the document", financials[0]["error"])

	var answers []map[string]any
	require.NoError(t, json.Unmarshal(b["answers"], &answers))
	require.Len(t, answers, 1)
	require.Equal(t, "Why sell?", answers[0]["question"])
	require.Equal(t, "", answers[0]["answer"])
}

func TestConsolidate_TerminalJobIsSkipped(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.jobs.UpdateFieldsUnlessStatus(context.Background(), nil, f.job.ID, nil, map[string]interface{}{
		"status": types.StatusFailed,
	})
	require.NoError(t, err)

	require.NoError(t, f.runDelivery(t))
	require.Empty(t, f.bus.emitted)
}
