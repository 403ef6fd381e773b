package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/jobs/orchestrator"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// JobWatchdog is the durable-timer side of a job: a long-running watcher that
// nags on stalled jobs and can be resumed or cancelled from the API. The
// temporal package provides the production implementation.
type JobWatchdog interface {
	StartWatch(ctx context.Context, job *types.GenerationJob) error
	SignalResume(ctx context.Context, jobID uuid.UUID, reason string) error
	CancelWatch(ctx context.Context, jobID uuid.UUID) error
}

type CreateJobParams struct {
	CompanyID        uuid.UUID
	OrganizationID   uuid.UUID
	CreatedByUserID  uuid.UUID
	NotifyEmail      string
	RequestTeaser    bool
	RequestIM        bool
	RequestPitchDeck bool
}

type QuestionView struct {
	QuestionKey  string     `json:"question_key"`
	QuestionText string     `json:"question_text"`
	Category     string     `json:"category"`
	Required     bool       `json:"required"`
	DisplayOrder int        `json:"display_order"`
	Answer       string     `json:"answer,omitempty"`
	AnsweredAt   *time.Time `json:"answered_at,omitempty"`
}

type JobStatusView struct {
	Job           *types.GenerationJob   `json:"job"`
	Questionnaire *QuestionnaireSummary  `json:"questionnaire,omitempty"`
	Assets        []*types.GeneratedAsset `json:"assets,omitempty"`
}

type QuestionnaireSummary struct {
	Total     int64          `json:"total"`
	Required  int64          `json:"required"`
	Answered  int64          `json:"answered"`
	Complete  bool           `json:"complete"`
	Questions []QuestionView `json:"questions"`
}

// JobService is the API-facing surface of the workflow core. Every mutation
// here goes through the event bus or a guarded job-store write; the service
// never drives phase work directly.
type JobService interface {
	CreateJob(ctx context.Context, params CreateJobParams) (*types.GenerationJob, error)
	GetStatus(ctx context.Context, jobID uuid.UUID) (*JobStatusView, error)
	NotifyUploadsCompleted(ctx context.Context, jobID uuid.UUID, documentIDs []uuid.UUID) error
	SubmitAnswers(ctx context.Context, jobID uuid.UUID, answers map[string]string) (*QuestionnaireSummary, error)
	CompleteQuestionnaire(ctx context.Context, jobID uuid.UUID) error
	CancelJob(ctx context.Context, jobID uuid.UUID, reason string) error
}

type jobService struct {
	db            *gorm.DB
	log           *logger.Logger
	jobs          repos.GenerationJobRepo
	companies     repos.CompanyRepo
	questionnaire repos.QuestionnaireRepo
	assets        repos.GeneratedAssetRepo
	bus           events.Bus
	watchdog      JobWatchdog
}

func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobs repos.GenerationJobRepo,
	companies repos.CompanyRepo,
	questionnaire repos.QuestionnaireRepo,
	assets repos.GeneratedAssetRepo,
	bus events.Bus,
	watchdog JobWatchdog,
) JobService {
	return &jobService{
		db:            db,
		log:           baseLog.With("service", "JobService"),
		jobs:          jobs,
		companies:     companies,
		questionnaire: questionnaire,
		assets:        assets,
		bus:           bus,
		watchdog:      watchdog,
	}
}

func (s *jobService) CreateJob(ctx context.Context, params CreateJobParams) (*types.GenerationJob, error) {
	if !params.RequestTeaser && !params.RequestIM && !params.RequestPitchDeck {
		return nil, fmt.Errorf("at least one artifact must be requested")
	}
	company, err := s.companies.GetByID(ctx, nil, params.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("load company: %w", err)
	}
	if company == nil {
		return nil, fmt.Errorf("company %s not found", params.CompanyID)
	}
	if company.OrganizationID != params.OrganizationID {
		return nil, fmt.Errorf("company %s does not belong to organization %s", params.CompanyID, params.OrganizationID)
	}

	job := &types.GenerationJob{
		CompanyID:        params.CompanyID,
		OrganizationID:   params.OrganizationID,
		CreatedByUserID:  params.CreatedByUserID,
		NotifyEmail:      strings.TrimSpace(params.NotifyEmail),
		RequestTeaser:    params.RequestTeaser,
		RequestIM:        params.RequestIM,
		RequestPitchDeck: params.RequestPitchDeck,
		Status:           types.StatusCollectingData,
	}
	job, err = s.jobs.Create(ctx, nil, job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Info("Generation job created",
		"job_id", job.ID,
		"company_id", job.CompanyID,
		"artifacts", fmt.Sprintf("%v", job.RequestedArtifacts()),
	)

	if err := s.bus.Emit(ctx, events.JobCreated{
		JobID:          job.ID,
		CompanyID:      job.CompanyID,
		OrganizationID: job.OrganizationID,
	}); err != nil {
		return nil, fmt.Errorf("emit job created: %w", err)
	}

	if s.watchdog != nil {
		if err := s.watchdog.StartWatch(ctx, job); err != nil {
			// The watchdog only accelerates stall detection; the pipeline
			// itself runs off the durable queue.
			s.log.Warn("Watchdog start failed", "job_id", job.ID, "error", err)
		}
	}
	return job, nil
}

func (s *jobService) GetStatus(ctx context.Context, jobID uuid.UUID) (*JobStatusView, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &JobStatusView{Job: job}

	questions, err := s.questionnaire.ListByJob(ctx, nil, jobID)
	if err != nil {
		return nil, fmt.Errorf("list questionnaire: %w", err)
	}
	if len(questions) > 0 {
		completeness, err := s.questionnaire.Completeness(ctx, nil, jobID)
		if err != nil {
			return nil, fmt.Errorf("questionnaire completeness: %w", err)
		}
		summary := &QuestionnaireSummary{
			Total:    completeness.Total,
			Required: completeness.Required,
			Answered: completeness.Answered,
			Complete: completeness.Complete(),
		}
		for _, q := range questions {
			summary.Questions = append(summary.Questions, QuestionView{
				QuestionKey:  q.QuestionKey,
				QuestionText: q.QuestionText,
				Category:     q.Category,
				Required:     q.Required,
				DisplayOrder: q.DisplayOrder,
				Answer:       q.Answer,
				AnsweredAt:   q.AnsweredAt,
			})
		}
		view.Questionnaire = summary
	}

	assets, err := s.assets.ListByJob(ctx, nil, jobID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	view.Assets = assets
	return view, nil
}

func (s *jobService) NotifyUploadsCompleted(ctx context.Context, jobID uuid.UUID, documentIDs []uuid.UUID) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != types.StatusAwaitingUploads {
		return fmt.Errorf("job %s is %s, not awaiting uploads", jobID, job.Status)
	}
	if len(documentIDs) == 0 {
		return fmt.Errorf("at least one document required")
	}

	if err := s.bus.Emit(ctx, events.UploadsCompleted{JobID: jobID, DocumentIDs: documentIDs}); err != nil {
		return fmt.Errorf("emit uploads completed: %w", err)
	}
	s.resume(ctx, jobID, "uploads_completed")
	return nil
}

func (s *jobService) SubmitAnswers(ctx context.Context, jobID uuid.UUID, answers map[string]string) (*QuestionnaireSummary, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.StatusQuestionnairePending && job.Status != types.StatusQuestionnaireInProgress {
		return nil, fmt.Errorf("job %s is %s, questionnaire not open", jobID, job.Status)
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("no answers submitted")
	}

	for key, answer := range answers {
		ok, err := s.questionnaire.SubmitAnswer(ctx, nil, jobID, key, answer)
		if err != nil {
			return nil, fmt.Errorf("submit answer %q: %w", key, err)
		}
		if !ok {
			return nil, fmt.Errorf("unknown question %q", key)
		}
	}

	// First answer moves the job from pending to in-progress.
	if job.Status == types.StatusQuestionnairePending {
		outcome, err := orchestrator.Next(job.Status, orchestrator.TriggerAnswersStarted, job)
		if err == nil {
			if _, err := s.jobs.UpdateFieldsUnlessStatus(ctx, nil, jobID, types.TerminalStatuses(), map[string]interface{}{
				"status": outcome.To,
			}); err != nil {
				return nil, fmt.Errorf("mark questionnaire in progress: %w", err)
			}
		}
	}

	completeness, err := s.questionnaire.Completeness(ctx, nil, jobID)
	if err != nil {
		return nil, fmt.Errorf("questionnaire completeness: %w", err)
	}
	return &QuestionnaireSummary{
		Total:    completeness.Total,
		Required: completeness.Required,
		Answered: completeness.Answered,
		Complete: completeness.Complete(),
	}, nil
}

func (s *jobService) CompleteQuestionnaire(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != types.StatusQuestionnairePending && job.Status != types.StatusQuestionnaireInProgress {
		return fmt.Errorf("job %s is %s, questionnaire not open", jobID, job.Status)
	}

	completeness, err := s.questionnaire.Completeness(ctx, nil, jobID)
	if err != nil {
		return fmt.Errorf("questionnaire completeness: %w", err)
	}
	if !completeness.Complete() {
		return fmt.Errorf("questionnaire incomplete: %d of %d required questions answered",
			completeness.Answered, completeness.Required)
	}

	if err := s.bus.Emit(ctx, events.QuestionnaireCompleted{JobID: jobID}); err != nil {
		return fmt.Errorf("emit questionnaire completed: %w", err)
	}
	s.resume(ctx, jobID, "questionnaire_completed")
	return nil
}

func (s *jobService) CancelJob(ctx context.Context, jobID uuid.UUID, reason string) error {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if types.IsTerminalStatus(job.Status) {
		return fmt.Errorf("job %s already %s", jobID, job.Status)
	}

	if err := s.bus.Emit(ctx, events.JobCancel{JobID: jobID, Reason: reason}); err != nil {
		return fmt.Errorf("emit cancel: %w", err)
	}
	if s.watchdog != nil {
		if err := s.watchdog.CancelWatch(ctx, jobID); err != nil {
			s.log.Warn("Watchdog cancel failed", "job_id", jobID, "error", err)
		}
	}
	return nil
}

func (s *jobService) loadJob(ctx context.Context, jobID uuid.UUID) (*types.GenerationJob, error) {
	job, err := s.jobs.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return nil, fmt.Errorf("generation job %s not found", jobID)
	}
	return job, nil
}

func (s *jobService) resume(ctx context.Context, jobID uuid.UUID, reason string) {
	if s.watchdog == nil {
		return
	}
	if err := s.watchdog.SignalResume(ctx, jobID, reason); err != nil {
		s.log.Warn("Watchdog resume signal failed", "job_id", jobID, "reason", reason, "error", err)
	}
}
