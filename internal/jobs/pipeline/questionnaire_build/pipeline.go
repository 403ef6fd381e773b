package questionnaire_build

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/jobs/orchestrator"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/types"
)

//go:embed templates/base_questions.yaml
var baseQuestionsYAML []byte

type templateQuestion struct {
	Key      string `yaml:"key"`
	Text     string `yaml:"text"`
	Category string `yaml:"category"`
	Required bool   `yaml:"required"`
}

type questionTemplate struct {
	Questions []templateQuestion `yaml:"questions"`
}

const maxProposedQuestions = 5

// Run builds the job's questionnaire: the embedded base questions plus up to
// five AI-proposed, company-specific ones. The proposal call is best-effort;
// a model outage still yields a usable questionnaire.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	payload, err := jc.DecodePayload()
	if err != nil {
		return err
	}
	requested, ok := payload.(*events.QuestionnaireRequested)
	if !ok {
		return fmt.Errorf("unexpected payload %T", payload)
	}

	job, err := jc.Job()
	if err != nil {
		return err
	}
	if types.IsTerminalStatus(job.Status) {
		jc.Log.Info("Job terminal, skipping questionnaire build", "job_id", job.ID, "status", job.Status)
		return nil
	}

	jc.Progress(50, "building_questionnaire")

	var count int
	if err := jc.Step("create_questions", &count, func(ctx context.Context) (any, error) {
		rows, err := p.buildQuestions(ctx, jc, requested)
		if err != nil {
			return nil, err
		}
		if err := p.questionnaire.CreateQuestions(ctx, nil, rows); err != nil {
			return nil, fmt.Errorf("persist questions: %w", err)
		}
		return len(rows), nil
	}); err != nil {
		return err
	}

	if err := jc.Step("mark_ready", nil, func(ctx context.Context) (any, error) {
		outcome, err := orchestrator.Next(job.Status, orchestrator.TriggerQuestionnaireBuilt, job)
		if err != nil {
			return nil, err
		}
		if _, err := jc.UpdateJob(map[string]interface{}{
			"status":                 outcome.To,
			"questionnaire_ready_at": jc.Now(),
		}); err != nil {
			return nil, err
		}
		return nil, jc.Emit(events.QuestionnaireReady{JobID: job.ID, QuestionCount: count})
	}); err != nil {
		return err
	}
	jc.Progress(55, "questionnaire_ready")
	return nil
}

func (p *Pipeline) buildQuestions(ctx context.Context, jc *jobrt.Context, requested *events.QuestionnaireRequested) ([]*types.QuestionnaireResponse, error) {
	var tpl questionTemplate
	if err := yaml.Unmarshal(baseQuestionsYAML, &tpl); err != nil {
		return nil, fmt.Errorf("parse base questions: %w", err)
	}
	if len(tpl.Questions) == 0 {
		return nil, fmt.Errorf("base question template is empty")
	}

	rows := make([]*types.QuestionnaireResponse, 0, len(tpl.Questions)+maxProposedQuestions)
	seen := make(map[string]bool, len(tpl.Questions))
	order := 0
	for _, q := range tpl.Questions {
		order++
		seen[q.Key] = true
		rows = append(rows, &types.QuestionnaireResponse{
			JobID:        jc.JobID(),
			QuestionKey:  q.Key,
			QuestionText: q.Text,
			Category:     q.Category,
			Required:     q.Required,
			DisplayOrder: order,
		})
	}

	proposals, err := p.ai.ProposeQuestions(ctx, p.companyContext(ctx, jc, requested.CompanyID))
	if err != nil {
		jc.Log.Warn("Question proposals unavailable, using base questionnaire only",
			"job_id", jc.JobID(), "error", err)
		return rows, nil
	}
	for _, prop := range proposals {
		if len(rows) >= len(tpl.Questions)+maxProposedQuestions {
			break
		}
		if seen[prop.Key] {
			continue
		}
		order++
		seen[prop.Key] = true
		rows = append(rows, &types.QuestionnaireResponse{
			JobID:        jc.JobID(),
			QuestionKey:  prop.Key,
			QuestionText: prop.Text,
			Category:     prop.Category,
			Required:     false,
			DisplayOrder: order,
		})
	}
	return rows, nil
}

// companyContext assembles the prompt context from the company row and the
// cached public data. Missing pieces are simply omitted.
func (p *Pipeline) companyContext(ctx context.Context, jc *jobrt.Context, companyID uuid.UUID) string {
	var b strings.Builder

	if company, err := p.companies.GetByID(ctx, nil, companyID); err == nil && company != nil {
		fmt.Fprintf(&b, "Name: %s\n", company.Name)
		if company.Industry != "" {
			fmt.Fprintf(&b, "Industry: %s\n", company.Industry)
		}
		if company.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", company.Description)
		}
		if company.EmployeeCount > 0 {
			fmt.Fprintf(&b, "Employees: %d\n", company.EmployeeCount)
		}
	}

	if entries, err := p.cache.ListByJob(ctx, nil, jc.JobID()); err == nil {
		for _, e := range entries {
			payload := string(e.Payload)
			if payload == "" || payload == "null" {
				continue
			}
			if len(payload) > 4000 {
				payload = payload[:4000]
			}
			fmt.Fprintf(&b, "\n%s (%s):\n%s\n", e.Source, e.DataType, payload)
		}
	}
	return b.String()
}
