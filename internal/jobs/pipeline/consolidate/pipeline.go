package consolidate

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/jobs/orchestrator"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// bundle is the consolidated snapshot handed to artifact generation. It is
// persisted on the job row so every generation run works off the same frozen
// input regardless of later table changes.
type bundle struct {
	Company    *companySection    `json:"company,omitempty"`
	PublicData map[string]any     `json:"public_data,omitempty"`
	Financials []financialSection `json:"financials,omitempty"`
	Answers    []answerSection    `json:"answers,omitempty"`
}

type companySection struct {
	Name          string `json:"name"`
	Industry      string `json:"industry,omitempty"`
	Description   string `json:"description,omitempty"`
	Website       string `json:"website,omitempty"`
	FoundedYear   int    `json:"founded_year,omitempty"`
	EmployeeCount int    `json:"employee_count,omitempty"`
}

type financialSection struct {
	DocumentID string          `json:"document_id"`
	Confidence float64         `json:"confidence"`
	Fields     json.RawMessage `json:"fields,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type answerSection struct {
	Question string `json:"question"`
	Category string `json:"category"`
	Answer   string `json:"answer"`
	Required bool   `json:"required"`
}

// Run freezes all collected inputs into the job's metadata bundle, then fans
// out one generate event per requested artifact.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if _, err := jc.DecodePayload(); err != nil {
		return err
	}

	job, err := jc.Job()
	if err != nil {
		return err
	}
	if types.IsTerminalStatus(job.Status) {
		jc.Log.Info("Job terminal, skipping consolidation", "job_id", job.ID, "status", job.Status)
		return nil
	}

	jc.Progress(70, "consolidating")

	if err := jc.Step("build_bundle", nil, func(ctx context.Context) (any, error) {
		b, err := p.buildBundle(ctx, jc, job)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode bundle: %w", err)
		}
		_, err = jc.UpdateJob(map[string]interface{}{
			"metadata":          datatypes.JSON(raw),
			"data_consolidated": true,
			"consolidated_at":   jc.Now(),
		})
		return nil, err
	}); err != nil {
		return err
	}

	artifacts := job.RequestedArtifacts()
	if len(artifacts) == 0 {
		return fmt.Errorf("job %s has no requested artifacts", job.ID)
	}
	if _, err := orchestrator.Next(types.StatusConsolidating, orchestrator.TriggerConsolidated, job); err != nil {
		return err
	}
	for _, artifact := range artifacts {
		artifact := artifact
		if err := jc.Step("dispatch_"+string(artifact), nil, func(ctx context.Context) (any, error) {
			return nil, jc.Emit(events.ArtifactGenerate{JobID: job.ID, ArtifactType: artifact})
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) buildBundle(ctx context.Context, jc *jobrt.Context, job *types.GenerationJob) (*bundle, error) {
	b := &bundle{}

	company, err := p.companies.GetByID(ctx, nil, job.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("load company: %w", err)
	}
	if company != nil {
		b.Company = &companySection{
			Name:          company.Name,
			Industry:      company.Industry,
			Description:   company.Description,
			Website:       company.Website,
			FoundedYear:   company.FoundedYear,
			EmployeeCount: company.EmployeeCount,
		}
	}

	entries, err := p.cache.ListByJob(ctx, nil, job.ID)
	if err != nil {
		return nil, fmt.Errorf("list cached data: %w", err)
	}
	for _, e := range entries {
		if len(e.Payload) == 0 {
			continue
		}
		if b.PublicData == nil {
			b.PublicData = map[string]any{}
		}
		b.PublicData[e.Source+"."+e.DataType] = json.RawMessage(e.Payload)
	}

	records, err := p.extractions.ListByJob(ctx, nil, job.ID)
	if err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	for _, rec := range records {
		// Failure records ride along with confidence 0 and the error; the
		// bundle carries every persisted row, generation decides what to use.
		b.Financials = append(b.Financials, financialSection{
			DocumentID: rec.DocumentID.String(),
			Confidence: rec.Confidence,
			Fields:     json.RawMessage(rec.Fields),
			Error:      rec.Error,
		})
	}

	questions, err := p.questionnaire.ListByJob(ctx, nil, job.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	for _, q := range questions {
		b.Answers = append(b.Answers, answerSection{
			Question: q.QuestionText,
			Category: q.Category,
			Answer:   q.Answer,
			Required: q.Required,
		})
	}
	return b, nil
}
