package questionnaire_complete

import (
	"context"
	"fmt"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/jobs/orchestrator"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// Run seals the questionnaire phase. Completeness is re-verified here rather
// than trusted from the API: the event may be replayed or raced against a
// cancellation.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if _, err := jc.DecodePayload(); err != nil {
		return err
	}

	job, err := jc.Job()
	if err != nil {
		return err
	}
	if types.IsTerminalStatus(job.Status) {
		jc.Log.Info("Job terminal, skipping questionnaire completion", "job_id", job.ID, "status", job.Status)
		return nil
	}

	completeness, err := p.questionnaire.Completeness(jc.Ctx, nil, job.ID)
	if err != nil {
		return fmt.Errorf("questionnaire completeness: %w", err)
	}
	if !completeness.Complete() {
		return fmt.Errorf("questionnaire incomplete: %d of %d required answered",
			completeness.Answered, completeness.Required)
	}

	return jc.Step("mark_completed", nil, func(ctx context.Context) (any, error) {
		outcome, err := orchestrator.Next(job.Status, orchestrator.TriggerQuestionnaireDone, job)
		if err != nil {
			return nil, err
		}
		if _, err := jc.UpdateJob(map[string]interface{}{
			"status":                     outcome.To,
			"questionnaire_completed":    true,
			"questionnaire_completed_at": jc.Now(),
		}); err != nil {
			return nil, err
		}
		return nil, jc.Emit(events.ConsolidationRequested{JobID: job.ID})
	})
}
