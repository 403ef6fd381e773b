package cancel_job

import (
	"context"
	"fmt"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/jobs/orchestrator"
	jobrt "github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// Run applies a cancellation. The terminal guard does the heavy lifting: a
// job that already completed or failed is left exactly as it was, and any
// in-flight phase handler will see its next guarded write rejected.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	payload, err := jc.DecodePayload()
	if err != nil {
		return err
	}
	cancel, ok := payload.(*events.JobCancel)
	if !ok {
		return fmt.Errorf("unexpected payload %T", payload)
	}

	job, err := jc.Job()
	if err != nil {
		return err
	}
	if types.IsTerminalStatus(job.Status) {
		jc.Log.Info("Job already terminal, cancel is a no-op", "job_id", job.ID, "status", job.Status)
		return nil
	}

	return jc.Step("mark_cancelled", nil, func(ctx context.Context) (any, error) {
		outcome, err := orchestrator.Next(job.Status, orchestrator.TriggerCancel, job)
		if err != nil {
			return nil, err
		}
		updated, err := jc.UpdateJob(map[string]interface{}{
			"status":       outcome.To,
			"current_step": "cancelled",
			"error":        cancel.Reason,
			"cancelled_at": jc.Now(),
		})
		if err != nil {
			return nil, err
		}
		if updated {
			jc.Log.Info("Job cancelled", "job_id", job.ID, "reason", cancel.Reason)
		}
		return nil, nil
	})
}
