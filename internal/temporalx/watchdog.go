package temporalx

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/services"
	"github.com/dealforge/dealforge-backend/internal/temporalx/jobwatch"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// Watchdog implements services.JobWatchdog on a Temporal client: one
// generation_job_watch workflow per job, addressed by the job's ID.
type Watchdog struct {
	log *logger.Logger
	tc  temporalsdkclient.Client
	cfg Config
}

func NewWatchdog(log *logger.Logger, tc temporalsdkclient.Client) (services.JobWatchdog, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	return &Watchdog{
		log: log.With("component", "JobWatchdog"),
		tc:  tc,
		cfg: LoadConfig(),
	}, nil
}

func (w *Watchdog) StartWatch(ctx context.Context, job *types.GenerationJob) error {
	if job == nil || job.ID == uuid.Nil {
		return fmt.Errorf("job required")
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    jobwatch.WorkflowID(job.ID.String()),
		TaskQueue:             w.cfg.TaskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
	}
	_, err := w.tc.ExecuteWorkflow(ctx, opts, jobwatch.WorkflowName)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil
		}
		return fmt.Errorf("start watch for %s: %w", job.ID, err)
	}
	w.log.Info("Job watch started", "job_id", job.ID)
	return nil
}

func (w *Watchdog) SignalResume(ctx context.Context, jobID uuid.UUID, reason string) error {
	err := w.tc.SignalWorkflow(ctx, jobwatch.WorkflowID(jobID.String()), "", jobwatch.SignalResume, reason)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			// Watch may have already completed or was never started; the
			// durable queue does not depend on it.
			return nil
		}
		return fmt.Errorf("signal resume for %s: %w", jobID, err)
	}
	return nil
}

func (w *Watchdog) CancelWatch(ctx context.Context, jobID uuid.UUID) error {
	err := w.tc.CancelWorkflow(ctx, jobwatch.WorkflowID(jobID.String()), "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("cancel watch for %s: %w", jobID, err)
	}
	return nil
}
