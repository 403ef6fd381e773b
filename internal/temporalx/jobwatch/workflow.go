package jobwatch

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/workflow"
)

// Workflow is the durable watchdog for one generation job. The actual phase
// work runs on the event workers; this loop only observes the job row, parks
// cheaply while the job waits on the user, and nags the workers when a job
// looks stalled. One workflow per job, workflow ID derived from the job ID.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimPrefix(workflow.GetInfo(ctx).WorkflowExecution.ID, "genjob:")
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("jobwatch: missing job_id")
	}

	const (
		activePollInterval  = 15 * time.Second
		waitingPollInterval = 10 * time.Minute
		continueTickLimit   = 2000
		continueHistory     = 15000
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
	})

	resumeCh := workflow.GetSignalChannel(ctx, SignalResume)
	ticks := 0

	for {
		ticks++
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, jobID).Get(ctx, &out); err != nil {
			return err
		}

		switch out.Status {
		case "completed", "cancelled":
			return nil
		case "failed":
			return fmt.Errorf("generation job failed (progress=%d)", out.Progress)
		}

		if out.Waiting {
			waitForResumeOrTimeout(ctx, resumeCh, waitingPollInterval)
		} else if err := workflow.Sleep(ctx, activePollInterval); err != nil {
			return err
		}

		if shouldContinueAsNew(ctx, ticks, continueTickLimit, continueHistory) {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
	}
}

func waitForResumeOrTimeout(ctx workflow.Context, ch workflow.ReceiveChannel, maxWait time.Duration) {
	timer := workflow.NewTimer(ctx, maxWait)
	sel := workflow.NewSelector(ctx)
	sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
		var v any
		c.Receive(ctx, &v)
	})
	sel.AddFuture(timer, func(f workflow.Future) {})
	sel.Select(ctx)
}

func shouldContinueAsNew(ctx workflow.Context, ticks, maxTicks, maxHistory int) bool {
	if maxTicks > 0 && ticks >= maxTicks {
		return true
	}
	info := workflow.GetInfo(ctx)
	if info == nil || maxHistory <= 0 {
		return false
	}
	return info.GetCurrentHistoryLength() >= maxHistory
}
