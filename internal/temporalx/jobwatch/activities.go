package jobwatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/platform/envutil"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/types"
)

type Activities struct {
	Log   *logger.Logger
	DB    *gorm.DB
	Jobs  repos.GenerationJobRepo
	Waker events.Waker
}

var waitingStatuses = map[string]bool{
	types.StatusAwaitingUploads:         true,
	types.StatusQuestionnairePending:    true,
	types.StatusQuestionnaireInProgress: true,
}

// Tick inspects the job row once. It never mutates job state: when an active
// job has not moved within the stall threshold it wakes the event workers,
// which re-scan for reclaimable deliveries, and leaves recovery to them.
func (a *Activities) Tick(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.DB == nil || a.Jobs == nil {
		return res, fmt.Errorf("jobwatch: activity not configured")
	}
	parsed, err := uuid.Parse(res.JobID)
	if err != nil || parsed == uuid.Nil {
		return res, fmt.Errorf("jobwatch: invalid job_id %q", jobID)
	}

	activity.RecordHeartbeat(ctx)

	job, err := a.Jobs.GetByID(ctx, a.DB, parsed)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, fmt.Errorf("jobwatch: job %s not found", parsed)
	}

	res.Status = job.Status
	res.Progress = job.Progress
	res.Waiting = waitingStatuses[job.Status]

	if types.IsTerminalStatus(job.Status) || res.Waiting {
		return res, nil
	}

	stallAfter := envutil.DurationSeconds("JOB_STALL_SECONDS", 10*time.Minute)
	if time.Since(job.UpdatedAt) > stallAfter {
		res.Stalled = true
		if a.Log != nil {
			a.Log.Warn("Job looks stalled, waking event workers",
				"job_id", job.ID,
				"status", job.Status,
				"idle", time.Since(job.UpdatedAt).String(),
			)
		}
		if a.Waker != nil {
			if err := a.Waker.Wake(ctx); err != nil && a.Log != nil {
				a.Log.Warn("Waker nudge failed", "job_id", job.ID, "error", err)
			}
		}
	}
	return res, nil
}
