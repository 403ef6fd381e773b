package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// Context is the execution handle for one event delivery. It is the only
// sanctioned way for phase handlers to run steps, report progress, emit
// follow-up events, or terminate the job.
//
// Steps are memoized in the step_run ledger keyed by (delivery, step name):
// if the handler is re-invoked after a crash or retry, steps that already
// committed are skipped and their persisted result is replayed. That is what
// makes resumption crash-safe.
type Context struct {
	Ctx      context.Context
	DB       *gorm.DB
	Log      *logger.Logger
	Delivery *types.EventDelivery
	Jobs     repos.GenerationJobRepo
	Steps    repos.StepRunRepo
	Events   repos.EventRepo
	Bus      events.Bus
}

func NewContext(
	ctx context.Context,
	db *gorm.DB,
	log *logger.Logger,
	delivery *types.EventDelivery,
	jobs repos.GenerationJobRepo,
	steps repos.StepRunRepo,
	eventsRepo repos.EventRepo,
	bus events.Bus,
) *Context {
	return &Context{
		Ctx:      ctx,
		DB:       db,
		Log:      log,
		Delivery: delivery,
		Jobs:     jobs,
		Steps:    steps,
		Events:   eventsRepo,
		Bus:      bus,
	}
}

func (c *Context) JobID() uuid.UUID {
	if c == nil || c.Delivery == nil {
		return uuid.Nil
	}
	return c.Delivery.JobID
}

// DecodePayload parses and validates the delivery's payload into its typed
// event struct. Handlers must not reach into raw JSON.
func (c *Context) DecodePayload() (events.Payload, error) {
	if c == nil || c.Delivery == nil {
		return nil, fmt.Errorf("no delivery")
	}
	return events.Decode(c.Delivery.EventName, []byte(c.Delivery.Payload))
}

// Job loads the current job row.
func (c *Context) Job() (*types.GenerationJob, error) {
	job, err := c.Jobs.GetByID(c.Ctx, c.DB, c.JobID())
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("generation job %s not found", c.JobID())
	}
	return job, nil
}

// Step runs a named step at most once per delivery. The step's side effects
// must be committed inside fn; its return value is persisted to the ledger so
// a replay can hand the same result back without re-running fn.
//
// On replay, out (when non-nil) is populated from the persisted result. On a
// fresh run, out is populated from the value fn returned, via the same JSON
// roundtrip, so both paths see identical data.
func (c *Context) Step(name string, out any, fn func(ctx context.Context) (any, error)) error {
	if name == "" {
		return fmt.Errorf("step name required")
	}
	prior, err := c.Steps.Get(c.Ctx, c.DB, c.Delivery.ID, name)
	if err != nil {
		return fmt.Errorf("step %s: read ledger: %w", name, err)
	}
	if prior != nil && prior.Status == types.StepSucceeded {
		c.Log.Debug("Step replayed from ledger", "step", name, "delivery_id", c.Delivery.ID)
		if out != nil && len(prior.Result) > 0 {
			if err := json.Unmarshal(prior.Result, out); err != nil {
				return fmt.Errorf("step %s: decode memoized result: %w", name, err)
			}
		}
		return nil
	}

	result, runErr := fn(c.Ctx)
	if runErr != nil {
		ledgerErr := c.Steps.Upsert(c.Ctx, c.DB, &types.StepRun{
			DeliveryID: c.Delivery.ID,
			Step:       name,
			Status:     types.StepFailed,
			Error:      runErr.Error(),
		})
		if ledgerErr != nil {
			c.Log.Warn("Step failure not recorded", "step", name, "error", ledgerErr)
		}
		return fmt.Errorf("step %s: %w", name, runErr)
	}

	var raw datatypes.JSON
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("step %s: encode result: %w", name, err)
		}
		raw = datatypes.JSON(b)
	}
	if err := c.Steps.Upsert(c.Ctx, c.DB, &types.StepRun{
		DeliveryID: c.Delivery.ID,
		Step:       name,
		Status:     types.StepSucceeded,
		Result:     raw,
	}); err != nil {
		// The ledger write is the commit point; without it the step is not
		// done and the retry will re-run it.
		return fmt.Errorf("step %s: commit ledger: %w", name, err)
	}
	if c.Events != nil {
		_ = c.Events.Heartbeat(c.Ctx, c.DB, c.Delivery.ID)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("step %s: decode result: %w", name, err)
		}
	}
	return nil
}

// Emit publishes a follow-up event. Callers usually wrap Emit inside a Step
// so a replayed handler does not publish twice.
func (c *Context) Emit(p events.Payload) error {
	if c.Bus == nil {
		return fmt.Errorf("bus not configured")
	}
	return c.Bus.Emit(c.Ctx, p)
}

// Progress advances the job's monotonic progress counter and current-step
// text. A rejected write means the job already went terminal; handlers treat
// that as a stop signal.
func (c *Context) Progress(pct int, currentStep string) bool {
	ok, err := c.Jobs.SetProgress(c.Ctx, c.DB, c.JobID(), pct, currentStep)
	if err != nil {
		c.Log.Warn("Progress update failed", "job_id", c.JobID(), "pct", pct, "error", err)
		return false
	}
	if !ok {
		c.Log.Debug("Progress rejected, job is terminal", "job_id", c.JobID())
	}
	return ok
}

// UpdateJob applies a guarded field-level update to the job row.
func (c *Context) UpdateJob(updates map[string]interface{}) (bool, error) {
	return c.Jobs.UpdateFieldsUnlessStatus(c.Ctx, c.DB, c.JobID(), types.TerminalStatuses(), updates)
}

// FailJob marks the job terminally failed with an error detail and notifies
// downstream consumers. Guarded: a cancelled job is not overwritten.
func (c *Context) FailJob(phase string, failure error) {
	if c == nil {
		return
	}
	msg := ""
	if failure != nil {
		msg = failure.Error()
	}
	ok, err := c.Jobs.UpdateFieldsUnlessStatus(c.Ctx, c.DB, c.JobID(), types.TerminalStatuses(), map[string]interface{}{
		"status":       types.StatusFailed,
		"current_step": phase,
		"error":        msg,
	})
	if err != nil {
		c.Log.Error("Failed to mark job failed", "job_id", c.JobID(), "phase", phase, "error", err)
		return
	}
	if !ok {
		return
	}
	c.Log.Warn("Job failed", "job_id", c.JobID(), "phase", phase, "error", msg)
	if emitErr := c.Emit(events.GenerationFailed{JobID: c.JobID(), Phase: phase, Error: msg}); emitErr != nil {
		c.Log.Warn("Failure event not emitted", "job_id", c.JobID(), "error", emitErr)
	}
}

// Touch extends the delivery heartbeat during long external calls.
func (c *Context) Touch() {
	if c.Events == nil || c.Delivery == nil {
		return
	}
	_ = c.Events.Heartbeat(c.Ctx, c.DB, c.Delivery.ID)
}

// Now is exposed for handlers that stamp phase-transition timestamps.
func (c *Context) Now() time.Time { return time.Now() }
