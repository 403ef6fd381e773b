package worker

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/events"
	"github.com/dealforge/dealforge-backend/internal/jobs/runtime"
	"github.com/dealforge/dealforge-backend/internal/platform/envutil"
	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// Worker drains the event_delivery table: claim one runnable delivery,
// resolve its subscription, run the handler inside a step-memoizing Context.
// Handler failure marks the delivery failed; the claim query brings it back
// after the retry delay until the delivery's budget is spent.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	eventsRx repos.EventRepo
	jobs     repos.GenerationJobRepo
	steps    repos.StepRunRepo
	registry *runtime.Registry
	bus      events.Bus
	waker    events.Waker

	retryDelay   time.Duration
	staleRunning time.Duration
	wake         chan struct{}
}

func NewWorker(
	db *gorm.DB,
	baseLog *logger.Logger,
	eventsRepo repos.EventRepo,
	jobs repos.GenerationJobRepo,
	steps repos.StepRunRepo,
	registry *runtime.Registry,
	bus events.Bus,
	waker events.Waker,
) *Worker {
	return &Worker{
		db:           db,
		log:          baseLog.With("component", "EventWorker"),
		eventsRx:     eventsRepo,
		jobs:         jobs,
		steps:        steps,
		registry:     registry,
		bus:          bus,
		waker:        waker,
		retryDelay:   envutil.DurationSeconds("EVENT_RETRY_DELAY_SECONDS", 30*time.Second),
		staleRunning: envutil.DurationSeconds("EVENT_STALE_RUNNING_SECONDS", 15*time.Minute),
		wake:         make(chan struct{}, 1),
	}
}

func (w *Worker) Start(ctx context.Context) {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	w.log.Info("Starting event worker pool", "concurrency", concurrency)

	if w.waker != nil {
		if err := w.waker.Watch(ctx, w.nudge); err != nil {
			w.log.Warn("Waker watch failed, polling only", "error", err)
		}
	}

	for i := 0; i < concurrency; i++ {
		workerID := i + 1
		go w.runLoop(ctx, workerID)
	}
}

func (w *Worker) nudge() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		case <-w.wake:
		}
		w.drain(ctx, workerID)
	}
}

// drain claims and runs deliveries until the queue is momentarily empty.
func (w *Worker) drain(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			return
		}
		delivery, err := w.eventsRx.ClaimNextRunnable(ctx, w.db, w.retryDelay, w.staleRunning)
		if err != nil {
			w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
			return
		}
		if delivery == nil {
			return
		}
		w.dispatch(ctx, workerID, delivery)
	}
}

func (w *Worker) dispatch(ctx context.Context, workerID int, delivery *types.EventDelivery) {
	sub, ok := w.registry.Get(delivery.EventName, delivery.Subscriber)
	if !ok {
		w.log.Warn("No subscription registered",
			"worker_id", workerID,
			"event", delivery.EventName,
			"subscriber", delivery.Subscriber,
			"delivery_id", delivery.ID,
		)
		w.finishDelivery(ctx, delivery, runtime.Subscription{}, fmt.Errorf("no subscription for %s/%s", delivery.EventName, delivery.Subscriber))
		return
	}

	jc := runtime.NewContext(ctx, w.db, w.log.With("event", delivery.EventName, "subscriber", delivery.Subscriber), delivery, w.jobs, w.steps, w.eventsRx, w.bus)

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Handler panic",
					"worker_id", workerID,
					"delivery_id", delivery.ID,
					"event", delivery.EventName,
					"panic", r,
				)
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		runErr = sub.Handler.Run(jc)
	}()

	w.finishDelivery(ctx, delivery, sub, runErr)
}

func (w *Worker) finishDelivery(ctx context.Context, delivery *types.EventDelivery, sub runtime.Subscription, runErr error) {
	now := time.Now()
	if runErr == nil {
		err := w.eventsRx.UpdateDeliveryFields(ctx, w.db, delivery.ID, map[string]interface{}{
			"status":    types.DeliverySucceeded,
			"error":     "",
			"locked_at": nil,
		})
		if err != nil {
			w.log.Warn("Delivery completion not recorded", "delivery_id", delivery.ID, "error", err)
		}
		return
	}

	exhausted := delivery.Attempts >= delivery.MaxAttempts
	err := w.eventsRx.UpdateDeliveryFields(ctx, w.db, delivery.ID, map[string]interface{}{
		"status":        types.DeliveryFailed,
		"error":         runErr.Error(),
		"last_error_at": now,
		"locked_at":     nil,
	})
	if err != nil {
		w.log.Warn("Delivery failure not recorded", "delivery_id", delivery.ID, "error", err)
	}
	w.log.Warn("Delivery failed",
		"delivery_id", delivery.ID,
		"event", delivery.EventName,
		"subscriber", delivery.Subscriber,
		"attempt", delivery.Attempts,
		"max_attempts", delivery.MaxAttempts,
		"exhausted", exhausted,
		"error", runErr.Error(),
	)

	// Retry exhaustion on a workflow subscription is a job-level failure.
	// Notification subscriptions never propagate into job state.
	if exhausted && sub.FailsJob {
		jc := runtime.NewContext(ctx, w.db, w.log, delivery, w.jobs, w.steps, w.eventsRx, w.bus)
		jc.FailJob(delivery.EventName, fmt.Errorf("retries exhausted: %w", runErr))
	}
}
