package events

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/repos"
	"github.com/dealforge/dealforge-backend/internal/types"
)

// SubscriptionSpec declares that a named subscriber wants deliveries of an
// event, with its own retry budget. The bus fans one emitted event out into
// one delivery row per matching spec.
type SubscriptionSpec struct {
	Event       string
	Subscriber  string
	MaxAttempts int
}

// Bus is fire-and-forget durable publish. Emit never waits on handlers: it
// appends to the outbox and nudges the dispatcher.
type Bus interface {
	Emit(ctx context.Context, p Payload) error
}

type outboxBus struct {
	db    *gorm.DB
	log   *logger.Logger
	repo  repos.EventRepo
	specs []SubscriptionSpec
	waker Waker
}

func NewOutboxBus(db *gorm.DB, baseLog *logger.Logger, repo repos.EventRepo, specs []SubscriptionSpec, waker Waker) Bus {
	return &outboxBus{
		db:    db,
		log:   baseLog.With("component", "OutboxBus"),
		repo:  repo,
		specs: specs,
		waker: waker,
	}
}

func (b *outboxBus) Emit(ctx context.Context, p Payload) error {
	if p == nil {
		return fmt.Errorf("nil payload")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}

	event := &types.EventRecord{
		Name:    p.EventName(),
		JobID:   p.Job(),
		Payload: datatypes.JSON(raw),
	}
	var deliveries []*types.EventDelivery
	for _, spec := range b.specs {
		if spec.Event != p.EventName() {
			continue
		}
		deliveries = append(deliveries, &types.EventDelivery{
			Subscriber:  spec.Subscriber,
			MaxAttempts: spec.MaxAttempts,
		})
	}
	if len(deliveries) == 0 {
		b.log.Warn("Event has no subscribers", "event", p.EventName(), "job_id", p.Job())
	}

	if err := b.repo.Append(ctx, b.db, event, deliveries); err != nil {
		return fmt.Errorf("append event %s: %w", p.EventName(), err)
	}
	b.log.Debug("Event emitted", "event", p.EventName(), "job_id", p.Job(), "deliveries", len(deliveries))

	if b.waker != nil {
		if err := b.waker.Wake(ctx); err != nil {
			// Wakeup is latency-only; the dispatcher polls regardless.
			b.log.Warn("Dispatcher wake failed", "error", err)
		}
	}
	return nil
}
