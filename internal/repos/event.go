package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/types"
)

type EventRepo interface {
	// Append writes the outbox row plus one delivery per subscription in a
	// single transaction, so an emitted event can never lose a subscriber.
	Append(ctx context.Context, tx *gorm.DB, event *types.EventRecord, deliveries []*types.EventDelivery) error
	// ClaimNextRunnable picks one runnable delivery and marks it running.
	// Runnable: queued, or failed with retry budget left past the retry
	// delay, or running with a stale heartbeat (crashed worker).
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, retryDelay time.Duration, staleRunning time.Duration) (*types.EventDelivery, error)
	UpdateDeliveryFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	ListDeliveriesByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.EventDelivery, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{
		db:  db,
		log: baseLog.With("repo", "EventRepo"),
	}
}

func (r *eventRepo) Append(ctx context.Context, tx *gorm.DB, event *types.EventRecord, deliveries []*types.EventDelivery) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if event == nil {
		return errors.New("nil event")
	}
	now := time.Now()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.EmittedAt.IsZero() {
		event.EmittedAt = now
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(event).Error; err != nil {
			return err
		}
		if len(deliveries) == 0 {
			return nil
		}
		for _, d := range deliveries {
			if d.ID == uuid.Nil {
				d.ID = uuid.New()
			}
			d.EventID = event.ID
			d.EventName = event.Name
			d.JobID = event.JobID
			d.Payload = event.Payload
			if d.Status == "" {
				d.Status = types.DeliveryQueued
			}
			if d.MaxAttempts <= 0 {
				d.MaxAttempts = 3
			}
			d.CreatedAt = now
			d.UpdatedAt = now
		}
		return txx.Create(&deliveries).Error
	})
}

func (r *eventRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, retryDelay time.Duration, staleRunning time.Duration) (*types.EventDelivery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.EventDelivery
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var delivery types.EventDelivery
		q := txx.Where(`
			(
				status = ?
				OR (
					status = ?
					AND attempts < max_attempts
					AND (last_error_at IS NULL OR last_error_at < ?)
				)
				OR (
					status = ?
					AND heartbeat_at IS NOT NULL
					AND heartbeat_at < ?
				)
			)
		`, types.DeliveryQueued, types.DeliveryFailed, retryCutoff, types.DeliveryRunning, staleCutoff).
			Order("created_at ASC")
		// SKIP LOCKED keeps concurrent workers from fighting over one row;
		// sqlite (tests) has no row locks, single-writer semantics suffice.
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		qErr := q.First(&delivery).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.EventDelivery{}).
			Where("id = ?", delivery.ID).
			Updates(map[string]interface{}{
				"status":       types.DeliveryRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		delivery.Status = types.DeliveryRunning
		delivery.Attempts++
		claimed = &delivery
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *eventRepo) UpdateDeliveryFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.EventDelivery{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *eventRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.EventDelivery{}).
		Where("id = ? AND status = ?", id, types.DeliveryRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *eventRepo) ListDeliveriesByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.EventDelivery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EventDelivery
	if jobID == uuid.Nil {
		return out, nil
	}
	err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
