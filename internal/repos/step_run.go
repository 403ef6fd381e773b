package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dealforge/dealforge-backend/internal/platform/logger"
	"github.com/dealforge/dealforge-backend/internal/types"
)

type StepRunRepo interface {
	Get(ctx context.Context, tx *gorm.DB, deliveryID uuid.UUID, step string) (*types.StepRun, error)
	Upsert(ctx context.Context, tx *gorm.DB, run *types.StepRun) error
}

type stepRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStepRunRepo(db *gorm.DB, baseLog *logger.Logger) StepRunRepo {
	return &stepRunRepo{
		db:  db,
		log: baseLog.With("repo", "StepRunRepo"),
	}
}

func (r *stepRunRepo) Get(ctx context.Context, tx *gorm.DB, deliveryID uuid.UUID, step string) (*types.StepRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if deliveryID == uuid.Nil || step == "" {
		return nil, nil
	}
	var run types.StepRun
	err := transaction.WithContext(ctx).
		Where("delivery_id = ? AND step = ?", deliveryID, step).
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *stepRunRepo) Upsert(ctx context.Context, tx *gorm.DB, run *types.StepRun) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "delivery_id"}, {Name: "step"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "result", "error", "updated_at"}),
		}).
		Create(run).Error
}
