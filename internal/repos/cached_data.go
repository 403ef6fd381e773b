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

type CachedDataRepo interface {
	// Upsert overwrites by (job_id, source, data_type) so re-running data
	// collection stays idempotent instead of stacking duplicate rows.
	Upsert(ctx context.Context, tx *gorm.DB, entry *types.CachedDataEntry) (*types.CachedDataEntry, error)
	ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.CachedDataEntry, error)
}

type cachedDataRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCachedDataRepo(db *gorm.DB, baseLog *logger.Logger) CachedDataRepo {
	return &cachedDataRepo{
		db:  db,
		log: baseLog.With("repo", "CachedDataRepo"),
	}
}

func (r *cachedDataRepo) Upsert(ctx context.Context, tx *gorm.DB, entry *types.CachedDataEntry) (*types.CachedDataEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := time.Now()
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "source"}, {Name: "data_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "fetched_at"}),
		}).
		Create(entry).Error
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *cachedDataRepo) ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.CachedDataEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CachedDataEntry
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
