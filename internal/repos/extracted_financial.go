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

type ExtractedFinancialRepo interface {
	// Upsert overwrites by (job_id, document_id); reprocessing an upload
	// batch replaces earlier rows for the same documents.
	Upsert(ctx context.Context, tx *gorm.DB, rec *types.ExtractedFinancialRecord) (*types.ExtractedFinancialRecord, error)
	ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ExtractedFinancialRecord, error)
}

type extractedFinancialRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExtractedFinancialRepo(db *gorm.DB, baseLog *logger.Logger) ExtractedFinancialRepo {
	return &extractedFinancialRepo{
		db:  db,
		log: baseLog.With("repo", "ExtractedFinancialRepo"),
	}
}

func (r *extractedFinancialRepo) Upsert(ctx context.Context, tx *gorm.DB, rec *types.ExtractedFinancialRecord) (*types.ExtractedFinancialRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "document_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"fields", "confidence", "method", "error"}),
		}).
		Create(rec).Error
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *extractedFinancialRepo) ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ExtractedFinancialRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ExtractedFinancialRecord
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
