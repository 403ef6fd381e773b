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

type GeneratedAssetRepo interface {
	// Upsert keys on (job_id, artifact_type): re-delivery of a generate
	// event replaces the asset content instead of creating a second link.
	Upsert(ctx context.Context, tx *gorm.DB, asset *types.GeneratedAsset) (*types.GeneratedAsset, error)
	GetByJobArtifact(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, artifact types.ArtifactType) (*types.GeneratedAsset, error)
	ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.GeneratedAsset, error)
}

type generatedAssetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGeneratedAssetRepo(db *gorm.DB, baseLog *logger.Logger) GeneratedAssetRepo {
	return &generatedAssetRepo{
		db:  db,
		log: baseLog.With("repo", "GeneratedAssetRepo"),
	}
}

func (r *generatedAssetRepo) Upsert(ctx context.Context, tx *gorm.DB, asset *types.GeneratedAsset) (*types.GeneratedAsset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now()
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "artifact_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "content", "presentation_id", "view_url", "edit_url"}),
		}).
		Create(asset).Error
	if err != nil {
		return nil, err
	}
	// The insert may have resolved to an existing row; re-read so callers
	// always link the canonical asset id.
	return r.GetByJobArtifact(ctx, transaction, asset.JobID, asset.ArtifactType)
}

func (r *generatedAssetRepo) GetByJobArtifact(ctx context.Context, tx *gorm.DB, jobID uuid.UUID, artifact types.ArtifactType) (*types.GeneratedAsset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil, nil
	}
	var asset types.GeneratedAsset
	err := transaction.WithContext(ctx).
		Where("job_id = ? AND artifact_type = ?", jobID, artifact).
		Limit(1).
		Find(&asset).Error
	if err != nil {
		return nil, err
	}
	if asset.ID == uuid.Nil {
		return nil, nil
	}
	return &asset, nil
}

func (r *generatedAssetRepo) ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.GeneratedAsset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.GeneratedAsset
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
