package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GeneratedAsset is a finished artifact. Presentation URLs are best-effort:
// an asset without them is still valid and linked onto the job.
type GeneratedAsset struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID          uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_asset_job_artifact" json:"job_id"`
	ArtifactType   ArtifactType   `gorm:"column:artifact_type;not null;uniqueIndex:idx_asset_job_artifact" json:"artifact_type"`
	Title          string         `gorm:"column:title" json:"title,omitempty"`
	Content        datatypes.JSON `gorm:"column:content;type:jsonb" json:"content"`
	PresentationID string         `gorm:"column:presentation_id" json:"presentation_id,omitempty"`
	ViewURL        string         `gorm:"column:view_url" json:"view_url,omitempty"`
	EditURL        string         `gorm:"column:edit_url" json:"edit_url,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
}

func (GeneratedAsset) TableName() string { return "generated_asset" }
