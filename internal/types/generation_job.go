package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Job statuses. Transitions between them are owned by the orchestrator
// transition table; nothing else may invent a status value.
const (
	StatusCollectingData          = "collecting_data"
	StatusPublicDataCollected     = "public_data_collected"
	StatusAwaitingUploads         = "awaiting_uploads"
	StatusProcessingUploads       = "processing_uploads"
	StatusQuestionnairePending    = "questionnaire_pending"
	StatusQuestionnaireInProgress = "questionnaire_in_progress"
	StatusConsolidating           = "consolidating"
	StatusGeneratingTeaser        = "generating_teaser"
	StatusGeneratingIM            = "generating_im"
	StatusGeneratingPitchDeck     = "generating_pitch_deck"
	StatusCompleted               = "completed"
	StatusFailed                  = "failed"
	StatusCancelled               = "cancelled"
)

func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// TerminalStatuses is the guard list for job-store writes: once a job reaches
// one of these, no handler may mutate it again.
func TerminalStatuses() []string {
	return []string{StatusCompleted, StatusFailed, StatusCancelled}
}

type ArtifactType string

const (
	ArtifactTeaser    ArtifactType = "teaser"
	ArtifactIM        ArtifactType = "information_memorandum"
	ArtifactPitchDeck ArtifactType = "pitch_deck"
)

// RequiresFinancialDocuments reports whether generating this artifact depends
// on extracted figures from uploaded financial documents. A teaser works off
// public data and questionnaire answers alone.
func (t ArtifactType) RequiresFinancialDocuments() bool {
	switch t {
	case ArtifactIM, ArtifactPitchDeck:
		return true
	default:
		return false
	}
}

func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactTeaser, ArtifactIM, ArtifactPitchDeck:
		return true
	default:
		return false
	}
}

type GenerationJob struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompanyID       uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	OrganizationID  uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`
	CreatedByUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"created_by_user_id"`
	NotifyEmail     string    `gorm:"column:notify_email" json:"notify_email,omitempty"`

	// Requested artifact set, immutable after creation.
	RequestTeaser    bool `gorm:"column:request_teaser;not null;default:false" json:"request_teaser"`
	RequestIM        bool `gorm:"column:request_im;not null;default:false" json:"request_im"`
	RequestPitchDeck bool `gorm:"column:request_pitch_deck;not null;default:false" json:"request_pitch_deck"`

	Status      string `gorm:"column:status;not null;index" json:"status"`
	Progress    int    `gorm:"column:progress;not null;default:0" json:"progress"`
	CurrentStep string `gorm:"column:current_step" json:"current_step,omitempty"`
	Error       string `gorm:"column:error" json:"error,omitempty"`

	PublicDataCollected    bool `gorm:"column:public_data_collected;not null;default:false" json:"public_data_collected"`
	DocumentsUploaded      bool `gorm:"column:documents_uploaded;not null;default:false" json:"documents_uploaded"`
	QuestionnaireCompleted bool `gorm:"column:questionnaire_completed;not null;default:false" json:"questionnaire_completed"`
	DataConsolidated       bool `gorm:"column:data_consolidated;not null;default:false" json:"data_consolidated"`

	DataCollectedAt          *time.Time `gorm:"column:data_collected_at" json:"data_collected_at,omitempty"`
	UploadsProcessedAt       *time.Time `gorm:"column:uploads_processed_at" json:"uploads_processed_at,omitempty"`
	QuestionnaireReadyAt     *time.Time `gorm:"column:questionnaire_ready_at" json:"questionnaire_ready_at,omitempty"`
	QuestionnaireCompletedAt *time.Time `gorm:"column:questionnaire_completed_at" json:"questionnaire_completed_at,omitempty"`
	ConsolidatedAt           *time.Time `gorm:"column:consolidated_at" json:"consolidated_at,omitempty"`
	CompletedAt              *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CancelledAt              *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`

	// Consolidation bundle and any accumulated intermediate data.
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	TeaserAssetID    *uuid.UUID `gorm:"type:uuid;column:teaser_asset_id" json:"teaser_asset_id,omitempty"`
	IMAssetID        *uuid.UUID `gorm:"type:uuid;column:im_asset_id" json:"im_asset_id,omitempty"`
	PitchDeckAssetID *uuid.UUID `gorm:"type:uuid;column:pitch_deck_asset_id" json:"pitch_deck_asset_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (GenerationJob) TableName() string { return "generation_job" }

func (j *GenerationJob) RequestedArtifacts() []ArtifactType {
	var out []ArtifactType
	if j.RequestTeaser {
		out = append(out, ArtifactTeaser)
	}
	if j.RequestIM {
		out = append(out, ArtifactIM)
	}
	if j.RequestPitchDeck {
		out = append(out, ArtifactPitchDeck)
	}
	return out
}

func (j *GenerationJob) Requested(t ArtifactType) bool {
	switch t {
	case ArtifactTeaser:
		return j.RequestTeaser
	case ArtifactIM:
		return j.RequestIM
	case ArtifactPitchDeck:
		return j.RequestPitchDeck
	default:
		return false
	}
}

// RequiresDocuments drives the one conditional branch in the pipeline: any
// requested artifact with a financial-document dependency forces the upload
// phase.
func (j *GenerationJob) RequiresDocuments() bool {
	for _, t := range j.RequestedArtifacts() {
		if t.RequiresFinancialDocuments() {
			return true
		}
	}
	return false
}

func (j *GenerationJob) AssetIDFor(t ArtifactType) *uuid.UUID {
	switch t {
	case ArtifactTeaser:
		return j.TeaserAssetID
	case ArtifactIM:
		return j.IMAssetID
	case ArtifactPitchDeck:
		return j.PitchDeckAssetID
	default:
		return nil
	}
}

// AssetIDColumn maps an artifact type to its generation_job column, used by
// the generate pipeline for field-level linking.
func AssetIDColumn(t ArtifactType) string {
	switch t {
	case ArtifactTeaser:
		return "teaser_asset_id"
	case ArtifactIM:
		return "im_asset_id"
	case ArtifactPitchDeck:
		return "pitch_deck_asset_id"
	default:
		return ""
	}
}

func GeneratingStatusFor(t ArtifactType) string {
	switch t {
	case ArtifactTeaser:
		return StatusGeneratingTeaser
	case ArtifactIM:
		return StatusGeneratingIM
	case ArtifactPitchDeck:
		return StatusGeneratingPitchDeck
	default:
		return ""
	}
}
