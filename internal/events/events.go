package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dealforge/dealforge-backend/internal/types"
)

// Event names are the wire protocol of the workflow core. Producers and
// consumers agree on these names and the payload structs below; nothing else
// crosses the bus.
const (
	EventJobCreated             = "materials.job.created"
	EventUploadsRequired        = "materials.uploads.required"
	EventUploadsCompleted       = "materials.uploads.completed"
	EventQuestionnaireRequested = "materials.questionnaire.requested"
	EventQuestionnaireReady     = "materials.questionnaire.ready"
	EventQuestionnaireCompleted = "materials.questionnaire.completed"
	EventConsolidationRequested = "materials.consolidation.requested"
	EventArtifactGenerate       = "materials.artifact.generate"
	EventGenerationCompleted    = "materials.generation.completed"
	EventGenerationFailed       = "materials.generation.failed"
	EventJobCancel              = "materials.job.cancel"
)

// Payload is implemented by every event payload struct.
type Payload interface {
	EventName() string
	Job() uuid.UUID
	Validate() error
}

type JobCreated struct {
	JobID          uuid.UUID `json:"job_id"`
	CompanyID      uuid.UUID `json:"company_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
}

func (p JobCreated) EventName() string { return EventJobCreated }
func (p JobCreated) Job() uuid.UUID    { return p.JobID }
func (p JobCreated) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%s: missing job_id", EventJobCreated)
	}
	if p.CompanyID == uuid.Nil {
		return fmt.Errorf("%s: missing company_id", EventJobCreated)
	}
	return nil
}

type UploadsRequired struct {
	JobID     uuid.UUID `json:"job_id"`
	CompanyID uuid.UUID `json:"company_id"`
}

func (p UploadsRequired) EventName() string { return EventUploadsRequired }
func (p UploadsRequired) Job() uuid.UUID    { return p.JobID }
func (p UploadsRequired) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%s: missing job_id", EventUploadsRequired)
	}
	return nil
}

type UploadsCompleted struct {
	JobID       uuid.UUID   `json:"job_id"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
}

func (p UploadsCompleted) EventName() string { return EventUploadsCompleted }
func (p UploadsCompleted) Job() uuid.UUID    { return p.JobID }
func (p UploadsCompleted) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%s: missing job_id", EventUploadsCompleted)
	}
	if len(p.DocumentIDs) == 0 {
		return fmt.Errorf("%s: empty document_ids", EventUploadsCompleted)
	}
	return nil
}

type QuestionnaireRequested struct {
	JobID     uuid.UUID `json:"job_id"`
	CompanyID uuid.UUID `json:"company_id"`
}

func (p QuestionnaireRequested) EventName() string { return EventQuestionnaireRequested }
func (p QuestionnaireRequested) Job() uuid.UUID    { return p.JobID }
func (p QuestionnaireRequested) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%s: missing job_id", EventQuestionnaireRequested)
	}
	return nil
}

type QuestionnaireReady struct {
	JobID         uuid.UUID `json:"job_id"`
	QuestionCount int       `json:"question_count"`
}

func (p QuestionnaireReady) EventName() string { return EventQuestionnaireReady }
func (p QuestionnaireReady) Job() uuid.UUID    { return p.JobID }
func (p QuestionnaireReady) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%s: missing job_id", EventQuestionnaireReady)
	}
	return nil
}

type QuestionnaireCompleted struct {
	JobID uuid.UUID `json:"job_id"`
}

func (p QuestionnaireCompleted) EventName() string { return EventQuestionnaireCompleted }
func (p QuestionnaireCompleted) Job() uuid.UUID    { return p.JobID }
func (p QuestionnaireCompleted) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%s: missing job_id", EventQuestionnaireCompleted)
	}
	return nil
}

type ConsolidationRequested struct {
	JobID uuid.UUID `json:"job_id"`
}

func (p ConsolidationRequested) EventName() string { return EventConsolidationRequested }
func (p ConsolidationRequested) Job() uuid.UUID    { return p.JobID }
func (p ConsolidationRequested) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%s: missing job_id", EventConsolidationRequested)
	}
	return nil
}

type ArtifactGenerate struct {
	JobID        uuid.UUID          `json:"job_id"`
	ArtifactType types.ArtifactType `json:"artifact_type"`
}

func (p ArtifactGenerate) EventName() string { return EventArtifactGenerate }
func (p ArtifactGenerate) Job() uuid.UUID    { return p.JobID }
func (p ArtifactGenerate) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%s: missing job_id", EventArtifactGenerate)
	}
	if !p.ArtifactType.Valid() {
		return fmt.Errorf("%s: invalid artifact_type %q", EventArtifactGenerate, p.ArtifactType)
	}
	return nil
}

type GenerationCompleted struct {
	JobID    uuid.UUID            `json:"job_id"`
	AssetIDs map[string]uuid.UUID `json:"asset_ids"`
}

func (p GenerationCompleted) EventName() string { return EventGenerationCompleted }
func (p GenerationCompleted) Job() uuid.UUID    { return p.JobID }
func (p GenerationCompleted) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%s: missing job_id", EventGenerationCompleted)
	}
	return nil
}

type GenerationFailed struct {
	JobID uuid.UUID `json:"job_id"`
	Phase string    `json:"phase"`
	Error string    `json:"error"`
}

func (p GenerationFailed) EventName() string { return EventGenerationFailed }
func (p GenerationFailed) Job() uuid.UUID    { return p.JobID }
func (p GenerationFailed) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%s: missing job_id", EventGenerationFailed)
	}
	return nil
}

type JobCancel struct {
	JobID  uuid.UUID `json:"job_id"`
	Reason string    `json:"reason,omitempty"`
}

func (p JobCancel) EventName() string { return EventJobCancel }
func (p JobCancel) Job() uuid.UUID    { return p.JobID }
func (p JobCancel) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("%s: missing job_id", EventJobCancel)
	}
	return nil
}

// Decode parses a raw payload for the given event name into its typed struct
// and validates it. Unknown names are rejected rather than passed through.
func Decode(name string, raw []byte) (Payload, error) {
	var p Payload
	switch name {
	case EventJobCreated:
		p = &JobCreated{}
	case EventUploadsRequired:
		p = &UploadsRequired{}
	case EventUploadsCompleted:
		p = &UploadsCompleted{}
	case EventQuestionnaireRequested:
		p = &QuestionnaireRequested{}
	case EventQuestionnaireReady:
		p = &QuestionnaireReady{}
	case EventQuestionnaireCompleted:
		p = &QuestionnaireCompleted{}
	case EventConsolidationRequested:
		p = &ConsolidationRequested{}
	case EventArtifactGenerate:
		p = &ArtifactGenerate{}
	case EventGenerationCompleted:
		p = &GenerationCompleted{}
	case EventGenerationFailed:
		p = &GenerationFailed{}
	case EventJobCancel:
		p = &JobCancel{}
	default:
		return nil, fmt.Errorf("unknown event name %q", name)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
