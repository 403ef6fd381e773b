package types

import (
	"time"

	"github.com/google/uuid"
)

// QuestionnaireResponse is one generated question for a job, updated in place
// once the user answers it. The questionnaire is complete when every required
// row has a non-empty answer.
type QuestionnaireResponse struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	JobID        uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_questionnaire_job_key" json:"job_id"`
	QuestionKey  string     `gorm:"column:question_key;not null;uniqueIndex:idx_questionnaire_job_key" json:"question_key"`
	QuestionText string     `gorm:"column:question_text;not null" json:"question_text"`
	Category     string     `gorm:"column:category;not null;index" json:"category"`
	Required     bool       `gorm:"column:required;not null;default:false" json:"required"`
	DisplayOrder int        `gorm:"column:display_order;not null;default:0" json:"display_order"`
	Answer       string     `gorm:"column:answer" json:"answer,omitempty"`
	AnsweredAt   *time.Time `gorm:"column:answered_at" json:"answered_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
}

func (QuestionnaireResponse) TableName() string { return "questionnaire_response" }
