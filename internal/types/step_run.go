package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StepSucceeded = "succeeded"
	StepFailed    = "failed"
)

// StepRun is the memoization ledger for one named step within a delivery.
// When a handler is re-invoked after a crash or retry, steps with a succeeded
// row are skipped and their persisted result is replayed.
type StepRun struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DeliveryID uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_step_delivery_name" json:"delivery_id"`
	Step       string         `gorm:"column:step;not null;uniqueIndex:idx_step_delivery_name" json:"step"`
	Status     string         `gorm:"column:status;not null" json:"status"`
	Result     datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	Error      string         `gorm:"column:error" json:"error,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (StepRun) TableName() string { return "step_run" }
