package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EventRecord is the outbox row for one emitted event. Durability lives here;
// the Redis publish on emit is only a wakeup for the dispatcher.
type EventRecord struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string         `gorm:"column:name;not null;index" json:"name"`
	JobID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	EmittedAt time.Time      `gorm:"column:emitted_at;not null;index" json:"emitted_at"`
}

func (EventRecord) TableName() string { return "event" }

// Delivery statuses mirror the job-run lifecycle the worker understands.
const (
	DeliveryQueued    = "queued"
	DeliveryRunning   = "running"
	DeliverySucceeded = "succeeded"
	DeliveryFailed    = "failed"
)

// EventDelivery is one subscriber's at-least-once delivery of an event. Each
// registered subscription gets its own row so a notification failure never
// blocks the workflow handler for the same event, and vice versa.
type EventDelivery struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EventID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"event_id"`
	EventName   string         `gorm:"column:event_name;not null;index" json:"event_name"`
	Subscriber  string         `gorm:"column:subscriber;not null;index" json:"subscriber"`
	JobID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"column:max_attempts;not null;default:3" json:"max_attempts"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	LastErrorAt *time.Time     `gorm:"column:last_error_at;index" json:"last_error_at,omitempty"`
	LockedAt    *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (EventDelivery) TableName() string { return "event_delivery" }
