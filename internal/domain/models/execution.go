package models

import (
	"time"

	"github.com/google/uuid"
)

// Execution is the durable Execution Record (spec §3). Created in status
// Pending at admission; mutated only by the worker-side writer and by the
// stuck execution monitor. The id may be caller-supplied (sync callers need
// a stable id before the durable row exists) or generated by admission.
type Execution struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowID      uuid.UUID  `gorm:"type:uuid;index;not null" json:"workflow_id"`
	WorkflowName    string     `gorm:"size:255;not null" json:"workflow_name"`
	OrganizationID  *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	Status          string     `gorm:"size:32;not null;default:pending;index" json:"status"`
	TriggerType     string     `gorm:"size:32;not null" json:"trigger_type"`
	Parameters      JSON       `gorm:"type:jsonb" json:"parameters"`
	Result          JSON       `gorm:"type:jsonb" json:"result,omitempty"`
	Error           *string    `gorm:"type:text" json:"error,omitempty"`
	ErrorType       *string    `gorm:"size:64" json:"error_type,omitempty"`
	DurationMs      int64      `gorm:"default:0" json:"duration_ms"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ExecutedBy      *uuid.UUID `gorm:"type:uuid;index" json:"executed_by,omitempty"`
	TimeSaved       *float64   `json:"time_saved,omitempty"`
	Value           *float64   `json:"value,omitempty"`
	APIKeyID        *uuid.UUID `gorm:"type:uuid" json:"api_key_id,omitempty"`
	SessionID       *uuid.UUID `gorm:"type:uuid" json:"session_id,omitempty"`
	FormID          *uuid.UUID `gorm:"type:uuid" json:"form_id,omitempty"`
	EventDeliveryID *uuid.UUID `gorm:"type:uuid" json:"event_delivery_id,omitempty"`
	WorkerID        *string    `gorm:"size:64" json:"worker_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`

	Workflow Workflow `gorm:"foreignKey:WorkflowID" json:"-"`
}

func (Execution) TableName() string {
	return "executions"
}

// ExecutionLog is an append-only log row. Sequence is supplied by the
// emitter and is strictly increasing per execution (invariant 4).
type ExecutionLog struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ExecutionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_execution_logs_seq,priority:1" json:"execution_id"`
	Sequence    int64     `gorm:"not null;uniqueIndex:idx_execution_logs_seq,priority:2" json:"sequence"`
	Timestamp   time.Time `gorm:"not null" json:"timestamp"`
	Level       string    `gorm:"size:16;not null" json:"level"`
	Message     string    `gorm:"type:text;not null" json:"message"`
	Metadata    JSON      `gorm:"type:jsonb" json:"metadata,omitempty"`

	Execution Execution `gorm:"foreignKey:ExecutionID" json:"-"`
}

func (ExecutionLog) TableName() string {
	return "execution_logs"
}
