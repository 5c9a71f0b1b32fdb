package models

import (
	"time"

	"github.com/google/uuid"
)

// EventSource is an inbound webhook endpoint (§4.10). Verified via a
// pluggable adapter (signature/HMAC/allowlist) named by AdapterType.
type EventSource struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	AdapterType    string     `gorm:"size:32;not null" json:"adapter_type"`
	Secret         *string    `gorm:"size:255" json:"-"`
	ErrorMessage   *string    `gorm:"type:text" json:"error_message,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (EventSource) TableName() string {
	return "event_sources"
}

// EventSubscription maps an EventSource to a Workflow it should trigger.
type EventSubscription struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EventSourceID uuid.UUID `gorm:"type:uuid;index;not null" json:"event_source_id"`
	WorkflowID    uuid.UUID `gorm:"type:uuid;index;not null" json:"workflow_id"`
	EventType     string    `gorm:"size:128" json:"event_type"`
	// Filter is an optional expr-lang/expr boolean expression evaluated
	// against the event payload before admission is attempted (§4.10).
	Filter    *string   `gorm:"type:text" json:"filter,omitempty"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`

	EventSource EventSource `gorm:"foreignKey:EventSourceID" json:"-"`
	Workflow    Workflow    `gorm:"foreignKey:WorkflowID" json:"-"`
}

func (EventSubscription) TableName() string {
	return "event_subscriptions"
}

// Event is a verified inbound webhook body (§3).
type Event struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SourceID   uuid.UUID `gorm:"type:uuid;index;not null" json:"source_id"`
	EventType  string    `gorm:"size:128" json:"event_type"`
	Payload    JSON      `gorm:"type:jsonb" json:"payload"`
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`

	Source EventSource `gorm:"foreignKey:SourceID" json:"-"`
}

func (Event) TableName() string {
	return "events"
}

// EventDelivery tracks one subscription's delivery attempt for an Event (§3).
type EventDelivery struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EventID        uuid.UUID  `gorm:"type:uuid;index;not null" json:"event_id"`
	SubscriptionID uuid.UUID  `gorm:"type:uuid;index;not null" json:"subscription_id"`
	Status         string     `gorm:"size:16;not null;default:pending;index" json:"status"`
	Attempts       int        `gorm:"default:0" json:"attempts"`
	LastError      *string    `gorm:"type:text" json:"last_error,omitempty"`
	NextRetryAt    *time.Time `gorm:"index" json:"next_retry_at,omitempty"`
	ExecutionID    *uuid.UUID `gorm:"type:uuid" json:"execution_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Event        Event             `gorm:"foreignKey:EventID" json:"-"`
	Subscription EventSubscription `gorm:"foreignKey:SubscriptionID" json:"-"`
}

func (EventDelivery) TableName() string {
	return "event_deliveries"
}
