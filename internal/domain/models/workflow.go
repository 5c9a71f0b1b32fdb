package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ParameterSpec describes one entry of a Workflow's ordered parameters_schema.
type ParameterSpec struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Required bool        `json:"required"`
	Default  interface{} `json:"default,omitempty"`
}

// Workflow is the Workflow Registry Record (spec §3). Owned by the catalog
// importer (out of scope); referenced read-only by the core.
type Workflow struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name              string         `gorm:"size:255;not null" json:"name"`
	FunctionName      string         `gorm:"size:255;not null" json:"function_name"`
	Path              string         `gorm:"size:1024;not null" json:"path"`
	Type              string         `gorm:"size:32;not null;default:workflow" json:"type"`
	ParametersSchema  JSONArray      `gorm:"type:jsonb;not null;default:'[]'" json:"parameters_schema"`
	Schedule          *string        `gorm:"size:128" json:"schedule,omitempty"`
	TimeoutSeconds    int            `gorm:"not null;default:30" json:"timeout_seconds"`
	ExecutionMode     string         `gorm:"size:16;not null;default:async" json:"execution_mode"`
	EndpointEnabled   bool           `gorm:"default:false" json:"endpoint_enabled"`
	AllowedMethods    StringArray    `gorm:"type:text[]" json:"allowed_methods,omitempty"`
	OrganizationID    *uuid.UUID     `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	TimeSaved         *float64       `json:"time_saved,omitempty"`
	Value             *float64       `json:"value,omitempty"`
	APIKeyHash        *string        `gorm:"size:255" json:"-"`
	IsActive          bool           `gorm:"default:true;index" json:"is_active"`
	LastFiredAt       *time.Time     `json:"last_fired_at,omitempty"`
	NextDueAt         *time.Time     `gorm:"index" json:"next_due_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	AccessRows []WorkflowAccess `gorm:"foreignKey:WorkflowID" json:"-"`
}

func (Workflow) TableName() string {
	return "workflows"
}

// WorkflowAccess is a precomputed Workflow Access Row (spec §3), the sole
// source of truth for non-admin, non-API-key authorization (invariant 6).
// Rebuilt by the catalog at mutation time; consulted by the authorization
// resolver only.
type WorkflowAccess struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	WorkflowID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_workflow_access_entity,priority:1" json:"workflow_id"`
	EntityType     string     `gorm:"size:16;not null;uniqueIndex:idx_workflow_access_entity,priority:2" json:"entity_type"`
	EntityID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_workflow_access_entity,priority:3" json:"entity_id"`
	AccessLevel    string     `gorm:"size:16;not null" json:"access_level"`
	OrganizationID *uuid.UUID `gorm:"type:uuid;index" json:"organization_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`

	Workflow Workflow `gorm:"foreignKey:WorkflowID" json:"-"`
}

func (WorkflowAccess) TableName() string {
	return "workflow_access"
}

// RoleAssignment grants a role to an entity (form/app) consulted by the
// authorization resolver when an access row requires role_based access.
type RoleAssignment struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	EntityType string    `gorm:"size:16;not null;uniqueIndex:idx_role_assignment,priority:1" json:"entity_type"`
	EntityID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_role_assignment,priority:2" json:"entity_id"`
	Role       string    `gorm:"size:64;not null;uniqueIndex:idx_role_assignment,priority:3" json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

func (RoleAssignment) TableName() string {
	return "role_assignments"
}
