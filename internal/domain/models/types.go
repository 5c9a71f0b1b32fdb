package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/lib/pq"
)

// JSON type for JSONB columns
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan JSON: not a byte slice")
	}
	return json.Unmarshal(bytes, j)
}

// JSONArray type for JSONB array columns
type JSONArray []interface{}

func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan JSONArray: not a byte slice")
	}
	return json.Unmarshal(bytes, j)
}

// StringArray type for text[] columns
type StringArray = pq.StringArray

// Workflow types
const (
	WorkflowTypeWorkflow     = "workflow"
	WorkflowTypeDataProvider = "data_provider"
)

// Execution mode recorded on the workflow registry record (§9 open question:
// the core decides sync/async strictly from the trigger's flag, this is
// advisory metadata only).
const (
	ExecutionModeSync  = "sync"
	ExecutionModeAsync = "async"
)

// Execution status constants (the durable Execution Record FSM).
const (
	ExecutionStatusPending             = "pending"
	ExecutionStatusRunning             = "running"
	ExecutionStatusSuccess             = "success"
	ExecutionStatusFailed              = "failed"
	ExecutionStatusTimeout             = "timeout"
	ExecutionStatusStuck               = "stuck"
	ExecutionStatusCompletedWithErrors = "completed_with_errors"
	ExecutionStatusCancelling          = "cancelling"
	ExecutionStatusCancelled           = "cancelled"
)

// IsTerminalExecutionStatus reports whether status admits no further transition.
func IsTerminalExecutionStatus(status string) bool {
	switch status {
	case ExecutionStatusSuccess, ExecutionStatusFailed, ExecutionStatusTimeout,
		ExecutionStatusStuck, ExecutionStatusCompletedWithErrors, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// Trigger sources accepted by admission.
const (
	TriggerUser         = "user"
	TriggerAPIKey       = "api_key"
	TriggerSchedule     = "schedule"
	TriggerWebhook      = "webhook"
	TriggerAgentTool    = "agent_tool"
	TriggerCLISession   = "cli_session"
	TriggerInlineScript = "inline_script"
)

// Error taxonomy (spec §7). Stored verbatim in Execution.ErrorType.
const (
	ErrorTypeNotAuthorized           = "NotAuthorized"
	ErrorTypeWorkflowNotFound        = "WorkflowNotFound"
	ErrorTypeModuleNotFound          = "ModuleNotFound"
	ErrorTypeValidationError         = "ValidationError"
	ErrorTypeUserFailure             = "UserFailure"
	ErrorTypeTimeout                 = "Timeout"
	ErrorTypeCancelled               = "Cancelled"
	ErrorTypeStuck                   = "Stuck"
	ErrorTypeTransientInfrastructure = "TransientInfrastructure"
	ErrorTypeInfrastructureExhausted = "InfrastructureExhausted"
	ErrorTypeDeliveryFailure         = "DeliveryFailure"
	ErrorTypeAdmissionExpired        = "AdmissionExpired"
)

// Log levels for execution log rows.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Workflow access entities (§3 Workflow Access Row).
const (
	AccessEntityForm = "form"
	AccessEntityApp  = "app"
)

const (
	AccessLevelAuthenticated = "authenticated"
	AccessLevelRoleBased     = "role_based"
)

// Worker slot states (§4.5).
const (
	WorkerStateIdle  = "idle"
	WorkerStateBusy  = "busy"
	WorkerStateKilled = "killed"
)

// Event delivery status (§4.10, §3).
const (
	DeliveryStatusPending = "pending"
	DeliveryStatusQueued  = "queued"
	DeliveryStatusSuccess = "success"
	DeliveryStatusFailed  = "failed"
	DeliveryStatusSkipped = "skipped"
)

// User status constants
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
	UserStatusDeleted   = "deleted"
)
