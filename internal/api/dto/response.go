package dto

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bifrostlabs/bifrost/internal/pkg/validator"
)

// Error codes for consistent API responses
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
	ErrCodeTooManyRequest = "TOO_MANY_REQUESTS"
	ErrCodeServiceUnavail = "SERVICE_UNAVAILABLE"
	ErrCodeTimeout        = "TIMEOUT"
)

// Common service errors for mapping
var (
	ErrNotFound      = errors.New("resource not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("resource conflict")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternalError = errors.New("internal server error")
)

type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *ErrorData  `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type ErrorData struct {
	Code    string                      `json:"code"`
	Message string                      `json:"message"`
	Details []validator.ValidationError `json:"details,omitempty"`
}

type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// RequestIDKey is the context key for request ID
const RequestIDKey = "request_id"

// getRequestID extracts request ID from response header if set
func getRequestID(w http.ResponseWriter) string {
	return w.Header().Get("X-Request-ID")
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := Response{
		Success:   status >= 200 && status < 300,
		Data:      data,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
	}

	_ = json.NewEncoder(w).Encode(response)
}

func JSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := Response{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
	}

	_ = json.NewEncoder(w).Encode(response)
}

func errorWithCode(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := Response{
		Success:   false,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
		Error: &ErrorData{
			Code:    code,
			Message: message,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

func ErrorResponse(w http.ResponseWriter, status int, message string) {
	code := statusToErrorCode(status)
	errorWithCode(w, status, code, message)
}

func ValidationErrorResponse(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	response := Response{
		Success:   false,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
		Error: &ErrorData{
			Code:    ErrCodeValidation,
			Message: "Validation failed",
			Details: validator.FormatErrors(err),
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// WorkflowValidationError represents a workflow-specific validation error
type WorkflowValidationError struct {
	Field   string `json:"field"`
	NodeID  string `json:"node_id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WorkflowValidationErrorResponse returns a workflow validation error response
func WorkflowValidationErrorResponse(w http.ResponseWriter, errors []WorkflowValidationError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)

	// Convert to validation error format
	details := make([]validator.ValidationError, len(errors))
	for i, e := range errors {
		field := e.Field
		if e.NodeID != "" {
			field = "node:" + e.NodeID + "." + e.Field
		}
		details[i] = validator.ValidationError{
			Field:   field,
			Message: e.Message,
		}
	}

	response := Response{
		Success:   false,
		RequestID: getRequestID(w),
		Timestamp: time.Now().Unix(),
		Error: &ErrorData{
			Code:    "WORKFLOW_VALIDATION_ERROR",
			Message: "Workflow validation failed",
			Details: details,
		},
	}

	_ = json.NewEncoder(w).Encode(response)
}

// Convenience helpers (Laravel-style trait methods)

func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, data)
}

func Accepted(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusAccepted, data)
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func BadRequest(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func Forbidden(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func NotFound(w http.ResponseWriter, resource string) {
	message := resource + " not found"
	errorWithCode(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func Conflict(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusConflict, ErrCodeConflict, message)
}

func TooManyRequests(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusTooManyRequests, ErrCodeTooManyRequest, message)
}

func InternalServerError(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusInternalServerError, ErrCodeInternalServer, message)
}

func ServiceUnavailable(w http.ResponseWriter, message string) {
	errorWithCode(w, http.StatusServiceUnavailable, ErrCodeServiceUnavail, message)
}

// HandleServiceError maps service-layer errors to appropriate HTTP responses
func HandleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		NotFound(w, "Resource")
	case errors.Is(err, ErrUnauthorized):
		Unauthorized(w, err.Error())
	case errors.Is(err, ErrForbidden):
		Forbidden(w, err.Error())
	case errors.Is(err, ErrConflict):
		Conflict(w, err.Error())
	case errors.Is(err, ErrInvalidInput):
		BadRequest(w, err.Error())
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}

// statusToErrorCode maps HTTP status codes to error codes
func statusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusTooManyRequests:
		return ErrCodeTooManyRequest
	case http.StatusInternalServerError:
		return ErrCodeInternalServer
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavail
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ErrCodeTimeout
	default:
		return http.StatusText(status)
	}
}

// Auth responses
type AuthResponse struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresAt    int64         `json:"expires_at"`
}

// User responses
type UserResponse struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	EmailVerified bool    `json:"email_verified"`
	IsSuperuser   bool    `json:"is_superuser"`
	OrgID         *string `json:"organization_id,omitempty"`
	CreatedAt     int64   `json:"created_at"`
}

// AdmitResponse is the admission gate's id-only contract (spec §4.1):
// the caller polls, subscribes, or BLPOPs on this id next.
type AdmitResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// ExecutionResponse mirrors the durable Execution Record (spec §3).
type ExecutionResponse struct {
	ID           string      `json:"id"`
	WorkflowID   string      `json:"workflow_id"`
	WorkflowName string      `json:"workflow_name"`
	Status       string      `json:"status"`
	TriggerType  string      `json:"trigger_type"`
	Parameters   interface{} `json:"parameters,omitempty"`
	Result       interface{} `json:"result,omitempty"`
	Error        *string     `json:"error,omitempty"`
	ErrorType    *string     `json:"error_type,omitempty"`
	DurationMs   int64       `json:"duration_ms"`
	WorkerID     *string     `json:"worker_id,omitempty"`
	StartedAt    *int64      `json:"started_at,omitempty"`
	CompletedAt  *int64      `json:"completed_at,omitempty"`
	CreatedAt    int64       `json:"created_at"`
}

type ExecutionLogEntryResponse struct {
	Sequence  int64       `json:"sequence"`
	Timestamp int64       `json:"timestamp"`
	Level     string      `json:"level"`
	Message   string      `json:"message"`
	Metadata  interface{} `json:"metadata,omitempty"`
}

// WorkflowResponse exposes the read-only slice of the Workflow Registry
// Record the Core needs (spec §3); the catalog that owns writes is out
// of scope.
type WorkflowResponse struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	FunctionName     string        `json:"function_name"`
	Path             string        `json:"path"`
	Type             string        `json:"type"`
	ParametersSchema interface{}   `json:"parameters_schema"`
	Schedule         *string       `json:"schedule,omitempty"`
	TimeoutSeconds   int           `json:"timeout_seconds"`
	ExecutionMode    string        `json:"execution_mode"`
	EndpointEnabled  bool          `json:"endpoint_enabled"`
	IsActive         bool          `json:"is_active"`
	NextDueAt        *int64        `json:"next_due_at,omitempty"`
}

// QueueStatusResponse answers §4.3's depth/position surface.
type QueueStatusResponse struct {
	Depth int64 `json:"depth"`
}

type QueuePositionResponse struct {
	ExecutionID string `json:"execution_id"`
	Position    int64  `json:"position"`
}

// WorkerResponse is one row of the C5 worker-slot admin view, read
// directly off the Redis keyspace heartbeats write to.
type WorkerResponse struct {
	WorkerID    string `json:"worker_id"`
	State       string `json:"state"`
	ExecutionID string `json:"execution_id,omitempty"`
	UpdatedAt   int64  `json:"updated_at"`
}
