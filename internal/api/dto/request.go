package dto

import "github.com/bifrostlabs/bifrost/internal/domain/models"

// Auth
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// AdmitExecutionRequest is the admission gate's request contract from
// spec §4.1: callers identify the workflow either by id or by
// path+function_name. When workflow_id is set it is used and path and
// function_name are ignored.
type AdmitExecutionRequest struct {
	WorkflowID   *string     `json:"workflow_id,omitempty" validate:"omitempty,uuid"`
	Path         string      `json:"path,omitempty"`
	FunctionName string      `json:"function_name,omitempty"`
	Parameters   models.JSON `json:"parameters,omitempty"`
	Sync         bool        `json:"sync,omitempty"`
}

// ExecuteWorkflowToolRequest is the MCP-style execute-workflow tool's
// request body (SPEC_FULL.md §7), shaped around the same admission
// fields an agent-triggered call needs.
type ExecuteWorkflowToolRequest struct {
	WorkflowID   *string     `json:"workflow_id,omitempty" validate:"omitempty,uuid"`
	Path         string      `json:"path,omitempty"`
	FunctionName string      `json:"function_name,omitempty"`
	Parameters   models.JSON `json:"parameters,omitempty"`
}

// Pagination
type PaginationRequest struct {
	Page    int    `json:"page" validate:"omitempty,min=1"`
	PerPage int    `json:"per_page" validate:"omitempty,min=1,max=100"`
	OrderBy string `json:"order_by,omitempty"`
	Order   string `json:"order,omitempty" validate:"omitempty,oneof=asc desc"`
}
