package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bifrostlabs/bifrost/internal/api/dto"
	"github.com/bifrostlabs/bifrost/internal/api/middleware"
	"github.com/bifrostlabs/bifrost/internal/core/admission"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/pkg/validator"
	"github.com/google/uuid"
)

// MCPHandler exposes the execute_workflow tool (SPEC_FULL.md §7), an
// agent-facing admission entrypoint grounded on the MCP tool surface of
// the original service: same admission gate, trigger_type=agent_tool.
type MCPHandler struct {
	gate *admission.Gate
}

func NewMCPHandler(gate *admission.Gate) *MCPHandler {
	return &MCPHandler{gate: gate}
}

// ExecuteWorkflowTool handles `POST /api/mcp/tools/execute_workflow`.
func (h *MCPHandler) ExecuteWorkflowTool(w http.ResponseWriter, r *http.Request) {
	var req dto.ExecuteWorkflowToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		dto.BadRequest(w, "invalid request body")
		return
	}
	if err := validator.Validate(&req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return
	}

	var workflowID *uuid.UUID
	if req.WorkflowID != nil {
		id, err := uuid.Parse(*req.WorkflowID)
		if err != nil {
			dto.BadRequest(w, "invalid workflow_id")
			return
		}
		workflowID = &id
	}

	caller := middleware.GetCallerFromContext(r.Context())
	execID, err := h.gate.Admit(r.Context(), admission.Request{
		WorkflowID:   workflowID,
		Path:         req.Path,
		FunctionName: req.FunctionName,
		Parameters:   req.Parameters,
		Caller:       caller,
		TriggerType:  models.TriggerAgentTool,
	})
	if err != nil {
		writeAdmissionError(w, err)
		return
	}

	dto.JSON(w, http.StatusAccepted, dto.AdmitResponse{ExecutionID: execID.String(), Status: models.ExecutionStatusPending})
}
