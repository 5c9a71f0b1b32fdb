package handlers

import (
	"net/http"
	"strconv"

	"github.com/bifrostlabs/bifrost/internal/api/dto"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/bifrostlabs/bifrost/internal/domain/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// WorkflowHandler is a read-only view onto the Workflow Registry Record
// (§3); the registry itself is owned by the out-of-scope catalog
// importer, so this handler never writes anything but is_active.
type WorkflowHandler struct {
	workflowSvc *services.WorkflowService
}

func NewWorkflowHandler(workflowSvc *services.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflowSvc: workflowSvc}
}

func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	opts := repositories.NewListOptions(page, perPage)

	workflows, total, err := h.workflowSvc.ListActive(r.Context(), opts)
	if err != nil {
		dto.InternalServerError(w, "failed to list workflows")
		return
	}

	response := make([]dto.WorkflowResponse, 0, len(workflows))
	for i := range workflows {
		response = append(response, toWorkflowResponse(&workflows[i]))
	}

	totalPages := int(total) / opts.Limit
	if int(total)%opts.Limit > 0 {
		totalPages++
	}
	dto.JSONWithMeta(w, http.StatusOK, response, &dto.Meta{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages})
}

func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	workflowID, err := uuid.Parse(chi.URLParam(r, "workflowID"))
	if err != nil {
		dto.BadRequest(w, "invalid workflow id")
		return
	}

	wf, err := h.workflowSvc.GetByID(r.Context(), workflowID)
	if err != nil {
		dto.NotFound(w, "workflow")
		return
	}

	dto.JSON(w, http.StatusOK, toWorkflowResponse(wf))
}

// SetActive toggles the is_active flag, the one mutation this core
// owns on the registry record (§4.9 relies on it to stop firing a
// retired schedule).
func (h *WorkflowHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	workflowID, err := uuid.Parse(chi.URLParam(r, "workflowID"))
	if err != nil {
		dto.BadRequest(w, "invalid workflow id")
		return
	}

	active := r.URL.Query().Get("active") != "false"
	if err := h.workflowSvc.SetActive(r.Context(), workflowID, active); err != nil {
		dto.InternalServerError(w, "failed to update workflow")
		return
	}

	dto.OK(w, map[string]bool{"is_active": active})
}

func toWorkflowResponse(wf *models.Workflow) dto.WorkflowResponse {
	var nextDueAt *int64
	if wf.NextDueAt != nil {
		ts := wf.NextDueAt.Unix()
		nextDueAt = &ts
	}
	return dto.WorkflowResponse{
		ID:               wf.ID.String(),
		Name:             wf.Name,
		FunctionName:     wf.FunctionName,
		Path:             wf.Path,
		Type:             wf.Type,
		ParametersSchema: wf.ParametersSchema,
		Schedule:         wf.Schedule,
		TimeoutSeconds:   wf.TimeoutSeconds,
		ExecutionMode:    wf.ExecutionMode,
		EndpointEnabled:  wf.EndpointEnabled,
		IsActive:         wf.IsActive,
		NextDueAt:        nextDueAt,
	}
}
