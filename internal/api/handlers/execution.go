package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/bifrostlabs/bifrost/internal/api/dto"
	"github.com/bifrostlabs/bifrost/internal/api/middleware"
	"github.com/bifrostlabs/bifrost/internal/core/admission"
	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/core/cancelsignal"
	"github.com/bifrostlabs/bifrost/internal/core/execerr"
	"github.com/bifrostlabs/bifrost/internal/core/queuetracker"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/bifrostlabs/bifrost/internal/pkg/validator"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ExecutionHandler exposes the Admission Gate (C1), execution query, and
// cancellation surface named in §5.
type ExecutionHandler struct {
	gate          *admission.Gate
	executions    *repositories.ExecutionRepository
	logs          *repositories.ExecutionLogRepository
	queueTracker  *queuetracker.Tracker
	cancelSignal  *cancelsignal.Signal
	cancelGraceMs int
}

func NewExecutionHandler(
	gate *admission.Gate,
	executions *repositories.ExecutionRepository,
	logs *repositories.ExecutionLogRepository,
	queueTracker *queuetracker.Tracker,
	cancelSignal *cancelsignal.Signal,
	cancelGraceSeconds int,
) *ExecutionHandler {
	return &ExecutionHandler{
		gate:          gate,
		executions:    executions,
		logs:          logs,
		queueTracker:  queueTracker,
		cancelSignal:  cancelSignal,
		cancelGraceMs: cancelGraceSeconds,
	}
}

// Admit is the `POST /executions` admission entrypoint, §4.1's admit().
func (h *ExecutionHandler) Admit(w http.ResponseWriter, r *http.Request) {
	var req dto.AdmitExecutionRequest
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
		TriggerType:  resolveTriggerType(caller),
		Sync:         req.Sync,
		ExecutionID:  syncExecutionID(req.Sync),
	})
	if err != nil {
		writeAdmissionError(w, err)
		return
	}

	dto.JSON(w, http.StatusAccepted, dto.AdmitResponse{ExecutionID: execID.String(), Status: models.ExecutionStatusPending})
}

// resolveTriggerType distinguishes an API-key caller (agent/automation)
// from an end-user session per the trigger_type enum in §3.
func resolveTriggerType(caller authz.Caller) string {
	if caller.IsAPIKey {
		return models.TriggerAPIKey
	}
	return models.TriggerUser
}

func syncExecutionID(sync bool) *uuid.UUID {
	if !sync {
		return nil
	}
	id := uuid.New()
	return &id
}

func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	executionID, err := uuid.Parse(chi.URLParam(r, "executionID"))
	if err != nil {
		dto.BadRequest(w, "invalid execution id")
		return
	}

	execution, err := h.executions.FindByID(r.Context(), executionID)
	if err != nil {
		dto.NotFound(w, "execution")
		return
	}
	if !canAccessExecution(r, execution) {
		dto.Forbidden(w, "not authorized to view this execution")
		return
	}

	dto.JSON(w, http.StatusOK, toExecutionResponse(execution))
}

func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCallerFromContext(r.Context())
	if caller.OrgID == nil {
		dto.Forbidden(w, "organization context required")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	opts := repositories.NewListOptions(page, perPage)

	var executions []models.Execution
	var total int64
	var err error
	if status := r.URL.Query().Get("status"); status != "" {
		executions, total, err = h.executions.FindByStatus(r.Context(), status, opts)
	} else {
		executions, total, err = h.executions.FindByOrganizationID(r.Context(), *caller.OrgID, opts)
	}
	if err != nil {
		dto.InternalServerError(w, "failed to list executions")
		return
	}

	response := make([]dto.ExecutionResponse, 0, len(executions))
	for i := range executions {
		response = append(response, toExecutionResponse(&executions[i]))
	}

	totalPages := int(total) / opts.Limit
	if int(total)%opts.Limit > 0 {
		totalPages++
	}
	dto.JSONWithMeta(w, http.StatusOK, response, &dto.Meta{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages})
}

// Logs returns log entries after since_sequence, the durable complement
// to the WebSocket update channel for callers that reconnect (§4.8).
func (h *ExecutionHandler) Logs(w http.ResponseWriter, r *http.Request) {
	executionID, err := uuid.Parse(chi.URLParam(r, "executionID"))
	if err != nil {
		dto.BadRequest(w, "invalid execution id")
		return
	}

	execution, err := h.executions.FindByID(r.Context(), executionID)
	if err != nil {
		dto.NotFound(w, "execution")
		return
	}
	if !canAccessExecution(r, execution) {
		dto.Forbidden(w, "not authorized to view this execution")
		return
	}

	since, _ := strconv.ParseInt(r.URL.Query().Get("since_sequence"), 10, 64)
	rows, err := h.logs.FindSinceSequence(r.Context(), executionID, since)
	if err != nil {
		dto.InternalServerError(w, "failed to fetch execution logs")
		return
	}

	response := make([]dto.ExecutionLogEntryResponse, 0, len(rows))
	for _, l := range rows {
		response = append(response, dto.ExecutionLogEntryResponse{
			Sequence:  l.Sequence,
			Timestamp: l.Timestamp.Unix(),
			Level:     l.Level,
			Message:   l.Message,
			Metadata:  l.Metadata,
		})
	}
	dto.JSON(w, http.StatusOK, response)
}

// Cancel requests cancellation per §4.6 step 6: write Cancelling durably,
// then raise the Redis signal the running worker polls cooperatively.
func (h *ExecutionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	executionID, err := uuid.Parse(chi.URLParam(r, "executionID"))
	if err != nil {
		dto.BadRequest(w, "invalid execution id")
		return
	}

	execution, err := h.executions.FindByID(r.Context(), executionID)
	if err != nil {
		dto.NotFound(w, "execution")
		return
	}
	if !canAccessExecution(r, execution) {
		dto.Forbidden(w, "not authorized to cancel this execution")
		return
	}

	affected, err := h.executions.RequestCancel(r.Context(), executionID)
	if err != nil {
		dto.InternalServerError(w, "failed to request cancellation")
		return
	}
	if affected == 0 {
		dto.BadRequest(w, "execution is not in a cancellable state")
		return
	}

	grace := time.Duration(h.cancelGraceMs) * time.Second
	if err := h.cancelSignal.Raise(r.Context(), executionID, grace); err != nil {
		dto.InternalServerError(w, "failed to raise cancel signal")
		return
	}

	dto.OK(w, map[string]string{"status": models.ExecutionStatusCancelling})
}

func (h *ExecutionHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	depth, err := h.queueTracker.Depth(r.Context())
	if err != nil {
		dto.InternalServerError(w, "failed to read queue depth")
		return
	}
	dto.JSON(w, http.StatusOK, dto.QueueStatusResponse{Depth: depth})
}

func (h *ExecutionHandler) QueuePosition(w http.ResponseWriter, r *http.Request) {
	executionID, err := uuid.Parse(chi.URLParam(r, "executionID"))
	if err != nil {
		dto.BadRequest(w, "invalid execution id")
		return
	}
	pos, err := h.queueTracker.Position(r.Context(), executionID)
	if err != nil {
		dto.InternalServerError(w, "failed to read queue position")
		return
	}
	dto.JSON(w, http.StatusOK, dto.QueuePositionResponse{ExecutionID: executionID.String(), Position: pos})
}

func canAccessExecution(r *http.Request, execution *models.Execution) bool {
	caller := middleware.GetCallerFromContext(r.Context())
	if caller.IsSuperuser {
		return true
	}
	if caller.OrgID != nil && execution.OrganizationID != nil && *caller.OrgID == *execution.OrganizationID {
		return true
	}
	return caller.Identity != nil && execution.ExecutedBy != nil && *caller.Identity == *execution.ExecutedBy
}

func toExecutionResponse(e *models.Execution) dto.ExecutionResponse {
	var startedAt, completedAt *int64
	if e.StartedAt != nil {
		ts := e.StartedAt.Unix()
		startedAt = &ts
	}
	if e.CompletedAt != nil {
		ts := e.CompletedAt.Unix()
		completedAt = &ts
	}
	return dto.ExecutionResponse{
		ID:           e.ID.String(),
		WorkflowID:   e.WorkflowID.String(),
		WorkflowName: e.WorkflowName,
		Status:       e.Status,
		TriggerType:  e.TriggerType,
		Parameters:   e.Parameters,
		Result:       e.Result,
		Error:        e.Error,
		ErrorType:    e.ErrorType,
		DurationMs:   e.DurationMs,
		WorkerID:     e.WorkerID,
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		CreatedAt:    e.CreatedAt.Unix(),
	}
}

// writeAdmissionError maps the execerr taxonomy onto HTTP status, per
// §7's propagation policy.
func writeAdmissionError(w http.ResponseWriter, err error) {
	kind := execerr.Classify(err)
	switch kind {
	case execerr.NotAuthorized:
		dto.Forbidden(w, err.Error())
	case execerr.WorkflowNotFound:
		dto.NotFound(w, "workflow")
	case execerr.ValidationError:
		dto.BadRequest(w, err.Error())
	case execerr.TransientInfrastructure:
		dto.ServiceUnavailable(w, err.Error())
	default:
		dto.InternalServerError(w, err.Error())
	}
}
