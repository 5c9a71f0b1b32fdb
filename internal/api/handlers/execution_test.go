package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bifrostlabs/bifrost/internal/api/middleware"
	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/core/execerr"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/google/uuid"
)

func TestResolveTriggerType(t *testing.T) {
	if got := resolveTriggerType(authz.Caller{IsAPIKey: true}); got != models.TriggerAPIKey {
		t.Errorf("resolveTriggerType(api key) = %q, want %q", got, models.TriggerAPIKey)
	}
	if got := resolveTriggerType(authz.Caller{}); got != models.TriggerUser {
		t.Errorf("resolveTriggerType(user) = %q, want %q", got, models.TriggerUser)
	}
}

func TestSyncExecutionID(t *testing.T) {
	if id := syncExecutionID(false); id != nil {
		t.Errorf("syncExecutionID(false) = %v, want nil", id)
	}
	id := syncExecutionID(true)
	if id == nil {
		t.Fatal("syncExecutionID(true) = nil, want a generated id")
	}
	if *id == uuid.Nil {
		t.Error("syncExecutionID(true) returned the nil uuid")
	}
}

func withCaller(r *http.Request, caller authz.Caller) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.CallerContextKey, caller)
	return r.WithContext(ctx)
}

func TestCanAccessExecutionSuperuser(t *testing.T) {
	r := withCaller(httptest.NewRequest(http.MethodGet, "/", nil), authz.Caller{IsSuperuser: true})
	exec := &models.Execution{}
	if !canAccessExecution(r, exec) {
		t.Error("superuser should access any execution")
	}
}

func TestCanAccessExecutionSameOrg(t *testing.T) {
	orgID := uuid.New()
	r := withCaller(httptest.NewRequest(http.MethodGet, "/", nil), authz.Caller{OrgID: &orgID})
	exec := &models.Execution{OrganizationID: &orgID}
	if !canAccessExecution(r, exec) {
		t.Error("caller in the same org should access the execution")
	}
}

func TestCanAccessExecutionDifferentOrg(t *testing.T) {
	callerOrg, execOrg := uuid.New(), uuid.New()
	r := withCaller(httptest.NewRequest(http.MethodGet, "/", nil), authz.Caller{OrgID: &callerOrg})
	exec := &models.Execution{OrganizationID: &execOrg}
	if canAccessExecution(r, exec) {
		t.Error("caller in a different org should not access the execution")
	}
}

func TestCanAccessExecutionOwnedByIdentity(t *testing.T) {
	identity := uuid.New()
	r := withCaller(httptest.NewRequest(http.MethodGet, "/", nil), authz.Caller{Identity: &identity})
	exec := &models.Execution{ExecutedBy: &identity}
	if !canAccessExecution(r, exec) {
		t.Error("caller who triggered the execution should access it")
	}
}

func TestCanAccessExecutionNoMatch(t *testing.T) {
	r := withCaller(httptest.NewRequest(http.MethodGet, "/", nil), authz.Caller{})
	exec := &models.Execution{}
	if canAccessExecution(r, exec) {
		t.Error("anonymous caller should not access an execution it doesn't own")
	}
}

func TestWriteAdmissionError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not authorized", execerr.New(execerr.NotAuthorized, "nope"), http.StatusForbidden},
		{"workflow not found", execerr.New(execerr.WorkflowNotFound, "missing"), http.StatusNotFound},
		{"validation error", execerr.New(execerr.ValidationError, "bad input"), http.StatusBadRequest},
		{"transient infra", execerr.New(execerr.TransientInfrastructure, "redis down"), http.StatusServiceUnavailable},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeAdmissionError(w, c.err)
			if w.Code != c.want {
				t.Errorf("writeAdmissionError(%v) status = %d, want %d", c.err, w.Code, c.want)
			}
		})
	}
}

func TestToExecutionResponse(t *testing.T) {
	workflowID := uuid.New()
	exec := &models.Execution{
		WorkflowID:   workflowID,
		WorkflowName: "sync-invoices",
		Status:       models.ExecutionStatusSuccess,
		TriggerType:  models.TriggerUser,
	}

	resp := toExecutionResponse(exec)
	if resp.WorkflowID != workflowID.String() {
		t.Errorf("WorkflowID = %q, want %q", resp.WorkflowID, workflowID.String())
	}
	if resp.Status != models.ExecutionStatusSuccess {
		t.Errorf("Status = %q, want %q", resp.Status, models.ExecutionStatusSuccess)
	}
	if resp.StartedAt != nil || resp.CompletedAt != nil {
		t.Error("unset StartedAt/CompletedAt should stay nil in the response")
	}
}
