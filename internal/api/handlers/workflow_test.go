package handlers

import (
	"testing"
	"time"

	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/google/uuid"
)

func TestToWorkflowResponseWithSchedule(t *testing.T) {
	due := time.Unix(1700000000, 0)
	wf := &models.Workflow{
		ID:             uuid.New(),
		Name:           "sync-invoices",
		FunctionName:   "sync_invoices",
		Path:           "workflows/billing/sync_invoices.py",
		Type:           "scheduled",
		TimeoutSeconds: 120,
		ExecutionMode:  "async",
		IsActive:       true,
		NextDueAt:      &due,
	}

	resp := toWorkflowResponse(wf)
	if resp.ID != wf.ID.String() {
		t.Errorf("ID = %q, want %q", resp.ID, wf.ID.String())
	}
	if resp.NextDueAt == nil || *resp.NextDueAt != due.Unix() {
		t.Errorf("NextDueAt = %v, want %d", resp.NextDueAt, due.Unix())
	}
}

func TestToWorkflowResponseWithoutSchedule(t *testing.T) {
	wf := &models.Workflow{ID: uuid.New(), Name: "ad-hoc"}
	resp := toWorkflowResponse(wf)
	if resp.NextDueAt != nil {
		t.Errorf("NextDueAt = %v, want nil", resp.NextDueAt)
	}
}
