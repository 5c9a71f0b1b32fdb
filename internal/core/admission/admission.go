// Package admission implements the Admission Gate (spec §4.1): the
// single entry point that resolves a workflow reference, authorizes the
// caller, writes the ephemeral and (for sync calls) durable execution
// state, and hands the work to the broker.
package admission

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/core/execerr"
	"github.com/bifrostlabs/bifrost/internal/core/pending"
	"github.com/bifrostlabs/bifrost/internal/core/queuetracker"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/bifrostlabs/bifrost/internal/domain/services"
	"github.com/bifrostlabs/bifrost/internal/pkg/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Request is the admit() input contract from §4.1.
type Request struct {
	WorkflowID   *uuid.UUID
	Path         string
	FunctionName string
	Parameters   models.JSON
	Caller       authz.Caller
	TriggerType  string
	Sync         bool
	ExecutionID  *uuid.UUID // required for sync
	Code         *string    // base64 inline script body, trigger=inline_script

	// EventDeliveryID correlates the admitted execution back to the
	// webhook delivery row that triggered it (§4.10), if any.
	EventDeliveryID *uuid.UUID
}

type Gate struct {
	workflows    *services.WorkflowService
	authz        *authz.Resolver
	pendingStore *pending.Store
	queueTracker *queuetracker.Tracker
	broker       *queue.Client
	executions   *repositories.ExecutionRepository
	limiters     *rate.Limiter
}

// New builds a Gate with a single process-wide rate limiter (50
// admissions/s, burst 100) shared by every caller and every org.
func New(
	workflows *services.WorkflowService,
	resolver *authz.Resolver,
	pendingStore *pending.Store,
	queueTracker *queuetracker.Tracker,
	broker *queue.Client,
	executions *repositories.ExecutionRepository,
) *Gate {
	return &Gate{
		workflows:    workflows,
		authz:        resolver,
		pendingStore: pendingStore,
		queueTracker: queueTracker,
		broker:       broker,
		executions:   executions,
		// default: 50 admissions/sec per process, bursting to 100; a
		// per-org variant would need a limiter registry, left for the
		// ingress layer to compose if it needs finer granularity.
		limiters: rate.NewLimiter(rate.Limit(50), 100),
	}
}

// Admit performs steps (a)-(f) of §4.1 and returns the execution id the
// caller should poll, subscribe to, or BLPOP on.
func (g *Gate) Admit(ctx context.Context, req Request) (uuid.UUID, error) {
	if req.Sync && req.ExecutionID == nil {
		return uuid.Nil, execerr.New(execerr.ValidationError, "sync admission requires a caller-supplied execution_id")
	}
	if !g.limiters.Allow() {
		return uuid.Nil, execerr.New(execerr.TransientInfrastructure, "admission rate limit exceeded")
	}

	wf, err := g.workflows.Resolve(ctx, req.WorkflowID, req.Path, req.FunctionName)
	if err != nil {
		return uuid.Nil, execerr.Wrap(execerr.WorkflowNotFound, "workflow lookup failed", err)
	}

	allowed, err := g.authz.CanExecute(ctx, wf.ID, req.Caller)
	if err != nil {
		return uuid.Nil, execerr.Wrap(execerr.TransientInfrastructure, "authorization lookup failed", err)
	}
	if !allowed {
		return uuid.Nil, execerr.New(execerr.NotAuthorized, "caller is not authorized to execute this workflow")
	}

	executionID := uuid.New()
	if req.ExecutionID != nil {
		executionID = *req.ExecutionID
	}

	if req.Sync {
		if err := g.createDurablePending(ctx, executionID, wf, req); err != nil {
			return uuid.Nil, execerr.Wrap(execerr.TransientInfrastructure, "failed to write durable pending record", err)
		}
	}

	rec := &pending.Record{
		ExecutionID:  executionID,
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		Path:         wf.Path,
		FunctionName: wf.FunctionName,
		Parameters:   req.Parameters,
		TriggerType:  req.TriggerType,
		OrgID:        req.Caller.OrgID,
		Identity:     req.Caller.Identity,
		IsSuperuser:  req.Caller.IsSuperuser,
		IsAPIKey:     req.Caller.IsAPIKey,
		Sync:         req.Sync,
		TimeoutSecs:  wf.TimeoutSeconds,
		EnqueuedAt:   time.Now(),

		EventDeliveryID: req.EventDeliveryID,
	}
	if err := g.pendingStore.Set(ctx, rec); err != nil {
		return uuid.Nil, execerr.Wrap(execerr.TransientInfrastructure, "failed to write pending execution", err)
	}

	if _, err := g.queueTracker.Add(ctx, executionID); err != nil {
		log.Warn().Err(err).Str("execution_id", executionID.String()).Msg("queue tracker add failed, proceeding with dispatch")
	}

	msg := queue.DispatchMessage{
		ExecutionID:  executionID,
		WorkflowName: wf.Name,
		Sync:         req.Sync,
	}
	if req.Code != nil {
		encoded := base64.StdEncoding.EncodeToString([]byte(*req.Code))
		msg.Code = &encoded
	}
	if _, err := g.broker.Dispatch(ctx, msg); err != nil {
		// Best-effort cleanup; the pending record will TTL-evict even if
		// this fails, and the queue tracker entry is swept after max_age.
		_ = g.pendingStore.Delete(ctx, executionID)
		_ = g.queueTracker.Remove(ctx, executionID)
		return uuid.Nil, execerr.Wrap(execerr.TransientInfrastructure, "failed to publish dispatch message", err)
	}

	return executionID, nil
}

func (g *Gate) createDurablePending(ctx context.Context, executionID uuid.UUID, wf *models.Workflow, req Request) error {
	orgID := resolveOrgID(wf, req.Caller)
	row := &models.Execution{
		ID:              executionID,
		WorkflowID:      wf.ID,
		WorkflowName:    wf.Name,
		OrganizationID:  orgID,
		Status:          models.ExecutionStatusPending,
		TriggerType:     req.TriggerType,
		Parameters:      req.Parameters,
		ExecutedBy:      req.Caller.Identity,
		EventDeliveryID: req.EventDeliveryID,
	}
	if req.Caller.IsAPIKey {
		row.APIKeyID = req.Caller.Identity
	}
	return g.executions.Create(ctx, row)
}

// resolveOrgID applies invariant 5's precedence: an explicit caller org
// wins, falling back to the workflow's own organization.
func resolveOrgID(wf *models.Workflow, caller authz.Caller) *uuid.UUID {
	if caller.OrgID != nil {
		return caller.OrgID
	}
	return wf.OrganizationID
}
