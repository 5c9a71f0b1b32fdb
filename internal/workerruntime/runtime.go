// Package workerruntime implements the Worker Runtime (spec §4.6): the
// per-dispatch-message handler that runs inside a single worker OS
// process spawned by the worker pool manager. One Runtime consumes
// exactly one dispatch message at a time (prefetch=1, concurrency=1).
package workerruntime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/core/cancelsignal"
	"github.com/bifrostlabs/bifrost/internal/core/execerr"
	"github.com/bifrostlabs/bifrost/internal/core/fanout"
	"github.com/bifrostlabs/bifrost/internal/core/pending"
	"github.com/bifrostlabs/bifrost/internal/core/queuetracker"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/bifrostlabs/bifrost/internal/pkg/queue"
	"github.com/bifrostlabs/bifrost/internal/pkg/secrets"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// executionStore is the slice of ExecutionRepository the worker runtime's
// FSM needs, narrow enough for tests to substitute an in-memory fake and
// exercise the §8 boundary behaviors without a database.
type executionStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Execution, error)
	Create(ctx context.Context, row *models.Execution) error
	MarkRunning(ctx context.Context, executionID uuid.UUID, workerID string) (int64, error)
	MarkTerminal(ctx context.Context, executionID uuid.UUID, status string, result models.JSON, execErr, errorType *string, durationMs int64) (int64, error)
}

// workflowStore is the slice of WorkflowRepository run() needs to load
// the workflow a dispatch message refers to.
type workflowStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
}

// deliveryStore is the slice of EventDeliveryRepository the terminal-state
// hook needs to feed an execution's outcome back onto its webhook
// delivery row (§4.10).
type deliveryStore interface {
	MarkSuccess(ctx context.Context, deliveryID uuid.UUID) error
	MarkFailed(ctx context.Context, deliveryID uuid.UUID, lastError string, nextRetryAt *time.Time) error
}

type Runtime struct {
	workerID     string
	pendingStore *pending.Store
	executions   executionStore
	logs         *repositories.ExecutionLogRepository
	workflows    workflowStore
	deliveries   deliveryStore
	authz        *authz.Resolver
	fanout       *fanout.Publisher
	queueTracker *queuetracker.Tracker
	cancelSignal *cancelsignal.Signal
	modules      *ModuleCache
	sandbox      *Sandbox
	heartbeat    *Heartbeat
}

func New(
	workerID string,
	pendingStore *pending.Store,
	executions executionStore,
	logs *repositories.ExecutionLogRepository,
	workflows workflowStore,
	deliveries deliveryStore,
	authzResolver *authz.Resolver,
	fanoutPublisher *fanout.Publisher,
	queueTracker *queuetracker.Tracker,
	cancelSignal *cancelsignal.Signal,
	modules *ModuleCache,
	heartbeat *Heartbeat,
) *Runtime {
	return &Runtime{
		workerID:     workerID,
		pendingStore: pendingStore,
		executions:   executions,
		logs:         logs,
		workflows:    workflows,
		deliveries:   deliveries,
		authz:        authzResolver,
		fanout:       fanoutPublisher,
		queueTracker: queueTracker,
		cancelSignal: cancelSignal,
		modules:      modules,
		sandbox:      NewSandbox(),
		heartbeat:    heartbeat,
	}
}

// Handle is the asynq.HandlerFunc for the workflow-executions queue.
func (rt *Runtime) Handle(ctx context.Context, task *asynq.Task) error {
	var msg queue.DispatchMessage
	if err := decodeTask(task, &msg); err != nil {
		log.Error().Err(err).Msg("worker runtime: malformed dispatch message, acking")
		return nil
	}

	err := rt.run(ctx, msg)
	if err != nil && errors.Is(err, errRedeliver) {
		return fmt.Errorf("transient failure, requesting redelivery: %w", errors.Unwrap(err))
	}
	return nil // every other outcome writes terminal state and acks
}

var errRedeliver = errors.New("redeliver")

func wrapRedeliver(err error) error { return fmt.Errorf("%w: %v", errRedeliver, err) }

// run implements the 11 steps of §4.6.
func (rt *Runtime) run(ctx context.Context, msg queue.DispatchMessage) error {
	// Step 1: read Pending Execution; if missing and durable is already
	// terminal, this is a redelivery after the worker already finished.
	rec, err := rt.pendingStore.Get(ctx, msg.ExecutionID)
	if errors.Is(err, pending.ErrNotFound) {
		existing, findErr := rt.executions.FindByID(ctx, msg.ExecutionID)
		if findErr != nil {
			log.Warn().Str("execution_id", msg.ExecutionID.String()).Msg("worker runtime: pending missing and no durable record; dropping")
			return nil
		}
		if models.IsTerminalExecutionStatus(existing.Status) {
			return nil // idempotent redelivery, ack
		}
		// Durable is Pending with no ephemeral record: TTL expired before
		// pickup (boundary behavior in §8).
		errType := string(execerr.AdmissionExpired)
		errMsg := "pending execution expired before a worker picked it up"
		if _, mErr := rt.executions.MarkTerminal(ctx, msg.ExecutionID, models.ExecutionStatusFailed, nil, &errMsg, &errType, 0); mErr != nil {
			return wrapRedeliver(mErr)
		}
		_ = rt.fanout.PublishStatus(ctx, msg.ExecutionID, models.ExecutionStatusFailed)
		_ = rt.queueTracker.Remove(ctx, msg.ExecutionID)
		if existing.EventDeliveryID != nil {
			rt.markDeliveryOutcome(ctx, *existing.EventDeliveryID, models.ExecutionStatusFailed)
		}
		return nil
	} else if err != nil {
		return wrapRedeliver(err)
	}

	wf, err := rt.workflows.FindByID(ctx, rec.WorkflowID)
	if err != nil {
		return wrapRedeliver(err)
	}

	// Step 2: resolve org_id (invariant 5) — explicit caller org wins,
	// else workflow's own org.
	orgID := rec.OrgID
	if orgID == nil {
		orgID = wf.OrganizationID
	}

	// Step 3: ensure durable record exists and transition to Running.
	if err := rt.ensureDurableRecord(ctx, rec, wf, orgID); err != nil {
		return wrapRedeliver(err)
	}
	if n, err := rt.executions.MarkRunning(ctx, msg.ExecutionID, rt.workerID); err != nil {
		return wrapRedeliver(err)
	} else if n == 0 {
		current, findErr := rt.executions.FindByID(ctx, msg.ExecutionID)
		if findErr == nil && current.Status == models.ExecutionStatusCancelling {
			// Cancel-before-start boundary (§8): admission's Cancel handler
			// moved the durable row to Cancelling while this message sat on
			// the queue, so this worker never runs the script.
			return rt.finishCancelledBeforeStart(ctx, msg.ExecutionID, rec)
		}
		// Already Running/terminal under a different worker: treat as a
		// stuck/duplicate-delivery case and ack.
		return nil
	}
	_ = rt.fanout.PublishStatus(ctx, msg.ExecutionID, models.ExecutionStatusRunning)
	if rt.heartbeat != nil {
		_ = rt.heartbeat.Busy(ctx, msg.ExecutionID.String())
	}

	// Step 4: authorization re-check.
	allowed, err := rt.authz.CanExecute(ctx, wf.ID, authz.Caller{
		Identity:    rec.Identity,
		OrgID:       orgID,
		IsSuperuser: rec.IsSuperuser,
		IsAPIKey:    rec.IsAPIKey,
	})
	if err != nil {
		return wrapRedeliver(err)
	}
	if !allowed {
		return rt.finishDenied(ctx, msg.ExecutionID, rec)
	}

	// Step 5: load code.
	var source string
	if msg.Code != nil {
		raw, decErr := base64.StdEncoding.DecodeString(*msg.Code)
		if decErr != nil {
			return rt.finishFailed(ctx, msg.ExecutionID, rec, execerr.ValidationError, "inline script is not valid base64")
		}
		source = string(raw)
	} else {
		content, _, mErr := rt.modules.Resolve(ctx, rec.Path)
		if mErr != nil {
			return rt.finishFailed(ctx, msg.ExecutionID, rec, execerr.ModuleNotFound, fmt.Sprintf("module not found at %s", rec.Path))
		}
		source = content
	}

	// Step 6: execute under wall-clock budget with cooperative cancel.
	timeout := time.Duration(rec.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go rt.watchCancellation(runCtx, cancel, msg.ExecutionID)

	secretReg := secrets.New()
	seq := int64(0)
	startedAt := time.Now()
	result, runErr := rt.sandbox.Run(runCtx, source, wf.FunctionName, rec.Parameters, secretReg, func(level, message string) {
		seq++
		_ = rt.fanout.AppendLog(ctx, msg.ExecutionID, seq, level, secretReg.Redact(message), nil)
	})
	duration := time.Since(startedAt).Milliseconds()

	return rt.finishRun(ctx, msg.ExecutionID, rec, runCtx, result, runErr, duration, secretReg)
}

func (rt *Runtime) watchCancellation(ctx context.Context, cancel context.CancelFunc, executionID uuid.UUID) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cancelling, err := rt.cancelSignal.IsCancelling(ctx, executionID)
			if err == nil && cancelling {
				cancel()
				return
			}
		}
	}
}

func (rt *Runtime) ensureDurableRecord(ctx context.Context, rec *pending.Record, wf *models.Workflow, orgID *uuid.UUID) error {
	existing, err := rt.executions.FindByID(ctx, rec.ExecutionID)
	if err == nil && existing != nil {
		return nil // sync caller already created it at admission
	}
	row := &models.Execution{
		ID:              rec.ExecutionID,
		WorkflowID:      wf.ID,
		WorkflowName:    wf.Name,
		OrganizationID:  orgID,
		Status:          models.ExecutionStatusPending,
		TriggerType:     rec.TriggerType,
		Parameters:      rec.Parameters,
		ExecutedBy:      rec.Identity,
		EventDeliveryID: rec.EventDeliveryID,
	}
	if rec.IsAPIKey {
		row.APIKeyID = rec.Identity
	}
	return rt.executions.Create(ctx, row)
}

func (rt *Runtime) finishDenied(ctx context.Context, executionID uuid.UUID, rec *pending.Record) error {
	errType := string(execerr.NotAuthorized)
	msg := "caller is not authorized to execute this workflow"
	if _, err := rt.executions.MarkTerminal(ctx, executionID, models.ExecutionStatusFailed, nil, &msg, &errType, 0); err != nil {
		return wrapRedeliver(err)
	}
	rt.cleanupTerminal(ctx, executionID, models.ExecutionStatusFailed, nil, &msg, &errType, rec)
	return nil
}

// finishCancelledBeforeStart writes the Cancelling→Cancelled terminal
// transition directly, without running any code, for the boundary case
// where the execution was already cancelled by the time this worker
// picked up the dispatch message (spec §8: "Cancel before worker starts
// ⇒ worker sees Cancelling on step 3, writes Cancelled without running
// code").
func (rt *Runtime) finishCancelledBeforeStart(ctx context.Context, executionID uuid.UUID, rec *pending.Record) error {
	errType := string(execerr.Cancelled)
	msg := "execution cancelled before the worker started running it"
	if _, err := rt.executions.MarkTerminal(ctx, executionID, models.ExecutionStatusCancelled, nil, &msg, &errType, 0); err != nil {
		return wrapRedeliver(err)
	}
	rt.cleanupTerminal(ctx, executionID, models.ExecutionStatusCancelled, nil, &msg, &errType, rec)
	return nil
}

func (rt *Runtime) finishFailed(ctx context.Context, executionID uuid.UUID, rec *pending.Record, kind execerr.Kind, msg string) error {
	errType := string(kind)
	if _, err := rt.executions.MarkTerminal(ctx, executionID, models.ExecutionStatusFailed, nil, &msg, &errType, 0); err != nil {
		return wrapRedeliver(err)
	}
	rt.cleanupTerminal(ctx, executionID, models.ExecutionStatusFailed, nil, &msg, &errType, rec)
	return nil
}

// finishRun classifies the sandbox outcome (steps 7-10) and writes
// terminal state (step 11). secretReg redacts any credential the script
// materialized before the result reaches the durable store or the sync
// result inbox (§5 Shared resource policy).
func (rt *Runtime) finishRun(ctx context.Context, executionID uuid.UUID, rec *pending.Record, runCtx context.Context, result *Result, runErr error, durationMs int64, secretReg *secrets.Registry) error {
	var status string
	var resultJSON models.JSON
	var errMsg, errType *string

	switch {
	case runErr == nil:
		status = models.ExecutionStatusSuccess
		if result != nil && result.LoggedErrors > 0 {
			status = models.ExecutionStatusCompletedWithErrors
		}
		if result != nil {
			if m, ok := result.Value.(map[string]interface{}); ok {
				resultJSON = models.JSON(secretReg.RedactMap(m))
			} else if result.Value != nil {
				resultJSON = models.JSON{"result": result.Value}
			}
		}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		status = models.ExecutionStatusTimeout
		m := "execution exceeded its timeout budget"
		errMsg = &m
		et := string(execerr.Timeout)
		errType = &et
	case errors.Is(runCtx.Err(), context.Canceled):
		cancelling, _ := rt.cancelSignal.IsCancelling(ctx, executionID)
		if cancelling {
			status = models.ExecutionStatusCancelled
			m := "execution cancelled"
			errMsg = &m
			et := string(execerr.Cancelled)
			errType = &et
		} else {
			// ctx cancelled for a reason other than an observed cancel
			// request (e.g. process shutdown): treat as stuck so C11
			// reconciles it on the next tick.
			return wrapRedeliver(runCtx.Err())
		}
	default:
		status = models.ExecutionStatusFailed
		m := fmt.Sprintf("%v\n%s", runErr, string(debug.Stack()))
		errMsg = &m
		et := string(execerr.UserFailure)
		errType = &et
	}

	if errMsg != nil {
		redacted := secretReg.Redact(*errMsg)
		errMsg = &redacted
	}

	if _, err := rt.executions.MarkTerminal(ctx, executionID, status, resultJSON, errMsg, errType, durationMs); err != nil {
		return wrapRedeliver(err)
	}
	rt.cleanupTerminal(ctx, executionID, status, resultJSON, errMsg, errType, rec)
	return nil
}

// deliveryRetryDelay is how soon a webhook-admitted execution that failed
// after being queued becomes eligible for RetryDue again. Admission-time
// failures use the dispatcher's own exponential backoff; this is a flat
// delay since the dispatcher's attempt counter has already advanced once
// to get the execution running in the first place.
const deliveryRetryDelay = 30 * time.Second

// cleanupTerminal performs the shared tail of step 11: queue removal,
// sync result delivery, status broadcast, pending cleanup, slot idle, and
// (for webhook-admitted executions) feeding the real outcome back onto
// the originating delivery row.
func (rt *Runtime) cleanupTerminal(ctx context.Context, executionID uuid.UUID, status string, result models.JSON, errMsg, errType *string, rec *pending.Record) {
	_ = rt.queueTracker.Remove(ctx, executionID)
	if rec.Sync {
		_ = rt.fanout.PushSyncResult(ctx, executionID, fanout.TerminalResult{
			Status: status, Result: result, Error: errMsg, ErrorType: errType,
		})
	}
	_ = rt.fanout.PublishStatus(ctx, executionID, status)
	_ = rt.pendingStore.Delete(ctx, executionID)
	_ = rt.cancelSignal.Clear(ctx, executionID)
	if rec.EventDeliveryID != nil {
		rt.markDeliveryOutcome(ctx, *rec.EventDeliveryID, status)
	}
	if rt.heartbeat != nil {
		_ = rt.heartbeat.Completed(ctx)
	}
}

// markDeliveryOutcome feeds a webhook-admitted execution's real terminal
// status back onto its EventDelivery row (§4.10), the piece that lets a
// delivery ever reach `success` and lets a post-admission failure retry.
func (rt *Runtime) markDeliveryOutcome(ctx context.Context, deliveryID uuid.UUID, status string) {
	if rt.deliveries == nil {
		return
	}
	if status == models.ExecutionStatusSuccess || status == models.ExecutionStatusCompletedWithErrors {
		if err := rt.deliveries.MarkSuccess(ctx, deliveryID); err != nil {
			log.Warn().Err(err).Str("delivery_id", deliveryID.String()).Msg("worker runtime: failed to mark webhook delivery success")
		}
		return
	}
	next := time.Now().Add(deliveryRetryDelay)
	if err := rt.deliveries.MarkFailed(ctx, deliveryID, fmt.Sprintf("execution finished with status %s", status), &next); err != nil {
		log.Warn().Err(err).Str("delivery_id", deliveryID.String()).Msg("worker runtime: failed to mark webhook delivery failed")
	}
}

func decodeTask(task *asynq.Task, v *queue.DispatchMessage) error {
	return json.Unmarshal(task.Payload(), v)
}
