// Package stuckmonitor implements the Stuck Execution Monitor (spec
// §4.11): a periodic sweep over durable executions that have overrun
// their grace window, checking whether the claimed worker is still
// alive before declaring the execution Timeout or Stuck.
package stuckmonitor

import (
	"context"
	"time"

	"github.com/bifrostlabs/bifrost/internal/core/fanout"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/bifrostlabs/bifrost/internal/workerruntime"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// executionStore is the slice of ExecutionRepository the sweep needs,
// narrow enough for tests to substitute an in-memory fake and exercise
// the worker-crash-during-running boundary behavior without a database.
type executionStore interface {
	FindRunningOrCancellingStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Execution, error)
	UpdateStatusConditional(ctx context.Context, executionID uuid.UUID, fromStatuses []string, updates map[string]interface{}) (int64, error)
}

// cancellingGraceSeconds is the fixed grace window for executions stuck
// in Cancelling, independent of the workflow's own timeout (§4.11).
const cancellingGraceSeconds = 30

// runningGraceMarginSeconds is added on top of workflow.timeout_seconds
// for executions stuck in Running, giving the worker time to notice its
// own timeout and write Timeout before the monitor intervenes.
const runningGraceMarginSeconds = 60

type Monitor struct {
	redis      *redisclient.Client
	executions executionStore
	fanout     *fanout.Publisher
	tick       time.Duration
}

func New(redis *redisclient.Client, executions executionStore, fanoutPublisher *fanout.Publisher, tickSeconds int) *Monitor {
	if tickSeconds <= 0 {
		tickSeconds = 30
	}
	return &Monitor{
		redis:      redis,
		executions: executions,
		fanout:     fanoutPublisher,
		tick:       time.Duration(tickSeconds) * time.Second,
	}
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep implements §4.11. The query cutoff uses the smaller of the two
// grace windows so no candidate is missed; each candidate's own grace
// is then re-checked precisely before acting.
func (m *Monitor) sweep(ctx context.Context) {
	now := time.Now()
	minGrace := cancellingGraceSeconds * time.Second
	candidates, err := m.executions.FindRunningOrCancellingStartedBefore(ctx, now.Add(-minGrace))
	if err != nil {
		log.Error().Err(err).Msg("stuckmonitor: failed to query candidates")
		return
	}

	for _, exec := range candidates {
		m.evaluate(ctx, exec, now)
	}
}

func (m *Monitor) evaluate(ctx context.Context, exec models.Execution, now time.Time) {
	if exec.StartedAt == nil {
		return
	}

	grace := graceFor(exec)
	if now.Sub(*exec.StartedAt) < grace {
		return
	}

	alive := m.workerAlive(ctx, exec.WorkerID)
	if alive {
		return
	}

	var toStatus string
	if exec.Status == models.ExecutionStatusCancelling {
		toStatus = models.ExecutionStatusStuck
	} else {
		toStatus = models.ExecutionStatusTimeout
	}

	affected, err := m.executions.UpdateStatusConditional(ctx, exec.ID,
		[]string{models.ExecutionStatusRunning, models.ExecutionStatusCancelling},
		map[string]interface{}{
			"status":       toStatus,
			"completed_at": now,
			"duration_ms":  now.Sub(*exec.StartedAt).Milliseconds(),
		})
	if err != nil {
		log.Error().Err(err).Str("execution_id", exec.ID.String()).Msg("stuckmonitor: failed to transition stuck execution")
		return
	}
	if affected == 0 {
		// Terminal status already reached by the worker between the
		// query and this update; nothing to do.
		return
	}

	if exec.WorkerID != nil {
		m.freeSlot(ctx, *exec.WorkerID)
	}

	if err := m.fanout.PublishStatus(ctx, exec.ID, toStatus); err != nil {
		log.Warn().Err(err).Str("execution_id", exec.ID.String()).Msg("stuckmonitor: failed to publish status")
	}

	log.Warn().
		Str("execution_id", exec.ID.String()).
		Str("prior_status", exec.Status).
		Str("new_status", toStatus).
		Msg("stuckmonitor: declared execution terminal past grace window")
}

func graceFor(exec models.Execution) time.Duration {
	if exec.Status == models.ExecutionStatusCancelling {
		return cancellingGraceSeconds * time.Second
	}
	timeout := exec.Workflow.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	return time.Duration(timeout+runningGraceMarginSeconds) * time.Second
}

// workerAlive reports whether the claimed worker's heartbeat slot is
// still present in Redis. A missing slot means the process exited or
// its TTL lapsed without a renewal, either way no longer trustworthy.
func (m *Monitor) workerAlive(ctx context.Context, workerID *string) bool {
	if workerID == nil {
		return false
	}
	_, found, err := workerruntime.FetchSlot(ctx, m.redis, *workerID)
	if err != nil {
		log.Warn().Err(err).Str("worker_id", *workerID).Msg("stuckmonitor: failed to read worker heartbeat, assuming dead")
		return false
	}
	return found
}

func (m *Monitor) freeSlot(ctx context.Context, workerID string) {
	h := workerruntime.NewHeartbeat(m.redis, workerID, 15)
	if err := h.Idle(ctx); err != nil {
		log.Warn().Err(err).Str("worker_id", workerID).Msg("stuckmonitor: failed to free worker slot")
	}
}
