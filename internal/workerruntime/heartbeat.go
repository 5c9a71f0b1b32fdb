package workerruntime

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	goredis "github.com/redis/go-redis/v9"
)

func slotKey(workerID string) string {
	return "bifrost:worker:" + workerID
}

// Slot mirrors C5's worker state `{IDLE, BUSY, KILLED}` with a heartbeat
// TTL so both the pool manager and the stuck execution monitor can tell
// a worker process is alive.
type Slot struct {
	State          string    `json:"state"`
	ExecutionID    string    `json:"execution_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
	CompletedCount int64     `json:"completed_count"`
}

type Heartbeat struct {
	redis     *redisclient.Client
	workerID  string
	ttl       time.Duration
	completed int64
}

func NewHeartbeat(redis *redisclient.Client, workerID string, ttlSeconds int) *Heartbeat {
	if ttlSeconds <= 0 {
		ttlSeconds = 15
	}
	return &Heartbeat{redis: redis, workerID: workerID, ttl: time.Duration(ttlSeconds) * time.Second}
}

func (h *Heartbeat) set(ctx context.Context, state, executionID string) error {
	slot := Slot{
		State:          state,
		ExecutionID:    executionID,
		UpdatedAt:      time.Now(),
		CompletedCount: atomic.LoadInt64(&h.completed),
	}
	payload, err := json.Marshal(slot)
	if err != nil {
		return err
	}
	return h.redis.Set(ctx, slotKey(h.workerID), payload, h.ttl).Err()
}

func (h *Heartbeat) Idle(ctx context.Context) error { return h.set(ctx, models.WorkerStateIdle, "") }

func (h *Heartbeat) Busy(ctx context.Context, executionID string) error {
	return h.set(ctx, models.WorkerStateBusy, executionID)
}

// Completed marks the worker idle after finishing an execution and
// increments its lifetime completed-execution counter, which the pool
// manager's recycleOverworked compares against max_completions_per_worker
// (spec §4.5's "(b) N completed executions" recycle trigger).
func (h *Heartbeat) Completed(ctx context.Context) error {
	atomic.AddInt64(&h.completed, 1)
	return h.set(ctx, models.WorkerStateIdle, "")
}

func (h *Heartbeat) Killed(ctx context.Context) error {
	return h.set(ctx, models.WorkerStateKilled, "")
}

// Run refreshes the heartbeat on interval until ctx is cancelled. Call
// in a goroutine; the worker's current state (idle/busy) is re-asserted
// each tick by the caller via the returned channel-free API: callers
// should call Idle/Busy themselves around the work, Run merely keeps
// whatever state was last set alive past its TTL.
func (h *Heartbeat) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.redis.Expire(ctx, slotKey(h.workerID), h.ttl)
		}
	}
}

func FetchSlot(ctx context.Context, rdb *redisclient.Client, workerID string) (*Slot, bool, error) {
	var slot Slot
	if err := rdb.GetJSON(ctx, slotKey(workerID), &slot); err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &slot, true, nil
}
