package stuckmonitor

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bifrostlabs/bifrost/internal/core/fanout"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fakeExecutions is a map-backed stand-in for ExecutionRepository's two
// methods the monitor needs, gating UpdateStatusConditional the same way
// the real optimistic predicate does.
type fakeExecutions struct {
	rows map[uuid.UUID]*models.Execution
}

func (f *fakeExecutions) FindRunningOrCancellingStartedBefore(ctx context.Context, cutoff time.Time) ([]models.Execution, error) {
	var out []models.Execution
	for _, row := range f.rows {
		if row.StartedAt == nil || !row.StartedAt.Before(cutoff) {
			continue
		}
		if row.Status == models.ExecutionStatusRunning || row.Status == models.ExecutionStatusCancelling {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeExecutions) UpdateStatusConditional(ctx context.Context, executionID uuid.UUID, fromStatuses []string, updates map[string]interface{}) (int64, error) {
	row, ok := f.rows[executionID]
	if !ok {
		return 0, nil
	}
	allowed := false
	for _, s := range fromStatuses {
		if row.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return 0, nil
	}
	if status, ok := updates["status"].(string); ok {
		row.Status = status
	}
	return 1, nil
}

type noopLogAppender struct{}

func (noopLogAppender) Append(ctx context.Context, row *models.ExecutionLog) error { return nil }

// TestEvaluateDeclaresTimeoutWhenWorkerCrashed reproduces the §8
// worker-crash-during-running boundary: a Running execution whose grace
// window has elapsed and whose claimed worker has no live heartbeat slot
// must be declared Timeout, freeing the execution from waiting on a
// worker that is never coming back.
func TestEvaluateDeclaresTimeoutWhenWorkerCrashed(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() failed: %v", err)
	}
	defer mr.Close()
	rdb := &redisclient.Client{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}

	executionID := uuid.New()
	deadWorker := "worker-gone"
	startedAt := time.Now().Add(-10 * time.Minute)
	execs := &fakeExecutions{rows: map[uuid.UUID]*models.Execution{
		executionID: {
			ID:        executionID,
			Status:    models.ExecutionStatusRunning,
			StartedAt: &startedAt,
			WorkerID:  &deadWorker,
			Workflow:  models.Workflow{TimeoutSeconds: 30},
		},
	}}

	fanoutPublisher := fanout.NewPublisher(rdb, noopLogAppender{}, 120)
	monitor := New(rdb, execs, fanoutPublisher, 30)

	exec := *execs.rows[executionID]
	monitor.evaluate(context.Background(), exec, time.Now())

	got := execs.rows[executionID]
	if got.Status != models.ExecutionStatusTimeout {
		t.Errorf("status = %q, want %q", got.Status, models.ExecutionStatusTimeout)
	}
}

// TestEvaluateLeavesAliveWorkerAlone asserts a Running execution whose
// worker still has a live heartbeat slot is left untouched, even past its
// grace window, since the worker may still be about to finish.
func TestEvaluateLeavesAliveWorkerAlone(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() failed: %v", err)
	}
	defer mr.Close()
	rdb := &redisclient.Client{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}

	executionID := uuid.New()
	liveWorker := "worker-alive"
	startedAt := time.Now().Add(-10 * time.Minute)
	execs := &fakeExecutions{rows: map[uuid.UUID]*models.Execution{
		executionID: {
			ID:        executionID,
			Status:    models.ExecutionStatusRunning,
			StartedAt: &startedAt,
			WorkerID:  &liveWorker,
			Workflow:  models.Workflow{TimeoutSeconds: 30},
		},
	}}

	if err := rdb.Set(context.Background(), "bifrost:worker:"+liveWorker, `{"state":"busy"}`, time.Minute).Err(); err != nil {
		t.Fatalf("failed to seed heartbeat slot: %v", err)
	}

	fanoutPublisher := fanout.NewPublisher(rdb, noopLogAppender{}, 120)
	monitor := New(rdb, execs, fanoutPublisher, 30)

	exec := *execs.rows[executionID]
	monitor.evaluate(context.Background(), exec, time.Now())

	got := execs.rows[executionID]
	if got.Status != models.ExecutionStatusRunning {
		t.Errorf("status = %q, want unchanged %q", got.Status, models.ExecutionStatusRunning)
	}
}
