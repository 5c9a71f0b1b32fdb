package workerruntime

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/core/cancelsignal"
	"github.com/bifrostlabs/bifrost/internal/core/fanout"
	"github.com/bifrostlabs/bifrost/internal/core/pending"
	"github.com/bifrostlabs/bifrost/internal/core/queuetracker"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/pkg/queue"
	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fakeExecutions is an in-memory stand-in for ExecutionRepository, gating
// transitions the same way UpdateStatusConditional does so tests exercise
// the real FSM rather than a trivially permissive fake.
type fakeExecutions struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Execution
}

func newFakeExecutions() *fakeExecutions {
	return &fakeExecutions{rows: map[uuid.UUID]*models.Execution{}}
}

func (f *fakeExecutions) seed(row *models.Execution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[row.ID] = row
}

func (f *fakeExecutions) FindByID(ctx context.Context, id uuid.UUID) (*models.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeExecutions) Create(ctx context.Context, row *models.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *row
	f.rows[row.ID] = &cp
	return nil
}

func (f *fakeExecutions) conditional(id uuid.UUID, from []string, apply func(*models.Execution)) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return 0
	}
	allowed := false
	for _, s := range from {
		if row.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return 0
	}
	apply(row)
	return 1
}

func (f *fakeExecutions) MarkRunning(ctx context.Context, executionID uuid.UUID, workerID string) (int64, error) {
	return f.conditional(executionID, []string{models.ExecutionStatusPending}, func(row *models.Execution) {
		row.Status = models.ExecutionStatusRunning
		row.WorkerID = &workerID
	}), nil
}

func (f *fakeExecutions) MarkTerminal(ctx context.Context, executionID uuid.UUID, status string, result models.JSON, execErr, errorType *string, durationMs int64) (int64, error) {
	return f.conditional(executionID,
		[]string{models.ExecutionStatusPending, models.ExecutionStatusRunning, models.ExecutionStatusCancelling},
		func(row *models.Execution) {
			row.Status = status
			row.Result = result
			row.Error = execErr
			row.ErrorType = errorType
			row.DurationMs = durationMs
		}), nil
}

type fakeWorkflows struct {
	rows map[uuid.UUID]*models.Workflow
}

func (f *fakeWorkflows) FindByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, errNotFound
	}
	return row, nil
}

type deliveryOutcome struct {
	deliveryID  uuid.UUID
	success     bool
	lastError   string
	nextRetryAt *time.Time
}

type fakeDeliveries struct {
	mu       sync.Mutex
	outcomes []deliveryOutcome
}

func (f *fakeDeliveries) MarkSuccess(ctx context.Context, deliveryID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, deliveryOutcome{deliveryID: deliveryID, success: true})
	return nil
}

func (f *fakeDeliveries) MarkFailed(ctx context.Context, deliveryID uuid.UUID, lastError string, nextRetryAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, deliveryOutcome{deliveryID: deliveryID, success: false, lastError: lastError, nextRetryAt: nextRetryAt})
	return nil
}

type fakeLogAppender struct{}

func (fakeLogAppender) Append(ctx context.Context, row *models.ExecutionLog) error { return nil }

var errNotFound = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "not found" }

// testRuntime wires a Runtime against a miniredis instance and the fakes
// above, mirroring cmd/worker/main.go's construction without a database.
func testRuntime(t *testing.T) (*Runtime, *fakeExecutions, *fakeWorkflows, *fakeDeliveries, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := &redisclient.Client{Client: redis.NewClient(&redis.Options{Addr: mr.Addr()})}

	execs := newFakeExecutions()
	workflows := &fakeWorkflows{rows: map[uuid.UUID]*models.Workflow{}}
	deliveries := &fakeDeliveries{}

	pendingStore := pending.NewStore(rdb, 600)
	queueTracker := queuetracker.New(rdb, 600)
	cancelSignal := cancelsignal.New(rdb)
	fanoutPublisher := fanout.NewPublisher(rdb, fakeLogAppender{}, 120)
	modules := NewModuleCache(rdb, nil)
	heartbeat := NewHeartbeat(rdb, "worker-test", 15)
	authzResolver := authz.NewResolver(nil, nil)

	rt := New("worker-test", pendingStore, execs, nil, workflows, deliveries, authzResolver, fanoutPublisher, queueTracker, cancelSignal, modules, heartbeat)
	return rt, execs, workflows, deliveries, mr
}

func baseRecord(executionID, workflowID uuid.UUID) *pending.Record {
	return &pending.Record{
		ExecutionID:  executionID,
		WorkflowID:   workflowID,
		WorkflowName: "test-workflow",
		TriggerType:  "manual",
		IsSuperuser:  true,
		TimeoutSecs:  5,
		EnqueuedAt:   time.Now(),
	}
}

func encodeScript(src string) *string {
	enc := base64.StdEncoding.EncodeToString([]byte(src))
	return &enc
}

// TestRunCancelBeforeStart reproduces the §8 boundary: admission's cancel
// handler moves the durable row to Cancelling while the dispatch message
// is still sitting on the broker queue. The worker must never run the
// script and must leave the execution Cancelled, not stuck.
func TestRunCancelBeforeStart(t *testing.T) {
	rt, execs, workflows, _, _ := testRuntime(t)
	ctx := context.Background()

	executionID := uuid.New()
	workflowID := uuid.New()
	workflows.rows[workflowID] = &models.Workflow{ID: workflowID, FunctionName: "main", TimeoutSeconds: 30}
	execs.seed(&models.Execution{ID: executionID, WorkflowID: workflowID, Status: models.ExecutionStatusCancelling})

	rec := baseRecord(executionID, workflowID)
	if err := rt.pendingStore.Set(ctx, rec); err != nil {
		t.Fatalf("pendingStore.Set: %v", err)
	}

	msg := queue.DispatchMessage{ExecutionID: executionID, WorkflowName: "test-workflow", Code: encodeScript("function main(p){ return 1; }")}
	if err := rt.run(ctx, msg); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}

	got, err := execs.FindByID(ctx, executionID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != models.ExecutionStatusCancelled {
		t.Errorf("status = %q, want %q", got.Status, models.ExecutionStatusCancelled)
	}
}

// TestRunIdempotentRedelivery reproduces a broker redelivery after the
// worker already wrote terminal state and the pending record expired:
// run() must just ack without touching the durable row again.
func TestRunIdempotentRedelivery(t *testing.T) {
	rt, execs, workflows, _, _ := testRuntime(t)
	ctx := context.Background()

	executionID := uuid.New()
	workflowID := uuid.New()
	workflows.rows[workflowID] = &models.Workflow{ID: workflowID, FunctionName: "main", TimeoutSeconds: 30}
	completedAt := time.Now().Add(-time.Minute)
	execs.seed(&models.Execution{
		ID: executionID, WorkflowID: workflowID,
		Status: models.ExecutionStatusSuccess, CompletedAt: &completedAt,
	})
	// No pending record written: it already expired or was deleted by a
	// prior successful run.

	msg := queue.DispatchMessage{ExecutionID: executionID, WorkflowName: "test-workflow"}
	if err := rt.run(ctx, msg); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}

	got, err := execs.FindByID(ctx, executionID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != models.ExecutionStatusSuccess {
		t.Errorf("status changed to %q on redelivery, want unchanged %q", got.Status, models.ExecutionStatusSuccess)
	}
}

// TestRunWebhookDeliverySuccess asserts a successful execution feeds its
// outcome back onto the originating webhook delivery row (§4.10).
func TestRunWebhookDeliverySuccess(t *testing.T) {
	rt, _, workflows, deliveries, _ := testRuntime(t)
	ctx := context.Background()

	executionID := uuid.New()
	workflowID := uuid.New()
	deliveryID := uuid.New()
	workflows.rows[workflowID] = &models.Workflow{ID: workflowID, FunctionName: "main", TimeoutSeconds: 30}

	rec := baseRecord(executionID, workflowID)
	rec.EventDeliveryID = &deliveryID
	if err := rt.pendingStore.Set(ctx, rec); err != nil {
		t.Fatalf("pendingStore.Set: %v", err)
	}

	msg := queue.DispatchMessage{ExecutionID: executionID, WorkflowName: "test-workflow", Code: encodeScript(`function main(p){ return {ok: true}; }`)}
	if err := rt.run(ctx, msg); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}

	deliveries.mu.Lock()
	defer deliveries.mu.Unlock()
	if len(deliveries.outcomes) != 1 {
		t.Fatalf("got %d delivery outcomes, want 1", len(deliveries.outcomes))
	}
	if deliveries.outcomes[0].deliveryID != deliveryID || !deliveries.outcomes[0].success {
		t.Errorf("outcome = %+v, want success for %s", deliveries.outcomes[0], deliveryID)
	}
}

// TestRunWebhookDeliveryFailure asserts a failing execution marks its
// webhook delivery failed with a retry timestamp, not just success/noop.
func TestRunWebhookDeliveryFailure(t *testing.T) {
	rt, _, workflows, deliveries, _ := testRuntime(t)
	ctx := context.Background()

	executionID := uuid.New()
	workflowID := uuid.New()
	deliveryID := uuid.New()
	workflows.rows[workflowID] = &models.Workflow{ID: workflowID, FunctionName: "main", TimeoutSeconds: 30}

	rec := baseRecord(executionID, workflowID)
	rec.EventDeliveryID = &deliveryID
	if err := rt.pendingStore.Set(ctx, rec); err != nil {
		t.Fatalf("pendingStore.Set: %v", err)
	}

	msg := queue.DispatchMessage{ExecutionID: executionID, WorkflowName: "test-workflow", Code: encodeScript(`function main(p){ throw new Error("boom"); }`)}
	if err := rt.run(ctx, msg); err != nil {
		t.Fatalf("run() returned error: %v", err)
	}

	deliveries.mu.Lock()
	defer deliveries.mu.Unlock()
	if len(deliveries.outcomes) != 1 {
		t.Fatalf("got %d delivery outcomes, want 1", len(deliveries.outcomes))
	}
	outcome := deliveries.outcomes[0]
	if outcome.success {
		t.Fatal("outcome reported success, want failure")
	}
	if outcome.nextRetryAt == nil || !outcome.nextRetryAt.After(time.Now()) {
		t.Errorf("nextRetryAt = %v, want a future timestamp", outcome.nextRetryAt)
	}
}

// TestRunExactTimeoutBoundary asserts a script that blows its wall-clock
// budget is interrupted and lands on Timeout, not left hanging.
func TestRunExactTimeoutBoundary(t *testing.T) {
	rt, execs, workflows, _, _ := testRuntime(t)
	ctx := context.Background()

	executionID := uuid.New()
	workflowID := uuid.New()
	workflows.rows[workflowID] = &models.Workflow{ID: workflowID, FunctionName: "main", TimeoutSeconds: 1}

	rec := baseRecord(executionID, workflowID)
	rec.TimeoutSecs = 1
	if err := rt.pendingStore.Set(ctx, rec); err != nil {
		t.Fatalf("pendingStore.Set: %v", err)
	}

	msg := queue.DispatchMessage{ExecutionID: executionID, WorkflowName: "test-workflow", Code: encodeScript(`function main(p){ while(true) {} }`)}

	done := make(chan error, 1)
	go func() { done <- rt.run(ctx, msg) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return within 10s of a 1s timeout budget")
	}

	got, err := execs.FindByID(ctx, executionID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Status != models.ExecutionStatusTimeout {
		t.Errorf("status = %q, want %q", got.Status, models.ExecutionStatusTimeout)
	}
}
