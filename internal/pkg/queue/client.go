package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bifrostlabs/bifrost/internal/pkg/config"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// QueueWorkflowExecutions is the durable broker producer (C4, spec
// §4.4): prefetch=1 per worker, at-least-once delivery, ack only after
// terminal state is written.
const QueueWorkflowExecutions = "workflow-executions"

// QueuePackageInstallations carries package-installation notices (§4.4).
// Each notice is one asynq task, consumed by a single worker process, not
// delivered to every worker.
const QueuePackageInstallations = "package-installations"

// DispatchMessage is the byte-exact dispatch body from spec §6: workers
// read the full Pending Execution from Redis, so the message itself
// carries only enough to look that record up.
type DispatchMessage struct {
	ExecutionID  uuid.UUID `json:"execution_id"`
	WorkflowName string    `json:"workflow_name"`
	Code         *string   `json:"code"`
	Sync         bool      `json:"sync"`
}

const TypeWorkflowDispatch = "workflow:dispatch"
const TypePackageInstallation = "module:package_installation"

type Client struct {
	client *asynq.Client
}

func NewClient(cfg *config.RedisConfig) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{client: client}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Dispatch publishes a DispatchMessage to the workflow-executions queue.
func (c *Client) Dispatch(ctx context.Context, msg DispatchMessage) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dispatch message: %w", err)
	}
	task := asynq.NewTask(TypeWorkflowDispatch, data,
		asynq.Queue(QueueWorkflowExecutions),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	return c.client.EnqueueContext(ctx, task)
}

// PackageInstallation names a module path whose cached content changed.
// The worker that consumes it drops that path from the Module Cache,
// which lives in Redis and is shared by all workers, so no worker
// restart is needed to pick up the new content.
type PackageInstallation struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

func (c *Client) BroadcastPackageInstallation(ctx context.Context, payload PackageInstallation) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal package installation: %w", err)
	}
	task := asynq.NewTask(TypePackageInstallation, data, asynq.Queue(QueuePackageInstallations))
	return c.client.EnqueueContext(ctx, task)
}
