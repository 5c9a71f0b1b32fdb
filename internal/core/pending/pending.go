// Package pending implements the Pending Execution Store (spec §4.2): a
// single ephemeral Redis key per execution, written at admission so a
// sync caller can poll or wait on the execution before any durable row
// exists.
package pending

import (
	"context"
	"errors"
	"time"

	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("pending execution not found")

const keyPrefix = "bifrost:pending:"

// Record is the ephemeral snapshot a worker needs to start an execution
// without touching the durable store first.
type Record struct {
	ExecutionID  uuid.UUID  `json:"execution_id"`
	WorkflowID   uuid.UUID  `json:"workflow_id"`
	WorkflowName string     `json:"workflow_name"`
	Path         string     `json:"path"`
	FunctionName string     `json:"function_name"`
	Parameters   models.JSON `json:"parameters"`
	TriggerType  string     `json:"trigger_type"`
	OrgID        *uuid.UUID `json:"org_id,omitempty"`
	Identity     *uuid.UUID `json:"identity,omitempty"`
	IsSuperuser  bool       `json:"is_superuser"`
	IsAPIKey     bool       `json:"is_api_key"`
	APIKeyID     *uuid.UUID `json:"api_key_id,omitempty"`
	Sync         bool       `json:"sync"`
	TimeoutSecs  int        `json:"timeout_seconds"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`

	// EventDeliveryID correlates this execution back to the webhook
	// delivery that admitted it, if any (§4.10), so the worker's terminal
	// write can feed the delivery's own success/failure status.
	EventDeliveryID *uuid.UUID `json:"event_delivery_id,omitempty"`
}

type Store struct {
	redis *redisclient.Client
	ttl   time.Duration
}

func NewStore(redis *redisclient.Client, ttlSeconds int) *Store {
	if ttlSeconds <= 0 {
		ttlSeconds = 600
	}
	return &Store{redis: redis, ttl: time.Duration(ttlSeconds) * time.Second}
}

func key(executionID uuid.UUID) string {
	return keyPrefix + executionID.String()
}

func (s *Store) Set(ctx context.Context, rec *Record) error {
	return s.redis.SetJSON(ctx, key(rec.ExecutionID), rec, s.ttl)
}

func (s *Store) Get(ctx context.Context, executionID uuid.UUID) (*Record, error) {
	var rec Record
	if err := s.redis.GetJSON(ctx, key(executionID), &rec); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Delete(ctx context.Context, executionID uuid.UUID) error {
	return s.redis.Del(ctx, key(executionID)).Err()
}
