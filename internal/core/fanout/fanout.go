// Package fanout implements the Log & Result Fan-out component (spec
// §4.8): durable log append with pub/sub broadcast, status/progress
// events, and the sync-caller Result Inbox.
package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func resultInboxKey(executionID uuid.UUID) string {
	return "bifrost:result:" + executionID.String()
}

func updateChannel(executionID uuid.UUID) string {
	return "bifrost:updates:" + executionID.String()
}

// TerminalResult is what MarkTerminal pushes onto the Result Inbox for a
// sync caller's BLPOP.
type TerminalResult struct {
	Status    string      `json:"status"`
	Result    models.JSON `json:"result,omitempty"`
	Error     *string     `json:"error,omitempty"`
	ErrorType *string     `json:"error_type,omitempty"`
}

// logAppender is the narrow slice of ExecutionLogRepository the
// publisher needs, letting tests substitute an in-memory fake instead of
// a real database.
type logAppender interface {
	Append(ctx context.Context, row *models.ExecutionLog) error
}

type Publisher struct {
	redis     *redisclient.Client
	logRepo   logAppender
	resultTTL time.Duration
}

func NewPublisher(redis *redisclient.Client, logRepo logAppender, resultTTLSeconds int) *Publisher {
	if resultTTLSeconds <= 0 {
		resultTTLSeconds = 120
	}
	return &Publisher{redis: redis, logRepo: logRepo, resultTTL: time.Duration(resultTTLSeconds) * time.Second}
}

func (p *Publisher) publish(ctx context.Context, executionID uuid.UUID, event map[string]interface{}) error {
	event["execution_id"] = executionID.String()
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.redis.PublishEvent(ctx, updateChannel(executionID), payload)
}

// AppendLog performs the ordered durable insert and publishes a log
// event. Sequence is supplied by the caller (the worker runtime), which
// owns the monotonic counter for the execution it is running.
func (p *Publisher) AppendLog(ctx context.Context, executionID uuid.UUID, sequence int64, level, message string, meta models.JSON) error {
	row := &models.ExecutionLog{
		ExecutionID: executionID,
		Sequence:    sequence,
		Timestamp:   time.Now(),
		Level:       level,
		Message:     message,
		Metadata:    meta,
	}
	if err := p.logRepo.Append(ctx, row); err != nil {
		return err
	}
	return p.publish(ctx, executionID, map[string]interface{}{
		"type":     "log",
		"sequence": sequence,
		"level":    level,
		"message":  message,
	})
}

func (p *Publisher) PublishProgress(ctx context.Context, executionID uuid.UUID, phase string, fraction *float64) error {
	evt := map[string]interface{}{"type": "progress", "phase": phase}
	if fraction != nil {
		evt["fraction"] = *fraction
	}
	return p.publish(ctx, executionID, evt)
}

func (p *Publisher) PublishStatus(ctx context.Context, executionID uuid.UUID, status string) error {
	return p.publish(ctx, executionID, map[string]interface{}{
		"type":   "status",
		"status": status,
	})
}

// PushSyncResult delivers the terminal outcome to the Result Inbox for a
// blocked sync caller (§4.8).
func (p *Publisher) PushSyncResult(ctx context.Context, executionID uuid.UUID, result TerminalResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	pipe := p.redis.Pipeline()
	pipe.LPush(ctx, resultInboxKey(executionID), payload)
	pipe.Expire(ctx, resultInboxKey(executionID), p.resultTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// WaitSyncResult blocks on the Result Inbox until a terminal result
// arrives or deadline elapses (workflow.timeout_seconds + sync_wait_extra_seconds,
// per §4.8).
func (p *Publisher) WaitSyncResult(ctx context.Context, executionID uuid.UUID, deadline time.Duration) (*TerminalResult, error) {
	res, err := p.redis.BLPop(ctx, deadline, resultInboxKey(executionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BLPop returns [key, value].
	if len(res) < 2 {
		return nil, nil
	}
	var tr TerminalResult
	if err := json.Unmarshal([]byte(res[1]), &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}
