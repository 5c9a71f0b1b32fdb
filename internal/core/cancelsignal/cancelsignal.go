// Package cancelsignal mirrors a pending cancel request into Redis so the
// worker runtime's cooperative cancellation check (spec §4.6, step 6) can
// poll a cheap key instead of round-tripping to the durable store every
// second.
package cancelsignal

import (
	"context"
	"time"

	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func key(executionID uuid.UUID) string {
	return "bifrost:cancelling:" + executionID.String()
}

type Signal struct {
	redis *redisclient.Client
}

func New(redis *redisclient.Client) *Signal {
	return &Signal{redis: redis}
}

// Raise marks an execution as Cancelling for the given grace window. The
// caller (the cancel handler) is expected to have already written the
// durable Cancelling status via ExecutionRepository.RequestCancel.
func (s *Signal) Raise(ctx context.Context, executionID uuid.UUID, grace time.Duration) error {
	return s.redis.Set(ctx, key(executionID), "1", grace).Err()
}

func (s *Signal) IsCancelling(ctx context.Context, executionID uuid.UUID) (bool, error) {
	_, err := s.redis.Get(ctx, key(executionID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Signal) Clear(ctx context.Context, executionID uuid.UUID) error {
	return s.redis.Del(ctx, key(executionID)).Err()
}
