// Package queuetracker implements the Queue Position Tracker (spec §4.3):
// a Redis sorted set scored by enqueue time, publishing queue_position
// events on every mutation so subscribers see live FIFO position.
package queuetracker

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const setKey = "bifrost:queue:pending"

func updateChannel(executionID uuid.UUID) string {
	return "bifrost:updates:" + executionID.String()
}

type Tracker struct {
	redis       *redisclient.Client
	sweepMaxAge time.Duration
}

func New(redis *redisclient.Client, sweepMaxAgeSeconds int) *Tracker {
	if sweepMaxAgeSeconds <= 0 {
		sweepMaxAgeSeconds = 600
	}
	return &Tracker{redis: redis, sweepMaxAge: time.Duration(sweepMaxAgeSeconds) * time.Second}
}

// Add enqueues execution_id scored by current time and returns its 1-based
// FIFO position.
func (t *Tracker) Add(ctx context.Context, executionID uuid.UUID) (int64, error) {
	now := float64(time.Now().UnixNano())
	if err := t.redis.ZAdd(ctx, setKey, redis.Z{Score: now, Member: executionID.String()}).Err(); err != nil {
		return 0, err
	}
	pos, err := t.Position(ctx, executionID)
	if err != nil {
		return 0, err
	}
	t.publishPositions(ctx)
	return pos, nil
}

// Remove drops execution_id from the queue and republishes positions for
// everything left behind.
func (t *Tracker) Remove(ctx context.Context, executionID uuid.UUID) error {
	if err := t.redis.ZRem(ctx, setKey, executionID.String()).Err(); err != nil {
		return err
	}
	t.publishPositions(ctx)
	return nil
}

// Position returns the 1-based FIFO position, or -1 if execution_id is not
// queued (already started or never enqueued).
func (t *Tracker) Position(ctx context.Context, executionID uuid.UUID) (int64, error) {
	rank, err := t.redis.ZRank(ctx, setKey, executionID.String()).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return rank + 1, nil
}

func (t *Tracker) Depth(ctx context.Context) (int64, error) {
	return t.redis.ZCard(ctx, setKey).Result()
}

// Sweep removes entries older than sweepMaxAge, a safety net for ids
// orphaned by a crashed admission path.
func (t *Tracker) Sweep(ctx context.Context) (int64, error) {
	cutoff := float64(time.Now().Add(-t.sweepMaxAge).UnixNano())
	removed, err := t.redis.ZRemRangeByScore(ctx, setKey, "-inf", strconv.FormatFloat(cutoff, 'f', 0, 64)).Result()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Warn().Int64("removed", removed).Msg("queue tracker swept stale entries")
		t.publishPositions(ctx)
	}
	return removed, nil
}

// publishPositions re-announces every member's current position. Best
// effort, at-least-once: failures are logged and swallowed, matching
// the ordering guarantee in §4.3 (re-publication need not be reliable).
func (t *Tracker) publishPositions(ctx context.Context) {
	members, err := t.redis.ZRangeWithScores(ctx, setKey, 0, -1).Result()
	if err != nil {
		log.Warn().Err(err).Msg("queue tracker failed to list members for position publish")
		return
	}
	for i, m := range members {
		idStr, ok := m.Member.(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		evt := map[string]interface{}{
			"type":         "queue_position",
			"execution_id": idStr,
			"position":     i + 1,
		}
		payload, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		if err := t.redis.PublishEvent(ctx, updateChannel(id), payload); err != nil {
			log.Warn().Err(err).Str("execution_id", idStr).Msg("queue tracker failed to publish position")
		}
	}
}
