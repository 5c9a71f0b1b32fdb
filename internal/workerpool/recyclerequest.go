package workerpool

import (
	"context"
	"time"

	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
)

// recycleRequestKey namespaces the cross-process recycle signal the admin
// API writes and this package's Manager polls, mirroring core/cancelsignal's
// "API writes an ephemeral key, the owning process polls it" idiom since
// the admin surface (cmd/api) and the pool supervisor (cmd/workerpool) are
// separate processes that only share Redis.
func recycleRequestKey(workerID string) string {
	return "bifrost:worker:recycle:" + workerID
}

// RequestRecycle marks a worker for recycling from outside the pool
// supervisor process, the admin-triggered path of spec §4.5's process
// recycle policy ("explicit admin call recycle(worker_id)"). The pool
// manager's reconcile loop picks this up on its next tick.
func RequestRecycle(ctx context.Context, redis *redisclient.Client, workerID string) error {
	return redis.Set(ctx, recycleRequestKey(workerID), "1", 5*time.Minute).Err()
}
