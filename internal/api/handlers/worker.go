package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bifrostlabs/bifrost/internal/api/dto"
	"github.com/bifrostlabs/bifrost/internal/pkg/queue"
	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/bifrostlabs/bifrost/internal/workerpool"
	"github.com/bifrostlabs/bifrost/internal/workerruntime"
	"github.com/go-chi/chi/v5"
)

// WorkerHandler lists the live worker slots the heartbeat keyspace
// tracks (spec §4.5), an admin view onto the worker pool.
type WorkerHandler struct {
	redis  *redisclient.Client
	broker *queue.Client
}

func NewWorkerHandler(redis *redisclient.Client, broker *queue.Client) *WorkerHandler {
	return &WorkerHandler{redis: redis, broker: broker}
}

func (h *WorkerHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.redis.Keys(r.Context(), "bifrost:worker:*").Result()
	if err != nil {
		dto.InternalServerError(w, "failed to scan worker slots")
		return
	}

	response := make([]dto.WorkerResponse, 0, len(keys))
	for _, key := range keys {
		workerID := key[len("bifrost:worker:"):]
		slot, ok, err := workerruntime.FetchSlot(r.Context(), h.redis, workerID)
		if err != nil || !ok {
			continue
		}
		response = append(response, dto.WorkerResponse{
			WorkerID:    workerID,
			State:       slot.State,
			ExecutionID: slot.ExecutionID,
			UpdatedAt:   slot.UpdatedAt.Unix(),
		})
	}

	dto.JSON(w, http.StatusOK, response)
}

// Recycle implements spec §4.5/§6's `POST worker/recycle(id)` admin call.
// The API process never holds a live *workerpool.Manager (workers are
// supervised by the separate cmd/workerpool process), so this just writes
// the cross-process recycle signal the pool manager's reconcile loop
// polls on its next tick.
func (h *WorkerHandler) Recycle(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "id")
	if workerID == "" {
		dto.BadRequest(w, "worker id is required")
		return
	}

	if _, ok, err := workerruntime.FetchSlot(r.Context(), h.redis, workerID); err != nil {
		dto.InternalServerError(w, "failed to look up worker slot")
		return
	} else if !ok {
		dto.NotFound(w, "worker not found")
		return
	}

	if err := workerpool.RequestRecycle(r.Context(), h.redis, workerID); err != nil {
		dto.InternalServerError(w, "failed to request worker recycle")
		return
	}

	dto.Accepted(w, map[string]string{"worker_id": workerID, "status": "recycle_requested"})
}

// InvalidateModule enqueues a package-installation notice (§4.4); the
// worker that consumes it drops the given path from the shared Redis
// Module Cache, so the next resolve on any worker reloads it instead of
// waiting out the 24h TTL.
func (h *WorkerHandler) InvalidateModule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		dto.BadRequest(w, "path is required")
		return
	}

	if _, err := h.broker.BroadcastPackageInstallation(r.Context(), queue.PackageInstallation{
		Path: body.Path,
		Hash: body.Hash,
	}); err != nil {
		dto.InternalServerError(w, "failed to broadcast package installation")
		return
	}

	dto.Accepted(w, map[string]string{"path": body.Path, "status": "invalidation_broadcast"})
}
