// Package workerpool implements the Worker Pool Manager (spec §4.5): a
// supervisor process that owns a fleet of single-purpose worker OS
// processes (cmd/worker), scaling the fleet between min_workers and
// max_workers based on queue depth and available memory, and recycling
// any worker whose heartbeat slot goes stale or dies.
package workerpool

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/bifrostlabs/bifrost/internal/core/queuetracker"
	"github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/bifrostlabs/bifrost/internal/workerruntime"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Config mirrors the pool-sizing tunables of OrchestrationConfig without
// importing pkg/config, keeping this package usable in isolation.
type Config struct {
	MinWorkers              int
	MaxWorkers              int
	WorkerMemoryThresholdMB int
	HeartbeatTTLSeconds     int
	ScaleCheckInterval      time.Duration
	WorkerBinary            string
	WorkerArgs              []string
	// MaxCompletionsPerWorker recycles a worker once its lifetime completed
	// execution count reaches this value, the "(b) N completed executions"
	// trigger from spec §4.5's process recycle policy.
	MaxCompletionsPerWorker int64
}

func (c Config) normalized() Config {
	if c.MinWorkers <= 0 {
		c.MinWorkers = 2
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.WorkerMemoryThresholdMB <= 0 {
		c.WorkerMemoryThresholdMB = 300
	}
	if c.HeartbeatTTLSeconds <= 0 {
		c.HeartbeatTTLSeconds = 15
	}
	if c.ScaleCheckInterval <= 0 {
		c.ScaleCheckInterval = 5 * time.Second
	}
	if c.WorkerBinary == "" {
		c.WorkerBinary = "bifrost-worker"
	}
	if c.MaxCompletionsPerWorker <= 0 {
		c.MaxCompletionsPerWorker = 500
	}
	return c
}

type process struct {
	workerID  string
	cmd       *exec.Cmd
	startedAt time.Time
}

// Manager supervises the worker fleet. It never runs workflow code
// itself; that happens inside the child processes via internal/workerruntime.
type Manager struct {
	cfg     Config
	redis   *redisclient.Client
	queue   *queuetracker.Tracker
	logFile *os.File

	mu      sync.Mutex
	workers map[string]*process
}

func New(cfg Config, redis *redisclient.Client, queue *queuetracker.Tracker, logFile *os.File) *Manager {
	return &Manager{
		cfg:     cfg.normalized(),
		redis:   redis,
		queue:   queue,
		logFile: logFile,
		workers: make(map[string]*process),
	}
}

// Run blocks, supervising the fleet until ctx is cancelled, at which
// point every child worker is sent SIGTERM and given a grace period
// before SIGKILL.
func (m *Manager) Run(ctx context.Context) error {
	for i := 0; i < m.cfg.MinWorkers; i++ {
		if err := m.spawn(); err != nil {
			log.Error().Err(err).Msg("worker pool: failed to spawn initial worker")
		}
	}

	ticker := time.NewTicker(m.cfg.ScaleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.shutdownAll()
			return nil
		case <-ticker.C:
			m.reconcile(ctx)
		}
	}
}

func (m *Manager) reconcile(ctx context.Context) {
	m.reapDead()
	m.recycleStale(ctx)
	m.recycleRequested(ctx)
	m.recycleOverworked(ctx)
	m.autoscale(ctx)
}

// reapDead removes bookkeeping for any child process that has already
// exited, so autoscale sees an accurate count.
func (m *Manager) reapDead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.workers {
		if p.cmd.ProcessState != nil {
			log.Warn().Str("worker_id", id).Msg("worker pool: process exited, removing from fleet")
			delete(m.workers, id)
		}
	}
}

// recycleStale kills (SIGKILL, it is already unresponsive) any worker
// whose heartbeat slot has expired in Redis, per §4.11's worker-liveness
// contract shared with the stuck execution monitor.
func (m *Manager) recycleStale(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_, alive, err := workerruntime.FetchSlot(ctx, m.redis, id)
		if err != nil {
			continue
		}
		if alive {
			continue
		}
		m.mu.Lock()
		p, ok := m.workers[id]
		if ok {
			delete(m.workers, id)
		}
		m.mu.Unlock()
		if ok {
			log.Warn().Str("worker_id", id).Msg("worker pool: heartbeat expired, killing stale process")
			_ = p.cmd.Process.Kill()
		}
	}
}

// Recycle terminates a specific worker gracefully (SIGTERM, escalating to
// SIGKILL if it has not exited after 30s), the shared tail of spec §4.5's
// three recycle triggers: explicit admin call, N completed executions, and
// KILLED state. Any execution the worker had BUSY is left for C11's stuck
// reconciliation rather than being force-failed here.
func (m *Manager) Recycle(workerID string) error {
	m.mu.Lock()
	p, ok := m.workers[workerID]
	if ok {
		delete(m.workers, workerID)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("worker %s is not tracked by this pool", workerID)
	}

	log.Warn().Str("worker_id", workerID).Msg("worker pool: recycling worker")
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal worker %s: %w", workerID, err)
	}

	go func() {
		done := make(chan struct{})
		go func() {
			_, _ = p.cmd.Process.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(30 * time.Second):
			_ = p.cmd.Process.Kill()
		}
	}()
	return nil
}

// recycleRequested services admin-triggered recycle requests written by
// the API handler via RequestRecycle (spec §4.5's "(a) explicit admin
// call recycle(worker_id)").
func (m *Manager) recycleRequested(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		n, err := m.redis.Exists(ctx, recycleRequestKey(id)).Result()
		if err != nil || n == 0 {
			continue
		}
		m.redis.Del(ctx, recycleRequestKey(id))
		if err := m.Recycle(id); err != nil {
			log.Warn().Err(err).Str("worker_id", id).Msg("worker pool: admin recycle request failed")
		}
	}
}

// recycleOverworked recycles any worker that has completed
// max_completions_per_worker executions, the "(b) N completed executions"
// trigger from spec §4.5's process recycle policy — bounds per-process
// memory growth from a long-lived goja VM.
func (m *Manager) recycleOverworked(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		slot, ok, err := workerruntime.FetchSlot(ctx, m.redis, id)
		if err != nil || !ok {
			continue
		}
		if slot.CompletedCount < m.cfg.MaxCompletionsPerWorker {
			continue
		}
		log.Info().Str("worker_id", id).Int64("completed", slot.CompletedCount).
			Msg("worker pool: recycling worker after reaching completion threshold")
		if err := m.Recycle(id); err != nil {
			log.Warn().Err(err).Str("worker_id", id).Msg("worker pool: completion-threshold recycle failed")
		}
	}
}

// autoscale grows the fleet toward max_workers while queue depth exceeds
// the current worker count and memory allows, and never grows below
// min_workers (shrinking back to min happens only on process exit, since
// an in-flight worker should always finish its current execution).
func (m *Manager) autoscale(ctx context.Context) {
	depth, err := m.queue.Depth(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("worker pool: failed to read queue depth for autoscale")
		return
	}

	m.mu.Lock()
	current := len(m.workers)
	m.mu.Unlock()

	if current >= m.cfg.MaxWorkers {
		return
	}
	if int64(current) >= depth && current >= m.cfg.MinWorkers {
		return
	}

	available, err := AvailableMemoryMB()
	if err != nil {
		log.Warn().Err(err).Msg("worker pool: available memory unknown, scaling up without the memory check")
	} else if available < m.cfg.WorkerMemoryThresholdMB {
		log.Warn().Int("available_mb", available).Int("threshold_mb", m.cfg.WorkerMemoryThresholdMB).
			Msg("worker pool: available memory below threshold, deferring scale-up")
		return
	}

	if err := m.spawn(); err != nil {
		log.Error().Err(err).Msg("worker pool: failed to spawn worker during autoscale")
	}
}

func (m *Manager) spawn() error {
	workerID := uuid.NewString()
	args := append([]string{"--worker-id", workerID}, m.cfg.WorkerArgs...)
	cmd := exec.Command(m.cfg.WorkerBinary, args...)
	cmd.Env = os.Environ()
	if m.logFile != nil {
		cmd.Stdout = m.logFile
		cmd.Stderr = m.logFile
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start worker process: %w", err)
	}

	m.mu.Lock()
	m.workers[workerID] = &process{workerID: workerID, cmd: cmd, startedAt: time.Now()}
	m.mu.Unlock()

	log.Info().Str("worker_id", workerID).Int("pid", cmd.Process.Pid).Msg("worker pool: spawned worker")
	return nil
}

// shutdownAll sends SIGTERM to every child, then escalates to SIGKILL
// for anything still alive after 30s.
func (m *Manager) shutdownAll() {
	m.mu.Lock()
	procs := make([]*process, 0, len(m.workers))
	for _, p := range m.workers {
		procs = append(procs, p)
	}
	m.mu.Unlock()

	for _, p := range procs {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}

	done := make(chan struct{})
	go func() {
		for _, p := range procs {
			_, _ = p.cmd.Process.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		for _, p := range procs {
			if p.cmd.ProcessState == nil {
				_ = p.cmd.Process.Kill()
			}
		}
	}
}

// Snapshot returns the currently tracked worker IDs, for the admin
// surface's worker-listing endpoint.
func (m *Manager) Snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	return ids
}
