package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/core/cancelsignal"
	"github.com/bifrostlabs/bifrost/internal/core/fanout"
	"github.com/bifrostlabs/bifrost/internal/core/pending"
	"github.com/bifrostlabs/bifrost/internal/core/queuetracker"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/bifrostlabs/bifrost/internal/pkg/config"
	"github.com/bifrostlabs/bifrost/internal/pkg/database"
	"github.com/bifrostlabs/bifrost/internal/pkg/logger"
	"github.com/bifrostlabs/bifrost/internal/pkg/objectstore"
	"github.com/bifrostlabs/bifrost/internal/pkg/queue"
	pkgredis "github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/bifrostlabs/bifrost/internal/workerruntime"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

func main() {
	workerID := flag.String("worker-id", "", "stable identifier for this worker process, used as the heartbeat slot key")
	flag.Parse()
	if *workerID == "" {
		*workerID = uuid.NewString()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.App.Environment, cfg.App.Debug)

	log.Info().
		Str("app", cfg.App.Name).
		Str("service", "worker").
		Str("worker_id", *workerID).
		Msg("Starting worker runtime")

	db, err := database.NewGormDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	redisClient, err := pkgredis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	executionRepo := repositories.NewExecutionRepository(db)
	executionLogRepo := repositories.NewExecutionLogRepository(db)
	workflowRepo := repositories.NewWorkflowRepository(db)
	accessRepo := repositories.NewWorkflowAccessRepository(db)
	roleRepo := repositories.NewRoleAssignmentRepository(db)
	deliveryRepo := repositories.NewEventDeliveryRepository(db)

	pendingStore := pending.NewStore(redisClient, cfg.Orchestration.PendingTTLSeconds)
	queueTracker := queuetracker.New(redisClient, cfg.Orchestration.QueueSweepMaxAgeSeconds)
	authzResolver := authz.NewResolver(accessRepo, roleRepo)
	fanoutPublisher := fanout.NewPublisher(redisClient, executionLogRepo, cfg.Orchestration.SyncResultTTLSeconds)
	cancelSignal := cancelsignal.New(redisClient)

	store, err := objectstore.NewS3Store(context.Background(), &cfg.S3)
	if err != nil {
		log.Warn().Err(err).Msg("S3 object store unavailable, module cache will serve Redis-cached modules only")
		store = nil
	}
	var moduleObjectStore workerruntime.ObjectStore
	if store != nil {
		moduleObjectStore = store
	}
	moduleCache := workerruntime.NewModuleCache(redisClient, moduleObjectStore)
	heartbeat := workerruntime.NewHeartbeat(redisClient, *workerID, cfg.Orchestration.HeartbeatTTLSeconds)

	runtime := workerruntime.New(
		*workerID,
		pendingStore,
		executionRepo,
		executionLogRepo,
		workflowRepo,
		deliveryRepo,
		authzResolver,
		fanoutPublisher,
		queueTracker,
		cancelSignal,
		moduleCache,
		heartbeat,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = heartbeat.Idle(ctx)
	heartbeatInterval := cfg.Orchestration.HeartbeatIntervalSeconds
	if heartbeatInterval <= 0 {
		heartbeatInterval = 5
	}
	go heartbeat.Run(ctx, time.Duration(heartbeatInterval)*time.Second)

	server := queue.NewServer(&cfg.Redis, 1) // concurrency=1: one execution per process
	server.HandleFunc(queue.TypeWorkflowDispatch, runtime.Handle)
	server.HandleFunc(queue.TypePackageInstallation, func(ctx context.Context, task *asynq.Task) error {
		var payload queue.PackageInstallation
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			log.Error().Err(err).Msg("worker: malformed package installation broadcast, acking")
			return nil
		}
		if err := moduleCache.Invalidate(ctx, payload.Path); err != nil {
			log.Warn().Err(err).Str("path", payload.Path).Msg("worker: failed to invalidate module cache entry")
		}
		return nil
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Str("worker_id", *workerID).Msg("Shutting down worker...")
		_ = heartbeat.Killed(context.Background())
		cancel()
		server.Shutdown()
	}()

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Worker error")
	}
}
