package main

import (
	"context"

	"github.com/bifrostlabs/bifrost/internal/core/admission"
	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/core/fanout"
	"github.com/bifrostlabs/bifrost/internal/core/pending"
	"github.com/bifrostlabs/bifrost/internal/core/queuetracker"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/bifrostlabs/bifrost/internal/domain/services"
	"github.com/bifrostlabs/bifrost/internal/pkg/config"
	"github.com/bifrostlabs/bifrost/internal/pkg/database"
	"github.com/bifrostlabs/bifrost/internal/pkg/logger"
	"github.com/bifrostlabs/bifrost/internal/pkg/queue"
	pkgredis "github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/bifrostlabs/bifrost/internal/scheduler"
	"github.com/bifrostlabs/bifrost/internal/stuckmonitor"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.App.Environment, cfg.App.Debug)

	log.Info().
		Str("app", cfg.App.Name).
		Str("service", "scheduler").
		Msg("Starting scheduler service")

	db, err := database.NewGormDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	redisClient, err := pkgredis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	queueClient := queue.NewClient(&cfg.Redis)
	defer queueClient.Close()

	workflowRepo := repositories.NewWorkflowRepository(db)
	executionRepo := repositories.NewExecutionRepository(db)
	accessRepo := repositories.NewWorkflowAccessRepository(db)
	roleRepo := repositories.NewRoleAssignmentRepository(db)

	workflowSvc := services.NewWorkflowService(workflowRepo)
	authzResolver := authz.NewResolver(accessRepo, roleRepo)
	pendingStore := pending.NewStore(redisClient, cfg.Orchestration.PendingTTLSeconds)
	queueTracker := queuetracker.New(redisClient, cfg.Orchestration.QueueSweepMaxAgeSeconds)

	gate := admission.New(workflowSvc, authzResolver, pendingStore, queueTracker, queueClient, executionRepo)

	executionLogRepo := repositories.NewExecutionLogRepository(db)
	fanoutPublisher := fanout.NewPublisher(redisClient, executionLogRepo, cfg.Orchestration.SyncResultTTLSeconds)
	monitor := stuckmonitor.New(redisClient, executionRepo, fanoutPublisher, cfg.Orchestration.StuckTickSeconds)

	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	defer cancelMonitor()
	go monitor.Run(monitorCtx)

	s := scheduler.New(cfg, redisClient, workflowRepo, gate)

	if err := s.Start(); err != nil {
		log.Fatal().Err(err).Msg("Scheduler error")
	}
}
