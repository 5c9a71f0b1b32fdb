package main

import (
	"github.com/bifrostlabs/bifrost/internal/api"
	"github.com/bifrostlabs/bifrost/internal/core/admission"
	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/core/cancelsignal"
	"github.com/bifrostlabs/bifrost/internal/core/pending"
	"github.com/bifrostlabs/bifrost/internal/core/queuetracker"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/bifrostlabs/bifrost/internal/domain/services"
	"github.com/bifrostlabs/bifrost/internal/pkg/config"
	"github.com/bifrostlabs/bifrost/internal/pkg/crypto"
	"github.com/bifrostlabs/bifrost/internal/pkg/database"
	"github.com/bifrostlabs/bifrost/internal/pkg/logger"
	"github.com/bifrostlabs/bifrost/internal/pkg/queue"
	pkgredis "github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/bifrostlabs/bifrost/internal/webhook"
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
		Str("env", cfg.App.Environment).
		Msg("Starting API server")

	db, err := database.NewGormDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	redisClient, err := pkgredis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	broker := queue.NewClient(&cfg.Redis)

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	workflowRepo := repositories.NewWorkflowRepository(db)
	workflowAccessRepo := repositories.NewWorkflowAccessRepository(db)
	roleAssignmentRepo := repositories.NewRoleAssignmentRepository(db)
	executionRepo := repositories.NewExecutionRepository(db)
	executionLogRepo := repositories.NewExecutionLogRepository(db)
	eventSourceRepo := repositories.NewEventSourceRepository(db)
	eventSubscriptionRepo := repositories.NewEventSubscriptionRepository(db)
	eventRepo := repositories.NewEventRepository(db)
	eventDeliveryRepo := repositories.NewEventDeliveryRepository(db)

	// Crypto
	jwtManager := crypto.NewJWTManager(crypto.JWTConfig{
		Secret:        cfg.JWT.Secret,
		AccessExpiry:  cfg.JWT.AccessExpiry,
		RefreshExpiry: cfg.JWT.RefreshExpiry,
		Issuer:        cfg.JWT.Issuer,
	})

	// Domain services
	authSvc := services.NewAuthService(userRepo, sessionRepo, jwtManager)
	workflowSvc := services.NewWorkflowService(workflowRepo)

	// Orchestration core the admission gate and query surface sit on
	// top of (C1, C3, C7); dispatch and result fan-out live in the
	// worker binary, not here.
	authzResolver := authz.NewResolver(workflowAccessRepo, roleAssignmentRepo)
	pendingStore := pending.NewStore(redisClient, cfg.Orchestration.PendingTTLSeconds)
	queueTracker := queuetracker.New(redisClient, cfg.Orchestration.QueueSweepMaxAgeSeconds)
	cancelSignal := cancelsignal.New(redisClient)

	gate := admission.New(workflowSvc, authzResolver, pendingStore, queueTracker, broker, executionRepo)

	// Event/Webhook Dispatcher (C10)
	webhookDispatcher := webhook.New(eventSourceRepo, eventSubscriptionRepo, eventRepo, eventDeliveryRepo, gate)

	server := api.NewServer(
		cfg,
		&api.Services{
			Auth:     authSvc,
			Workflow: workflowSvc,
		},
		&api.Repositories{
			Executions: executionRepo,
			Logs:       executionLogRepo,
			APIKeys:    apiKeyRepo,
		},
		&api.Core{
			Gate:         gate,
			QueueTracker: queueTracker,
			CancelSignal: cancelSignal,
			Webhooks:     webhookDispatcher,
			Broker:       broker,
		},
		db,
		redisClient,
		jwtManager,
	)

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
