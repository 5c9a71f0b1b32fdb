package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bifrostlabs/bifrost/internal/api/handlers"
	"github.com/bifrostlabs/bifrost/internal/api/middleware"
	ws "github.com/bifrostlabs/bifrost/internal/api/websocket"
	"github.com/bifrostlabs/bifrost/internal/core/admission"
	"github.com/bifrostlabs/bifrost/internal/core/cancelsignal"
	"github.com/bifrostlabs/bifrost/internal/core/queuetracker"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/bifrostlabs/bifrost/internal/domain/services"
	"github.com/bifrostlabs/bifrost/internal/pkg/config"
	"github.com/bifrostlabs/bifrost/internal/pkg/crypto"
	"github.com/bifrostlabs/bifrost/internal/pkg/metrics"
	"github.com/bifrostlabs/bifrost/internal/pkg/queue"
	pkgredis "github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/bifrostlabs/bifrost/internal/webhook"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Services bundles the domain services the API layer calls into;
// everything else (admission, authz, queueing) is wired directly as
// Core components, not app-level services.
type Services struct {
	Auth     *services.AuthService
	Workflow *services.WorkflowService
}

// Repositories bundles the repositories handlers read directly.
type Repositories struct {
	Executions *repositories.ExecutionRepository
	Logs       *repositories.ExecutionLogRepository
	APIKeys    *repositories.APIKeyRepository
}

// Core bundles the orchestration core components (C1, C3, C4's tracker
// view, C10) the API surface sits in front of.
type Core struct {
	Gate         *admission.Gate
	QueueTracker *queuetracker.Tracker
	CancelSignal *cancelsignal.Signal
	Webhooks     *webhook.Dispatcher
	Broker       *queue.Client
}

type Server struct {
	cfg        *config.Config
	router     *chi.Mux
	httpServer *http.Server
	hub        *ws.Hub
	subscriber *ws.Subscriber
}

func NewServer(
	cfg *config.Config,
	svc *Services,
	repos *Repositories,
	core *Core,
	db *gorm.DB,
	redisClient *pkgredis.Client,
	jwtManager *crypto.JWTManager,
) *Server {
	s := &Server{cfg: cfg}

	hub := ws.NewHub()
	subscriber := ws.NewSubscriber(redisClient.Client, hub)
	s.hub = hub
	s.subscriber = subscriber

	authHandler := handlers.NewAuthHandler(svc.Auth)
	executionHandler := handlers.NewExecutionHandler(
		core.Gate,
		repos.Executions,
		repos.Logs,
		core.QueueTracker,
		core.CancelSignal,
		cfg.Orchestration.CancelGraceSeconds,
	)
	mcpHandler := handlers.NewMCPHandler(core.Gate)
	workerHandler := handlers.NewWorkerHandler(redisClient, core.Broker)
	workflowHandler := handlers.NewWorkflowHandler(svc.Workflow)
	healthHandler := handlers.NewHealthHandlerWithDeps(db, redisClient.Client)
	wsHandler := handlers.NewWebSocketHandler(hub, jwtManager)
	webhookHandler := webhook.NewHandler(core.Webhooks)

	authMW := middleware.NewAuthMiddleware(jwtManager, redisClient, repos.APIKeys)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger())
	r.Use(middleware.Recoverer())
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/ws", wsHandler.HandleConnection)

	webhookHandler.Routes(r)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimiter.Limit(120, time.Minute))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMW.Authenticate)

			r.Post("/auth/logout", authHandler.Logout)

			r.Route("/executions", func(r chi.Router) {
				r.Post("/", executionHandler.Admit)
				r.Get("/", executionHandler.List)
				r.Get("/queue", executionHandler.QueueStatus)
				r.Get("/{executionID}", executionHandler.Get)
				r.Get("/{executionID}/logs", executionHandler.Logs)
				r.Get("/{executionID}/queue-position", executionHandler.QueuePosition)
				r.Post("/{executionID}/cancel", executionHandler.Cancel)
			})

			r.Route("/workflows", func(r chi.Router) {
				r.Get("/", workflowHandler.List)
				r.Get("/{workflowID}", workflowHandler.Get)
				r.Patch("/{workflowID}/active", workflowHandler.SetActive)
			})

			r.Get("/workers", workerHandler.List)
			r.Post("/workers/{id}/recycle", workerHandler.Recycle)

			r.Post("/modules/invalidate", workerHandler.InvalidateModule)

			r.Route("/mcp/tools", func(r chi.Router) {
				r.Post("/execute_workflow", mcpHandler.ExecuteWorkflowTool)
			})
		})
	})

	s.router = r
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

func (s *Server) Start() error {
	go s.hub.Run()
	s.subscriber.Start()

	log.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.subscriber.Stop()
	return s.httpServer.Shutdown(ctx)
}
