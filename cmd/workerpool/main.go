package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/bifrostlabs/bifrost/internal/core/queuetracker"
	"github.com/bifrostlabs/bifrost/internal/pkg/config"
	"github.com/bifrostlabs/bifrost/internal/pkg/logger"
	pkgredis "github.com/bifrostlabs/bifrost/internal/pkg/redisclient"
	"github.com/bifrostlabs/bifrost/internal/workerpool"
	"github.com/rs/zerolog/log"
)

func main() {
	workerBinary := flag.String("worker-binary", "bifrost-worker", "path to the worker executable spawned per fleet slot")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.App.Environment, cfg.App.Debug)

	log.Info().
		Str("app", cfg.App.Name).
		Str("service", "workerpool").
		Int("min_workers", cfg.Orchestration.MinWorkers).
		Int("max_workers", cfg.Orchestration.MaxWorkers).
		Msg("Starting worker pool manager")

	redisClient, err := pkgredis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	queueTracker := queuetracker.New(redisClient, cfg.Orchestration.QueueSweepMaxAgeSeconds)

	manager := workerpool.New(workerpool.Config{
		MinWorkers:              cfg.Orchestration.MinWorkers,
		MaxWorkers:              cfg.Orchestration.MaxWorkers,
		WorkerMemoryThresholdMB: cfg.Orchestration.WorkerMemoryThresholdMB,
		HeartbeatTTLSeconds:     cfg.Orchestration.HeartbeatTTLSeconds,
		WorkerBinary:            *workerBinary,
		MaxCompletionsPerWorker: cfg.Orchestration.MaxCompletionsPerWorker,
	}, redisClient, queueTracker, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down worker pool manager...")
		cancel()
	}()

	if err := manager.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Worker pool manager error")
	}
}
