package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"affiliatescout/internal/bootstrap"
	"affiliatescout/internal/discovery"
	"affiliatescout/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: open store failed")
	}
	defer store.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("worker: redis unavailable, enrichment cache disabled")
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	pipeline, err := bootstrap.NewPipeline(ctx, cfg, store, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: build discovery pipeline failed")
	}
	defer pipeline.Close()

	runner := discovery.NewRunner(pipeline.Service, cfg.Discovery.UnattendedPoll, cfg.Discovery.UnattendedTimeout, logger)
	scheduler := discovery.NewScheduler(runner, store.Schedules, cfg.Schedule.Spec, cfg.Schedule.BatchSize, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.Schedule.Spec).Msg("worker: schedule rejected")
	}
	logger.Info().Str("spec", cfg.Schedule.Spec).Int("batch", cfg.Schedule.BatchSize).Msg("worker: started")

	<-ctx.Done()
	scheduler.Stop()
	logger.Info().Msg("worker: stopped")
}
