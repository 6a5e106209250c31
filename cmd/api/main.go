package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"affiliatescout/internal/bootstrap"
	"affiliatescout/internal/http/handlers"
	httpapi "affiliatescout/internal/http/httpapi"
	"affiliatescout/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadAPIConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api", cfg.LogLevel)

	ctx := context.Background()
	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, enrichment cache disabled")
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	pipeline, err := bootstrap.NewPipeline(ctx, cfg, store, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build discovery pipeline")
	}
	defer pipeline.Close()

	app := &handlers.App{
		Discovery:  pipeline.Service,
		Affiliates: store.Affiliates,
		Settings:   store.Settings,
		Schedules:  store.Schedules,
		Ping:       store.Ping,
		Logger:     logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Country:         pipeline.Country,
		Logger:          logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("store", store.Driver).Msg("api listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
