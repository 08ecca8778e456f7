package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"ghostworks/api/internal/cache"
	"ghostworks/api/internal/config"
	"ghostworks/api/internal/database"
	"ghostworks/api/internal/log"
	"ghostworks/api/internal/queue"
	"ghostworks/api/internal/repository"
	"ghostworks/api/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel).With().Str("component", "worker").Logger()

	dbPool, err := database.NewPostgresPool(context.Background(), cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	client, err := cache.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	processor := tasks.NewProcessor(
		logger,
		repository.NewAuditRepository(dbPool, cfg.Postgres.QueryTimeout),
		repository.NewTenantRepository(dbPool, cfg.Postgres.QueryTimeout),
		cfg.Worker.AuditRetention,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Worker.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
