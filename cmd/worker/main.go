package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"adminpanel/api/internal/cache"
	"adminpanel/api/internal/config"
	"adminpanel/api/internal/database"
	"adminpanel/api/internal/log"
	"adminpanel/api/internal/queue"
	"adminpanel/api/internal/repository"
	"adminpanel/api/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.Component(log.New(cfg.Environment), "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	sessions, err := repository.NewSessionStore(cfg.Session, dbPool, client)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open session store")
	}

	// the worker exposes no metrics endpoint
	processor := tasks.NewProcessor(sessions, nil, logger)
	consumer := queue.NewConsumer(client, cfg.Queue, logger, processor)

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
	case <-time.After(cfg.Queue.Block + time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}
