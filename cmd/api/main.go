package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"adminpanel/api/internal/cache"
	"adminpanel/api/internal/config"
	"adminpanel/api/internal/database"
	"adminpanel/api/internal/handlers"
	"adminpanel/api/internal/jobs"
	"adminpanel/api/internal/log"
	"adminpanel/api/internal/metrics"
	"adminpanel/api/internal/middleware"
	"adminpanel/api/internal/rbac"
	"adminpanel/api/internal/repository"
	"adminpanel/api/internal/security"
	"adminpanel/api/internal/server"
	"adminpanel/api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	encryptionKey, err := cfg.Security.EncryptionKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid encryption key")
	}
	codec, err := security.NewTokenCodec(security.TokenConfig{
		AccessSecret:  []byte(cfg.Security.JWTAccessSecret),
		RefreshSecret: []byte(cfg.Security.JWTRefreshSecret),
		EncryptionKey: encryptionKey,
		AccessTTL:     cfg.Security.AccessTokenTTL,
		RefreshTTL:    cfg.Security.RefreshTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build token codec")
	}

	sessions, err := repository.NewSessionStore(cfg.Session, dbPool, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open session store")
	}
	policies := repository.NewSessionRepository(dbPool)
	users := repository.NewUserRepository(dbPool)
	resolver := rbac.NewResolver(repository.NewRBACRepository(dbPool))
	hasher := security.NewArgon2Hasher()

	authService := service.NewAuthService(service.AuthDeps{
		Users:    users,
		Sessions: sessions,
		Policies: policies,
		RBAC:     resolver,
		Codec:    codec,
		Hasher:   hasher,
		Metrics:  m,
		Logger:   log.Component(logger, "auth"),
		Config: service.AuthConfig{
			ActivityThreshold: cfg.Security.ActivityThreshold,
			DefaultPolicyID:   cfg.Security.DefaultPolicyID,
		},
	})
	userService := service.NewUserService(users, sessions, hasher, m, log.Component(logger, "users"))

	loginLimiter := middleware.LoginRateLimit(redisClient, middleware.RateLimitConfig{
		Prefix: cfg.Session.RedisPrefix,
		Limit:  cfg.Security.LoginRateLimit,
		Window: cfg.Security.LoginRateWindow,
	}, m, logger)

	handlerSet, err := handlers.NewHandlerSet(logger, cfg, handlers.Deps{
		Auth:         authService,
		Users:        userService,
		Menu:         resolver,
		LoginLimiter: loginLimiter,
		Checks: map[string]handlers.HealthCheck{
			"database": dbPool.Ping,
			"cache": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build handlers")
	}
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet, m, registry)

	scheduler := jobs.NewScheduler(redisClient, cfg.Queue.Stream, cfg.Session.SweepSchedule, log.Component(logger, "scheduler"))
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("scheduler jobs still running at shutdown")
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
