package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bookline-hq/bookline/internal/app"
	"github.com/bookline-hq/bookline/internal/authz"
	"github.com/bookline-hq/bookline/internal/identity"
	"github.com/bookline-hq/bookline/internal/observability"
	"github.com/bookline-hq/bookline/internal/platform/cache"
	"github.com/bookline-hq/bookline/internal/platform/db"
	"github.com/bookline-hq/bookline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	metrics := observability.NewMetrics()

	identityRepo := identity.NewPGRepository(dbpool)
	identityService := identity.NewService(identityRepo)

	var store authz.PermissionSetStore = authz.NewMemoryStore()
	if cfg.PermissionStore == "redis" {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		store = authz.NewRedisStore(redisClient)
	}

	resolver := authz.NewResolver(identityService, store, logger,
		authz.WithPermissionTTL(cfg.PermissionTTL),
		authz.WithResolverMetrics(metrics),
	)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	emitter := authz.NewEmitter(jobs.NewAuditSink(asynqClient), logger,
		authz.WithAuditQueueSize(cfg.AuditQueueSize),
		authz.WithEmitterMetrics(metrics),
	)
	defer emitter.Close()

	engine := authz.NewEngine(identityService, resolver, logger,
		authz.WithEmitter(emitter),
		authz.WithEngineMetrics(metrics),
	)

	authzHandler := authz.NewHandler(engine, resolver, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthzHandler: authzHandler,
		Identity:     identityService,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
