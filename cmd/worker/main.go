package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/misung-crm/misung-crm/internal/app"
	"github.com/misung-crm/misung-crm/internal/branch"
	jobmetrics "github.com/misung-crm/misung-crm/internal/jobs"
	"github.com/misung-crm/misung-crm/internal/observability"
	"github.com/misung-crm/misung-crm/internal/platform/cache"
	"github.com/misung-crm/misung-crm/internal/platform/db"
	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/stats"
	statshttp "github.com/misung-crm/misung-crm/internal/stats/http"
	"github.com/misung-crm/misung-crm/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
	loc, err := cfg.Location()
	if err != nil {
		logger.Error("stats timezone", slog.Any("error", err))
		os.Exit(1)
	}
	if !cfg.CacheEnabled() {
		logger.Info("STATS_CACHE_TTL is zero, scheduled warm-up disabled")
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithTimeZone(cfg.StatsTimezone))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	resolver := branch.NewResolver(cfg.MultiBranchUsers...)
	store := rowstore.NewPostgres(pool)
	statsService := stats.NewService(store, resolver, logger, loc)
	var cacheClient *redis.Client
	if cfg.CacheEnabled() {
		cacheClient = redisClient
	}
	statsCache := cache.NewVersioned(cacheClient, "misung:stats", cfg.StatsCacheTTL)
	metrics := observability.NewMetrics()
	warmer := statshttp.NewCachedService(statsService, statsCache, resolver, logger).WithRecorder(metrics)

	warmupJob := jobs.NewStatsWarmupJob(warmer, store, loc, logger, jobmetrics.NewMetrics(metrics.Registerer()))

	var cron []jobs.CronRegistration
	if cfg.CacheEnabled() && cfg.WarmupCron != "" {
		warmupTask, err := jobs.NewStatsWarmupTask(0, uuid.Nil)
		if err != nil {
			logger.Error("build warmup task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	redisOpt, err := jobs.RedisConnOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("redis options", slog.Any("error", err))
		os.Exit(1)
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpt,
		Logger:    logger,
		Location:  loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStatsWarmup, Handler: warmupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
