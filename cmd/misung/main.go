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
	"github.com/redis/go-redis/v9"

	"github.com/misung-crm/misung-crm/cmd/misung/cli"
	"github.com/misung-crm/misung-crm/internal/app"
	"github.com/misung-crm/misung-crm/internal/branch"
	"github.com/misung-crm/misung-crm/internal/observability"
	"github.com/misung-crm/misung-crm/internal/overinvestment"
	"github.com/misung-crm/misung-crm/internal/platform/cache"
	"github.com/misung-crm/misung-crm/internal/platform/db"
	"github.com/misung-crm/misung-crm/internal/rowstore"
	"github.com/misung-crm/misung-crm/internal/stats"
	statshttp "github.com/misung-crm/misung-crm/internal/stats/http"
	"github.com/misung-crm/misung-crm/jobs"
)

const statsCacheNamespace = "misung:stats"

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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			logger.Error("jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = jobsCLI.Close() }()
		if err := jobsCLI.Run(ctx, os.Args[2:], os.Stdout); err != nil {
			logger.Error("jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("stats timezone", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithTimeZone(cfg.StatsTimezone))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var redisClient *redis.Client
	if cfg.CacheEnabled() {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, stats cache disabled", slog.Any("error", err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

	statsCache := cache.NewVersioned(redisClient, statsCacheNamespace, cfg.StatsCacheTTL)
	if err := statsCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("stats cache invalidation listener", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	resolver := branch.NewResolver(cfg.MultiBranchUsers...)
	store := rowstore.NewPostgres(dbpool)
	statsService := stats.NewService(store, resolver, logger, loc)
	cachedStats := statshttp.NewCachedService(statsService, statsCache, resolver, logger).
		WithRecorder(metrics).
		WithFlightTimeout(cfg.AppRequestTimeout)
	statsHandler := statshttp.NewHandler(logger, cachedStats, loc, cfg.AppRequestTimeout)

	ledgerService := overinvestment.NewService(overinvestment.NewRepository(dbpool), cachedStats, logger)
	ledgerHandler := overinvestment.NewHandler(logger, ledgerService, app.AdminGuard(cfg.AdminToken, logger))
	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, over-investment writes are disabled")
	}

	var inspector *asynq.Inspector
	if redisOpt, err := jobs.RedisConnOpt(cfg.RedisAddr); err != nil {
		logger.Warn("job inspector disabled", slog.Any("error", err))
	} else {
		inspector = asynq.NewInspector(redisOpt)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
	}
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		StatsHandler:          statsHandler,
		OverInvestmentHandler: ledgerHandler,
		JobHandler:            jobHandler,
		Metrics:               metrics,
		Ready: func(r *http.Request) error {
			return dbpool.Ping(r.Context())
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("stats_timezone", loc.String()),
			slog.Bool("stats_cache", statsCache.Enabled()),
			slog.Any("multi_branch_users", resolver.MultiBranchUsers()))
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
