package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/keystone-admin/keystone/internal/app"
	"github.com/keystone-admin/keystone/internal/audit"
	"github.com/keystone-admin/keystone/internal/auth"
	"github.com/keystone-admin/keystone/internal/observability"
	"github.com/keystone-admin/keystone/internal/platform/cache"
	"github.com/keystone-admin/keystone/internal/platform/db"
	"github.com/keystone-admin/keystone/jobs"
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("keystone exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	opts := app.Options{
		Config:     cfg,
		Logger:     logger,
		Metrics:    observability.NewMetrics(),
		RequestLog: !cfg.IsProduction(),
	}

	switch cfg.StoreDriver {
	case app.StoreDriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		opts.Backend = app.MemoryBackend()
	default:
		poolOpts := db.PoolOptions{}
		if cfg.SlogLevel() == slog.LevelDebug {
			poolOpts.QueryLogger = logger.With(slog.String("component", "pgx"))
		}
		pool, err := db.New(ctx, cfg.PGDSN, poolOpts)
		if err != nil {
			return err
		}
		defer pool.Close()
		opts.Backend = app.PostgresBackend(pool)
	}

	var redisClient *redis.Client
	if cfg.DenylistEnabled || cfg.AuditAsync {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}
	if cfg.DenylistEnabled {
		opts.Denylist = auth.NewRedisDenylist(redisClient)
	}

	if cfg.AuditAsync {
		redisOpts, err := jobs.RedisOpt(cfg.RedisAddr)
		if err != nil {
			return err
		}
		client, err := jobs.NewClient(redisOpts)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		opts.Audit = audit.NewQueueRecorder(client, logger)

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("asynq inspector close", slog.Any("error", err))
			}
		}()
		opts.JobHandler = jobs.NewHandler(inspector, logger)
	}

	container, err := app.Build(opts)
	if err != nil {
		return err
	}

	if cfg.SeedDefaults {
		res, err := container.Seed(ctx)
		if err != nil {
			return err
		}
		logger.Info("seed complete",
			slog.Int("scopes", res.Scopes),
			slog.Int("roles", res.Roles),
			slog.Bool("admin_created", res.AdminCreated))
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      container.Router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("strategy", cfg.PermissionStrategy),
			slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
