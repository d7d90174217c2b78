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

	"github.com/tellerdesk/tellerdesk/internal/app"
	"github.com/tellerdesk/tellerdesk/internal/ledger"
	"github.com/tellerdesk/tellerdesk/internal/liquidity"
	"github.com/tellerdesk/tellerdesk/internal/observability"
	"github.com/tellerdesk/tellerdesk/internal/platform/cache"
	"github.com/tellerdesk/tellerdesk/internal/platform/db"
	"github.com/tellerdesk/tellerdesk/internal/shared"
	"github.com/tellerdesk/tellerdesk/internal/teller"
	"github.com/tellerdesk/tellerdesk/jobs"
	"github.com/tellerdesk/tellerdesk/migrations"
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

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, cfg.PGDSN, migrations.FS, "."); err != nil {
			logger.Error("run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, mapping cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	identity := shared.NewIdentity(dbpool)
	metrics := observability.NewMetrics()

	ledgerRepo := ledger.NewRepository(dbpool)
	mappingCache := ledger.NewMappingCache(redisClient, cfg.MappingCacheTTL)
	provisioner := ledger.NewProvisioner(ledgerRepo, mappingCache, logger)
	resolver := ledger.NewResolver(ledgerRepo, mappingCache, provisioner, logger)
	ledgerService := ledger.NewService(ledgerRepo, resolver, auditLogger, metrics, logger)

	liquidityRepo := liquidity.NewRepository(dbpool)
	liquidityService := liquidity.NewService(liquidityRepo, auditLogger, ledgerRepo)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	notifier := jobs.NewNotifier(jobClient, logger)

	tellerRepo := teller.NewRepository(dbpool)
	tellerService := teller.NewService(tellerRepo, liquidityService, ledgerService, notifier, idempotencyStore, auditLogger, identity, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		TellerHandler:    teller.NewHandler(logger, tellerService),
		LedgerHandler:    ledger.NewHandler(logger, ledgerService, provisioner),
		LiquidityHandler: liquidity.NewHandler(logger, liquidityService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
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
