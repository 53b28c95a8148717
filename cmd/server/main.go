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
	"golang.org/x/sync/errgroup"

	"github.com/printhouse/textile-erp/internal/app"
	"github.com/printhouse/textile-erp/internal/billing"
	"github.com/printhouse/textile-erp/internal/catalog"
	"github.com/printhouse/textile-erp/internal/customers"
	"github.com/printhouse/textile-erp/internal/observability"
	"github.com/printhouse/textile-erp/internal/orders"
	"github.com/printhouse/textile-erp/internal/platform/cache"
	"github.com/printhouse/textile-erp/internal/platform/db"
	"github.com/printhouse/textile-erp/internal/platform/lock"
	"github.com/printhouse/textile-erp/internal/pricing"
	"github.com/printhouse/textile-erp/internal/production"
	"github.com/printhouse/textile-erp/internal/shared"
	"github.com/printhouse/textile-erp/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Redis backs the billing lock and summary cache; without it both degrade
	// to unlocked, uncached operation and the database claim still guards runs.
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis unavailable", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	pipeline := metrics.Pipeline()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB}
	queueClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	catalogService := catalog.NewService(catalog.NewRepository(dbpool), logger)
	directory := customers.NewDirectory(dbpool)

	audit := shared.NewAuditLogger(dbpool)

	productionService := production.NewService(production.NewRepository(dbpool), directory, production.ServiceConfig{
		Logger:  logger,
		Metrics: pipeline,
		Audit:   audit,
	})
	orderService := orders.NewService(
		orders.NewRepository(dbpool),
		catalogService,
		jobs.NewOrderNotifier(queueClient, cfg.NotifyQueue),
		productionService,
		orders.ServiceConfig{
			Calculator:  pricing.NewCalculator(cfg.UploadBasePrice),
			Logger:      logger,
			Metrics:     pipeline,
			Idempotency: shared.NewIdempotencyStore(dbpool),
		},
	)
	billingService := billing.NewService(billing.NewRepository(dbpool), directory, orderService, billing.ServiceConfig{
		Locker:        lock.New(redisClient, cfg.BillingLockTTL, logger),
		Cache:         cache.NewVersioned(redisClient, "billing:summary", cfg.SummaryCacheTTL),
		Logger:        logger,
		Metrics:       pipeline,
		Audit:         audit,
		DefaultVATPct: cfg.DefaultVATPct,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		CatalogHandler:    catalog.NewHandler(logger, catalogService),
		OrdersHandler:     orders.NewHandler(logger, orderService),
		ProductionHandler: production.NewHandler(logger, productionService),
		BillingHandler:    billing.NewHandler(logger, billingService),
		CustomersHandler:  customers.NewHandler(directory),
		JobHandler:        jobs.NewHandler(inspector, cfg.NotifyQueue, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
