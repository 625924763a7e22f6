package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/mini-inbox/internal/aggregation"
	httptransport "github.com/spec-kit/mini-inbox/internal/api/http"
	"github.com/spec-kit/mini-inbox/internal/api/http/handlers"
	"github.com/spec-kit/mini-inbox/internal/config"
	"github.com/spec-kit/mini-inbox/internal/events"
	"github.com/spec-kit/mini-inbox/internal/observability"
	"github.com/spec-kit/mini-inbox/internal/persistence"
	"github.com/spec-kit/mini-inbox/internal/repository"
	"github.com/spec-kit/mini-inbox/internal/service"
	"github.com/spec-kit/mini-inbox/internal/webhook"
	"github.com/spec-kit/mini-inbox/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("mini-inbox-api", cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticketRepo, closeStore, err := openTicketStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open ticket store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closeStore()

	if _, err := persistence.SeedTickets(ctx, ticketRepo, cfg.Store.SeedPath, logger); err != nil {
		logger.Warn("failed to load seeds", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewQueuedDispatcher(cfg.Notification.QueueSize)
	notificationService := service.NewNotificationService(
		dispatcher,
		webhook.New(cfg.Notification.Timeout()),
		metrics,
		logger,
		cfg.Notification,
	)
	notificationService.RegisterHandlers()
	notificationWorker := worker.NewNotificationWorker(dispatcher, cfg.Notification.Workers, logger)
	notificationWorker.Start(ctx)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	metricsReader := aggregation.NewReader(cfg.Metrics.OutputPath, logger)
	go func() {
		if err := metricsReader.Watch(ctx); err != nil {
			logger.Warn("metrics artifact watch disabled; reading from disk on every request", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:      cfg.App.RequestTimeout(),
		AllowOrigins: cfg.App.CORSAllowOrigins,
	})

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{"store": ticketRepo}),
		Tickets: handlers.NewTicketsHandler(ticketService),
		Metrics: handlers.NewMetricsHandler(metricsReader),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := notificationWorker.Stop(stopCtx); err != nil {
		logger.Warn("notification worker did not drain", zap.Error(err))
	}
	logger.Info("final counters", zap.Any("counters", metrics.Snapshot()))
}

// openTicketStore builds the configured store and returns its close function.
func openTicketStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.TicketRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, nil, err
			}
		}
		return repository.NewTicketRepository(pg.PoolHandle()), pg.Close, nil
	case config.StoreDriverRedis:
		rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisTicketRepository(rdb.Client, cfg.Redis.KeyPrefix), rdb.Close, nil
	default:
		logger.Info("using in-memory ticket store")
		return repository.NewMemoryTicketRepository(), func() {}, nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
