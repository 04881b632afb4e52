package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/festivo/ops-service/internal/api/http"
	"github.com/festivo/ops-service/internal/api/http/handlers"
	"github.com/festivo/ops-service/internal/collab"
	"github.com/festivo/ops-service/internal/config"
	"github.com/festivo/ops-service/internal/events"
	"github.com/festivo/ops-service/internal/observability"
	"github.com/festivo/ops-service/internal/persistence"
	"github.com/festivo/ops-service/internal/repository"
	"github.com/festivo/ops-service/internal/service"
	"github.com/festivo/ops-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	runner := &persistence.PgTxRunner{Pool: pool}
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	var idem persistence.IdempotencyGuard
	if redis.Client != nil {
		idem = persistence.NewRedisIdempotencyGuard(redis.Client, 0)
	} else {
		idem = persistence.NewMemoryIdempotencyGuard()
	}

	leadRepo := repository.NewLeadRepository(pool)
	engagementRepo := repository.NewEngagementRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	taskRepo := repository.NewOrderTaskRepository(pool)
	eventRepo := repository.NewEventRepository(pool)
	inventoryRepo := repository.NewInventoryRepository(pool)

	messenger := &collab.LogMessenger{Logger: logger}
	emailer := &collab.LogEmailer{Logger: logger}
	conversions := &collab.LogConversionReporter{Logger: logger}
	docs := &collab.LogDocumentGenerator{Logger: logger, RootDomain: cfg.Company.RootDomain}
	composer := &collab.StaticCopyComposer{}

	inventoryService := service.NewInventoryService(service.InventoryDependencies{
		Runner:     runner,
		Repo:       inventoryRepo,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	engagementService, err := service.NewEngagementService(service.EngagementDependencies{
		Runner:      runner,
		Repo:        engagementRepo,
		Messenger:   messenger,
		Composer:    composer,
		Idempotency: idem,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Company:     cfg.Company,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failed to build engagement service", zap.Error(err))
	}

	leadService, err := service.NewLeadService(service.LeadDependencies{
		Runner:      runner,
		Repo:        leadRepo,
		Messenger:   messenger,
		Conversions: conversions,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Company:     cfg.Company,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("failed to build lead service", zap.Error(err))
	}

	taskService, err := service.NewOrderTaskService(service.OrderTaskDependencies{
		Runner:     runner,
		Repo:       taskRepo,
		Emailer:    emailer,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to build task service", zap.Error(err))
	}

	orderService, err := service.NewOrderService(service.OrderDependencies{
		Runner:     runner,
		Repo:       orderRepo,
		Inventory:  inventoryService,
		Tasks:      taskService,
		Leads:      leadService,
		Emailer:    emailer,
		Messenger:  messenger,
		Composer:   composer,
		Docs:       docs,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Company:    cfg.Company,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to build order service", zap.Error(err))
	}

	eventService, err := service.NewEventService(service.EventDependencies{
		Runner:     runner,
		Repo:       eventRepo,
		Leads:      leadService,
		Messenger:  messenger,
		Emailer:    emailer,
		Composer:   composer,
		Docs:       docs,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Company:    cfg.Company,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatal("failed to build event service", zap.Error(err))
	}

	// Cross-service cascades are late-bound to break construction cycles.
	leadService.BindEngagements(engagementService)
	engagementService.BindLeads(leadService)
	taskService.BindOrders(orderService)

	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService, logger)

	sweeper, err := worker.StartEngagementSweeper(cfg.Sweep, engagementService, logger)
	if err != nil {
		logger.Fatal("failed to start engagement sweeper", zap.Error(err))
	}

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Leads:     handlers.NewLeadsHandler(leadService, engagementService),
		Orders:    handlers.NewOrdersHandler(orderService, taskService),
		Inventory: handlers.NewInventoryHandler(inventoryService),
		Events:    handlers.NewEventsHandler(eventService),
		Webhooks:  handlers.NewWebhooksHandler(leadService, engagementService, logger),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if sweeper != nil {
		sweeper.Stop()
	}
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
