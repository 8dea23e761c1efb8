package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/auth"
	"github.com/ternarybob/praedium/internal/common"
	"github.com/ternarybob/praedium/internal/handlers"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/queue"
	"github.com/ternarybob/praedium/internal/scheduler"
	"github.com/ternarybob/praedium/internal/scraper"
	badgerstore "github.com/ternarybob/praedium/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB              *badgerstore.BadgerDB
	PropertyStorage interfaces.PropertyStorage
	JobStorage      interfaces.JobStorage

	TokenManager   *auth.Manager
	ScraperService *scraper.Service

	QueueManager *queue.Manager
	QueueService *queue.Service
	WorkerPool   *queue.WorkerPool
	Scheduler    *scheduler.Service

	// HTTP handlers
	PropertyHandler    *handlers.PropertyHandler
	JobHandler         *handlers.JobHandler
	StatusHandler      *handlers.StatusHandler
	MaintenanceHandler *handlers.MaintenanceHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// New wires the application together from configuration
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config: cfg,
		Logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	db, err := badgerstore.NewBadgerDB(logger, &cfg.Storage.Badger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.DB = db
	a.PropertyStorage = badgerstore.NewPropertyStorage(db, logger)
	a.JobStorage = badgerstore.NewJobStorage(db, logger)

	a.TokenManager = auth.NewManager(cfg, logger)
	a.ScraperService = scraper.NewService(cfg, a.TokenManager, logger)

	queueManager, err := queue.NewManager(db.Badger(), cfg.Queue.QueueName)
	if err != nil {
		db.Close()
		cancel()
		return nil, fmt.Errorf("failed to create queue: %w", err)
	}
	a.QueueManager = queueManager

	admission := queue.NewAdmission(queueManager, a.JobStorage, a.PropertyStorage,
		common.Duration(cfg.Queue.CooldownWindow, 0), logger)
	dedup := queue.NewDeduplicator(queueManager, a.PropertyStorage, logger)
	a.QueueService = queue.NewService(queueManager, admission, dedup, a.JobStorage, cfg, logger)
	a.WorkerPool = queue.NewWorkerPool(queueManager, a.JobStorage, a.PropertyStorage, a.ScraperService, cfg, logger)

	a.Scheduler = scheduler.NewService(logger)
	if err := a.registerScheduledJobs(); err != nil {
		db.Close()
		cancel()
		return nil, err
	}

	a.PropertyHandler = handlers.NewPropertyHandler(a.QueueService, a.PropertyStorage, a.JobStorage, logger)
	a.JobHandler = handlers.NewJobHandler(a.QueueService, logger)
	a.StatusHandler = handlers.NewStatusHandler(a.QueueService, a.TokenManager, a.ScraperService, a.Scheduler, a.PropertyStorage, logger)
	a.MaintenanceHandler = handlers.NewMaintenanceHandler(a.QueueService, a.TokenManager, logger)

	return a, nil
}

func (a *App) registerScheduledJobs() error {
	if err := a.Scheduler.RegisterJob("queue-dedup", a.Config.Queue.DedupSchedule, func() error {
		_, err := a.QueueService.RemoveDuplicates(a.ctx, queue.DedupOptions{})
		return err
	}); err != nil {
		return fmt.Errorf("failed to register dedup job: %w", err)
	}

	if a.Config.Scheduler.Enabled {
		seeder := scheduler.NewSeeder(a.QueueService, a.Config.Scheduler.MonitoredTerms, a.Logger)
		if err := a.Scheduler.RegisterJob("seed-monitored-terms", a.Config.Scheduler.SeedSchedule, func() error {
			return seeder.Run(a.ctx)
		}); err != nil {
			return fmt.Errorf("failed to register seed job: %w", err)
		}
	}

	return nil
}

// Start launches background processing: token auto-refresh, the worker
// pool, and the maintenance scheduler.
func (a *App) Start() error {
	if err := a.TokenManager.StartAutoRefresh(a.Config.Token.RefreshSchedule); err != nil {
		return fmt.Errorf("failed to start token auto-refresh: %w", err)
	}

	a.WorkerPool.Start(a.ctx)

	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	a.Logger.Info().
		Str("queue", a.Config.Queue.QueueName).
		Int("workers", a.Config.Queue.Concurrency).
		Msg("Application started")

	return nil
}

// Close shuts down background processing and releases storage
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}
	if a.WorkerPool != nil {
		a.WorkerPool.Stop()
	}
	if a.TokenManager != nil {
		a.TokenManager.Shutdown()
	}

	a.cancel()

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
