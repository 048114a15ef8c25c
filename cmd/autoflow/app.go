package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-redis/redis/v8"

	"github.com/soochol/autoflow/internal/api"
	"github.com/soochol/autoflow/internal/autoflow/ports"
	"github.com/soochol/autoflow/internal/config"
	"github.com/soochol/autoflow/internal/crypto"
	"github.com/soochol/autoflow/internal/db"
	"github.com/soochol/autoflow/internal/engine"
	"github.com/soochol/autoflow/internal/integrations"
	"github.com/soochol/autoflow/internal/nodes"
	"github.com/soochol/autoflow/internal/queue"
	"github.com/soochol/autoflow/internal/repository"
	"github.com/soochol/autoflow/internal/services"
)

// app holds the wired service graph.
type app struct {
	history   *services.RunHistoryService
	queue     ports.JobQueue
	locks     ports.LockInspector // set when workflow locks are shared through Redis
	scheduler *services.SchedulerService
	workers   *services.WorkerPool
	server    *api.Server

	closers []func() error
}

type repositories struct {
	workflows  repository.WorkflowRepository
	executions repository.ExecutionRepository
	schedules  repository.ScheduleRepository
	triggers   repository.TriggerRepository
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	repos, err := a.openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		client *redis.Client
		lock   ports.ConcurrencyControl
	)
	a.queue = queue.NewMemoryQueue()
	if cfg.Redis.URL != "" {
		client, err = a.openRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.queue = queue.NewRedisQueue(client, cfg.Redis.QueueKey, 0)
		workflowLock := queue.NewRedisLock(client, cfg.Redis.LockTTL)
		lock, a.locks = workflowLock, workflowLock
		slog.Info("using redis job queue", "key", cfg.Redis.QueueKey)
	}

	registry := nodes.NewRegistry()
	opts, err := a.integrationOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	integrations.RegisterDefaults(registry, opts)
	slog.Info("integrations registered", "types", registry.Types())

	events := engine.NewEventBus()
	events.Subscribe(func(ev engine.Event) {
		slog.Debug("node event", "type", ev.Type, "execution", ev.ExecutionID, "node", ev.NodeID)
	})
	a.history = services.NewRunHistoryService(repos.executions)
	eng := engine.New(nodes.NewDispatcher(registry), a.history, events, slog.Default())

	workflowSvc := services.NewWorkflowService(repos.workflows)
	runRegistry := services.NewExecutionRegistry()
	runSvc := services.NewRunService(workflowSvc, a.history, a.queue, runRegistry)
	limiter := services.NewConcurrencyLimiter(cfg.ConcurrencyLimits(), lock)
	executor := services.NewRetryExecutor(eng, workflowSvc, a.history, a.queue, limiter, runRegistry, cfg.Execution)
	a.workers = services.NewWorkerPool(a.queue, executor, cfg.Worker.Count, nil)
	a.scheduler = services.NewSchedulerService(repos.schedules, runSvc, cfg.Scheduler.SweepInterval)
	if client != nil {
		a.scheduler.SetSweepLock(queue.NewRedisLockWithPrefix(client, "autoflow:sweep:", cfg.Redis.LockTTL))
	}

	a.server = api.NewServer(workflowSvc, runSvc)
	a.server.SetSchedulerService(a.scheduler)
	a.server.SetConcurrencyLimiter(limiter)
	a.server.SetTriggerRepository(repos.triggers)
	a.server.SetEventBus(events)
	return a, nil
}

// openRepositories returns PostgreSQL-backed repositories when a database
// URL is configured and in-memory ones otherwise.
func (a *app) openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	mem := &repositories{
		workflows:  repository.NewMemory(),
		executions: repository.NewMemoryExecutionRepository(),
		schedules:  repository.NewMemoryScheduleRepository(),
		triggers:   repository.NewMemoryTriggerRepository(),
	}
	if cfg.Database.URL == "" {
		slog.Info("no database configured, state is kept in memory")
		return mem, nil
	}

	key, err := crypto.ParseKey(cfg.Security.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("security.secret_key: %w", err)
	}
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return nil, err
	}
	if !sealer.Enabled() {
		slog.Warn("no secret key configured, webhook secrets are stored in plaintext")
	}

	database, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, database.Close)
	if err := database.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	slog.Info("connected to database")

	return &repositories{
		workflows:  repository.NewPersistent(repository.NewMemory(), database),
		executions: repository.NewPersistentExecutionRepository(repository.NewMemoryExecutionRepository(), database),
		schedules:  repository.NewPersistentScheduleRepository(repository.NewMemoryScheduleRepository(), database),
		triggers:   repository.NewPersistentTriggerRepository(repository.NewMemoryTriggerRepository(), database, sealer),
	}, nil
}

func (a *app) openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := queue.ParseRedisURL(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	client, err := queue.NewRedisClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return client, nil
}

// integrationOptions prepares the shared resources of the built-in actions.
// Database actions are disabled when no target database is configured.
func (a *app) integrationOptions(ctx context.Context, cfg *config.Config) (integrations.Options, error) {
	opts := integrations.Options{
		HTTPClient:     &http.Client{Timeout: cfg.Integrations.HTTPTimeout},
		SMTP:           cfg.Integrations.SMTP,
		SpreadsheetDir: cfg.Integrations.SpreadsheetDir,
	}
	if cfg.Integrations.DatabaseURL == "" {
		return opts, nil
	}
	target, err := db.New(ctx, cfg.Integrations.DatabaseURL)
	if err != nil {
		return opts, fmt.Errorf("open integration database: %w", err)
	}
	a.closers = append(a.closers, target.Close)
	opts.DB = target.Pool
	return opts, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("autoflow: close failed", "err", err)
		}
	}
	a.closers = nil
}
