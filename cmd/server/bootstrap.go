package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/teampulse/insight/internal/config"
	"github.com/teampulse/insight/internal/handlers"
	"github.com/teampulse/insight/internal/models"
	"github.com/teampulse/insight/internal/services"
	"github.com/teampulse/insight/internal/utils"
	"github.com/teampulse/insight/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds all initialized services needed by the application.
type appServices struct {
	db        *gorm.DB
	planner   *services.ScopePlanner
	insights  *services.InsightService
	items     *services.WorkItemService
	sseHub    *services.SSEHub
	wsHub     *services.WSHub
	upgrader  *websocket.Upgrader
	taskQueue services.TaskQueue
	worker    *services.Worker
	scheduler *services.Scheduler
	redis     *redis.Client
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	db := models.GetDB()

	app := &appServices{db: db}

	cache, counter, err := app.newCacheStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize cache: %v", err)
	}

	store := services.NewGormStore(db)
	gens := services.NewGenerationsWith(counter)
	app.planner = services.NewScopePlanner(store)
	app.insights = services.NewInsightService(services.InsightDeps{
		Planner:     app.planner,
		Thresholds:  cfg.Analytics,
		Cache:       services.WithMetrics(cache),
		Insights:    services.NewInsightProvider(cfg.LLM),
		Renderer:    services.NewPDFRenderer(),
		Artifacts:   services.NewGormArtifactRepository(db),
		Generations: gens,
		AdvisoryTTL: cfg.Cache.AdvisoryTTL,
		ReportTTL:   cfg.Cache.ReportTTL,
		Retention:   cfg.Report.Retention,
		ReportDir:   cfg.Report.Dir,
	})

	// Delta transports
	app.sseHub = services.NewSSEHub()
	app.wsHub = services.NewWSHub()
	go app.wsHub.Run()
	app.upgrader = services.NewUpgrader(cfg.Server.AllowedOrigins)

	app.items = services.NewWorkItemService(services.WorkItemDeps{
		Planner:     app.planner,
		Store:       store,
		Items:       store,
		Generations: gens,
		Notifier:    services.NewNotifier(app.sseHub, app.wsHub),
		Thresholds:  cfg.Analytics,
	})

	// Task queue (uses Redis if enabled, otherwise sync mode)
	processor := services.ReportTaskProcessor(app.insights)
	app.taskQueue = services.NewTaskQueue(cfg)
	if syncQueue, ok := app.taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(processor)
	} else if worker := services.NewWorker(&cfg.Redis); worker != nil {
		worker.SetProcessor(processor)
		if err := worker.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start async worker")
		} else {
			app.worker = worker
		}
	}

	app.scheduler = services.NewScheduler(app.insights, store, app.taskQueue, db, cfg)
	if err := app.scheduler.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	if err := handlers.RegisterRuntimeGauges(prometheus.DefaultRegisterer, db, app.taskQueue, app.sseHub, app.wsHub); err != nil {
		logger.Warn().Err(err).Msg("Failed to register runtime gauges")
	}

	return app
}

// newCacheStore builds the configured insight cache backend and the
// generation counter that lives next to it.
func (s *appServices) newCacheStore(cfg *config.Config) (services.CacheStore, services.GenerationCounter, error) {
	switch cfg.Cache.Backend {
	case "", "memory":
		return services.NewMemoryCacheStore(nil), services.NewMemoryGenerationCounter(), nil
	case "db":
		return services.NewDBCacheStore(s.db), services.NewDBGenerationCounter(s.db), nil
	case "redis":
		if !cfg.Redis.Enabled {
			return nil, nil, fmt.Errorf("cache backend redis requires redis.enabled")
		}
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis cache unreachable, falling back to database cache")
			s.redis.Close()
			s.redis = nil
			return services.NewDBCacheStore(s.db), services.NewDBGenerationCounter(s.db), nil
		}
		logger.Infof("[Cache] Redis cache at %s", cfg.Redis.Addr)
		return services.NewRedisCacheStore(s.redis, "insight:"), services.NewRedisGenerationCounter(s.redis, "insight:gen:"), nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.scheduler.Stop()
	logger.Info().Msg("Scheduler stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	s.wsHub.Stop()
	if s.redis != nil {
		s.redis.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}
