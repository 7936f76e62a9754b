package main

import (
	"context"
	"time"

	"github.com/grantflow/backend/internal/config"
	"github.com/grantflow/backend/internal/middleware"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/internal/utils"
	"github.com/grantflow/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// appServices holds all initialized services needed by the application.
type appServices struct {
	db          *gorm.DB
	taskQueue   services.TaskQueue
	worker      *services.Worker
	publisher   *services.AMQPPublisher
	redis       *redis.Client
	scheduler   *services.Scheduler
	rateLimiter *middleware.RateLimiter
	hub         *services.NoticeHub

	auth      *services.AuthService
	proposals *services.ProposalService
	rfws      *services.RFWService
	tags      *services.TagService
	logs      *services.SystemLogService
	dashboard *services.DashboardService
}

// bootstrap initializes all application dependencies: database, delivery, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	db := models.GetDB()

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize system logger
	services.InitSystemLogger(db)

	svc := &appServices{db: db}
	svc.auth = services.NewAuthService(db, &cfg.JWT)
	if err := svc.auth.CreateAdminIfNotExists(context.Background(), cfg.Admin); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	// Notification delivery. events and dedup stay untyped nil when disabled.
	var events services.EventPublisher
	if cfg.AMQP.Enabled {
		publisher, err := services.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Warn().Err(err).Msg("[Events] AMQP unavailable, domain events disabled")
		} else {
			svc.publisher = publisher
			events = publisher
		}
	}
	var dedup services.Deduper
	if cfg.Redis.Enabled && cfg.Notification.DedupWindow > 0 {
		rdb, err := services.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("[Notify] Redis unavailable, de-duplication disabled")
		} else {
			svc.redis = rdb
			dedup = services.NewRedisDeduper(rdb, time.Duration(cfg.Notification.DedupWindow)*time.Second)
		}
	}
	dispatcher := services.NewNoticeDispatcher(db, services.NewEmailService(cfg.SMTP), events, dedup, cfg.Notification.SiteURL)

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	svc.taskQueue = services.InitTaskQueue(cfg)
	if syncQueue, ok := svc.taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(dispatcher.Process)
	} else if worker := services.NewWorker(&cfg.Redis); worker != nil {
		worker.SetProcessor(dispatcher.Process)
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start notification worker: %v", err)
		}
		svc.worker = worker
	}
	svc.hub = services.NewNoticeHub()
	notifier := services.Notifiers{services.NewQueueNotifier(svc.taskQueue), svc.hub}

	svc.proposals = services.NewProposalService(db, notifier, cfg.Funding)
	svc.rfws = services.NewRFWService(db, notifier)
	svc.tags = services.NewTagService(db)
	svc.logs = services.NewSystemLogService(db)
	svc.dashboard = services.NewDashboardService(db)

	if cfg.Scheduler.Enabled {
		svc.scheduler = services.NewScheduler(db, cfg.Scheduler, svc.proposals, svc.logs)
		if err := svc.scheduler.Start(); err != nil {
			logger.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	if cfg.RateLimit.Enabled {
		svc.rateLimiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	return svc
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		logger.Info().Msg("Scheduler stopped")
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}
