package services

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/grantflow/backend/internal/config"
	"github.com/grantflow/backend/internal/metrics"
	"github.com/grantflow/backend/internal/models"
	"github.com/grantflow/backend/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Scheduler runs the periodic jobs: payout request reminders and audit log
// retention. Each run takes a row in scheduler_locks keyed by the job's time
// slot, so with several instances only one of them does the work.
type Scheduler struct {
	db        *gorm.DB
	cfg       config.SchedulerConfig
	proposals *ProposalService
	logs      *SystemLogService
	cron      *cron.Cron
	owner     string
	now       func() time.Time
}

func NewScheduler(db *gorm.DB, cfg config.SchedulerConfig, proposals *ProposalService, logs *SystemLogService) *Scheduler {
	host, _ := os.Hostname()
	return &Scheduler{
		db:        db,
		cfg:       cfg,
		proposals: proposals,
		logs:      logs,
		owner:     host + "-" + uuid.NewString()[:8],
		now:       time.Now,
	}
}

func (s *Scheduler) Start() error {
	s.cron = cron.New()
	if s.cfg.PayoutReminderCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.PayoutReminderCron, func() { s.run("payout_reminder", s.remindPayouts) }); err != nil {
			return err
		}
	}
	if s.cfg.LogCleanupCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.LogCleanupCron, func() { s.run("log_cleanup", s.cleanupLogs) }); err != nil {
			return err
		}
	}
	s.cron.Start()
	logger.Info().Str("owner", s.owner).Msg("[Scheduler] started")
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Scheduler) run(job string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	slot := s.now().UTC().Truncate(time.Minute)
	ok, err := s.acquire(ctx, job, slot)
	if err != nil {
		metrics.SchedulerRuns.WithLabelValues(job, "failed").Inc()
		logger.Error().Err(err).Str("job", job).Msg("[Scheduler] lock failed")
		return
	}
	if !ok {
		metrics.SchedulerRuns.WithLabelValues(job, "skipped").Inc()
		return
	}

	if err := fn(ctx); err != nil {
		metrics.SchedulerRuns.WithLabelValues(job, "failed").Inc()
		logger.Error().Err(err).Str("job", job).Msg("[Scheduler] job failed")
		return
	}
	metrics.SchedulerRuns.WithLabelValues(job, "success").Inc()
}

// acquire claims job for slot. It reports false when another instance
// already holds the slot.
func (s *Scheduler) acquire(ctx context.Context, job string, slot time.Time) (bool, error) {
	now := s.now()
	db := s.db.WithContext(ctx)
	if err := db.Where("expires_at < ?", now).Delete(&models.SchedulerLock{}).Error; err != nil {
		return false, err
	}
	lock := models.SchedulerLock{
		LockName:  job,
		LockKey:   slot.Format(time.RFC3339),
		LockedBy:  s.owner,
		LockedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Scheduler) remindPayouts(ctx context.Context) error {
	age := time.Duration(s.cfg.PayoutReminderAge) * time.Hour
	if age <= 0 {
		age = 72 * time.Hour
	}
	n, err := s.proposals.RemindStalePayouts(ctx, age)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info().Int("count", n).Msg("[Scheduler] payout reminders sent")
	}
	return nil
}

func (s *Scheduler) cleanupLogs(ctx context.Context) error {
	n, err := s.logs.CleanupOldLogs(ctx, s.cfg.LogRetentionDays)
	if err != nil {
		return err
	}
	logger.Info().Int64("deleted", n).Msg("[Scheduler] old system logs removed")
	return nil
}
