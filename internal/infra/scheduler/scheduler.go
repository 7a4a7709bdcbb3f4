package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"timetable_sync_bot/internal/app"
	"timetable_sync_bot/internal/domain/schedule"
)

const (
	reminderJobTimeout  = 50 * time.Second // must finish before the next tick
	retentionJobTimeout = 5 * time.Minute
)

// SyncRunner is the part of app.SyncService driven by cron.
type SyncRunner interface {
	Run(ctx context.Context, trigger schedule.Trigger) app.SyncResult
	SweepRetention(ctx context.Context) (int64, error)
}

type Specs struct {
	Sync      string
	Reminder  string
	Retention string
}

// Scheduler owns the cron jobs for syncing, reminder ticks and retention.
type Scheduler struct {
	cronEngine   *cron.Cron
	syncer       SyncRunner
	notifService app.NotificationService
	specs        Specs
	logger       *logrus.Entry
}

func New(syncer SyncRunner, notifService app.NotificationService, loc *time.Location, specs Specs, logger *logrus.Entry) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cronEngine:   cron.New(cron.WithLocation(loc)),
		syncer:       syncer,
		notifService: notifService,
		specs:        specs,
		logger:       logger.WithField("component", "scheduler"),
	}
}

// Start registers all jobs and starts the cron engine. Nothing is started if
// any spec is invalid.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler...")

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"sync", s.specs.Sync, s.runSync},
		{"reminder", s.specs.Reminder, s.runReminderTick},
		{"retention", s.specs.Retention, s.runRetention},
	}
	for _, job := range jobs {
		if _, err := s.cronEngine.AddFunc(job.spec, job.fn); err != nil {
			return fmt.Errorf("could not add %s cron job (%q): %w", job.name, job.spec, err)
		}
	}

	s.cronEngine.Start()
	s.logger.WithField("jobs", len(jobs)).Info("Scheduler started with jobs.")
	return nil
}

// runSync has no deadline of its own; every source request carries the
// fetcher's timeout.
func (s *Scheduler) runSync() {
	res := s.syncer.Run(context.Background(), schedule.TriggerScheduled)
	if res.Status == app.SyncStatusSkipped {
		s.logger.Info("Scheduled sync skipped, previous run still in progress")
	}
}

func (s *Scheduler) runReminderTick() {
	ctx, cancel := context.WithTimeout(context.Background(), reminderJobTimeout)
	defer cancel()

	if _, err := s.notifService.ProcessReminderTick(ctx); err != nil {
		s.logger.WithError(err).Error("Error during reminder tick")
	}
}

func (s *Scheduler) runRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), retentionJobTimeout)
	defer cancel()

	if _, err := s.syncer.SweepRetention(ctx); err != nil {
		s.logger.WithError(err).Error("Error during retention sweep")
	}
}

// Stop prevents new job runs and waits for running ones to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler gracefully stopped.")
}
