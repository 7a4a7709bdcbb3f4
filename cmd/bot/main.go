package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"timetable_sync_bot/internal/app"
	"timetable_sync_bot/internal/domain/schedule"
	"timetable_sync_bot/internal/infra/cache"
	"timetable_sync_bot/internal/infra/config"
	idb "timetable_sync_bot/internal/infra/database"
	"timetable_sync_bot/internal/infra/logger"
	"timetable_sync_bot/internal/infra/metrics"
	"timetable_sync_bot/internal/infra/parser"
	"timetable_sync_bot/internal/infra/scheduler"
	"timetable_sync_bot/internal/infra/source"
	"timetable_sync_bot/internal/infra/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"admin_id":    cfg.AdminTelegramID,
		"timezone":    cfg.Location.String(),
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	if err := idb.ApplySchema(ctx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database schema")
	}
	mainLogger.Info("Database connection established, schema applied.")

	snapshotRepo := idb.NewPostgresSnapshotRepository(db)
	teacherRepo := idb.NewPostgresTeacherRepository(db)
	notificationRepo := idb.NewPostgresNotificationRepository(db)

	m := metrics.New()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				mainLogger.WithError(err).Error("Metrics server stopped")
			}
		}()
		mainLogger.WithField("addr", cfg.MetricsAddr).Info("Metrics endpoint enabled")
	}

	var lessonCache app.LessonCache
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			mainLogger.WithError(err).Warn("Redis unavailable, lesson cache disabled")
		} else {
			defer redisClient.Close()
			lessonCache = cache.NewLessonCache(redisClient, cfg.LessonCacheTTL)
			mainLogger.Info("Lesson cache enabled")
		}
	}

	fetcher, err := source.NewFetcher(cfg.SourceBaseURL, source.Options{
		Timeout:   cfg.SourceHTTPTimeout,
		RateLimit: cfg.SourceRateLimit,
		Retry:     source.DefaultRetryPolicy(),
		Recorder:  m,
	}, logger.Component("fetcher"))
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create source fetcher")
	}

	syncService := app.NewSyncService(
		snapshotRepo,
		teacherRepo,
		fetcher,
		parser.New(parser.DefaultMarkers(), cfg.Location),
		m,
		app.SyncConfig{
			GroupRosterPath:   cfg.SourceGroupRosterPath,
			TeacherRosterPath: cfg.SourceTeacherRosterPath,
			Concurrency:       cfg.SyncConcurrency,
			Location:          cfg.Location,
		},
		logrus.NewEntry(logger.Log),
	)
	lessonReader := app.NewLessonReader(snapshotRepo, lessonCache, logrus.NewEntry(logger.Log))
	adminService := app.NewAdminService(snapshotRepo, teacherRepo, syncService, cfg.AdminTelegramID)

	// Initialize Telegram Bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := logger.Component("telebot").WithError(err)
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}

	notificationService := app.NewNotificationServiceImpl(
		notificationRepo,
		notificationRepo,
		lessonReader,
		telegram.NewTelebotAdapter(bot),
		m,
		cfg.Location,
		cfg.LessonStartTimes,
		logrus.NewEntry(logger.Log),
	)

	telegram.RegisterBotCommands(bot, cfg.AdminTelegramID, logger.Component("telegram"))
	telegram.RegisterAdminHandlers(ctx, bot, adminService, cfg.AdminTelegramID, cfg.Location, logger.Component("telegram"))

	sched := scheduler.New(syncService, notificationService, cfg.Location, scheduler.Specs{
		Sync:      cfg.CronSpecSync,
		Reminder:  cfg.CronSpecReminder,
		Retention: cfg.CronSpecRetention,
	}, logrus.NewEntry(logger.Log))
	if err := sched.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	if cfg.SyncOnStartup {
		go syncService.Run(ctx, schedule.TriggerStartup)
	}

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()
	mainLogger.Info("Application setup complete. Bot and scheduler are running.")

	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	bot.Stop()
	sched.Stop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	mainLogger.Info("Application shut down gracefully.")
}
