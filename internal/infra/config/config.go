package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

const defaultLessonStartTimes = "1=08:30,2=10:15,3=12:00,4=14:15,5=16:00,6=17:45,7=19:30"

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken   string
	DatabaseURL     string
	AdminTelegramID int64
	LogLevel        string
	Environment     string

	SourceBaseURL           string
	SourceGroupRosterPath   string
	SourceTeacherRosterPath string
	SourceHTTPTimeout       time.Duration
	SourceRateLimit         float64
	SyncConcurrency         int
	SyncOnStartup           bool

	Location         *time.Location
	LessonStartTimes map[int]string // lesson number -> HH:MM

	CronSpecSync      string
	CronSpecReminder  string
	CronSpecRetention string

	RedisURL       string
	LessonCacheTTL time.Duration
	MetricsAddr    string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
	if adminIDStr == "" {
		return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
	}
	cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
	}

	cfg.SourceBaseURL = os.Getenv("SOURCE_BASE_URL")
	if cfg.SourceBaseURL == "" {
		return nil, fmt.Errorf("SOURCE_BASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getEnv("ENVIRONMENT", "development"))

	cfg.SourceGroupRosterPath = getEnv("SOURCE_GROUP_ROSTER_PATH", "cg.htm")
	cfg.SourceTeacherRosterPath = getEnv("SOURCE_TEACHER_ROSTER_PATH", "cp.htm")

	if cfg.SourceHTTPTimeout, err = durationEnv("SOURCE_HTTP_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	cfg.SourceRateLimit, err = strconv.ParseFloat(getEnv("SOURCE_RATE_LIMIT", "0"), 64)
	if err != nil || cfg.SourceRateLimit < 0 {
		return nil, fmt.Errorf("invalid SOURCE_RATE_LIMIT: %q", os.Getenv("SOURCE_RATE_LIMIT"))
	}

	cfg.SyncConcurrency, err = strconv.Atoi(getEnv("SYNC_CONCURRENCY", "5"))
	if err != nil || cfg.SyncConcurrency < 1 {
		return nil, fmt.Errorf("invalid SYNC_CONCURRENCY: %q", os.Getenv("SYNC_CONCURRENCY"))
	}

	cfg.SyncOnStartup, err = strconv.ParseBool(getEnv("SYNC_ON_STARTUP", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_ON_STARTUP: %w", err)
	}

	tz := getEnv("TIMEZONE", "Europe/Moscow")
	cfg.Location, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	cfg.LessonStartTimes, err = ParseLessonStartTimes(getEnv("LESSON_START_TIMES", defaultLessonStartTimes))
	if err != nil {
		return nil, fmt.Errorf("invalid LESSON_START_TIMES: %w", err)
	}

	cfg.CronSpecSync = getEnv("CRON_SPEC_SYNC", "*/30 * * * *")         // every 30 minutes
	cfg.CronSpecReminder = getEnv("CRON_SPEC_REMINDER", "* * * * *")    // every minute
	cfg.CronSpecRetention = getEnv("CRON_SPEC_RETENTION", "30 3 * * *") // 03:30 daily

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.LessonCacheTTL, err = durationEnv("LESSON_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	return cfg, nil
}

// ParseLessonStartTimes reads "1=08:30,2=10:15" into a lesson number -> HH:MM map.
func ParseLessonStartTimes(raw string) (map[int]string, error) {
	out := make(map[int]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		num, hhmm, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q is not number=HH:MM", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(num))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("entry %q has an invalid lesson number", part)
		}
		t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
		if err != nil {
			return nil, fmt.Errorf("entry %q has an invalid time: %w", part, err)
		}
		out[n] = t.Format("15:04")
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no lesson start times configured")
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
