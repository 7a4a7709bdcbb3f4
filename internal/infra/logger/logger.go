// internal/infra/logger/logger.go
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"timetable_sync_bot/internal/infra/config"
)

// Log is the global logger instance
var Log = logrus.New()

// Init initializes the global logger based on application configuration.
func Init(cfg *config.AppConfig) {
	Log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		Log.Warnf("Invalid log level '%s', defaulting to 'info'. Error: %v", cfg.LogLevel, err)
		Log.SetLevel(logrus.InfoLevel)
	} else {
		Log.SetLevel(level)
	}

	Log.SetFormatter(formatterFor(cfg.Environment))

	Log.Info("Logger initialized successfully.")
	Log.Debugf("Log level set to: %s", Log.GetLevel().String())
	Log.Debugf("Log format set for environment: %s", cfg.Environment)
}

func formatterFor(environment string) logrus.Formatter {
	switch strings.ToLower(environment) {
	case "production", "staging":
		return &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00", // ISO8601
		}
	default:
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		}
	}
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
