// Package metrics holds the Prometheus collectors for sync runs, source
// fetches and reminders.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"timetable_sync_bot/internal/domain/schedule"
)

// Metrics methods are safe on a nil receiver so callers can run without them.
type Metrics struct {
	registry       *prometheus.Registry
	handler        http.Handler
	syncRuns       *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	lessonsWritten prometheus.Gauge
	fetchAttempts  *prometheus.CounterVec
	reminders      *prometheus.CounterVec
	gcRows         *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_sync_runs_total",
			Help: "Sync runs by final status (success, failed, skipped)",
		}, []string{"status"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_sync_duration_seconds",
			Help:    "Duration of completed sync runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lessonsWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timetable_sync_lessons_written",
			Help: "Lessons written by the last successful run",
		}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_fetch_attempts_total",
			Help: "HTTP attempts against the timetable site by outcome",
		}, []string{"outcome"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_reminders_total",
			Help: "Reminder decisions by result (sent, duplicate, send_failed)",
		}, []string{"result"}),
		gcRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_gc_rows_deleted_total",
			Help: "Rows removed by snapshot garbage collection and retention",
		}, []string{"table"}),
	}

	registry.MustRegister(m.syncRuns, m.syncDuration, m.lessonsWritten, m.fetchAttempts, m.reminders, m.gcRows)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

func (m *Metrics) ObserveSync(status schedule.RunStatus, d time.Duration, lessons int) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(string(status)).Inc()
	m.syncDuration.Observe(d.Seconds())
	if status == schedule.RunStatusSuccess {
		m.lessonsWritten.Set(float64(lessons))
	}
}

func (m *Metrics) ObserveSyncSkipped() {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues("skipped").Inc()
}

func (m *Metrics) ObserveFetchAttempt(outcome string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReminder(result string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveGarbage(stats schedule.GarbageStats) {
	if m == nil {
		return
	}
	m.gcRows.WithLabelValues("lessons").Add(float64(stats.Lessons))
	m.gcRows.WithLabelValues("groups").Add(float64(stats.Groups))
	m.gcRows.WithLabelValues("teachers").Add(float64(stats.Teachers))
}

func (m *Metrics) ObserveRetention(deleted int64) {
	if m == nil {
		return
	}
	m.gcRows.WithLabelValues("lessons_retention").Add(float64(deleted))
}
