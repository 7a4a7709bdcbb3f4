// internal/app/sync_service.go
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"timetable_sync_bot/internal/domain/schedule"
	"timetable_sync_bot/internal/domain/teacher"
	"timetable_sync_bot/internal/infra/metrics"
	"timetable_sync_bot/internal/infra/parser"
	"timetable_sync_bot/internal/infra/source"
	"timetable_sync_bot/internal/infra/workerpool"
)

const isoDate = "2006-01-02"

// PageFetcher is the part of source.Fetcher the sync pipeline needs.
type PageFetcher interface {
	Fetch(ctx context.Context, relativePath string) (*source.Page, error)
	Resolve(relativePath string) (string, error)
}

// SyncStatus is the outcome reported for one Run call.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusFailed  SyncStatus = "failed"
	SyncStatusSkipped SyncStatus = "skipped"
)

// SyncResult describes a finished, failed or skipped sync. Err is set only
// for failed runs.
type SyncResult struct {
	Status   SyncStatus
	RunID    string
	Trigger  schedule.Trigger
	Counts   schedule.RunCounts
	Duration time.Duration
	Err      error
}

type SyncConfig struct {
	GroupRosterPath   string
	TeacherRosterPath string
	Concurrency       int
	Location          *time.Location
}

// SyncService runs the ingestion pipeline: fetch rosters and schedule pages,
// parse them, resolve teacher identities, write a tagged snapshot and promote it.
type SyncService struct {
	snapshots schedule.Repository
	teachers  teacher.Repository
	fetcher   PageFetcher
	parser    *parser.Parser
	metrics   *metrics.Metrics
	cfg       SyncConfig
	logger    *logrus.Entry
	guard     Guard

	now      func() time.Time
	newRunID func() string
}

func NewSyncService(
	snapshots schedule.Repository,
	teachers teacher.Repository,
	fetcher PageFetcher,
	p *parser.Parser,
	m *metrics.Metrics,
	cfg SyncConfig,
	logger *logrus.Entry,
) *SyncService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = workerpool.DefaultLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &SyncService{
		snapshots: snapshots,
		teachers:  teachers,
		fetcher:   fetcher,
		parser:    p,
		metrics:   m,
		cfg:       cfg,
		logger:    logger.WithField("component", "sync"),
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
}

// Running reports whether a sync is in progress.
func (s *SyncService) Running() bool {
	return s.guard.Busy()
}

// Run executes one sync. A call made while another run is in progress returns
// immediately with SyncStatusSkipped.
func (s *SyncService) Run(ctx context.Context, trigger schedule.Trigger) SyncResult {
	if !s.guard.TryAcquire() {
		s.logger.WithField("trigger", trigger).Info("Sync already in progress, skipping")
		s.metrics.ObserveSyncSkipped()
		return SyncResult{Status: SyncStatusSkipped, Trigger: trigger}
	}
	defer s.guard.Release()

	run := &schedule.SyncRun{
		RunID:     s.newRunID(),
		Trigger:   trigger,
		Status:    schedule.RunStatusRunning,
		StartedAt: s.now(),
	}
	runLogger := s.logger.WithFields(logrus.Fields{"run_id": run.RunID, "trigger": trigger})
	runLogger.Info("Sync run started")

	result := SyncResult{RunID: run.RunID, Trigger: trigger}

	if err := s.snapshots.CreateRun(ctx, run); err != nil {
		runLogger.WithError(err).Error("Failed to record sync run")
		result.Status = SyncStatusFailed
		result.Err = err
		s.metrics.ObserveSync(schedule.RunStatusFailed, 0, 0)
		return result
	}

	counts, err := s.ingest(ctx, run.RunID, runLogger)
	run.Counts = counts
	run.FinishedAt = sql.NullTime{Time: s.now(), Valid: true}
	result.Counts = counts
	result.Duration = run.FinishedAt.Time.Sub(run.StartedAt)

	// The run row must be closed even if ctx was cancelled mid-run.
	finishCtx := context.WithoutCancel(ctx)

	if err != nil {
		run.Status = schedule.RunStatusFailed
		run.Error = sql.NullString{String: err.Error(), Valid: true}
		if ferr := s.snapshots.FinishRun(finishCtx, run); ferr != nil {
			runLogger.WithError(ferr).Error("Failed to mark sync run as failed")
		}
		runLogger.WithError(err).Error("Sync run failed, active snapshot unchanged")
		s.metrics.ObserveSync(schedule.RunStatusFailed, result.Duration, 0)
		result.Status = SyncStatusFailed
		result.Err = err
		return result
	}

	run.Status = schedule.RunStatusSuccess
	if ferr := s.snapshots.FinishRun(finishCtx, run); ferr != nil {
		runLogger.WithError(ferr).Error("Failed to mark sync run as succeeded")
	}
	s.metrics.ObserveSync(schedule.RunStatusSuccess, result.Duration, counts.Lessons)

	stats, gcErr := s.snapshots.CollectGarbage(finishCtx)
	if gcErr != nil {
		runLogger.WithError(gcErr).Warn("Garbage collection failed, next successful run will retry")
	} else {
		s.metrics.ObserveGarbage(stats)
		runLogger.WithFields(logrus.Fields{
			"gc_lessons":  stats.Lessons,
			"gc_groups":   stats.Groups,
			"gc_teachers": stats.Teachers,
		}).Debug("Superseded snapshot rows removed")
	}

	runLogger.WithFields(logrus.Fields{
		"pages":    counts.Pages,
		"groups":   counts.Groups,
		"teachers": counts.Teachers,
		"lessons":  counts.Lessons,
		"duration": result.Duration.String(),
	}).Info("Sync run succeeded, snapshot promoted")

	result.Status = SyncStatusSuccess
	return result
}

// pageJob is one schedule page to fetch. Exactly one of group and teacher is set.
type pageJob struct {
	href    string
	group   *schedule.Group
	teacher *teacher.Teacher
}

func (s *SyncService) ingest(ctx context.Context, runID string, logger *logrus.Entry) (schedule.RunCounts, error) {
	var counts schedule.RunCounts

	groupRoster, err := s.fetchRoster(ctx, s.cfg.GroupRosterPath, parser.RosterGroups)
	if err != nil {
		return counts, err
	}
	teacherRoster, err := s.fetchRoster(ctx, s.cfg.TeacherRosterPath, parser.RosterTeachers)
	if err != nil {
		return counts, err
	}
	counts.Pages = 2

	sourceUpdatedAt := groupRoster.UpdatedAt
	if sourceUpdatedAt == nil {
		sourceUpdatedAt = teacherRoster.UpdatedAt
	}

	groups := s.buildGroups(groupRoster, sourceUpdatedAt, runID)
	rosterTeachers := s.buildTeachers(teacherRoster, runID)

	groupCodes := make(map[string]string, len(groups))
	knownGroups := make(map[string]bool, len(groups))
	jobs := make([]pageJob, 0, len(groups)+len(rosterTeachers))
	for i := range groups {
		groupCodes[strings.ToLower(groups[i].Name)] = groups[i].Code
		knownGroups[groups[i].Code] = true
		jobs = append(jobs, pageJob{href: groups[i].SourceHref, group: &groups[i]})
	}
	for i := range rosterTeachers {
		jobs = append(jobs, pageJob{href: rosterTeachers[i].SourceHref, teacher: &rosterTeachers[i]})
	}

	logger.WithFields(logrus.Fields{
		"groups":   len(groups),
		"teachers": len(rosterTeachers),
	}).Info("Rosters parsed, fetching schedule pages")

	pages, err := workerpool.RunAll(ctx, jobs, s.cfg.Concurrency, func(ctx context.Context, job pageJob) ([]schedule.Lesson, error) {
		page, err := s.fetcher.Fetch(ctx, job.href)
		if err != nil {
			return nil, err
		}
		if job.group != nil {
			return s.parser.ParseGroupSchedule(page.Content, *job.group, page.URL)
		}
		return s.parser.ParseTeacherSchedule(page.Content, *job.teacher, groupCodes, page.URL)
	})
	if err != nil {
		return counts, fmt.Errorf("schedule pages: %w", err)
	}
	counts.Pages += len(jobs)

	var lessons []schedule.Lesson
	seen := make(map[string]struct{})
	observed := make([]teacher.Teacher, 0, len(rosterTeachers))
	for i, pageLessons := range pages {
		fromTeacherPage := jobs[i].teacher != nil
		for _, l := range pageLessons {
			// Group pages are authoritative for real groups; teacher pages only
			// contribute rows that no group page covers.
			if fromTeacherPage && knownGroups[l.GroupCode] {
				continue
			}
			l.RunID = runID
			key := l.NaturalKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			l.TeacherKey = teacher.NormalizeName(l.Teacher)
			if l.Teacher != "" {
				observed = append(observed, teacher.Teacher{Name: l.Teacher})
			}
			lessons = append(lessons, l)
		}
	}

	resolved := teacher.Resolve(append(rosterTeachers, observed...))
	for i := range resolved {
		resolved[i].LastSeenRunID = runID
	}

	if err := s.snapshots.UpsertGroups(ctx, runID, groups); err != nil {
		return counts, err
	}
	counts.Groups = len(groups)

	if err := s.teachers.Upsert(ctx, runID, resolved); err != nil {
		return counts, err
	}
	counts.Teachers = len(resolved)

	written, err := s.snapshots.InsertLessons(ctx, runID, lessons)
	if err != nil {
		return counts, err
	}
	counts.Lessons = written

	if err := s.snapshots.Promote(ctx, runID, sourceUpdatedAt); err != nil {
		return counts, fmt.Errorf("promote run: %w", err)
	}
	return counts, nil
}

func (s *SyncService) fetchRoster(ctx context.Context, path string, kind parser.RosterKind) (*parser.Roster, error) {
	page, err := s.fetcher.Fetch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%s roster: %w", kind, err)
	}
	roster, err := s.parser.ParseRoster(page.Content, kind)
	if err != nil {
		return nil, fmt.Errorf("%s roster: %w", kind, err)
	}
	return roster, nil
}

func (s *SyncService) buildGroups(roster *parser.Roster, updatedAt *time.Time, runID string) []schedule.Group {
	groups := make([]schedule.Group, 0, len(roster.Entries))
	for _, e := range roster.Entries {
		g := schedule.Group{
			Code:          e.Code,
			Name:          e.Name,
			SourceHref:    e.Href,
			URL:           s.resolveURL(e.Href),
			LastSeenRunID: runID,
		}
		if updatedAt != nil {
			g.SourceUpdatedAt = sql.NullTime{Time: *updatedAt, Valid: true}
		}
		groups = append(groups, g)
	}
	return groups
}

func (s *SyncService) buildTeachers(roster *parser.Roster, runID string) []teacher.Teacher {
	teachers := make([]teacher.Teacher, 0, len(roster.Entries))
	for _, e := range roster.Entries {
		teachers = append(teachers, teacher.Teacher{
			Key:           teacher.NormalizeName(e.Name),
			Code:          sql.NullString{String: e.Code, Valid: e.Code != ""},
			Name:          e.Name,
			SourceHref:    e.Href,
			URL:           s.resolveURL(e.Href),
			LastSeenRunID: runID,
		})
	}
	return teachers
}

func (s *SyncService) resolveURL(href string) string {
	u, err := s.fetcher.Resolve(href)
	if err != nil {
		return ""
	}
	return u
}

// SweepRetention deletes active-snapshot lessons dated before yesterday in
// the configured timezone.
func (s *SyncService) SweepRetention(ctx context.Context) (int64, error) {
	cutoff := RetentionCutoff(s.now(), s.cfg.Location)
	deleted, err := s.snapshots.SweepRetention(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).WithField("cutoff", cutoff).Error("Retention sweep failed")
		return 0, err
	}
	s.metrics.ObserveRetention(deleted)
	s.logger.WithFields(logrus.Fields{"cutoff": cutoff, "deleted": deleted}).Info("Retention sweep finished")
	return deleted, nil
}

// RetentionCutoff returns the first date that survives a retention sweep run at now.
func RetentionCutoff(now time.Time, loc *time.Location) string {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return today.AddDate(0, 0, -1).Format(isoDate)
}
