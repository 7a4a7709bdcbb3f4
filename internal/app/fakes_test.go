package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gopkg.in/telebot.v3"

	"timetable_sync_bot/internal/domain/notification"
	"timetable_sync_bot/internal/domain/schedule"
	"timetable_sync_bot/internal/domain/teacher"
	idb "timetable_sync_bot/internal/infra/database"
	"timetable_sync_bot/internal/infra/source"
)

// memSnapshots is an in-memory schedule.Repository with the same visibility
// rules as the Postgres one: rows are kept per run and reads only see rows of
// the active run.
type memSnapshots struct {
	mu        sync.Mutex
	runs      []*schedule.SyncRun
	groups    map[string]schedule.Group
	lessons   map[string]schedule.Lesson
	pointer   schedule.ActiveSnapshotPointer
	gcErr     error
	promoErr  error
	insertErr error

	lessonQueries int
	lessonWrites  int
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{
		groups:  map[string]schedule.Group{},
		lessons: map[string]schedule.Lesson{},
	}
}

func (m *memSnapshots) CreateRun(_ context.Context, run *schedule.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs = append(m.runs, &cp)
	return nil
}

func (m *memSnapshots) FinishRun(_ context.Context, run *schedule.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.runs {
		if r.RunID == run.RunID {
			cp := *run
			m.runs[i] = &cp
			return nil
		}
	}
	return idb.ErrRunNotFound
}

func (m *memSnapshots) LastRun(_ context.Context) (*schedule.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return nil, idb.ErrRunNotFound
	}
	cp := *m.runs[len(m.runs)-1]
	return &cp, nil
}

func (m *memSnapshots) run(id string) *schedule.SyncRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.RunID == id {
			return r
		}
	}
	return nil
}

func (m *memSnapshots) UpsertGroups(_ context.Context, runID string, groups []schedule.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range groups {
		g.LastSeenRunID = runID
		m.groups[runID+"|"+g.Code] = g
	}
	return nil
}

func (m *memSnapshots) InsertLessons(_ context.Context, runID string, lessons []schedule.Lesson) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.lessonWrites += len(lessons)
	written := 0
	for _, l := range lessons {
		l.RunID = runID
		key := l.NaturalKey()
		if _, ok := m.lessons[key]; ok {
			continue
		}
		m.lessons[key] = l
		written++
	}
	return written, nil
}

func (m *memSnapshots) Promote(_ context.Context, runID string, sourceUpdatedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.promoErr != nil {
		return m.promoErr
	}
	m.pointer.ActiveRunID = runID
	m.pointer.SourceUpdatedAt.Valid = sourceUpdatedAt != nil
	if sourceUpdatedAt != nil {
		m.pointer.SourceUpdatedAt.Time = *sourceUpdatedAt
	}
	m.pointer.UpdatedAt = time.Now()
	return nil
}

func (m *memSnapshots) CollectGarbage(_ context.Context) (schedule.GarbageStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats schedule.GarbageStats
	if m.gcErr != nil {
		return stats, m.gcErr
	}
	if m.pointer.ActiveRunID == "" {
		return stats, nil
	}
	for k, l := range m.lessons {
		if l.RunID != m.pointer.ActiveRunID {
			delete(m.lessons, k)
			stats.Lessons++
		}
	}
	for k, g := range m.groups {
		if g.LastSeenRunID != m.pointer.ActiveRunID {
			delete(m.groups, k)
			stats.Groups++
		}
	}
	return stats, nil
}

func (m *memSnapshots) SweepRetention(_ context.Context, cutoff string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, l := range m.lessons {
		if l.RunID == m.pointer.ActiveRunID && l.Date < cutoff {
			delete(m.lessons, k)
			n++
		}
	}
	return n, nil
}

func (m *memSnapshots) activeRunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pointer.ActiveRunID
}

func (m *memSnapshots) ActivePointer(_ context.Context) (*schedule.ActiveSnapshotPointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.pointer
	return &p, nil
}

func (m *memSnapshots) ListGroups(_ context.Context) ([]schedule.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schedule.Group
	for _, g := range m.groups {
		if g.LastSeenRunID == m.pointer.ActiveRunID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memSnapshots) LessonsForGroup(_ context.Context, groupCode, date string) ([]schedule.Lesson, error) {
	return m.activeLessons(func(l schedule.Lesson) bool { return l.GroupCode == groupCode && l.Date == date }), nil
}

func (m *memSnapshots) LessonsForTeacher(_ context.Context, teacherKey, date string) ([]schedule.Lesson, error) {
	return m.activeLessons(func(l schedule.Lesson) bool { return l.TeacherKey == teacherKey && l.Date == date }), nil
}

func (m *memSnapshots) activeLessons(match func(schedule.Lesson) bool) []schedule.Lesson {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lessonQueries++
	out := make([]schedule.Lesson, 0)
	for _, l := range m.lessons {
		if l.RunID == m.pointer.ActiveRunID && match(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LessonNumber != out[j].LessonNumber {
			return out[i].LessonNumber < out[j].LessonNumber
		}
		return out[i].ColumnIndex < out[j].ColumnIndex
	})
	return out
}

// allLessons returns every stored lesson regardless of run.
func (m *memSnapshots) allLessons() []schedule.Lesson {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schedule.Lesson, 0, len(m.lessons))
	for _, l := range m.lessons {
		out = append(out, l)
	}
	return out
}

// memTeachers keeps one row per (run, key) and lists the active run's rows,
// reading the pointer from snapshots.
type memTeachers struct {
	mu        sync.Mutex
	snapshots *memSnapshots
	teachers  map[string]teacher.Teacher
}

func newMemTeachers(snapshots *memSnapshots) *memTeachers {
	return &memTeachers{snapshots: snapshots, teachers: map[string]teacher.Teacher{}}
}

func (m *memTeachers) Upsert(_ context.Context, runID string, teachers []teacher.Teacher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range teachers {
		t.LastSeenRunID = runID
		m.teachers[runID+"|"+t.Key] = t
	}
	return nil
}

func (m *memTeachers) ListActive(_ context.Context) ([]teacher.Teacher, error) {
	active := m.snapshots.activeRunID()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]teacher.Teacher, 0, len(m.teachers))
	for _, t := range m.teachers {
		if t.LastSeenRunID == active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type stubFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	fail   map[string]error
	served []string
}

func (f *stubFetcher) Fetch(_ context.Context, path string) (*source.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[path]; ok {
		return nil, &source.FetchError{URL: "https://src.example/" + path, Attempts: 3, Err: err}
	}
	content, ok := f.pages[path]
	if !ok {
		return nil, &source.FetchError{URL: "https://src.example/" + path, Attempts: 3, Err: errors.New("unexpected status 404")}
	}
	f.served = append(f.served, path)
	return &source.Page{Content: content, URL: "https://src.example/" + path}, nil
}

func (f *stubFetcher) Resolve(path string) (string, error) {
	return "https://src.example/" + path, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries map[string]notification.LedgerEntry
	err     error
}

func newMemLedger() *memLedger {
	return &memLedger{entries: map[string]notification.LedgerEntry{}}
}

func (m *memLedger) TryInsert(_ context.Context, e *notification.LedgerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.entries[e.ReminderKey]; ok {
		return false, nil
	}
	m.entries[e.ReminderKey] = *e
	return true, nil
}

type staticSubscribers []notification.Subscriber

func (s staticSubscribers) ListEnabled(context.Context) ([]notification.Subscriber, error) {
	return s, nil
}

type sentMessage struct {
	UserID int64
	Text   string
	Format telebot.ParseMode
}

type recordingClient struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[int64]bool
}

func (c *recordingClient) SendMessage(userID int64, text string, format telebot.ParseMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail[userID] {
		return fmt.Errorf("telegram: bot was blocked by user %d", userID)
	}
	c.sent = append(c.sent, sentMessage{UserID: userID, Text: text, Format: format})
	return nil
}

func (c *recordingClient) messages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}
