package app

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable_sync_bot/internal/domain/schedule"
	"timetable_sync_bot/internal/infra/cache"
)

type mapCache struct {
	data   map[string][]schedule.Lesson
	getErr error
	sets   int
}

func (c *mapCache) Get(_ context.Context, key string) ([]schedule.Lesson, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	l, ok := c.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return l, nil
}

func (c *mapCache) Set(_ context.Context, key string, lessons []schedule.Lesson) error {
	c.data[key] = lessons
	c.sets++
	return nil
}

func seededSnapshots(t *testing.T) *memSnapshots {
	t.Helper()
	ctx := context.Background()
	s := newMemSnapshots()
	_, err := s.InsertLessons(ctx, "run-1", []schedule.Lesson{mathLesson()})
	require.NoError(t, err)
	require.NoError(t, s.Promote(ctx, "run-1", nil))
	return s
}

func TestLessonReaderCachesByRun(t *testing.T) {
	snapshots := seededSnapshots(t)
	c := &mapCache{data: map[string][]schedule.Lesson{}}
	reader := NewLessonReader(snapshots, c, logrus.NewEntry(logrus.New()))
	ctx := context.Background()

	first, err := reader.ForGroup(ctx, "59", "2026-02-14")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := reader.ForGroup(ctx, "59", "2026-02-14")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, snapshots.lessonQueries)
	assert.Contains(t, c.data, "lessons:run-1:group:59:2026-02-14")

	l := mathLesson()
	l.Subject = "Алгебра"
	_, err = snapshots.InsertLessons(ctx, "run-2", []schedule.Lesson{l})
	require.NoError(t, err)
	require.NoError(t, snapshots.Promote(ctx, "run-2", nil))

	third, err := reader.ForGroup(ctx, "59", "2026-02-14")
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, "Алгебра", third[0].Subject)
	assert.Equal(t, 2, snapshots.lessonQueries)
}

func TestLessonReaderFallsBackOnCacheError(t *testing.T) {
	snapshots := seededSnapshots(t)
	c := &mapCache{data: map[string][]schedule.Lesson{}, getErr: errors.New("dial tcp: connection refused")}
	logger, hook := test.NewNullLogger()
	reader := NewLessonReader(snapshots, c, logrus.NewEntry(logger))

	lessons, err := reader.ForTeacher(context.Background(), "иванов:аб", "2026-02-14")
	require.NoError(t, err)
	assert.Len(t, lessons, 1)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestLessonReaderWithoutCache(t *testing.T) {
	snapshots := seededSnapshots(t)
	reader := NewLessonReader(snapshots, nil, logrus.NewEntry(logrus.New()))

	lessons, err := reader.ForGroup(context.Background(), "59", "2026-02-14")
	require.NoError(t, err)
	assert.Len(t, lessons, 1)
}

func TestLessonReaderSkipsCacheWithoutActiveRun(t *testing.T) {
	c := &mapCache{data: map[string][]schedule.Lesson{}}
	reader := NewLessonReader(newMemSnapshots(), c, logrus.NewEntry(logrus.New()))

	lessons, err := reader.ForGroup(context.Background(), "59", "2026-02-14")
	require.NoError(t, err)
	assert.Empty(t, lessons)
	assert.Zero(t, c.sets)
}
