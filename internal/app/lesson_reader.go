package app

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"timetable_sync_bot/internal/domain/schedule"
	"timetable_sync_bot/internal/infra/cache"
)

// LessonCache is a run-keyed store of lesson lists; cache.LessonCache implements it.
type LessonCache interface {
	Get(ctx context.Context, key string) ([]schedule.Lesson, error)
	Set(ctx context.Context, key string, lessons []schedule.Lesson) error
}

// LessonSource answers per-day lesson lookups against the active snapshot.
type LessonSource interface {
	ForGroup(ctx context.Context, groupCode, date string) ([]schedule.Lesson, error)
	ForTeacher(ctx context.Context, teacherKey, date string) ([]schedule.Lesson, error)
}

// LessonReader reads lessons through the active pointer, caching per run ID.
// Cache errors never fail a read.
type LessonReader struct {
	repo   schedule.Repository
	cache  LessonCache
	logger *logrus.Entry
}

func NewLessonReader(repo schedule.Repository, c LessonCache, logger *logrus.Entry) *LessonReader {
	return &LessonReader{repo: repo, cache: c, logger: logger.WithField("component", "lesson_reader")}
}

func (r *LessonReader) ForGroup(ctx context.Context, groupCode, date string) ([]schedule.Lesson, error) {
	return r.read(ctx, "group", groupCode, date, r.repo.LessonsForGroup)
}

func (r *LessonReader) ForTeacher(ctx context.Context, teacherKey, date string) ([]schedule.Lesson, error) {
	return r.read(ctx, "teacher", teacherKey, date, r.repo.LessonsForTeacher)
}

type lessonLoader func(ctx context.Context, id, date string) ([]schedule.Lesson, error)

func (r *LessonReader) read(ctx context.Context, scope, id, date string, load lessonLoader) ([]schedule.Lesson, error) {
	if r.cache == nil {
		return load(ctx, id, date)
	}

	pointer, err := r.repo.ActivePointer(ctx)
	if err != nil || pointer.ActiveRunID == "" {
		return load(ctx, id, date)
	}

	key := cache.LessonKey(pointer.ActiveRunID, scope, id, date)
	cached, err := r.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.WithError(err).WithField("key", key).Warn("Lesson cache read failed, using database")
	}

	lessons, err := load(ctx, id, date)
	if err != nil {
		return nil, err
	}

	// A promotion between the pointer read and the query would tag these rows
	// with a newer run; they must not be stored under the old key.
	for _, l := range lessons {
		if l.RunID != pointer.ActiveRunID {
			return lessons, nil
		}
	}
	if err := r.cache.Set(ctx, key, lessons); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("Lesson cache write failed")
	}
	return lessons, nil
}
