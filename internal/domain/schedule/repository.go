package schedule

import (
	"context"
	"time"
)

// Repository is the versioned snapshot store. Writes are tagged with a run ID
// and become visible to readers only after Promote.
type Repository interface {
	CreateRun(ctx context.Context, run *SyncRun) error
	FinishRun(ctx context.Context, run *SyncRun) error
	LastRun(ctx context.Context) (*SyncRun, error)

	// UpsertGroups writes groups by code under runID. Groups of other runs,
	// including the active one, are not modified.
	UpsertGroups(ctx context.Context, runID string, groups []Group) error
	// InsertLessons inserts lessons that are not already present for runID and
	// returns how many rows were actually written.
	InsertLessons(ctx context.Context, runID string, lessons []Lesson) (int, error)

	// Promote makes runID the active snapshot in a single write.
	Promote(ctx context.Context, runID string, sourceUpdatedAt *time.Time) error
	// CollectGarbage deletes rows not belonging to the active run.
	CollectGarbage(ctx context.Context) (GarbageStats, error)
	// SweepRetention deletes active-run lessons dated before cutoff (YYYY-MM-DD).
	SweepRetention(ctx context.Context, cutoff string) (int64, error)

	ActivePointer(ctx context.Context) (*ActiveSnapshotPointer, error)
	ListGroups(ctx context.Context) ([]Group, error)
	LessonsForGroup(ctx context.Context, groupCode, date string) ([]Lesson, error)
	LessonsForTeacher(ctx context.Context, teacherKey, date string) ([]Lesson, error)
}

// GarbageStats reports rows removed by CollectGarbage.
type GarbageStats struct {
	Lessons  int64
	Groups   int64
	Teachers int64
}
