package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"timetable_sync_bot/internal/domain/schedule"
)

var (
	ErrRunNotFound     = errors.New("sync run not found")
	ErrPointerNotFound = errors.New("active snapshot pointer not found")
)

const lessonColumns = `l.run_id, l.group_code, l.group_name, to_char(l.lesson_date, 'YYYY-MM-DD') AS lesson_date,
       l.day_label, l.lesson_number, l.column_index, l.subject, l.room, l.teacher, l.teacher_key, l.source_url`

type PostgresSnapshotRepository struct {
	db *sqlx.DB
}

func NewPostgresSnapshotRepository(db *sqlx.DB) *PostgresSnapshotRepository {
	return &PostgresSnapshotRepository{db: db}
}

// --- SyncRun ---

func (r *PostgresSnapshotRepository) CreateRun(ctx context.Context, run *schedule.SyncRun) error {
	query := `INSERT INTO sync_runs (run_id, trigger, status, started_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, run.RunID, run.Trigger, run.Status, run.StartedAt); err != nil {
		return fmt.Errorf("error creating sync run: %w", err)
	}
	return nil
}

func (r *PostgresSnapshotRepository) FinishRun(ctx context.Context, run *schedule.SyncRun) error {
	query := `UPDATE sync_runs
              SET status = $1, finished_at = $2, pages = $3, groups_count = $4, teachers_count = $5, lessons_count = $6, error = $7
              WHERE run_id = $8`
	res, err := r.db.ExecContext(ctx, query,
		run.Status, run.FinishedAt, run.Counts.Pages, run.Counts.Groups, run.Counts.Teachers, run.Counts.Lessons, run.Error, run.RunID)
	if err != nil {
		return fmt.Errorf("error finishing sync run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *PostgresSnapshotRepository) LastRun(ctx context.Context) (*schedule.SyncRun, error) {
	query := `SELECT run_id, trigger, status, started_at, finished_at, pages, groups_count, teachers_count, lessons_count, error
              FROM sync_runs ORDER BY started_at DESC LIMIT 1`
	run := &schedule.SyncRun{}
	err := r.db.QueryRowContext(ctx, query).Scan(&run.RunID, &run.Trigger, &run.Status, &run.StartedAt, &run.FinishedAt,
		&run.Counts.Pages, &run.Counts.Groups, &run.Counts.Teachers, &run.Counts.Lessons, &run.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("error getting last sync run: %w", err)
	}
	return run, nil
}

// --- Tagged writes ---

// UpsertGroups writes the run's own group rows; rows of the active run are
// left as they are until GC removes them after the next promotion.
func (r *PostgresSnapshotRepository) UpsertGroups(ctx context.Context, runID string, groups []schedule.Group) error {
	if len(groups) == 0 {
		return nil
	}

	txn, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for group upsert: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO schedule_groups (code, name, source_href, url, last_seen_run_id, source_updated_at)
                                          VALUES ($1, $2, $3, $4, $5, $6)
                                          ON CONFLICT (last_seen_run_id, code) DO UPDATE SET
                                              name = EXCLUDED.name,
                                              source_href = EXCLUDED.source_href,
                                              url = EXCLUDED.url,
                                              source_updated_at = EXCLUDED.source_updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare group upsert: %w", err)
	}
	defer stmt.Close()

	for _, g := range groups {
		if _, err := stmt.ExecContext(ctx, g.Code, g.Name, g.SourceHref, g.URL, runID, g.SourceUpdatedAt); err != nil {
			return fmt.Errorf("error upserting group %s: %w", g.Code, err)
		}
	}

	return txn.Commit()
}

func (r *PostgresSnapshotRepository) InsertLessons(ctx context.Context, runID string, lessons []schedule.Lesson) (int, error) {
	if len(lessons) == 0 {
		return 0, nil
	}

	txn, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction for lesson insert: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO schedule_lessons
                                              (run_id, group_code, group_name, lesson_date, day_label, lesson_number, column_index,
                                               subject, room, teacher, teacher_key, source_url)
                                          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
                                          ON CONFLICT (run_id, group_code, lesson_date, lesson_number, column_index, subject, room, teacher)
                                          DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare lesson insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, l := range lessons {
		res, err := stmt.ExecContext(ctx, runID, l.GroupCode, l.GroupName, l.Date, l.DayLabel, l.LessonNumber, l.ColumnIndex,
			l.Subject, l.Room, l.Teacher, l.TeacherKey, l.SourceURL)
		if err != nil {
			return 0, fmt.Errorf("error inserting lesson (group %s, %s #%d): %w", l.GroupCode, l.Date, l.LessonNumber, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := txn.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit lesson insert: %w", err)
	}
	return inserted, nil
}

// --- Promotion and cleanup ---

// Promote is the only write that changes what readers see.
func (r *PostgresSnapshotRepository) Promote(ctx context.Context, runID string, sourceUpdatedAt *time.Time) error {
	var stamp sql.NullTime
	if sourceUpdatedAt != nil {
		stamp = sql.NullTime{Time: *sourceUpdatedAt, Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE active_snapshot SET active_run_id = $1, source_updated_at = $2, updated_at = NOW() WHERE id = 1`,
		runID, stamp)
	if err != nil {
		return fmt.Errorf("error promoting run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPointerNotFound
	}
	return nil
}

func (r *PostgresSnapshotRepository) CollectGarbage(ctx context.Context) (schedule.GarbageStats, error) {
	var stats schedule.GarbageStats

	pointer, err := r.ActivePointer(ctx)
	if err != nil {
		return stats, err
	}
	if pointer.ActiveRunID == "" {
		return stats, nil
	}
	active := pointer.ActiveRunID

	steps := []struct {
		query string
		dest  *int64
	}{
		{`DELETE FROM schedule_lessons WHERE run_id <> $1`, &stats.Lessons},
		{`DELETE FROM schedule_groups WHERE last_seen_run_id <> $1`, &stats.Groups},
		{`DELETE FROM schedule_teachers WHERE last_seen_run_id <> $1`, &stats.Teachers},
	}
	for _, step := range steps {
		res, err := r.db.ExecContext(ctx, step.query, active)
		if err != nil {
			return stats, fmt.Errorf("error collecting garbage: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			*step.dest = n
		}
	}
	return stats, nil
}

func (r *PostgresSnapshotRepository) SweepRetention(ctx context.Context, cutoff string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM schedule_lessons
         WHERE run_id = (SELECT active_run_id FROM active_snapshot WHERE id = 1) AND lesson_date < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("error sweeping lessons before %s: %w", cutoff, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- Reads through the active pointer ---

func (r *PostgresSnapshotRepository) ActivePointer(ctx context.Context) (*schedule.ActiveSnapshotPointer, error) {
	p := &schedule.ActiveSnapshotPointer{}
	err := r.db.GetContext(ctx, p, `SELECT active_run_id, source_updated_at, updated_at FROM active_snapshot WHERE id = 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPointerNotFound
		}
		return nil, fmt.Errorf("error reading active snapshot pointer: %w", err)
	}
	return p, nil
}

func (r *PostgresSnapshotRepository) ListGroups(ctx context.Context) ([]schedule.Group, error) {
	groups := make([]schedule.Group, 0)
	err := r.db.SelectContext(ctx, &groups, `SELECT g.code, g.name, g.source_href, g.url, g.last_seen_run_id, g.source_updated_at
              FROM schedule_groups g
              JOIN active_snapshot a ON a.id = 1 AND g.last_seen_run_id = a.active_run_id
              ORDER BY g.name`)
	if err != nil {
		return nil, fmt.Errorf("error listing groups: %w", err)
	}
	return groups, nil
}

func (r *PostgresSnapshotRepository) LessonsForGroup(ctx context.Context, groupCode, date string) ([]schedule.Lesson, error) {
	lessons := make([]schedule.Lesson, 0)
	err := r.db.SelectContext(ctx, &lessons, `SELECT `+lessonColumns+`
              FROM schedule_lessons l
              JOIN active_snapshot a ON a.id = 1 AND l.run_id = a.active_run_id
              WHERE l.group_code = $1 AND l.lesson_date = $2
              ORDER BY l.lesson_number, l.column_index`, groupCode, date)
	if err != nil {
		return nil, fmt.Errorf("error listing lessons for group %s: %w", groupCode, err)
	}
	return lessons, nil
}

func (r *PostgresSnapshotRepository) LessonsForTeacher(ctx context.Context, teacherKey, date string) ([]schedule.Lesson, error) {
	lessons := make([]schedule.Lesson, 0)
	err := r.db.SelectContext(ctx, &lessons, `SELECT `+lessonColumns+`
              FROM schedule_lessons l
              JOIN active_snapshot a ON a.id = 1 AND l.run_id = a.active_run_id
              WHERE l.teacher_key = $1 AND l.lesson_date = $2
              ORDER BY l.lesson_number, l.column_index`, teacherKey, date)
	if err != nil {
		return nil, fmt.Errorf("error listing lessons for teacher %s: %w", teacherKey, err)
	}
	return lessons, nil
}
