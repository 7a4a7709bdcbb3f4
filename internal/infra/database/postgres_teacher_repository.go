package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"timetable_sync_bot/internal/domain/teacher"
)

type PostgresTeacherRepository struct {
	db *sqlx.DB
}

func NewPostgresTeacherRepository(db *sqlx.DB) *PostgresTeacherRepository {
	return &PostgresTeacherRepository{db: db}
}

// Upsert writes the run's own teacher rows. The name and code start from the
// active run's row for the same key: the longest name wins and a known code
// is never cleared. Rows of the active run are not modified.
func (r *PostgresTeacherRepository) Upsert(ctx context.Context, runID string, teachers []teacher.Teacher) error {
	if len(teachers) == 0 {
		return nil
	}

	txn, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for teacher upsert: %w", err)
	}
	defer txn.Rollback()

	stmt, err := txn.PrepareContext(ctx, `INSERT INTO schedule_teachers (last_seen_run_id, teacher_key, code, name, source_href, url)
                                          SELECT $6::text, $1::text,
                                                 COALESCE($2::text, prev.code),
                                                 CASE WHEN length(prev.name) > length($3::text) THEN prev.name ELSE $3::text END,
                                                 COALESCE(NULLIF($4::text, ''), prev.source_href, ''),
                                                 COALESCE(NULLIF($5::text, ''), prev.url, '')
                                          FROM (SELECT 1) AS one
                                          LEFT JOIN schedule_teachers prev
                                                 ON prev.teacher_key = $1::text
                                                AND prev.last_seen_run_id = (SELECT active_run_id FROM active_snapshot WHERE id = 1)
                                                AND prev.last_seen_run_id <> $6::text
                                          ON CONFLICT (last_seen_run_id, teacher_key) DO UPDATE SET
                                              name = CASE WHEN length(EXCLUDED.name) > length(schedule_teachers.name)
                                                          THEN EXCLUDED.name ELSE schedule_teachers.name END,
                                              code = COALESCE(EXCLUDED.code, schedule_teachers.code),
                                              source_href = COALESCE(NULLIF(EXCLUDED.source_href, ''), schedule_teachers.source_href),
                                              url = COALESCE(NULLIF(EXCLUDED.url, ''), schedule_teachers.url)`)
	if err != nil {
		return fmt.Errorf("failed to prepare teacher upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range teachers {
		if _, err := stmt.ExecContext(ctx, t.Key, t.Code, t.Name, t.SourceHref, t.URL, runID); err != nil {
			return fmt.Errorf("error upserting teacher %s: %w", t.Key, err)
		}
	}

	return txn.Commit()
}

func (r *PostgresTeacherRepository) ListActive(ctx context.Context) ([]teacher.Teacher, error) {
	teachers := make([]teacher.Teacher, 0)
	err := r.db.SelectContext(ctx, &teachers, `SELECT t.teacher_key, t.code, t.name, t.source_href, t.url, t.last_seen_run_id
              FROM schedule_teachers t
              JOIN active_snapshot a ON a.id = 1 AND t.last_seen_run_id = a.active_run_id
              ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("error listing active teachers: %w", err)
	}
	return teachers, nil
}
