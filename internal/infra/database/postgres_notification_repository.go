package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"timetable_sync_bot/internal/domain/notification"
)

type PostgresNotificationRepository struct {
	db *sqlx.DB
}

func NewPostgresNotificationRepository(db *sqlx.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

// TryInsert relies on the reminder_key primary key: a conflicting insert
// returns no row and is reported as inserted == false.
func (r *PostgresNotificationRepository) TryInsert(ctx context.Context, entry *notification.LedgerEntry) (bool, error) {
	query := `INSERT INTO reminder_ledger (reminder_key, user_id, role, days_before, lesson_date, lesson_number, target_ref)
              VALUES ($1, $2, $3, $4, $5, $6, $7)
              ON CONFLICT (reminder_key) DO NOTHING
              RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		entry.ReminderKey, entry.UserID, entry.Role, entry.DaysBefore, entry.Date, entry.LessonNumber, entry.TargetRef,
	).Scan(&entry.CreatedAt)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		return false, nil
	default:
		return false, fmt.Errorf("error inserting reminder ledger entry: %w", err)
	}
}

func (r *PostgresNotificationRepository) ListEnabled(ctx context.Context) ([]notification.Subscriber, error) {
	query := `SELECT user_id, role, reminder_days_before,
                     COALESCE(preferred_group_code, ''), COALESCE(preferred_teacher_key, '')
              FROM user_preferences
              WHERE reminder_enabled = TRUE
              ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing reminder subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := make([]notification.Subscriber, 0)
	for rows.Next() {
		var (
			s    notification.Subscriber
			days []int64
		)
		if err := rows.Scan(&s.UserID, &s.Role, pq.Array(&days), &s.PreferredGroupCode, &s.PreferredTeacherKey); err != nil {
			return nil, fmt.Errorf("error scanning reminder subscriber: %w", err)
		}
		s.ReminderEnabled = true
		for _, d := range days {
			s.ReminderDaysBefore = append(s.ReminderDaysBefore, int(d))
		}
		subscribers = append(subscribers, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminder subscribers: %w", err)
	}
	return subscribers, nil
}
