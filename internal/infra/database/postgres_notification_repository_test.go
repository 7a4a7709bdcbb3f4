package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable_sync_bot/internal/domain/notification"
)

func ledgerEntry() *notification.LedgerEntry {
	return &notification.LedgerEntry{
		ReminderKey:  "7|student|1|2026-02-14|2|Математика|59|Иванов А.Б.",
		UserID:       7,
		Role:         notification.RoleStudent,
		DaysBefore:   1,
		Date:         "2026-02-14",
		LessonNumber: 2,
		TargetRef:    "59",
	}
}

func TestNotificationRepositoryTryInsertNew(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresNotificationRepository(db)

	created := time.Date(2026, 2, 13, 8, 30, 0, 0, time.UTC)
	e := ledgerEntry()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (reminder_key) DO NOTHING")).
		WithArgs(e.ReminderKey, 7, "student", 1, "2026-02-14", 2, "59").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	inserted, err := repo.TryInsert(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, created, e.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryTryInsertDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO reminder_ledger")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	inserted, err := repo.TryInsert(context.Background(), ledgerEntry())
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestNotificationRepositoryTryInsertUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO reminder_ledger")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	inserted, err := repo.TryInsert(context.Background(), ledgerEntry())
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestNotificationRepositoryTryInsertError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresNotificationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO reminder_ledger")).
		WillReturnError(errors.New("connection refused"))

	inserted, err := repo.TryInsert(context.Background(), ledgerEntry())
	assert.Error(t, err)
	assert.False(t, inserted)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
}

func TestNotificationRepositoryListEnabled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostgresNotificationRepository(db)

	rows := sqlmock.NewRows([]string{"user_id", "role", "reminder_days_before", "preferred_group_code", "preferred_teacher_key"}).
		AddRow(7, "student", "{1,2}", "59", "").
		AddRow(9, "teacher", "{2}", "", "иванов:аб")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE reminder_enabled = TRUE")).WillReturnRows(rows)

	subs, err := repo.ListEnabled(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, notification.Subscriber{
		UserID: 7, Role: notification.RoleStudent, ReminderEnabled: true,
		ReminderDaysBefore: []int{1, 2}, PreferredGroupCode: "59",
	}, subs[0])
	assert.Equal(t, notification.RoleTeacher, subs[1].Role)
	assert.Equal(t, []int{2}, subs[1].ReminderDaysBefore)
	assert.Equal(t, "иванов:аб", subs[1].PreferredTeacherKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}
