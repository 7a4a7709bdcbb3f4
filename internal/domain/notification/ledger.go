package notification

import (
	"strconv"
	"strings"
	"time"
)

// LedgerEntry records that a reminder was attempted. A row exists at most once
// per ReminderKey and its presence alone suppresses further sends.
type LedgerEntry struct {
	ReminderKey  string
	UserID       int64
	Role         Role
	DaysBefore   int
	Date         string
	LessonNumber int
	TargetRef    string
	CreatedAt    time.Time
}

// ReminderKey builds the dedup key for one (subscriber, lesson, lead time).
func ReminderKey(userID int64, role Role, daysBefore int, date string, lessonNumber int, subject, groupCode, teacher string) string {
	return strings.Join([]string{
		strconv.FormatInt(userID, 10),
		string(role),
		strconv.Itoa(daysBefore),
		date,
		strconv.Itoa(lessonNumber),
		subject,
		groupCode,
		teacher,
	}, "|")
}
