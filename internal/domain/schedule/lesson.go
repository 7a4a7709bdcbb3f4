package schedule

import (
	"strconv"
	"strings"
)

// TeacherScopedPrefix marks group codes synthesized for teacher-page rows
// that carry no resolvable group.
const TeacherScopedPrefix = "teacher-scoped:"

// Lesson is a single timetable slot. Rows are immutable once written for a run.
type Lesson struct {
	RunID        string `db:"run_id"`
	GroupCode    string `db:"group_code"`
	GroupName    string `db:"group_name"`
	Date         string `db:"lesson_date"` // ISO, YYYY-MM-DD
	DayLabel     string `db:"day_label"`
	LessonNumber int    `db:"lesson_number"`
	ColumnIndex  int    `db:"column_index"`
	Subject      string `db:"subject"`
	Room         string `db:"room"`
	Teacher      string `db:"teacher"`
	TeacherKey   string `db:"teacher_key"`
	SourceURL    string `db:"source_url"`
}

// NaturalKey identifies a lesson within a run for idempotent inserts.
func (l Lesson) NaturalKey() string {
	return strings.Join([]string{
		l.RunID,
		l.GroupCode,
		l.Date,
		strconv.Itoa(l.LessonNumber),
		strconv.Itoa(l.ColumnIndex),
		l.Subject,
		l.Room,
		l.Teacher,
	}, "\x1f")
}

// IsTeacherScoped reports whether the group code was synthesized from a teacher page.
func (l Lesson) IsTeacherScoped() bool {
	return strings.HasPrefix(l.GroupCode, TeacherScopedPrefix)
}
