package parser

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timetable_sync_bot/internal/domain/schedule"
	"timetable_sync_bot/internal/domain/teacher"
)

const singleRowGroupHTML = `<table>
<tr><td class="hd">13.02.2026<br>Пт-1</td><td class="hd">2</td>
<td class="ur"><a class="z1">Математика</a> <a class="z2">301</a> <a class="z3" href="cp12.htm">Иванов А.Б.</a></td>
<td class="nul">&nbsp;</td></tr>
</table>`

const groupPageHTML = `<html><body>
<table class="inf">
<tr><th class="hd">Дата</th><th class="hd">Пара</th><th class="hd">Подгр. 1</th><th class="hd">Подгр. 2</th></tr>
<tr><td class="hd">1</td><td class="ur"><a class="z1">Без даты</a></td><td class="nul"></td></tr>
<tr><td class="hd" rowspan="3">13.02.2026<br>Пт-1</td><td class="hd">1</td><td class="nul">&nbsp;</td><td class="nul">&nbsp;</td></tr>
<tr><td class="hd">2</td>
  <td class="ur"><a class="z1">Математика</a> <a class="z2">301</a> <a class="z3">Иванов А.Б.</a></td>
  <td class="ur"><a class="z1">Информатика</a> <a class="z2">204</a> <a class="z3">Петрова В.С.</a></td></tr>
<tr><td class="hd">3</td><td class="ur">Классный час <a class="z2">101</a></td><td class="nul"></td></tr>
<tr><td class="hd">14.02.2026<br>Сб-1</td><td class="hd">1 пара</td>
  <td class="nul"></td>
  <td class="ur"><a class="z1">Физкультура</a></td></tr>
<tr><td class="hd">4</td><td class="ur"><a class="z1"> </a><a class="z2">12</a></td><td class="nul"></td></tr>
<tr><td class="hd"></td><td class="hd">5</td><td class="ur"><a class="z1">История</a></td><td class="nul"></td></tr>
</table></body></html>`

func testGroup() schedule.Group {
	return schedule.Group{Code: "59", Name: "ИС-21"}
}

func TestParseGroupScheduleSingleRow(t *testing.T) {
	p := New(DefaultMarkers(), nil)

	lessons, err := p.ParseGroupSchedule(singleRowGroupHTML, testGroup(), "https://example.org/cg59.htm")
	require.NoError(t, err)
	require.Len(t, lessons, 1)

	l := lessons[0]
	assert.Equal(t, "2026-02-13", l.Date)
	assert.Equal(t, "Пт-1", l.DayLabel)
	assert.Equal(t, 2, l.LessonNumber)
	assert.Equal(t, 0, l.ColumnIndex)
	assert.Equal(t, "Математика", l.Subject)
	assert.Equal(t, "301", l.Room)
	assert.Equal(t, "Иванов А.Б.", l.Teacher)
	assert.Equal(t, "59", l.GroupCode)
	assert.Equal(t, "ИС-21", l.GroupName)
	assert.Equal(t, "https://example.org/cg59.htm", l.SourceURL)
}

func TestParseGroupScheduleCarriesDayForward(t *testing.T) {
	p := New(DefaultMarkers(), nil)

	lessons, err := p.ParseGroupSchedule(groupPageHTML, testGroup(), "cg59.htm")
	require.NoError(t, err)

	type got struct {
		Date    string
		Number  int
		Column  int
		Subject string
		Room    string
	}
	var rows []got
	for _, l := range lessons {
		rows = append(rows, got{l.Date, l.LessonNumber, l.ColumnIndex, l.Subject, l.Room})
	}

	assert.Equal(t, []got{
		{"2026-02-13", 2, 0, "Математика", "301"},
		{"2026-02-13", 2, 1, "Информатика", "204"},
		{"2026-02-13", 3, 0, "Классный час", "101"},
		{"2026-02-14", 1, 1, "Физкультура", ""},
		{"2026-02-14", 5, 0, "История", ""},
	}, rows)
	assert.Equal(t, "Сб-1", lessons[3].DayLabel)
}

func TestParseGroupScheduleSubgroupsInOneCell(t *testing.T) {
	html := `<table><tr><td>16.02.2026<br>Пн-2</td><td>1</td>
<td class="ur">
  <table><tr><td><a class="z1">Английский</a> <a class="z2">401</a> <a class="z3">Смирнова</a></td></tr>
         <tr><td><a class="z1">Немецкий</a> <a class="z2">402</a> <a class="z3">Кузнецов</a></td></tr></table>
</td></tr></table>`
	p := New(DefaultMarkers(), nil)

	lessons, err := p.ParseGroupSchedule(html, testGroup(), "cg59.htm")
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, "Английский", lessons[0].Subject)
	assert.Equal(t, "401", lessons[0].Room)
	assert.Equal(t, "Немецкий", lessons[1].Subject)
	assert.Equal(t, "Кузнецов", lessons[1].Teacher)
	assert.Equal(t, lessons[0].ColumnIndex, lessons[1].ColumnIndex)
}

func TestParseGroupScheduleDropsRowWithInvalidDate(t *testing.T) {
	html := `<table>
<tr><td>27.02.2026<br>Пт-1</td><td>4</td><td class="ur"><a class="z1">Физика</a></td></tr>
<tr><td>31.02.2026<br>Вт-1</td><td>2</td><td class="ur"><a class="z1">Химия</a></td></tr>
<tr><td>3</td><td class="ur"><a class="z1">Биология</a></td></tr>
<tr><td>02.03.2026<br>Пн-2</td><td>1</td><td class="ur"><a class="z1">История</a></td></tr>
</table>`
	p := New(DefaultMarkers(), nil)

	lessons, err := p.ParseGroupSchedule(html, testGroup(), "cg59.htm")
	require.NoError(t, err)
	require.Len(t, lessons, 2, "rows under an invalid date have no day to carry")
	assert.Equal(t, "Физика", lessons[0].Subject)
	assert.Equal(t, "2026-02-27", lessons[0].Date)
	assert.Equal(t, "История", lessons[1].Subject)
	assert.Equal(t, "2026-03-02", lessons[1].Date)
	assert.Equal(t, 1, lessons[1].LessonNumber)
	for _, l := range lessons {
		assert.NotEqual(t, 31, l.LessonNumber)
	}
}

func TestParseGroupScheduleEmptyPage(t *testing.T) {
	p := New(DefaultMarkers(), nil)
	lessons, err := p.ParseGroupSchedule("", testGroup(), "cg59.htm")
	require.NoError(t, err)
	assert.Empty(t, lessons)
}

const teacherPageHTML = `<table>
<tr><td>13.02.2026<br>Пт-1</td><td>1</td>
  <td class="ur"><a class="z1">Физика</a> <a class="z2">204</a> <a class="z4" href="cg59.htm">ИС-21</a></td>
  <td class="ur"><a class="z1">Физика</a> <a class="z2">205</a> <span class="z4">ПК-31</span></td>
  <td class="ur"><a class="z1">Консультация</a> <a class="z2">204</a></td>
</tr></table>`

func TestParseTeacherSchedule(t *testing.T) {
	p := New(DefaultMarkers(), nil)
	tch := teacher.Teacher{Name: "Иванов А.Б.", Code: sql.NullString{String: "12", Valid: true}}

	lessons, err := p.ParseTeacherSchedule(teacherPageHTML, tch, map[string]string{"пк-31": "70"}, "cp12.htm")
	require.NoError(t, err)
	require.Len(t, lessons, 3)

	assert.Equal(t, "59", lessons[0].GroupCode)
	assert.Equal(t, "ИС-21", lessons[0].GroupName)
	assert.Equal(t, "Иванов А.Б.", lessons[0].Teacher)

	assert.Equal(t, "70", lessons[1].GroupCode)
	assert.Equal(t, "ПК-31", lessons[1].GroupName)

	assert.Equal(t, "teacher-scoped:12:2", lessons[2].GroupCode)
	assert.Empty(t, lessons[2].GroupName)
	assert.True(t, lessons[2].IsTeacherScoped())
}

func TestTeacherScopedCodeWithoutTeacherCode(t *testing.T) {
	assert.Equal(t, "teacher-scoped:unknown:3", TeacherScopedCode(teacher.Teacher{Name: "Сидоров"}, 3))
}

func TestParseLessonNumber(t *testing.T) {
	n, ok := parseLessonNumber(" 3 пара")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = parseLessonNumber("Пара")
	assert.False(t, ok)
	_, ok = parseLessonNumber("0")
	assert.False(t, ok)
}

func TestParseDateCellRejectsInvalidDate(t *testing.T) {
	_, _, ok := parseDateCell("31.02.2026 Вт")
	assert.False(t, ok)

	d, label, ok := parseDateCell("01.03.2026\nВс-1 ")
	assert.True(t, ok)
	assert.Equal(t, "2026-03-01", d)
	assert.Equal(t, "Вс-1", label)
}
