package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"timetable_sync_bot/internal/domain/schedule"
	"timetable_sync_bot/internal/domain/teacher"
)

var (
	dateCellRe     = regexp.MustCompile(`(?s)^\s*(\d{2}\.\d{2}\.\d{4})\s*(.*?)\s*$`)
	lessonNumberRe = regexp.MustCompile(`^\s*(\d{1,2})(?:\D|$)`)
)

// slotEntry is one lesson read from a schedule cell.
type slotEntry struct {
	Subject   string
	Room      string
	Teacher   string
	GroupName string
	GroupHref string
}

// row is a schedule table row after day carry-forward has been applied.
type row struct {
	Date         string
	DayLabel     string
	LessonNumber int
	Slots        []*goquery.Selection
}

// ParseGroupSchedule reads a group's schedule page.
func (p *Parser) ParseGroupSchedule(content string, g schedule.Group, sourceURL string) ([]schedule.Lesson, error) {
	doc, err := p.document(sourceURL, content)
	if err != nil {
		return nil, err
	}

	var lessons []schedule.Lesson
	p.eachRow(doc, func(r row) {
		for col, slot := range r.Slots {
			for _, e := range p.readSlot(slot) {
				if e.Subject == "" {
					continue
				}
				lessons = append(lessons, schedule.Lesson{
					GroupCode:    g.Code,
					GroupName:    g.Name,
					Date:         r.Date,
					DayLabel:     r.DayLabel,
					LessonNumber: r.LessonNumber,
					ColumnIndex:  col,
					Subject:      e.Subject,
					Room:         e.Room,
					Teacher:      e.Teacher,
					SourceURL:    sourceURL,
				})
			}
		}
	})
	return lessons, nil
}

// ParseTeacherSchedule reads a teacher's schedule page. Group names are
// resolved to codes through the link href first and groupCodes second; rows
// with no resolvable group get a teacher-scoped code.
func (p *Parser) ParseTeacherSchedule(content string, t teacher.Teacher, groupCodes map[string]string, sourceURL string) ([]schedule.Lesson, error) {
	doc, err := p.document(sourceURL, content)
	if err != nil {
		return nil, err
	}

	var lessons []schedule.Lesson
	p.eachRow(doc, func(r row) {
		for col, slot := range r.Slots {
			for _, e := range p.readSlot(slot) {
				if e.Subject == "" {
					continue
				}
				code := resolveGroupCode(e, groupCodes)
				if code == "" {
					code = TeacherScopedCode(t, col)
				}
				lessons = append(lessons, schedule.Lesson{
					GroupCode:    code,
					GroupName:    e.GroupName,
					Date:         r.Date,
					DayLabel:     r.DayLabel,
					LessonNumber: r.LessonNumber,
					ColumnIndex:  col,
					Subject:      e.Subject,
					Room:         e.Room,
					Teacher:      t.Name,
					SourceURL:    sourceURL,
				})
			}
		}
	})
	return lessons, nil
}

// TeacherScopedCode builds the group code for teacher-page rows without a group.
func TeacherScopedCode(t teacher.Teacher, column int) string {
	owner := "unknown"
	if t.Code.Valid && t.Code.String != "" {
		owner = t.Code.String
	}
	return schedule.TeacherScopedPrefix + owner + ":" + strconv.Itoa(column)
}

func resolveGroupCode(e slotEntry, groupCodes map[string]string) string {
	if e.GroupHref != "" {
		if code, ok := CodeFromHref(RosterGroups, e.GroupHref); ok {
			return code
		}
	}
	if e.GroupName != "" {
		if code, ok := groupCodes[strings.ToLower(e.GroupName)]; ok {
			return code
		}
	}
	return ""
}

// eachRow scans table rows top to bottom, carrying the last seen date forward.
// Rows without a lesson number, before the first date or with an invalid date
// cell are skipped.
func (p *Parser) eachRow(doc *goquery.Document, fn func(row)) {
	var date, label string

	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.ChildrenFiltered("td, th")
		n := cells.Length()
		if n == 0 {
			return
		}

		idx := 0
		first := cells.Eq(0).Text()
		if dateCellRe.MatchString(first) {
			d, l, ok := parseDateCell(first)
			if !ok {
				// A malformed date cell must not be read as a lesson number,
				// and the rows it spans belong to no known day.
				date, label = "", ""
				return
			}
			date, label = d, l
			idx = 1
		} else if _, ok := parseLessonNumber(first); !ok && n > 1 {
			// A blank day cell in front of the lesson number.
			if _, ok := parseLessonNumber(cells.Eq(1).Text()); ok {
				idx = 1
			}
		}
		if idx >= n {
			return
		}

		number, ok := parseLessonNumber(cells.Eq(idx).Text())
		if !ok || date == "" {
			return
		}

		slots := make([]*goquery.Selection, 0, n-idx-1)
		cells.Slice(idx+1, n).Each(func(_ int, c *goquery.Selection) {
			slots = append(slots, c)
		})
		fn(row{Date: date, DayLabel: label, LessonNumber: number, Slots: filterEmpty(slots, p.markers.Empty)})
	})
}

// filterEmpty replaces empty-marked slots with nil so column indexes stay stable.
func filterEmpty(slots []*goquery.Selection, emptyClass string) []*goquery.Selection {
	for i, s := range slots {
		if s.HasClass(emptyClass) {
			slots[i] = nil
		}
	}
	return slots
}

// readSlot returns the lessons in one cell. A cell may list several subgroups;
// the n-th subject pairs with the n-th room, teacher and group marker.
func (p *Parser) readSlot(slot *goquery.Selection) []slotEntry {
	if slot == nil {
		return nil
	}

	m := p.markers
	subjects := slot.Find("." + m.Subject)
	rooms := slot.Find("." + m.Room)
	teachers := slot.Find("." + m.Teacher)
	groups := slot.Find("." + m.Group)

	if subjects.Length() == 0 {
		plain := slot.Clone()
		plain.Find("." + m.Room + ", ." + m.Teacher + ", ." + m.Group).Remove()
		text := collapse(plain.Text())
		if text == "" {
			return nil
		}
		e := slotEntry{
			Subject: text,
			Room:    nthText(rooms, 0),
			Teacher: nthText(teachers, 0),
		}
		e.GroupName, e.GroupHref = nthGroup(groups, 0)
		return []slotEntry{e}
	}

	entries := make([]slotEntry, 0, subjects.Length())
	subjects.Each(func(i int, s *goquery.Selection) {
		e := slotEntry{
			Subject: collapse(s.Text()),
			Room:    nthText(rooms, i),
			Teacher: nthText(teachers, i),
		}
		e.GroupName, e.GroupHref = nthGroup(groups, i)
		entries = append(entries, e)
	})
	return entries
}

func nthText(sel *goquery.Selection, i int) string {
	if i >= sel.Length() {
		return ""
	}
	return collapse(sel.Eq(i).Text())
}

func nthGroup(sel *goquery.Selection, i int) (string, string) {
	if i >= sel.Length() {
		return "", ""
	}
	g := sel.Eq(i)
	href, ok := g.Attr("href")
	if !ok {
		href, _ = g.Find("a").First().Attr("href")
	}
	return collapse(g.Text()), strings.TrimSpace(href)
}

// parseDateCell reads "DD.MM.YYYY<br>Label" and returns the ISO date and label.
func parseDateCell(text string) (string, string, bool) {
	m := dateCellRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	d, err := time.Parse("02.01.2006", m[1])
	if err != nil {
		return "", "", false
	}
	return d.Format("2006-01-02"), collapse(m[2]), true
}

func parseLessonNumber(text string) (int, bool) {
	m := lessonNumberRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
