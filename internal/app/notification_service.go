// internal/app/notification_service.go
package app

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"timetable_sync_bot/internal/domain/notification"
	"timetable_sync_bot/internal/domain/schedule"
	"timetable_sync_bot/internal/domain/teacher"
	domainTelegram "timetable_sync_bot/internal/domain/telegram"
	"timetable_sync_bot/internal/infra/metrics"
)

// Reminder results, also used as metric labels.
const (
	reminderSent       = "sent"
	reminderDuplicate  = "duplicate"
	reminderSendFailed = "send_failed"
)

// NotificationService dispatches lesson reminders.
type NotificationService interface {
	// ProcessReminderTick sends reminders for lessons starting this minute in
	// one or two days. Overlapping calls are skipped.
	ProcessReminderTick(ctx context.Context) (TickReport, error)
}

// TickReport summarizes one reminder tick.
type TickReport struct {
	Skipped       bool
	ActiveLessons []int
	Sent          int
	Duplicates    int
	Failed        int
}

// NotificationServiceImpl implements NotificationService.
//
// The ledger entry is written before the message is sent. A send failure (or
// a crash between the two steps) leaves the entry in place, so a reminder is
// delivered at most once and may be lost.
type NotificationServiceImpl struct {
	subscribers    notification.SubscriberRepository
	ledger         notification.LedgerRepository
	lessons        LessonSource
	telegramClient domainTelegram.Client
	metrics        *metrics.Metrics
	location       *time.Location
	startTimes     map[int]string
	logger         *logrus.Entry
	guard          Guard

	now func() time.Time
}

func NewNotificationServiceImpl(
	sr notification.SubscriberRepository,
	lr notification.LedgerRepository,
	lessons LessonSource,
	tc domainTelegram.Client,
	m *metrics.Metrics,
	loc *time.Location,
	startTimes map[int]string,
	logger *logrus.Entry,
) *NotificationServiceImpl {
	if loc == nil {
		loc = time.UTC
	}
	return &NotificationServiceImpl{
		subscribers:    sr,
		ledger:         lr,
		lessons:        lessons,
		telegramClient: tc,
		metrics:        m,
		location:       loc,
		startTimes:     startTimes,
		logger:         logger.WithField("component", "reminders"),
		now:            time.Now,
	}
}

func (s *NotificationServiceImpl) ProcessReminderTick(ctx context.Context) (TickReport, error) {
	var report TickReport
	if !s.guard.TryAcquire() {
		s.logger.Debug("Previous reminder tick still running, skipping")
		report.Skipped = true
		return report, nil
	}
	defer s.guard.Release()

	now := s.now().In(s.location)
	report.ActiveLessons = s.lessonsStartingAt(now.Format("15:04"))
	if len(report.ActiveLessons) == 0 {
		return report, nil
	}
	active := make(map[int]bool, len(report.ActiveLessons))
	for _, n := range report.ActiveLessons {
		active[n] = true
	}

	subs, err := s.subscribers.ListEnabled(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list reminder subscribers: %w", err)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location)
	for _, sub := range subs {
		for _, days := range sub.LeadDays() {
			target := today.AddDate(0, 0, days).Format(isoDate)
			due, err := s.dueLessons(ctx, sub, target, active)
			if err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"user_id": sub.UserID,
					"date":    target,
				}).Error("Failed to load lessons for subscriber")
				continue
			}
			for _, l := range due {
				s.remind(ctx, sub, days, l, &report)
			}
		}
	}

	if report.Sent+report.Duplicates+report.Failed > 0 {
		s.logger.WithFields(logrus.Fields{
			"lessons":    report.ActiveLessons,
			"sent":       report.Sent,
			"duplicates": report.Duplicates,
			"failed":     report.Failed,
		}).Info("Reminder tick finished")
	}
	return report, nil
}

func (s *NotificationServiceImpl) lessonsStartingAt(hhmm string) []int {
	var numbers []int
	for n, start := range s.startTimes {
		if start == hhmm {
			numbers = append(numbers, n)
		}
	}
	sort.Ints(numbers)
	return numbers
}

func (s *NotificationServiceImpl) dueLessons(ctx context.Context, sub notification.Subscriber, date string, active map[int]bool) ([]schedule.Lesson, error) {
	var (
		lessons []schedule.Lesson
		err     error
	)
	switch sub.Role {
	case notification.RoleStudent:
		if sub.PreferredGroupCode == "" {
			return nil, nil
		}
		lessons, err = s.lessons.ForGroup(ctx, sub.PreferredGroupCode, date)
	case notification.RoleTeacher:
		key := teacher.NormalizeName(sub.PreferredTeacherKey)
		if key == "" {
			return nil, nil
		}
		lessons, err = s.lessons.ForTeacher(ctx, key, date)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	due := lessons[:0:0]
	for _, l := range lessons {
		if active[l.LessonNumber] {
			due = append(due, l)
		}
	}
	return due, nil
}

func (s *NotificationServiceImpl) remind(ctx context.Context, sub notification.Subscriber, days int, l schedule.Lesson, report *TickReport) {
	key := notification.ReminderKey(sub.UserID, sub.Role, days, l.Date, l.LessonNumber, l.Subject, l.GroupCode, l.Teacher)
	entryLogger := s.logger.WithFields(logrus.Fields{"user_id": sub.UserID, "reminder_key": key})

	target := l.GroupCode
	if sub.Role == notification.RoleTeacher {
		target = l.TeacherKey
	}
	inserted, err := s.ledger.TryInsert(ctx, &notification.LedgerEntry{
		ReminderKey:  key,
		UserID:       sub.UserID,
		Role:         sub.Role,
		DaysBefore:   days,
		Date:         l.Date,
		LessonNumber: l.LessonNumber,
		TargetRef:    target,
	})
	if err != nil {
		entryLogger.WithError(err).Error("Failed to write reminder ledger entry")
		report.Failed++
		return
	}
	if !inserted {
		report.Duplicates++
		s.metrics.ObserveReminder(reminderDuplicate)
		return
	}

	text := FormatReminder(sub.Role, days, l, s.startTimes[l.LessonNumber])
	if err := s.telegramClient.SendMessage(sub.UserID, text, telebot.ModeHTML); err != nil {
		entryLogger.WithError(err).Warn("Failed to send reminder, it will not be retried")
		report.Failed++
		s.metrics.ObserveReminder(reminderSendFailed)
		return
	}
	report.Sent++
	s.metrics.ObserveReminder(reminderSent)
}

// FormatReminder renders an HTML reminder message. Students see the teacher,
// teachers see the group.
func FormatReminder(role notification.Role, days int, l schedule.Lesson, startTime string) string {
	when := "завтра"
	if days == 2 {
		when = "послезавтра"
	}

	date := l.Date
	if t, err := time.Parse(isoDate, l.Date); err == nil {
		date = t.Format("02.01.2006")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Напоминание: %s занятие</b>\n", when)
	fmt.Fprintf(&b, "%s", html.EscapeString(date))
	if l.DayLabel != "" {
		fmt.Fprintf(&b, " (%s)", html.EscapeString(l.DayLabel))
	}
	fmt.Fprintf(&b, ", пара №%d", l.LessonNumber)
	if startTime != "" {
		fmt.Fprintf(&b, " в %s", html.EscapeString(startTime))
	}
	fmt.Fprintf(&b, "\n<b>%s</b>", html.EscapeString(l.Subject))
	if l.Room != "" {
		fmt.Fprintf(&b, "\nАудитория: %s", html.EscapeString(l.Room))
	}
	if role == notification.RoleTeacher {
		group := l.GroupName
		if group == "" && !l.IsTeacherScoped() {
			group = l.GroupCode
		}
		if group != "" {
			fmt.Fprintf(&b, "\nГруппа: %s", html.EscapeString(group))
		}
	} else if l.Teacher != "" {
		fmt.Fprintf(&b, "\nПреподаватель: %s", html.EscapeString(l.Teacher))
	}
	return b.String()
}
