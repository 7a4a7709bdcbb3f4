package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"timetable_sync_bot/internal/app"
)

const msgNotAuthorized = "Ошибка: У вас нет прав для выполнения этой команды."

// RegisterAdminHandlers registers /sync and /status.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, adminTelegramID int64, loc *time.Location, baseLogger *logrus.Entry) {
	b.Handle("/sync", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/sync",
			"sender_id": c.Sender().ID,
		})
		handlerLogger.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgNotAuthorized)
		}

		_ = c.Send("Синхронизация запущена...")

		res, err := adminService.TriggerSync(ctx, c.Sender().ID)
		if err != nil {
			if errors.Is(err, app.ErrAdminNotAuthorized) {
				handlerLogger.WithError(err).Warn("Admin not authorized (service level)")
				return c.Send(msgNotAuthorized)
			}
			handlerLogger.WithError(err).Error("Failed to trigger sync")
			return c.Send(fmt.Sprintf("Произошла ошибка при запуске синхронизации: %s", err.Error()))
		}

		handlerLogger.WithFields(logrus.Fields{
			"run_id": res.RunID,
			"status": res.Status,
		}).Info("Manual sync finished")
		return c.Send(FormatSyncResult(res), telebot.ModeHTML)
	})

	b.Handle("/status", func(c telebot.Context) error {
		handlerLogger := baseLogger.WithFields(logrus.Fields{
			"handler":   "/status",
			"sender_id": c.Sender().ID,
		})

		if c.Sender().ID != adminTelegramID {
			handlerLogger.Warn("Unauthorized access attempt")
			return c.Send(msgNotAuthorized)
		}

		report, err := adminService.Status(ctx, c.Sender().ID)
		if err != nil {
			handlerLogger.WithError(err).Error("Failed to build status report")
			return c.Send(fmt.Sprintf("Произошла ошибка при получении статуса: %s", err.Error()))
		}
		return c.Send(FormatStatus(report, loc), telebot.ModeHTML)
	})
}

// FormatSyncResult renders the reply to /sync.
func FormatSyncResult(res app.SyncResult) string {
	switch res.Status {
	case app.SyncStatusSkipped:
		return "Синхронизация уже выполняется, запуск пропущен."
	case app.SyncStatusFailed:
		msg := fmt.Sprintf("<b>Синхронизация не удалась</b>\nЗапуск: <code>%s</code>", res.RunID)
		if res.Err != nil {
			msg += "\nОшибка: " + html.EscapeString(res.Err.Error())
		}
		return msg + "\nДанные прошлой синхронизации продолжают использоваться."
	default:
		return fmt.Sprintf("<b>Синхронизация завершена</b>\nЗапуск: <code>%s</code>\nСтраниц: %d, групп: %d, преподавателей: %d, занятий: %d\nДлительность: %s",
			res.RunID, res.Counts.Pages, res.Counts.Groups, res.Counts.Teachers, res.Counts.Lessons,
			res.Duration.Round(time.Second))
	}
}

// FormatStatus renders the reply to /status.
func FormatStatus(r *app.StatusReport, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	const layout = "02.01.2006 15:04"

	var b strings.Builder
	b.WriteString("<b>Статус расписания</b>\n")
	if r.Pointer == nil {
		b.WriteString("Активный снимок: нет\n")
	} else {
		fmt.Fprintf(&b, "Активный снимок: <code>%s</code>\n", r.Pointer.ActiveRunID)
		fmt.Fprintf(&b, "Опубликован: %s\n", r.Pointer.UpdatedAt.In(loc).Format(layout))
		if r.Pointer.SourceUpdatedAt.Valid {
			fmt.Fprintf(&b, "Обновление на сайте: %s\n", r.Pointer.SourceUpdatedAt.Time.In(loc).Format(layout))
		}
		fmt.Fprintf(&b, "Групп: %d, преподавателей: %d\n", r.ActiveGroups, r.ActiveTeachers)
	}
	if r.LastRun == nil {
		b.WriteString("Последний запуск: нет")
	} else {
		fmt.Fprintf(&b, "Последний запуск: %s (%s), %s", r.LastRun.Status, r.LastRun.Trigger, r.LastRun.StartedAt.In(loc).Format(layout))
		if r.LastRun.Error.Valid {
			fmt.Fprintf(&b, "\nОшибка: %s", html.EscapeString(r.LastRun.Error.String))
		}
	}
	if r.SyncRunning {
		b.WriteString("\nСинхронизация выполняется сейчас.")
	}
	return b.String()
}
