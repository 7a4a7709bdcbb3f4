// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterBotCommands registers /start and /help.
func RegisterBotCommands(b *telebot.Bot, adminTelegramID int64, baseLogger *logrus.Entry) {
	startHelpLogger := baseLogger.WithField("handler_group", "start_help")

	b.Handle("/start", func(c telebot.Context) error {
		senderID := c.Sender().ID
		startHelpLogger.WithField("command", "/start").WithField("sender_id", senderID).Info("Processing /start command")

		if senderID == adminTelegramID {
			return c.Send(fmt.Sprintf("Привет, Администратор %s! Используйте /help для списка команд.", c.Sender().FirstName))
		}
		return c.Send("Привет! Я присылаю напоминания о занятиях за один или два дня до начала пары.")
	})

	b.Handle("/help", func(c telebot.Context) error {
		senderID := c.Sender().ID
		startHelpLogger.WithField("command", "/help").WithField("sender_id", senderID).Info("Processing /help command")
		return c.Send(HelpText(senderID == adminTelegramID))
	})
}

func HelpText(isAdmin bool) string {
	text := "Напоминания приходят в начале пары за 1 или 2 дня до занятия, в зависимости от ваших настроек."
	if isAdmin {
		text += "\n\nКоманды администратора:\n/sync - запустить синхронизацию расписания\n/status - состояние текущего снимка и последнего запуска"
	}
	return text
}
