package telegram

import "gopkg.in/telebot.v3"

// Client sends messages to users. Implementations are fire-and-report: the
// caller decides what to do with a failure.
type Client interface {
	SendMessage(recipientID int64, text string, format telebot.ParseMode) error
}
