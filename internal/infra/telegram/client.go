// internal/infra/telegram/client.go
package telegram

import (
	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to a user's private chat.
func (tba *TelebotAdapter) SendMessage(recipientID int64, text string, format telebot.ParseMode) error {
	options := &telebot.SendOptions{
		ParseMode:             format,
		DisableWebPagePreview: true,
	}
	_, err := tba.bot.Send(&telebot.User{ID: recipientID}, text, options)
	return err
}
