package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shorts-bot/session"
)

const (
	callbackPrefix     = "upload:"
	dataUploadNow      = callbackPrefix + "now"
	dataUploadSchedule = callbackPrefix + "schedule"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier delivers outbound text to chats.
type Notifier struct {
	api sender
}

func NewNotifier(api sender) *Notifier {
	return &Notifier{api: api}
}

func (n *Notifier) Notify(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}

// AskChoice sends text with the upload now / schedule keyboard.
func (n *Notifier) AskChoice(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = choiceKeyboard()
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send choice to chat %d: %w", chatID, err)
	}
	return nil
}

func choiceKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Upload Now", dataUploadNow),
			tgbotapi.NewInlineKeyboardButtonData("Schedule", dataUploadSchedule),
		),
	)
}

func choiceFromData(data string) (session.Choice, bool) {
	name, ok := strings.CutPrefix(data, callbackPrefix)
	if !ok {
		return 0, false
	}
	return session.ParseChoice(name)
}
