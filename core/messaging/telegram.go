package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/orderbot/core/collab"
	"github.com/m3rciful/orderbot/core/telegram/keyboard"
)

const serviceTelegram = "telegram"

// TelegramAPI is the subset of *tele.Bot used for sending.
type TelegramAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram sends messages to Telegram chats; customer ids are chat ids.
type Telegram struct {
	bot TelegramAPI
}

// NewTelegram wraps a bot for sending.
func NewTelegram(bot TelegramAPI) *Telegram {
	return &Telegram{bot: bot}
}

// Send delivers msg with Markdown formatting and quick replies as a reply keyboard.
func (t *Telegram) Send(_ context.Context, customerID string, msg Message) error {
	if t.bot == nil {
		return collab.New(serviceTelegram, "send", collab.KindNotConfigured, errors.New("bot not started"))
	}
	chatID, err := strconv.ParseInt(customerID, 10, 64)
	if err != nil {
		return collab.New(serviceTelegram, "send", collab.KindNotFound, fmt.Errorf("invalid chat id %q", customerID))
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	if len(msg.QuickReplies) > 0 {
		opts.ReplyMarkup = keyboard.ReplyButtons(msg.QuickReplies)
	} else {
		opts.ReplyMarkup = keyboard.RemoveKeyboard()
	}
	if _, err := t.bot.Send(tele.ChatID(chatID), FormatText(msg.Text), opts); err != nil {
		return classifyTelegramError("send", err)
	}
	return nil
}

func classifyTelegramError(op string, err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return collab.New(serviceTelegram, op, collab.KindTransient, err)
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return collab.FromStatus(serviceTelegram, op, 401, err)
		case 403:
			// Blocked by the user or kicked from the chat.
			return collab.New(serviceTelegram, op, collab.KindNotFound, err)
		}
		return collab.FromStatus(serviceTelegram, op, apiErr.Code, err)
	}
	return collab.New(serviceTelegram, op, collab.KindTransient, err)
}
