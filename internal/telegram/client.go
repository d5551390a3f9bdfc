package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flicky/telegram-shop-bot/internal/dto"
)

// Client sends bot replies through the Telegram Bot API.
type Client struct {
	bot *tgbotapi.BotAPI
	log *slog.Logger
}

func NewClient(token string, log *slog.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	log.Info("telegram bot authorized", "username", bot.Self.UserName)
	return &Client{bot: bot, log: log}, nil
}

func (c *Client) SendMessage(_ context.Context, reply dto.Reply) error {
	if _, err := c.bot.Send(NewMessage(reply)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *Client) AnswerCallback(_ context.Context, answer dto.CallbackAnswer) error {
	if _, err := c.bot.Request(NewCallbackAnswer(answer)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// NewMessage builds an HTML message with the reply's keyboard, if any.
func NewMessage(reply dto.Reply) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(reply.ChatID, reply.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	if reply.Keyboard != nil {
		msg.ReplyMarkup = markup(*reply.Keyboard)
	}
	return msg
}

func NewCallbackAnswer(answer dto.CallbackAnswer) tgbotapi.CallbackConfig {
	cb := tgbotapi.NewCallback(answer.CallbackID, answer.Text)
	cb.ShowAlert = answer.Alert
	return cb
}

func markup(kb dto.Keyboard) any {
	if kb.Kind == dto.ReplyKeyboard {
		rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
		for _, row := range kb.Rows {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Text))
			}
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
		}
		m := tgbotapi.NewReplyKeyboard(rows...)
		m.OneTimeKeyboard = false
		return m
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
