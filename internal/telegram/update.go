package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flicky/telegram-shop-bot/internal/model"
)

// ToUpdate converts a decoded webhook payload into the bot's update.
// Messages without a sender or chat are dropped.
func ToUpdate(u tgbotapi.Update) model.Update {
	upd := model.Update{ID: int64(u.UpdateID)}

	if m := u.Message; m != nil && m.From != nil && m.Chat != nil {
		upd.Message = &model.Message{
			From:   identity(m.From),
			ChatID: m.Chat.ID,
			Text:   m.Text,
		}
	}

	if q := u.CallbackQuery; q != nil {
		cb := &model.Callback{ID: q.ID, Data: q.Data}
		if q.From != nil {
			from := identity(q.From)
			cb.From = &from
		}
		if q.Message != nil && q.Message.Chat != nil {
			cb.ChatID = q.Message.Chat.ID
		}
		upd.Callback = cb
	}
	return upd
}

func identity(u *tgbotapi.User) model.Identity {
	return model.Identity{
		RemoteID:  u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
