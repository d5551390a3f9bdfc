// Package view renders bot replies. Every function is pure; texts use the
// transport's HTML parse mode, so user-controlled strings are escaped.
package view

import (
	"fmt"
	"html"
	"strings"

	"github.com/flicky/telegram-shop-bot/internal/dto"
	"github.com/flicky/telegram-shop-bot/internal/model"
)

// Text commands. Reply keyboard buttons send these labels verbatim.
const (
	CommandStart   = "/start"
	LabelCatalog   = "🛍 Каталог"
	LabelCart      = "🛒 Корзина"
	LabelOrders    = "📦 Мои заказы"
	LabelHelp      = "ℹ Помощь"
	dateTimeLayout = "02.01.2006 15:04"
)

func MainMenu(chatID int64) dto.Reply {
	return dto.Reply{
		ChatID: chatID,
		Text:   "Привет! Выбери действие:",
		Keyboard: &dto.Keyboard{
			Kind: dto.ReplyKeyboard,
			Rows: [][]dto.Button{
				{{Text: LabelCatalog}, {Text: LabelCart}},
				{{Text: LabelOrders}, {Text: LabelHelp}},
			},
		},
	}
}

func Help(chatID int64) dto.Reply {
	return text(chatID, "Доступные команды:\n"+
		CommandStart+" — меню\n"+
		LabelCatalog+" — список товаров\n"+
		LabelCart+" — ваша корзина\n"+
		LabelOrders+" — история заказов")
}

func NotUnderstood(chatID int64) dto.Reply {
	return text(chatID, "Не понял. Используй "+CommandStart)
}

func Failure(chatID int64) dto.Reply {
	return text(chatID, "Что-то пошло не так. Попробуйте ещё раз чуть позже.")
}

func Catalog(chatID int64, products []model.Product) dto.Reply {
	if len(products) == 0 {
		return text(chatID, "Нет товаров.")
	}
	rows := make([][]dto.Button, 0, len(products)+1)
	for _, p := range products {
		rows = append(rows, []dto.Button{{
			Text: fmt.Sprintf("%s (%s)", p.Title, price(p)),
			Data: dto.ActionData(dto.ActionProduct, p.ID),
		}})
	}
	rows = append(rows, []dto.Button{{Text: LabelCart, Data: dto.ActionCartOpen}})
	return dto.Reply{ChatID: chatID, Text: "Товары:", Keyboard: inline(rows...)}
}

func ProductCard(chatID int64, p model.Product, inCart int) dto.Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", esc(p.Title))
	if p.Description != "" {
		b.WriteString(esc(p.Description))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Цена: <b>%s</b>", price(p))
	if inCart > 0 {
		fmt.Fprintf(&b, "\nВ корзине: %d шт.", inCart)
	}

	return dto.Reply{ChatID: chatID, Text: b.String(), Keyboard: inline(
		[]dto.Button{
			{Text: "➕ В корзину", Data: dto.ActionData(dto.ActionCartAdd, p.ID)},
			{Text: "🛒 Заказать", Data: dto.ActionData(dto.ActionOrderNow, p.ID)},
		},
		[]dto.Button{
			{Text: LabelCart, Data: dto.ActionCartOpen},
			{Text: "⬅ Каталог", Data: dto.ActionCatalog},
		},
	)}
}

func Cart(chatID int64, summary model.CartSummary) dto.Reply {
	return dto.Reply{
		ChatID: chatID,
		Text:   "<b>Ваша корзина</b>\n\n" + lines(summary.Lines) + "\nИтого: <b>" + summary.Total.StringFixed(2) + "</b>",
		Keyboard: inline(
			[]dto.Button{{Text: "✅ Оформить заказ", Data: dto.ActionCartCheckout}},
			[]dto.Button{
				{Text: "🗑 Очистить", Data: dto.ActionCartClear},
				{Text: "⬅ Каталог", Data: dto.ActionCatalog},
			},
		),
	}
}

func CartEmpty(chatID int64) dto.Reply {
	return dto.Reply{
		ChatID:   chatID,
		Text:     "Корзина пуста.",
		Keyboard: inline([]dto.Button{{Text: LabelCatalog, Data: dto.ActionCatalog}}),
	}
}

func CartUnusable(chatID int64) dto.Reply {
	return dto.Reply{
		ChatID:   chatID,
		Text:     "Товары из вашей корзины больше недоступны, корзина очищена.",
		Keyboard: inline([]dto.Button{{Text: LabelCatalog, Data: dto.ActionCatalog}}),
	}
}

func CartCleared(chatID int64) dto.Reply {
	return text(chatID, "Корзина очищена.")
}

func CheckoutPrompt(chatID int64, summary model.CartSummary) dto.Reply {
	return text(chatID, "Оформляем заказ:\n\n"+lines(summary.Lines)+
		"\nИтого: <b>"+summary.Total.StringFixed(2)+"</b>\n\n"+phoneRequest)
}

func ItemCheckoutPrompt(chatID int64, p model.Product) dto.Reply {
	return text(chatID, fmt.Sprintf("Вы хотите заказать: <b>%s</b> за <b>%s</b>.\n\n%s",
		esc(p.Title), price(p), phoneRequest))
}

const phoneRequest = "Отправьте, пожалуйста, ваш номер телефона в ответном сообщении."

func InvalidPhone(chatID int64) dto.Reply {
	return text(chatID, "Похоже, это не похоже на номер телефона 😅\nПожалуйста, отправьте корректный номер.")
}

func CheckoutFailed(chatID int64) dto.Reply {
	return text(chatID, "Произошла ошибка при оформлении заказа. Попробуйте снова через каталог.")
}

func Receipt(chatID int64, order *model.Order, items []model.CartLine) dto.Reply {
	return text(chatID, fmt.Sprintf("Спасибо! 🙌\nВаш заказ №%s принят.\n\n%s\nСумма: <b>%s</b>\nТелефон: <b>%s</b>\n\n"+
		"Мы свяжемся с вами для уточнения деталей.",
		order.ID, lines(items), order.TotalPrice.StringFixed(2), esc(order.ContactPhone)))
}

func OrderHistory(chatID int64, orders []model.Order) dto.Reply {
	if len(orders) == 0 {
		return text(chatID, "У вас пока нет заказов.")
	}
	var b strings.Builder
	b.WriteString("<b>Ваши заказы</b>\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "\n№%s — %s\n%s, сумма <b>%s</b>\n",
			o.ID, o.CreatedAt.Format(dateTimeLayout), statusLabel(o.Status), o.TotalPrice.StringFixed(2))
	}
	return text(chatID, b.String())
}

// OrderNotification is the operator summary. titles maps product id to
// title and may miss entries for products that no longer exist.
func OrderNotification(chatID int64, order *model.Order, titles map[int64]string) dto.Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "🆕 <b>Новый заказ №%s</b>\n\n", order.ID)
	customer := order.ContactName
	if customer == "" {
		customer = "—"
	}
	fmt.Fprintf(&b, "Клиент: %s", esc(customer))
	if order.Meta.Username != "" {
		fmt.Fprintf(&b, " (@%s)", esc(order.Meta.Username))
	}
	fmt.Fprintf(&b, "\nTelegram ID: %d\nТелефон: <b>%s</b>\n\n", order.Meta.RemoteID, esc(order.ContactPhone))
	for _, item := range order.Items {
		title, ok := titles[item.ProductID]
		if !ok {
			title = fmt.Sprintf("Товар #%d", item.ProductID)
		}
		fmt.Fprintf(&b, "• %s × %d = %s\n", esc(title), item.Qty, item.LineTotal.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nИтого: <b>%s</b>", order.TotalPrice.StringFixed(2))
	return text(chatID, b.String())
}

func lines(items []model.CartLine) string {
	var b strings.Builder
	for _, l := range items {
		fmt.Fprintf(&b, "• %s × %d = %s\n", esc(l.Product.Title), l.Qty, l.LineTotal.StringFixed(2))
	}
	return b.String()
}

func statusLabel(s model.OrderStatus) string {
	switch s {
	case model.OrderStatusNew:
		return "новый"
	case model.OrderStatusConfirmed:
		return "подтверждён"
	case model.OrderStatusCanceled:
		return "отменён"
	case model.OrderStatusDone:
		return "выполнен"
	default:
		return string(s)
	}
}

func text(chatID int64, s string) dto.Reply {
	return dto.Reply{ChatID: chatID, Text: s}
}

func inline(rows ...[]dto.Button) *dto.Keyboard {
	return &dto.Keyboard{Kind: dto.InlineKeyboard, Rows: rows}
}

func price(p model.Product) string {
	return p.Price.StringFixed(2)
}

func esc(s string) string {
	return html.EscapeString(s)
}
