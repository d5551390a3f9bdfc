package view

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/telegram-shop-bot/internal/dto"
	"github.com/flicky/telegram-shop-bot/internal/model"
)

func product(id int64, title string, price int64) model.Product {
	return model.Product{ID: id, Title: title, Price: decimal.NewFromInt(price), IsActive: true}
}

func TestMainMenu(t *testing.T) {
	r := MainMenu(10)

	assert.Equal(t, int64(10), r.ChatID)
	require.NotNil(t, r.Keyboard)
	assert.Equal(t, dto.ReplyKeyboard, r.Keyboard.Kind)
	assert.Equal(t, [][]dto.Button{
		{{Text: LabelCatalog}, {Text: LabelCart}},
		{{Text: LabelOrders}, {Text: LabelHelp}},
	}, r.Keyboard.Rows)
}

func TestCatalog(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		r := Catalog(1, nil)
		assert.Equal(t, "Нет товаров.", r.Text)
		assert.Nil(t, r.Keyboard)
	})

	t.Run("buttons", func(t *testing.T) {
		r := Catalog(1, []model.Product{product(3, "Mug", 100), product(9, "Spoon", 5)})

		require.NotNil(t, r.Keyboard)
		require.Len(t, r.Keyboard.Rows, 3)
		assert.Equal(t, dto.Button{Text: "Mug (100.00)", Data: "product:3"}, r.Keyboard.Rows[0][0])
		assert.Equal(t, "product:9", r.Keyboard.Rows[1][0].Data)
		assert.Equal(t, dto.ActionCartOpen, r.Keyboard.Rows[2][0].Data)
	})
}

func TestProductCard(t *testing.T) {
	p := product(3, "Mug <big>", 100)
	p.Description = "Tea & coffee"

	r := ProductCard(1, p, 2)

	assert.Contains(t, r.Text, "Mug &lt;big&gt;")
	assert.Contains(t, r.Text, "Tea &amp; coffee")
	assert.Contains(t, r.Text, "В корзине: 2 шт.")
	require.NotNil(t, r.Keyboard)
	assert.Equal(t, "cart_add:3", r.Keyboard.Rows[0][0].Data)
	assert.Equal(t, "order:3", r.Keyboard.Rows[0][1].Data)

	assert.NotContains(t, ProductCard(1, p, 0).Text, "В корзине")
}

func TestCart(t *testing.T) {
	summary := model.CartSummary{
		Lines: []model.CartLine{
			model.NewCartLine(product(1, "Mug", 100), 2),
			model.NewCartLine(product(2, "Spoon", 50), 1),
		},
		Total: decimal.NewFromInt(250),
	}

	r := Cart(1, summary)

	assert.Contains(t, r.Text, "• Mug × 2 = 200.00")
	assert.Contains(t, r.Text, "• Spoon × 1 = 50.00")
	assert.Contains(t, r.Text, "Итого: <b>250.00</b>")
	require.NotNil(t, r.Keyboard)
	assert.Equal(t, dto.ActionCartCheckout, r.Keyboard.Rows[0][0].Data)
}

func TestReceipt(t *testing.T) {
	order := &model.Order{
		ID:           uuid.New(),
		ContactPhone: "<script>",
		TotalPrice:   decimal.NewFromInt(60),
	}
	lines := []model.CartLine{model.NewCartLine(product(7, "Kettle", 30), 2)}

	r := Receipt(5, order, lines)

	assert.Contains(t, r.Text, order.ID.String())
	assert.Contains(t, r.Text, "60.00")
	assert.Contains(t, r.Text, "&lt;script&gt;")
	assert.Nil(t, r.Keyboard)
}

func TestOrderHistory(t *testing.T) {
	assert.Equal(t, "У вас пока нет заказов.", OrderHistory(1, nil).Text)

	created := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	orders := []model.Order{
		{ID: uuid.New(), Status: model.OrderStatusNew, TotalPrice: decimal.NewFromInt(60), CreatedAt: created},
		{ID: uuid.New(), Status: model.OrderStatusDone, TotalPrice: decimal.NewFromInt(10), CreatedAt: created},
	}

	text := OrderHistory(1, orders).Text

	assert.Contains(t, text, orders[0].ID.String())
	assert.Contains(t, text, "05.03.2024 14:07")
	assert.Contains(t, text, "новый")
	assert.Contains(t, text, "выполнен")
}

func TestOrderNotification(t *testing.T) {
	order := &model.Order{
		ID:           uuid.New(),
		ContactName:  "Anna",
		ContactPhone: "+79001234567",
		TotalPrice:   decimal.NewFromInt(130),
		Meta:         model.OrderMeta{RemoteID: 1001, Username: "anna_k"},
		Items: []model.OrderItem{
			{ProductID: 1, Qty: 1, LineTotal: decimal.NewFromInt(100)},
			{ProductID: 2, Qty: 3, LineTotal: decimal.NewFromInt(30)},
		},
	}

	r := OrderNotification(-100, order, map[int64]string{1: "Mug"})

	assert.Equal(t, int64(-100), r.ChatID)
	assert.Contains(t, r.Text, "Anna (@anna_k)")
	assert.Contains(t, r.Text, "Telegram ID: 1001")
	assert.Contains(t, r.Text, "• Mug × 1 = 100.00")
	assert.Contains(t, r.Text, "• Товар #2 × 3 = 30.00")
	assert.Contains(t, r.Text, "Итого: <b>130.00</b>")
}

func TestOrderNotification_AnonymousCustomer(t *testing.T) {
	order := &model.Order{ID: uuid.New(), TotalPrice: decimal.Zero}

	text := OrderNotification(1, order, nil).Text

	assert.Contains(t, text, "Клиент: —\n")
	assert.NotContains(t, text, "@")
}
