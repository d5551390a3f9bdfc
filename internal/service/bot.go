package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/flicky/telegram-shop-bot/internal/dto"
	"github.com/flicky/telegram-shop-bot/internal/metrics"
	"github.com/flicky/telegram-shop-bot/internal/model"
	"github.com/flicky/telegram-shop-bot/internal/repository"
	"github.com/flicky/telegram-shop-bot/internal/view"
)

// Transport sends replies back to the messaging platform.
type Transport interface {
	SendMessage(ctx context.Context, reply dto.Reply) error
	AnswerCallback(ctx context.Context, answer dto.CallbackAnswer) error
}

// OrderEventPublisher hands committed orders to the notification pipeline.
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, evt model.OrderCreatedEvent) error
}

type BotDeps struct {
	Transactor   repository.Transactor
	UserRepo     repository.UserRepository
	OrderRepo    repository.OrderRepository
	Catalog      *CatalogService
	Carts        *CartService
	Checkout     *CheckoutService
	Transport    Transport
	Events       OrderEventPublisher
	Metrics      *metrics.Metrics
	Log          *slog.Logger
	HistoryLimit int
}

// BotService is the conversation state machine. Each update runs in its own
// transaction that starts by locking the user row; replies and events are
// emitted only after commit.
type BotService struct {
	BotDeps
	commands map[string]commandFunc
	actions  map[string]action
}

type commandFunc func(ctx context.Context, t *turn) error

type action struct {
	needsID bool
	run     func(ctx context.Context, t *turn, id int64) error
}

// turn collects the effects of one update.
type turn struct {
	tx      pgx.Tx
	user    *model.User
	chatID  int64
	replies []dto.Reply
	answer  *dto.CallbackAnswer
	order   *model.Order
}

func (t *turn) reply(r dto.Reply) {
	t.replies = append(t.replies, r)
}

func (t *turn) ack(text string, alert bool) {
	t.answer = &dto.CallbackAnswer{Text: text, Alert: alert}
}

func NewBotService(deps BotDeps) *BotService {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	s := &BotService{BotDeps: deps}
	s.commands = map[string]commandFunc{
		view.LabelCatalog: s.openCatalog,
		"/catalog":        s.openCatalog,
		view.LabelCart:    s.openCart,
		"/cart":           s.openCart,
		view.LabelOrders:  s.openOrders,
		"/orders":         s.openOrders,
		view.LabelHelp:    s.help,
		"/help":           s.help,
	}
	s.actions = map[string]action{
		dto.ActionCatalog:      {run: func(ctx context.Context, t *turn, _ int64) error { return s.openCatalog(ctx, t) }},
		dto.ActionCartOpen:     {run: func(ctx context.Context, t *turn, _ int64) error { return s.openCart(ctx, t) }},
		dto.ActionCartClear:    {run: s.clearCart},
		dto.ActionCartCheckout: {run: s.beginCartCheckout},
		dto.ActionProduct:      {needsID: true, run: s.showProduct},
		dto.ActionCartAdd:      {needsID: true, run: s.addToCart},
		dto.ActionOrderNow:     {needsID: true, run: s.beginItemCheckout},
	}
	return s
}

// HandleUpdate processes one update. Only persistence failures are returned.
func (s *BotService) HandleUpdate(ctx context.Context, upd model.Update) error {
	if s.Metrics != nil {
		s.Metrics.Updates.WithLabelValues(upd.Kind()).Inc()
	}
	switch {
	case upd.Callback != nil:
		return s.handleCallback(ctx, upd.Callback)
	case upd.Message != nil:
		return s.handleMessage(ctx, upd.Message)
	}
	return nil
}

func (s *BotService) handleMessage(ctx context.Context, m *model.Message) error {
	t, err := s.run(ctx, m.From, m.ChatID, func(ctx context.Context, t *turn) error {
		text := strings.TrimSpace(m.Text)
		if t.user.WaitingContact() {
			return s.acceptContact(ctx, t, text)
		}
		if strings.HasPrefix(text, view.CommandStart) {
			return s.start(ctx, t)
		}
		if cmd, ok := s.commands[text]; ok {
			return cmd(ctx, t)
		}
		t.reply(view.NotUnderstood(t.chatID))
		return nil
	})
	if err != nil {
		s.fail(ctx, m.ChatID, m.From.RemoteID, err)
		return err
	}
	s.flush(ctx, t)
	return nil
}

func (s *BotService) handleCallback(ctx context.Context, cb *model.Callback) error {
	answer := dto.CallbackAnswer{CallbackID: cb.ID}
	if cb.From == nil || cb.ChatID == 0 {
		s.answer(ctx, answer)
		return nil
	}

	t, err := s.run(ctx, *cb.From, cb.ChatID, func(ctx context.Context, t *turn) error {
		act, ok := dto.ParseAction(cb.Data)
		if !ok {
			return nil
		}
		handler, ok := s.actions[act.Name]
		if !ok || handler.needsID != act.HasID {
			return nil
		}
		return handler.run(ctx, t, act.ID)
	})
	if err != nil {
		s.answer(ctx, answer)
		s.fail(ctx, cb.ChatID, cb.From.RemoteID, err)
		return err
	}

	if t.answer != nil {
		answer.Text, answer.Alert = t.answer.Text, t.answer.Alert
	}
	s.answer(ctx, answer)
	s.flush(ctx, t)
	return nil
}

func (s *BotService) run(ctx context.Context, who model.Identity, chatID int64, fn func(context.Context, *turn) error) (*turn, error) {
	tx, err := s.Transactor.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	user, err := s.UserRepo.Upsert(ctx, tx, who)
	if err != nil {
		return nil, err
	}
	t := &turn{tx: tx, user: user, chatID: chatID}
	if err := fn(ctx, t); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return t, nil
}

// flush sends replies and publishes events of a committed turn.
func (s *BotService) flush(ctx context.Context, t *turn) {
	for _, r := range t.replies {
		if err := s.Transport.SendMessage(ctx, r); err != nil {
			s.Log.Error("send reply", "error", err, "chat_id", r.ChatID)
		}
	}
	if t.order == nil {
		return
	}

	if s.Metrics != nil {
		s.Metrics.OrdersCreated.Inc()
	}
	if s.Events == nil {
		return
	}
	evt := model.OrderCreatedEvent{OrderID: t.order.ID, UserID: t.order.UserID}
	if err := s.Events.PublishOrderCreated(ctx, evt); err != nil {
		s.Log.Error("publish order created", "error", err, "order_id", t.order.ID)
	}
}

func (s *BotService) answer(ctx context.Context, a dto.CallbackAnswer) {
	if err := s.Transport.AnswerCallback(ctx, a); err != nil {
		s.Log.Error("answer callback", "error", err, "callback_id", a.CallbackID)
	}
}

func (s *BotService) fail(ctx context.Context, chatID, remoteID int64, err error) {
	s.Log.Error("handle update", "error", err, "remote_id", remoteID)
	if sendErr := s.Transport.SendMessage(ctx, view.Failure(chatID)); sendErr != nil {
		s.Log.Error("send failure reply", "error", sendErr, "chat_id", chatID)
	}
}

// --- Text commands ---

func (s *BotService) start(ctx context.Context, t *turn) error {
	if err := s.setState(ctx, t, model.StateMainMenu); err != nil {
		return err
	}
	t.reply(view.MainMenu(t.chatID))
	return nil
}

func (s *BotService) help(_ context.Context, t *turn) error {
	t.reply(view.Help(t.chatID))
	return nil
}

func (s *BotService) openCatalog(ctx context.Context, t *turn) error {
	products, err := s.Catalog.ListActive(ctx)
	if err != nil {
		return err
	}
	if err := s.setState(ctx, t, model.StateBrowse); err != nil {
		return err
	}
	t.reply(view.Catalog(t.chatID, products))
	return nil
}

func (s *BotService) openCart(ctx context.Context, t *turn) error {
	summary, err := s.Carts.Summarize(ctx, t.tx, t.user)
	switch {
	case errors.Is(err, ErrCartEmpty):
		t.reply(view.CartEmpty(t.chatID))
	case errors.Is(err, ErrCartUnusable):
		t.reply(view.CartUnusable(t.chatID))
	case err != nil:
		return err
	default:
		t.reply(view.Cart(t.chatID, *summary))
	}
	return nil
}

func (s *BotService) openOrders(ctx context.Context, t *turn) error {
	orders, err := s.OrderRepo.ListRecentByUser(ctx, t.user.ID, s.HistoryLimit)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	t.reply(view.OrderHistory(t.chatID, orders))
	return nil
}

// --- Callback actions ---

func (s *BotService) clearCart(ctx context.Context, t *turn, _ int64) error {
	if err := s.Carts.Clear(ctx, t.tx, t.user); err != nil {
		return err
	}
	t.reply(view.CartCleared(t.chatID))
	t.ack("Корзина очищена", false)
	return nil
}

func (s *BotService) beginCartCheckout(ctx context.Context, t *turn, _ int64) error {
	summary, err := s.Carts.Summarize(ctx, t.tx, t.user)
	switch {
	case errors.Is(err, ErrCartEmpty):
		t.ack("Корзина пуста", true)
		return nil
	case errors.Is(err, ErrCartUnusable):
		t.reply(view.CartUnusable(t.chatID))
		t.ack("Товары недоступны", true)
		return nil
	case err != nil:
		return err
	}

	t.user.AwaitContact(model.CartCheckout{})
	if err := s.UserRepo.SaveState(ctx, t.tx, t.user); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	t.reply(view.CheckoutPrompt(t.chatID, *summary))
	t.ack("Введите телефон для оформления заказа", false)
	return nil
}

func (s *BotService) showProduct(ctx context.Context, t *turn, id int64) error {
	p, ok, err := s.findProduct(ctx, t, id)
	if !ok {
		return err
	}
	t.reply(view.ProductCard(t.chatID, *p, s.Carts.Get(t.user)[p.ID]))
	t.ack("Открываю", false)
	return nil
}

func (s *BotService) addToCart(ctx context.Context, t *turn, id int64) error {
	p, ok, err := s.findProduct(ctx, t, id)
	if !ok {
		return err
	}
	qty, err := s.Carts.Add(ctx, t.tx, t.user, p.ID)
	if err != nil {
		return err
	}
	t.ack(fmt.Sprintf("Добавлено в корзину: %s (%d шт.)", p.Title, qty), false)
	return nil
}

func (s *BotService) beginItemCheckout(ctx context.Context, t *turn, id int64) error {
	p, ok, err := s.findProduct(ctx, t, id)
	if !ok {
		return err
	}
	t.user.AwaitContact(model.ItemCheckout{ProductID: p.ID, Qty: 1})
	if err := s.UserRepo.SaveState(ctx, t.tx, t.user); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	t.reply(view.ItemCheckoutPrompt(t.chatID, *p))
	t.ack("Введите телефон для оформления заказа", false)
	return nil
}

// findProduct answers with a "not found" alert when the product is missing
// or inactive; ok is false in that case and on error.
func (s *BotService) findProduct(ctx context.Context, t *turn, id int64) (*model.Product, bool, error) {
	p, err := s.Catalog.FindActive(ctx, id)
	if errors.Is(err, ErrProductNotFound) {
		t.ack("Товар не найден", true)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// --- Contact input ---

func (s *BotService) acceptContact(ctx context.Context, t *turn, text string) error {
	receipt, err := s.Checkout.PlaceOrder(ctx, t.tx, t.user, text)
	switch {
	case errors.Is(err, ErrInvalidPhone):
		t.reply(view.InvalidPhone(t.chatID))
	case errors.Is(err, ErrCartUnusable):
		t.reply(view.CartUnusable(t.chatID))
	case errors.Is(err, ErrCheckoutUnavailable):
		t.reply(view.CheckoutFailed(t.chatID))
	case err != nil:
		return err
	default:
		t.order = receipt.Order
		t.reply(view.Receipt(t.chatID, receipt.Order, receipt.Lines))
	}
	return nil
}

func (s *BotService) setState(ctx context.Context, t *turn, state model.State) error {
	t.user.Reset(state)
	if err := s.UserRepo.SaveState(ctx, t.tx, t.user); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
