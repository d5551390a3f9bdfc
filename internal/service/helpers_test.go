package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/flicky/telegram-shop-bot/internal/dto"
	"github.com/flicky/telegram-shop-bot/internal/metrics"
	"github.com/flicky/telegram-shop-bot/internal/model"
)

// memStore is an in-memory stand-in for PostgreSQL. Writes are staged on
// the fakeTx and applied on Commit; Upsert holds a per-user lock until the
// transaction ends, like the row lock taken by ON CONFLICT DO UPDATE.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]*model.User
	orders   []*model.Order
	products map[int64]*model.Product
	locks    map[int64]*sync.Mutex

	failOrderCreate error
	failSaveState   error
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[int64]*model.User),
		products: make(map[int64]*model.Product),
		locks:    make(map[int64]*sync.Mutex),
	}
}

func (s *memStore) lockFor(remoteID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[remoteID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[remoteID] = l
	}
	return l
}

func (s *memStore) addProduct(id int64, title string, price int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = &model.Product{ID: id, Title: title, Price: decimal.NewFromInt(price), IsActive: active}
}

func (s *memStore) setUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.users[u.RemoteID] = cloneUser(u)
}

func (s *memStore) user(remoteID int64) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[remoteID]
	if !ok {
		return nil
	}
	return cloneUser(u)
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) lastOrder() *model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.orders) == 0 {
		return nil
	}
	return s.orders[len(s.orders)-1]
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Cart = make(model.Cart, len(u.Cart))
	for k, v := range u.Cart {
		c.Cart[k] = v
	}
	if u.StatePayload != nil {
		c.StatePayload = append(json.RawMessage(nil), u.StatePayload...)
	}
	return &c
}

type fakeTx struct {
	pgx.Tx
	store   *memStore
	users   map[int64]*model.User
	orders  []*model.Order
	unlocks []func()
	done    bool
}

func (tx *fakeTx) Commit(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.store.mu.Lock()
	for id, u := range tx.users {
		tx.store.users[id] = u
	}
	tx.store.orders = append(tx.store.orders, tx.orders...)
	tx.store.mu.Unlock()
	tx.finish()
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.finish()
	return nil
}

func (tx *fakeTx) finish() {
	tx.done = true
	for _, unlock := range tx.unlocks {
		unlock()
	}
	tx.unlocks = nil
}

func asFake(tx pgx.Tx) *fakeTx {
	return tx.(*fakeTx)
}

type fakeTransactor struct{ store *memStore }

func (f *fakeTransactor) BeginTx(context.Context) (pgx.Tx, error) {
	return &fakeTx{store: f.store, users: make(map[int64]*model.User)}, nil
}

type mockUserRepo struct{ store *memStore }

func (m *mockUserRepo) Upsert(_ context.Context, tx pgx.Tx, id model.Identity) (*model.User, error) {
	ftx := asFake(tx)
	lock := m.store.lockFor(id.RemoteID)
	lock.Lock()
	ftx.unlocks = append(ftx.unlocks, lock.Unlock)

	m.store.mu.Lock()
	committed, ok := m.store.users[id.RemoteID]
	m.store.mu.Unlock()

	var staged *model.User
	if ok {
		staged = cloneUser(committed)
	} else {
		staged = &model.User{
			ID: uuid.New(), RemoteID: id.RemoteID, State: model.StateMainMenu,
			Cart: model.Cart{}, CreatedAt: time.Now(),
		}
	}
	staged.Username, staged.FirstName, staged.LastName = id.Username, id.FirstName, id.LastName
	ftx.users[id.RemoteID] = staged
	return cloneUser(staged), nil
}

func (m *mockUserRepo) SaveState(_ context.Context, tx pgx.Tx, user *model.User) error {
	if m.store.failSaveState != nil {
		return m.store.failSaveState
	}
	staged := asFake(tx).users[user.RemoteID]
	staged.State = user.State
	staged.StatePayload = append(json.RawMessage(nil), user.StatePayload...)
	if user.StatePayload == nil {
		staged.StatePayload = nil
	}
	return nil
}

type mockCartRepo struct{ store *memStore }

func (m *mockCartRepo) Save(_ context.Context, tx pgx.Tx, user *model.User) error {
	staged := asFake(tx).users[user.RemoteID]
	staged.Cart = cloneUser(user).Cart
	return nil
}

type mockProductRepo struct{ store *memStore }

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*model.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	p, ok := m.store.products[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (m *mockProductRepo) ListActive(_ context.Context) ([]model.Product, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []model.Product
	for _, p := range m.store.products {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockOrderRepo struct{ store *memStore }

func (m *mockOrderRepo) Create(_ context.Context, tx pgx.Tx, order *model.Order) error {
	if m.store.failOrderCreate != nil {
		return m.store.failOrderCreate
	}
	if len(order.Items) == 0 {
		return errors.New("insert order: no items")
	}
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	ftx := asFake(tx)
	ftx.orders = append(ftx.orders, order)
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Order, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	for _, o := range m.store.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, nil
}

func (m *mockOrderRepo) ListRecentByUser(_ context.Context, userID uuid.UUID, limit int) ([]model.Order, error) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	var out []model.Order
	for i := len(m.store.orders) - 1; i >= 0 && len(out) < limit; i-- {
		if m.store.orders[i].UserID == userID {
			out = append(out, *m.store.orders[i])
		}
	}
	return out, nil
}

type fakeTransport struct {
	mu      sync.Mutex
	replies []dto.Reply
	answers []dto.CallbackAnswer
}

func (f *fakeTransport) SendMessage(_ context.Context, r dto.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, r)
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, a dto.CallbackAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, a)
	return nil
}

func (f *fakeTransport) lastReply() dto.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return dto.Reply{}
	}
	return f.replies[len(f.replies)-1]
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = nil
	f.answers = nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.OrderCreatedEvent
	err    error
}

func (f *fakePublisher) PublishOrderCreated(_ context.Context, evt model.OrderCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

type botFixture struct {
	bot       *BotService
	store     *memStore
	transport *fakeTransport
	events    *fakePublisher
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	return newBotFixtureWithCache(t, nil, 0)
}

// newCachedBotFixture backs the catalog with an in-process redis.
func newCachedBotFixture(t *testing.T) *botFixture {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return newBotFixtureWithCache(t, client, 30*time.Second)
}

func newBotFixtureWithCache(t *testing.T, redisClient *redis.Client, ttl time.Duration) *botFixture {
	t.Helper()
	store := newMemStore()
	userRepo := &mockUserRepo{store: store}
	orderRepo := &mockOrderRepo{store: store}
	catalog := NewCatalogService(&mockProductRepo{store: store}, redisClient, ttl)
	carts := NewCartService(&mockCartRepo{store: store}, catalog)
	transport := &fakeTransport{}
	events := &fakePublisher{}

	bot := NewBotService(BotDeps{
		Transactor:   &fakeTransactor{store: store},
		UserRepo:     userRepo,
		OrderRepo:    orderRepo,
		Catalog:      catalog,
		Carts:        carts,
		Checkout:     NewCheckoutService(orderRepo, userRepo, carts, catalog, 5),
		Transport:    transport,
		Events:       events,
		Metrics:      metrics.New(prometheus.NewRegistry()),
		Log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		HistoryLimit: 5,
	})
	return &botFixture{bot: bot, store: store, transport: transport, events: events}
}

func identityOf(remoteID int64) model.Identity {
	return model.Identity{RemoteID: remoteID, Username: "buyer", FirstName: "Anna"}
}

func (f *botFixture) text(t *testing.T, remoteID int64, text string) {
	t.Helper()
	err := f.bot.HandleUpdate(context.Background(), model.Update{Message: &model.Message{
		From: identityOf(remoteID), ChatID: remoteID, Text: text,
	}})
	require.NoError(t, err, "handle text %q", text)
}

func (f *botFixture) press(t *testing.T, remoteID int64, data string) {
	t.Helper()
	from := identityOf(remoteID)
	err := f.bot.HandleUpdate(context.Background(), model.Update{Callback: &model.Callback{
		ID: "cb-" + data, From: &from, ChatID: remoteID, Data: data,
	}})
	require.NoError(t, err, "handle callback %q", data)
}
