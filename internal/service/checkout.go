package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/telegram-shop-bot/internal/model"
	"github.com/flicky/telegram-shop-bot/internal/repository"
)

var (
	ErrInvalidPhone = errors.New("invalid phone")
	// ErrCheckoutUnavailable means the pending checkout could not be
	// resolved; the user has been reset to the main menu.
	ErrCheckoutUnavailable = errors.New("checkout unavailable")
)

// Receipt is the result of a successful checkout.
type Receipt struct {
	Order *model.Order
	Lines []model.CartLine
}

// CheckoutService assembles orders for users in StateWaitingContact. All
// writes go through the caller's transaction.
type CheckoutService struct {
	orderRepo      repository.OrderRepository
	userRepo       repository.UserRepository
	carts          *CartService
	catalog        *CatalogService
	minPhoneLength int
}

func NewCheckoutService(
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	carts *CartService,
	catalog *CatalogService,
	minPhoneLength int,
) *CheckoutService {
	return &CheckoutService{
		orderRepo:      orderRepo,
		userRepo:       userRepo,
		carts:          carts,
		catalog:        catalog,
		minPhoneLength: minPhoneLength,
	}
}

// PlaceOrder validates phone and turns the cart, or the single-item
// payload when the cart is empty, into an order. On ErrInvalidPhone the
// user is left untouched. On ErrCartUnusable and ErrCheckoutUnavailable the
// user has been reset and those writes must be committed.
func (s *CheckoutService) PlaceOrder(ctx context.Context, tx pgx.Tx, user *model.User, phone string) (*Receipt, error) {
	phone = strings.TrimSpace(phone)
	if utf8.RuneCountInString(phone) < s.minPhoneLength {
		return nil, ErrInvalidPhone
	}

	lines, err := s.resolveLines(ctx, tx, user)
	if err != nil {
		if errors.Is(err, ErrCartUnusable) || errors.Is(err, ErrCheckoutUnavailable) {
			if resetErr := s.resetUser(ctx, tx, user); resetErr != nil {
				return nil, resetErr
			}
		}
		return nil, err
	}

	order := &model.Order{
		UserID:       user.ID,
		Status:       model.OrderStatusNew,
		ContactPhone: phone,
		ContactName:  user.FirstName,
		TotalPrice:   decimal.Zero,
		Meta:         model.OrderMeta{RemoteID: user.RemoteID, Username: user.Username},
	}
	for _, l := range lines {
		order.TotalPrice = order.TotalPrice.Add(l.LineTotal)
		order.Items = append(order.Items, model.OrderItem{
			ProductID: l.Product.ID,
			Qty:       l.Qty,
			UnitPrice: l.Product.Price,
			LineTotal: l.LineTotal,
		})
	}
	if err := s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.carts.Clear(ctx, tx, user); err != nil {
		return nil, err
	}
	user.Reset(model.StateMainMenu)
	if err := s.userRepo.SaveState(ctx, tx, user); err != nil {
		return nil, fmt.Errorf("reset state: %w", err)
	}
	return &Receipt{Order: order, Lines: lines}, nil
}

// resolveLines prefers the cart and falls back to a single-item payload.
func (s *CheckoutService) resolveLines(ctx context.Context, tx pgx.Tx, user *model.User) ([]model.CartLine, error) {
	if !s.carts.Get(user).IsEmpty() {
		summary, err := s.carts.Summarize(ctx, tx, user)
		if err != nil {
			return nil, err
		}
		return summary.Lines, nil
	}

	source, err := model.DecodeCheckout(user.StatePayload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	item, ok := source.(model.ItemCheckout)
	if !ok {
		return nil, fmt.Errorf("%w: cart is empty", ErrCheckoutUnavailable)
	}
	p, err := s.catalog.FindActiveFresh(ctx, item.ProductID)
	if errors.Is(err, ErrProductNotFound) {
		return nil, fmt.Errorf("%w: product %d", ErrCheckoutUnavailable, item.ProductID)
	}
	if err != nil {
		return nil, err
	}
	return []model.CartLine{model.NewCartLine(*p, item.Qty)}, nil
}

func (s *CheckoutService) resetUser(ctx context.Context, tx pgx.Tx, user *model.User) error {
	user.Reset(model.StateMainMenu)
	if err := s.userRepo.SaveState(ctx, tx, user); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	return nil
}
