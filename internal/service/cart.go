package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/flicky/telegram-shop-bot/internal/model"
	"github.com/flicky/telegram-shop-bot/internal/repository"
)

var (
	ErrCartEmpty = errors.New("cart is empty")
	// ErrCartUnusable means the cart only referenced products that are gone;
	// the cart has been cleared.
	ErrCartUnusable = errors.New("cart has no available products")
)

// CartService keeps the cart on the locked user row of the current event.
type CartService struct {
	cartRepo repository.CartRepository
	catalog  *CatalogService
}

func NewCartService(cartRepo repository.CartRepository, catalog *CatalogService) *CartService {
	return &CartService{cartRepo: cartRepo, catalog: catalog}
}

func (s *CartService) Get(user *model.User) model.Cart {
	if user.Cart == nil {
		user.Cart = model.Cart{}
	}
	return user.Cart
}

// Add increments productID by one and returns the new quantity.
func (s *CartService) Add(ctx context.Context, tx pgx.Tx, user *model.User, productID int64) (int, error) {
	qty := s.Get(user).Add(productID)
	if err := s.cartRepo.Save(ctx, tx, user); err != nil {
		return 0, fmt.Errorf("add to cart: %w", err)
	}
	return qty, nil
}

func (s *CartService) Clear(ctx context.Context, tx pgx.Tx, user *model.User) error {
	user.Cart = model.Cart{}
	if err := s.cartRepo.Save(ctx, tx, user); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Summarize joins the cart with currently active products. Entries whose
// product vanished are skipped; if none are left the cart is cleared and
// ErrCartUnusable is returned.
func (s *CartService) Summarize(ctx context.Context, tx pgx.Tx, user *model.User) (*model.CartSummary, error) {
	entries := s.Get(user).Entries()
	if len(entries) == 0 {
		return nil, ErrCartEmpty
	}

	summary := &model.CartSummary{Total: decimal.Zero}
	for _, e := range entries {
		p, err := s.catalog.FindActiveFresh(ctx, e.ProductID)
		if errors.Is(err, ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("summarize cart: %w", err)
		}
		line := model.NewCartLine(*p, e.Qty)
		summary.Lines = append(summary.Lines, line)
		summary.Total = summary.Total.Add(line.LineTotal)
	}

	if len(summary.Lines) == 0 {
		if err := s.Clear(ctx, tx, user); err != nil {
			return nil, err
		}
		return nil, ErrCartUnusable
	}
	return summary, nil
}
