package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flicky/telegram-shop-bot/internal/model"
)

// CartRepository persists the cart column of a user row.
type CartRepository interface {
	Save(ctx context.Context, tx pgx.Tx, user *model.User) error
}

type pgCartRepo struct{}

func NewCartRepository() CartRepository {
	return &pgCartRepo{}
}

func (r *pgCartRepo) Save(ctx context.Context, tx pgx.Tx, user *model.User) error {
	cart := user.Cart
	if cart == nil {
		cart = model.Cart{}
	}
	err := tx.QueryRow(ctx,
		`UPDATE telegram_users SET cart = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		user.ID, cart,
	).Scan(&user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}
