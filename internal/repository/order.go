package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/telegram-shop-bot/internal/model"
)

type OrderRepository interface {
	// Create inserts the order and all of its items inside tx.
	Create(ctx context.Context, tx pgx.Tx, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.Order, error)
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

func (r *pgOrderRepo) Create(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	if len(order.Items) == 0 {
		return errors.New("insert order: no items")
	}
	order.ID = uuid.New()
	err := tx.QueryRow(ctx,
		`INSERT INTO orders (id, telegram_user_id, status, contact_phone, contact_name, total_price, meta, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING created_at, updated_at`,
		order.ID, order.UserID, string(order.Status), order.ContactPhone, order.ContactName, order.TotalPrice, order.Meta,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (id, order_id, product_id, qty, price, total, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
			order.Items[i].ID, order.Items[i].OrderID, order.Items[i].ProductID,
			order.Items[i].Qty, order.Items[i].UnitPrice, order.Items[i].LineTotal,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *pgOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order := &model.Order{}
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT id, telegram_user_id, status, COALESCE(contact_phone, ''), COALESCE(contact_name, ''),
		        total_price, COALESCE(meta, '{}'), created_at, updated_at
		 FROM orders WHERE id = $1`, id,
	).Scan(&order.ID, &order.UserID, &status, &order.ContactPhone, &order.ContactName,
		&order.TotalPrice, &order.Meta, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	order.Status = model.OrderStatus(status)

	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, qty, price, total FROM order_items WHERE order_id = $1 ORDER BY created_at, product_id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Qty, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.OrderID = order.ID
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	return order, nil
}

func (r *pgOrderRepo) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, status, total_price, created_at FROM orders
		 WHERE telegram_user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var (
			o      model.Order
			status string
		)
		o.UserID = userID
		if err := rows.Scan(&o.ID, &status, &o.TotalPrice, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
