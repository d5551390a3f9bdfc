package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flicky/telegram-shop-bot/internal/model"
)

type UserRepository interface {
	// Upsert creates or refreshes the user identified by RemoteID and locks
	// its row until tx ends.
	Upsert(ctx context.Context, tx pgx.Tx, identity model.Identity) (*model.User, error)
	// SaveState writes state and state_payload.
	SaveState(ctx context.Context, tx pgx.Tx, user *model.User) error
}

type pgUserRepo struct{}

func NewUserRepository() UserRepository {
	return &pgUserRepo{}
}

func (r *pgUserRepo) Upsert(ctx context.Context, tx pgx.Tx, identity model.Identity) (*model.User, error) {
	// ON CONFLICT DO UPDATE takes a row lock held until commit, which
	// serializes concurrent events of the same user.
	query := `INSERT INTO telegram_users (id, telegram_id, username, first_name, last_name, state, cart, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, '{}', NOW(), NOW())
			  ON CONFLICT (telegram_id) DO UPDATE
			  SET username = EXCLUDED.username, first_name = EXCLUDED.first_name,
			      last_name = EXCLUDED.last_name, updated_at = NOW()
			  RETURNING id, telegram_id, username, first_name, last_name,
			            COALESCE(state, ''), state_payload, COALESCE(cart, '{}'), created_at, updated_at`
	user := &model.User{}
	var (
		state   string
		payload []byte
		cart    []byte
	)
	err := tx.QueryRow(ctx, query,
		uuid.New(), identity.RemoteID, identity.Username, identity.FirstName, identity.LastName, model.StateMainMenu,
	).Scan(
		&user.ID, &user.RemoteID, &user.Username, &user.FirstName, &user.LastName,
		&state, &payload, &cart, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	user.State = model.State(state)
	user.StatePayload = payload
	// Stored carts are foreign data; Cart decoding drops what it cannot read.
	if err := json.Unmarshal(cart, &user.Cart); err != nil || user.Cart == nil {
		user.Cart = model.Cart{}
	}
	return user, nil
}

func (r *pgUserRepo) SaveState(ctx context.Context, tx pgx.Tx, user *model.User) error {
	var payload any
	if len(user.StatePayload) > 0 {
		payload = string(user.StatePayload)
	}
	err := tx.QueryRow(ctx,
		`UPDATE telegram_users SET state = $2, state_payload = $3::jsonb, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		user.ID, string(user.State), payload,
	).Scan(&user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save user state: %w", err)
	}
	return nil
}
