package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is a Telegram chat participant together with its conversation state.
// StatePayload is kept raw; it is interpreted only through DecodeCheckout.
type User struct {
	ID           uuid.UUID
	RemoteID     int64
	Username     string
	FirstName    string
	LastName     string
	State        State
	StatePayload json.RawMessage
	Cart         Cart
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the part of a User mirrored from the transport on every event.
type Identity struct {
	RemoteID  int64
	Username  string
	FirstName string
	LastName  string
}

type Product struct {
	ID          int64
	Title       string
	Description string
	Price       decimal.Decimal
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCanceled  OrderStatus = "canceled"
	OrderStatusDone      OrderStatus = "done"
)

type Order struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Status       OrderStatus
	ContactPhone string
	ContactName  string
	TotalPrice   decimal.Decimal
	Meta         OrderMeta
	Items        []OrderItem
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderMeta snapshots the customer's identity at order time.
type OrderMeta struct {
	RemoteID int64  `json:"telegram_id"`
	Username string `json:"username,omitempty"`
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID int64
	Qty       int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// OrderCreatedEvent is published after a checkout transaction commits.
type OrderCreatedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
}
