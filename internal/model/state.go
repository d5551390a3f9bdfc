package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

type State string

const (
	StateNone           State = ""
	StateMainMenu       State = "main_menu"
	StateBrowse         State = "browse"
	StateWaitingContact State = "waiting_contact"
)

var ErrInvalidPayload = errors.New("invalid state payload")

// Checkout is the payload attached to StateWaitingContact. It is either
// CartCheckout or ItemCheckout.
type Checkout interface {
	checkout()
}

// CartCheckout completes the order from the user's cart.
type CartCheckout struct{}

// ItemCheckout orders a single product directly, bypassing the cart.
type ItemCheckout struct {
	ProductID int64
	Qty       int
}

func (CartCheckout) checkout() {}
func (ItemCheckout) checkout() {}

const checkoutModeCart = "cart_checkout"

// checkoutPayload is the stored JSON shape. Cart checkouts are written as
// {"mode":"cart_checkout"}, single items as {"product_id":7,"qty":1}.
type checkoutPayload struct {
	Mode      string          `json:"mode,omitempty"`
	ProductID json.RawMessage `json:"product_id,omitempty"`
	Qty       json.RawMessage `json:"qty,omitempty"`
}

func EncodeCheckout(c Checkout) json.RawMessage {
	var raw []byte
	switch v := c.(type) {
	case CartCheckout:
		raw, _ = json.Marshal(map[string]string{"mode": checkoutModeCart})
	case ItemCheckout:
		raw, _ = json.Marshal(map[string]any{"product_id": v.ProductID, "qty": v.Qty})
	}
	return raw
}

// DecodeCheckout validates a stored payload. Anything that is not one of the
// two known shapes yields ErrInvalidPayload.
func DecodeCheckout(raw json.RawMessage) (Checkout, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}
	// Some writers stored the payload as a JSON string holding the object.
	var nested string
	if json.Unmarshal(raw, &nested) == nil {
		raw = json.RawMessage(nested)
	}

	var p checkoutPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p.Mode == checkoutModeCart {
		return CartCheckout{}, nil
	}

	productID, ok := jsonInt(p.ProductID)
	if !ok || productID <= 0 {
		return nil, fmt.Errorf("%w: missing product_id", ErrInvalidPayload)
	}
	qty := int64(1)
	if len(p.Qty) > 0 {
		if qty, ok = jsonInt(p.Qty); !ok {
			return nil, fmt.Errorf("%w: bad qty", ErrInvalidPayload)
		}
	}
	if qty < 1 {
		return nil, fmt.Errorf("%w: qty %d", ErrInvalidPayload, qty)
	}
	return ItemCheckout{ProductID: productID, Qty: int(qty)}, nil
}

// jsonInt accepts both 7 and "7".
func jsonInt(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, false
		}
		n = json.Number(s)
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// Reset moves the user to an idle state and drops any payload.
func (u *User) Reset(state State) {
	u.State = state
	u.StatePayload = nil
}

// AwaitContact moves the user to StateWaitingContact with the given source.
func (u *User) AwaitContact(c Checkout) {
	u.State = StateWaitingContact
	u.StatePayload = EncodeCheckout(c)
}

func (u *User) WaitingContact() bool {
	return u.State == StateWaitingContact
}
